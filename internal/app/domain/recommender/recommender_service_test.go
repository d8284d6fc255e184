package recommender

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trailmates/trailmates/internal/app/models"
	"github.com/trailmates/trailmates/internal/pkg/cache"
)

// --- Mocks for Dependencies ---

type MockAdventureSource struct {
	mock.Mock
}

func (m *MockAdventureSource) ListAll(ctx context.Context) ([]*models.Adventure, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Adventure), args.Error(1)
}
func (m *MockAdventureSource) RouteCoordinates(ctx context.Context, adventureID int64) ([]*models.Coordinate, error) {
	args := m.Called(ctx, adventureID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Coordinate), args.Error(1)
}

type MockParticipantSource struct {
	mock.Mock
}

func (m *MockParticipantSource) ListByAdventure(ctx context.Context, adventureID int64) ([]*models.AdventureParticipant, error) {
	args := m.Called(ctx, adventureID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AdventureParticipant), args.Error(1)
}
func (m *MockParticipantSource) ListActiveByUser(ctx context.Context, userID int64) ([]*models.AdventureParticipant, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AdventureParticipant), args.Error(1)
}

type MockFriendSource struct {
	mock.Mock
}

func (m *MockFriendSource) FriendIDsOf(ctx context.Context, userID int64) ([]int64, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

type MockPopularitySource struct {
	mock.Mock
}

func (m *MockPopularitySource) ViewTotals(ctx context.Context) (map[int64]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]int64), args.Error(1)
}
func (m *MockPopularitySource) SearchTotals(ctx context.Context) (map[int64]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]int64), args.Error(1)
}

// --- Test Setup Helper ---

type recommenderMocks struct {
	adventures   *MockAdventureSource
	participants *MockParticipantSource
	friends      *MockFriendSource
	popularity   *MockPopularitySource
}

func setupRecommenderTest(t *testing.T, now time.Time, opts ...Option) (*ServiceImpl, *recommenderMocks) {
	t.Helper()
	m := &recommenderMocks{
		adventures:   new(MockAdventureSource),
		participants: new(MockParticipantSource),
		friends:      new(MockFriendSource),
		popularity:   new(MockPopularitySource),
	}
	opts = append(opts, WithClock(func() time.Time { return now }))
	service := NewService(m.adventures, m.participants, m.friends, m.popularity, zap.NewNop(), opts...)
	return service, m
}

func adventureFixture(id, creatorID int64, scheduled, created time.Time) *models.Adventure {
	return &models.Adventure{
		ID:            id,
		CreatorID:     creatorID,
		ScheduledDate: scheduled,
		CreatedOn:     created,
	}
}

func adventureIDs(adventures []*models.Adventure) []int64 {
	ids := make([]int64, len(adventures))
	for i, a := range adventures {
		ids[i] = a.ID
	}
	return ids
}

// --- Tests ---

func TestMostRecent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service, mocks := setupRecommenderTest(t, now)

	older := adventureFixture(1, 7, now.Add(48*time.Hour), now.Add(-72*time.Hour))
	newer := adventureFixture(2, 7, now.Add(24*time.Hour), now.Add(-1*time.Hour))
	past := adventureFixture(3, 7, now.Add(-time.Second), now)
	deleted := adventureFixture(4, 7, now.Add(24*time.Hour), now)
	deleted.Deleted = true

	mocks.adventures.On("ListAll", ctx).Return([]*models.Adventure{older, newer, past, deleted}, nil)

	result, err := service.MostRecent(ctx)

	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, adventureIDs(result))
}

func TestStartSoon(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service, mocks := setupRecommenderTest(t, now)

	later := adventureFixture(1, 7, now.Add(48*time.Hour), now)
	sooner := adventureFixture(2, 7, now.Add(24*time.Hour), now)
	disabled := adventureFixture(3, 7, now.Add(time.Hour), now)
	disabled.Disabled = true

	mocks.adventures.On("ListAll", ctx).Return([]*models.Adventure{later, sooner, disabled}, nil)

	result, err := service.StartSoon(ctx)

	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, adventureIDs(result))
}

func TestTopAdventures_AnonymousFallsBackToMostRecent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service, mocks := setupRecommenderTest(t, now)

	a := adventureFixture(1, 7, now.Add(24*time.Hour), now.Add(-48*time.Hour))
	b := adventureFixture(2, 7, now.Add(24*time.Hour), now.Add(-1*time.Hour))
	mocks.adventures.On("ListAll", ctx).Return([]*models.Adventure{a, b}, nil)

	result, err := service.TopAdventures(ctx, Viewer{})

	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, adventureIDs(result))
	mocks.friends.AssertNotCalled(t, "FriendIDsOf", mock.Anything, mock.Anything)
	mocks.participants.AssertNotCalled(t, "ListActiveByUser", mock.Anything, mock.Anything)
}

func TestTopAdventures_ExcludesOwnAndJoined(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service, mocks := setupRecommenderTest(t, now)

	viewerID := int64(9)
	own := adventureFixture(1, viewerID, now.Add(24*time.Hour), now)
	joined := adventureFixture(2, 7, now.Add(24*time.Hour), now)
	candidate := adventureFixture(3, 7, now.Add(24*time.Hour), now)
	active := []*models.Adventure{own, joined, candidate}

	mocks.adventures.On("ListAll", ctx).Return(active, nil)
	mocks.participants.On("ListActiveByUser", mock.Anything, viewerID).Return([]*models.AdventureParticipant{
		{AdventureID: 2, UserID: viewerID},
	}, nil)
	mocks.friends.On("FriendIDsOf", mock.Anything, viewerID).Return([]int64{}, nil)
	for _, a := range active {
		mocks.participants.On("ListByAdventure", mock.Anything, a.ID).Return([]*models.AdventureParticipant{}, nil)
	}
	mocks.popularity.On("ViewTotals", mock.Anything).Return(map[int64]int64{}, nil)
	mocks.popularity.On("SearchTotals", mock.Anything).Return(map[int64]int64{}, nil)

	result, err := service.TopAdventures(ctx, Viewer{UserID: &viewerID})

	require.NoError(t, err)
	assert.Equal(t, []int64{3}, adventureIDs(result))
}

func TestTopAdventures_RanksBySignals(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service, mocks := setupRecommenderTest(t, now)

	viewerID := int64(9)
	leftOn := now.Add(-time.Hour)
	a1 := adventureFixture(1, 7, now.Add(24*time.Hour), now)
	a2 := adventureFixture(2, 7, now.Add(24*time.Hour), now)
	a3 := adventureFixture(3, 7, now.Add(24*time.Hour), now)
	active := []*models.Adventure{a1, a2, a3}

	mocks.adventures.On("ListAll", ctx).Return(active, nil)
	mocks.participants.On("ListActiveByUser", mock.Anything, viewerID).Return([]*models.AdventureParticipant{}, nil)
	mocks.friends.On("FriendIDsOf", mock.Anything, viewerID).Return([]int64{100}, nil)

	// Adventure 3 is the busiest (most participants, views, searches) and
	// adventure 1 has nothing going on. The left participant still counts
	// toward the total but not toward the friend overlap.
	mocks.participants.On("ListByAdventure", mock.Anything, int64(1)).Return([]*models.AdventureParticipant{}, nil)
	mocks.participants.On("ListByAdventure", mock.Anything, int64(2)).Return([]*models.AdventureParticipant{
		{AdventureID: 2, UserID: 100},
	}, nil)
	mocks.participants.On("ListByAdventure", mock.Anything, int64(3)).Return([]*models.AdventureParticipant{
		{AdventureID: 3, UserID: 101},
		{AdventureID: 3, UserID: 102, LeftOn: &leftOn},
	}, nil)
	mocks.popularity.On("ViewTotals", mock.Anything).Return(map[int64]int64{3: 7}, nil)
	mocks.popularity.On("SearchTotals", mock.Anything).Return(map[int64]int64{2: 4, 3: 9}, nil)

	result, err := service.TopAdventures(ctx, Viewer{UserID: &viewerID})

	require.NoError(t, err)
	// Low combined score wins: rank 1 under a signal carries the largest
	// term, so the adventure that places last in every ranking surfaces
	// first. With no viewer position the proximity term is identical for
	// all candidates and never consults routes.
	assert.Equal(t, []int64{3, 2, 1}, adventureIDs(result))
	mocks.adventures.AssertNotCalled(t, "RouteCoordinates", mock.Anything, mock.Anything)
}

func TestTopAdventures_ProximityPrefersNearbyRoutes(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service, mocks := setupRecommenderTest(t, now)

	viewerID := int64(9)
	position := &models.Position{Latitude: 0, Longitude: 0}
	far := adventureFixture(1, 7, now.Add(24*time.Hour), now)
	near := adventureFixture(2, 7, now.Add(24*time.Hour), now)
	active := []*models.Adventure{far, near}

	mocks.adventures.On("ListAll", ctx).Return(active, nil)
	mocks.adventures.On("RouteCoordinates", mock.Anything, int64(1)).Return([]*models.Coordinate{
		{AdventureID: 1, PathPoint: 0, Latitude: 30, Longitude: 40},
	}, nil)
	mocks.adventures.On("RouteCoordinates", mock.Anything, int64(2)).Return([]*models.Coordinate{
		{AdventureID: 2, PathPoint: 0, Latitude: 0.1, Longitude: 0.1},
	}, nil)
	mocks.participants.On("ListActiveByUser", mock.Anything, viewerID).Return([]*models.AdventureParticipant{}, nil)
	mocks.friends.On("FriendIDsOf", mock.Anything, viewerID).Return([]int64{}, nil)
	mocks.participants.On("ListByAdventure", mock.Anything, mock.Anything).Return([]*models.AdventureParticipant{}, nil)
	mocks.popularity.On("ViewTotals", mock.Anything).Return(map[int64]int64{}, nil)
	mocks.popularity.On("SearchTotals", mock.Anything).Return(map[int64]int64{}, nil)

	result, err := service.TopAdventures(ctx, Viewer{UserID: &viewerID, Position: position})

	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, adventureIDs(result))
}

func TestTopAdventures_Stability(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service, mocks := setupRecommenderTest(t, now)

	viewerID := int64(9)
	active := []*models.Adventure{
		adventureFixture(1, 7, now.Add(24*time.Hour), now),
		adventureFixture(2, 7, now.Add(24*time.Hour), now),
		adventureFixture(3, 7, now.Add(24*time.Hour), now),
	}

	mocks.adventures.On("ListAll", ctx).Return(active, nil)
	mocks.participants.On("ListActiveByUser", mock.Anything, viewerID).Return([]*models.AdventureParticipant{}, nil)
	mocks.friends.On("FriendIDsOf", mock.Anything, viewerID).Return([]int64{}, nil)
	mocks.participants.On("ListByAdventure", mock.Anything, mock.Anything).Return([]*models.AdventureParticipant{}, nil)
	mocks.popularity.On("ViewTotals", mock.Anything).Return(map[int64]int64{}, nil)
	mocks.popularity.On("SearchTotals", mock.Anything).Return(map[int64]int64{}, nil)

	first, err := service.TopAdventures(ctx, Viewer{UserID: &viewerID})
	require.NoError(t, err)
	second, err := service.TopAdventures(ctx, Viewer{UserID: &viewerID})
	require.NoError(t, err)

	assert.Equal(t, adventureIDs(first), adventureIDs(second))
}

func TestTopAdventures_InvalidViewerID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service, mocks := setupRecommenderTest(t, now)

	mocks.adventures.On("ListAll", ctx).Return([]*models.Adventure{}, nil)

	badID := int64(-1)
	_, err := service.TopAdventures(ctx, Viewer{UserID: &badID})

	var validationErr *models.ValidationError
	require.ErrorAs(t, err, &validationErr)
	mocks.participants.AssertNotCalled(t, "ListActiveByUser", mock.Anything, mock.Anything)
}

func TestTopAdventures_SignalErrorPropagates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service, mocks := setupRecommenderTest(t, now)

	viewerID := int64(9)
	repoErr := errors.New("connection reset")

	mocks.adventures.On("ListAll", ctx).Return([]*models.Adventure{
		adventureFixture(1, 7, now.Add(24*time.Hour), now),
	}, nil)
	mocks.participants.On("ListActiveByUser", mock.Anything, viewerID).Return([]*models.AdventureParticipant{}, nil)
	mocks.friends.On("FriendIDsOf", mock.Anything, viewerID).Return(nil, repoErr)
	mocks.participants.On("ListByAdventure", mock.Anything, mock.Anything).Return([]*models.AdventureParticipant{}, nil).Maybe()
	mocks.popularity.On("ViewTotals", mock.Anything).Return(map[int64]int64{}, nil).Maybe()
	mocks.popularity.On("SearchTotals", mock.Anything).Return(map[int64]int64{}, nil).Maybe()

	_, err := service.TopAdventures(ctx, Viewer{UserID: &viewerID})

	require.Error(t, err)
	assert.ErrorIs(t, err, repoErr)
}

func TestRecommendations_CachesPerViewer(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStore(time.Minute, time.Minute)
	service, mocks := setupRecommenderTest(t, now, WithCache(store, time.Minute))

	a := adventureFixture(1, 7, now.Add(24*time.Hour), now)
	mocks.adventures.On("ListAll", mock.Anything).Return([]*models.Adventure{a}, nil).Once()

	first, err := service.Recommendations(ctx, Viewer{})
	require.NoError(t, err)
	second, err := service.Recommendations(ctx, Viewer{})
	require.NoError(t, err)

	assert.Same(t, first, second)
	mocks.adventures.AssertNumberOfCalls(t, "ListAll", 1)
}

func TestRecommendations_AnonymousSetSharesOneSnapshot(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service, mocks := setupRecommenderTest(t, now)

	older := adventureFixture(1, 7, now.Add(2*time.Hour), now.Add(-48*time.Hour))
	newer := adventureFixture(2, 7, now.Add(48*time.Hour), now.Add(-1*time.Hour))
	mocks.adventures.On("ListAll", mock.Anything).Return([]*models.Adventure{older, newer}, nil).Once()

	set, err := service.Recommendations(ctx, Viewer{})

	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, adventureIDs(set.MostRecent))
	assert.Equal(t, []int64{1, 2}, adventureIDs(set.StartSoon))
	assert.Equal(t, adventureIDs(set.MostRecent), adventureIDs(set.TopAdventures))
}

func TestRecommendations_ListError(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service, mocks := setupRecommenderTest(t, now)

	repoErr := errors.New("timeout")
	mocks.adventures.On("ListAll", mock.Anything).Return(nil, repoErr)

	_, err := service.Recommendations(ctx, Viewer{})

	assert.ErrorIs(t, err, repoErr)
}

func TestViewerCacheKey(t *testing.T) {
	userID := int64(9)
	position := &models.Position{Latitude: 1.5, Longitude: -2.5}

	anonymous := Viewer{}
	identified := Viewer{UserID: &userID}
	positioned := Viewer{UserID: &userID, Position: position}

	assert.Equal(t, "recommendations:anonymous", anonymous.cacheKey())
	assert.Equal(t, "recommendations:user:9", identified.cacheKey())
	assert.NotEqual(t, identified.cacheKey(), positioned.cacheKey())
}

func TestWithWeights_SanitizesBadValues(t *testing.T) {
	service, _ := setupRecommenderTest(t, time.Now(), WithWeights(Weights{
		Proximity:    2,
		Friends:      math.NaN(),
		Participants: -3,
		Views:        0,
		Searches:     1,
	}))

	assert.Equal(t, 2.0, service.weights.Proximity)
	assert.Equal(t, 1.0, service.weights.Friends)
	assert.Equal(t, 1.0, service.weights.Participants)
	assert.Equal(t, 0.0, service.weights.Views)
	assert.Equal(t, 1.0, service.weights.Searches)
}
