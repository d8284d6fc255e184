package participants

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trailmates/trailmates/internal/app/models"
)

// --- Mocks for Dependencies ---

type MockParticipantRepo struct {
	mock.Mock
}

func (m *MockParticipantRepo) Join(ctx context.Context, adventureID, userID int64) error {
	args := m.Called(ctx, adventureID, userID)
	return args.Error(0)
}
func (m *MockParticipantRepo) Leave(ctx context.Context, adventureID, userID int64) (bool, error) {
	args := m.Called(ctx, adventureID, userID)
	return args.Bool(0), args.Error(1)
}
func (m *MockParticipantRepo) FindByPair(ctx context.Context, adventureID, userID int64) (*models.AdventureParticipant, error) {
	args := m.Called(ctx, adventureID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdventureParticipant), args.Error(1)
}
func (m *MockParticipantRepo) ListByAdventure(ctx context.Context, adventureID int64) ([]*models.AdventureParticipant, error) {
	args := m.Called(ctx, adventureID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AdventureParticipant), args.Error(1)
}
func (m *MockParticipantRepo) ListActiveByAdventure(ctx context.Context, adventureID int64) ([]*models.AdventureParticipant, error) {
	args := m.Called(ctx, adventureID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AdventureParticipant), args.Error(1)
}
func (m *MockParticipantRepo) ListActiveByUser(ctx context.Context, userID int64) ([]*models.AdventureParticipant, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AdventureParticipant), args.Error(1)
}

type MockUserFinder struct {
	mock.Mock
}

func (m *MockUserFinder) FindByIDs(ctx context.Context, ids []int64) (map[int64]*models.User, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]*models.User), args.Error(1)
}

type MockAdventureFinder struct {
	mock.Mock
}

func (m *MockAdventureFinder) FindByID(ctx context.Context, adventureID int64) (*models.Adventure, error) {
	args := m.Called(ctx, adventureID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Adventure), args.Error(1)
}

func setupParticipantServiceTest() (*ServiceImpl, *MockParticipantRepo, *MockUserFinder, *MockAdventureFinder) {
	repo := new(MockParticipantRepo)
	users := new(MockUserFinder)
	adventures := new(MockAdventureFinder)
	service := NewService(repo, users, adventures, zap.NewNop())
	return service, repo, users, adventures
}

func TestParticipantService_Join(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		service, repo, _, _ := setupParticipantServiceTest()
		repo.On("Join", mock.Anything, int64(10), int64(20)).Return(nil).Once()

		err := service.Join(ctx, 10, 20)
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("duplicate join surfaces ErrAlreadyParticipant untouched", func(t *testing.T) {
		service, repo, _, _ := setupParticipantServiceTest()
		repo.On("Join", mock.Anything, int64(10), int64(20)).Return(models.ErrAlreadyParticipant).Once()

		err := service.Join(ctx, 10, 20)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrAlreadyParticipant)
		repo.AssertExpectations(t)
	})

	t.Run("repository error is wrapped", func(t *testing.T) {
		service, repo, _, _ := setupParticipantServiceTest()
		repoErr := errors.New("connection refused")
		repo.On("Join", mock.Anything, int64(10), int64(20)).Return(repoErr).Once()

		err := service.Join(ctx, 10, 20)
		require.Error(t, err)
		assert.ErrorIs(t, err, repoErr)
		assert.Contains(t, err.Error(), "failed to join adventure")
		repo.AssertExpectations(t)
	})

	t.Run("invalid ids rejected before repository", func(t *testing.T) {
		service, repo, _, _ := setupParticipantServiceTest()

		var verr *models.ValidationError
		require.ErrorAs(t, service.Join(ctx, 0, 20), &verr)
		require.ErrorAs(t, service.Join(ctx, 10, -1), &verr)
		repo.AssertNotCalled(t, "Join")
	})
}

func TestParticipantService_Leave(t *testing.T) {
	ctx := context.Background()

	t.Run("leave reports true when state changed", func(t *testing.T) {
		service, repo, _, _ := setupParticipantServiceTest()
		repo.On("Leave", mock.Anything, int64(10), int64(20)).Return(true, nil).Once()

		left, err := service.Leave(ctx, 10, 20)
		require.NoError(t, err)
		assert.True(t, left)
		repo.AssertExpectations(t)
	})

	t.Run("leaving a never-joined adventure is a benign false", func(t *testing.T) {
		service, repo, _, _ := setupParticipantServiceTest()
		repo.On("Leave", mock.Anything, int64(10), int64(20)).Return(false, nil).Once()

		left, err := service.Leave(ctx, 10, 20)
		require.NoError(t, err)
		assert.False(t, left)
		repo.AssertExpectations(t)
	})

	t.Run("second leave is idempotent", func(t *testing.T) {
		service, repo, _, _ := setupParticipantServiceTest()
		repo.On("Leave", mock.Anything, int64(10), int64(20)).Return(true, nil).Once()
		repo.On("Leave", mock.Anything, int64(10), int64(20)).Return(false, nil).Once()

		left, err := service.Leave(ctx, 10, 20)
		require.NoError(t, err)
		assert.True(t, left)

		left, err = service.Leave(ctx, 10, 20)
		require.NoError(t, err)
		assert.False(t, left)
		repo.AssertExpectations(t)
	})
}

func TestParticipantService_ActiveParticipants(t *testing.T) {
	ctx := context.Background()
	joined := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	t.Run("resolves users in join order", func(t *testing.T) {
		service, repo, users, _ := setupParticipantServiceTest()
		rows := []*models.AdventureParticipant{
			{AdventureID: 5, UserID: 2, JoinedOn: joined},
			{AdventureID: 5, UserID: 1, JoinedOn: joined.Add(time.Minute)},
		}
		repo.On("ListActiveByAdventure", mock.Anything, int64(5)).Return(rows, nil).Once()
		users.On("FindByIDs", mock.Anything, []int64{2, 1}).Return(map[int64]*models.User{
			1: {ID: 1, Username: "ana"},
			2: {ID: 2, Username: "bo"},
		}, nil).Once()

		got, err := service.ActiveParticipants(ctx, 5)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(2), got[0].ID)
		assert.Equal(t, int64(1), got[1].ID)
		repo.AssertExpectations(t)
		users.AssertExpectations(t)
	})

	t.Run("dangling user references are skipped", func(t *testing.T) {
		service, repo, users, _ := setupParticipantServiceTest()
		rows := []*models.AdventureParticipant{
			{AdventureID: 5, UserID: 2, JoinedOn: joined},
			{AdventureID: 5, UserID: 99, JoinedOn: joined.Add(time.Minute)},
		}
		repo.On("ListActiveByAdventure", mock.Anything, int64(5)).Return(rows, nil).Once()
		users.On("FindByIDs", mock.Anything, []int64{2, 99}).Return(map[int64]*models.User{
			2: {ID: 2, Username: "bo"},
		}, nil).Once()

		got, err := service.ActiveParticipants(ctx, 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(2), got[0].ID)
	})

	t.Run("no participants yields empty slice", func(t *testing.T) {
		service, repo, users, _ := setupParticipantServiceTest()
		repo.On("ListActiveByAdventure", mock.Anything, int64(5)).
			Return([]*models.AdventureParticipant{}, nil).Once()

		got, err := service.ActiveParticipants(ctx, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
		users.AssertNotCalled(t, "FindByIDs")
	})
}

func TestParticipantService_UserJoinedAdventures(t *testing.T) {
	ctx := context.Background()

	t.Run("skips adventures that no longer resolve", func(t *testing.T) {
		service, repo, _, adventures := setupParticipantServiceTest()
		rows := []*models.AdventureParticipant{
			{AdventureID: 7, UserID: 3},
			{AdventureID: 8, UserID: 3},
		}
		repo.On("ListActiveByUser", mock.Anything, int64(3)).Return(rows, nil).Once()
		adventures.On("FindByID", mock.Anything, int64(7)).Return(&models.Adventure{ID: 7}, nil).Once()
		adventures.On("FindByID", mock.Anything, int64(8)).Return(nil, nil).Once()

		got, err := service.UserJoinedAdventures(ctx, 3)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(7), got[0].ID)
		adventures.AssertExpectations(t)
	})

	t.Run("resolution error aborts", func(t *testing.T) {
		service, repo, _, adventures := setupParticipantServiceTest()
		rows := []*models.AdventureParticipant{{AdventureID: 7, UserID: 3}}
		repo.On("ListActiveByUser", mock.Anything, int64(3)).Return(rows, nil).Once()
		adventures.On("FindByID", mock.Anything, int64(7)).Return(nil, errors.New("boom")).Once()

		_, err := service.UserJoinedAdventures(ctx, 3)
		require.Error(t, err)
	})
}
