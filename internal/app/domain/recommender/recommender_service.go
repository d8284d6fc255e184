package recommender

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trailmates/trailmates/internal/app/domain/adventures"
	"github.com/trailmates/trailmates/internal/app/domain/friends"
	"github.com/trailmates/trailmates/internal/app/domain/participants"
	"github.com/trailmates/trailmates/internal/app/domain/popularity"
	"github.com/trailmates/trailmates/internal/app/models"
	"github.com/trailmates/trailmates/internal/observability/metrics"
	"github.com/trailmates/trailmates/internal/pkg/cache"
)

var _ Service = (*ServiceImpl)(nil)

// compile-time checks that the domain repositories satisfy the ranking
// sources.
var (
	_ AdventureSource   = (adventures.Repository)(nil)
	_ ParticipantSource = (participants.Repository)(nil)
	_ FriendSource      = (friends.Repository)(nil)
	_ PopularitySource  = (popularity.Repository)(nil)
	_ PopularitySource  = (*popularity.WindowedTotals)(nil)
)

// AdventureSource supplies adventures and their routes.
type AdventureSource interface {
	ListAll(ctx context.Context) ([]*models.Adventure, error)
	RouteCoordinates(ctx context.Context, adventureID int64) ([]*models.Coordinate, error)
}

// ParticipantSource supplies participation rows.
type ParticipantSource interface {
	ListByAdventure(ctx context.Context, adventureID int64) ([]*models.AdventureParticipant, error)
	ListActiveByUser(ctx context.Context, userID int64) ([]*models.AdventureParticipant, error)
}

// FriendSource supplies the viewer's friend ids.
type FriendSource interface {
	FriendIDsOf(ctx context.Context, userID int64) ([]int64, error)
}

// PopularitySource supplies summed view and search counts per adventure.
type PopularitySource interface {
	ViewTotals(ctx context.Context) (map[int64]int64, error)
	SearchTotals(ctx context.Context) (map[int64]int64, error)
}

// Viewer identifies who is asking for recommendations. A nil UserID means
// anonymous; a nil Position disables the proximity signal.
type Viewer struct {
	UserID   *int64
	Position *models.Position
}

func (v Viewer) cacheKey() string {
	key := "recommendations:anonymous"
	if v.UserID != nil {
		key = fmt.Sprintf("recommendations:user:%d", *v.UserID)
	}
	if v.Position != nil {
		key += fmt.Sprintf(":pos:%.6f,%.6f", v.Position.Latitude, v.Position.Longitude)
	}
	return key
}

// Weights scale the per-signal score terms. The neutral default is 1 for
// every signal; deployments that want the legacy double emphasis on
// proximity and friends configure it rather than hardcode it.
type Weights struct {
	Proximity    float64
	Friends      float64
	Participants float64
	Views        float64
	Searches     float64
}

// DefaultWeights returns the neutral weighting.
func DefaultWeights() Weights {
	return Weights{Proximity: 1, Friends: 1, Participants: 1, Views: 1, Searches: 1}
}

// RecommendationSet bundles the three ranked views produced per request.
type RecommendationSet struct {
	MostRecent    []*models.Adventure
	StartSoon     []*models.Adventure
	TopAdventures []*models.Adventure
}

// Service produces ranked adventure lists for a viewer. All methods are
// read-only and tolerate eventual consistency: the output is advisory, so a
// participant joining mid-pass may or may not be reflected.
type Service interface {
	MostRecent(ctx context.Context) ([]*models.Adventure, error)
	StartSoon(ctx context.Context) ([]*models.Adventure, error)
	TopAdventures(ctx context.Context, viewer Viewer) ([]*models.Adventure, error)
	Recommendations(ctx context.Context, viewer Viewer) (*RecommendationSet, error)
}

type ServiceImpl struct {
	logger       *zap.Logger
	adventures   AdventureSource
	participants ParticipantSource
	friends      FriendSource
	popularity   PopularitySource

	weights  Weights
	cache    cache.Store
	cacheTTL time.Duration
	now      func() time.Time
}

// Option configures a ServiceImpl.
type Option func(*ServiceImpl)

// WithWeights overrides the per-signal weights. NaN or negative values
// fall back to the neutral weight.
func WithWeights(w Weights) Option {
	return func(s *ServiceImpl) {
		s.weights = Weights{
			Proximity:    sanitizeWeight(w.Proximity),
			Friends:      sanitizeWeight(w.Friends),
			Participants: sanitizeWeight(w.Participants),
			Views:        sanitizeWeight(w.Views),
			Searches:     sanitizeWeight(w.Searches),
		}
	}
}

// WithCache caches whole recommendation sets per viewer for ttl.
func WithCache(store cache.Store, ttl time.Duration) Option {
	return func(s *ServiceImpl) {
		s.cache = store
		s.cacheTTL = ttl
	}
}

// WithClock injects the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ServiceImpl) { s.now = now }
}

// NewService creates a new instance of ServiceImpl.
func NewService(adventureSource AdventureSource, participantSource ParticipantSource, friendSource FriendSource, popularitySource PopularitySource, logger *zap.Logger, opts ...Option) *ServiceImpl {
	s := &ServiceImpl{
		logger:       logger,
		adventures:   adventureSource,
		participants: participantSource,
		friends:      friendSource,
		popularity:   popularitySource,
		weights:      DefaultWeights(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MostRecent returns all currently-active adventures, newest creation
// first.
func (s *ServiceImpl) MostRecent(ctx context.Context) ([]*models.Adventure, error) {
	now := s.now()
	active, err := s.listActive(ctx, now)
	if err != nil {
		return nil, err
	}
	return mostRecentOf(active), nil
}

// StartSoon returns all currently-active adventures, earliest start first.
func (s *ServiceImpl) StartSoon(ctx context.Context) ([]*models.Adventure, error) {
	now := s.now()
	active, err := s.listActive(ctx, now)
	if err != nil {
		return nil, err
	}
	return startSoonOf(active), nil
}

// TopAdventures returns the personalized ranking, falling back to
// MostRecent ordering for anonymous viewers.
func (s *ServiceImpl) TopAdventures(ctx context.Context, viewer Viewer) ([]*models.Adventure, error) {
	now := s.now()
	active, err := s.listActive(ctx, now)
	if err != nil {
		return nil, err
	}
	return s.topAdventuresOf(ctx, viewer, active)
}

// Recommendations computes the three lists from one consistent snapshot of
// the active set, consulting the per-viewer cache first.
func (s *ServiceImpl) Recommendations(ctx context.Context, viewer Viewer) (*RecommendationSet, error) {
	ctx, span := otel.Tracer("RecommenderService").Start(ctx, "Recommendations", trace.WithAttributes(
		attribute.Bool("viewer.anonymous", viewer.UserID == nil),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "Recommendations"))

	if s.cache != nil {
		if cached, ok := s.cache.Get(viewer.cacheKey()); ok {
			if set, ok := cached.(*RecommendationSet); ok {
				l.Debug("Recommendation cache hit")
				span.SetStatus(codes.Ok, "Served from cache")
				return set, nil
			}
		}
	}

	now := s.now()
	active, err := s.listActive(ctx, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list active adventures")
		return nil, err
	}

	top, err := s.topAdventuresOf(ctx, viewer, active)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to rank adventures")
		return nil, err
	}

	set := &RecommendationSet{
		MostRecent:    mostRecentOf(active),
		StartSoon:     startSoonOf(active),
		TopAdventures: top,
	}

	if s.cache != nil {
		s.cache.Set(viewer.cacheKey(), set, s.cacheTTL)
	}

	l.Debug("Recommendations computed", zap.Int("active", len(active)))
	span.SetStatus(codes.Ok, "Recommendations computed")
	return set, nil
}

// listActive fetches every adventure and filters to the ones active at the
// single instant now, preserving source order.
func (s *ServiceImpl) listActive(ctx context.Context, now time.Time) ([]*models.Adventure, error) {
	all, err := s.adventures.ListAll(ctx)
	if err != nil {
		s.logger.Error("Failed to list adventures", zap.Error(err))
		return nil, fmt.Errorf("failed to list adventures: %w", err)
	}
	active := make([]*models.Adventure, 0, len(all))
	for _, a := range all {
		if a.IsActiveAt(now) {
			active = append(active, a)
		}
	}
	return active, nil
}

func mostRecentOf(active []*models.Adventure) []*models.Adventure {
	out := make([]*models.Adventure, len(active))
	copy(out, active)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedOn.After(out[j].CreatedOn)
	})
	return out
}

func startSoonOf(active []*models.Adventure) []*models.Adventure {
	out := make([]*models.Adventure, len(active))
	copy(out, active)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledDate.Before(out[j].ScheduledDate)
	})
	return out
}

// adventureParticipation is the per-adventure participant summary shared by
// the overlap and participant-count signals.
type adventureParticipation struct {
	total     int
	activeIDs []int64
}

// topAdventuresOf runs the multi-signal ranking over the active set. The
// candidate list excludes adventures the viewer created or actively joined;
// rank positions are computed over all active adventures so a candidate's
// rank reflects the full field.
func (s *ServiceImpl) topAdventuresOf(ctx context.Context, viewer Viewer, active []*models.Adventure) ([]*models.Adventure, error) {
	if viewer.UserID == nil {
		return mostRecentOf(active), nil
	}
	userID := *viewer.UserID
	if err := models.ValidateID("user_id", userID); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("RecommenderService").Start(ctx, "TopAdventures", trace.WithAttributes(
		attribute.Int64("viewer.id", userID),
		attribute.Int("active", len(active)),
	))
	defer span.End()

	started := s.now()
	l := s.logger.With(zap.String("method", "TopAdventures"), zap.Int64("viewerID", userID))

	joined, err := s.participants.ListActiveByUser(ctx, userID)
	if err != nil {
		l.Error("Failed to list viewer participations", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list viewer participations")
		return nil, fmt.Errorf("failed to list viewer participations: %w", err)
	}
	joinedIDs := make(map[int64]struct{}, len(joined))
	for _, p := range joined {
		joinedIDs[p.AdventureID] = struct{}{}
	}

	candidates := make([]*models.Adventure, 0, len(active))
	for _, a := range active {
		if a.CreatorID == userID {
			continue
		}
		if _, ok := joinedIDs[a.ID]; ok {
			continue
		}
		candidates = append(candidates, a)
	}

	// The four signals are independent read-only passes; compute them
	// concurrently under the caller's deadline.
	var (
		proximityRanks map[int64]int
		overlapRanks   map[int64]int
		countRanks     map[int64]int
		viewRanks      map[int64]int
		searchRanks    map[int64]int
	)

	g, gctx := errgroup.WithContext(ctx)

	if viewer.Position != nil {
		position := *viewer.Position
		g.Go(func() error {
			entries := make([]rankedEntry, 0, len(active))
			for _, a := range active {
				coordinates, err := s.adventures.RouteCoordinates(gctx, a.ID)
				if err != nil {
					return fmt.Errorf("failed to load route for adventure %d: %w", a.ID, err)
				}
				entries = append(entries, rankedEntry{id: a.ID, key: averageRouteDistance(position, coordinates)})
			}
			proximityRanks = rankAscending(entries)
			return nil
		})
	}

	g.Go(func() error {
		friendIDs, err := s.friends.FriendIDsOf(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load viewer friends: %w", err)
		}
		friendSet := make(map[int64]struct{}, len(friendIDs))
		for _, id := range friendIDs {
			friendSet[id] = struct{}{}
		}

		overlapEntries := make([]rankedEntry, 0, len(active))
		countEntries := make([]rankedEntry, 0, len(active))
		for _, a := range active {
			rows, err := s.participants.ListByAdventure(gctx, a.ID)
			if err != nil {
				return fmt.Errorf("failed to load participants for adventure %d: %w", a.ID, err)
			}
			summary := summarizeParticipation(rows)
			overlapEntries = append(overlapEntries, rankedEntry{
				id:  a.ID,
				key: friendOverlapFraction(summary.activeIDs, friendSet),
			})
			countEntries = append(countEntries, rankedEntry{id: a.ID, key: float64(summary.total)})
		}
		overlapRanks = rankAscending(overlapEntries)
		countRanks = rankAscending(countEntries)
		return nil
	})

	g.Go(func() error {
		views, err := s.popularity.ViewTotals(gctx)
		if err != nil {
			return fmt.Errorf("failed to load view totals: %w", err)
		}
		searches, err := s.popularity.SearchTotals(gctx)
		if err != nil {
			return fmt.Errorf("failed to load search totals: %w", err)
		}

		viewEntries := make([]rankedEntry, 0, len(active))
		searchEntries := make([]rankedEntry, 0, len(active))
		for _, a := range active {
			viewEntries = append(viewEntries, rankedEntry{id: a.ID, key: float64(views[a.ID])})
			searchEntries = append(searchEntries, rankedEntry{id: a.ID, key: float64(searches[a.ID])})
		}
		viewRanks = rankAscending(viewEntries)
		searchRanks = rankAscending(searchEntries)
		return nil
	})

	if err := g.Wait(); err != nil {
		l.Error("Ranking signal computation failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Signal computation failed")
		return nil, err
	}

	scores := make(map[int64]float64, len(candidates))
	for _, a := range candidates {
		var score float64
		if proximityRanks == nil {
			// No viewer position: the signal is skipped and every candidate
			// gets the same best-rank term at weight 1.
			score += rankTerm(1)
		} else {
			score += signalTerm(proximityRanks, a.ID, s.weights.Proximity)
		}
		score += signalTerm(overlapRanks, a.ID, s.weights.Friends)
		score += signalTerm(countRanks, a.ID, s.weights.Participants)
		score += signalTerm(viewRanks, a.ID, s.weights.Views)
		score += signalTerm(searchRanks, a.ID, s.weights.Searches)
		scores[a.ID] = score
	}

	// Low combined score means most relevant; ties keep candidate order.
	ranked := make([]*models.Adventure, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i].ID] < scores[ranked[j].ID]
	})

	elapsed := s.now().Sub(started)
	m := metrics.Get()
	m.RankingDurationSeconds.Record(ctx, elapsed.Seconds())
	m.RankingCandidates.Record(ctx, int64(len(candidates)))

	l.Debug("Ranking pass complete",
		zap.Int("candidates", len(candidates)),
		zap.Duration("elapsed", elapsed))
	span.SetStatus(codes.Ok, "Ranking complete")
	return ranked, nil
}

func summarizeParticipation(rows []*models.AdventureParticipant) adventureParticipation {
	summary := adventureParticipation{total: len(rows)}
	for _, row := range rows {
		if row.IsActive() {
			summary.activeIDs = append(summary.activeIDs, row.UserID)
		}
	}
	return summary
}

// guard against accidental NaN weights sneaking in from config parsing.
func sanitizeWeight(w float64) float64 {
	if math.IsNaN(w) || w < 0 {
		return 1
	}
	return w
}
