package popularity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/trailmates/trailmates/internal/app/domain/adventures"
	"github.com/trailmates/trailmates/internal/app/models"
	"github.com/trailmates/trailmates/internal/observability/metrics"
)

var _ Service = (*ServiceImpl)(nil)

// AdventureLister supplies the full adventure set for snapshot math.
type AdventureLister interface {
	ListAll(ctx context.Context) ([]*models.Adventure, error)
}

// ParticipantLister supplies participation rows per adventure.
type ParticipantLister interface {
	ListByAdventure(ctx context.Context, adventureID int64) ([]*models.AdventureParticipant, error)
}

// UserCounter supplies the registered-user total.
type UserCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Service records popularity events and computes explicit metric
// snapshots. Snapshot refresh is externally triggered with an injected
// clock and cadence; there is no background scheduler in this core.
type Service interface {
	RecordView(ctx context.Context, adventureID int64, userID *int64) error
	RecordSearch(ctx context.Context, adventureID int64, userID *int64) error
	ViewTotals(ctx context.Context, lookbackDays int) (map[int64]int64, error)
	SearchTotals(ctx context.Context, lookbackDays int) (map[int64]int64, error)

	RefreshSnapshots(ctx context.Context, now time.Time) error
	SnapshotHistory(ctx context.Context, kind models.MetricKind, lookbackDays int, now time.Time) ([]*models.MetricSnapshot, error)
}

type ServiceImpl struct {
	logger       *zap.Logger
	repo         Repository
	adventures   AdventureLister
	participants ParticipantLister
	users        UserCounter
}

// NewService creates a new instance of ServiceImpl.
func NewService(repo Repository, adventureSource AdventureLister, participantSource ParticipantLister, userSource UserCounter, logger *zap.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:       logger,
		repo:         repo,
		adventures:   adventureSource,
		participants: participantSource,
		users:        userSource,
	}
}

// RecordView appends a view event with the default weight of 1.
func (s *ServiceImpl) RecordView(ctx context.Context, adventureID int64, userID *int64) error {
	if err := models.ValidateID("adventure_id", adventureID); err != nil {
		return err
	}
	if err := s.repo.RecordView(ctx, adventureID, userID, 1); err != nil {
		s.logger.Error("Failed to record view", zap.Error(err), zap.Int64("adventureID", adventureID))
		return fmt.Errorf("failed to record view: %w", err)
	}
	metrics.Get().PopularityEventsTotal.Add(ctx, 1)
	return nil
}

// RecordSearch appends a search event with the default weight of 1.
func (s *ServiceImpl) RecordSearch(ctx context.Context, adventureID int64, userID *int64) error {
	if err := models.ValidateID("adventure_id", adventureID); err != nil {
		return err
	}
	if err := s.repo.RecordSearch(ctx, adventureID, userID, 1); err != nil {
		s.logger.Error("Failed to record search", zap.Error(err), zap.Int64("adventureID", adventureID))
		return fmt.Errorf("failed to record search: %w", err)
	}
	metrics.Get().PopularityEventsTotal.Add(ctx, 1)
	return nil
}

// ViewTotals sums view weights per adventure, restricted to the lookback
// window when lookbackDays > 0.
func (s *ServiceImpl) ViewTotals(ctx context.Context, lookbackDays int) (map[int64]int64, error) {
	if lookbackDays > 0 {
		since := time.Now().AddDate(0, 0, -lookbackDays)
		return s.repo.ViewTotalsSince(ctx, since)
	}
	return s.repo.ViewTotals(ctx)
}

// SearchTotals sums search weights per adventure, restricted to the
// lookback window when lookbackDays > 0.
func (s *ServiceImpl) SearchTotals(ctx context.Context, lookbackDays int) (map[int64]int64, error) {
	if lookbackDays > 0 {
		since := time.Now().AddDate(0, 0, -lookbackDays)
		return s.repo.SearchTotalsSince(ctx, since)
	}
	return s.repo.SearchTotals(ctx)
}

// RefreshSnapshots recomputes the tracked aggregates against one instant
// and appends a snapshot row per kind.
func (s *ServiceImpl) RefreshSnapshots(ctx context.Context, now time.Time) error {
	ctx, span := otel.Tracer("PopularityService").Start(ctx, "RefreshSnapshots")
	defer span.End()

	l := s.logger.With(zap.String("method", "RefreshSnapshots"))

	allAdventures, err := s.adventures.ListAll(ctx)
	if err != nil {
		l.Error("Failed to list adventures for snapshots", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list adventures")
		return fmt.Errorf("failed to list adventures for snapshots: %w", err)
	}

	var active int64
	for _, a := range allAdventures {
		if a.IsActiveAt(now) {
			active++
		}
	}
	total := int64(len(allAdventures))

	userCount, err := s.users.Count(ctx)
	if err != nil {
		l.Error("Failed to count users for snapshots", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to count users")
		return fmt.Errorf("failed to count users for snapshots: %w", err)
	}

	var participantsPerAdventure float64
	if total > 0 {
		var allParticipants int64
		for _, a := range allAdventures {
			rows, err := s.participants.ListByAdventure(ctx, a.ID)
			if err != nil {
				l.Error("Failed to list participants for snapshots", zap.Error(err), zap.Int64("adventureID", a.ID))
				span.RecordError(err)
				span.SetStatus(codes.Error, "Failed to list participants")
				return fmt.Errorf("failed to list participants for snapshots: %w", err)
			}
			allParticipants += int64(len(rows))
		}
		participantsPerAdventure = float64(allParticipants) / float64(total)
	}

	snapshots := []*models.MetricSnapshot{
		{ID: uuid.New(), Kind: models.MetricAdventuresActive, Counter: float64(active), TakenOn: now},
		{ID: uuid.New(), Kind: models.MetricAdventuresInactive, Counter: float64(total - active), TakenOn: now},
		{ID: uuid.New(), Kind: models.MetricAdventuresTotal, Counter: float64(total), TakenOn: now},
		{ID: uuid.New(), Kind: models.MetricUsersTotal, Counter: float64(userCount), TakenOn: now},
		{ID: uuid.New(), Kind: models.MetricUsersPerAdventure, Counter: participantsPerAdventure, TakenOn: now},
	}
	for _, snapshot := range snapshots {
		if err := s.repo.InsertSnapshot(ctx, snapshot); err != nil {
			l.Error("Failed to insert snapshot", zap.Error(err), zap.Int16("kind", int16(snapshot.Kind)))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to insert snapshot")
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
	}

	metrics.Get().SnapshotRefreshTotal.Add(ctx, 1)
	l.Info("Metric snapshots refreshed",
		zap.Int64("adventuresActive", active),
		zap.Int64("adventuresTotal", total),
		zap.Int64("users", userCount))
	span.SetStatus(codes.Ok, "Snapshots refreshed")
	return nil
}

// SnapshotHistory lists one kind's snapshots within the lookback window.
func (s *ServiceImpl) SnapshotHistory(ctx context.Context, kind models.MetricKind, lookbackDays int, now time.Time) ([]*models.MetricSnapshot, error) {
	if lookbackDays < 0 {
		return nil, models.NewValidationError("lookback_days", "must not be negative, got %d", lookbackDays)
	}
	since := now.AddDate(0, 0, -lookbackDays)
	return s.repo.SnapshotsSince(ctx, kind, since)
}

// compile-time check that the adventures repository satisfies the
// snapshot source.
var _ AdventureLister = (adventures.Repository)(nil)
