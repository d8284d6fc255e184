package adventures

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/trailmates/trailmates/internal/app/models"
)

var _ Service = (*ServiceImpl)(nil)

// Service exposes the adventure lifecycle: creation and creator-only edits,
// soft deletion, and activity queries. Activity is never materialized; every
// read evaluates the predicate against the now it was handed.
type Service interface {
	Create(ctx context.Context, creatorID int64, scheduledDate time.Time, mode models.TravelMode, description string, waypoints []models.Waypoint) (*models.Adventure, error)
	Update(ctx context.Context, adventureID, editorID int64, params models.UpdateAdventureRequest) (*models.Adventure, error)
	Delete(ctx context.Context, adventureID, editorID int64) error
	Disable(ctx context.Context, adventureID int64) error
	Enable(ctx context.Context, adventureID int64) error

	FindByID(ctx context.Context, adventureID int64) (*models.Adventure, error)
	ListActive(ctx context.Context, now time.Time) ([]*models.Adventure, error)
	ListByCreator(ctx context.Context, creatorID int64, activeOnly bool, now time.Time) ([]*models.Adventure, error)
	Search(ctx context.Context, filter models.AdventureFilter) ([]*models.Adventure, error)

	ReplaceRoute(ctx context.Context, adventureID, editorID int64, waypoints []models.Waypoint) error
	Route(ctx context.Context, adventureID int64) ([]*models.Coordinate, error)
}

type ServiceImpl struct {
	logger *zap.Logger
	repo   Repository
	now    func() time.Time
}

// NewService creates a new instance of ServiceImpl.
func NewService(repo Repository, logger *zap.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
		now:    time.Now,
	}
}

// FilterActive returns the adventures active at the given instant, in input
// order (stable filter). The same now must be used across one logical pass.
func FilterActive(adventures []*models.Adventure, now time.Time) []*models.Adventure {
	active := make([]*models.Adventure, 0, len(adventures))
	for _, a := range adventures {
		if a.IsActiveAt(now) {
			active = append(active, a)
		}
	}
	return active
}

// Create validates input, persists the adventure, and stores its route.
func (s *ServiceImpl) Create(ctx context.Context, creatorID int64, scheduledDate time.Time, mode models.TravelMode, description string, waypoints []models.Waypoint) (*models.Adventure, error) {
	ctx, span := otel.Tracer("AdventureService").Start(ctx, "Create", trace.WithAttributes(
		attribute.Int64("creator.id", creatorID),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "Create"), zap.Int64("creatorID", creatorID))

	if err := models.ValidateID("creator_id", creatorID); err != nil {
		return nil, err
	}
	if err := models.ValidateWaypoints(waypoints); err != nil {
		return nil, err
	}

	adventure := &models.Adventure{
		CreatorID:     creatorID,
		ScheduledDate: scheduledDate,
		Mode:          mode,
		Description:   description,
		CreatedOn:     s.now(),
	}

	id, err := s.repo.Create(ctx, adventure)
	if err != nil {
		l.Error("Failed to create adventure", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create adventure")
		return nil, fmt.Errorf("failed to create adventure: %w", err)
	}
	adventure.ID = id

	if len(waypoints) > 0 {
		if err := s.repo.ReplaceRoute(ctx, id, waypoints); err != nil {
			l.Error("Failed to store adventure route", zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to store route")
			return nil, fmt.Errorf("failed to store adventure route: %w", err)
		}
	}

	l.Info("Adventure created", zap.Int64("adventureID", id))
	span.SetStatus(codes.Ok, "Adventure created")
	return adventure, nil
}

// Update applies field edits. Only the creator may mutate an adventure.
func (s *ServiceImpl) Update(ctx context.Context, adventureID, editorID int64, params models.UpdateAdventureRequest) (*models.Adventure, error) {
	ctx, span := otel.Tracer("AdventureService").Start(ctx, "Update", trace.WithAttributes(
		attribute.Int64("adventure.id", adventureID),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "Update"),
		zap.Int64("adventureID", adventureID),
		zap.Int64("editorID", editorID))

	adventure, err := s.authorizedAdventure(ctx, adventureID, editorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Adventure not editable")
		return nil, err
	}

	if params.ScheduledDate != nil {
		adventure.ScheduledDate = *params.ScheduledDate
	}
	if params.Mode != nil {
		adventure.Mode = *params.Mode
	}
	if params.Description != nil {
		adventure.Description = *params.Description
	}

	if err := s.repo.Update(ctx, adventure); err != nil {
		l.Error("Failed to update adventure", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update adventure")
		return nil, fmt.Errorf("failed to update adventure: %w", err)
	}

	l.Info("Adventure updated")
	span.SetStatus(codes.Ok, "Adventure updated")
	return adventure, nil
}

// Delete marks the adventure as deleted (soft tombstone). Only the creator
// may delete it.
func (s *ServiceImpl) Delete(ctx context.Context, adventureID, editorID int64) error {
	ctx, span := otel.Tracer("AdventureService").Start(ctx, "Delete", trace.WithAttributes(
		attribute.Int64("adventure.id", adventureID),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "Delete"),
		zap.Int64("adventureID", adventureID),
		zap.Int64("editorID", editorID))

	if _, err := s.authorizedAdventure(ctx, adventureID, editorID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Adventure not deletable")
		return err
	}

	if err := s.repo.SoftDelete(ctx, adventureID, s.now()); err != nil {
		l.Error("Failed to delete adventure", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to delete adventure")
		return fmt.Errorf("failed to delete adventure: %w", err)
	}

	l.Info("Adventure deleted")
	span.SetStatus(codes.Ok, "Adventure deleted")
	return nil
}

// Disable hides an adventure from activity queries without touching its
// rows. A moderation concern, so no creator check here.
func (s *ServiceImpl) Disable(ctx context.Context, adventureID int64) error {
	if err := models.ValidateID("adventure_id", adventureID); err != nil {
		return err
	}
	if err := s.repo.SetDisabled(ctx, adventureID, true, s.now()); err != nil {
		s.logger.Error("Failed to disable adventure", zap.Error(err), zap.Int64("adventureID", adventureID))
		return fmt.Errorf("failed to disable adventure: %w", err)
	}
	return nil
}

// Enable reverses Disable.
func (s *ServiceImpl) Enable(ctx context.Context, adventureID int64) error {
	if err := models.ValidateID("adventure_id", adventureID); err != nil {
		return err
	}
	if err := s.repo.SetDisabled(ctx, adventureID, false, s.now()); err != nil {
		s.logger.Error("Failed to enable adventure", zap.Error(err), zap.Int64("adventureID", adventureID))
		return fmt.Errorf("failed to enable adventure: %w", err)
	}
	return nil
}

// FindByID returns the adventure or (nil, nil) when it does not exist.
func (s *ServiceImpl) FindByID(ctx context.Context, adventureID int64) (*models.Adventure, error) {
	if err := models.ValidateID("adventure_id", adventureID); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, adventureID)
}

// ListActive returns the adventures active at now, preserving repository
// order.
func (s *ServiceImpl) ListActive(ctx context.Context, now time.Time) ([]*models.Adventure, error) {
	ctx, span := otel.Tracer("AdventureService").Start(ctx, "ListActive")
	defer span.End()

	adventures, err := s.repo.ListAll(ctx)
	if err != nil {
		s.logger.Error("Failed to list adventures", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list adventures")
		return nil, fmt.Errorf("failed to list adventures: %w", err)
	}

	active := FilterActive(adventures, now)
	span.SetStatus(codes.Ok, "Active adventures listed")
	return active, nil
}

// ListByCreator returns the adventures a user created, optionally reduced to
// the ones active at now.
func (s *ServiceImpl) ListByCreator(ctx context.Context, creatorID int64, activeOnly bool, now time.Time) ([]*models.Adventure, error) {
	if err := models.ValidateID("creator_id", creatorID); err != nil {
		return nil, err
	}

	adventures, err := s.repo.ListByCreator(ctx, creatorID)
	if err != nil {
		s.logger.Error("Failed to list adventures by creator", zap.Error(err), zap.Int64("creatorID", creatorID))
		return nil, fmt.Errorf("failed to list adventures by creator: %w", err)
	}
	if activeOnly {
		adventures = FilterActive(adventures, now)
	}
	return adventures, nil
}

// Search runs a filtered adventure query.
func (s *ServiceImpl) Search(ctx context.Context, filter models.AdventureFilter) ([]*models.Adventure, error) {
	ctx, span := otel.Tracer("AdventureService").Start(ctx, "Search")
	defer span.End()

	adventures, err := s.repo.Search(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to search adventures", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to search adventures")
		return nil, fmt.Errorf("failed to search adventures: %w", err)
	}
	span.SetStatus(codes.Ok, "Adventures searched")
	return adventures, nil
}

// ReplaceRoute validates and swaps the adventure's full waypoint set. Only
// the creator may edit the route.
func (s *ServiceImpl) ReplaceRoute(ctx context.Context, adventureID, editorID int64, waypoints []models.Waypoint) error {
	ctx, span := otel.Tracer("AdventureService").Start(ctx, "ReplaceRoute", trace.WithAttributes(
		attribute.Int64("adventure.id", adventureID),
		attribute.Int("waypoints", len(waypoints)),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "ReplaceRoute"), zap.Int64("adventureID", adventureID))

	if err := models.ValidateWaypoints(waypoints); err != nil {
		return err
	}
	if _, err := s.authorizedAdventure(ctx, adventureID, editorID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Route not editable")
		return err
	}

	if err := s.repo.ReplaceRoute(ctx, adventureID, waypoints); err != nil {
		l.Error("Failed to replace route", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to replace route")
		return fmt.Errorf("failed to replace route: %w", err)
	}

	l.Info("Route replaced", zap.Int("waypoints", len(waypoints)))
	span.SetStatus(codes.Ok, "Route replaced")
	return nil
}

// Route returns the adventure's coordinates in path order.
func (s *ServiceImpl) Route(ctx context.Context, adventureID int64) ([]*models.Coordinate, error) {
	if err := models.ValidateID("adventure_id", adventureID); err != nil {
		return nil, err
	}
	return s.repo.RouteCoordinates(ctx, adventureID)
}

func (s *ServiceImpl) authorizedAdventure(ctx context.Context, adventureID, editorID int64) (*models.Adventure, error) {
	if err := models.ValidateID("adventure_id", adventureID); err != nil {
		return nil, err
	}
	if err := models.ValidateID("editor_id", editorID); err != nil {
		return nil, err
	}

	adventure, err := s.repo.FindByID(ctx, adventureID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch adventure: %w", err)
	}
	if adventure == nil {
		return nil, fmt.Errorf("adventure %d not found", adventureID)
	}
	if adventure.CreatorID != editorID {
		s.logger.Warn("Adventure mutation attempted by non-creator",
			zap.Int64("adventureID", adventureID),
			zap.Int64("editorID", editorID))
		return nil, models.ErrForbidden
	}
	return adventure, nil
}
