package participants

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/trailmates/trailmates/internal/app/models"
	"github.com/trailmates/trailmates/internal/observability/metrics"
)

var _ Service = (*ServiceImpl)(nil)

// UserFinder resolves user ids to user records. Missing ids are simply
// absent from the result, never an error.
type UserFinder interface {
	FindByIDs(ctx context.Context, ids []int64) (map[int64]*models.User, error)
}

// AdventureFinder resolves an adventure id, returning (nil, nil) for
// adventures that no longer exist.
type AdventureFinder interface {
	FindByID(ctx context.Context, adventureID int64) (*models.Adventure, error)
}

// Service is the join/leave/rejoin state machine per (adventure, user)
// pair. The only domain failure it raises is models.ErrAlreadyParticipant;
// every missing-entity case degrades to an empty result or false. Callers
// are responsible for forbidding an adventure's creator from leaving their
// own adventure; the tracker has no concept of "creator".
type Service interface {
	Join(ctx context.Context, adventureID, userID int64) error
	Leave(ctx context.Context, adventureID, userID int64) (bool, error)
	ActiveParticipants(ctx context.Context, adventureID int64) ([]*models.User, error)
	Participants(ctx context.Context, adventureID int64) ([]*models.User, error)
	UserJoinedAdventures(ctx context.Context, userID int64) ([]*models.Adventure, error)
}

type ServiceImpl struct {
	logger     *zap.Logger
	repo       Repository
	users      UserFinder
	adventures AdventureFinder
}

// NewService creates a new instance of ServiceImpl.
func NewService(repo Repository, users UserFinder, adventures AdventureFinder, logger *zap.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:     logger,
		repo:       repo,
		users:      users,
		adventures: adventures,
	}
}

// Join makes the user an active participant. First join inserts the row,
// rejoin reuses it with a refreshed joined_on; a join while already active
// fails with models.ErrAlreadyParticipant and leaves state untouched.
func (s *ServiceImpl) Join(ctx context.Context, adventureID, userID int64) error {
	ctx, span := otel.Tracer("ParticipantService").Start(ctx, "Join", trace.WithAttributes(
		attribute.Int64("adventure.id", adventureID),
		attribute.Int64("user.id", userID),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "Join"),
		zap.Int64("adventureID", adventureID),
		zap.Int64("userID", userID))

	if err := models.ValidateID("adventure_id", adventureID); err != nil {
		return err
	}
	if err := models.ValidateID("user_id", userID); err != nil {
		return err
	}

	err := s.repo.Join(ctx, adventureID, userID)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyParticipant) {
			metrics.Get().DuplicateJoinsTotal.Add(ctx, 1)
			l.Debug("Duplicate join attempt")
			span.SetStatus(codes.Error, "Already participant")
			return err
		}
		l.Error("Failed to join adventure", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to join adventure")
		return fmt.Errorf("failed to join adventure: %w", err)
	}

	metrics.Get().JoinsTotal.Add(ctx, 1)
	l.Info("User joined adventure")
	span.SetStatus(codes.Ok, "Joined")
	return nil
}

// Leave marks the participation as left. Returns false without error when
// there was nothing to leave.
func (s *ServiceImpl) Leave(ctx context.Context, adventureID, userID int64) (bool, error) {
	ctx, span := otel.Tracer("ParticipantService").Start(ctx, "Leave", trace.WithAttributes(
		attribute.Int64("adventure.id", adventureID),
		attribute.Int64("user.id", userID),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "Leave"),
		zap.Int64("adventureID", adventureID),
		zap.Int64("userID", userID))

	if err := models.ValidateID("adventure_id", adventureID); err != nil {
		return false, err
	}
	if err := models.ValidateID("user_id", userID); err != nil {
		return false, err
	}

	left, err := s.repo.Leave(ctx, adventureID, userID)
	if err != nil {
		l.Error("Failed to leave adventure", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to leave adventure")
		return false, fmt.Errorf("failed to leave adventure: %w", err)
	}

	if left {
		metrics.Get().LeavesTotal.Add(ctx, 1)
		l.Info("User left adventure")
	} else {
		l.Debug("Nothing to leave")
	}
	span.SetStatus(codes.Ok, "Leave processed")
	return left, nil
}

// ActiveParticipants resolves the adventure's current participants to user
// records, in join order. Dangling user references are silently skipped.
func (s *ServiceImpl) ActiveParticipants(ctx context.Context, adventureID int64) ([]*models.User, error) {
	if err := models.ValidateID("adventure_id", adventureID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListActiveByAdventure(ctx, adventureID)
	if err != nil {
		s.logger.Error("Failed to list active participants", zap.Error(err), zap.Int64("adventureID", adventureID))
		return nil, fmt.Errorf("failed to list active participants: %w", err)
	}
	return s.resolveUsers(ctx, rows)
}

// Participants resolves every participation row, past and present, to user
// records. Same dangling-reference policy as ActiveParticipants.
func (s *ServiceImpl) Participants(ctx context.Context, adventureID int64) ([]*models.User, error) {
	if err := models.ValidateID("adventure_id", adventureID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByAdventure(ctx, adventureID)
	if err != nil {
		s.logger.Error("Failed to list participants", zap.Error(err), zap.Int64("adventureID", adventureID))
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return s.resolveUsers(ctx, rows)
}

// UserJoinedAdventures returns the adventures the user currently actively
// participates in. Adventures that no longer exist are skipped.
func (s *ServiceImpl) UserJoinedAdventures(ctx context.Context, userID int64) ([]*models.Adventure, error) {
	if err := models.ValidateID("user_id", userID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to list user participations", zap.Error(err), zap.Int64("userID", userID))
		return nil, fmt.Errorf("failed to list user participations: %w", err)
	}

	adventures := make([]*models.Adventure, 0, len(rows))
	for _, row := range rows {
		adventure, err := s.adventures.FindByID(ctx, row.AdventureID)
		if err != nil {
			s.logger.Error("Failed to resolve adventure", zap.Error(err), zap.Int64("adventureID", row.AdventureID))
			return nil, fmt.Errorf("failed to resolve adventure: %w", err)
		}
		if adventure == nil {
			continue
		}
		adventures = append(adventures, adventure)
	}
	return adventures, nil
}

func (s *ServiceImpl) resolveUsers(ctx context.Context, rows []*models.AdventureParticipant) ([]*models.User, error) {
	if len(rows) == 0 {
		return []*models.User{}, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	byID, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("Failed to resolve participant users", zap.Error(err))
		return nil, fmt.Errorf("failed to resolve participant users: %w", err)
	}

	users := make([]*models.User, 0, len(rows))
	for _, row := range rows {
		if user, ok := byID[row.UserID]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}
