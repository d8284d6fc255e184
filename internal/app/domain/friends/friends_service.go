package friends

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/trailmates/trailmates/internal/app/models"
)

var _ Service = (*ServiceImpl)(nil)

// Service exposes friend lookups and the request workflow. The recommender
// only consumes FriendsOf/FriendIDsOf; the workflow exists for the rest of
// the application.
type Service interface {
	FriendsOf(ctx context.Context, userID int64) ([]*models.User, error)
	FriendIDsOf(ctx context.Context, userID int64) ([]int64, error)

	SendRequest(ctx context.Context, fromUser, toUser int64) (*models.FriendshipRequest, error)
	AcceptRequest(ctx context.Context, requestID, userID int64) error
	RejectRequest(ctx context.Context, requestID, userID int64) error
	CancelRequest(ctx context.Context, requestID, userID int64) error
	PendingRequests(ctx context.Context, userID int64) ([]*models.FriendshipRequest, error)
	Unfriend(ctx context.Context, userID, otherID int64) (bool, error)
}

type ServiceImpl struct {
	logger *zap.Logger
	repo   Repository
}

// NewService creates a new instance of ServiceImpl.
func NewService(repo Repository, logger *zap.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

// FriendsOf returns the distinct set of the user's friends. A user with no
// friends gets an empty result, not an error.
func (s *ServiceImpl) FriendsOf(ctx context.Context, userID int64) ([]*models.User, error) {
	if err := models.ValidateID("user_id", userID); err != nil {
		return nil, err
	}
	friends, err := s.repo.FriendsOf(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to get friends", zap.Error(err), zap.Int64("userID", userID))
		return nil, fmt.Errorf("failed to get friends: %w", err)
	}
	return friends, nil
}

// FriendIDsOf returns the ids of the user's friends.
func (s *ServiceImpl) FriendIDsOf(ctx context.Context, userID int64) ([]int64, error) {
	if err := models.ValidateID("user_id", userID); err != nil {
		return nil, err
	}
	ids, err := s.repo.FriendIDsOf(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to get friend ids", zap.Error(err), zap.Int64("userID", userID))
		return nil, fmt.Errorf("failed to get friend ids: %w", err)
	}
	return ids, nil
}

// SendRequest creates a friendship request. Self-requests, duplicate
// requests, and requests between existing friends are rejected.
func (s *ServiceImpl) SendRequest(ctx context.Context, fromUser, toUser int64) (*models.FriendshipRequest, error) {
	ctx, span := otel.Tracer("FriendService").Start(ctx, "SendRequest", trace.WithAttributes(
		attribute.Int64("from_user.id", fromUser),
		attribute.Int64("to_user.id", toUser),
	))
	defer span.End()

	l := s.logger.With(zap.String("method", "SendRequest"),
		zap.Int64("fromUser", fromUser),
		zap.Int64("toUser", toUser))

	if err := models.ValidateID("from_user", fromUser); err != nil {
		return nil, err
	}
	if err := models.ValidateID("to_user", toUser); err != nil {
		return nil, err
	}
	if fromUser == toUser {
		return nil, models.NewValidationError("to_user", "users cannot be friends with themselves")
	}

	already, err := s.repo.AreFriends(ctx, toUser, fromUser)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Friendship check failed")
		return nil, fmt.Errorf("failed to check friendship: %w", err)
	}
	if already {
		return nil, models.NewValidationError("to_user", "users are already friends")
	}

	existing, err := s.repo.FindRequestByPair(ctx, fromUser, toUser)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Request lookup failed")
		return nil, fmt.Errorf("failed to check existing request: %w", err)
	}
	if existing != nil {
		return nil, models.NewValidationError("to_user", "friendship already requested")
	}

	request, err := s.repo.CreateRequest(ctx, fromUser, toUser)
	if err != nil {
		l.Error("Failed to create friendship request", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create request")
		return nil, fmt.Errorf("failed to create friendship request: %w", err)
	}

	l.Info("Friendship request sent", zap.Int64("requestID", request.ID))
	span.SetStatus(codes.Ok, "Request sent")
	return request, nil
}

// AcceptRequest accepts a request addressed to userID, creating both
// directed friendship rows.
func (s *ServiceImpl) AcceptRequest(ctx context.Context, requestID, userID int64) error {
	l := s.logger.With(zap.String("method", "AcceptRequest"), zap.Int64("requestID", requestID))

	request, err := s.ownedRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.ToUser != userID {
		return models.ErrForbidden
	}

	if err := s.repo.AcceptRequest(ctx, requestID); err != nil {
		l.Error("Failed to accept friendship request", zap.Error(err))
		return fmt.Errorf("failed to accept friendship request: %w", err)
	}
	l.Info("Friendship request accepted")
	return nil
}

// RejectRequest stamps a request addressed to userID as rejected.
func (s *ServiceImpl) RejectRequest(ctx context.Context, requestID, userID int64) error {
	request, err := s.ownedRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.ToUser != userID {
		return models.ErrForbidden
	}
	if err := s.repo.RejectRequest(ctx, requestID); err != nil {
		s.logger.Error("Failed to reject friendship request", zap.Error(err), zap.Int64("requestID", requestID))
		return fmt.Errorf("failed to reject friendship request: %w", err)
	}
	return nil
}

// CancelRequest withdraws a request sent by userID.
func (s *ServiceImpl) CancelRequest(ctx context.Context, requestID, userID int64) error {
	request, err := s.ownedRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.FromUser != userID {
		return models.ErrForbidden
	}
	if err := s.repo.CancelRequest(ctx, requestID); err != nil {
		s.logger.Error("Failed to cancel friendship request", zap.Error(err), zap.Int64("requestID", requestID))
		return fmt.Errorf("failed to cancel friendship request: %w", err)
	}
	return nil
}

// PendingRequests lists undecided requests addressed to the user and marks
// them viewed.
func (s *ServiceImpl) PendingRequests(ctx context.Context, userID int64) ([]*models.FriendshipRequest, error) {
	if err := models.ValidateID("user_id", userID); err != nil {
		return nil, err
	}
	requests, err := s.repo.PendingRequestsFor(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to list pending requests", zap.Error(err), zap.Int64("userID", userID))
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	for _, request := range requests {
		if request.ViewedOn == nil {
			if err := s.repo.MarkViewed(ctx, request.ID); err != nil {
				s.logger.Warn("Failed to mark request viewed", zap.Error(err), zap.Int64("requestID", request.ID))
			}
		}
	}
	return requests, nil
}

// Unfriend removes a friendship in both directions. Returns false when the
// users were not friends.
func (s *ServiceImpl) Unfriend(ctx context.Context, userID, otherID int64) (bool, error) {
	if err := models.ValidateID("user_id", userID); err != nil {
		return false, err
	}
	if err := models.ValidateID("other_id", otherID); err != nil {
		return false, err
	}
	removed, err := s.repo.RemoveFriend(ctx, userID, otherID)
	if err != nil {
		s.logger.Error("Failed to remove friendship", zap.Error(err))
		return false, fmt.Errorf("failed to remove friendship: %w", err)
	}
	return removed, nil
}

func (s *ServiceImpl) ownedRequest(ctx context.Context, requestID int64) (*models.FriendshipRequest, error) {
	if err := models.ValidateID("request_id", requestID); err != nil {
		return nil, err
	}
	request, err := s.repo.FindRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch friendship request: %w", err)
	}
	if request == nil {
		return nil, fmt.Errorf("friendship request %d not found", requestID)
	}
	return request, nil
}
