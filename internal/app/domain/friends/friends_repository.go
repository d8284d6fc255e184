package friends

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/trailmates/trailmates/internal/app/models"
	"github.com/trailmates/trailmates/internal/db"
)

// Ensure RepositoryImpl implements the Repository interface
var _ Repository = (*RepositoryImpl)(nil)

// Repository persists the social graph. Friendships are bidirectional by
// duplication: accepting a request inserts both directed rows in one
// transaction, so friend lookups query a single direction.
type Repository interface {
	FriendIDsOf(ctx context.Context, userID int64) ([]int64, error)
	FriendsOf(ctx context.Context, userID int64) ([]*models.User, error)
	AreFriends(ctx context.Context, userID, otherID int64) (bool, error)
	RemoveFriend(ctx context.Context, userID, otherID int64) (bool, error)

	CreateRequest(ctx context.Context, fromUser, toUser int64) (*models.FriendshipRequest, error)
	FindRequest(ctx context.Context, requestID int64) (*models.FriendshipRequest, error)
	FindRequestByPair(ctx context.Context, fromUser, toUser int64) (*models.FriendshipRequest, error)
	PendingRequestsFor(ctx context.Context, userID int64) ([]*models.FriendshipRequest, error)
	AcceptRequest(ctx context.Context, requestID int64) error
	RejectRequest(ctx context.Context, requestID int64) error
	CancelRequest(ctx context.Context, requestID int64) error
	MarkViewed(ctx context.Context, requestID int64) error
}

// RepositoryImpl struct holds the logger and database connection pool
type RepositoryImpl struct {
	logger *zap.Logger
	pgpool db.PGXPool
}

func NewRepository(pgxpool db.PGXPool, logger *zap.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgxpool,
	}
}

// FriendIDsOf returns the distinct ids of the user's friends.
func (r *RepositoryImpl) FriendIDsOf(ctx context.Context, userID int64) ([]int64, error) {
	query := `SELECT DISTINCT from_user FROM friends WHERE to_user = $1`
	rows, err := r.pgpool.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to query friend ids", zap.Error(err))
		return nil, fmt.Errorf("failed to query friend ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			r.logger.Error("Failed to scan friend id", zap.Error(err))
			return nil, fmt.Errorf("failed to scan friend id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating friend id rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating friend id rows: %w", err)
	}
	return ids, nil
}

// FriendsOf returns the distinct users with a friendship edge to userID.
func (r *RepositoryImpl) FriendsOf(ctx context.Context, userID int64) ([]*models.User, error) {
	query := `
        SELECT DISTINCT u.id, u.username, u.email, u.registered_on
        FROM friends f
        INNER JOIN users u ON u.id = f.from_user
        WHERE f.to_user = $1
        ORDER BY u.id
    `
	rows, err := r.pgpool.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to query friends", zap.Error(err))
		return nil, fmt.Errorf("failed to query friends: %w", err)
	}
	defer rows.Close()

	var friends []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.RegisteredOn); err != nil {
			r.logger.Error("Failed to scan friend", zap.Error(err))
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		friends = append(friends, &u)
	}
	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating friend rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating friend rows: %w", err)
	}
	return friends, nil
}

// AreFriends reports whether a directed edge from otherID to userID exists.
func (r *RepositoryImpl) AreFriends(ctx context.Context, userID, otherID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM friends WHERE to_user = $1 AND from_user = $2)`
	if err := r.pgpool.QueryRow(ctx, query, userID, otherID).Scan(&exists); err != nil {
		r.logger.Error("Failed to check friendship", zap.Error(err))
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return exists, nil
}

// RemoveFriend deletes both directed rows of a friendship. Returns false
// when the users were not friends.
func (r *RepositoryImpl) RemoveFriend(ctx context.Context, userID, otherID int64) (bool, error) {
	query := `
        DELETE FROM friends
        WHERE (from_user = $1 AND to_user = $2) OR (from_user = $2 AND to_user = $1)
    `
	tag, err := r.pgpool.Exec(ctx, query, userID, otherID)
	if err != nil {
		r.logger.Error("Failed to remove friendship", zap.Error(err))
		return false, fmt.Errorf("failed to remove friendship: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const requestColumns = `id, from_user, to_user, created_on, rejected_on, viewed_on`

func scanRequest(row pgx.Row) (*models.FriendshipRequest, error) {
	var req models.FriendshipRequest
	err := row.Scan(&req.ID, &req.FromUser, &req.ToUser, &req.CreatedOn, &req.RejectedOn, &req.ViewedOn)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// CreateRequest inserts a friendship request.
func (r *RepositoryImpl) CreateRequest(ctx context.Context, fromUser, toUser int64) (*models.FriendshipRequest, error) {
	query := `
        INSERT INTO friendship_requests (from_user, to_user, created_on)
        VALUES ($1, $2, NOW())
        RETURNING ` + requestColumns
	request, err := scanRequest(r.pgpool.QueryRow(ctx, query, fromUser, toUser))
	if err != nil {
		r.logger.Error("Failed to create friendship request", zap.Error(err))
		return nil, fmt.Errorf("failed to create friendship request: %w", err)
	}
	return request, nil
}

// FindRequest returns the request or (nil, nil) when it does not exist.
func (r *RepositoryImpl) FindRequest(ctx context.Context, requestID int64) (*models.FriendshipRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM friendship_requests WHERE id = $1`
	request, err := scanRequest(r.pgpool.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get friendship request", zap.Error(err))
		return nil, fmt.Errorf("failed to get friendship request: %w", err)
	}
	return request, nil
}

// FindRequestByPair returns the pending request from one user to another or
// (nil, nil).
func (r *RepositoryImpl) FindRequestByPair(ctx context.Context, fromUser, toUser int64) (*models.FriendshipRequest, error) {
	query := `
        SELECT ` + requestColumns + `
        FROM friendship_requests
        WHERE from_user = $1 AND to_user = $2 AND rejected_on IS NULL
    `
	request, err := scanRequest(r.pgpool.QueryRow(ctx, query, fromUser, toUser))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get friendship request by pair", zap.Error(err))
		return nil, fmt.Errorf("failed to get friendship request by pair: %w", err)
	}
	return request, nil
}

// PendingRequestsFor returns the undecided requests addressed to a user,
// oldest first.
func (r *RepositoryImpl) PendingRequestsFor(ctx context.Context, userID int64) ([]*models.FriendshipRequest, error) {
	query := `
        SELECT ` + requestColumns + `
        FROM friendship_requests
        WHERE to_user = $1 AND rejected_on IS NULL
        ORDER BY created_on
    `
	rows, err := r.pgpool.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to query pending requests", zap.Error(err))
		return nil, fmt.Errorf("failed to query pending requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.FriendshipRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			r.logger.Error("Failed to scan friendship request", zap.Error(err))
			return nil, fmt.Errorf("failed to scan friendship request: %w", err)
		}
		requests = append(requests, request)
	}
	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating request rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating request rows: %w", err)
	}
	return requests, nil
}

// AcceptRequest turns a request into a friendship: both directed rows are
// inserted, the request is removed, and any reverse request is removed too,
// all in one transaction.
func (r *RepositoryImpl) AcceptRequest(ctx context.Context, requestID int64) error {
	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to begin accept transaction", zap.Error(err))
		return fmt.Errorf("failed to begin accept transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	request, err := scanRequest(tx.QueryRow(ctx, `
        SELECT `+requestColumns+`
        FROM friendship_requests
        WHERE id = $1
        FOR UPDATE
    `, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("friendship request %d not found", requestID)
		}
		r.logger.Error("Failed to lock friendship request", zap.Error(err))
		return fmt.Errorf("failed to lock friendship request: %w", err)
	}

	insert := `INSERT INTO friends (from_user, to_user, created_on) VALUES ($1, $2, NOW())`
	if _, err = tx.Exec(ctx, insert, request.FromUser, request.ToUser); err != nil {
		r.logger.Error("Failed to insert friendship edge", zap.Error(err))
		return fmt.Errorf("failed to insert friendship edge: %w", err)
	}
	if _, err = tx.Exec(ctx, insert, request.ToUser, request.FromUser); err != nil {
		r.logger.Error("Failed to insert reverse friendship edge", zap.Error(err))
		return fmt.Errorf("failed to insert reverse friendship edge: %w", err)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM friendship_requests WHERE id = $1`, requestID); err != nil {
		r.logger.Error("Failed to delete accepted request", zap.Error(err))
		return fmt.Errorf("failed to delete accepted request: %w", err)
	}
	// A reverse request would now be redundant.
	_, err = tx.Exec(ctx, `DELETE FROM friendship_requests WHERE from_user = $1 AND to_user = $2`,
		request.ToUser, request.FromUser)
	if err != nil {
		r.logger.Error("Failed to delete reverse request", zap.Error(err))
		return fmt.Errorf("failed to delete reverse request: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit accept transaction", zap.Error(err))
		return fmt.Errorf("failed to commit accept transaction: %w", err)
	}
	return nil
}

// RejectRequest stamps the request rejected. The row is retained.
func (r *RepositoryImpl) RejectRequest(ctx context.Context, requestID int64) error {
	tag, err := r.pgpool.Exec(ctx, `
        UPDATE friendship_requests SET rejected_on = NOW() WHERE id = $1 AND rejected_on IS NULL
    `, requestID)
	if err != nil {
		r.logger.Error("Failed to reject friendship request", zap.Error(err))
		return fmt.Errorf("failed to reject friendship request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no pending friendship request with ID %d", requestID)
	}
	return nil
}

// CancelRequest removes the request entirely (the sender withdrew it).
func (r *RepositoryImpl) CancelRequest(ctx context.Context, requestID int64) error {
	tag, err := r.pgpool.Exec(ctx, `DELETE FROM friendship_requests WHERE id = $1`, requestID)
	if err != nil {
		r.logger.Error("Failed to cancel friendship request", zap.Error(err))
		return fmt.Errorf("failed to cancel friendship request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no friendship request with ID %d", requestID)
	}
	return nil
}

// MarkViewed records that the recipient has seen the request.
func (r *RepositoryImpl) MarkViewed(ctx context.Context, requestID int64) error {
	_, err := r.pgpool.Exec(ctx, `
        UPDATE friendship_requests SET viewed_on = NOW() WHERE id = $1 AND viewed_on IS NULL
    `, requestID)
	if err != nil {
		r.logger.Error("Failed to mark friendship request viewed", zap.Error(err))
		return fmt.Errorf("failed to mark friendship request viewed: %w", err)
	}
	return nil
}
