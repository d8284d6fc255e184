package users

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

// Repository is the read-only user lookup used to resolve participant and
// friend references. Account management lives outside this core.
type Repository interface {
	FindByID(ctx context.Context, userID int64) (*models.User, error)
	FindByIDs(ctx context.Context, ids []int64) (map[int64]*models.User, error)
	Count(ctx context.Context) (int64, error)
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

// FindByID returns the user or (nil, nil) when no such user exists.
func (r *RepositoryImpl) FindByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT id, username, email, registered_on FROM users WHERE id = $1`
	var u models.User
	err := r.pgpool.QueryRow(ctx, query, userID).Scan(&u.ID, &u.Username, &u.Email, &u.RegisteredOn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get user", zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// FindByIDs returns the users that exist among ids, keyed by id. Missing
// ids are simply absent from the map.
func (r *RepositoryImpl) FindByIDs(ctx context.Context, ids []int64) (map[int64]*models.User, error) {
	if len(ids) == 0 {
		return map[int64]*models.User{}, nil
	}

	query := `SELECT id, username, email, registered_on FROM users WHERE id = ANY($1)`
	rows, err := r.pgpool.Query(ctx, query, ids)
	if err != nil {
		r.logger.Error("Failed to query users", zap.Error(err))
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make(map[int64]*models.User, len(ids))
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.RegisteredOn); err != nil {
			r.logger.Error("Failed to scan user", zap.Error(err))
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users[u.ID] = &u
	}
	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating user rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, nil
}

// Count returns the total number of registered users.
func (r *RepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pgpool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		r.logger.Error("Failed to count users", zap.Error(err))
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
