package participants

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/trailmates/trailmates/internal/app/models"
	"github.com/trailmates/trailmates/internal/db"
)

// Ensure RepositoryImpl implements the Repository interface
var _ Repository = (*RepositoryImpl)(nil)

// Repository persists participation rows. Join and Leave run the whole
// read-modify-write inside one transaction with the pair row locked, so two
// concurrent joins for the same (adventure, user) pair cannot both observe
// "no active row". Operations on different pairs proceed independently.
type Repository interface {
	Join(ctx context.Context, adventureID, userID int64) error
	Leave(ctx context.Context, adventureID, userID int64) (bool, error)
	FindByPair(ctx context.Context, adventureID, userID int64) (*models.AdventureParticipant, error)
	ListByAdventure(ctx context.Context, adventureID int64) ([]*models.AdventureParticipant, error)
	ListActiveByAdventure(ctx context.Context, adventureID int64) ([]*models.AdventureParticipant, error)
	ListActiveByUser(ctx context.Context, userID int64) ([]*models.AdventureParticipant, error)
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

const participantColumns = `adventure_id, user_id, joined_on, left_on`

// uniqueViolation is the SQLSTATE raised when an insert hits the
// UNIQUE(adventure_id, user_id) constraint.
const uniqueViolation = "23505"

func scanParticipant(row pgx.Row) (*models.AdventureParticipant, error) {
	var p models.AdventureParticipant
	if err := row.Scan(&p.AdventureID, &p.UserID, &p.JoinedOn, &p.LeftOn); err != nil {
		return nil, err
	}
	return &p, nil
}

// Join creates the pair's row on first join, rejoins by clearing left_on and
// refreshing joined_on, and returns models.ErrAlreadyParticipant when the
// row is already active. The same row is reused across rejoin cycles; there
// is never more than one row per pair.
func (r *RepositoryImpl) Join(ctx context.Context, adventureID, userID int64) error {
	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to begin join transaction", zap.Error(err))
		return fmt.Errorf("failed to begin join transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
        SELECT `+participantColumns+`
        FROM adventure_participants
        WHERE adventure_id = $1 AND user_id = $2
        FOR UPDATE
    `, adventureID, userID)

	participant, err := scanParticipant(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `
            INSERT INTO adventure_participants (adventure_id, user_id, joined_on, left_on)
            VALUES ($1, $2, NOW(), NULL)
        `, adventureID, userID)
		if err != nil {
			// FOR UPDATE cannot lock a row that does not exist yet, so two
			// concurrent first joins can both read empty and race to insert.
			// The loser's unique violation means the pair is now active.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return models.ErrAlreadyParticipant
			}
			r.logger.Error("Failed to insert participant", zap.Error(err))
			return fmt.Errorf("failed to insert participant: %w", err)
		}
	case err != nil:
		r.logger.Error("Failed to lock participant row", zap.Error(err))
		return fmt.Errorf("failed to lock participant row: %w", err)
	case participant.IsActive():
		// Guarded precondition, not a no-op: callers must be able to tell a
		// first join from a duplicate attempt.
		return models.ErrAlreadyParticipant
	default:
		_, err = tx.Exec(ctx, `
            UPDATE adventure_participants
            SET joined_on = NOW(), left_on = NULL
            WHERE adventure_id = $1 AND user_id = $2
        `, adventureID, userID)
		if err != nil {
			r.logger.Error("Failed to rejoin participant", zap.Error(err))
			return fmt.Errorf("failed to rejoin participant: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit join transaction", zap.Error(err))
		return fmt.Errorf("failed to commit join transaction: %w", err)
	}
	return nil
}

// Leave marks an active participation as left and reports whether anything
// changed. Leaving something never joined, or already left, is a benign
// false, not an error.
func (r *RepositoryImpl) Leave(ctx context.Context, adventureID, userID int64) (bool, error) {
	tag, err := r.pgpool.Exec(ctx, `
        UPDATE adventure_participants
        SET left_on = NOW()
        WHERE adventure_id = $1 AND user_id = $2 AND left_on IS NULL
    `, adventureID, userID)
	if err != nil {
		r.logger.Error("Failed to mark participant as left", zap.Error(err))
		return false, fmt.Errorf("failed to mark participant as left: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindByPair returns the pair's row or (nil, nil) when the user never
// interacted with the adventure.
func (r *RepositoryImpl) FindByPair(ctx context.Context, adventureID, userID int64) (*models.AdventureParticipant, error) {
	row := r.pgpool.QueryRow(ctx, `
        SELECT `+participantColumns+`
        FROM adventure_participants
        WHERE adventure_id = $1 AND user_id = $2
    `, adventureID, userID)

	participant, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get participant", zap.Error(err))
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return participant, nil
}

// ListByAdventure returns every participation row for an adventure, active
// and left alike, in join order.
func (r *RepositoryImpl) ListByAdventure(ctx context.Context, adventureID int64) ([]*models.AdventureParticipant, error) {
	query := `
        SELECT ` + participantColumns + `
        FROM adventure_participants
        WHERE adventure_id = $1
        ORDER BY joined_on
    `
	return r.queryParticipants(ctx, query, adventureID)
}

// ListActiveByAdventure returns the rows with left_on still null.
func (r *RepositoryImpl) ListActiveByAdventure(ctx context.Context, adventureID int64) ([]*models.AdventureParticipant, error) {
	query := `
        SELECT ` + participantColumns + `
        FROM adventure_participants
        WHERE adventure_id = $1 AND left_on IS NULL
        ORDER BY joined_on
    `
	return r.queryParticipants(ctx, query, adventureID)
}

// ListActiveByUser returns the user's current participations.
func (r *RepositoryImpl) ListActiveByUser(ctx context.Context, userID int64) ([]*models.AdventureParticipant, error) {
	query := `
        SELECT ` + participantColumns + `
        FROM adventure_participants
        WHERE user_id = $1 AND left_on IS NULL
        ORDER BY joined_on
    `
	return r.queryParticipants(ctx, query, userID)
}

func (r *RepositoryImpl) queryParticipants(ctx context.Context, query string, args ...any) ([]*models.AdventureParticipant, error) {
	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query participants", zap.Error(err))
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var participants []*models.AdventureParticipant
	for rows.Next() {
		participant, err := scanParticipant(rows)
		if err != nil {
			r.logger.Error("Failed to scan participant", zap.Error(err))
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, participant)
	}
	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating participant rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating participant rows: %w", err)
	}
	return participants, nil
}
