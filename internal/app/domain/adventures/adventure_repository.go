package adventures

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/trailmates/trailmates/internal/app/models"
	"github.com/trailmates/trailmates/internal/db"
)

// Ensure RepositoryImpl implements the Repository interface
var _ Repository = (*RepositoryImpl)(nil)

// Repository defines persistence for adventures and their routes. Absence of
// an adventure is a normal outcome and is reported as (nil, nil), never as
// an error.
type Repository interface {
	Create(ctx context.Context, adventure *models.Adventure) (int64, error)
	Update(ctx context.Context, adventure *models.Adventure) error
	SoftDelete(ctx context.Context, adventureID int64, deletedOn time.Time) error
	SetDisabled(ctx context.Context, adventureID int64, disabled bool, at time.Time) error
	FindByID(ctx context.Context, adventureID int64) (*models.Adventure, error)
	ListAll(ctx context.Context) ([]*models.Adventure, error)
	ListByCreator(ctx context.Context, creatorID int64) ([]*models.Adventure, error)
	Search(ctx context.Context, filter models.AdventureFilter) ([]*models.Adventure, error)

	ReplaceRoute(ctx context.Context, adventureID int64, waypoints []models.Waypoint) error
	RouteCoordinates(ctx context.Context, adventureID int64) ([]*models.Coordinate, error)
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

const adventureColumns = `id, creator_id, scheduled_date, mode, description, created_on,
       disabled, disabled_on, deleted, deleted_on`

func scanAdventure(row pgx.Row) (*models.Adventure, error) {
	var a models.Adventure
	err := row.Scan(
		&a.ID, &a.CreatorID, &a.ScheduledDate, &a.Mode, &a.Description, &a.CreatedOn,
		&a.Disabled, &a.DisabledOn, &a.Deleted, &a.DeletedOn,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new adventure and returns its assigned id.
func (r *RepositoryImpl) Create(ctx context.Context, adventure *models.Adventure) (int64, error) {
	query := `
        INSERT INTO adventures (creator_id, scheduled_date, mode, description, created_on, disabled, deleted)
        VALUES ($1, $2, $3, $4, $5, false, false)
        RETURNING id
    `
	var id int64
	err := r.pgpool.QueryRow(ctx, query,
		adventure.CreatorID, adventure.ScheduledDate, adventure.Mode, adventure.Description, adventure.CreatedOn,
	).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to create adventure", zap.Error(err))
		return 0, fmt.Errorf("failed to create adventure: %w", err)
	}
	return id, nil
}

// Update rewrites the mutable fields of an adventure.
func (r *RepositoryImpl) Update(ctx context.Context, adventure *models.Adventure) error {
	query := `
        UPDATE adventures
        SET scheduled_date = $1, mode = $2, description = $3
        WHERE id = $4
    `
	result, err := r.pgpool.Exec(ctx, query,
		adventure.ScheduledDate, adventure.Mode, adventure.Description, adventure.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update adventure", zap.Error(err))
		return fmt.Errorf("failed to update adventure: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no adventure found with ID %d", adventure.ID)
	}
	return nil
}

// SoftDelete marks an adventure deleted. The row is retained forever; the
// tombstone only flips the flag and records when it happened.
func (r *RepositoryImpl) SoftDelete(ctx context.Context, adventureID int64, deletedOn time.Time) error {
	query := `UPDATE adventures SET deleted = true, deleted_on = $1 WHERE id = $2 AND deleted = false`
	result, err := r.pgpool.Exec(ctx, query, deletedOn, adventureID)
	if err != nil {
		r.logger.Error("Failed to delete adventure", zap.Error(err))
		return fmt.Errorf("failed to delete adventure: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no active adventure found with ID %d", adventureID)
	}
	return nil
}

// SetDisabled flips the moderation flag. Disabling records the timestamp;
// re-enabling clears it.
func (r *RepositoryImpl) SetDisabled(ctx context.Context, adventureID int64, disabled bool, at time.Time) error {
	var query string
	var args []any
	if disabled {
		query = `UPDATE adventures SET disabled = true, disabled_on = $1 WHERE id = $2`
		args = []any{at, adventureID}
	} else {
		query = `UPDATE adventures SET disabled = false, disabled_on = NULL WHERE id = $1`
		args = []any{adventureID}
	}
	tag, err := r.pgpool.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to set adventure disabled flag", zap.Error(err))
		return fmt.Errorf("failed to set adventure disabled flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no adventure found with ID %d", adventureID)
	}
	return nil
}

// FindByID retrieves an adventure by id, returning (nil, nil) when no such
// row exists.
func (r *RepositoryImpl) FindByID(ctx context.Context, adventureID int64) (*models.Adventure, error) {
	query := `SELECT ` + adventureColumns + ` FROM adventures WHERE id = $1`
	adventure, err := scanAdventure(r.pgpool.QueryRow(ctx, query, adventureID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get adventure", zap.Error(err))
		return nil, fmt.Errorf("failed to get adventure: %w", err)
	}
	return adventure, nil
}

// ListAll retrieves every adventure, tombstoned ones included. Activity is
// judged by the caller against a single point in time.
func (r *RepositoryImpl) ListAll(ctx context.Context) ([]*models.Adventure, error) {
	query := `SELECT ` + adventureColumns + ` FROM adventures ORDER BY id`
	return r.queryAdventures(ctx, query)
}

// ListByCreator retrieves the adventures a user created, newest first.
func (r *RepositoryImpl) ListByCreator(ctx context.Context, creatorID int64) ([]*models.Adventure, error) {
	query := `SELECT ` + adventureColumns + ` FROM adventures WHERE creator_id = $1 ORDER BY created_on DESC`
	return r.queryAdventures(ctx, query, creatorID)
}

// Search retrieves adventures matching the filter. The query is assembled
// dynamically; a bounding box matches adventures with at least one route
// coordinate inside it.
func (r *RepositoryImpl) Search(ctx context.Context, filter models.AdventureFilter) ([]*models.Adventure, error) {
	builder := sq.Select(
		"a.id", "a.creator_id", "a.scheduled_date", "a.mode", "a.description", "a.created_on",
		"a.disabled", "a.disabled_on", "a.deleted", "a.deleted_on",
	).From("adventures a").
		Where(sq.Eq{"a.deleted": false}).
		OrderBy("a.created_on DESC").
		PlaceholderFormat(sq.Dollar)

	if filter.CreatorID != nil {
		builder = builder.Where(sq.Eq{"a.creator_id": *filter.CreatorID})
	}
	if filter.Mode != nil {
		builder = builder.Where(sq.Eq{"a.mode": *filter.Mode})
	}
	if filter.CreatedSince != nil {
		builder = builder.Where(sq.GtOrEq{"a.created_on": *filter.CreatedSince})
	}
	if filter.Bounds != nil {
		builder = builder.
			Distinct().
			Join("coordinates c ON c.adventure_id = a.id").
			Where(sq.And{
				sq.GtOrEq{"c.latitude": filter.Bounds.SouthWest.Latitude},
				sq.LtOrEq{"c.latitude": filter.Bounds.NorthEast.Latitude},
				sq.GtOrEq{"c.longitude": filter.Bounds.SouthWest.Longitude},
				sq.LtOrEq{"c.longitude": filter.Bounds.NorthEast.Longitude},
			})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		r.logger.Error("Failed to build adventure search query", zap.Error(err))
		return nil, fmt.Errorf("failed to build adventure search query: %w", err)
	}
	return r.queryAdventures(ctx, query, args...)
}

func (r *RepositoryImpl) queryAdventures(ctx context.Context, query string, args ...any) ([]*models.Adventure, error) {
	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query adventures", zap.Error(err))
		return nil, fmt.Errorf("failed to query adventures: %w", err)
	}
	defer rows.Close()

	var adventures []*models.Adventure
	for rows.Next() {
		adventure, err := scanAdventure(rows)
		if err != nil {
			r.logger.Error("Failed to scan adventure", zap.Error(err))
			return nil, fmt.Errorf("failed to scan adventure: %w", err)
		}
		adventures = append(adventures, adventure)
	}
	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating adventure rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating adventure rows: %w", err)
	}
	return adventures, nil
}

// ReplaceRoute swaps the full ordered coordinate set of an adventure inside
// one transaction. Routes are replace-all, never patched, which keeps path
// points contiguous 0..N-1.
func (r *RepositoryImpl) ReplaceRoute(ctx context.Context, adventureID int64, waypoints []models.Waypoint) error {
	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to begin route transaction", zap.Error(err))
		return fmt.Errorf("failed to begin route transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err = tx.Exec(ctx, `DELETE FROM coordinates WHERE adventure_id = $1`, adventureID); err != nil {
		r.logger.Error("Failed to clear route coordinates", zap.Error(err))
		return fmt.Errorf("failed to clear route coordinates: %w", err)
	}

	insert := `INSERT INTO coordinates (adventure_id, path_point, latitude, longitude) VALUES ($1, $2, $3, $4)`
	for i, w := range waypoints {
		if _, err = tx.Exec(ctx, insert, adventureID, i, w.Latitude, w.Longitude); err != nil {
			r.logger.Error("Failed to insert route coordinate", zap.Error(err), zap.Int("path_point", i))
			return fmt.Errorf("failed to insert route coordinate %d: %w", i, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit route transaction", zap.Error(err))
		return fmt.Errorf("failed to commit route transaction: %w", err)
	}
	return nil
}

// RouteCoordinates retrieves an adventure's waypoints in path order.
func (r *RepositoryImpl) RouteCoordinates(ctx context.Context, adventureID int64) ([]*models.Coordinate, error) {
	query := `
        SELECT adventure_id, path_point, latitude, longitude
        FROM coordinates
        WHERE adventure_id = $1
        ORDER BY path_point
    `
	rows, err := r.pgpool.Query(ctx, query, adventureID)
	if err != nil {
		r.logger.Error("Failed to get route coordinates", zap.Error(err))
		return nil, fmt.Errorf("failed to get route coordinates: %w", err)
	}
	defer rows.Close()

	var coordinates []*models.Coordinate
	for rows.Next() {
		var c models.Coordinate
		if err := rows.Scan(&c.AdventureID, &c.PathPoint, &c.Latitude, &c.Longitude); err != nil {
			r.logger.Error("Failed to scan route coordinate", zap.Error(err))
			return nil, fmt.Errorf("failed to scan route coordinate: %w", err)
		}
		coordinates = append(coordinates, &c)
	}
	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating coordinate rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating coordinate rows: %w", err)
	}
	return coordinates, nil
}
