package popularity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trailmates/trailmates/internal/app/models"
	"github.com/trailmates/trailmates/internal/db"
)

// Ensure RepositoryImpl implements the Repository interface
var _ Repository = (*RepositoryImpl)(nil)

// Repository persists the append-only popularity logs and metric snapshots.
// Events and snapshots are only ever inserted; totals are computed by
// summing values grouped by adventure.
type Repository interface {
	RecordView(ctx context.Context, adventureID int64, userID *int64, value int64) error
	RecordSearch(ctx context.Context, adventureID int64, userID *int64, value int64) error
	ViewTotals(ctx context.Context) (map[int64]int64, error)
	SearchTotals(ctx context.Context) (map[int64]int64, error)
	ViewTotalsSince(ctx context.Context, since time.Time) (map[int64]int64, error)
	SearchTotalsSince(ctx context.Context, since time.Time) (map[int64]int64, error)

	InsertSnapshot(ctx context.Context, snapshot *models.MetricSnapshot) error
	SnapshotsSince(ctx context.Context, kind models.MetricKind, since time.Time) ([]*models.MetricSnapshot, error)
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

// RecordView appends one view event.
func (r *RepositoryImpl) RecordView(ctx context.Context, adventureID int64, userID *int64, value int64) error {
	return r.recordEvent(ctx, "adventure_views", adventureID, userID, value)
}

// RecordSearch appends one search event.
func (r *RepositoryImpl) RecordSearch(ctx context.Context, adventureID int64, userID *int64, value int64) error {
	return r.recordEvent(ctx, "adventure_searches", adventureID, userID, value)
}

func (r *RepositoryImpl) recordEvent(ctx context.Context, table string, adventureID int64, userID *int64, value int64) error {
	query := fmt.Sprintf(`
        INSERT INTO %s (adventure_id, user_id, value, created_on)
        VALUES ($1, $2, $3, NOW())
    `, table)
	if _, err := r.pgpool.Exec(ctx, query, adventureID, userID, value); err != nil {
		r.logger.Error("Failed to record popularity event", zap.Error(err), zap.String("table", table))
		return fmt.Errorf("failed to record popularity event: %w", err)
	}
	return nil
}

// ViewTotals returns summed view weights per adventure.
func (r *RepositoryImpl) ViewTotals(ctx context.Context) (map[int64]int64, error) {
	return r.totals(ctx, "adventure_views", nil)
}

// SearchTotals returns summed search weights per adventure.
func (r *RepositoryImpl) SearchTotals(ctx context.Context) (map[int64]int64, error) {
	return r.totals(ctx, "adventure_searches", nil)
}

// ViewTotalsSince restricts the sum to events recorded at or after since.
func (r *RepositoryImpl) ViewTotalsSince(ctx context.Context, since time.Time) (map[int64]int64, error) {
	return r.totals(ctx, "adventure_views", &since)
}

// SearchTotalsSince restricts the sum to events recorded at or after since.
func (r *RepositoryImpl) SearchTotalsSince(ctx context.Context, since time.Time) (map[int64]int64, error) {
	return r.totals(ctx, "adventure_searches", &since)
}

func (r *RepositoryImpl) totals(ctx context.Context, table string, since *time.Time) (map[int64]int64, error) {
	query := fmt.Sprintf(`SELECT adventure_id, COALESCE(SUM(value), 0) FROM %s`, table)
	var args []any
	if since != nil {
		query += ` WHERE created_on >= $1`
		args = append(args, *since)
	}
	query += ` GROUP BY adventure_id`

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query popularity totals", zap.Error(err), zap.String("table", table))
		return nil, fmt.Errorf("failed to query popularity totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[int64]int64)
	for rows.Next() {
		var adventureID, total int64
		if err := rows.Scan(&adventureID, &total); err != nil {
			r.logger.Error("Failed to scan popularity total", zap.Error(err))
			return nil, fmt.Errorf("failed to scan popularity total: %w", err)
		}
		totals[adventureID] = total
	}
	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating popularity totals", zap.Error(err))
		return nil, fmt.Errorf("error iterating popularity totals: %w", err)
	}
	return totals, nil
}

// InsertSnapshot appends one metric snapshot row.
func (r *RepositoryImpl) InsertSnapshot(ctx context.Context, snapshot *models.MetricSnapshot) error {
	query := `
        INSERT INTO metric_snapshots (id, kind, counter, taken_on)
        VALUES ($1, $2, $3, $4)
    `
	_, err := r.pgpool.Exec(ctx, query, snapshot.ID, snapshot.Kind, snapshot.Counter, snapshot.TakenOn)
	if err != nil {
		r.logger.Error("Failed to insert metric snapshot", zap.Error(err))
		return fmt.Errorf("failed to insert metric snapshot: %w", err)
	}
	return nil
}

// SnapshotsSince lists snapshots of one kind taken at or after since,
// oldest first.
func (r *RepositoryImpl) SnapshotsSince(ctx context.Context, kind models.MetricKind, since time.Time) ([]*models.MetricSnapshot, error) {
	query := `
        SELECT id, kind, counter, taken_on
        FROM metric_snapshots
        WHERE kind = $1 AND taken_on >= $2
        ORDER BY taken_on
    `
	rows, err := r.pgpool.Query(ctx, query, kind, since)
	if err != nil {
		r.logger.Error("Failed to query metric snapshots", zap.Error(err))
		return nil, fmt.Errorf("failed to query metric snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.MetricSnapshot
	for rows.Next() {
		var s models.MetricSnapshot
		if err := rows.Scan(&s.ID, &s.Kind, &s.Counter, &s.TakenOn); err != nil {
			r.logger.Error("Failed to scan metric snapshot", zap.Error(err))
			return nil, fmt.Errorf("failed to scan metric snapshot: %w", err)
		}
		snapshots = append(snapshots, &s)
	}
	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating metric snapshot rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating metric snapshot rows: %w", err)
	}
	return snapshots, nil
}
