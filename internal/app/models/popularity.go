package models

import (
	"time"

	"github.com/google/uuid"
)

// PopularityEvent is one row of the append-only view/search log. Events are
// never mutated or deleted; totals are computed by summing Value grouped by
// adventure.
type PopularityEvent struct {
	ID          int64
	AdventureID int64
	UserID      *int64 // nil for anonymous
	Value       int64
	CreatedOn   time.Time
}

// MetricKind identifies one aggregate tracked by metric snapshots.
type MetricKind int16

const (
	MetricAdventuresActive MetricKind = iota
	MetricAdventuresInactive
	MetricAdventuresTotal
	MetricUsersTotal
	MetricUsersPerAdventure
)

// MetricSnapshot is one point-in-time aggregate value, appended by an
// explicit refresh rather than a background scheduler.
type MetricSnapshot struct {
	ID      uuid.UUID
	Kind    MetricKind
	Counter float64
	TakenOn time.Time
}
