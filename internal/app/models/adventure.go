package models

import (
	"time"
)

// TravelMode is the small enumerated category of an adventure.
type TravelMode int16

const (
	ModeRecreational TravelMode = iota
	ModeTouring
	ModeTraining
	ModeExtreme
)

var travelModeNames = map[TravelMode]string{
	ModeRecreational: "recreational",
	ModeTouring:      "touring",
	ModeTraining:     "training",
	ModeExtreme:      "extreme",
}

func (m TravelMode) String() string {
	if name, ok := travelModeNames[m]; ok {
		return name
	}
	return "unknown"
}

// Adventure is an event a user creates and others can join. Deletion and
// disabling are soft tombstones; rows are never removed.
type Adventure struct {
	ID            int64
	CreatorID     int64
	ScheduledDate time.Time
	Mode          TravelMode
	Description   string
	CreatedOn     time.Time
	Disabled      bool
	DisabledOn    *time.Time
	Deleted       bool
	DeletedOn     *time.Time
}

// IsActiveAt reports whether the adventure is active at the given instant:
// not deleted, not disabled, and scheduled at or after now. There is no
// materialized active flag; callers must evaluate with a single now across
// one logical pass so activity judgments stay consistent within it.
func (a *Adventure) IsActiveAt(now time.Time) bool {
	return !a.Deleted && !a.Disabled && !a.ScheduledDate.Before(now)
}

// Coordinate is one ordered waypoint of an adventure's route. PathPoint is
// the 0-based sequence index; routes are replaced wholesale on every edit,
// so path points stay contiguous 0..N-1 in insertion order.
type Coordinate struct {
	AdventureID int64
	PathPoint   int
	Latitude    float64
	Longitude   float64
}

// Waypoint is a route point before it is bound to an adventure.
type Waypoint struct {
	Latitude  float64
	Longitude float64
}

// Position is a viewer's current location, used as the proximity signal
// input. Absence of a position means the signal is skipped entirely.
type Position struct {
	Latitude  float64
	Longitude float64
}

// Bounds is a lat/lng bounding box (south-west and north-east corners).
type Bounds struct {
	SouthWest Position
	NorthEast Position
}

// AdventureParticipant is the membership record of a user in an adventure.
// Rows are retained forever: leaving sets LeftOn, rejoining clears it and
// refreshes JoinedOn, so exactly one row exists per (adventure, user) pair
// regardless of how many join/leave cycles happened.
type AdventureParticipant struct {
	AdventureID int64
	UserID      int64
	JoinedOn    time.Time
	LeftOn      *time.Time
}

// IsActive reports whether the participation is current (the user has not
// left).
func (p *AdventureParticipant) IsActive() bool {
	return p.LeftOn == nil
}

// AdventureFilter narrows an adventure search. Nil fields are ignored.
type AdventureFilter struct {
	CreatorID    *int64
	Mode         *TravelMode
	CreatedSince *time.Time
	Bounds       *Bounds
}

// UpdateAdventureRequest carries optional field updates for an adventure.
type UpdateAdventureRequest struct {
	ScheduledDate *time.Time
	Mode          *TravelMode
	Description   *string
}
