package models

import (
	"math"
	"strconv"
	"strings"
)

// MaxID is the largest identifier accepted from callers. Identifiers are
// opaque but integer-like; anything negative, zero, or beyond the bigint
// range is rejected before domain logic runs.
const MaxID = math.MaxInt64

// ValidateID checks a caller-supplied identifier.
func ValidateID(field string, id int64) error {
	if id < 1 {
		return NewValidationError(field, "must be a positive integer, got %d", id)
	}
	return nil
}

// ValidateLatLng checks coordinate ranges.
func ValidateLatLng(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return NewValidationError("latitude", "must be within [-90, 90], got %v", lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return NewValidationError("longitude", "must be within [-180, 180], got %v", lng)
	}
	return nil
}

// ValidateWaypoints checks every waypoint of a route.
func ValidateWaypoints(waypoints []Waypoint) error {
	for _, w := range waypoints {
		if err := ValidateLatLng(w.Latitude, w.Longitude); err != nil {
			return err
		}
	}
	return nil
}

// ParseWaypoint parses a geocoder marker string of the form "(lat, lng)"
// into a Waypoint. Surrounding parentheses are optional.
func ParseWaypoint(raw string) (Waypoint, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Waypoint{}, NewValidationError("waypoint", "expected \"(lat, lng)\", got %q", raw)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Waypoint{}, NewValidationError("waypoint", "latitude %q is not a number", parts[0])
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Waypoint{}, NewValidationError("waypoint", "longitude %q is not a number", parts[1])
	}
	if err := ValidateLatLng(lat, lng); err != nil {
		return Waypoint{}, err
	}
	return Waypoint{Latitude: lat, Longitude: lng}, nil
}

// ParseWaypoints parses an ordered list of marker strings. Order is
// preserved; the resulting slice index is the waypoint's path point.
func ParseWaypoints(raw []string) ([]Waypoint, error) {
	waypoints := make([]Waypoint, 0, len(raw))
	for _, marker := range raw {
		if strings.TrimSpace(marker) == "" {
			continue
		}
		w, err := ParseWaypoint(marker)
		if err != nil {
			return nil, err
		}
		waypoints = append(waypoints, w)
	}
	return waypoints, nil
}

// ParseBounds parses the two corners of a map bounding box. The first
// argument is the south-west corner, the second the north-east corner.
func ParseBounds(southWest, northEast string) (*Bounds, error) {
	sw, err := ParseWaypoint(southWest)
	if err != nil {
		return nil, err
	}
	ne, err := ParseWaypoint(northEast)
	if err != nil {
		return nil, err
	}
	if sw.Latitude > ne.Latitude || sw.Longitude > ne.Longitude {
		return nil, NewValidationError("bounds", "south-west corner must not exceed north-east corner")
	}
	return &Bounds{
		SouthWest: Position{Latitude: sw.Latitude, Longitude: sw.Longitude},
		NorthEast: Position{Latitude: ne.Latitude, Longitude: ne.Longitude},
	}, nil
}
