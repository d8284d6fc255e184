package models

import (
	"time"
)

// User is the identity record resolved for participant and friend lookups.
// Account mechanics (passwords, sessions, confirmation) live outside this
// core.
type User struct {
	ID           int64
	Username     string
	Email        string
	RegisteredOn time.Time
}

// Friend is one direction of a friendship. Friendships are bidirectional by
// duplication: accepting a request creates both the A->B and B->A rows, so
// "friends of X" is a single-direction query.
type Friend struct {
	ID        int64
	FromUser  int64
	ToUser    int64
	CreatedOn time.Time
}

// FriendshipRequest is a pending friendship offer from one user to another.
type FriendshipRequest struct {
	ID         int64
	FromUser   int64
	ToUser     int64
	CreatedOn  time.Time
	RejectedOn *time.Time
	ViewedOn   *time.Time
}

// IsPending reports whether the request still awaits a decision.
func (r *FriendshipRequest) IsPending() bool {
	return r.RejectedOn == nil
}
