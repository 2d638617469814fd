// Package session stores prior conversation turns to inform routing and
// evidence continuity. Sessions live in process-external keyed storage
// with idle-timeout eviction; turn history grows by atomic append only,
// never read-modify-write across an I/O boundary.
package session

import (
	"context"
	"time"

	"github.com/ragline/ragline/internal/router"
)

// Turn is one completed exchange.
type Turn struct {
	Query  string        `json:"query"`
	Target router.Target `json:"target"`
	Answer string        `json:"answer"`
	Cited  []string      `json:"cited,omitempty"`
	At     time.Time     `json:"at"`
}

// Memory is the session storage contract. Implementations must tolerate
// concurrent appends to the same session; append order is the only
// ordering guarantee.
type Memory interface {
	// Append records a turn and refreshes the session's idle timeout.
	Append(ctx context.Context, sessionID string, turn Turn) error

	// Recent returns up to n most recent turns, oldest first. An unknown
	// or expired session yields an empty history, not an error.
	Recent(ctx context.Context, sessionID string, n int) ([]Turn, error)
}

// PriorTargets extracts the routing targets of the given turns, oldest
// first, for session-aware routing.
func PriorTargets(turns []Turn) []router.Target {
	if len(turns) == 0 {
		return nil
	}
	targets := make([]router.Target, len(turns))
	for i, t := range turns {
		targets[i] = t.Target
	}
	return targets
}
