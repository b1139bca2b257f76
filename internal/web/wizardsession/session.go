// Package wizardsession stores in-progress measurement-wizard state between
// API calls. A browser walks the wizard over several requests (pick
// measurement, describe topology, bind devices, set parameters); the session
// carries the accumulated choices until the final compose.
package wizardsession

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no session exists for an ID.
var ErrNotFound = errors.New("wizard session not found")

// ErrExpired is returned when a session exists but has expired.
var ErrExpired = errors.New("wizard session expired")

// Store is the session storage backend.
type Store interface {
	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*Session, error)

	// Set stores a session with the given TTL.
	Set(ctx context.Context, id string, s *Session, ttl time.Duration) error

	// Delete removes a session.
	Delete(ctx context.Context, id string) error

	// Refresh extends a session's expiration.
	Refresh(ctx context.Context, id string, ttl time.Duration) error

	// Close releases store resources.
	Close() error
}

// State is the wizard's accumulated choices.
type State struct {
	// Step is the wizard page the user is on.
	Step string `json:"step"`

	// Measurement is the selected catalog measurement name.
	Measurement string `json:"measurement,omitempty"`

	// TopologyYAML is the hardware description as last submitted.
	TopologyYAML string `json:"topology_yaml,omitempty"`

	// Bindings maps requirement attribute names to topology paths.
	Bindings map[string]string `json:"bindings,omitempty"`

	// Params holds the measurement parameter values as entered.
	Params map[string]any `json:"params,omitempty"`

	// Offline selects simulated composition.
	Offline bool `json:"offline"`
}

// Session is one wizard session.
type Session struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// New creates a session with the given ID and TTL, starting at the
// measurement-selection step.
func New(id string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		State:     State{Step: "measurement"},
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the session has passed its expiration.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
