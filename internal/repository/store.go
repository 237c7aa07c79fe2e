// Package store provides the durable session store. It is the single
// source of truth for session state across process restarts.
package store

import (
	"context"

	"agentloop/internal/domain"
)

// SessionStore persists session state keyed by session_id.
//
// Save followed by Load on the same session_id returns an equal state
// after canonical message round-trip. All access to a single session's
// record is serialized by the database; the orchestrator additionally
// runs only one execution flow per session_id.
type SessionStore interface {
	// Save upserts the state by session_id and stamps UpdatedAt.
	Save(ctx context.Context, state *domain.SessionState) error

	// Load returns the state for the session, or domain.ErrNotFound.
	Load(ctx context.Context, sessionID string) (*domain.SessionState, error)

	// Delete removes the session record. Deleting a missing session is not
	// an error.
	Delete(ctx context.Context, sessionID string) error

	// ListActive returns the ids of sessions whose status is not terminal,
	// ordered by creation time.
	ListActive(ctx context.Context) ([]string, error)

	// Sweep applies the retention policies: terminal sessions older than
	// the TTL are removed, then oldest terminal sessions are evicted until
	// the store fits the size bound. Active sessions are never removed.
	// Returns the number of sessions removed.
	Sweep(ctx context.Context) (int, error)

	// Stats reports store totals for monitoring.
	Stats(ctx context.Context) (domain.StoreStats, error)

	Close() error
}
