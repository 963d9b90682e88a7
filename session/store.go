package session

import (
	"context"

	"github.com/BaSui01/flowroute/types"
)

// Store persists sessions. Implementations must be safe for concurrent use
// and must never return sessions that alias internal state.
//
// Save writes the complete session snapshot; there are no partial updates.
// Terminal sessions are retained for audit reads until the backend's
// retention policy removes them.
type Store interface {
	// Save persists the full session state, overwriting any previous version.
	Save(ctx context.Context, session *types.Session) error

	// Get returns the session or a SESSION_NOT_FOUND error.
	Get(ctx context.Context, id string) (*types.Session, error)

	// ListActive returns all sessions in a non-terminal phase.
	ListActive(ctx context.Context) ([]*types.Session, error)

	// Delete removes a session outright. Used by retention cleanup, not by
	// normal lifecycle operations.
	Delete(ctx context.Context, id string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources. The store is unusable afterwards.
	Close() error
}
