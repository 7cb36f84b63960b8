// Package identity resolves a stable identity for the caller: an
// authenticated user id, or an anonymous session id persisted in the
// session store keyed by a client-supplied device key.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/splitstack/support-assistant/pkg/logger"
)

// Identity carries exactly one of UserID / SessionID. The authenticated id
// wins when present.
type Identity struct {
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// IsAnonymous reports whether the identity is an anonymous session.
func (id Identity) IsAnonymous() bool {
	return id.UserID == ""
}

// Key returns the identity's stable key.
func (id Identity) Key() string {
	if id.UserID != "" {
		return id.UserID
	}
	return id.SessionID
}

// SessionStore is a string get/set keyed by device key, the service-side
// analog of client-local storage.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// SessionTTL is how long an anonymous session id stays resolvable.
const SessionTTL = 30 * 24 * time.Hour

// Resolver derives caller identities.
type Resolver struct {
	sessions SessionStore
	logger   *logger.Logger
}

// NewResolver creates a resolver backed by the given session store.
func NewResolver(sessions SessionStore, log *logger.Logger) *Resolver {
	return &Resolver{sessions: sessions, logger: log}
}

// Resolve returns the identity for a caller. An authenticated user id is
// used as-is. Otherwise the device key is looked up in the session store;
// on a miss a new session id is generated and stored. A store-write failure
// is non-fatal: the generated id is still returned, it just will not
// survive the caller's next visit.
func (r *Resolver) Resolve(ctx context.Context, authenticatedUserID, deviceKey string) Identity {
	if authenticatedUserID != "" {
		return Identity{UserID: authenticatedUserID}
	}

	if deviceKey != "" {
		if existing, err := r.sessions.Get(ctx, deviceKey); err == nil && existing != "" {
			return Identity{SessionID: existing}
		}
	}

	sessionID := uuid.Must(uuid.NewV7()).String()

	if deviceKey != "" {
		if err := r.sessions.Set(ctx, deviceKey, sessionID, SessionTTL); err != nil {
			r.logger.Warn("failed to persist anonymous session id",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}

	return Identity{SessionID: sessionID}
}
