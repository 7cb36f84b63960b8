package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitstack/support-assistant/pkg/logger"
)

type failingSessionStore struct{}

func (failingSessionStore) Get(ctx context.Context, key string) (string, error) {
	return "", errors.New("store down")
}

func (failingSessionStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("store down")
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	return log
}

func TestAuthenticatedIDWins(t *testing.T) {
	r := NewResolver(NewMemorySessionStore(), testLogger(t))

	id := r.Resolve(context.Background(), "u-42", "device-key")

	assert.Equal(t, "u-42", id.UserID)
	assert.Empty(t, id.SessionID)
	assert.False(t, id.IsAnonymous())
	assert.Equal(t, "u-42", id.Key())
}

func TestAnonymousSessionIsStablePerDevice(t *testing.T) {
	r := NewResolver(NewMemorySessionStore(), testLogger(t))
	ctx := context.Background()

	first := r.Resolve(ctx, "", "device-key")
	require.True(t, first.IsAnonymous())
	require.NotEmpty(t, first.SessionID)

	second := r.Resolve(ctx, "", "device-key")
	assert.Equal(t, first.SessionID, second.SessionID)

	other := r.Resolve(ctx, "", "other-device")
	assert.NotEqual(t, first.SessionID, other.SessionID)
}

func TestStoreFailureStillYieldsIdentity(t *testing.T) {
	r := NewResolver(failingSessionStore{}, testLogger(t))

	id := r.Resolve(context.Background(), "", "device-key")

	assert.True(t, id.IsAnonymous())
	assert.NotEmpty(t, id.SessionID, "identity is usable even when the write fails")
}

func TestNoDeviceKeyGeneratesEphemeralSession(t *testing.T) {
	r := NewResolver(NewMemorySessionStore(), testLogger(t))
	ctx := context.Background()

	first := r.Resolve(ctx, "", "")
	second := r.Resolve(ctx, "", "")

	assert.NotEmpty(t, first.SessionID)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}
