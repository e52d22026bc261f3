package wsconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelpline/msgcore/internal/types"
)

func newBareSession(key types.SessionKey) *Session {
	return &Session{Key: key, closeNotify: make(chan struct{})}
}

func TestRegisterEvictsPriorSessionAtSameKey(t *testing.T) {
	r := NewRegistry()
	key := types.SessionKey{UserID: "u1", Platform: types.PlatformMobile}

	first := newBareSession(key)
	second := newBareSession(key)

	r.Register(first)
	r.Register(second)

	assert.Equal(t, Closed, first.State())
	assert.Equal(t, Live, second.State())

	got, ok := r.Get(key)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestUnregisterOnlyRemovesCurrentOccupant(t *testing.T) {
	r := NewRegistry()
	key := types.SessionKey{UserID: "u1", Platform: types.PlatformMobile}

	first := newBareSession(key)
	second := newBareSession(key)
	r.Register(first)
	r.Register(second)

	// A displaced session's own teardown must not remove the newer one.
	r.Unregister(first)
	got, ok := r.Get(key)
	require.True(t, ok)
	assert.Same(t, second, got)

	r.Unregister(second)
	_, ok = r.Get(key)
	assert.False(t, ok)
}

func TestAllForUserSpansPlatforms(t *testing.T) {
	r := NewRegistry()
	mobile := newBareSession(types.SessionKey{UserID: "u1", Platform: types.PlatformMobile})
	desktop := newBareSession(types.SessionKey{UserID: "u1", Platform: types.PlatformDesktop})
	other := newBareSession(types.SessionKey{UserID: "u2", Platform: types.PlatformMobile})

	r.Register(mobile)
	r.Register(desktop)
	r.Register(other)

	sessions := r.AllForUser("u1")
	assert.Len(t, sessions, 2)
	assert.Equal(t, 3, r.Count())
}
