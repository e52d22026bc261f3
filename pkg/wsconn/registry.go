package wsconn

import (
	"sync"

	"github.com/kelpline/msgcore/internal/types"
)

// Registry is the gateway's session registry, keyed by user_id -> platform
// -> Session (spec §4.9). Registration is serialised per (user, platform)
// via the map's own mutex to enforce the single-device invariant (spec §5
// "Ordering"), grounded on leijux-server's RWMutex-guarded Clients map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[types.SessionKey]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[types.SessionKey]*Session)}
}

// Register installs session under its key, evicting and closing any prior
// session at the same key with the "kicked" close code before installing
// the new one (spec §4.9, §8 property 5 "Single-device invariant").
func (r *Registry) Register(session *Session) {
	r.mu.Lock()
	prior, had := r.sessions[session.Key]
	r.sessions[session.Key] = session
	r.mu.Unlock()

	if had && prior != session {
		prior.Close(types.CloseKicked)
	}
	session.SetState(Live)
}

// Unregister removes key's entry only if session is still the current
// occupant — a session displaced by a newer registration must not remove
// the newer one on its own teardown path.
func (r *Registry) Unregister(session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[session.Key]; ok && cur == session {
		delete(r.sessions, session.Key)
	}
}

// Get returns the current session at key, if any.
func (r *Registry) Get(key types.SessionKey) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// AllForUser returns every live session belonging to userID across
// platforms (spec §4.9 "send_to_user writes to every session of
// receiver_id").
func (r *Registry) AllForUser(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for key, s := range r.sessions {
		if key.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

// All returns every live session in this gateway process, used by
// MsgGatewayService.SendMsg's process-wide broadcast (spec §4.9, §6).
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions, for metrics.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
