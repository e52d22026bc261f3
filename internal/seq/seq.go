// Package seq implements the Sequence Store (C1): atomic per-user,
// per-scope block-allocated counters with periodic persistence of the grown
// "max" to a relational store, plus a batch variant for group fan-out
// (spec §4.1). The in-memory key store stands in for the "compare-and-set or
// server-side script" language of the spec; each call takes the entry's own
// mutex for the duration of the mutation only, never across the persistence
// I/O that follows a grow (spec §5 "no component holds a lock across
// suspension").
package seq

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Scope distinguishes the two independent per-user counters (spec §3).
type Scope string

const (
	Send Scope = "send"
	Recv Scope = "recv"
)

// Result is the (cur, max, grew) triple returned by Increment and
// IncrementBatch.
type Result struct {
	UserID string
	Cur    int64
	Max    int64
	Grew   bool
}

// Persister durably records a grown max value. It is invoked outside any
// in-memory lock. Implementations should be idempotent: the same (scope,
// user, max) may be persisted more than once after a crash-and-redeliver
// (spec §4.7 "Failure model").
type Persister interface {
	PersistMax(ctx context.Context, scope Scope, userID string, max int64) error
}

type entry struct {
	mu  sync.Mutex
	cur int64
	max int64
}

// Store is one Sequence Store instance for a single Scope. The dispatcher
// holds one Store for Send and one for Recv (spec §3 "Two independent
// records per user").
type Store struct {
	scope     Scope
	step      int64
	persister Persister
	log       *zap.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore builds a Store. step is the block size S (spec §3, default 5000
// per config); persister may be nil if snapshotting is handled by the
// caller inspecting Result.Grew itself.
func NewStore(scope Scope, step int64, persister Persister, log *zap.Logger) *Store {
	if step <= 0 {
		step = 5000
	}
	return &Store{
		scope:     scope,
		step:      step,
		persister: persister,
		log:       log,
		entries:   make(map[string]*entry),
	}
}

func (s *Store) entryFor(userID string) *entry {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[userID]; ok {
		return e
	}
	e = &entry{}
	s.entries[userID] = e
	return e
}

// Increment advances userID's cur by one, growing max by step when the
// block is exhausted. Absent state starts at max=step, cur=1, grew=true
// (spec §4.1).
func (s *Store) Increment(ctx context.Context, userID string) Result {
	e := s.entryFor(userID)

	e.mu.Lock()
	grew := false
	if e.max == 0 {
		e.max = s.step
		grew = true
	}
	e.cur++
	if e.cur > e.max {
		e.max += s.step
		grew = true
	}
	res := Result{UserID: userID, Cur: e.cur, Max: e.max, Grew: grew}
	e.mu.Unlock()

	if grew && s.persister != nil {
		if err := s.persister.PersistMax(ctx, s.scope, userID, res.Max); err != nil {
			s.log.Warn("seq: persist max failed",
				zap.String("scope", string(s.scope)),
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
	return res
}

// IncrementBatch applies Increment independently to every user in a single
// round-trip, matching increment_batch's "no partial results" contract
// (spec §4.1): every element is computed before any persistence I/O runs,
// and persistence failures for one user never prevent the others' results
// from being returned.
func (s *Store) IncrementBatch(ctx context.Context, userIDs []string) []Result {
	results := make([]Result, len(userIDs))
	grown := make([]Result, 0, len(userIDs))

	for i, userID := range userIDs {
		e := s.entryFor(userID)
		e.mu.Lock()
		grew := false
		if e.max == 0 {
			e.max = s.step
			grew = true
		}
		e.cur++
		if e.cur > e.max {
			e.max += s.step
			grew = true
		}
		results[i] = Result{UserID: userID, Cur: e.cur, Max: e.max, Grew: grew}
		e.mu.Unlock()
		if grew {
			grown = append(grown, results[i])
		}
	}

	if s.persister != nil {
		for _, r := range grown {
			if err := s.persister.PersistMax(ctx, s.scope, r.UserID, r.Max); err != nil {
				s.log.Warn("seq: persist max failed (batch)",
					zap.String("scope", string(s.scope)),
					zap.String("user_id", r.UserID),
					zap.Error(err))
			}
		}
	}
	return results
}

// Get returns the current (cur, max) without mutating state. Absent users
// report (0, 0).
func (s *Store) Get(userID string) (cur, max int64) {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if !ok {
		return 0, 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur, e.max
}

// NearBlockBoundary reports whether userID's cur equals max-step, i.e. cur
// sits on the last value of the block before the current one, so the next
// increment yields the first value of the current block — the
// trigger condition for the ingest-path send-seq durability piggyback
// (spec §4.7 step 3).
func (s *Store) NearBlockBoundary(userID string) bool {
	cur, max := s.Get(userID)
	if max == 0 {
		return false
	}
	return cur == max-s.step
}

// Snapshot is one row to reseed at boot (spec §4.1 "set_bulk").
type Snapshot struct {
	UserID string
	Cur    int64
	Max    int64
}

// SetBulk reseeds the store from persisted snapshots, used at startup
// recovery so a cold cache resumes from the last durably written max
// without losing a prefix of the sequence space (spec §4.1).
func (s *Store) SetBulk(snapshots []Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snapshots {
		s.entries[snap.UserID] = &entry{cur: snap.Cur, max: snap.Max}
	}
}
