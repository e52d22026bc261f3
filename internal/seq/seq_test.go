package seq

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePersister struct {
	mu    sync.Mutex
	calls []Snapshot
	err   error
}

func (f *fakePersister) PersistMax(ctx context.Context, scope Scope, userID string, max int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Snapshot{UserID: userID, Max: max})
	return f.err
}

func (f *fakePersister) calledFor(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

func TestIncrementMonotonic(t *testing.T) {
	p := &fakePersister{}
	s := NewStore(Recv, 5, p, zap.NewNop())

	var last int64
	for i := 0; i < 12; i++ {
		res := s.Increment(context.Background(), "u1")
		assert.Greater(t, res.Cur, last)
		last = res.Cur
	}
}

func TestIncrementGrowsAtBlockBoundaryAndPersists(t *testing.T) {
	p := &fakePersister{}
	s := NewStore(Recv, 3, p, zap.NewNop())

	var grew []bool
	for i := 0; i < 4; i++ {
		res := s.Increment(context.Background(), "u2")
		grew = append(grew, res.Grew)
	}

	// With step=3: the first call allocates the initial block and must
	// persist it (call 1), calls 2 and 3 stay within it, and cur exceeds
	// the block on call S+1=4, persisting the next one.
	assert.Equal(t, []bool{true, false, false, true}, grew)
	assert.True(t, p.calledFor("u2"))
}

func TestIncrementBatchReturnsOneResultPerUser(t *testing.T) {
	p := &fakePersister{}
	s := NewStore(Send, 5000, p, zap.NewNop())

	results := s.IncrementBatch(context.Background(), []string{"a", "b", "c"})
	require.Len(t, results, 3)
	seen := map[string]bool{}
	for _, r := range results {
		assert.False(t, seen[r.UserID], "duplicate result for %s", r.UserID)
		seen[r.UserID] = true
		assert.Equal(t, int64(1), r.Cur)
	}
	assert.True(t, seen["a"] && seen["b"] && seen["c"])
}

func TestIncrementBatchIndependentPerUser(t *testing.T) {
	p := &fakePersister{}
	s := NewStore(Recv, 5000, p, zap.NewNop())

	// Advance "a" a few times outside the batch.
	s.Increment(context.Background(), "a")
	s.Increment(context.Background(), "a")

	results := s.IncrementBatch(context.Background(), []string{"a", "b"})
	for _, r := range results {
		if r.UserID == "a" {
			assert.Equal(t, int64(3), r.Cur)
		}
		if r.UserID == "b" {
			assert.Equal(t, int64(1), r.Cur)
		}
	}
}

func TestGetReflectsCurrentState(t *testing.T) {
	p := &fakePersister{}
	s := NewStore(Recv, 5000, p, zap.NewNop())

	cur, max := s.Get("never-seen")
	assert.Zero(t, cur)
	assert.Zero(t, max)

	s.Increment(context.Background(), "u3")
	cur, max = s.Get("u3")
	assert.Equal(t, int64(1), cur)
	assert.GreaterOrEqual(t, max, cur)
}

func TestSetBulkRestoresSnapshots(t *testing.T) {
	p := &fakePersister{}
	s := NewStore(Recv, 5000, p, zap.NewNop())

	s.SetBulk([]Snapshot{{UserID: "restored", Cur: 42, Max: 5000}})
	cur, max := s.Get("restored")
	assert.Equal(t, int64(42), cur)
	assert.Equal(t, int64(5000), max)

	// A subsequent increment continues from the restored cur, not from zero.
	res := s.Increment(context.Background(), "restored")
	assert.Equal(t, int64(43), res.Cur)
}

func TestConcurrentIncrementNoLostUpdates(t *testing.T) {
	p := &fakePersister{}
	s := NewStore(Recv, 100, p, zap.NewNop())

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			s.Increment(context.Background(), "hot")
		}()
	}
	wg.Wait()

	cur, _ := s.Get("hot")
	assert.Equal(t, int64(n), cur)
}
