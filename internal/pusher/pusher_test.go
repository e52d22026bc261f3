package pusher

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"

	"github.com/kelpline/msgcore/internal/registry"
	"github.com/kelpline/msgcore/internal/rpcpool"
	"github.com/kelpline/msgcore/internal/types"
)

func TestPushSingleNoEndpointsIsNoop(t *testing.T) {
	pool := rpcpool.New(registry.New("http://unused", zap.NewNop()), "gateway", time.Hour, zap.NewNop())
	p := New(pool, time.Second, zap.NewNop())

	// No endpoints discovered yet: PushSingle must return without blocking.
	done := make(chan struct{})
	go func() {
		p.PushSingle(context.Background(), &types.Msg{LocalID: "m1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PushSingle blocked with no live endpoints")
	}
	assert.Zero(t, p.DroppedTasks())
}

func TestLimiterForReusesSameLimiterPerAddr(t *testing.T) {
	pool := rpcpool.New(registry.New("http://unused", zap.NewNop()), "gateway", time.Hour, zap.NewNop())
	p := New(pool, time.Second, zap.NewNop())

	l1 := p.limiterFor("addr-1")
	l2 := p.limiterFor("addr-1")
	l3 := p.limiterFor("addr-2")
	assert.Same(t, l1, l2)
	assert.NotSame(t, l1, l3)
}
