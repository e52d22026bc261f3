package rpcpool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelpline/msgcore/internal/registry"
)

func TestAddrOf(t *testing.T) {
	assert.Equal(t, "10.0.0.1:9000", addrOf(registry.Record{Host: "10.0.0.1", Port: 9000}))
}

func TestPoolDiscoversAndRoundRobins(t *testing.T) {
	records := []registry.Record{
		{ID: "gw-1", Host: "127.0.0.1", Port: 9001},
		{ID: "gw-2", Host: "127.0.0.1", Port: 9002},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(records)
	}))
	defer srv.Close()

	reg := registry.New(srv.URL, zap.NewNop())
	pool := New(reg, "gateway", 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	require.Eventually(t, func() bool {
		return pool.StatsSnapshot().EndpointCount == 2
	}, time.Second, 10*time.Millisecond)

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		conn := pool.Next()
		require.NotNil(t, conn)
		seen[conn.Target()] = true
	}
	assert.Len(t, seen, 2)
	assert.Len(t, pool.All(), 2)
}

func TestPoolEvictRemovesEndpointImmediately(t *testing.T) {
	records := []registry.Record{{ID: "gw-1", Host: "127.0.0.1", Port: 9101}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(records)
	}))
	defer srv.Close()

	reg := registry.New(srv.URL, zap.NewNop())
	pool := New(reg, "gateway", 20*time.Millisecond, zap.NewNop())
	pool.refresh(context.Background())

	require.Equal(t, 1, pool.StatsSnapshot().EndpointCount)
	pool.Evict("127.0.0.1:9101")
	assert.Equal(t, 0, pool.StatsSnapshot().EndpointCount)
	assert.Nil(t, pool.Next())
}
