// Package pusher implements the Pusher (C8): it holds RPC clients to every
// live gateway and fans out a message to each of them, evicting a gateway
// from the map on error so the next discovery tick can re-add it (spec
// §4.8). Per-gateway dispatch is rate-limited with golang.org/x/time/rate,
// generalizing the `src` teacher variant's worker-pool "drop on saturation"
// idiom to per-gateway backpressure instead of a single shared queue.
package pusher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kelpline/msgcore/internal/rpcpool"
	"github.com/kelpline/msgcore/internal/types"
	"github.com/kelpline/msgcore/pkg/rpc"
)

// Pusher broadcasts to every gateway in pool. The pusher never attempts to
// locate the recipient gateway: it broadcasts, and each gateway filters by
// local session presence (spec §4.8).
type Pusher struct {
	pool           *rpcpool.Pool
	requestTimeout time.Duration
	log            *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	droppedTasks atomic.Uint64
}

// New builds a Pusher. requestTimeout bounds each per-gateway RPC call
// (spec §5 "The pusher task per gateway inherits the parent's deadline").
func New(pool *rpcpool.Pool, requestTimeout time.Duration, log *zap.Logger) *Pusher {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}
	return &Pusher{
		pool:           pool,
		requestTimeout: requestTimeout,
		log:            log,
		limiters:       make(map[string]*rate.Limiter),
	}
}

func (p *Pusher) limiterFor(addr string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[addr]
	if !ok {
		l = rate.NewLimiter(rate.Limit(500), 500) // 500 pushes/sec burst per gateway
		p.limiters[addr] = l
	}
	return l
}

// pushResult carries one gateway's outcome through the bounded collection
// channel (spec §4.8 "collect per-gateway errors via a bounded channel").
type pushResult struct {
	addr string
	err  error
}

// PushSingle broadcasts msg to send_to_user on every live gateway (spec
// §4.8 kind=single).
func (p *Pusher) PushSingle(ctx context.Context, msg *types.Msg) {
	endpoints := p.pool.All()
	if len(endpoints) == 0 {
		return
	}

	results := make(chan pushResult, len(endpoints))
	for addr, conn := range endpoints {
		addr, conn := addr, conn
		go func() {
			if !p.limiterFor(addr).Allow() {
				p.droppedTasks.Add(1)
				results <- pushResult{addr: addr, err: nil}
				return
			}
			cctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
			defer cancel()
			client := rpc.NewMsgGatewayServiceClient(conn)
			_, err := client.SendMsgToUser(cctx, &rpc.GatewayMsgRequest{Msg: *msg})
			results <- pushResult{addr: addr, err: err}
		}()
	}

	p.drain(results, len(endpoints))
}

// PushGroup broadcasts msg plus the resolved per-member sequence list to
// send_group_to_user on every live gateway (spec §4.8 kind=group).
func (p *Pusher) PushGroup(ctx context.Context, msg *types.Msg, members []types.MemberSeq) {
	endpoints := p.pool.All()
	if len(endpoints) == 0 {
		return
	}

	results := make(chan pushResult, len(endpoints))
	for addr, conn := range endpoints {
		addr, conn := addr, conn
		go func() {
			if !p.limiterFor(addr).Allow() {
				p.droppedTasks.Add(1)
				results <- pushResult{addr: addr, err: nil}
				return
			}
			cctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
			defer cancel()
			client := rpc.NewMsgGatewayServiceClient(conn)
			_, err := client.SendGroupMsgToUser(cctx, &rpc.SendGroupToUserRequest{Msg: *msg, Members: members})
			results <- pushResult{addr: addr, err: err}
		}()
	}

	p.drain(results, len(endpoints))
}

func (p *Pusher) drain(results chan pushResult, n int) {
	for i := 0; i < n; i++ {
		r := <-results
		if r.err != nil {
			p.log.Warn("pusher: gateway push failed, evicting", zap.String("addr", r.addr), zap.Error(r.err))
			p.pool.Evict(r.addr)
		}
	}
}

// DroppedTasks reports the cumulative count of pushes skipped because a
// gateway's rate limiter was saturated.
func (p *Pusher) DroppedTasks() uint64 {
	return p.droppedTasks.Load()
}
