package gateway

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelpline/msgcore/internal/auth"
	"github.com/kelpline/msgcore/internal/types"
	"github.com/kelpline/msgcore/pkg/rpc"
	"github.com/kelpline/msgcore/pkg/wsconn"
)

func TestParseWSPathValid(t *testing.T) {
	userID, pointerID, platform, token, err := parseWSPath("/ws/u1/conn/p1/2/tok123")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, "p1", pointerID)
	assert.Equal(t, types.PlatformMobile, platform)
	assert.Equal(t, "tok123", token)
}

func TestParseWSPathMalformed(t *testing.T) {
	_, _, _, _, err := parseWSPath("/ws/u1/conn")
	assert.Error(t, err)

	_, _, _, _, err = parseWSPath("/ws/u1/conn/p1/not-a-number/tok")
	assert.Error(t, err)
}

func newBareSession(key types.SessionKey) *wsconn.Session {
	s := wsconn.New(nil, key, "ptr", time.Minute, nil, zap.NewNop())
	return s
}

func TestSendMsgToUserDeliversToAllSessions(t *testing.T) {
	forward := func(ctx context.Context, msg *types.Msg) error { return nil }
	g := New("gw-1", &auth.JWTManager{}, time.Minute, forward, zap.NewNop())

	s1 := newBareSession(types.SessionKey{UserID: "u1", Platform: types.PlatformMobile})
	s2 := newBareSession(types.SessionKey{UserID: "u1", Platform: types.PlatformDesktop})
	g.registry.Register(s1)
	g.registry.Register(s2)

	ack, err := g.SendMsgToUser(context.Background(), &rpc.GatewayMsgRequest{Msg: types.Msg{ReceiverID: "u1"}})
	require.NoError(t, err)
	assert.Equal(t, 2, ack.Delivered)
}

func TestSendMsgBroadcastsToEveryLiveSession(t *testing.T) {
	forward := func(ctx context.Context, msg *types.Msg) error { return nil }
	g := New("gw-1", &auth.JWTManager{}, time.Minute, forward, zap.NewNop())

	g.registry.Register(newBareSession(types.SessionKey{UserID: "u1", Platform: types.PlatformMobile}))
	g.registry.Register(newBareSession(types.SessionKey{UserID: "u2", Platform: types.PlatformDesktop}))

	// SendMsg broadcasts process-wide, unlike SendMsgToUser which targets
	// only receiver_id, so every session gets the frame regardless of
	// receiver_id on the message.
	ack, err := g.SendMsg(context.Background(), &rpc.GatewayMsgRequest{Msg: types.Msg{ReceiverID: "someone-else"}})
	require.NoError(t, err)
	assert.Equal(t, 2, ack.Delivered)
}

func TestSendMsgToUserSkipsAbsentRecipient(t *testing.T) {
	forward := func(ctx context.Context, msg *types.Msg) error { return nil }
	g := New("gw-1", &auth.JWTManager{}, time.Minute, forward, zap.NewNop())

	ack, err := g.SendMsgToUser(context.Background(), &rpc.GatewayMsgRequest{Msg: types.Msg{ReceiverID: "nobody"}})
	require.NoError(t, err)
	assert.Equal(t, 0, ack.Delivered)
}

func TestSendGroupMsgToUserDeliversPerMember(t *testing.T) {
	forward := func(ctx context.Context, msg *types.Msg) error { return nil }
	g := New("gw-1", &auth.JWTManager{}, time.Minute, forward, zap.NewNop())

	g.registry.Register(newBareSession(types.SessionKey{UserID: "m1", Platform: types.PlatformMobile}))
	g.registry.Register(newBareSession(types.SessionKey{UserID: "m2", Platform: types.PlatformMobile}))

	ack, err := g.SendGroupMsgToUser(context.Background(), &rpc.SendGroupToUserRequest{
		Msg: types.Msg{GroupID: "g1"},
		Members: []types.MemberSeq{
			{UserID: "m1", Cur: 5},
			{UserID: "m2", Cur: 6},
			{UserID: "ghost", Cur: 7},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ack.Delivered)
}

func TestOnInboundFillsDefaults(t *testing.T) {
	var forwarded *types.Msg
	forward := func(ctx context.Context, msg *types.Msg) error {
		forwarded = msg
		return nil
	}
	g := New("gw-1", &auth.JWTManager{}, time.Minute, forward, zap.NewNop())

	session := newBareSession(types.SessionKey{UserID: "u9", Platform: types.PlatformWeb})
	msg := &types.Msg{}
	g.onInbound(session, msg)

	require.NotNil(t, forwarded)
	assert.Equal(t, "u9", forwarded.SendID)
	assert.Equal(t, types.PlatformWeb, forwarded.Platform)
	assert.NotEmpty(t, forwarded.LocalID)
}
