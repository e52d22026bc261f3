// Package gateway implements the WS Gateway (C9): it owns live client
// sessions, enforces single-device-per-platform login, authenticates
// connect requests, forwards inbound frames to ingest, and answers the
// MsgGatewayService RPC surface pushed by the pusher (spec §4.9).
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kelpline/msgcore/internal/auth"
	"github.com/kelpline/msgcore/internal/types"
	"github.com/kelpline/msgcore/pkg/rpc"
	"github.com/kelpline/msgcore/pkg/wsconn"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    4096,
	WriteBufferSize:   4096,
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: false,
}

// Gateway is one gateway process. It implements rpc.MsgGatewayServiceServer.
type Gateway struct {
	name      string
	jwt       *auth.JWTManager
	registry  *wsconn.Registry
	heartbeat time.Duration
	log       *zap.Logger

	// forward publishes an inbound frame onto the ingest path. It is
	// decoupled from rpc.ChatServiceClient's concrete grpc signature so tests can
	// substitute a stub.
	forward func(ctx context.Context, msg *types.Msg) error
}

func New(name string, jwt *auth.JWTManager, heartbeat time.Duration, forward func(ctx context.Context, msg *types.Msg) error, log *zap.Logger) *Gateway {
	return &Gateway{
		name:      name,
		jwt:       jwt,
		registry:  wsconn.NewRegistry(),
		heartbeat: heartbeat,
		forward:   forward,
		log:       log,
	}
}

var _ rpc.MsgGatewayServiceServer = (*Gateway)(nil)

// ServeWS handles GET /ws/{user_id}/conn/{pointer_id}/{platform}/{token}
// (spec §6 "WebSocket URL"). On auth failure it upgrades the connection and
// immediately closes it with code 4002, matching the gorilla/websocket
// idiom of closing post-upgrade rather than rejecting the handshake, so the
// client can read a structured close reason.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, pointerID, platform, token, err := parseWSPath(r.URL.Path)
	if err != nil {
		http.Error(w, "bad ws path", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("gateway: upgrade failed", zap.Error(err))
		return
	}

	claims, err := g.jwt.VerifyPathToken(token)
	if err != nil || claims.UserID != userID {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(types.CloseUnauthorised, "unauthorised"))
		conn.Close()
		return
	}

	key := types.SessionKey{UserID: userID, Platform: platform}
	session := wsconn.New(conn, key, pointerID, g.heartbeat, g.onInbound, g.log)
	session.SetState(wsconn.Authenticated)

	g.registry.Register(session) // may evict a prior session with code 4001
	defer g.registry.Unregister(session)

	session.Run()
}

func (g *Gateway) onInbound(session *wsconn.Session, msg *types.Msg) {
	if msg.SendID == "" {
		msg.SendID = session.Key.UserID
	}
	if msg.Platform == types.PlatformUnknown {
		msg.Platform = session.Key.Platform
	}
	if msg.LocalID == "" {
		msg.LocalID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.forward(ctx, msg); err != nil {
		g.log.Warn("gateway: forward to ingest failed", zap.String("local_id", msg.LocalID), zap.Error(err))
	}
}

func parseWSPath(path string) (userID, pointerID string, platform types.Platform, token string, err error) {
	// /ws/{user_id}/conn/{pointer_id}/{platform}/{token}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 6 || parts[0] != "ws" || parts[2] != "conn" {
		return "", "", 0, "", errBadPath
	}
	userID = parts[1]
	pointerID = parts[3]
	n, convErr := strconv.Atoi(parts[4])
	if convErr != nil {
		return "", "", 0, "", errBadPath
	}
	platform = types.Platform(n)
	token = parts[5]
	return userID, pointerID, platform, token, nil
}

var errBadPath = &pathError{"gateway: malformed ws path"}

type pathError struct{ msg string }

func (e *pathError) Error() string { return e.msg }

// SendMsg broadcasts to every live session in this gateway process (spec
// §6 "MsgGatewayService.SendMsg(Msg) (broadcast within a gateway process)"),
// unlike SendMsgToUser which targets only receiver_id's sessions.
func (g *Gateway) SendMsg(ctx context.Context, req *rpc.GatewayMsgRequest) (*rpc.Ack, error) {
	sessions := g.registry.All()
	delivered := g.writeToAll(sessions, &req.Msg)
	return &rpc.Ack{Delivered: delivered}, nil
}

// SendMsgToUser writes msg to every session of receiver_id (spec §4.9).
// Absent recipients are silently skipped.
func (g *Gateway) SendMsgToUser(ctx context.Context, req *rpc.GatewayMsgRequest) (*rpc.Ack, error) {
	sessions := g.registry.AllForUser(req.Msg.ReceiverID)
	delivered := g.writeToAll(sessions, &req.Msg)
	return &rpc.Ack{Delivered: delivered}, nil
}

// SendGroupMsgToUser iterates members and writes to each one present (spec
// §4.9). Absent recipients are silently skipped.
func (g *Gateway) SendGroupMsgToUser(ctx context.Context, req *rpc.SendGroupToUserRequest) (*rpc.Ack, error) {
	delivered := 0
	for _, member := range req.Members {
		msg := req.Msg
		msg.ReceiverID = member.UserID
		msg.Seq = member.Cur
		sessions := g.registry.AllForUser(member.UserID)
		delivered += g.writeToAll(sessions, &msg)
	}
	return &rpc.Ack{Delivered: delivered}, nil
}

func (g *Gateway) writeToAll(sessions []*wsconn.Session, msg *types.Msg) int {
	if len(sessions) == 0 {
		return 0
	}
	frame, err := encodeFrame(msg)
	if err != nil {
		g.log.Warn("gateway: encode push frame failed", zap.Error(err))
		return 0
	}
	delivered := 0
	for _, s := range sessions {
		if s.Send(frame) {
			delivered++
		}
	}
	return delivered
}

// SessionCount exposes the live session count for metrics.
func (g *Gateway) SessionCount() int { return g.registry.Count() }

func encodeFrame(msg *types.Msg) ([]byte, error) {
	return json.Marshal(msg)
}
