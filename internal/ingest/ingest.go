// Package ingest implements the Chat Ingest RPC (C6): SendMsg assigns a
// server-id and send-time, then publishes the envelope onto the queue topic
// (spec §4.6).
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kelpline/msgcore/internal/types"
	"github.com/kelpline/msgcore/pkg/queue"
	"github.com/kelpline/msgcore/pkg/rpc"
)

// Publisher is the subset of queue.Producer ingest depends on, narrowed for
// testability.
type Publisher interface {
	Publish(msg *types.Msg) error
}

var _ Publisher = (*queue.Producer)(nil)

// Service implements rpc.ChatServiceServer.
type Service struct {
	publisher Publisher
	log       *zap.Logger
}

func New(publisher Publisher, log *zap.Logger) *Service {
	return &Service{publisher: publisher, log: log}
}

var _ rpc.ChatServiceServer = (*Service)(nil)

// SendMsg implements spec §4.6: assign server_id (unless the message is one
// of the three delivery-receipt types that reuse their incoming id), stamp
// send_time, publish, and return the publish error inline rather than
// raising it (Design Note §9(b)).
func (s *Service) SendMsg(ctx context.Context, req *rpc.SendMsgRequest) (*rpc.MsgResponse, error) {
	msg := req.Msg

	if !msg.MsgType.ReusesIncomingID() {
		msg.ServerID = uuid.NewString()
	}
	msg.SendTime = time.Now().UnixMilli()

	resp := &rpc.MsgResponse{
		LocalID:  msg.LocalID,
		ServerID: msg.ServerID,
		SendTime: msg.SendTime,
	}

	if err := s.publisher.Publish(&msg); err != nil {
		s.log.Warn("ingest: publish failed", zap.String("server_id", msg.ServerID), zap.Error(err))
		resp.Err = err.Error()
	}
	return resp, nil
}
