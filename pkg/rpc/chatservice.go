package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/kelpline/msgcore/internal/types"
)

// SendMsgRequest is the ChatService.SendMsg request (spec §6).
type SendMsgRequest struct {
	Msg types.Msg `json:"msg"`
}

// MsgResponse is the ChatService.SendMsg response (spec §6). Err carries the
// publish error as a string rather than raising, per spec §4.6 step 4 and
// Design Note §9(b) ("ingest returns the producer error inside the
// response's err field and still returns Ok").
type MsgResponse struct {
	LocalID  string `json:"local_id"`
	ServerID string `json:"server_id"`
	SendTime int64  `json:"send_time"`
	Err      string `json:"err,omitempty"`
}

// ChatServiceServer is implemented by internal/ingest.
type ChatServiceServer interface {
	SendMsg(ctx context.Context, req *SendMsgRequest) (*MsgResponse, error)
}

// ChatServiceName is the fully-qualified gRPC service name.
const ChatServiceName = "msgcore.chat.ChatService"

// ChatServiceDesc is the hand-written grpc.ServiceDesc standing in for
// protoc-generated code.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendMsg",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(SendMsgRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(ChatServiceServer).SendMsg(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ChatServiceName + "/SendMsg"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(ChatServiceServer).SendMsg(ctx, req.(*SendMsgRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chatservice.proto",
}

// ChatServiceClient calls ChatService over an existing *grpc.ClientConn.
type ChatServiceClient struct {
	cc *grpc.ClientConn
}

func NewChatServiceClient(cc *grpc.ClientConn) *ChatServiceClient {
	return &ChatServiceClient{cc: cc}
}

func (c *ChatServiceClient) SendMsg(ctx context.Context, req *SendMsgRequest, opts ...grpc.CallOption) (*MsgResponse, error) {
	out := new(MsgResponse)
	if err := c.cc.Invoke(ctx, "/"+ChatServiceName+"/SendMsg", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
