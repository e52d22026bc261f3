package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/kelpline/msgcore/internal/types"
)

// GatewayMsgRequest wraps a Msg for the broadcast and send_to_user RPCs
// (spec §6).
type GatewayMsgRequest struct {
	Msg types.Msg `json:"msg"`
}

// SendGroupToUserRequest wraps a Msg and its resolved per-member sequence
// list for the send_group_to_user RPC (spec §4.9).
type SendGroupToUserRequest struct {
	Msg     types.Msg          `json:"msg"`
	Members []types.MemberSeq `json:"members"`
}

// Ack is the uniform response for every MsgGatewayService method.
type Ack struct {
	Delivered int    `json:"delivered"`
	Err       string `json:"err,omitempty"`
}

// MsgGatewayServiceServer is implemented by internal/gateway.
type MsgGatewayServiceServer interface {
	SendMsg(ctx context.Context, req *GatewayMsgRequest) (*Ack, error)
	SendMsgToUser(ctx context.Context, req *GatewayMsgRequest) (*Ack, error)
	SendGroupMsgToUser(ctx context.Context, req *SendGroupToUserRequest) (*Ack, error)
}

// MsgGatewayServiceName is the fully-qualified gRPC service name.
const MsgGatewayServiceName = "msgcore.gateway.MsgGatewayService"

// MsgGatewayServiceDesc is the hand-written grpc.ServiceDesc for the
// gateway push surface (spec §6).
var MsgGatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: MsgGatewayServiceName,
	HandlerType: (*MsgGatewayServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendMsg",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(GatewayMsgRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(MsgGatewayServiceServer).SendMsg(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + MsgGatewayServiceName + "/SendMsg"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(MsgGatewayServiceServer).SendMsg(ctx, req.(*GatewayMsgRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "SendMsgToUser",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(GatewayMsgRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(MsgGatewayServiceServer).SendMsgToUser(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + MsgGatewayServiceName + "/SendMsgToUser"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(MsgGatewayServiceServer).SendMsgToUser(ctx, req.(*GatewayMsgRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "SendGroupMsgToUser",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(SendGroupToUserRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(MsgGatewayServiceServer).SendGroupMsgToUser(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + MsgGatewayServiceName + "/SendGroupMsgToUser"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(MsgGatewayServiceServer).SendGroupMsgToUser(ctx, req.(*SendGroupToUserRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gatewayservice.proto",
}

// MsgGatewayServiceClient calls MsgGatewayService over an existing
// *grpc.ClientConn (used by the pusher, C8).
type MsgGatewayServiceClient struct {
	cc *grpc.ClientConn
}

func NewMsgGatewayServiceClient(cc *grpc.ClientConn) *MsgGatewayServiceClient {
	return &MsgGatewayServiceClient{cc: cc}
}

func (c *MsgGatewayServiceClient) SendMsg(ctx context.Context, req *GatewayMsgRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+MsgGatewayServiceName+"/SendMsg", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MsgGatewayServiceClient) SendMsgToUser(ctx context.Context, req *GatewayMsgRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+MsgGatewayServiceName+"/SendMsgToUser", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MsgGatewayServiceClient) SendGroupMsgToUser(ctx context.Context, req *SendGroupToUserRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, "/"+MsgGatewayServiceName+"/SendGroupMsgToUser", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func RegisterMsgGatewayServiceServer(s *grpc.Server, srv MsgGatewayServiceServer) {
	s.RegisterService(&MsgGatewayServiceDesc, srv)
}

func RegisterChatServiceServer(s *grpc.Server, srv ChatServiceServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}
