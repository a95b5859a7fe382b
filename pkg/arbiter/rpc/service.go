package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ArbiterServer is the service interface a node implements to answer
// the arbiter socket's PREPARE/COMMIT PREPARED/ABORT PREPARED/HEARTBEAT
// messages from a peer.
type ArbiterServer interface {
	Prepare(context.Context, *PrepareRequest) (*PrepareResponse, error)
	CommitPrepared(context.Context, *CommitRequest) (*CommitResponse, error)
	AbortPrepared(context.Context, *AbortRequest) (*AbortResponse, error)
	Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
}

const serviceName = "arbiter.Arbiter"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ArbiterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Prepare", Handler: prepareHandler},
		{MethodName: "CommitPrepared", Handler: commitPreparedHandler},
		{MethodName: "AbortPrepared", Handler: abortPreparedHandler},
		{MethodName: "Heartbeat", Handler: heartbeatHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "arbiter.proto",
}

// RegisterArbiterServer attaches srv to a running *grpc.Server.
func RegisterArbiterServer(s *grpc.Server, srv ArbiterServer) {
	s.RegisterService(&serviceDesc, srv)
}

func prepareHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PrepareRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ArbiterServer).Prepare(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Prepare"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ArbiterServer).Prepare(ctx, req.(*PrepareRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func commitPreparedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CommitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ArbiterServer).CommitPrepared(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CommitPrepared"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ArbiterServer).CommitPrepared(ctx, req.(*CommitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func abortPreparedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AbortRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ArbiterServer).AbortPrepared(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/AbortPrepared"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ArbiterServer).AbortPrepared(ctx, req.(*AbortRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func heartbeatHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HeartbeatRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ArbiterServer).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Heartbeat"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ArbiterServer).Heartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ArbiterClient is the client stub for ArbiterServer.
type ArbiterClient interface {
	Prepare(ctx context.Context, in *PrepareRequest, opts ...grpc.CallOption) (*PrepareResponse, error)
	CommitPrepared(ctx context.Context, in *CommitRequest, opts ...grpc.CallOption) (*CommitResponse, error)
	AbortPrepared(ctx context.Context, in *AbortRequest, opts ...grpc.CallOption) (*AbortResponse, error)
	Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error)
}

type arbiterClient struct {
	cc *grpc.ClientConn
}

// NewArbiterClient wraps an established connection as an ArbiterClient,
// forcing every call onto the JSON codec registered in codec.go.
func NewArbiterClient(cc *grpc.ClientConn) ArbiterClient {
	return &arbiterClient{cc: cc}
}

func (c *arbiterClient) Prepare(ctx context.Context, in *PrepareRequest, opts ...grpc.CallOption) (*PrepareResponse, error) {
	out := new(PrepareResponse)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Prepare", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *arbiterClient) CommitPrepared(ctx context.Context, in *CommitRequest, opts ...grpc.CallOption) (*CommitResponse, error) {
	out := new(CommitResponse)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/CommitPrepared", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *arbiterClient) AbortPrepared(ctx context.Context, in *AbortRequest, opts ...grpc.CallOption) (*AbortResponse, error) {
	out := new(AbortResponse)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/AbortPrepared", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *arbiterClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	out := new(HeartbeatResponse)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Heartbeat", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
