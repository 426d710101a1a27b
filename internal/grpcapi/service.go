// Package grpcapi exposes the demo scenarios over gRPC. Messages are
// google.protobuf.Struct so no generated code is needed.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "kgrbac.v1.Demo"

	listScenariosMethod = "/" + ServiceName + "/ListScenarios"
	runScenarioMethod   = "/" + ServiceName + "/RunScenario"
)

// DemoServer is the server API for kgrbac.v1.Demo.
type DemoServer interface {
	ListScenarios(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunScenario(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes kgrbac.v1.Demo for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DemoServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListScenarios", Handler: listScenariosHandler},
		{MethodName: "RunScenario", Handler: runScenarioHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kgrbac/v1/demo.proto",
}

// RegisterDemoServer registers srv on s.
func RegisterDemoServer(s grpc.ServiceRegistrar, srv DemoServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func listScenariosHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DemoServer).ListScenarios(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listScenariosMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DemoServer).ListScenarios(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func runScenarioHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DemoServer).RunScenario(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runScenarioMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DemoServer).RunScenario(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls kgrbac.v1.Demo.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) ListScenarios(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listScenariosMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RunScenario(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, runScenarioMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
