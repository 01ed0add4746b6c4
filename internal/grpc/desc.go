package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ParametersServiceDesc describes the parameter service using well-known
// protobuf message types so no generated package is required.
var ParametersServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ParametersServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "Set", Handler: setHandler},
		{MethodName: "List", Handler: listHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "regionsim/physics/v1/parameters.proto",
}

func getHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ParametersServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGet}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ParametersServer).Get(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func setHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ParametersServer).Set(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodSet}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ParametersServer).Set(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ParametersServer).List(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodList}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ParametersServer).List(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// ParametersClient calls the parameter service over a client connection.
type ParametersClient struct {
	cc grpc.ClientConnInterface
}

// NewParametersClient wraps an established connection.
func NewParametersClient(cc grpc.ClientConnInterface) *ParametersClient {
	return &ParametersClient{cc: cc}
}

// Get reads one parameter.
func (c *ParametersClient) Get(ctx context.Context, name string, opts ...grpc.CallOption) (float64, error) {
	out := new(wrapperspb.DoubleValue)
	if err := c.cc.Invoke(ctx, MethodGet, wrapperspb.String(name), out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// Set changes one parameter; target uses the "none" / "all" / handle syntax.
func (c *ParametersClient) Set(ctx context.Context, name string, value float64, target string, opts ...grpc.CallOption) error {
	in, err := structpb.NewStruct(map[string]interface{}{
		"name":   name,
		"value":  value,
		"target": target,
	})
	if err != nil {
		return err
	}
	return c.cc.Invoke(ctx, MethodSet, in, new(emptypb.Empty), opts...)
}

// List returns the raw parameter listing.
func (c *ParametersClient) List(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodList, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
