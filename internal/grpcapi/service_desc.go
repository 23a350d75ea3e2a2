package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "demand.v1.ForecastService"

const (
	ForecastService_PredictDemand_FullMethodName       = "/" + ServiceName + "/PredictDemand"
	ForecastService_GetAccuracy_FullMethodName         = "/" + ServiceName + "/GetAccuracy"
	ForecastService_ReconcilePrediction_FullMethodName = "/" + ServiceName + "/ReconcilePrediction"
)

// ForecastServiceServer is the server API for demand.v1.ForecastService.
// Requests and responses are google.protobuf.Struct messages.
type ForecastServiceServer interface {
	PredictDemand(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAccuracy(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReconcilePrediction(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterForecastServiceServer registers srv on s
func RegisterForecastServiceServer(s grpc.ServiceRegistrar, srv ForecastServiceServer) {
	s.RegisterService(&ForecastService_ServiceDesc, srv)
}

// ForecastService_ServiceDesc is the grpc.ServiceDesc for demand.v1.ForecastService
var ForecastService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ForecastServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PredictDemand",
			Handler:    unaryHandler(ForecastService_PredictDemand_FullMethodName, ForecastServiceServer.PredictDemand),
		},
		{
			MethodName: "GetAccuracy",
			Handler:    unaryHandler(ForecastService_GetAccuracy_FullMethodName, ForecastServiceServer.GetAccuracy),
		},
		{
			MethodName: "ReconcilePrediction",
			Handler:    unaryHandler(ForecastService_ReconcilePrediction_FullMethodName, ForecastServiceServer.ReconcilePrediction),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "demand/v1/forecast.proto",
}

type structMethod func(ForecastServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, method structMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(ForecastServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return method(srv.(ForecastServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ForecastServiceClient is the client API for demand.v1.ForecastService
type ForecastServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewForecastServiceClient creates a client on cc
func NewForecastServiceClient(cc grpc.ClientConnInterface) *ForecastServiceClient {
	return &ForecastServiceClient{cc: cc}
}

func (c *ForecastServiceClient) PredictDemand(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ForecastService_PredictDemand_FullMethodName, in, opts...)
}

func (c *ForecastServiceClient) GetAccuracy(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ForecastService_GetAccuracy_FullMethodName, in, opts...)
}

func (c *ForecastServiceClient) ReconcilePrediction(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ForecastService_ReconcilePrediction_FullMethodName, in, opts...)
}

func (c *ForecastServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
