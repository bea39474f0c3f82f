// Package remote carries the allocation ports over gRPC. Messages are
// google.protobuf.Struct values, so the service needs no generated code.
package remote

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "allocation.v1.AllocationService"

// Full method names.
const (
	ReadWeightsMethod      = "/" + ServiceName + "/ReadWeights"
	WriteWeightsMethod     = "/" + ServiceName + "/WriteWeights"
	ReadObservationsMethod = "/" + ServiceName + "/ReadObservations"
)

// #region service-desc

// AllocationServiceServer is the server API of the allocation service.
//
//	ReadWeights       {experiment_id} -> {weights}
//	WriteWeights      {experiment_id, weights, explanation} -> {}
//	ReadObservations  {experiment_id, window_start, window_end} -> {observations}
type AllocationServiceServer interface {
	ReadWeights(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WriteWeights(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReadObservations(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the allocation service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AllocationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReadWeights", Handler: unaryHandler(ReadWeightsMethod, AllocationServiceServer.ReadWeights)},
		{MethodName: "WriteWeights", Handler: unaryHandler(WriteWeightsMethod, AllocationServiceServer.WriteWeights)},
		{MethodName: "ReadObservations", Handler: unaryHandler(ReadObservationsMethod, AllocationServiceServer.ReadObservations)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "allocation/v1/allocation.proto",
}

// RegisterAllocationServiceServer registers srv with s.
func RegisterAllocationServiceServer(s grpc.ServiceRegistrar, srv AllocationServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(AllocationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AllocationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AllocationServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// #endregion service-desc
