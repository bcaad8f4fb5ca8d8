// Package rpc exposes the tracker over gRPC. The service is described by hand:
// every method takes and returns a google.protobuf.Struct holding the same
// JSON bodies as the HTTP API.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "exectrack.v1.ExecutionTracker"

// TrackerServer is the server API of the ExecutionTracker service.
type TrackerServer interface {
	LoadExecutions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveProgress(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ComputeStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTestCases(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveTestCases(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(TrackerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func method(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TrackerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(TrackerServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the ExecutionTracker service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TrackerServer)(nil),
	Methods: []grpc.MethodDesc{
		method("LoadExecutions", TrackerServer.LoadExecutions),
		method("SaveProgress", TrackerServer.SaveProgress),
		method("Transition", TrackerServer.Transition),
		method("ComputeStats", TrackerServer.ComputeStats),
		method("ListTestCases", TrackerServer.ListTestCases),
		method("GetSession", TrackerServer.GetSession),
		method("SaveTestCases", TrackerServer.SaveTestCases),
		method("SaveSession", TrackerServer.SaveSession),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "exectrack/v1/tracker.proto",
}

// RegisterTrackerServer registers srv on s.
func RegisterTrackerServer(s grpc.ServiceRegistrar, srv TrackerServer) {
	s.RegisterService(&ServiceDesc, srv)
}
