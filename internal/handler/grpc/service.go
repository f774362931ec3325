package grpc

import (
	"context"

	grpclib "google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name this tree serves,
// in place of one a .proto file would otherwise declare.
const ServiceName = "webitel.telemetry.v1.Telemetry"

// ServiceDesc is hand-rolled in place of a protoc-generated
// grpc.ServiceDesc, wiring the same google.golang.org/grpc server machinery
// (HTTP/2 framing, flow control, interceptor chain) directly against the
// JSON codec in codec.go.
var ServiceDesc = grpclib.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpclib.MethodDesc{
		{
			MethodName: "Control",
			Handler:    controlHandler,
		},
	},
	Streams: []grpclib.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "telemetry.proto",
}

func controlHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpclib.UnaryServerInterceptor) (interface{}, error) {
	in := new(ControlRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	svc := srv.(*DeliveryService)
	if interceptor == nil {
		return svc.Control(ctx, in)
	}
	info := &grpclib.UnaryServerInfo{Server: svc, FullMethod: ServiceName + "/Control"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return svc.Control(ctx, req.(*ControlRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv interface{}, stream grpclib.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	svc := srv.(*DeliveryService)
	return svc.Subscribe(in, stream)
}

// RegisterDeliveryServer wires a DeliveryService into a *grpc.Server - the
// hand-rolled analogue of a generated RegisterTelemetryServer function.
func RegisterDeliveryServer(s *grpclib.Server, svc *DeliveryService) {
	s.RegisterService(&ServiceDesc, svc)
}
