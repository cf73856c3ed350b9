package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

type queryFunc func(BookQueryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call queryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BookQueryServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + method,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(BookQueryServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes lobster.v1.BookQuery for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookQueryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("TopOfBook", BookQueryServer.TopOfBook),
		unary("Depth", BookQueryServer.Depth),
		unary("Snapshots", BookQueryServer.Snapshots),
		unary("Spreads", BookQueryServer.Spreads),
		unary("Status", BookQueryServer.Status),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lobster/v1/book_query.proto",
}
