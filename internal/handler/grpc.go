package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/MikhailRaia/shortlinks/internal/middleware"
	"github.com/MikhailRaia/shortlinks/internal/service"
	"github.com/MikhailRaia/shortlinks/internal/storage"
)

// ShortenerServiceName is the fully qualified gRPC service name.
const ShortenerServiceName = "shortlinks.Shortener"

// ShortenerServer is the gRPC surface. Messages are well-known protobuf
// types so the default codec handles them without generated code.
type ShortenerServer interface {
	Shorten(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetURL(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Rankings(context.Context, *wrapperspb.Int32Value) (*structpb.ListValue, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var ShortenerServiceDesc = grpc.ServiceDesc{
	ServiceName: ShortenerServiceName,
	HandlerType: (*ShortenerServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Shorten", ShortenerServer.Shorten),
		unaryMethod("GetURL", ShortenerServer.GetURL),
		unaryMethod("Rankings", ShortenerServer.Rankings),
		unaryMethod("Stats", ShortenerServer.Stats),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shortlinks.proto",
}

func unaryMethod[Req any, Resp any](name string, call func(ShortenerServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(ShortenerServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ShortenerServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

// RegisterShortenerServer registers srv on s.
func RegisterShortenerServer(s grpc.ServiceRegistrar, srv ShortenerServer) {
	s.RegisterService(&ShortenerServiceDesc, srv)
}

type ShortenerGRPCServer struct {
	h *Handler
}

// NewShortenerGRPCServer exposes the handler's service over gRPC.
func NewShortenerGRPCServer(h *Handler) *ShortenerGRPCServer {
	return &ShortenerGRPCServer{h: h}
}

func (s *ShortenerGRPCServer) Shorten(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	url := fields["url"].GetStringValue()
	if url == "" {
		return nil, status.Error(codes.InvalidArgument, "url is required")
	}

	userID, _ := middleware.GetUserIDFromContext(ctx)

	mapping, created, err := s.h.urlService.ShortenURL(ctx, url, fields["algorithm"].GetStringValue(), userID)
	if err != nil {
		return nil, grpcError(err, "failed to shorten URL")
	}

	resp, err := toStruct(s.h.view(mapping))
	if err != nil {
		return nil, err
	}
	resp.Fields["created"] = structpb.NewBoolValue(created)
	return resp, nil
}

func (s *ShortenerGRPCServer) GetURL(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	mapping, err := s.h.urlService.GetURL(ctx, req.GetValue())
	if err != nil {
		return nil, grpcError(err, "failed to get URL")
	}
	return toStruct(s.h.view(mapping))
}

func (s *ShortenerGRPCServer) Rankings(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.ListValue, error) {
	limit := int(req.GetValue())
	switch {
	case limit == 0:
		limit = defaultRankingLimit
	case limit < 0:
		return nil, status.Error(codes.InvalidArgument, "limit must be a positive integer")
	case limit > maxRankingLimit:
		limit = maxRankingLimit
	}

	top, err := s.h.urlService.Rankings(ctx, limit)
	if err != nil {
		return nil, grpcError(err, "failed to compute rankings")
	}

	list := &structpb.ListValue{}
	if err := fromJSON(s.h.views(top), list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *ShortenerGRPCServer) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	stats, err := s.h.urlService.Stats(ctx)
	if err != nil {
		return nil, grpcError(err, "failed to compute ranking stats")
	}
	return toStruct(stats)
}

func grpcError(err error, msg string) error {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrCollision), errors.Is(err, storage.ErrURLExists):
		return status.Error(codes.AlreadyExists, err.Error())
	}
	log.Error().Err(err).Msg(msg)
	return status.Errorf(codes.Internal, "%s: %v", msg, err)
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	if err := fromJSON(v, out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromJSON(v interface{}, out proto.Message) error {
	body, err := json.Marshal(v)
	if err != nil {
		return status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	if err := protojson.Unmarshal(body, out); err != nil {
		return status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return nil
}

// ShortenerClient calls the Shortener service over a client connection.
type ShortenerClient struct {
	cc grpc.ClientConnInterface
}

func NewShortenerClient(cc grpc.ClientConnInterface) *ShortenerClient {
	return &ShortenerClient{cc: cc}
}

func (c *ShortenerClient) Shorten(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ShortenerServiceName+"/Shorten", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ShortenerClient) GetURL(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ShortenerServiceName+"/GetURL", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ShortenerClient) Rankings(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+ShortenerServiceName+"/Rankings", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ShortenerClient) Stats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ShortenerServiceName+"/Stats", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
