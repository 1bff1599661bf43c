package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/MikhailRaia/shortlinks/internal/auth"
)

// GRPCLogger logs every unary call with its method, duration and status code.
func GRPCLogger(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	event := log.Info()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.
		Str("method", info.FullMethod).
		Str("code", code.String()).
		Dur("duration", time.Since(start)).
		Msg("gRPC request processed")

	return resp, err
}

type GRPCAuthMiddleware struct {
	jwtService *auth.JWTService
}

func NewGRPCAuthMiddleware(jwtService *auth.JWTService) *GRPCAuthMiddleware {
	return &GRPCAuthMiddleware{
		jwtService: jwtService,
	}
}

// UnaryInterceptor attaches the user from an "authorization" metadata token.
// Calls without a valid token proceed anonymously.
func (m *GRPCAuthMiddleware) UnaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return handler(ctx, req)
	}

	values := md.Get("authorization")
	if len(values) == 0 {
		return handler(ctx, req)
	}

	token := strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer "))
	claims, err := m.jwtService.ValidateToken(token)
	if err != nil {
		log.Debug().Err(err).Str("method", info.FullMethod).Msg("Ignoring invalid gRPC token")
		return handler(ctx, req)
	}

	return handler(WithUserID(ctx, claims.UserID), req)
}
