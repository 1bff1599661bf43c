package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/MikhailRaia/shortlinks/internal/middleware"
)

func newGRPCClient(t *testing.T, ts *testServer) *ShortenerClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.GRPCLogger,
		middleware.NewGRPCAuthMiddleware(ts.jwt).UnaryInterceptor,
	))
	RegisterShortenerServer(srv, NewShortenerGRPCServer(ts.handler))

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewShortenerClient(conn)
}

func shortenRequest(t *testing.T, url, algorithm string) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(map[string]interface{}{"url": url, "algorithm": algorithm})
	require.NoError(t, err)
	return req
}

func TestGRPC_ShortenAndGet(t *testing.T) {
	ts := newTestServer(t)
	client := newGRPCClient(t, ts)
	ctx := context.Background()

	resp, err := client.Shorten(ctx, shortenRequest(t, "https://example.com", ""))
	require.NoError(t, err)

	fields := resp.GetFields()
	assert.Equal(t, exampleCode, fields["id"].GetStringValue())
	assert.Equal(t, "MD5", fields["algorithm"].GetStringValue())
	assert.Equal(t, testBaseURL+"/r/"+exampleCode, fields["shortUrl"].GetStringValue())
	assert.True(t, fields["created"].GetBoolValue())
	assert.Equal(t, float64(30), fields["expiresIn"].GetStructValue().GetFields()["days"].GetNumberValue())

	resp, err = client.Shorten(ctx, shortenRequest(t, "https://example.com", "MD5"))
	require.NoError(t, err)
	assert.False(t, resp.GetFields()["created"].GetBoolValue())

	got, err := client.GetURL(ctx, wrapperspb.String(exampleCode))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.GetFields()["originalUrl"].GetStringValue())
}

func TestGRPC_Errors(t *testing.T) {
	ts := newTestServer(t)
	client := newGRPCClient(t, ts)
	ctx := context.Background()

	_, err := client.Shorten(ctx, shortenRequest(t, "", ""))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Shorten(ctx, shortenRequest(t, "ftp://example.com/file", ""))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.GetURL(ctx, wrapperspb.String("missing"))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetURL(ctx, wrapperspb.String(""))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Rankings(ctx, wrapperspb.Int32(-1))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_RankingsAndStats(t *testing.T) {
	ts := newTestServer(t)
	client := newGRPCClient(t, ts)
	ctx := context.Background()

	_, err := client.Shorten(ctx, shortenRequest(t, "https://example.com", ""))
	require.NoError(t, err)
	_, err = client.Shorten(ctx, shortenRequest(t, "https://example.org", ""))
	require.NoError(t, err)
	require.Equal(t, 302, ts.do("GET", "/r/"+exampleCode, nil).Code)

	list, err := client.Rankings(ctx, wrapperspb.Int32(0))
	require.NoError(t, err)
	require.Len(t, list.GetValues(), 2)
	top := list.GetValues()[0].GetStructValue().GetFields()
	assert.Equal(t, exampleCode, top["id"].GetStringValue())
	assert.Equal(t, float64(1), top["clickCount"].GetNumberValue())

	stats, err := client.Stats(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, float64(2), stats.GetFields()["totalUrls"].GetNumberValue())
	assert.Equal(t, float64(1), stats.GetFields()["totalClicks"].GetNumberValue())
}

func TestGRPC_ShortenWithOwner(t *testing.T) {
	ts := newTestServer(t)
	client := newGRPCClient(t, ts)

	token, err := ts.jwt.GenerateToken("grpc-owner")
	require.NoError(t, err)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)

	_, err = client.Shorten(ctx, shortenRequest(t, "https://example.com", ""))
	require.NoError(t, err)

	owned, err := ts.store.ListByOwner(context.Background(), "grpc-owner")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, exampleCode, owned[0].ID)
}
