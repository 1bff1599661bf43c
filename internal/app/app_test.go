package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/MikhailRaia/shortlinks/internal/config"
	"github.com/MikhailRaia/shortlinks/internal/handler"
	"github.com/MikhailRaia/shortlinks/internal/storage/file"
	"github.com/MikhailRaia/shortlinks/internal/storage/memory"
	"github.com/MikhailRaia/shortlinks/internal/storage/sqlite"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.FileStoragePath = filepath.Join(t.TempDir(), "links.jsonl")
	cfg.BaseURL = "http://short.test"
	cfg.ClickFlushInterval = 10 * time.Millisecond
	return cfg
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return lis
}

func TestApp_Integration(t *testing.T) {
	cfg := testConfig(t)
	cfg.GRPCAddress = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := NewApp(ctx, cfg)
	require.NoError(t, err)

	httpLis, grpcLis := listen(t), listen(t)
	served := make(chan error, 1)
	go func() {
		served <- application.Serve(ctx, httpLis, grpcLis)
	}()

	baseURL := "http://" + httpLis.Addr().String()
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Post(baseURL+"/api/shorten?url=https://example.com", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var view handler.URLView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()
	assert.Equal(t, "http://short.test/r/"+view.ID, view.ShortURL)

	for i := 0; i < 2; i++ {
		resp, err = client.Get(baseURL + "/r/" + view.ID)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "https://example.com", resp.Header.Get("Location"))
	}

	conn, err := grpc.NewClient(grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	got, err := handler.NewShortenerClient(conn).GetURL(ctx, wrapperspb.String(view.ID))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.GetFields()["originalUrl"].GetStringValue())

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}

	reopened, err := file.NewStorage(cfg.FileStoragePath)
	require.NoError(t, err)
	defer reopened.Close()

	mapping, err := reopened.Get(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), mapping.ClickCount, "queued clicks are flushed on shutdown")
}

func TestApp_RateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit = 1

	application, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer application.Close()

	server := &http.Server{Handler: application.Handler()}
	lis := listen(t)
	go server.Serve(lis)
	defer server.Close()

	url := "http://" + lis.Addr().String() + "/api/shorten?url=https://example.com"

	resp, err := http.Post(url, "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Post(url, "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestApp_UnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := NewApp(context.Background(), cfg)
	assert.ErrorContains(t, err, "failed to connect to Redis")
}

func TestApp_InvalidTrustedProxy(t *testing.T) {
	cfg := testConfig(t)
	cfg.TrustedProxies = []string{"proxy.internal"}

	_, err := NewApp(context.Background(), cfg)
	assert.ErrorContains(t, err, "invalid trusted proxy")
}

func TestNewStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.FileStoragePath = ""

		store, err := newStorage(ctx, cfg)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &memory.Storage{}, store)
	})

	t.Run("file", func(t *testing.T) {
		store, err := newStorage(ctx, testConfig(t))
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &file.Storage{}, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.DatabaseDSN = "file:" + filepath.Join(t.TempDir(), "links.db")

		store, err := newStorage(ctx, cfg)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &sqlite.Storage{}, store)
	})
}
