package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/MikhailRaia/shortlinks/internal/auth"
	"github.com/MikhailRaia/shortlinks/internal/config"
	"github.com/MikhailRaia/shortlinks/internal/handler"
	"github.com/MikhailRaia/shortlinks/internal/middleware"
	"github.com/MikhailRaia/shortlinks/internal/service"
	"github.com/MikhailRaia/shortlinks/internal/storage"
	"github.com/MikhailRaia/shortlinks/internal/storage/file"
	"github.com/MikhailRaia/shortlinks/internal/storage/memory"
	"github.com/MikhailRaia/shortlinks/internal/storage/postgres"
	"github.com/MikhailRaia/shortlinks/internal/storage/sqlite"
	"github.com/MikhailRaia/shortlinks/internal/worker"
)

const (
	rateLimitWindow   = time.Minute
	readHeaderTimeout = 5 * time.Second
	redisPingTimeout  = 5 * time.Second
)

type App struct {
	config     *config.Config
	storage    storage.URLStorage
	clicks     *worker.ClickWorkerPool
	sweeper    *worker.Sweeper
	redis      *redis.Client
	handler    http.Handler
	grpcServer *grpc.Server
}

// NewApp opens storage and wires the services, workers and servers described by cfg.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:  cfg,
		storage: store,
		sweeper: worker.NewSweeper(store, cfg.SweepInterval, cfg.ExpiredRetention),
	}

	poolConfig := worker.DefaultConfig()
	if cfg.ClickBatchSize > 0 {
		poolConfig.BatchSize = cfg.ClickBatchSize
	}
	if cfg.ClickFlushInterval > 0 {
		poolConfig.BatchTimeout = cfg.ClickFlushInterval
	}
	a.clicks = worker.NewClickWorkerPool(store, poolConfig)
	a.clicks.Start()

	rateLimit, err := a.newRateLimiter(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	trustedProxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	urlService := service.NewURLService(store, cfg.BaseURL, cfg.LinkTTL, service.WithClickRecorder(a.clicks))
	jwtService := auth.NewJWTService(cfg.JWTSecret)

	h := handler.NewHandler(urlService, middleware.NewAuthMiddleware(jwtService), handler.Options{
		QRServiceURL:   cfg.QRServiceURL,
		RateLimit:      rateLimit,
		TrustedProxies: trustedProxies,
	})
	a.handler = h.RegisterRoutes()

	if cfg.GRPCAddress != "" {
		a.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(
			middleware.GRPCLogger,
			middleware.NewGRPCAuthMiddleware(jwtService).UnaryInterceptor,
		))
		handler.RegisterShortenerServer(a.grpcServer, handler.NewShortenerGRPCServer(h))
	}

	return a, nil
}

// newStorage picks the backend from the configuration: a SQLite or libSQL DSN,
// any other DSN as PostgreSQL, then a file path, then memory.
func newStorage(ctx context.Context, cfg *config.Config) (storage.URLStorage, error) {
	switch {
	case cfg.DatabaseDSN != "" && sqlite.IsDSN(cfg.DatabaseDSN):
		log.Info().Msg("Using SQLite storage")
		store, err := sqlite.NewStorage(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return store, nil
	case cfg.DatabaseDSN != "":
		log.Info().Msg("Using PostgreSQL storage")
		store, err := postgres.NewStorage(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return store, nil
	case cfg.FileStoragePath != "":
		log.Info().Str("path", cfg.FileStoragePath).Msg("Using file storage")
		store, err := file.NewStorage(cfg.FileStoragePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open file storage: %w", err)
		}
		return store, nil
	default:
		log.Info().Msg("Using in-memory storage")
		return memory.NewStorage(), nil
	}
}

func (a *App) newRateLimiter(ctx context.Context) (func(http.Handler) http.Handler, error) {
	if a.config.RateLimit <= 0 {
		return nil, nil
	}

	var counter middleware.Counter = middleware.NewMemoryCounter()
	if a.config.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: a.config.RedisAddr})

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		counter = middleware.NewRedisCounter(a.redis)
	}

	return middleware.RateLimit(counter, a.config.RateLimit, rateLimitWindow), nil
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run listens on the configured addresses and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	httpListener, err := net.Listen("tcp", a.config.ServerAddress)
	if err != nil {
		_ = a.Close()
		return fmt.Errorf("failed to listen on %s: %w", a.config.ServerAddress, err)
	}

	var grpcListener net.Listener
	if a.grpcServer != nil {
		grpcListener, err = net.Listen("tcp", a.config.GRPCAddress)
		if err != nil {
			httpListener.Close()
			_ = a.Close()
			return fmt.Errorf("failed to listen on %s: %w", a.config.GRPCAddress, err)
		}
	}

	return a.Serve(ctx, httpListener, grpcListener)
}

// Serve runs the HTTP server, the gRPC server when grpcListener is not nil and
// the expiry sweeper. On return all servers are stopped and pending clicks flushed.
func (a *App) Serve(ctx context.Context, httpListener, grpcListener net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("address", httpListener.Addr().String()).Str("baseURL", a.config.BaseURL).Msg("Starting HTTP server")
		if err := srv.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.grpcServer != nil && grpcListener != nil {
		g.Go(func() error {
			log.Info().Str("address", grpcListener.Addr().String()).Msg("Starting gRPC server")
			if err := a.grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.sweeper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()

		if a.grpcServer != nil {
			a.grpcServer.GracefulStop()
		}
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	return errors.Join(err, a.Close())
}

// Close flushes queued clicks and releases storage and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.clicks != nil {
		if err := a.clicks.Shutdown(a.config.ShutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("click worker shutdown: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.storage.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
