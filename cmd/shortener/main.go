package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/MikhailRaia/shortlinks/internal/app"
	"github.com/MikhailRaia/shortlinks/internal/config"
	"github.com/MikhailRaia/shortlinks/internal/logger"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logger.InitLogger(cfg.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}

	if err := application.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Error running application")
		stop()
		os.Exit(1)
	}

	log.Info().Msg("Server stopped")
}
