package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexushost/portal/internal/app"
	"github.com/nexushost/portal/internal/config"
	"github.com/nexushost/portal/internal/db"
	"github.com/nexushost/portal/internal/logging"
)

func main() {
	cfg := config.Load()
	log := logging.NewLogger(cfg)
	log.Info().Msg("starting portal API")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if cfg.Database.AutoMigrate {
		if err := db.RunMigrations(cfg.Database.DSN()); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		log.Info().Msg("migrations applied")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	if cfg.Server.SyncInterval > 0 {
		go a.Services.Servers.RunSync(ctx, cfg.Server.SyncInterval)
		log.Info().Dur("interval", cfg.Server.SyncInterval).Msg("server status sync enabled")
	}

	server := a.HTTPServer()
	go func() {
		log.Info().Str("addr", server.Addr()).Msg("server listening")
		if err := server.Run(); err != nil {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
	log.Info().Msg("server exited")
}
