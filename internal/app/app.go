// Package app assembles the portal from configuration. Both the API server
// and the operator CLI start from here.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/client"
	"github.com/nexushost/portal/internal/config"
	"github.com/nexushost/portal/internal/db"
	"github.com/nexushost/portal/internal/http"
	"github.com/nexushost/portal/internal/metrics"
	"github.com/nexushost/portal/internal/repository"
	"github.com/nexushost/portal/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// App holds the wired portal shared by the API server and the CLI.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Pool     *pgxpool.Pool
	Gate     *auth.Gate
	Services http.Services
}

// New connects to the database and builds every service. Close releases
// the pool.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	pool, err := db.NewPool(ctx, cfg.Database.DSN(), log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	profiles := repository.NewProfileRepository(pool)
	servers := repository.NewServerRepository(pool)
	orders := repository.NewOrderRepository(pool)
	callouts := repository.NewCalloutRepository(pool)
	tickets := repository.NewTicketRepository(pool)
	nodes := repository.NewNodeRepository(pool)
	keys := repository.NewAPIKeyRepository(pool)
	metricRepo := repository.NewMetricRepository(pool)
	serverLogs := repository.NewServerLogRepository(pool)

	pelican := client.NewPelicanClient(cfg.Pelican)
	wings := client.NewWingsClient(cfg.Pelican.WingsTimeout)
	forpsi := client.NewForpsiClient(cfg.Forpsi)

	serverSvc := service.NewServerService(cfg.Provision, servers, orders, profiles, callouts, serverLogs, pelican, log)

	return &App{
		Config: cfg,
		Log:    log,
		Pool:   pool,
		Gate:   auth.NewGate(cfg.Auth.JWTSecret, profiles),
		Services: http.Services{
			Servers:  serverSvc,
			Nodes:    service.NewNodeService(pelican, wings, cfg.Pelican.NodeTokens, nodes, servers, log),
			Orders:   service.NewOrderService(cfg.Provision, orders, profiles, keys, forpsi, serverSvc, log),
			Callouts: service.NewCalloutService(callouts, log),
			Tickets:  service.NewTicketService(tickets, log),
			Profiles: service.NewProfileService(profiles, log),
			Admin:    service.NewAdminService(profiles, metricRepo, keys, log),
		},
	}, nil
}

// HTTPServer builds the API server and registers the pool gauges.
func (a *App) HTTPServer() *http.Server {
	metrics.RegisterPgxPoolMetrics(prometheus.DefaultRegisterer, a.Pool)
	return http.NewServer(a.Config, a.Services, a.Gate, a.Pool, a.Log)
}

// Close releases the database pool.
func (a *App) Close() {
	a.Pool.Close()
}
