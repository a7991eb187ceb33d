package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexushost/portal/internal/auth"
	"github.com/nexushost/portal/internal/config"
	"github.com/nexushost/portal/internal/models"
	"github.com/nexushost/portal/internal/repository"
	"github.com/nexushost/portal/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Services are the use cases the handlers call into.
type Services struct {
	Servers  *service.ServerService
	Nodes    *service.NodeService
	Orders   *service.OrderService
	Callouts *service.CalloutService
	Tickets  *service.TicketService
	Profiles *service.ProfileService
	Admin    *service.AdminService
}

// Server is the portal HTTP API.
type Server struct {
	router    *gin.Engine
	svc       Services
	gate      *auth.Gate
	db        repository.DB
	log       zerolog.Logger
	functions map[string]function

	webhookSecret string
	// autoProvision means a paid webhook order creates a server.
	autoProvision bool
	// limiter caps every caller at 120 actions a minute.
	limiter *RateLimiter
	// provisionLimiter caps server creation at 10 an hour per caller.
	provisionLimiter *RateLimiter

	httpServer *http.Server
}

// NewServer wires the routes. db may be nil, in which case the table
// browser is not mounted.
func NewServer(cfg *config.Config, svc Services, gate *auth.Gate, db repository.DB, log zerolog.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))
	router.Use(Metrics())
	router.Use(CORS())

	s := &Server{
		router:           router,
		svc:              svc,
		gate:             gate,
		db:               db,
		log:              log.With().Str("component", "http").Logger(),
		webhookSecret:    cfg.Forpsi.WebhookSecret,
		autoProvision:    cfg.Provision.AutoProvisionEnabled(),
		limiter:          NewRateLimiter(120, time.Minute),
		provisionLimiter: NewRateLimiter(10, time.Hour),
	}
	s.functions = map[string]function{
		"admin-operations":    s.adminFunction(),
		"callouts-management": s.calloutsFunction(),
		"create-order":        s.createOrderFunction(),
		"create-server":       s.createServerFunction(),
		"pelican-integration": s.pelicanFunction(),
		"support-system":      s.supportFunction(),
		"forpsi-integration":  s.forpsiFunction(),
		"profile":             s.profileFunction(),
	}

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.setupRoutes(cfg.ServiceName)
	return s
}

func (s *Server) setupRoutes(serviceName string) {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": serviceName,
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	fns := s.router.Group("/functions/v1")
	{
		fns.POST("/:function", s.dispatch)
		fns.OPTIONS("/:function", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	}

	if s.db == nil {
		return
	}
	browser := NewDBBrowser(s.db, "public", s.fail)
	admin := s.router.Group("/admin/db")
	admin.Use(RequireRole(s.gate, models.RoleAdmin, s.fail))
	{
		admin.GET("/tables", browser.ListTables)
		admin.GET("/tables/:table/schema", browser.TableSchema)
		admin.GET("/tables/:table/rows", browser.QueryRows)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
