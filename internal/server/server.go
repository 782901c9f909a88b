// Package server is the composition root: it builds every dependency from
// the configuration, mounts the routes and runs the HTTP server.
//
// DEPENDENCY GRAPH:
//
//	config ─┬─ ledger (postgrest | sqlite) ─┬─ GenerationService ─ GenerateHandler
//	        │                               └─ PointsService ───── PointsHandler
//	        ├─ imagegen.Gateway (OpenRouter) ┘
//	        ├─ billing.CheckoutClient (Creem) ─ CheckoutService ─┐
//	        ├─ webhook secret ───────────────── WebhookService ──┴ BillingHandler
//	        └─ auth.Supabase / TokenService ─── Sessions, AuthService ─ AuthHandler
//
// Each layer receives only the interfaces it needs.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/bananagen/internal/auth"
	"github.com/sakif/bananagen/internal/billing"
	"github.com/sakif/bananagen/internal/config"
	"github.com/sakif/bananagen/internal/handler"
	"github.com/sakif/bananagen/internal/imagegen"
	"github.com/sakif/bananagen/internal/middleware"
	"github.com/sakif/bananagen/internal/repository"
	"github.com/sakif/bananagen/internal/repository/postgrest"
	sqliteRepo "github.com/sakif/bananagen/internal/repository/sqlite"
	"github.com/sakif/bananagen/internal/service"
)

// ledger is what the server needs from a ledger backend.
type ledger struct {
	points  repository.PointsRepository
	granter repository.PointsGranter // nil when refunds cannot be issued
	closer  io.Closer                // nil when nothing to release
}

// Server owns the router and the resources it must release on shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	ledger ledger
}

// New wires the application from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	l, err := openLedger(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		ledger: l,
	}
	s.setupRoutes()
	return s, nil
}

func openLedger(cfg *config.Config) (ledger, error) {
	switch cfg.Ledger.Driver {
	case config.LedgerSQLite:
		db, err := sqliteRepo.New(cfg.Ledger.SQLitePath)
		if err != nil {
			return ledger{}, err
		}
		return ledger{points: db, granter: db, closer: db}, nil

	case config.LedgerPostgREST:
		c := postgrest.New(cfg.Supabase.URL, cfg.Supabase.AnonKey, cfg.Supabase.ServiceRoleKey, nil)
		l := ledger{points: c}
		if c.CanGrant() {
			l.granter = c
		}
		return l, nil

	default:
		return ledger{}, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
	}
}

// identity picks the session verifier and the browser login provider.
//
// Tokens are verified locally when the project JWT secret is known and by
// asking GoTrue otherwise. Without any identity configuration every
// request is anonymous.
func (s *Server) identity() (auth.SessionVerifier, auth.SessionRefresher, service.IdentityProvider) {
	cfg := s.config.Supabase

	var supabase *auth.Supabase
	if cfg.IdentityConfigured() {
		supabase = auth.NewSupabase(cfg.URL, cfg.AnonKey, cfg.OAuthProvider, nil)
	}

	var verifier auth.SessionVerifier
	if cfg.JWTSecret != "" {
		issuer := ""
		if cfg.URL != "" {
			issuer = cfg.URL + "/auth/v1"
		}
		tokens, err := auth.NewTokenService(cfg.JWTSecret, issuer)
		if err != nil {
			s.logger.Warn("SUPABASE_JWT_SECRET rejected, verifying sessions remotely",
				slog.String("error", err.Error()),
			)
		} else {
			verifier = tokens
		}
	}

	if supabase == nil {
		if verifier == nil {
			s.logger.Warn("identity provider not configured, all requests are anonymous")
		}
		return verifier, nil, nil
	}
	if verifier == nil {
		verifier = supabase
	}
	return verifier, supabase, supabase
}

func (s *Server) setupRoutes() {
	cfg := s.config

	verifier, refresher, provider := s.identity()
	sessions := auth.NewSessions(verifier, refresher, cfg.Cookie.Secure, s.logger)

	gateway := imagegen.NewGateway(imagegen.NewClient(imagegen.ClientConfig{
		BaseURL:  cfg.OpenRouter.BaseURL,
		APIKey:   cfg.OpenRouter.APIKey,
		SiteURL:  cfg.Site.URL,
		SiteName: cfg.Site.Name,
	}, nil), s.logger)

	var genOpts []service.GenerationOption
	switch {
	case cfg.Ledger.RefundOnFailure && s.ledger.granter != nil:
		genOpts = append(genOpts, service.WithRefund(s.ledger.granter))
	case cfg.Ledger.RefundOnFailure:
		s.logger.Warn("LEDGER_REFUND_ON_FAILURE is set but the ledger cannot grant points; refunds disabled")
	}

	generation := service.NewGenerationService(s.ledger.points, gateway, s.logger, genOpts...)
	points := service.NewPointsService(s.ledger.points, cfg.Ledger.HistoryLimit)
	checkout := service.NewCheckoutService(
		billing.NewCheckoutClient(cfg.Creem.BaseURL, cfg.Creem.APIKey, nil),
		cfg.Site.URL,
		plans(cfg.Prices),
		s.logger,
	)
	webhooks := service.NewWebhookService(cfg.Creem.WebhookSecret, s.logger)
	authSvc := service.NewAuthService(provider, cfg.Site.URL, s.logger)

	generateHandler := handler.NewGenerateHandler(generation, s.logger)
	pointsHandler := handler.NewPointsHandler(points)
	billingHandler := handler.NewBillingHandler(checkout, webhooks, s.logger)
	authHandler := handler.NewAuthHandler(authSvc, sessions, s.logger)

	// MIDDLEWARE ORDER: request id first so every later log line has it;
	// the recoverer sits inside the logger so a panic is logged as a 500.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Recoverer(s.logger))
	s.router.Use(chimiddleware.Heartbeat("/healthz"))
	s.router.Use(middleware.MaxBody(cfg.Server.MaxBodyBytes))
	s.router.Use(sessions.Resolve)

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/login", authHandler.HandleLogin)
		r.Get("/callback", authHandler.HandleCallback)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/me", authHandler.HandleMe)
		r.Get("/plans", billingHandler.HandlePlans)

		// anonymous callers get a login path instead of a bare 401
		r.Post("/creem/checkout", billingHandler.HandleCheckout)
		// authenticated by signature, not session
		r.Post("/creem/webhook", billingHandler.HandleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Post("/generate", generateHandler.HandleGenerate)
			r.Get("/points/balance", pointsHandler.HandleBalance)
			r.Get("/points/history", pointsHandler.HandleHistory)
		})
	})
}

func plans(p config.PriceConfig) []service.Plan {
	return []service.Plan{
		{Tier: "pro", Interval: "monthly", PriceID: p.ProMonthly},
		{Tier: "pro", Interval: "yearly", PriceID: p.ProYearly},
		{Tier: "teams", Interval: "monthly", PriceID: p.TeamsMonthly},
		{Tier: "teams", Interval: "yearly", PriceID: p.TeamsYearly},
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the ledger.
func (s *Server) Close() error {
	if s.ledger.closer != nil {
		return s.ledger.closer.Close()
	}
	return nil
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for
// up to the configured shutdown timeout and releases the ledger.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         s.config.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("site", s.config.Site.URL),
			slog.String("ledger", s.config.Ledger.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
