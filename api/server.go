// Package api provides the HTTP REST API server for TradeChart.
//
// It exposes endpoints for price history, quotes, annual financials,
// filings, timely disclosures, news, RSI alerts, portfolio management,
// and WebSocket streaming of alert events.
package api

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/tradechartjp/tradechart/internal/alerting"
	"github.com/tradechartjp/tradechart/internal/config"
	"github.com/tradechartjp/tradechart/internal/provider"
	"github.com/tradechartjp/tradechart/internal/store"
	"github.com/tradechartjp/tradechart/pkg/utils"
	"github.com/tradechartjp/tradechart/web"
)

// Server is the HTTP API server.
type Server struct {
	router    chi.Router
	cfg       *config.Config
	registry  *provider.Registry
	store     store.Store
	evaluator *alerting.Evaluator
	notifier  alerting.Notifier // nil when LINE is not configured
	wsHub     *WSHub
	serveUI   bool // when true, serve the embedded dashboard at /
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, registry *provider.Registry, st store.Store, notifier alerting.Notifier) *Server {
	eval := alerting.NewEvaluator(registry, st, cfg.Alerts.RSIThreshold)

	srv := &Server{
		cfg:       cfg,
		registry:  registry,
		store:     st,
		evaluator: eval,
		notifier:  notifier,
		wsHub:     NewWSHub(),
		serveUI:   true,
	}
	srv.router = srv.buildRouter()
	return srv
}

// SetServeUI controls whether the embedded dashboard is served.
// Must be called before ListenAndServe.
func (s *Server) SetServeUI(enabled bool) {
	s.serveUI = enabled
	s.router = s.buildRouter()
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.wsHub.Run()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-done
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Market data
		r.Get("/prices/{ticker}", s.handlePrices)
		r.Get("/quote/{ticker}", s.handleQuote)
		r.Get("/label/{ticker}", s.handleLabel)

		// Financial statements and filings
		r.Get("/financials/{ticker}", s.handleFinancials)
		r.Get("/filings/{ticker}", s.handleFilings)
		r.Get("/disclosures/{code}", s.handleDisclosures)
		r.Get("/news/{ticker}", s.handleNews)

		// Alerts
		r.Get("/alerts", s.handleAlerts)
		r.Post("/alerts", s.handleCreateAlert)
		r.Delete("/alerts/{id}", s.handleDeleteAlert)
		r.Post("/alerts/run", s.handleRunAlerts)

		// Portfolio
		r.Get("/portfolio", s.handlePortfolio)
		r.Post("/portfolio", s.handleUpsertHolding)
		r.Put("/portfolio", s.handleUpsertHolding)
		r.Delete("/portfolio/{id}", s.handleDeleteHolding)

		// Providers
		r.Get("/providers", s.handleProviders)

		// WebSocket (unified + alerts sub-path)
		r.Get("/ws", s.handleWebSocket)
		r.Get("/ws/alerts", s.handleWebSocket)
	})

	// Serve embedded dashboard (SPA with fallback to index.html)
	if s.serveUI {
		s.mountSPA(r, web.DistFS())
	}

	return r
}

// mountSPA serves the embedded static dashboard as a single-page app.
// Unknown paths fall back to index.html for client-side routing.
func (s *Server) mountSPA(r chi.Router, distFS fs.FS) {
	fileServer := http.FileServerFS(distFS)

	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		rPath := strings.TrimPrefix(r.URL.Path, "/")
		if rPath == "" {
			rPath = "index.html"
		}

		f, err := distFS.Open(rPath)
		if err != nil {
			serveIndexHTML(w, distFS)
			return
		}
		f.Close()

		if rPath == "index.html" || strings.HasSuffix(rPath, ".html") {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		}

		fileServer.ServeHTTP(w, r)
	})
}

// serveIndexHTML reads and serves the embedded index.html for SPA fallback.
func serveIndexHTML(w http.ResponseWriter, distFS fs.FS) {
	data, err := fs.ReadFile(distFS, "index.html")
	if err != nil {
		http.Error(w, "dashboard not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":   "ok",
			"version":  "dev",
			"time_jst": utils.NowJST().Format("2006-01-02 15:04:05"),
		},
	})
}
