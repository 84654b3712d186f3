// Package statusserver implements the read-only HTTP introspection
// surface (spec component A5), replacing the teacher's HTML dashboard
// with JSON snapshots of the engine's state — contracts, order books,
// positions and ledger balances — for operators and monitoring, never
// mutating anything the session controller owns.
package statusserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/tildenfx/marketstate/internal/contracts"
	"github.com/tildenfx/marketstate/internal/session"
)

// Config tunes the status server.
type Config struct {
	Port int
}

// Server exposes a Controller's state over read-only JSON endpoints.
type Server struct {
	router *chi.Mux
	server *http.Server
	ctrl   *session.Controller
	logger *logrus.Logger
	port   int
}

// NewServer builds a Server wired to ctrl.
func NewServer(cfg Config, ctrl *session.Controller, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router: chi.NewRouter(),
		ctrl:   ctrl,
		logger: logger,
		port:   cfg.Port,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(15 * time.Second))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/contracts", s.handleContracts)
	s.router.Get("/contracts/{id}/book", s.handleBook)
	s.router.Get("/positions", s.handlePositions)
	s.router.Get("/ledger/{asset}", s.handleLedger)
	s.router.Get("/net-to-close", s.handleNetToClose)
}

func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.Status(),
			"duration": time.Since(start),
		}).Info("status request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleContracts(w http.ResponseWriter, _ *http.Request) {
	ids := s.ctrl.Catalogue().AllIDs()
	out := make([]contracts.Contract, 0, len(ids))
	for _, id := range ids {
		if ct, ok := s.ctrl.Catalogue().Get(id); ok {
			out = append(out, ct)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid contract id %q", raw)})
		return
	}
	id := contracts.ID(n)

	if !s.ctrl.Books().IsLoaded(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "book not loaded"})
		return
	}
	top, _, stale := s.ctrl.Books().Top(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"contract_id": id,
		"best_bid":    top.BestBid,
		"best_ask":    top.BestAsk,
		"clock":       top.Clock,
		"stale":       stale,
		"orders":      s.ctrl.Books().Orders(id),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Positions().All())
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	writeJSON(w, http.StatusOK, s.ctrl.Ledger().Account(asset))
}

func (s *Server) handleNetToClose(w http.ResponseWriter, _ *http.Request) {
	low, high := s.ctrl.NetToClose()
	writeJSON(w, http.StatusOK, map[string]int64{"low": low, "high": high})
}

// Start runs the HTTP server until it is shut down. It blocks, matching
// the teacher's dashboard.Server.Start contract.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Infof("starting status server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
