package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server hosts the JSON API
type Server struct {
	handlers *Handlers
	host     string
	port     int
	httpSrv  *http.Server
}

func NewServer(handlers *Handlers, host string, port int) *Server {
	return &Server{handlers: handlers, host: host, port: port}
}

// Router builds the API route tree
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handlers.Health)

	r.Route("/api/deployments", func(r chi.Router) {
		r.Post("/", s.handlers.CreateDeployment)
		r.Get("/", s.handlers.ListDeployments)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handlers.GetDeployment)
			r.Post("/approve", s.handlers.ApproveDeployment)
			r.Post("/reject", s.handlers.RejectDeployment)
			r.Post("/cancel", s.handlers.CancelDeployment)
			r.Post("/monitoring", s.handlers.EnableMonitoring)
			r.Get("/approvals", s.handlers.GetApprovalHistory)
			r.Get("/drift/latest", s.handlers.GetLatestDriftReport)
		})
	})

	return r
}

// Start serves until the context is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.host, s.port)
	s.httpSrv = &http.Server{
		Addr:              address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "layer", "web", "address", address)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		slog.Info("HTTP server shutting down", "layer", "web")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}
