// Package gateway exposes the collaborative canvas core over HTTP and
// WebSocket. It is a thin wrapper: all state semantics live in the canvas
// package, all fan-out in the hub package.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atelierhq/atelier/internal/canvas"
	"github.com/atelierhq/atelier/internal/config"
	"github.com/atelierhq/atelier/internal/imagegen"
	"github.com/atelierhq/atelier/internal/tasks"
)

// Server wires the canvas manager, task runner, and collaborators behind the
// HTTP surface.
type Server struct {
	config   *config.Config
	logger   *slog.Logger
	manager  *canvas.Manager
	runner   *tasks.Runner
	analyzer imagegen.Analyzer

	httpServer   *http.Server
	httpListener net.Listener
}

// NewServer creates a gateway server. The analyzer may be nil, in which case
// the analyze endpoint reports the collaborator as unavailable.
func NewServer(cfg *config.Config, manager *canvas.Manager, runner *tasks.Runner, analyzer imagegen.Analyzer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:   cfg,
		logger:   logger.With("component", "gateway"),
		manager:  manager,
		runner:   runner,
		analyzer: analyzer,
	}
}

// Handler builds the HTTP route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	mux.HandleFunc("/api/canvas", s.handleCanvasCollection)
	mux.HandleFunc("/api/canvas/", s.handleCanvasResource)
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/ws/", s.handleWebSocket)

	return mux
}

// Start begins serving HTTP. It returns once the listener is bound; serving
// continues in the background until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.HTTPPort)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.httpServer = server
	s.httpListener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("serving http", "addr", addr)
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
	}
	s.httpServer = nil
	s.httpListener = nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"canvases": s.manager.Store().Count(),
	})
}
