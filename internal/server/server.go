// Package server provides the HTTP service for the detection demo.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/detectcam/internal/app"
	"github.com/ayusman/detectcam/internal/labels"
	"github.com/ayusman/detectcam/internal/server/api"
	"github.com/ayusman/detectcam/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	// Controller drives the capture loop. Capture, status and settings routes
	// are only registered when it is set.
	Controller api.Controller
	// Store backs the history routes and settings persistence. Optional.
	Store   *store.Store
	Labels  labels.Table
	Palette labels.Palette
	Logger  *zap.Logger
}

// Server is the HTTP front end. It is also an app.Sink: every published result
// is forwarded to the detections websocket and the MJPEG stream.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	hub    *Hub
	stream *StreamHandler
	logger *zap.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Labels == nil {
		config.Labels = labels.COCO
	}
	if config.Palette == nil {
		config.Palette = labels.Ultralytics
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		hub:    NewHub(logger.Named("ws")),
		stream: NewStreamHandler(logger.Named("stream")),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.Handle("/api/labels", api.NewLabelsHandler(s.config.Labels, s.config.Palette))
	s.mux.Handle("/api/stream", s.stream)
	s.mux.Handle("/api/detections", s.hub)

	if s.config.Controller != nil {
		capture := api.NewCaptureHandler(s.config.Controller, s.logger.Named("api"))
		s.mux.Handle("/api/status", capture)
		s.mux.Handle("/api/capture/", capture)
		s.mux.Handle("/api/settings", api.NewSettingsHandler(s.config.Controller, s.config.Store, s.logger.Named("api")))
	}

	if s.config.Store != nil {
		sessions := api.NewSessionHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Publish forwards a tick result to websocket clients and stream viewers.
func (s *Server) Publish(r app.Result) {
	s.hub.Publish(r)
	s.stream.Publish(r)
}

// Hub returns the detections websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	s.stream.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
