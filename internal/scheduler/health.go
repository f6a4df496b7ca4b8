package scheduler

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Health string `json:"status"`
	Status
}

// HealthServer exposes the scheduler status over HTTP.
type HealthServer struct {
	port     string
	status   func() Status
	logger   *zap.Logger
	server   *http.Server
	listener net.Listener
}

// NewHealthServer creates a health server on port reporting status.
func NewHealthServer(port string, status func() Status, logger *zap.Logger) *HealthServer {
	return &HealthServer{port: port, status: status, logger: logger}
}

// Start serves /health in a background goroutine.
func (h *HealthServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)

	h.server = &http.Server{
		Addr:         ":" + h.port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return err
	}
	h.listener = listener

	go func() {
		h.logger.Info("Health server listening", zap.String("addr", listener.Addr().String()))
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			h.logger.Error("Health server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the listening address once started.
func (h *HealthServer) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Shutdown gracefully shuts down the health server.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server != nil {
		return h.server.Shutdown(ctx)
	}
	return nil
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// A failed last run is reported but is not unhealthy; the next tick retries.
	resp := HealthResponse{Health: "ok", Status: h.status()}
	if resp.LastError != "" {
		resp.Health = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("Failed to encode health response", zap.Error(err))
	}
}
