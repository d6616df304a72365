package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"health-assistant/internal/domain/entity"
)

// CycleStatus reports the orchestrator's state. *orchestrator.Orchestrator
// satisfies it.
type CycleStatus interface {
	State() string
	LastCycle() *entity.Cycle
	ConsecutiveFailures() int
}

// HealthServer provides the worker's HTTP health endpoints:
//   - /health: liveness probe (always 200 OK)
//   - /health/ready: readiness probe (200 once the scheduler runs, 503 before)
//   - /health/cycle: state and summary of the last cycle
//
// The server shuts down gracefully when the context passed to Start is canceled.
type HealthServer struct {
	addr    string
	logger  *slog.Logger
	status  CycleStatus
	isReady *atomic.Bool
	server  *http.Server
}

type healthResponse struct {
	Status string `json:"status"`
}

type cycleResponse struct {
	State               string        `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastCycle           *cycleSummary `json:"last_cycle,omitempty"`
}

type cycleSummary struct {
	ID         string          `json:"id"`
	Result     string          `json:"result"`
	TargetDate string          `json:"target_date"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Failures   []tenantFailure `json:"failures,omitempty"`
}

type tenantFailure struct {
	TenantID  string `json:"tenant_id"`
	Stage     string `json:"stage"`
	ErrorKind string `json:"error_kind"`
}

// NewHealthServer creates a health server on addr. status may be nil, in
// which case /health/cycle answers 503.
func NewHealthServer(addr string, status CycleStatus, logger *slog.Logger) *HealthServer {
	isReady := &atomic.Bool{}
	isReady.Store(false)

	return &HealthServer{
		addr:    addr,
		logger:  logger,
		status:  status,
		isReady: isReady,
	}
}

// Handler returns the routes without starting a listener.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleLiveness)
	mux.HandleFunc("/health/ready", h.handleReadiness)
	mux.HandleFunc("/health/cycle", h.handleCycle)
	return mux
}

// Start serves until ctx is canceled, then shuts down within 5 seconds.
// It returns http.ErrServerClosed after a graceful shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if err == http.ErrServerClosed {
			return err
		}
		h.logger.Error("health server failed", slog.Any("error", err))
		return err
	}
}

// SetReady sets the readiness state reported by /health/ready.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.isReady.Load() {
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

func (h *HealthServer) handleCycle(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
		return
	}

	resp := cycleResponse{
		State:               h.status.State(),
		ConsecutiveFailures: h.status.ConsecutiveFailures(),
	}
	if c := h.status.LastCycle(); c != nil {
		summary := &cycleSummary{
			ID:         c.ID,
			Result:     CycleResult(c),
			TargetDate: c.TargetDate.Format(entity.DateLayout),
			StartedAt:  c.StartedAt,
			FinishedAt: c.FinishedAt,
			Succeeded:  c.SuccessCount(),
			Failed:     c.FailureCount(),
		}
		for _, o := range c.FailedOutcomes() {
			summary.Failures = append(summary.Failures, tenantFailure{
				TenantID:  o.TenantID,
				Stage:     string(o.Stage),
				ErrorKind: string(o.ErrorKind),
			})
		}
		resp.LastCycle = summary
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
