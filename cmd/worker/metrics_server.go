package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"health-assistant/internal/observability/slo"
)

// HealthResponse represents a simple health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// SLOResponse is the JSON form of an slo.Snapshot.
type SLOResponse struct {
	Cycles                  int     `json:"cycles"`
	DeliveryRatio           float64 `json:"delivery_ratio"`
	DeliveryTarget          float64 `json:"delivery_target"`
	CycleDurationP95Seconds float64 `json:"cycle_duration_p95_seconds"`
	ErrorBudgetRemaining    float64 `json:"error_budget_remaining"`
}

// startMetricsServer serves Prometheus metrics in the background until ctx
// is canceled.
//
// Endpoints:
//   - GET /metrics: Prometheus scrape endpoint
//   - GET /health: liveness probe (always 200 OK)
//   - GET /slo: delivery SLO over recent cycles
//
// On shutdown in-flight scrapes get 5 seconds to complete.
func startMetricsServer(ctx context.Context, logger *slog.Logger, port int, tracker *slo.Tracker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/slo", sloHandler(tracker))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", slog.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
			return
		}
		logger.Info("metrics server stopped")
	}()

	return server
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Service: "health-assistant-worker"})
}

func sloHandler(tracker *slo.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := tracker.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SLOResponse{
			Cycles:                  snap.Cycles,
			DeliveryRatio:           snap.DeliveryRatio,
			DeliveryTarget:          slo.DeliverySLO,
			CycleDurationP95Seconds: snap.CycleDurationP95.Seconds(),
			ErrorBudgetRemaining:    snap.ErrorBudgetRemaining,
		})
	}
}
