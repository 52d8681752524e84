package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"demandcast/anomaly"
	"demandcast/backtest"
	"demandcast/database"
	"demandcast/database/anomalies"
	"demandcast/database/weights"
	"demandcast/decision"
	"demandcast/ensemble"
	"demandcast/notifications"
	"demandcast/realtime"
	"demandcast/spike"
)

// Server handles HTTP API requests
type Server struct {
	engine     ForecastEngine
	anomRepo   *anomalies.Repository
	weightRepo *weights.Repository
	rawDB      *database.DB
	webhookMq  *notifications.WebhookManager
	broker     *realtime.Broker
	httpServer *http.Server
}

// ForecastEngine defines the pipeline operations the API exposes.
type ForecastEngine interface {
	ForecastSKU(ctx context.Context, sku string, horizonDays int) ([]ensemble.Forecast, error)
	RecommendSKU(ctx context.Context, sku string) (*decision.Recommendation, error)
	SpikeSKU(ctx context.Context, sku string) (*spike.Detection, error)
	OptimizeSKU(ctx context.Context, sku string) (*backtest.OptimizationResult, error)
	BacktestSKU(ctx context.Context, sku string) (map[string]*backtest.Result, error)
	ScanSKU(ctx context.Context, sku string) ([]*anomaly.Event, error)
	ApplyAdjustment(sku string, adjustmentID int64, adj anomaly.ParameterAdjustment) error
}

// NewServer creates a new API server instance
func NewServer(engine ForecastEngine, anomRepo *anomalies.Repository, weightRepo *weights.Repository, rawDB *database.DB, webhookMq *notifications.WebhookManager, broker *realtime.Broker) *Server {
	return &Server{
		engine:     engine,
		anomRepo:   anomRepo,
		weightRepo: weightRepo,
		rawDB:      rawDB,
		webhookMq:  webhookMq,
		broker:     broker,
	}
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	// Register routes
	mux.Handle("GET /api/events", s.broker) // SSE Endpoint
	mux.HandleFunc("GET /api/forecast/{sku}", s.handleGetForecast)
	mux.HandleFunc("GET /api/recommendation/{sku}", s.handleGetRecommendation)
	mux.HandleFunc("GET /api/spike/{sku}", s.handleGetSpike)
	mux.HandleFunc("GET /api/weights/{sku}", s.handleGetWeights)
	mux.HandleFunc("GET /api/backtest/{sku}", s.handleGetBacktest)
	mux.HandleFunc("POST /api/optimize/{sku}", s.handleOptimize)
	mux.HandleFunc("GET /api/catalog/velocities", s.handleGetCatalogVelocities)

	// Anomaly Routes
	mux.HandleFunc("GET /api/anomalies", s.handleGetAnomalies)
	mux.HandleFunc("GET /api/anomalies/sku/{sku}", s.handleGetAnomaliesBySKU)
	mux.HandleFunc("POST /api/anomalies/{id}/apply", s.handleApplyAdjustments)
	mux.HandleFunc("POST /api/anomalies/{id}/resolve", s.handleResolveAnomaly)
	mux.HandleFunc("POST /api/scan/{sku}", s.handleScan)

	// Webhook Management Routes
	mux.HandleFunc("GET /api/config/webhooks", s.handleGetWebhooks)
	mux.HandleFunc("POST /api/config/webhooks", s.handleCreateWebhook)
	mux.HandleFunc("PUT /api/config/webhooks/{id}", s.handleUpdateWebhook)
	mux.HandleFunc("DELETE /api/config/webhooks/{id}", s.handleDeleteWebhook)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", s.handleHealth)

	// Add middleware
	handler := s.corsMiddleware(s.loggingMiddleware(mux))

	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	s.httpServer = &http.Server{Addr: serverAddr, Handler: handler}
	log.Printf("🚀 API Server starting on %s", serverAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Handlers are distributed across multiple files:
// - handlers_forecast.go: Forecasts, recommendations, spikes, weights
// - handlers_anomaly.go: Anomaly events and parameter adjustments
// - handlers_config.go: Webhooks and health check
