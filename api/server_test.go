package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demandcast/anomaly"
	"demandcast/backtest"
	"demandcast/decision"
	"demandcast/ensemble"
	"demandcast/spike"
)

// stubEngine returns canned pipeline results so handlers can be exercised
// without a database.
type stubEngine struct {
	forecastDays int
	forecastErr  error
}

func (s *stubEngine) ForecastSKU(ctx context.Context, sku string, horizonDays int) ([]ensemble.Forecast, error) {
	if s.forecastErr != nil {
		return nil, s.forecastErr
	}
	s.forecastDays = horizonDays
	series := make([]ensemble.Forecast, horizonDays)
	for i := range series {
		series[i] = ensemble.Forecast{
			SKU:           sku,
			Date:          time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			FinalForecast: 10,
		}
	}
	return series, nil
}

func (s *stubEngine) RecommendSKU(ctx context.Context, sku string) (*decision.Recommendation, error) {
	return &decision.Recommendation{SKU: sku, OrderQty: 120, Urgency: "medium"}, nil
}

func (s *stubEngine) SpikeSKU(ctx context.Context, sku string) (*spike.Detection, error) {
	return &spike.Detection{SKU: sku, Multiplier: 1.0}, nil
}

func (s *stubEngine) OptimizeSKU(ctx context.Context, sku string) (*backtest.OptimizationResult, error) {
	return &backtest.OptimizationResult{SKU: sku, Persisted: true, NewMape: 12.5}, nil
}

func (s *stubEngine) BacktestSKU(ctx context.Context, sku string) (map[string]*backtest.Result, error) {
	return nil, nil
}

func (s *stubEngine) ScanSKU(ctx context.Context, sku string) ([]*anomaly.Event, error) {
	return nil, nil
}

func (s *stubEngine) ApplyAdjustment(sku string, adjustmentID int64, adj anomaly.ParameterAdjustment) error {
	return nil
}

func newTestServer(engine ForecastEngine) *Server {
	return NewServer(engine, nil, nil, nil, nil, nil)
}

func TestHandleGetForecast(t *testing.T) {
	engine := &stubEngine{}
	srv := newTestServer(engine)

	req := httptest.NewRequest("GET", "/api/forecast/SKU-1?days=90", nil)
	req.SetPathValue("sku", "SKU-1")
	rr := httptest.NewRecorder()

	srv.handleGetForecast(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 90, engine.forecastDays)

	var series []ensemble.Forecast
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &series))
	require.Len(t, series, 90)
	assert.Equal(t, "SKU-1", series[0].SKU)
}

func TestHandleGetForecastDefaultsAndClampsDays(t *testing.T) {
	engine := &stubEngine{}
	srv := newTestServer(engine)

	// Out-of-range value falls back to the default horizon.
	req := httptest.NewRequest("GET", "/api/forecast/SKU-1?days=9999", nil)
	req.SetPathValue("sku", "SKU-1")
	rr := httptest.NewRecorder()

	srv.handleGetForecast(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 30, engine.forecastDays)
}

func TestHandleGetForecastMissingSKU(t *testing.T) {
	srv := newTestServer(&stubEngine{})

	req := httptest.NewRequest("GET", "/api/forecast/", nil)
	rr := httptest.NewRecorder()

	srv.handleGetForecast(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleGetForecastEngineError(t *testing.T) {
	srv := newTestServer(&stubEngine{forecastErr: errors.New("db down")})

	req := httptest.NewRequest("GET", "/api/forecast/SKU-1", nil)
	req.SetPathValue("sku", "SKU-1")
	rr := httptest.NewRecorder()

	srv.handleGetForecast(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHandleGetRecommendation(t *testing.T) {
	srv := newTestServer(&stubEngine{})

	req := httptest.NewRequest("GET", "/api/recommendation/SKU-1", nil)
	req.SetPathValue("sku", "SKU-1")
	rr := httptest.NewRecorder()

	srv.handleGetRecommendation(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var rec decision.Recommendation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "SKU-1", rec.SKU)
	assert.Equal(t, 120, rec.OrderQty)
}

func TestHandleGetBacktestNotEnoughHistory(t *testing.T) {
	srv := newTestServer(&stubEngine{})

	req := httptest.NewRequest("GET", "/api/backtest/SKU-1", nil)
	req.SetPathValue("sku", "SKU-1")
	rr := httptest.NewRecorder()

	srv.handleGetBacktest(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetIntParam(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing uses default", "", 30},
		{"valid value", "days=60", 60},
		{"non-numeric uses default", "days=abc", 30},
		{"below min uses default", "days=0", 30},
		{"above max uses default", "days=9999", 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/?"+tt.query, nil)
			got := getIntParam(req, "days", 30, intPtr(1), intPtr(365))
			assert.Equal(t, tt.want, got)
		})
	}
}
