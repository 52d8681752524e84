package backtest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demandcast/config"
	"demandcast/forecast"
)

func testForecastConfig() config.ForecastConfig {
	return config.ForecastConfig{
		SmoothingAlpha: 0.3, SmoothingBeta: 0.1, SmoothingGamma: 0.2,
		SeasonalPeriod: 7, MaxChangePoints: 25, ChangePointPriorScale: 0.05,
		HolidayPriorScale: 10, WeeklyFourierOrder: 3, YearlyFourierOrder: 10,
		RidgeLambda: 0.1, SequenceLength: 14, PatternMatchThreshold: 0.7,
		RecencyDecayRate: 0.95, ArimaP: 2, ArimaD: 1, ArimaQ: 1,
		MinHistorySmoothing: 14, MinHistoryProphet: 30, MinHistoryPattern: 30,
		MinHistoryArima: 30, FallbackMaxConfidence: 0.5,
	}
}

func testOptimizerConfig() config.OptimizerConfig {
	return config.OptimizerConfig{
		MinHistoryDays:   90,
		WindowDays:       30,
		MaxWindows:       6,
		MinWindows:       2,
		SmoothingFactor:  0.3,
		MapeEpsilon:      0.01,
		ExcludeMapeAbove: 100.0,
		HitRateTolerance: 0.20,
		ValidationDays:   30,
	}
}

// memoryWeightStore is an in-memory WeightStore for guard testing.
type memoryWeightStore struct {
	mu      sync.Mutex
	weights map[string]*forecast.SKUWeights
	saves   int
}

func newMemoryWeightStore() *memoryWeightStore {
	return &memoryWeightStore{weights: make(map[string]*forecast.SKUWeights)}
}

func (s *memoryWeightStore) Get(sku string) (*forecast.SKUWeights, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.weights[sku]
	if !ok {
		return nil, nil
	}
	clone := *w
	clone.Weights = w.Weights.Clone()
	return &clone, nil
}

func (s *memoryWeightStore) CompareAndSwap(sku string, old, updated *forecast.SKUWeights) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.weights[sku]
	if (stored == nil) != (old == nil) {
		return fmt.Errorf("weights for %s changed underneath the optimizer", sku)
	}
	if stored != nil && old != nil && !stored.LastUpdated.Equal(old.LastUpdated) {
		return fmt.Errorf("weights for %s changed underneath the optimizer", sku)
	}
	s.weights[sku] = updated
	s.saves++
	return nil
}

func dailyHistory(days int, gen func(i int) float64) []forecast.SalesDataPoint {
	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	out := make([]forecast.SalesDataPoint, days)
	for i := 0; i < days; i++ {
		out[i] = forecast.SalesDataPoint{Date: end.AddDate(0, 0, i-days), Units: gen(i)}
	}
	return out
}

func newTestOptimizer(store WeightStore) *Optimizer {
	models := forecast.NewModels(testForecastConfig())
	return NewOptimizer(models, store, testOptimizerConfig())
}

func TestOptimizerSkipsShortHistory(t *testing.T) {
	store := newMemoryWeightStore()
	opt := newTestOptimizer(store)

	res, err := opt.OptimizeSKU(context.Background(), "SKU-1", dailyHistory(60, func(int) float64 { return 10 }))
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, store.saves)
}

func TestFirstOptimizationPersistsNormalizedWeights(t *testing.T) {
	store := newMemoryWeightStore()
	opt := newTestOptimizer(store)
	history := dailyHistory(180, func(i int) float64 { return 10 + 3*math.Sin(2*math.Pi*float64(i%7)/7) })

	res, err := opt.OptimizeSKU(context.Background(), "SKU-1", history)
	require.NoError(t, err)
	require.False(t, res.Skipped, res.SkipReason)
	assert.True(t, res.Persisted)

	stored, err := store.Get("SKU-1")
	require.NoError(t, err)
	require.NotNil(t, stored)

	total := 0.0
	for _, w := range stored.Weights {
		assert.GreaterOrEqual(t, w, 0.0)
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestOptimizerIdempotentOnUnchangedHistory(t *testing.T) {
	store := newMemoryWeightStore()
	opt := newTestOptimizer(store)
	history := dailyHistory(180, func(int) float64 { return 10 })

	first, err := opt.OptimizeSKU(context.Background(), "SKU-1", history)
	require.NoError(t, err)
	require.True(t, first.Persisted)
	afterFirst, _ := store.Get("SKU-1")

	second, err := opt.OptimizeSKU(context.Background(), "SKU-1", history)
	require.NoError(t, err)
	assert.False(t, second.Persisted, "second run on identical history must be a fixed point")

	afterSecond, _ := store.Get("SKU-1")
	assert.Equal(t, afterFirst.Weights, afterSecond.Weights)
	assert.Equal(t, 1, store.saves)
}

func TestImprovementGuardIsMonotonic(t *testing.T) {
	store := newMemoryWeightStore()
	opt := newTestOptimizer(store)
	history := dailyHistory(240, func(i int) float64 {
		return 8 + 0.05*float64(i) + 2*math.Sin(2*math.Pi*float64(i%7)/7)
	})

	prevMape := math.Inf(1)
	for run := 0; run < 3; run++ {
		_, err := opt.OptimizeSKU(context.Background(), "SKU-1", history)
		require.NoError(t, err)
		stored, err := store.Get("SKU-1")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.LessOrEqual(t, stored.OverallMape, prevMape+1e-9,
			"persisted MAPE must never regress on the same validation window")
		prevMape = stored.OverallMape
	}
}

func TestBacktesterWindows(t *testing.T) {
	bt := NewBacktester(forecast.NewModels(testForecastConfig()), testOptimizerConfig())

	tests := []struct {
		name        string
		historyDays int
		wantNil     bool
	}{
		{"too short for two windows", 70, true},
		{"exactly two windows", 90, false},
		{"caps at max windows", 400, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := dailyHistory(tt.historyDays, func(int) float64 { return 10 })
			results := bt.Run("SKU-1", history)
			if tt.wantNil {
				assert.Nil(t, results)
				return
			}
			require.NotNil(t, results)
			assert.Len(t, results, len(forecast.ModelNames))
			for _, res := range results {
				assert.GreaterOrEqual(t, res.Windows, 2)
				assert.LessOrEqual(t, res.Windows, 6)
				assert.GreaterOrEqual(t, res.HitRate, 0.0)
				assert.LessOrEqual(t, res.HitRate, 1.0)
			}
		})
	}
}

func TestBacktesterScoresPerfectForecastAsZeroError(t *testing.T) {
	bt := NewBacktester(forecast.NewModels(testForecastConfig()), testOptimizerConfig())
	history := dailyHistory(180, func(int) float64 { return 10 })

	results := bt.Run("SKU-1", history)
	require.NotNil(t, results)

	// Constant demand is the easy case: every model should be close.
	for name, res := range results {
		assert.Lessf(t, res.Mape, 50.0, "model %s MAPE %.1f on constant series", name, res.Mape)
	}
}
