package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demandcast/config"
	"demandcast/forecast"
)

func testConfig() *config.Config {
	return &config.Config{
		Decision: config.DecisionConfig{
			SafetyStockFloorDays: 7,
			TargetCoverageDays:   180,
			BiasCorrection:       1.0,
		},
		Spike: config.SpikeConfig{
			ThresholdPct: 50.0,
		},
		Anomaly: config.AnomalyConfig{
			OverstockDaysOfSupply:   300.0,
			ForecastMissMinRecords:  3,
			ForecastMissErrorPct:    50.0,
			SupplierDelayDays:       7,
			VelocityDeclinePct:      30.0,
			WeightSupplierDelay:     0.4,
			WeightUndetectedSpike:   0.35,
			WeightForecastBias:      0.25,
			StorageFeeSpikeIncrease: 0.5,
		},
	}
}

func steadyHistory(days int, units float64) []forecast.SalesDataPoint {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)
	history := make([]forecast.SalesDataPoint, days)
	for i := range history {
		history[i] = forecast.SalesDataPoint{
			Date:    start.AddDate(0, 0, i),
			Units:   units,
			Revenue: units * 25,
		}
	}
	return history
}

func TestScanStockout(t *testing.T) {
	scanner := NewScanner(testConfig())

	events := scanner.Scan(SKUState{
		SKU:            "SKU-001",
		History:        steadyHistory(60, 5),
		AvailableUnits: 0,
		UnitPrice:      25,
	})

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, TypeStockout, ev.Type)
	assert.Greater(t, ev.UnitImpact, 0.0)
	assert.Greater(t, ev.FinancialImpact, 0.0)
	assert.NotEmpty(t, ev.RootCause)
	require.NotEmpty(t, ev.Factors)
	assert.Equal(t, ev.Factors[0].Name, ev.RootCause)
}

func TestScanStockoutFactorRanking(t *testing.T) {
	scanner := NewScanner(testConfig())

	// Late PO and a persistent under-forecast both qualify; the supplier
	// delay carries the larger weight and must come out primary.
	records := make([]AccuracyRecord, 5)
	for i := range records {
		records[i] = AccuracyRecord{Forecast: 3, Actual: 5}
	}

	events := scanner.Scan(SKUState{
		SKU:             "SKU-002",
		History:         steadyHistory(60, 5),
		AvailableUnits:  0,
		LastPODelayDays: 12,
		Accuracy:        records,
	})

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, FactorSupplierDelay, ev.RootCause)

	for i := 1; i < len(ev.Factors); i++ {
		assert.GreaterOrEqual(t, ev.Factors[i-1].Contribution, ev.Factors[i].Contribution)
	}

	// Both factors propose adjustments.
	require.Len(t, ev.Adjustments, 2)
	assert.Equal(t, ParamSafetyStockFloorDays, ev.Adjustments[0].Parameter)
	assert.Equal(t, 10.0, ev.Adjustments[0].NewValue)
}

func TestScanStockoutUndetectedSpike(t *testing.T) {
	scanner := NewScanner(testConfig())

	history := steadyHistory(60, 5)
	for i := len(history) - 7; i < len(history); i++ {
		history[i].Units = 12
	}

	events := scanner.Scan(SKUState{
		SKU:            "SKU-003",
		History:        history,
		AvailableUnits: 0,
		SpikeFlagged:   false,
	})

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, FactorUndetectedSpike, ev.RootCause)
	require.Len(t, ev.Adjustments, 1)
	assert.Equal(t, ParamSpikeThresholdPct, ev.Adjustments[0].Parameter)
	assert.Equal(t, 40.0, ev.Adjustments[0].NewValue)
}

func TestScanStockoutNoSales(t *testing.T) {
	scanner := NewScanner(testConfig())
	events := scanner.Scan(SKUState{
		SKU:            "SKU-004",
		History:        steadyHistory(60, 0),
		AvailableUnits: 0,
	})
	assert.Empty(t, events)
}

func TestScanOverstock(t *testing.T) {
	scanner := NewScanner(testConfig())

	// 10/day collapsing to 3/day over the last week, with far more stock
	// than 300 days of supply.
	history := steadyHistory(60, 10)
	for i := len(history) - 7; i < len(history); i++ {
		history[i].Units = 3
	}

	events := scanner.Scan(SKUState{
		SKU:            "SKU-005",
		History:        history,
		AvailableUnits: 3000,
		UnitPrice:      25,
	})

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, TypeOverstock, ev.Type)
	assert.Equal(t, FactorVelocityDecline, ev.RootCause)
	assert.Greater(t, ev.UnitImpact, 0.0)
	require.Len(t, ev.Adjustments, 1)
	assert.Equal(t, ParamForceReoptimize, ev.Adjustments[0].Parameter)
}

func TestScanOverstockBelowThreshold(t *testing.T) {
	scanner := NewScanner(testConfig())
	events := scanner.Scan(SKUState{
		SKU:            "SKU-006",
		History:        steadyHistory(60, 10),
		AvailableUnits: 1000, // 100 days of supply
	})
	assert.Empty(t, events)
}

func TestScanStorageFeeSpike(t *testing.T) {
	scanner := NewScanner(testConfig())

	month := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	events := scanner.Scan(SKUState{
		SKU:            "SKU-007",
		History:        steadyHistory(60, 10),
		AvailableUnits: 500,
		StorageFees: []StorageFee{
			{Month: month, Amount: 100},
			{Month: month.AddDate(0, 1, 0), Amount: 180},
		},
	})

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, TypeStorageFeeSpike, ev.Type)
	assert.Equal(t, FactorFeeIncrease, ev.RootCause)
	assert.InDelta(t, 80.0, ev.FinancialImpact, 0.01)
}

func TestScanStorageFeeWithinBounds(t *testing.T) {
	scanner := NewScanner(testConfig())

	month := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	events := scanner.Scan(SKUState{
		SKU:            "SKU-008",
		History:        steadyHistory(60, 10),
		AvailableUnits: 500,
		StorageFees: []StorageFee{
			{Month: month, Amount: 100},
			{Month: month.AddDate(0, 1, 0), Amount: 140},
		},
	})
	assert.Empty(t, events)
}

func TestScanForecastMiss(t *testing.T) {
	scanner := NewScanner(testConfig())

	records := []AccuracyRecord{
		{Forecast: 20, Actual: 10},
		{Forecast: 25, Actual: 10},
		{Forecast: 4, Actual: 10},
		{Forecast: 10, Actual: 10}, // accurate day does not count
	}

	events := scanner.Scan(SKUState{
		SKU:            "SKU-009",
		History:        steadyHistory(60, 10),
		AvailableUnits: 500,
		Accuracy:       records,
	})

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, TypeForecastMiss, ev.Type)
	assert.Equal(t, FactorModelDrift, ev.RootCause)
	require.Len(t, ev.Adjustments, 1)
	assert.Equal(t, ParamForceReoptimize, ev.Adjustments[0].Parameter)
}

func TestScanForecastMissTooFew(t *testing.T) {
	scanner := NewScanner(testConfig())
	events := scanner.Scan(SKUState{
		SKU:            "SKU-010",
		History:        steadyHistory(60, 10),
		AvailableUnits: 500,
		Accuracy: []AccuracyRecord{
			{Forecast: 20, Actual: 10},
			{Forecast: 25, Actual: 10},
		},
	})
	assert.Empty(t, events)
}

func TestApplierMutatesConfig(t *testing.T) {
	cfg := testConfig()
	applier := NewApplier(cfg)

	applied, err := applier.Apply("SKU-001", ParameterAdjustment{
		Parameter: ParamSafetyStockFloorDays,
		OldValue:  7,
		NewValue:  10,
		Reason:    "supplier delays",
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 10, cfg.Decision.SafetyStockFloorDays)
}

func TestApplierIdempotent(t *testing.T) {
	cfg := testConfig()
	applier := NewApplier(cfg)
	adj := ParameterAdjustment{Parameter: ParamSpikeThresholdPct, OldValue: 50, NewValue: 40}

	applied, err := applier.Apply("SKU-001", adj)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = applier.Apply("SKU-001", adj)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 40.0, cfg.Spike.ThresholdPct)
}

func TestApplierReoptimizeHook(t *testing.T) {
	cfg := testConfig()
	applier := NewApplier(cfg)

	var requested []string
	applier.OnReoptimize(func(sku string) { requested = append(requested, sku) })

	adj := ParameterAdjustment{Parameter: ParamForceReoptimize, NewValue: 1}

	applied, err := applier.Apply("SKU-A", adj)
	require.NoError(t, err)
	assert.True(t, applied)

	// Same SKU again is a no-op, a different SKU still fires.
	applied, err = applier.Apply("SKU-A", adj)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = applier.Apply("SKU-B", adj)
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, []string{"SKU-A", "SKU-B"}, requested)
}

func TestApplierUnknownParameter(t *testing.T) {
	applier := NewApplier(testConfig())
	_, err := applier.Apply("SKU-001", ParameterAdjustment{Parameter: "nope"})
	assert.Error(t, err)
}
