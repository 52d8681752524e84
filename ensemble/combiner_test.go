package ensemble

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demandcast/config"
	"demandcast/forecast"
	"demandcast/spike"
)

func testForecastConfig() config.ForecastConfig {
	return config.ForecastConfig{
		SmoothingAlpha:        0.3,
		SmoothingBeta:         0.1,
		SmoothingGamma:        0.2,
		SeasonalPeriod:        7,
		MaxChangePoints:       25,
		ChangePointPriorScale: 0.05,
		HolidayPriorScale:     10.0,
		WeeklyFourierOrder:    3,
		YearlyFourierOrder:    10,
		RidgeLambda:           0.1,
		SequenceLength:        14,
		PatternMatchThreshold: 0.7,
		RecencyDecayRate:      0.95,
		ArimaP:                2,
		ArimaD:                1,
		ArimaQ:                1,
		MinHistorySmoothing:   14,
		MinHistoryProphet:     30,
		MinHistoryPattern:     30,
		MinHistoryArima:       30,
		FallbackMaxConfidence: 0.5,
	}
}

func testDecisionConfig() config.DecisionConfig {
	return config.DecisionConfig{
		SafetyStockFloorDays: 7,
		TargetCoverageDays:   180,
		FBACoverageDays:      45,
		FBABufferDays:        10,
		LeadTimeBufferDays:   14,
		BestSellerVelocity:   10.0,
		ZBestSeller:          2.33,
		ZRegular:             1.65,
		ZSlowMover:           1.28,
		BiasCorrection:       1.0,
	}
}

func testCombiner() *Combiner {
	return NewCombiner(forecast.NewModels(testForecastConfig()), testDecisionConfig())
}

func constantHistory(days int, units float64) []forecast.SalesDataPoint {
	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	history := make([]forecast.SalesDataPoint, days)
	for i := range history {
		history[i] = forecast.SalesDataPoint{
			Date:  end.AddDate(0, 0, i-days),
			Units: units,
		}
	}
	return history
}

func weeklyHistory(days int) []forecast.SalesDataPoint {
	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	history := make([]forecast.SalesDataPoint, days)
	for i := range history {
		d := end.AddDate(0, 0, i-days)
		units := 10.0
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			units = 16.0
		}
		history[i] = forecast.SalesDataPoint{Date: d, Units: units}
	}
	return history
}

func TestForecastOutputsClamped(t *testing.T) {
	c := testCombiner()

	out := c.Forecast(Inputs{
		SKU:          "SKU-001",
		History:      weeklyHistory(120),
		Weights:      forecast.EqualWeights(),
		LeadTimeDays: 14,
	}, 30)

	require.Len(t, out, 30)
	for _, f := range out {
		assert.GreaterOrEqual(t, f.FinalForecast, 0.0)
		assert.GreaterOrEqual(t, f.Confidence, 0.0)
		assert.LessOrEqual(t, f.Confidence, 1.0)
		assert.GreaterOrEqual(t, f.LowerBound, 0.0)
		assert.LessOrEqual(t, f.LowerBound, f.FinalForecast+1e-9)
		assert.GreaterOrEqual(t, f.UpperBound, f.FinalForecast-1e-9)
		assert.GreaterOrEqual(t, float64(f.RecommendedInventory), f.FinalForecast)
		assert.Len(t, f.ModelForecasts, 4)
		assert.NotEmpty(t, f.Reasoning)
	}
}

func TestForecastMultiplierStack(t *testing.T) {
	c := testCombiner()
	history := constantHistory(120, 10)

	// A calendar event, a promotion and a spike all active on day one.
	learned := 2.0
	events := []SeasonalEvent{{
		Name:              "peak_season",
		Window:            forecast.EventWindow{StartMonth: 1, StartDay: 1, EndMonth: 12, EndDay: 31},
		BaseMultiplier:    1.5,
		LearnedMultiplier: &learned,
		IsActive:          true,
	}}
	deals := []Deal{{
		Name:       "lightning",
		Start:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		Multiplier: 1.5,
	}}
	det := &spike.Detection{IsSpiking: true, Multiplier: 1.4}

	out := c.Forecast(Inputs{
		SKU:          "SKU-001",
		History:      history,
		Weights:      forecast.EqualWeights(),
		Events:       events,
		Deals:        deals,
		Spike:        det,
		LeadTimeDays: 14,
	}, 7)

	require.Len(t, out, 7)
	f := out[0]
	assert.Equal(t, 2.0, f.SeasonalityMultiplier) // learned beats base
	assert.Equal(t, 1.5, f.DealMultiplier)
	assert.InDelta(t, det.MultiplierAt(1), f.SpikeMultiplier, 1e-9)
	assert.InDelta(t, f.BaseForecast*f.SeasonalityMultiplier*f.DealMultiplier*f.SpikeMultiplier, f.FinalForecast, 1e-6)
}

func TestForecastSafetyFloorOnSteadyDemand(t *testing.T) {
	c := testCombiner()

	// Constant demand has zero trailing sigma, so the floor governs.
	out := c.Forecast(Inputs{
		SKU:          "SKU-001",
		History:      constantHistory(120, 10),
		Weights:      forecast.EqualWeights(),
		LeadTimeDays: 14,
	}, 7)

	require.Len(t, out, 7)
	for _, f := range out {
		assert.InDelta(t, math.Ceil(f.FinalForecast*7), f.SafetyStock, 1e-9)
	}
}

func TestForecastBoundsFromModelSpread(t *testing.T) {
	c := testCombiner()
	horizon := 30

	out := c.Forecast(Inputs{
		SKU:          "SKU-001",
		History:      weeklyHistory(120),
		Weights:      forecast.EqualWeights(),
		LeadTimeDays: 14,
	}, horizon)

	require.Len(t, out, horizon)
	for day, f := range out {
		raw := make([]float64, 0, len(f.ModelForecasts))
		for _, v := range f.ModelForecasts {
			raw = append(raw, v)
		}
		widen := 1.0 + (float64(day+1)/float64(horizon))*0.5
		assert.InDelta(t, f.FinalForecast+1.96*modelSpread(raw)*widen, f.UpperBound, 1e-6)
	}
}

func TestForecastNilWeightsDefaultsToEqual(t *testing.T) {
	c := testCombiner()

	out := c.Forecast(Inputs{
		SKU:          "SKU-001",
		History:      constantHistory(120, 10),
		LeadTimeDays: 14,
	}, 7)

	require.Len(t, out, 7)
	assert.Greater(t, out[0].FinalForecast, 0.0)
}

func TestForecastBiasCorrection(t *testing.T) {
	cfg := testDecisionConfig()
	cfg.BiasCorrection = 1.2
	biased := NewCombiner(forecast.NewModels(testForecastConfig()), cfg)
	plain := testCombiner()

	history := constantHistory(120, 10)
	in := Inputs{SKU: "SKU-001", History: history, Weights: forecast.EqualWeights(), LeadTimeDays: 14}

	b := biased.Forecast(in, 1)[0]
	p := plain.Forecast(in, 1)[0]
	assert.InDelta(t, p.BaseForecast*1.2, b.BaseForecast, 1e-6)
}

func TestSeasonalEventPrecedence(t *testing.T) {
	learned := 1.8
	tests := []struct {
		name  string
		event SeasonalEvent
		sku   string
		want  float64
	}{
		{
			name:  "base only",
			event: SeasonalEvent{BaseMultiplier: 1.5},
			want:  1.5,
		},
		{
			name:  "learned beats base",
			event: SeasonalEvent{BaseMultiplier: 1.5, LearnedMultiplier: &learned},
			want:  1.8,
		},
		{
			name: "sku override wins",
			event: SeasonalEvent{
				BaseMultiplier:    1.5,
				LearnedMultiplier: &learned,
				SKUMultipliers:    map[string]float64{"SKU-9": 2.4},
			},
			sku:  "SKU-9",
			want: 2.4,
		},
		{
			name:  "negative clamps to zero",
			event: SeasonalEvent{BaseMultiplier: -0.5},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.MultiplierFor(tt.sku))
		})
	}
}

func TestDealMultiplierWindow(t *testing.T) {
	deals := []Deal{{
		Name:       "week_deal",
		Start:      time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2026, 7, 7, 0, 0, 0, 0, time.UTC),
		Multiplier: 2.0,
	}}

	inWindow, names := dealMultiplier(deals, time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2.0, inWindow)
	assert.Equal(t, []string{"week_deal"}, names)

	outWindow, names := dealMultiplier(deals, time.Date(2026, 7, 8, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 1.0, outWindow)
	assert.Empty(t, names)
}

func TestZScoreForVelocityTiers(t *testing.T) {
	cfg := testDecisionConfig()

	assert.Equal(t, cfg.ZBestSeller, ZScoreForVelocity(15, cfg))
	assert.Equal(t, cfg.ZRegular, ZScoreForVelocity(5, cfg))
	assert.Equal(t, cfg.ZSlowMover, ZScoreForVelocity(0.4, cfg))
}

func TestSafetyStockStatisticalVsFloor(t *testing.T) {
	// High variance: z·sigma·sqrt(leadTime) dominates the floor.
	got := SafetyStock(2, 8, 16, 1.65, 7)
	assert.Equal(t, math.Ceil(1.65*8*4), got)

	// Low variance: the floor dominates.
	got = SafetyStock(10, 0.5, 4, 1.65, 7)
	assert.Equal(t, 70.0, got)
}

func TestTrailingVelocityAndSigma(t *testing.T) {
	history := constantHistory(60, 10)
	assert.InDelta(t, 10.0, TrailingVelocity(history, 30), 1e-9)
	assert.InDelta(t, 0.0, TrailingSigma(history, 30), 1e-9)

	for i := len(history) - 7; i < len(history); i++ {
		history[i].Units = 20
	}
	assert.InDelta(t, (23*10.0+7*20.0)/30, TrailingVelocity(history, 30), 1e-9)
	assert.Greater(t, TrailingSigma(history, 30), 0.0)
}
