package forecast

import (
	"math"
	"testing"
	"time"

	"demandcast/config"
)

func testConfig() config.ForecastConfig {
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

// genHistory builds a daily history ending yesterday using the generator.
func genHistory(days int, gen func(i int) float64) []SalesDataPoint {
	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	out := make([]SalesDataPoint, days)
	for i := 0; i < days; i++ {
		out[i] = SalesDataPoint{
			Date:  end.AddDate(0, 0, i-days),
			Units: gen(i),
		}
	}
	return out
}

func constantHistory(days int, units float64) []SalesDataPoint {
	return genHistory(days, func(int) float64 { return units })
}

func TestModelsFallBackOnShortHistory(t *testing.T) {
	cfg := testConfig()
	short := constantHistory(10, 5)

	for _, model := range NewModels(cfg) {
		t.Run(model.Name(), func(t *testing.T) {
			p := model.Forecast(short, 7)
			if !p.Fallback {
				t.Errorf("expected fallback prediction for %d-day history", len(short))
			}
			if p.Forecast < 0 {
				t.Errorf("fallback forecast %f below zero", p.Forecast)
			}
			if p.Confidence > 0.6 {
				t.Errorf("fallback confidence %f exceeds cap", p.Confidence)
			}
		})
	}
}

func TestModelsClampOutputs(t *testing.T) {
	cfg := testConfig()

	histories := map[string][]SalesDataPoint{
		"constant": constantHistory(120, 10),
		"weekly": genHistory(120, func(i int) float64 {
			return 10 + 4*math.Sin(2*math.Pi*float64(i%7)/7)
		}),
		"declining": genHistory(120, func(i int) float64 {
			v := 20 - float64(i)*0.2
			if v < 0 {
				return 0
			}
			return v
		}),
		"sparse": genHistory(120, func(i int) float64 {
			if i%9 == 0 {
				return 3
			}
			return 0
		}),
	}

	for name, history := range histories {
		for _, model := range NewModels(cfg) {
			t.Run(name+"/"+model.Name(), func(t *testing.T) {
				preds := model.ForecastDaily(history, 30)
				if len(preds) != 30 {
					t.Fatalf("expected 30 daily predictions, got %d", len(preds))
				}
				for _, p := range preds {
					if p.Forecast < 0 {
						t.Errorf("negative forecast %f", p.Forecast)
					}
					if p.Confidence < 0 || p.Confidence > 1 {
						t.Errorf("confidence %f outside [0,1]", p.Confidence)
					}
					if p.UpperBound < p.Forecast {
						t.Errorf("upper bound %f below forecast %f", p.UpperBound, p.Forecast)
					}
					if p.LowerBound > p.Forecast {
						t.Errorf("lower bound %f above forecast %f", p.LowerBound, p.Forecast)
					}
				}
			})
		}
	}
}

func TestModelsTrackConstantDemand(t *testing.T) {
	cfg := testConfig()
	history := constantHistory(120, 10)

	for _, model := range NewModels(cfg) {
		t.Run(model.Name(), func(t *testing.T) {
			p := model.Forecast(history, 7)
			if p.Forecast < 6 || p.Forecast > 14 {
				t.Errorf("constant 10/day series forecast %f, want near 10", p.Forecast)
			}
		})
	}
}

func TestExponentialSmoothingPicksUpWeeklyPattern(t *testing.T) {
	cfg := testConfig()
	// Weekend-heavy demand: weekday 2 units, Saturday/Sunday 12 units.
	history := genHistory(112, func(i int) float64 { return 2 })
	for i := range history {
		dow := history[i].Date.Weekday()
		if dow == time.Saturday || dow == time.Sunday {
			history[i].Units = 12
		}
	}

	model := NewExponentialSmoothing(cfg)
	preds := model.ForecastDaily(history, 14)

	var weekend, weekday []float64
	for _, p := range preds {
		if p.Date.Weekday() == time.Saturday || p.Date.Weekday() == time.Sunday {
			weekend = append(weekend, p.Forecast)
		} else {
			weekday = append(weekday, p.Forecast)
		}
	}
	if mean(weekend) <= mean(weekday) {
		t.Errorf("weekend forecast %f not above weekday forecast %f", mean(weekend), mean(weekday))
	}
}

func TestArimaFollowsTrend(t *testing.T) {
	cfg := testConfig()
	history := genHistory(120, func(i int) float64 { return 5 + float64(i)*0.1 })

	model := NewArima(cfg)
	p := model.Forecast(history, 14)
	last := history[len(history)-1].Units
	if p.Forecast < last*0.5 {
		t.Errorf("trending series forecast %f collapsed below %f", p.Forecast, last*0.5)
	}
}

func TestWeightSetNormalized(t *testing.T) {
	tests := []struct {
		name  string
		input WeightSet
	}{
		{"typical", WeightSet{ModelExponentialSmoothing: 2, ModelProphet: 1, ModelPatternMatch: 1, ModelArima: 0.5}},
		{"zero total", WeightSet{ModelExponentialSmoothing: 0, ModelProphet: 0, ModelPatternMatch: 0, ModelArima: 0}},
		{"negative entries", WeightSet{ModelExponentialSmoothing: -1, ModelProphet: 3, ModelPatternMatch: 1, ModelArima: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			norm := tt.input.Normalized()
			total := 0.0
			for _, v := range norm {
				if v < 0 {
					t.Errorf("normalized weight %f below zero", v)
				}
				total += v
			}
			if math.Abs(total-1.0) > 1e-9 {
				t.Errorf("normalized weights sum to %f, want 1", total)
			}
		})
	}
}

func TestFallbackNeverThrowsOnDegenerateInput(t *testing.T) {
	cfg := testConfig()
	inputs := map[string][]SalesDataPoint{
		"empty":    nil,
		"one day":  constantHistory(1, 5),
		"all zero": constantHistory(60, 0),
	}

	for name, history := range inputs {
		for _, model := range NewModels(cfg) {
			t.Run(name+"/"+model.Name(), func(t *testing.T) {
				p := model.Forecast(history, 30)
				if p.Forecast < 0 || p.Confidence < 0 || p.Confidence > 1 {
					t.Errorf("degenerate input produced forecast=%f confidence=%f", p.Forecast, p.Confidence)
				}
			})
		}
	}
}
