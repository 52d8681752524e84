// Package backtest measures per-model forecast accuracy on rolling
// historical windows and retunes the per-SKU ensemble weights from the
// results. The optimizer persists a new weight set only when it improves
// the backtested ensemble MAPE, so weights never regress.
package backtest

import (
	"math"
	"time"

	"demandcast/config"
	"demandcast/forecast"
)

// PointResult is one forecast-vs-actual comparison inside a test window.
type PointResult struct {
	Date     time.Time `json:"date"`
	Forecast float64   `json:"forecast"`
	Actual   float64   `json:"actual"`
}

// Result aggregates one model's accuracy across all test windows for a SKU.
type Result struct {
	SKU         string        `json:"sku"`
	Model       string        `json:"model"`
	PeriodStart time.Time     `json:"period_start"`
	PeriodEnd   time.Time     `json:"period_end"`
	Mape        float64       `json:"mape"`
	Mae         float64       `json:"mae"`
	Rmse        float64       `json:"rmse"`
	HitRate     float64       `json:"hit_rate"`
	Windows     int           `json:"windows"`
	Points      []PointResult `json:"points,omitempty"`
}

// Backtester replays history through the models window by window.
type Backtester struct {
	models []forecast.Model
	cfg    config.OptimizerConfig
}

// NewBacktester creates a backtester over the given models.
func NewBacktester(models []forecast.Model, cfg config.OptimizerConfig) *Backtester {
	return &Backtester{models: models, cfg: cfg}
}

// minTrainDays is the least history a window's training slice must keep so
// the models have something to fit.
const minTrainDays = 30

// windowStarts returns the start indices of sequential non-overlapping test
// windows, oldest first, capped at MaxWindows counting back from the end.
func (b *Backtester) windowStarts(historyLen int) []int {
	var starts []int
	for end := historyLen; end-b.cfg.WindowDays >= minTrainDays && len(starts) < b.cfg.MaxWindows; end -= b.cfg.WindowDays {
		starts = append(starts, end-b.cfg.WindowDays)
	}
	// Reverse to oldest-first.
	for i, j := 0, len(starts)-1; i < j; i, j = i+1, j-1 {
		starts[i], starts[j] = starts[j], starts[i]
	}
	return starts
}

// Run backtests every model on the history. Returns nil when fewer than the
// configured minimum of usable windows exist; that is "not yet optimizable",
// not an error.
func (b *Backtester) Run(sku string, history []forecast.SalesDataPoint) map[string]*Result {
	starts := b.windowStarts(len(history))
	if len(starts) < b.cfg.MinWindows {
		return nil
	}

	results := make(map[string]*Result, len(b.models))
	for _, model := range b.models {
		res := &Result{
			SKU:         sku,
			Model:       model.Name(),
			PeriodStart: history[starts[0]].Date,
			PeriodEnd:   history[len(history)-1].Date,
			Windows:     len(starts),
		}

		var absErrSum, pctErrSum, sqErrSum float64
		hits, pctPoints, points := 0, 0, 0
		for _, start := range starts {
			train := history[:start]
			window := history[start : start+b.cfg.WindowDays]
			preds := model.ForecastDaily(train, len(window))

			for i, actual := range window {
				f := preds[i].Forecast
				res.Points = append(res.Points, PointResult{Date: actual.Date, Forecast: f, Actual: actual.Units})

				absErr := math.Abs(f - actual.Units)
				absErrSum += absErr
				sqErrSum += absErr * absErr
				points++

				if actual.Units > 0 {
					relErr := absErr / actual.Units
					pctErrSum += relErr
					pctPoints++
					if relErr <= b.cfg.HitRateTolerance {
						hits++
					}
				}
			}
		}

		if points > 0 {
			res.Mae = absErrSum / float64(points)
			res.Rmse = math.Sqrt(sqErrSum / float64(points))
		}
		if pctPoints > 0 {
			res.Mape = pctErrSum / float64(pctPoints) * 100
			res.HitRate = float64(hits) / float64(pctPoints)
		} else {
			// No nonzero actuals to score against: unusable for weighting.
			res.Mape = b.cfg.ExcludeMapeAbove
		}
		results[model.Name()] = res
	}
	return results
}

// EnsembleMape scores a weight set on a validation slice: each model
// forecasts the validation days from the training history, the blended
// forecast is compared against the actuals.
func (b *Backtester) EnsembleMape(train, validation []forecast.SalesDataPoint, weights forecast.WeightSet) float64 {
	series := make(map[string][]forecast.Prediction, len(b.models))
	for _, model := range b.models {
		series[model.Name()] = model.ForecastDaily(train, len(validation))
	}
	return ensembleMapeFromSeries(series, validation, weights)
}

// ensembleMapeFromSeries scores a weight set against precomputed model
// series so old and new weights are compared on identical forecasts.
func ensembleMapeFromSeries(series map[string][]forecast.Prediction, validation []forecast.SalesDataPoint, weights forecast.WeightSet) float64 {
	norm := weights.Normalized()
	var pctErrSum float64
	pctPoints := 0
	for i, actual := range validation {
		if actual.Units <= 0 {
			continue
		}
		blended := 0.0
		for name, preds := range series {
			if i < len(preds) {
				blended += preds[i].Forecast * norm[name]
			}
		}
		pctErrSum += math.Abs(blended-actual.Units) / actual.Units
		pctPoints++
	}
	if pctPoints == 0 {
		return 0
	}
	return pctErrSum / float64(pctPoints) * 100
}
