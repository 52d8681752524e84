// Package forecast implements the demand model layer: four independent
// time-series forecasters sharing one contract, plus the deterministic
// mean-and-trend fallback every model degrades to when history is short
// or a numerical step fails.
//
// Models:
//   - ExponentialSmoothing: Holt-Winters with a weekly multiplicative seasonal
//   - Prophet: trend + changepoints + Fourier seasonality decomposition
//   - PatternMatch: attention-weighted similarity over historical windows
//   - Arima: differencing + Yule-Walker AR + residual-autocorrelation MA
//
// Every model clamps its forecast to >= 0 and its confidence to [0, 1] so the
// ensemble never receives undefined output.
package forecast

import (
	"time"
)

// Model identifiers used as weight keys and in persisted accuracy records.
const (
	ModelExponentialSmoothing = "exponential_smoothing"
	ModelProphet              = "prophet"
	ModelPatternMatch         = "pattern_match"
	ModelArima                = "arima"
)

// ModelNames lists the ensemble members in canonical order.
var ModelNames = []string{
	ModelExponentialSmoothing,
	ModelProphet,
	ModelPatternMatch,
	ModelArima,
}

// SalesDataPoint is one calendar day's observed demand for a SKU.
// Histories are chronologically ordered with no duplicate dates.
type SalesDataPoint struct {
	Date    time.Time `json:"date"`
	Units   float64   `json:"units"`
	Revenue float64   `json:"revenue,omitempty"`
}

// Factors breaks a prediction into its additive/multiplicative components
// for explanation purposes.
type Factors struct {
	Base        float64 `json:"base"`
	Trend       float64 `json:"trend"`
	Seasonality float64 `json:"seasonality"`
}

// Prediction is one model's output for a single future day.
// Produced fresh per call; never persisted directly.
type Prediction struct {
	Model      string    `json:"model"`
	Date       time.Time `json:"date"`
	Forecast   float64   `json:"forecast"`
	Confidence float64   `json:"confidence"`
	UpperBound float64   `json:"upper_bound"`
	LowerBound float64   `json:"lower_bound"`
	Factors    Factors   `json:"factors"`
	Fallback   bool      `json:"fallback,omitempty"` // true when the mean+trend estimator was used
}

// Model is the common forecasting contract. Forecast returns a single
// point estimate at the given horizon; ForecastDaily returns one prediction
// per future day up to the horizon. Implementations never return an error:
// insufficient data or numerical failure degrades to the fallback estimator.
type Model interface {
	Name() string
	Forecast(history []SalesDataPoint, horizonDays int) Prediction
	ForecastDaily(history []SalesDataPoint, horizonDays int) []Prediction
}

// WeightSet maps model name to its (non-negative) ensemble weight.
type WeightSet map[string]float64

// EqualWeights returns a uniform weight set over all models.
func EqualWeights() WeightSet {
	w := make(WeightSet, len(ModelNames))
	for _, name := range ModelNames {
		w[name] = 1.0 / float64(len(ModelNames))
	}
	return w
}

// Normalized returns a copy of the weight set scaled to sum to 1.
// A zero or negative total falls back to equal weights.
func (w WeightSet) Normalized() WeightSet {
	total := 0.0
	for _, v := range w {
		if v > 0 {
			total += v
		}
	}
	if total <= 0 {
		return EqualWeights()
	}
	out := make(WeightSet, len(w))
	for name, v := range w {
		if v < 0 {
			v = 0
		}
		out[name] = v / total
	}
	return out
}

// Clone returns a copy of the weight set.
func (w WeightSet) Clone() WeightSet {
	out := make(WeightSet, len(w))
	for name, v := range w {
		out[name] = v
	}
	return out
}

// SKUWeights is the per-SKU learned ensemble state, the only long-lived
// learned state in the engine. Mutated exclusively by the weight optimizer.
type SKUWeights struct {
	SKU         string    `json:"sku"`
	Weights     WeightSet `json:"weights"`
	OverallMape float64   `json:"overall_mape"`
	LastUpdated time.Time `json:"last_updated"`
}

// NextDate returns the calendar date for the given 1-based horizon offset
// from the end of the history. An empty history anchors at today.
func NextDate(history []SalesDataPoint, offset int) time.Time {
	if len(history) == 0 {
		return time.Now().Truncate(24*time.Hour).AddDate(0, 0, offset)
	}
	return history[len(history)-1].Date.AddDate(0, 0, offset)
}

// Units extracts the demand series from a history.
func Units(history []SalesDataPoint) []float64 {
	out := make([]float64, len(history))
	for i, p := range history {
		out[i] = p.Units
	}
	return out
}
