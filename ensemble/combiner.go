// Package ensemble blends the four model forecasts into a single per-day
// demand estimate using per-SKU learned weights, applies the multiplicative
// adjustment layer (seasonality, deals, spikes) and derives safety stock,
// recommended inventory and prediction bounds.
package ensemble

import (
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"demandcast/config"
	"demandcast/forecast"
	"demandcast/metrics"
	"demandcast/spike"
)

// Forecast is one future day's blended forecast with its explanation.
type Forecast struct {
	SKU                   string             `json:"sku"`
	Date                  time.Time          `json:"date"`
	BaseForecast          float64            `json:"base_forecast"`
	FinalForecast         float64            `json:"final_forecast"`
	Confidence            float64            `json:"confidence"`
	ModelForecasts        map[string]float64 `json:"model_forecasts"`
	SeasonalityMultiplier float64            `json:"seasonality_multiplier"`
	DealMultiplier        float64            `json:"deal_multiplier"`
	SpikeMultiplier       float64            `json:"spike_multiplier"`
	SafetyStock           float64            `json:"safety_stock"`
	RecommendedInventory  int                `json:"recommended_inventory"`
	UpperBound            float64            `json:"upper_bound"`
	LowerBound            float64            `json:"lower_bound"`
	Reasoning             []string           `json:"reasoning"`
}

// Inputs carries everything the combiner needs for one SKU.
type Inputs struct {
	SKU          string
	History      []forecast.SalesDataPoint
	Weights      forecast.WeightSet
	Events       []SeasonalEvent
	Deals        []Deal
	Spike        *spike.Detection
	LeadTimeDays int
}

// Combiner folds model outputs into ensemble forecasts.
type Combiner struct {
	models   []forecast.Model
	decision config.DecisionConfig
}

// NewCombiner creates a combiner over the given models.
func NewCombiner(models []forecast.Model, decision config.DecisionConfig) *Combiner {
	return &Combiner{models: models, decision: decision}
}

// TrailingVelocity returns mean units/day over the trailing window.
func TrailingVelocity(history []forecast.SalesDataPoint, days int) float64 {
	if len(history) == 0 || days <= 0 {
		return 0
	}
	start := len(history) - days
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, p := range history[start:] {
		sum += p.Units
	}
	return sum / float64(len(history)-start)
}

// TrailingSigma returns the demand standard deviation over the trailing window.
func TrailingSigma(history []forecast.SalesDataPoint, days int) float64 {
	if len(history) == 0 {
		return 0
	}
	start := len(history) - days
	if start < 0 {
		start = 0
	}
	window := history[start:]
	sum := 0.0
	for _, p := range window {
		sum += p.Units
	}
	m := sum / float64(len(window))
	sumSq := 0.0
	for _, p := range window {
		d := p.Units - m
		sumSq += d * d
	}
	if len(window) < 2 {
		return 0
	}
	return math.Sqrt(sumSq / float64(len(window)))
}

// runModels collects each model's daily series concurrently. The four models
// are mutually independent; a panicking model degrades to its fallback
// series instead of aborting the SKU's pipeline.
func (c *Combiner) runModels(history []forecast.SalesDataPoint, horizonDays int) map[string][]forecast.Prediction {
	results := make(map[string][]forecast.Prediction, len(c.models))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, model := range c.models {
		wg.Add(1)
		go func(m forecast.Model) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("⚠️  Model %s panicked, using fallback: %v", m.Name(), r)
					mu.Lock()
					results[m.Name()] = forecast.FallbackDaily(m.Name(), history, horizonDays)
					mu.Unlock()
				}
			}()
			preds := m.ForecastDaily(history, horizonDays)
			mu.Lock()
			results[m.Name()] = preds
			mu.Unlock()
		}(model)
	}
	wg.Wait()

	// Any model that returned a short series is padded from its single-point
	// estimate so every horizon offset has four inputs.
	for _, model := range c.models {
		preds := results[model.Name()]
		for len(preds) < horizonDays {
			preds = append(preds, model.Forecast(history, len(preds)+1))
		}
		if len(preds) > 0 && preds[0].Fallback {
			metrics.ModelFallbacksTotal.WithLabelValues(model.Name()).Inc()
		}
		results[model.Name()] = preds
	}
	return results
}

// Forecast produces one blended forecast per future day over the horizon.
func (c *Combiner) Forecast(in Inputs, horizonDays int) []Forecast {
	if horizonDays < 1 {
		horizonDays = 1
	}
	weights := in.Weights.Normalized()
	modelSeries := c.runModels(in.History, horizonDays)

	velocity := TrailingVelocity(in.History, 30)
	sigma := TrailingSigma(in.History, 30)
	z := ZScoreForVelocity(velocity, c.decision)

	bias := c.decision.BiasCorrection
	if bias <= 0 {
		bias = 1
	}

	out := make([]Forecast, 0, horizonDays)
	for day := 1; day <= horizonDays; day++ {
		date := forecast.NextDate(in.History, day)

		modelForecasts := make(map[string]float64, len(c.models))
		raw := make([]float64, 0, len(c.models))
		base, confidence := 0.0, 0.0
		for name, preds := range modelSeries {
			f := preds[day-1].Forecast
			modelForecasts[name] = f
			raw = append(raw, f)
			base += f * weights[name]
			confidence += preds[day-1].Confidence * weights[name]
		}
		base = clampNonNeg(base * bias)

		seasonMult, seasonNames := seasonalityMultiplier(in.Events, in.SKU, date)
		dealMult, dealNames := dealMultiplier(in.Deals, date)
		spikeMult := 1.0
		if in.Spike != nil && in.Spike.IsSpiking {
			spikeMult = in.Spike.MultiplierAt(day)
		}

		final := clampNonNeg(base * seasonMult * dealMult * spikeMult)

		safety := SafetyStock(final, sigma, in.LeadTimeDays, z, c.decision.SafetyStockFloorDays)

		// Bounds from cross-model disagreement, widened with horizon distance.
		spread := modelSpread(raw)
		widen := 1.0 + (float64(day)/float64(horizonDays))*0.5
		upper := final + 1.96*spread*widen
		lower := final - 1.96*spread*widen
		if lower < 0 {
			lower = 0
		}

		out = append(out, Forecast{
			SKU:                   in.SKU,
			Date:                  date,
			BaseForecast:          base,
			FinalForecast:         final,
			Confidence:            clamp01(confidence),
			ModelForecasts:        modelForecasts,
			SeasonalityMultiplier: seasonMult,
			DealMultiplier:        dealMult,
			SpikeMultiplier:       spikeMult,
			SafetyStock:           safety,
			RecommendedInventory:  int(math.Ceil(final + safety)),
			UpperBound:            upper,
			LowerBound:            lower,
			Reasoning:             buildReasoning(base, final, weights, modelForecasts, seasonMult, seasonNames, dealMult, dealNames, spikeMult),
		})
	}
	return out
}

// modelSpread is the empirical standard deviation across the raw model outputs.
func modelSpread(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	m := sum / float64(len(values))
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// buildReasoning produces the ordered, reproducible explanation clauses.
func buildReasoning(base, final float64, weights forecast.WeightSet, modelForecasts map[string]float64, seasonMult float64, seasonNames []string, dealMult float64, dealNames []string, spikeMult float64) []string {
	reasoning := []string{
		fmt.Sprintf("Base estimate %.1f units/day from weighted 4-model ensemble", base),
	}

	// Dominant model by weight, named deterministically.
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)
	dominant, dominantWeight := "", -1.0
	for _, name := range names {
		if weights[name] > dominantWeight {
			dominant, dominantWeight = name, weights[name]
		}
	}
	if dominant != "" {
		reasoning = append(reasoning, fmt.Sprintf("Strongest model %s at weight %.2f forecasting %.1f", dominant, dominantWeight, modelForecasts[dominant]))
	}

	if seasonMult != 1.0 {
		reasoning = append(reasoning, fmt.Sprintf("Seasonality multiplier %.2fx (%s)", seasonMult, joinOr(seasonNames, "calendar")))
	}
	if dealMult != 1.0 {
		reasoning = append(reasoning, fmt.Sprintf("Promotion multiplier %.2fx (%s)", dealMult, joinOr(dealNames, "active deal")))
	}
	if spikeMult != 1.0 {
		reasoning = append(reasoning, fmt.Sprintf("Demand spike multiplier %.2fx applied", spikeMult))
	}
	reasoning = append(reasoning, fmt.Sprintf("Final forecast %.1f units", final))
	return reasoning
}

func joinOr(names []string, fallback string) string {
	if len(names) == 0 {
		return fallback
	}
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}

func clampNonNeg(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
