package forecast

import "math"

// fallbackWindow caps how much trailing history the simple estimator looks at.
const fallbackWindow = 30

// fallbackPrediction is the deterministic mean+trend estimator every model
// degrades to when its minimum history is not met or a numerical step fails.
// Confidence is capped so short histories never dominate the ensemble.
func fallbackPrediction(model string, history []SalesDataPoint, horizonDays int, maxConfidence float64) Prediction {
	date := NextDate(history, horizonDays)
	if len(history) == 0 {
		return Prediction{
			Model:      model,
			Date:       date,
			Forecast:   0,
			Confidence: 0.1,
			Fallback:   true,
		}
	}

	units := Units(history)
	if len(units) > fallbackWindow {
		units = units[len(units)-fallbackWindow:]
	}
	base := mean(units)

	// Trend from the ratio of the recent half to the older half.
	trend := 1.0
	if len(units) >= 4 {
		half := len(units) / 2
		older := mean(units[:half])
		recent := mean(units[half:])
		if older > 0 {
			trend = recent / older
		}
	}
	// Dampen the trend so a thin history cannot explode the estimate.
	trend = math.Max(0.5, math.Min(1.5, trend))

	forecast := clampNonNeg(base * trend)

	// Confidence grows with data volume but is hard-capped.
	confidence := clamp01(float64(len(history)) / 60.0)
	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	if confidence < 0.1 {
		confidence = 0.1
	}

	sigma := stdDev(units, mean(units))
	return Prediction{
		Model:      model,
		Date:       date,
		Forecast:   forecast,
		Confidence: confidence,
		UpperBound: clampNonNeg(forecast + 1.96*sigma),
		LowerBound: clampNonNeg(forecast - 1.96*sigma),
		Factors: Factors{
			Base:        base,
			Trend:       trend,
			Seasonality: 1.0,
		},
		Fallback: true,
	}
}

// FallbackDaily exposes the fallback estimator so callers can substitute
// a failed model's output without aborting a SKU's pipeline.
func FallbackDaily(model string, history []SalesDataPoint, horizonDays int) []Prediction {
	return fallbackDaily(model, history, horizonDays, 0.4)
}

// fallbackDaily produces one fallback prediction per future day.
func fallbackDaily(model string, history []SalesDataPoint, horizonDays int, maxConfidence float64) []Prediction {
	out := make([]Prediction, 0, horizonDays)
	for day := 1; day <= horizonDays; day++ {
		p := fallbackPrediction(model, history, day, maxConfidence)
		out = append(out, p)
	}
	return out
}
