package forecast

import (
	"math"

	"demandcast/config"
)

// PatternMatch forecasts by matching the trailing demand window against a
// library of historical same-length windows and blending the outcomes that
// followed the closest matches, attention-weighted by similarity and recency.
type PatternMatch struct {
	sequenceLength int
	matchThreshold float64
	recencyDecay   float64
	minHistory     int
	fallbackCap    float64
}

// NewPatternMatch builds the model from configuration.
func NewPatternMatch(cfg config.ForecastConfig) *PatternMatch {
	return &PatternMatch{
		sequenceLength: cfg.SequenceLength,
		matchThreshold: cfg.PatternMatchThreshold,
		recencyDecay:   cfg.RecencyDecayRate,
		minHistory:     cfg.MinHistoryPattern,
		fallbackCap:    cfg.FallbackMaxConfidence,
	}
}

// Name implements Model.
func (m *PatternMatch) Name() string { return ModelPatternMatch }

// libraryEntry is one historical window with the demand that followed it.
type libraryEntry struct {
	pattern []float64 // mean-normalized window
	scale   float64   // window mean, restores the outcome to units
	outcome float64   // normalized units of the day after the window
	age     int       // days between the outcome and the end of history
}

// normalizeWindow divides a window by its mean. Returns nil for an all-zero
// window, which carries no shape to match against.
func normalizeWindow(w []float64) ([]float64, float64) {
	m := mean(w)
	if m < 1e-9 {
		return nil, 0
	}
	out := make([]float64, len(w))
	for i, v := range w {
		out[i] = v / m
	}
	return out, m
}

// cosineSimilarity between two equal-length vectors.
func cosineSimilarity(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na < 1e-12 || nb < 1e-12 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type patternFit struct {
	library      []libraryEntry
	current      []float64
	currentScale float64
	weekly       [7]float64
	trendFactor  float64
	sigma        float64
}

func (m *PatternMatch) fit(units []float64, history []SalesDataPoint) *patternFit {
	n := len(units)
	seq := m.sequenceLength
	if n < seq+2 {
		return nil
	}

	current, scale := normalizeWindow(units[n-seq:])
	if current == nil {
		return nil
	}

	f := &patternFit{current: current, currentScale: scale}

	// Build the library: every historical window whose following day is known.
	for i := 0; i+seq < n; i++ {
		pattern, pScale := normalizeWindow(units[i : i+seq])
		if pattern == nil {
			continue
		}
		f.library = append(f.library, libraryEntry{
			pattern: pattern,
			scale:   pScale,
			outcome: units[i+seq] / pScale,
			age:     n - (i + seq),
		})
	}
	if len(f.library) == 0 {
		return nil
	}

	// Weekly multiplier: average ratio of each weekday to the overall mean.
	overall := mean(units)
	if overall > 1e-9 {
		var sums [7]float64
		var counts [7]int
		for i, p := range history {
			dow := int(p.Date.Weekday())
			sums[dow] += units[i] / overall
			counts[dow]++
		}
		for dow := 0; dow < 7; dow++ {
			if counts[dow] > 0 {
				f.weekly[dow] = sums[dow] / float64(counts[dow])
			} else {
				f.weekly[dow] = 1.0
			}
		}
	} else {
		for dow := range f.weekly {
			f.weekly[dow] = 1.0
		}
	}

	// Trend factor from the last two windows, dampened.
	recent := mean(units[n-seq:])
	prior := mean(units[maxInt(0, n-2*seq) : n-seq])
	f.trendFactor = 1.0
	if prior > 1e-9 {
		f.trendFactor = math.Max(0.5, math.Min(1.5, recent/prior))
	}

	f.sigma = stdDev(units, overall)
	return f
}

// attendedForecast matches the current window against the library and
// returns the attention-weighted outcome in normalized units, along with
// the total attention mass accumulated.
func (m *PatternMatch) attendedForecast(f *patternFit) (float64, float64, int) {
	var weighted, totalAttention float64
	matches := 0
	for _, entry := range f.library {
		sim := cosineSimilarity(f.current, entry.pattern)
		if sim < m.matchThreshold {
			continue
		}
		attention := sim * math.Pow(m.recencyDecay, float64(entry.age))
		weighted += entry.outcome * attention
		totalAttention += attention
		matches++
	}
	if matches == 0 || totalAttention < 1e-12 {
		return 0, 0, 0
	}
	return weighted / totalAttention, totalAttention, matches
}

func (m *PatternMatch) predictionAt(history []SalesDataPoint, f *patternFit, base float64, matches int, h int) Prediction {
	date := NextDate(history, h)
	weekly := f.weekly[int(date.Weekday())]

	// The trend factor decays toward 1.0 with horizon distance so a recent
	// swing does not get extrapolated forever.
	decay := math.Pow(0.95, float64(h-1))
	trend := 1.0 + (f.trendFactor-1.0)*decay

	value := clampNonNeg(base * f.currentScale * weekly * trend)

	// Confidence from match density and data volume.
	matchScore := math.Min(float64(matches)/10.0, 1.0)
	volume := math.Min(float64(len(history))/90.0, 1.0)
	confidence := clamp01(0.5*matchScore + 0.3*volume + 0.2*(1.0/(1.0+coefficientOfVariation(Units(history)))))

	return Prediction{
		Model:      m.Name(),
		Date:       date,
		Forecast:   value,
		Confidence: confidence,
		UpperBound: clampNonNeg(value + 1.96*f.sigma),
		LowerBound: clampNonNeg(value - 1.96*f.sigma),
		Factors: Factors{
			Base:        base * f.currentScale,
			Trend:       trend,
			Seasonality: weekly,
		},
	}
}

// Forecast implements Model.
func (m *PatternMatch) Forecast(history []SalesDataPoint, horizonDays int) Prediction {
	if horizonDays < 1 {
		horizonDays = 1
	}
	if len(history) < m.minHistory {
		return fallbackPrediction(m.Name(), history, horizonDays, m.fallbackCap)
	}
	f := m.fit(Units(history), history)
	if f == nil {
		return fallbackPrediction(m.Name(), history, horizonDays, m.fallbackCap)
	}
	base, _, matches := m.attendedForecast(f)
	if matches == 0 {
		return fallbackPrediction(m.Name(), history, horizonDays, m.fallbackCap)
	}
	return m.predictionAt(history, f, base, matches, horizonDays)
}

// ForecastDaily implements Model.
func (m *PatternMatch) ForecastDaily(history []SalesDataPoint, horizonDays int) []Prediction {
	if horizonDays < 1 {
		horizonDays = 1
	}
	if len(history) < m.minHistory {
		return fallbackDaily(m.Name(), history, horizonDays, m.fallbackCap)
	}
	f := m.fit(Units(history), history)
	if f == nil {
		return fallbackDaily(m.Name(), history, horizonDays, m.fallbackCap)
	}
	base, _, matches := m.attendedForecast(f)
	if matches == 0 {
		return fallbackDaily(m.Name(), history, horizonDays, m.fallbackCap)
	}
	out := make([]Prediction, 0, horizonDays)
	for h := 1; h <= horizonDays; h++ {
		out = append(out, m.predictionAt(history, f, base, matches, h))
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
