package forecast

import (
	"math"

	"demandcast/config"
)

// ExponentialSmoothing is a Holt-Winters forecaster with additive level/trend
// and a multiplicative weekly seasonal component.
type ExponentialSmoothing struct {
	alpha       float64
	beta        float64
	gamma       float64
	period      int
	minHistory  int
	fallbackCap float64
}

// NewExponentialSmoothing builds the model from configuration.
func NewExponentialSmoothing(cfg config.ForecastConfig) *ExponentialSmoothing {
	return &ExponentialSmoothing{
		alpha:       cfg.SmoothingAlpha,
		beta:        cfg.SmoothingBeta,
		gamma:       cfg.SmoothingGamma,
		period:      cfg.SeasonalPeriod,
		minHistory:  cfg.MinHistorySmoothing,
		fallbackCap: cfg.FallbackMaxConfidence,
	}
}

// Name implements Model.
func (m *ExponentialSmoothing) Name() string { return ModelExponentialSmoothing }

// smoothingState carries the fitted level/trend/seasonal components.
type smoothingState struct {
	level     float64
	trend     float64
	seasonal  []float64
	residuals []float64
	n         int
}

// fit runs one forward pass over the history, updating level, trend and the
// seasonal index per observed day. Returns nil when the series is degenerate.
func (m *ExponentialSmoothing) fit(units []float64) *smoothingState {
	p := m.period
	if len(units) < 2*p {
		return nil
	}

	// Initial level and trend from the first two seasonal cycles.
	firstCycle := mean(units[:p])
	secondCycle := mean(units[p : 2*p])
	level := firstCycle
	trend := (secondCycle - firstCycle) / float64(p)
	if level < 1e-9 {
		level = 1e-9
	}

	// Initial seasonal indices: average ratio of each weekday to its cycle mean.
	seasonal := make([]float64, p)
	counts := make([]int, p)
	cycles := len(units) / p
	for c := 0; c < cycles; c++ {
		cycleMean := mean(units[c*p : (c+1)*p])
		if cycleMean < 1e-9 {
			continue
		}
		for i := 0; i < p; i++ {
			seasonal[i] += units[c*p+i] / cycleMean
			counts[i]++
		}
	}
	for i := 0; i < p; i++ {
		if counts[i] > 0 {
			seasonal[i] /= float64(counts[i])
		} else {
			seasonal[i] = 1.0
		}
		if seasonal[i] < 0.05 {
			seasonal[i] = 0.05
		}
	}

	st := &smoothingState{level: level, trend: trend, seasonal: seasonal, n: len(units)}

	for i, actual := range units {
		idx := i % p
		s := st.seasonal[idx]
		if s < 1e-9 {
			s = 1e-9
		}

		fitted := (st.level + st.trend) * s
		st.residuals = append(st.residuals, actual-fitted)

		newLevel := m.alpha*(actual/s) + (1-m.alpha)*(st.level+st.trend)
		newTrend := m.beta*(newLevel-st.level) + (1-m.beta)*st.trend
		if newLevel > 1e-9 {
			st.seasonal[idx] = m.gamma*(actual/newLevel) + (1-m.gamma)*st.seasonal[idx]
		}
		st.level = newLevel
		st.trend = newTrend
	}
	if math.IsNaN(st.level) || math.IsInf(st.level, 0) {
		return nil
	}
	return st
}

// forecastAt projects the fitted state h days past the end of the history.
func (st *smoothingState) forecastAt(h int) (value, seasonalIdx float64) {
	p := len(st.seasonal)
	s := st.seasonal[(st.n+h-1)%p]
	return clampNonNeg((st.level + float64(h)*st.trend) * s), s
}

// confidence blends data volume, series stability and trend magnitude.
func (m *ExponentialSmoothing) confidence(units []float64, st *smoothingState) float64 {
	volume := math.Min(float64(len(units))/60.0, 1.0)
	stability := 1.0 / (1.0 + coefficientOfVariation(units))
	trendRatio := 0.0
	if st.level > 1e-9 {
		trendRatio = math.Abs(st.trend) / st.level
	}
	trendScore := 1.0 - math.Min(trendRatio, 1.0)
	return clamp01(0.4*volume + 0.4*stability + 0.2*trendScore)
}

// Forecast implements Model.
func (m *ExponentialSmoothing) Forecast(history []SalesDataPoint, horizonDays int) Prediction {
	if horizonDays < 1 {
		horizonDays = 1
	}
	if len(history) < m.minHistory {
		return fallbackPrediction(m.Name(), history, horizonDays, m.fallbackCap)
	}
	units := Units(history)
	st := m.fit(units)
	if st == nil {
		return fallbackPrediction(m.Name(), history, horizonDays, m.fallbackCap)
	}

	value, seasonal := st.forecastAt(horizonDays)
	conf := m.confidence(units, st)
	sigma := stdDev(st.residuals, mean(st.residuals))

	return Prediction{
		Model:      m.Name(),
		Date:       NextDate(history, horizonDays),
		Forecast:   value,
		Confidence: conf,
		UpperBound: clampNonNeg(value + 1.96*sigma),
		LowerBound: clampNonNeg(value - 1.96*sigma),
		Factors: Factors{
			Base:        st.level,
			Trend:       st.trend,
			Seasonality: seasonal,
		},
	}
}

// ForecastDaily implements Model. The state is fitted once and projected
// per future day.
func (m *ExponentialSmoothing) ForecastDaily(history []SalesDataPoint, horizonDays int) []Prediction {
	if horizonDays < 1 {
		horizonDays = 1
	}
	if len(history) < m.minHistory {
		return fallbackDaily(m.Name(), history, horizonDays, m.fallbackCap)
	}
	units := Units(history)
	st := m.fit(units)
	if st == nil {
		return fallbackDaily(m.Name(), history, horizonDays, m.fallbackCap)
	}

	conf := m.confidence(units, st)
	sigma := stdDev(st.residuals, mean(st.residuals))

	out := make([]Prediction, 0, horizonDays)
	for h := 1; h <= horizonDays; h++ {
		value, seasonal := st.forecastAt(h)
		out = append(out, Prediction{
			Model:      m.Name(),
			Date:       NextDate(history, h),
			Forecast:   value,
			Confidence: conf,
			UpperBound: clampNonNeg(value + 1.96*sigma),
			LowerBound: clampNonNeg(value - 1.96*sigma),
			Factors: Factors{
				Base:        st.level,
				Trend:       st.trend,
				Seasonality: seasonal,
			},
		})
	}
	return out
}
