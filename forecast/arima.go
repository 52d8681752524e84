package forecast

import (
	"math"

	"demandcast/config"
)

// Arima is an ARIMA(p,d,q) forecaster with optional weekly seasonal
// differencing. AR coefficients come from the Yule-Walker equations solved
// by Levinson-Durbin recursion; MA coefficients are estimated from the
// autocorrelation of the AR residuals.
type Arima struct {
	p           int
	d           int
	q           int
	period      int
	minHistory  int
	fallbackCap float64
}

// NewArima builds the model from configuration.
func NewArima(cfg config.ForecastConfig) *Arima {
	return &Arima{
		p:           cfg.ArimaP,
		d:           cfg.ArimaD,
		q:           cfg.ArimaQ,
		period:      cfg.SeasonalPeriod,
		minHistory:  cfg.MinHistoryArima,
		fallbackCap: cfg.FallbackMaxConfidence,
	}
}

// Name implements Model.
func (m *Arima) Name() string { return ModelArima }

type arimaFit struct {
	stages    [][]float64 // stages[0] = original series, stages[k] = k-th difference
	period    int
	seasonal  bool
	deepest   []float64 // series the AR/MA terms are fit on (after all differencing)
	mu        float64   // mean removed before fitting
	phi       []float64
	theta     []float64
	seasonPhi float64
	residuals []float64
	sigma     float64
	varReduce float64
}

func difference(series []float64, lag int) []float64 {
	if len(series) <= lag {
		return nil
	}
	out := make([]float64, len(series)-lag)
	for i := lag; i < len(series); i++ {
		out[i-lag] = series[i] - series[i-lag]
	}
	return out
}

func (m *Arima) fit(units []float64) *arimaFit {
	f := &arimaFit{stages: [][]float64{units}, period: m.period}

	// Regular differencing.
	current := units
	for k := 0; k < m.d; k++ {
		current = difference(current, 1)
		if len(current) < m.p+m.q+2 {
			return nil
		}
		f.stages = append(f.stages, current)
	}

	// Seasonal differencing when enough cycles survive.
	if len(current) >= 3*m.period {
		seasonal := difference(current, m.period)
		if len(seasonal) >= m.p+m.q+2 {
			f.seasonal = true
			current = seasonal
		}
	}
	f.deepest = current

	// Center the working series.
	f.mu = mean(current)
	centered := make([]float64, len(current))
	for i, v := range current {
		centered[i] = v - f.mu
	}

	// AR via Yule-Walker / Levinson-Durbin on the autocorrelations.
	if m.p > 0 {
		r := make([]float64, m.p+1)
		r[0] = 1
		for k := 1; k <= m.p; k++ {
			r[k] = autocorrelation(centered, k)
		}
		f.phi = levinsonDurbin(r, m.p)
		if f.phi == nil {
			return nil
		}
	}

	// Residuals of the AR fit.
	for t := m.p; t < len(centered); t++ {
		pred := 0.0
		for i, c := range f.phi {
			pred += c * centered[t-1-i]
		}
		f.residuals = append(f.residuals, centered[t]-pred)
	}
	if len(f.residuals) < m.q+2 {
		return nil
	}

	// MA from residual autocorrelation, clipped for invertibility.
	for j := 1; j <= m.q; j++ {
		theta := autocorrelation(f.residuals, j)
		if theta > 0.9 {
			theta = 0.9
		} else if theta < -0.9 {
			theta = -0.9
		}
		f.theta = append(f.theta, theta)
	}

	// Seasonal AR term on the differenced series.
	if f.seasonal && len(centered) > m.period+1 {
		f.seasonPhi = autocorrelation(centered, m.period)
		if f.seasonPhi > 0.9 {
			f.seasonPhi = 0.9
		} else if f.seasonPhi < -0.9 {
			f.seasonPhi = -0.9
		}
	}

	f.sigma = stdDev(f.residuals, mean(f.residuals))

	// Variance reduction from differencing indicates how stationary the
	// working series became.
	origVar := stdDev(units, mean(units))
	deepVar := stdDev(current, f.mu)
	if origVar > 1e-9 {
		f.varReduce = clamp01(1 - deepVar/origVar)
	}
	return f
}

// forecastSeries produces horizon forecasts in the original scale by
// recursing in the differenced space and then inverting each differencing
// step.
func (f *arimaFit) forecastSeries(horizon int) []float64 {
	centered := make([]float64, len(f.deepest))
	for i, v := range f.deepest {
		centered[i] = v - f.mu
	}
	nObs := len(centered)
	residuals := f.residuals

	// Recursive AR + MA + seasonal-AR forecast with future residuals at zero.
	deepHat := make([]float64, 0, horizon)
	for h := 1; h <= horizon; h++ {
		idx := nObs + h - 1
		v := 0.0
		for i, c := range f.phi {
			v += c * valueAt(centered, deepHat, nObs, idx-1-i)
		}
		if f.seasonPhi != 0 {
			v += f.seasonPhi * valueAt(centered, deepHat, nObs, idx-f.period)
		}
		for j, t := range f.theta {
			residIdx := len(residuals) + h - 1 - (j + 1)
			if residIdx >= 0 && residIdx < len(residuals) {
				v += t * residuals[residIdx]
			}
		}
		deepHat = append(deepHat, v)
	}

	// Un-center back to the deepest differenced space.
	for i := range deepHat {
		deepHat[i] += f.mu
	}

	// Invert seasonal differencing.
	lastStage := f.stages[len(f.stages)-1]
	if f.seasonal {
		ext := append([]float64{}, lastStage...)
		for _, v := range deepHat {
			ext = append(ext, v+ext[len(ext)-f.period])
		}
		deepHat = ext[len(lastStage):]
	}

	// Invert regular differencing, innermost first.
	for k := len(f.stages) - 1; k >= 1; k-- {
		parent := f.stages[k-1]
		last := parent[len(parent)-1]
		integrated := make([]float64, len(deepHat))
		for i, v := range deepHat {
			last += v
			integrated[i] = last
		}
		deepHat = integrated
	}
	return deepHat
}

// valueAt reads from the observed centered series or the forecasts already
// produced, returning 0 for indices before the series start.
func valueAt(observed, forecast []float64, nObs, idx int) float64 {
	if idx < 0 {
		return 0
	}
	if idx < nObs {
		return observed[idx]
	}
	if idx-nObs < len(forecast) {
		return forecast[idx-nObs]
	}
	return 0
}

func (m *Arima) confidence(units []float64, f *arimaFit) float64 {
	volume := math.Min(float64(len(units))/90.0, 1.0)

	stability := 1.0
	for _, c := range f.phi {
		if math.Abs(c) >= 1 {
			stability = 0.3
			break
		}
	}
	return clamp01(0.4*volume + 0.3*f.varReduce + 0.3*stability)
}

func (m *Arima) predictions(history []SalesDataPoint, horizonDays int) []Prediction {
	units := Units(history)
	f := m.fit(units)
	if f == nil {
		return nil
	}
	values := f.forecastSeries(horizonDays)
	if len(values) != horizonDays {
		return nil
	}
	conf := m.confidence(units, f)
	base := mean(units)

	out := make([]Prediction, 0, horizonDays)
	for h := 1; h <= horizonDays; h++ {
		v := clampNonNeg(values[h-1])
		out = append(out, Prediction{
			Model:      m.Name(),
			Date:       NextDate(history, h),
			Forecast:   v,
			Confidence: conf,
			UpperBound: clampNonNeg(v + 1.96*f.sigma),
			LowerBound: clampNonNeg(v - 1.96*f.sigma),
			Factors: Factors{
				Base:        base,
				Trend:       v - base,
				Seasonality: 1.0,
			},
		})
	}
	return out
}

// Forecast implements Model.
func (m *Arima) Forecast(history []SalesDataPoint, horizonDays int) Prediction {
	if horizonDays < 1 {
		horizonDays = 1
	}
	if len(history) < m.minHistory {
		return fallbackPrediction(m.Name(), history, horizonDays, m.fallbackCap)
	}
	preds := m.predictions(history, horizonDays)
	if preds == nil {
		return fallbackPrediction(m.Name(), history, horizonDays, m.fallbackCap)
	}
	return preds[horizonDays-1]
}

// ForecastDaily implements Model.
func (m *Arima) ForecastDaily(history []SalesDataPoint, horizonDays int) []Prediction {
	if horizonDays < 1 {
		horizonDays = 1
	}
	if len(history) < m.minHistory {
		return fallbackDaily(m.Name(), history, horizonDays, m.fallbackCap)
	}
	preds := m.predictions(history, horizonDays)
	if preds == nil {
		return fallbackDaily(m.Name(), history, horizonDays, m.fallbackCap)
	}
	return preds
}
