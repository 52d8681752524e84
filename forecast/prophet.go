package forecast

import (
	"math"
	"time"

	"demandcast/config"
)

// EventWindow is a recurring calendar window with a demand effect, e.g. a
// holiday season. Windows may wrap the year boundary (Nov 20 – Jan 5).
type EventWindow struct {
	Name       string
	StartMonth int
	StartDay   int
	EndMonth   int
	EndDay     int
}

// Contains reports whether the date falls inside the window, ignoring year.
func (e EventWindow) Contains(t time.Time) bool {
	md := int(t.Month())*100 + t.Day()
	start := e.StartMonth*100 + e.StartDay
	end := e.EndMonth*100 + e.EndDay
	if start <= end {
		return md >= start && md <= end
	}
	// Window wraps the year boundary.
	return md >= start || md <= end
}

// Prophet approximates a Prophet-style decomposition: a piecewise-linear
// trend with regularized changepoints, weekly and yearly Fourier seasonality
// fit by ridge regression, and shrunk calendar-event effects.
type Prophet struct {
	maxChangePoints int
	changePrior     float64
	holidayPrior    float64
	weeklyOrder     int
	yearlyOrder     int
	ridgeLambda     float64
	minHistory      int
	fallbackCap     float64
	events          []EventWindow
}

// NewProphet builds the model from configuration.
func NewProphet(cfg config.ForecastConfig) *Prophet {
	return &Prophet{
		maxChangePoints: cfg.MaxChangePoints,
		changePrior:     cfg.ChangePointPriorScale,
		holidayPrior:    cfg.HolidayPriorScale,
		weeklyOrder:     cfg.WeeklyFourierOrder,
		yearlyOrder:     cfg.YearlyFourierOrder,
		ridgeLambda:     cfg.RidgeLambda,
		minHistory:      cfg.MinHistoryProphet,
		fallbackCap:     cfg.FallbackMaxConfidence,
	}
}

// Name implements Model.
func (m *Prophet) Name() string { return ModelProphet }

// SetEvents registers recurring calendar windows whose effect the model
// estimates from history.
func (m *Prophet) SetEvents(events []EventWindow) {
	m.events = events
}

type eventEffect struct {
	window EventWindow
	effect float64
}

type prophetFit struct {
	n          int
	intercept  float64
	slope      float64
	changeAt   []int
	deltas     []float64
	weekly     [7]float64
	yearlyBeta []float64
	yearlyOn   bool
	events     []eventEffect
	sigma      float64
	confidence float64
}

// trendAt evaluates the piecewise-linear trend at index t.
func (f *prophetFit) trendAt(t float64) float64 {
	v := f.intercept + f.slope*t
	for i, cp := range f.changeAt {
		if t > float64(cp) {
			v += f.deltas[i] * (t - float64(cp))
		}
	}
	return v
}

// yearlyAt evaluates the yearly Fourier component for a date.
func (f *prophetFit) yearlyAt(date time.Time) float64 {
	if !f.yearlyOn {
		return 0
	}
	frac := float64(date.YearDay()) / 365.25
	v := 0.0
	for k := 0; k < len(f.yearlyBeta)/2; k++ {
		angle := 2 * math.Pi * float64(k+1) * frac
		v += f.yearlyBeta[2*k]*math.Sin(angle) + f.yearlyBeta[2*k+1]*math.Cos(angle)
	}
	return v
}

// componentsAt returns trend and seasonal values for one future offset.
func (f *prophetFit) componentsAt(date time.Time, t float64) (trend, weekly, yearly, event float64) {
	trend = f.trendAt(t)
	weekly = f.weekly[int(date.Weekday())]
	yearly = f.yearlyAt(date)
	for _, e := range f.events {
		if e.window.Contains(date) {
			event += e.effect
		}
	}
	return trend, weekly, yearly, event
}

// ridgeFourier fits Fourier coefficients of the given order to (x, y) pairs
// where x is a cyclic fraction in [0, 1). Returns nil on a singular system.
func ridgeFourier(fracs, y []float64, order int, lambda float64) []float64 {
	p := 2 * order
	ata := make([][]float64, p)
	atb := make([]float64, p)
	for i := range ata {
		ata[i] = make([]float64, p)
		ata[i][i] = lambda
	}
	row := make([]float64, p)
	for i, frac := range fracs {
		for k := 0; k < order; k++ {
			angle := 2 * math.Pi * float64(k+1) * frac
			row[2*k] = math.Sin(angle)
			row[2*k+1] = math.Cos(angle)
		}
		for a := 0; a < p; a++ {
			atb[a] += row[a] * y[i]
			for b := 0; b < p; b++ {
				ata[a][b] += row[a] * row[b]
			}
		}
	}
	beta, ok := solveLinearSystem(ata, atb)
	if !ok {
		return nil
	}
	return beta
}

func (m *Prophet) fit(history []SalesDataPoint) *prophetFit {
	units := Units(history)
	n := len(units)

	f := &prophetFit{n: n}
	f.slope, f.intercept = linearFit(units)

	// Changepoints: evenly spaced over the first 80% of the history, each
	// contributing a shrunk slope adjustment estimated from the residuals
	// that remain after the trend fitted so far.
	numCP := m.maxChangePoints
	if numCP > n/10 {
		numCP = n / 10
	}
	for j := 1; j <= numCP; j++ {
		cp := int(float64(j) * 0.8 * float64(n) / float64(numCP+1))
		if cp < 2 || cp >= n-2 {
			continue
		}
		segEnd := cp + 30
		if segEnd > n {
			segEnd = n
		}
		resid := make([]float64, segEnd-cp)
		for i := cp; i < segEnd; i++ {
			resid[i-cp] = units[i] - f.trendAt(float64(i))
		}
		raw, _ := linearFit(resid)
		if math.Abs(raw) < 1e-12 {
			continue
		}
		delta := raw * m.changePrior / (m.changePrior + math.Abs(raw))
		f.changeAt = append(f.changeAt, cp)
		f.deltas = append(f.deltas, delta)
	}

	// Detrended residual for the seasonal fits.
	detrended := make([]float64, n)
	for i := range units {
		detrended[i] = units[i] - f.trendAt(float64(i))
	}

	// Weekly seasonality: Fourier regression on the day-of-week cycle.
	weekFracs := make([]float64, n)
	for i, p := range history {
		weekFracs[i] = float64(p.Date.Weekday()) / 7.0
	}
	if beta := ridgeFourier(weekFracs, detrended, m.weeklyOrder, m.ridgeLambda); beta != nil {
		for dow := 0; dow < 7; dow++ {
			frac := float64(dow) / 7.0
			v := 0.0
			for k := 0; k < m.weeklyOrder; k++ {
				angle := 2 * math.Pi * float64(k+1) * frac
				v += beta[2*k]*math.Sin(angle) + beta[2*k+1]*math.Cos(angle)
			}
			f.weekly[dow] = v
		}
	}
	for i, p := range history {
		detrended[i] -= f.weekly[int(p.Date.Weekday())]
	}

	// Yearly seasonality only once a full cycle has been observed.
	if n >= 365 {
		yearFracs := make([]float64, n)
		for i, p := range history {
			yearFracs[i] = float64(p.Date.YearDay()) / 365.25
		}
		if beta := ridgeFourier(yearFracs, detrended, m.yearlyOrder, m.ridgeLambda); beta != nil {
			f.yearlyBeta = beta
			f.yearlyOn = true
			for i, p := range history {
				detrended[i] -= f.yearlyAt(p.Date)
			}
		}
	}

	// Event effects: mean residual inside the window vs outside, shrunk
	// toward zero by the holiday prior.
	for _, ev := range m.events {
		var in, out []float64
		for i, p := range history {
			if ev.Contains(p.Date) {
				in = append(in, detrended[i])
			} else {
				out = append(out, detrended[i])
			}
		}
		if len(in) < 3 || len(out) < 3 {
			continue
		}
		diff := mean(in) - mean(out)
		scale := m.holidayPrior
		if scale < 1 {
			scale = 1
		}
		f.events = append(f.events, eventEffect{window: ev, effect: diff * (1 - 1/scale)})
	}

	// Residual spread and confidence.
	f.sigma = stdDev(detrended, mean(detrended))
	totalVar := stdDev(units, mean(units))
	explained := 0.0
	if totalVar > 1e-9 {
		explained = 1 - f.sigma/totalVar
	}
	volume := math.Min(float64(n)/90.0, 1.0)
	f.confidence = clamp01(0.5*volume + 0.5*clamp01(explained))

	if math.IsNaN(f.slope) || math.IsInf(f.slope, 0) {
		return nil
	}
	return f
}

func (m *Prophet) predictionAt(history []SalesDataPoint, f *prophetFit, h int) Prediction {
	date := NextDate(history, h)
	t := float64(f.n - 1 + h)
	trend, weekly, yearly, event := f.componentsAt(date, t)
	value := clampNonNeg(trend + weekly + yearly + event)

	return Prediction{
		Model:      m.Name(),
		Date:       date,
		Forecast:   value,
		Confidence: f.confidence,
		UpperBound: clampNonNeg(value + 1.96*f.sigma),
		LowerBound: clampNonNeg(value - 1.96*f.sigma),
		Factors: Factors{
			Base:        trend,
			Trend:       f.slope,
			Seasonality: weekly + yearly + event,
		},
	}
}

// Forecast implements Model.
func (m *Prophet) Forecast(history []SalesDataPoint, horizonDays int) Prediction {
	if horizonDays < 1 {
		horizonDays = 1
	}
	if len(history) < m.minHistory {
		return fallbackPrediction(m.Name(), history, horizonDays, m.fallbackCap)
	}
	f := m.fit(history)
	if f == nil {
		return fallbackPrediction(m.Name(), history, horizonDays, m.fallbackCap)
	}
	return m.predictionAt(history, f, horizonDays)
}

// ForecastDaily implements Model.
func (m *Prophet) ForecastDaily(history []SalesDataPoint, horizonDays int) []Prediction {
	if horizonDays < 1 {
		horizonDays = 1
	}
	if len(history) < m.minHistory {
		return fallbackDaily(m.Name(), history, horizonDays, m.fallbackCap)
	}
	f := m.fit(history)
	if f == nil {
		return fallbackDaily(m.Name(), history, horizonDays, m.fallbackCap)
	}
	out := make([]Prediction, 0, horizonDays)
	for h := 1; h <= horizonDays; h++ {
		out = append(out, m.predictionAt(history, f, h))
	}
	return out
}
