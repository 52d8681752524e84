// Package anomaly scans per-SKU inventory and forecast state for failures
// (stockouts, overstock, storage fee spikes, repeated forecast misses),
// attributes root causes from a weighted factor table and emits parameter
// adjustment proposals. Proposals are never applied here; the Applier is a
// separate, explicit step.
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"demandcast/config"
	"demandcast/ensemble"
	"demandcast/forecast"
)

// Anomaly event types.
const (
	TypeStockout        = "stockout"
	TypeOverstock       = "overstock"
	TypeStorageFeeSpike = "storage_fee_spike"
	TypeForecastMiss    = "forecast_miss"
)

// Contributing factor names.
const (
	FactorSupplierDelay   = "supplier_delay"
	FactorUndetectedSpike = "undetected_spike"
	FactorForecastBias    = "forecast_bias"
	FactorOverForecast    = "systematic_over_forecast"
	FactorVelocityDecline = "velocity_decline"
	FactorFeeIncrease     = "fee_increase"
	FactorModelDrift      = "model_drift"
	FactorUnknown         = "unknown"
)

// Adjustable parameter keys understood by the Applier.
const (
	ParamSafetyStockFloorDays = "decision.safety_stock_floor_days"
	ParamSpikeThresholdPct    = "spike.threshold_pct"
	ParamBiasCorrection       = "decision.bias_correction"
	ParamForceReoptimize      = "optimizer.force_reoptimize"
)

// ParameterAdjustment is a proposed numeric configuration change.
type ParameterAdjustment struct {
	Parameter string  `json:"parameter"`
	OldValue  float64 `json:"old_value"`
	NewValue  float64 `json:"new_value"`
	Reason    string  `json:"reason"`
}

// Factor is one weighted contributing cause with its evidence.
type Factor struct {
	Name         string               `json:"name"`
	Contribution float64              `json:"contribution"`
	Evidence     string               `json:"evidence"`
	Adjustment   *ParameterAdjustment `json:"adjustment,omitempty"`
}

// Event is a detected inventory or forecast failure.
type Event struct {
	SKU             string                `json:"sku"`
	Type            string                `json:"type"`
	DetectedAt      time.Time             `json:"detected_at"`
	RootCause       string                `json:"root_cause"`
	Factors         []Factor              `json:"factors"`
	Adjustments     []ParameterAdjustment `json:"adjustments"`
	UnitImpact      float64               `json:"unit_impact"`
	FinancialImpact float64               `json:"financial_impact"`
	Resolved        bool                  `json:"resolved"`
	ResolvedAt      *time.Time            `json:"resolved_at,omitempty"`
}

// AccuracyRecord is one day's forecast vs. realized demand.
type AccuracyRecord struct {
	Date     time.Time `json:"date"`
	Forecast float64   `json:"forecast"`
	Actual   float64   `json:"actual"`
}

// StorageFee is one month's storage cost for a SKU.
type StorageFee struct {
	Month  time.Time `json:"month"`
	Amount float64   `json:"amount"`
}

// SKUState is everything the scanner inspects for one SKU.
type SKUState struct {
	SKU             string
	History         []forecast.SalesDataPoint
	AvailableUnits  float64
	UnitPrice       float64
	LeadTimeDays    int
	LastPODelayDays int  // days late the most recent purchase order arrived
	SpikeFlagged    bool // whether the spike detector already caught the surge
	Accuracy        []AccuracyRecord
	StorageFees     []StorageFee // ascending by month
}

// Scanner detects anomalies against the configured thresholds.
type Scanner struct {
	cfg *config.Config
}

// NewScanner creates a scanner reading thresholds and current parameter
// values from cfg.
func NewScanner(cfg *config.Config) *Scanner {
	return &Scanner{cfg: cfg}
}

// Scan runs every check against one SKU's state.
func (s *Scanner) Scan(state SKUState) []*Event {
	var events []*Event
	if ev := s.checkStockout(state); ev != nil {
		events = append(events, ev)
	}
	if ev := s.checkOverstock(state); ev != nil {
		events = append(events, ev)
	}
	if ev := s.checkStorageFees(state); ev != nil {
		events = append(events, ev)
	}
	if ev := s.checkForecastMiss(state); ev != nil {
		events = append(events, ev)
	}
	return events
}

// checkStockout flags zero available stock against nonzero trailing demand
// and ranks the contributing causes.
func (s *Scanner) checkStockout(state SKUState) *Event {
	if state.AvailableUnits > 0 {
		return nil
	}
	velocity := ensemble.TrailingVelocity(state.History, 30)
	if velocity <= 0 {
		return nil
	}

	acfg := s.cfg.Anomaly
	var factors []Factor

	if state.LastPODelayDays > acfg.SupplierDelayDays {
		floor := float64(s.cfg.Decision.SafetyStockFloorDays)
		factors = append(factors, Factor{
			Name:         FactorSupplierDelay,
			Contribution: acfg.WeightSupplierDelay,
			Evidence:     fmt.Sprintf("last purchase order arrived %d days late", state.LastPODelayDays),
			Adjustment: &ParameterAdjustment{
				Parameter: ParamSafetyStockFloorDays,
				OldValue:  floor,
				NewValue:  floor + 3,
				Reason:    "supplier delays caused stockouts, raise the safety stock floor",
			},
		})
	}

	v7 := ensemble.TrailingVelocity(state.History, 7)
	spikeRatio := 1 + s.cfg.Spike.ThresholdPct/100
	if !state.SpikeFlagged && velocity > 0 && v7/velocity >= spikeRatio {
		thr := s.cfg.Spike.ThresholdPct
		newThr := thr - 10
		if newThr < 20 {
			newThr = 20
		}
		factors = append(factors, Factor{
			Name:         FactorUndetectedSpike,
			Contribution: acfg.WeightUndetectedSpike,
			Evidence:     fmt.Sprintf("7-day velocity %.1f is %.0f%% of the 30-day rate with no spike flagged", v7, v7/velocity*100),
			Adjustment: &ParameterAdjustment{
				Parameter: ParamSpikeThresholdPct,
				OldValue:  thr,
				NewValue:  newThr,
				Reason:    "a demand surge went undetected, lower the spike threshold",
			},
		})
	}

	if bias := underForecastBias(state.Accuracy, acfg.ForecastMissMinRecords); bias > 20 {
		correction := 1 + bias/100
		if correction > 1.5 {
			correction = 1.5
		}
		factors = append(factors, Factor{
			Name:         FactorForecastBias,
			Contribution: acfg.WeightForecastBias,
			Evidence:     fmt.Sprintf("forecasts ran %.0f%% below realized demand", bias),
			Adjustment: &ParameterAdjustment{
				Parameter: ParamBiasCorrection,
				OldValue:  s.cfg.Decision.BiasCorrection,
				NewValue:  correction,
				Reason:    "systematic under-forecast, apply a multiplicative bias correction",
			},
		})
	}

	if len(factors) == 0 {
		factors = append(factors, Factor{
			Name:         FactorUnknown,
			Contribution: 0.1,
			Evidence:     "no qualifying factor met its evidence threshold",
		})
	}

	leadTime := state.LeadTimeDays
	if leadTime < 1 {
		leadTime = 14
	}
	unitImpact := velocity * float64(leadTime)

	return s.buildEvent(state, TypeStockout, factors, unitImpact)
}

// checkOverstock flags excessive days of supply.
func (s *Scanner) checkOverstock(state SKUState) *Event {
	velocity := ensemble.TrailingVelocity(state.History, 30)
	if velocity <= 0 {
		return nil
	}
	daysOfSupply := state.AvailableUnits / velocity
	if daysOfSupply <= s.cfg.Anomaly.OverstockDaysOfSupply {
		return nil
	}

	acfg := s.cfg.Anomaly
	var factors []Factor

	if bias := overForecastBias(state.Accuracy, acfg.ForecastMissMinRecords); bias > 20 {
		correction := 1 - bias/100
		if correction < 0.5 {
			correction = 0.5
		}
		factors = append(factors, Factor{
			Name:         FactorOverForecast,
			Contribution: acfg.WeightSupplierDelay,
			Evidence:     fmt.Sprintf("forecasts ran %.0f%% above realized demand", bias),
			Adjustment: &ParameterAdjustment{
				Parameter: ParamBiasCorrection,
				OldValue:  s.cfg.Decision.BiasCorrection,
				NewValue:  correction,
				Reason:    "systematic over-forecast, apply a multiplicative bias correction",
			},
		})
	}

	v7 := ensemble.TrailingVelocity(state.History, 7)
	if decline := (velocity - v7) / velocity * 100; decline >= acfg.VelocityDeclinePct {
		factors = append(factors, Factor{
			Name:         FactorVelocityDecline,
			Contribution: acfg.WeightUndetectedSpike,
			Evidence:     fmt.Sprintf("7-day velocity fell %.0f%% below the 30-day rate", decline),
			Adjustment: &ParameterAdjustment{
				Parameter: ParamForceReoptimize,
				OldValue:  0,
				NewValue:  1,
				Reason:    "demand shifted down, retune model weights on recent history",
			},
		})
	}

	if len(factors) == 0 {
		factors = append(factors, Factor{
			Name:         FactorUnknown,
			Contribution: 0.1,
			Evidence:     "no qualifying factor met its evidence threshold",
		})
	}

	excess := state.AvailableUnits - velocity*float64(s.cfg.Decision.TargetCoverageDays)
	if excess < 0 {
		excess = 0
	}
	return s.buildEvent(state, TypeOverstock, factors, excess)
}

// checkStorageFees flags a month-over-month storage fee jump.
func (s *Scanner) checkStorageFees(state SKUState) *Event {
	n := len(state.StorageFees)
	if n < 2 {
		return nil
	}
	prev, last := state.StorageFees[n-2].Amount, state.StorageFees[n-1].Amount
	if prev <= 0 || last <= prev*(1+s.cfg.Anomaly.StorageFeeSpikeIncrease) {
		return nil
	}

	factors := []Factor{{
		Name:         FactorFeeIncrease,
		Contribution: 0.5,
		Evidence:     fmt.Sprintf("storage fee rose from %.2f to %.2f month over month", prev, last),
	}}
	ev := s.buildEvent(state, TypeStorageFeeSpike, factors, 0)
	ev.FinancialImpact = last - prev
	return ev
}

// checkForecastMiss flags repeated large daily errors for the same SKU and
// routes a re-optimization request to the weight tuner.
func (s *Scanner) checkForecastMiss(state SKUState) *Event {
	acfg := s.cfg.Anomaly
	misses := 0
	totalErr := 0.0
	for _, rec := range state.Accuracy {
		base := math.Max(rec.Actual, 1)
		errPct := math.Abs(rec.Forecast-rec.Actual) / base * 100
		if errPct > acfg.ForecastMissErrorPct {
			misses++
			totalErr += math.Abs(rec.Forecast - rec.Actual)
		}
	}
	if misses < acfg.ForecastMissMinRecords {
		return nil
	}

	factors := []Factor{{
		Name:         FactorModelDrift,
		Contribution: 0.5,
		Evidence:     fmt.Sprintf("%d recent days with >%.0f%% forecast error", misses, acfg.ForecastMissErrorPct),
		Adjustment: &ParameterAdjustment{
			Parameter: ParamForceReoptimize,
			OldValue:  0,
			NewValue:  1,
			Reason:    "repeated forecast misses, retune model weights",
		},
	}}
	return s.buildEvent(state, TypeForecastMiss, factors, totalErr)
}

// buildEvent sorts factors by contribution, picks the primary cause and
// collects the proposed adjustments.
func (s *Scanner) buildEvent(state SKUState, eventType string, factors []Factor, unitImpact float64) *Event {
	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Contribution > factors[j].Contribution
	})

	var adjustments []ParameterAdjustment
	for _, f := range factors {
		if f.Adjustment != nil {
			adjustments = append(adjustments, *f.Adjustment)
		}
	}

	return &Event{
		SKU:             state.SKU,
		Type:            eventType,
		DetectedAt:      time.Now().UTC(),
		RootCause:       factors[0].Name,
		Factors:         factors,
		Adjustments:     adjustments,
		UnitImpact:      unitImpact,
		FinancialImpact: unitImpact * state.UnitPrice,
	}
}

// underForecastBias returns the mean percent by which actuals exceeded
// forecasts, or 0 when too few records exist.
func underForecastBias(records []AccuracyRecord, minRecords int) float64 {
	return meanBias(records, minRecords, func(rec AccuracyRecord) float64 {
		return rec.Actual - rec.Forecast
	})
}

// overForecastBias mirrors underForecastBias for the opposite direction.
func overForecastBias(records []AccuracyRecord, minRecords int) float64 {
	return meanBias(records, minRecords, func(rec AccuracyRecord) float64 {
		return rec.Forecast - rec.Actual
	})
}

func meanBias(records []AccuracyRecord, minRecords int, diff func(AccuracyRecord) float64) float64 {
	if len(records) < minRecords {
		return 0
	}
	sum := 0.0
	for _, rec := range records {
		sum += diff(rec) / math.Max(rec.Actual, 1) * 100
	}
	return sum / float64(len(records))
}
