// Package spike flags short-term demand velocity deviations, infers the
// probable cause and projects how the deviation decays back to baseline.
// The decay projection feeds a multiplicative adjustment into the ensemble
// for forecast dates inside the decay horizon.
package spike

import (
	"math"
	"time"

	"demandcast/config"
	"demandcast/forecast"
)

// Probable causes, checked as a first-match cascade.
const (
	CauseAdSpend       = "ad_spend_increase"
	CauseActiveDeal    = "active_deal"
	CauseListingChange = "listing_change"
	CauseOrganic       = "organic"
)

// Signals carries the external evidence the cause cascade inspects.
type Signals struct {
	AdSpendChangePct float64    // percent change in ad spend vs prior period
	HasActiveDeal    bool       // a promotion is currently running
	ListingChangedAt *time.Time // last listing content change, if any
}

// DecayPoint is one sampled point of the projected decay curve.
type DecayPoint struct {
	DaysFromNow int     `json:"days_from_now"`
	Multiplier  float64 `json:"multiplier"`
}

// Detection is the result of a spike scan for one SKU.
type Detection struct {
	SKU                  string       `json:"sku"`
	IsSpiking            bool         `json:"is_spiking"`
	Multiplier           float64      `json:"multiplier"`
	BaselineVelocity     float64      `json:"baseline_velocity"`
	CurrentVelocity      float64      `json:"current_velocity"`
	StartDate            *time.Time   `json:"start_date,omitempty"`
	Cause                string       `json:"cause,omitempty"`
	CauseConfidence      float64      `json:"cause_confidence,omitempty"`
	DecayCurve           []DecayPoint `json:"decay_curve,omitempty"`
	InventoryImpactUnits float64      `json:"inventory_impact_units"`
	Urgency              string       `json:"urgency,omitempty"`
	DecayRate            float64      `json:"decay_rate,omitempty"`
}

// MultiplierAt projects the spike multiplier daysFromNow days ahead. The
// curve relaxes exponentially toward 1.0 and never dips below it.
func (d *Detection) MultiplierAt(daysFromNow int) float64 {
	if !d.IsSpiking || d.Multiplier <= 1 {
		return 1.0
	}
	if daysFromNow < 0 {
		daysFromNow = 0
	}
	m := 1.0 + (d.Multiplier-1.0)*math.Exp(-d.DecayRate*float64(daysFromNow))
	if m < 1.0 {
		return 1.0
	}
	return m
}

// Detector scans sales histories for velocity spikes.
type Detector struct {
	cfg config.SpikeConfig
}

// NewDetector creates a spike detector.
func NewDetector(cfg config.SpikeConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Detect compares recent velocity against the trailing baseline window and,
// when a spike is found, locates its start, infers a cause and projects decay.
func (d *Detector) Detect(sku string, history []forecast.SalesDataPoint, signals Signals) Detection {
	det := Detection{SKU: sku, Multiplier: 1.0}

	n := len(history)
	if n < d.cfg.BaselineStartDay {
		return det
	}

	baseline := windowMean(history, n-d.cfg.BaselineStartDay, n-d.cfg.BaselineEndDay)
	current := windowMean(history, n-d.cfg.RecentDays, n)
	det.BaselineVelocity = baseline
	det.CurrentVelocity = current

	if baseline <= 0 {
		return det
	}

	ratio := current / baseline
	threshold := 1.0 + d.cfg.ThresholdPct/100.0
	if ratio < threshold {
		return det
	}

	det.IsSpiking = true
	det.Multiplier = ratio
	det.DecayRate = 3.0 / float64(d.cfg.DecayHorizonDays)

	// Walk backward in 3-day windows until the elevated ratio fades; the
	// first day of the last qualifying window is the spike start.
	startIdx := n - d.cfg.RecentDays
	for end := n; end-3 >= 0; end -= 3 {
		windowRatio := windowMean(history, end-3, end) / baseline
		if windowRatio < threshold {
			break
		}
		startIdx = end - 3
	}
	if startIdx >= 0 && startIdx < n {
		start := history[startIdx].Date
		det.StartDate = &start
	}

	det.Cause, det.CauseConfidence = d.inferCause(signals)
	det.DecayCurve = d.projectDecay(&det)
	det.InventoryImpactUnits = d.inventoryImpact(&det)
	det.Urgency = spikeUrgency(ratio)
	return det
}

// inferCause is a first-match cascade over the available evidence.
func (d *Detector) inferCause(signals Signals) (string, float64) {
	if signals.AdSpendChangePct > d.cfg.AdSpendJumpPct {
		return CauseAdSpend, 0.8
	}
	if signals.HasActiveDeal {
		return CauseActiveDeal, 0.75
	}
	if signals.ListingChangedAt != nil && time.Since(*signals.ListingChangedAt) < 14*24*time.Hour {
		return CauseListingChange, 0.6
	}
	return CauseOrganic, 0.5
}

// projectDecay samples the decay curve weekly across the horizon.
func (d *Detector) projectDecay(det *Detection) []DecayPoint {
	var curve []DecayPoint
	for day := 0; day <= d.cfg.DecayHorizonDays; day += 7 {
		curve = append(curve, DecayPoint{DaysFromNow: day, Multiplier: det.MultiplierAt(day)})
	}
	return curve
}

// inventoryImpact estimates extra units demanded over the decay horizon.
func (d *Detector) inventoryImpact(det *Detection) float64 {
	extra := 0.0
	for day := 0; day < d.cfg.DecayHorizonDays; day++ {
		extra += (det.MultiplierAt(day) - 1.0) * det.BaselineVelocity
	}
	return math.Round(extra)
}

func spikeUrgency(ratio float64) string {
	switch {
	case ratio >= 2.0:
		return "high"
	case ratio >= 1.5:
		return "medium"
	default:
		return "low"
	}
}

// windowMean averages units over history[start:end), clamping indices.
func windowMean(history []forecast.SalesDataPoint, start, end int) float64 {
	if start < 0 {
		start = 0
	}
	if end > len(history) {
		end = len(history)
	}
	if start >= end {
		return 0
	}
	sum := 0.0
	for _, p := range history[start:end] {
		sum += p.Units
	}
	return sum / float64(end-start)
}
