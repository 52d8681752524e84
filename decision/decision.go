// Package decision converts blended demand forecasts into inventory
// actions: reorder point, order quantity, FBA replenishment quantity,
// urgency tier and a projected stockout date.
package decision

import (
	"fmt"
	"math"
	"time"

	"demandcast/config"
	"demandcast/ensemble"
	"demandcast/forecast"
)

// Urgency tiers, ordered from most to least pressing.
const (
	UrgencyCritical = "critical"
	UrgencyHigh     = "high"
	UrgencyMedium   = "medium"
	UrgencyLow      = "low"
	UrgencyOK       = "ok"
)

// InventoryState is the current stock position for a SKU across locations.
type InventoryState struct {
	FBAAvailable       float64 `json:"fba_available"`
	FBAInbound         float64 `json:"fba_inbound"`
	WarehouseAvailable float64 `json:"warehouse_available"`
	OnOrder            float64 `json:"on_order"`
}

// Total returns all units in the pipeline.
func (s InventoryState) Total() float64 {
	return s.FBAAvailable + s.FBAInbound + s.WarehouseAvailable + s.OnOrder
}

// SupplierInfo carries the supplier terms the planner needs.
type SupplierInfo struct {
	LeadTimeDays int `json:"lead_time_days"`
	MOQ          int `json:"moq"`
}

// Recommendation is the planner's output for one SKU.
type Recommendation struct {
	SKU               string     `json:"sku"`
	ReorderPoint      int        `json:"reorder_point"`
	OrderQty          int        `json:"order_qty"`
	FBAQty            int        `json:"fba_qty"`
	SafetyStock       int        `json:"safety_stock"`
	EffectiveVelocity float64    `json:"effective_velocity"`
	DaysOfSupply      float64    `json:"days_of_supply"`
	StockoutDate      *time.Time `json:"stockout_date,omitempty"`
	Urgency           string     `json:"urgency"`
	Reasoning         []string   `json:"reasoning"`
}

// Planner derives reorder recommendations from forecasts and stock state.
type Planner struct {
	cfg config.DecisionConfig
}

// NewPlanner creates a planner with the given tunables.
func NewPlanner(cfg config.DecisionConfig) *Planner {
	return &Planner{cfg: cfg}
}

// EffectiveVelocity blends the 7-day and 30-day velocities only when they
// diverge enough to signal a real shift; otherwise the steadier 30-day
// figure wins so single-day noise does not move order quantities.
func (p *Planner) EffectiveVelocity(history []forecast.SalesDataPoint) float64 {
	v7 := ensemble.TrailingVelocity(history, 7)
	v30 := ensemble.TrailingVelocity(history, 30)
	if v30 <= 0 {
		return v7
	}
	divergence := math.Abs(v7-v30) / v30 * 100
	if divergence > p.cfg.VelocityDivergencePct {
		return p.cfg.VelocityBlendShort*v7 + (1-p.cfg.VelocityBlendShort)*v30
	}
	return v30
}

// Recommend produces the full reorder recommendation for one SKU.
func (p *Planner) Recommend(sku string, history []forecast.SalesDataPoint, forecasts []ensemble.Forecast, inv InventoryState, sup SupplierInfo) *Recommendation {
	velocity := p.EffectiveVelocity(history)

	// Expected daily demand from the forecast horizon; velocity covers the
	// degenerate no-forecast case.
	dailyDemand := velocity
	if len(forecasts) > 0 {
		window := len(forecasts)
		if window > 30 {
			window = 30
		}
		sum := 0.0
		for _, f := range forecasts[:window] {
			sum += f.FinalForecast
		}
		dailyDemand = sum / float64(window)
	}
	if dailyDemand < 0 {
		dailyDemand = 0
	}

	leadTime := sup.LeadTimeDays
	if leadTime < 1 {
		leadTime = 1
	}

	sigma := ensemble.TrailingSigma(history, 30)
	z := ensemble.ZScoreForVelocity(velocity, p.cfg)
	safety := ensemble.SafetyStock(dailyDemand, sigma, leadTime, z, p.cfg.SafetyStockFloorDays)

	leadTimeDemand := dailyDemand * float64(leadTime)
	reorderPoint := int(math.Ceil(leadTimeDemand + safety))

	// Order up to the coverage target, respecting the MOQ.
	target := velocity * float64(p.cfg.TargetCoverageDays)
	orderQty := int(math.Max(0, math.Ceil(target-inv.Total())))
	if sup.MOQ > 0 && orderQty > 0 && orderQty < sup.MOQ {
		orderQty = sup.MOQ
	}

	// FBA replenishment: cover the FBA horizon plus buffer, bounded by what
	// the warehouse can actually ship.
	fbaTarget := velocity * float64(p.cfg.FBACoverageDays+p.cfg.FBABufferDays)
	fbaQty := int(math.Max(0, math.Ceil(fbaTarget-(inv.FBAAvailable+inv.FBAInbound))))
	if float64(fbaQty) > inv.WarehouseAvailable {
		fbaQty = int(inv.WarehouseAvailable)
	}
	if fbaQty < 0 {
		fbaQty = 0
	}

	rec := &Recommendation{
		SKU:               sku,
		ReorderPoint:      reorderPoint,
		OrderQty:          orderQty,
		FBAQty:            fbaQty,
		SafetyStock:       int(safety),
		EffectiveVelocity: velocity,
	}

	if velocity > 0 {
		rec.DaysOfSupply = inv.Total() / velocity
		stockout := time.Now().AddDate(0, 0, int(rec.DaysOfSupply))
		rec.StockoutDate = &stockout
	} else {
		rec.DaysOfSupply = math.Inf(1)
	}

	rec.Urgency = p.urgency(rec.DaysOfSupply, leadTime)
	rec.Reasoning = p.buildReasoning(rec, dailyDemand, leadTimeDemand, inv, sup)
	return rec
}

// urgency tiers on the days of cover left once the lead time and the
// reaction buffer are spent.
func (p *Planner) urgency(daysOfSupply float64, leadTime int) string {
	if math.IsInf(daysOfSupply, 1) {
		return UrgencyOK
	}
	remaining := daysOfSupply - float64(leadTime+p.cfg.LeadTimeBufferDays)
	switch {
	case remaining <= 14:
		return UrgencyCritical
	case remaining <= 30:
		return UrgencyHigh
	case remaining <= 60:
		return UrgencyMedium
	case remaining <= 90:
		return UrgencyLow
	default:
		return UrgencyOK
	}
}

func (p *Planner) buildReasoning(rec *Recommendation, dailyDemand, leadTimeDemand float64, inv InventoryState, sup SupplierInfo) []string {
	reasoning := []string{
		fmt.Sprintf("Effective velocity %.2f units/day, expected demand %.2f units/day", rec.EffectiveVelocity, dailyDemand),
		fmt.Sprintf("Lead time %d days covers %.0f units; safety stock %d units", sup.LeadTimeDays, leadTimeDemand, rec.SafetyStock),
		fmt.Sprintf("Reorder point %d units against %.0f units in the pipeline", rec.ReorderPoint, inv.Total()),
	}
	if rec.OrderQty > 0 {
		reasoning = append(reasoning, fmt.Sprintf("Order %d units to reach %d days of coverage", rec.OrderQty, p.cfg.TargetCoverageDays))
	} else {
		reasoning = append(reasoning, "Coverage target already met, no purchase needed")
	}
	if rec.FBAQty > 0 {
		reasoning = append(reasoning, fmt.Sprintf("Ship %d units to FBA for %d days of forward coverage", rec.FBAQty, p.cfg.FBACoverageDays+p.cfg.FBABufferDays))
	}
	if rec.StockoutDate != nil {
		reasoning = append(reasoning, fmt.Sprintf("Projected stockout %s at current velocity", rec.StockoutDate.Format("2006-01-02")))
	}
	return reasoning
}
