package ensemble

import (
	"time"

	"demandcast/forecast"
)

// SeasonalEvent is a recurring demand-shifting calendar window. Multiplier
// precedence: per-SKU override > learned > base.
type SeasonalEvent struct {
	Name              string               `json:"name"`
	Window            forecast.EventWindow `json:"window"`
	BaseMultiplier    float64              `json:"base_multiplier"`
	LearnedMultiplier *float64             `json:"learned_multiplier,omitempty"`
	SKUMultipliers    map[string]float64   `json:"sku_multipliers,omitempty"`
	IsActive          bool                 `json:"is_active"`
}

// MultiplierFor resolves the event's multiplier for a SKU, clamped to >= 0.
func (e SeasonalEvent) MultiplierFor(sku string) float64 {
	m := e.BaseMultiplier
	if e.LearnedMultiplier != nil {
		m = *e.LearnedMultiplier
	}
	if override, ok := e.SKUMultipliers[sku]; ok {
		m = override
	}
	if m < 0 {
		return 0
	}
	return m
}

// Deal is an active promotion window with its expected demand lift.
type Deal struct {
	Name       string    `json:"name"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Multiplier float64   `json:"multiplier"`
}

// seasonalityMultiplier returns the product of active event multipliers for
// the date, plus the names of the events that applied.
func seasonalityMultiplier(events []SeasonalEvent, sku string, date time.Time) (float64, []string) {
	multiplier := 1.0
	var applied []string
	for _, e := range events {
		if !e.IsActive || !e.Window.Contains(date) {
			continue
		}
		multiplier *= e.MultiplierFor(sku)
		applied = append(applied, e.Name)
	}
	if multiplier < 0 {
		multiplier = 0
	}
	return multiplier, applied
}

// dealMultiplier returns the product of active promotion lifts for the date,
// 1.0 when no promotion is running.
func dealMultiplier(deals []Deal, date time.Time) (float64, []string) {
	multiplier := 1.0
	var applied []string
	for _, d := range deals {
		if date.Before(d.Start) || date.After(d.End) {
			continue
		}
		m := d.Multiplier
		if m < 0 {
			m = 0
		}
		multiplier *= m
		applied = append(applied, d.Name)
	}
	return multiplier, applied
}
