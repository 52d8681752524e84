package decision

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demandcast/config"
	"demandcast/forecast"
)

func testDecisionConfig() config.DecisionConfig {
	return config.DecisionConfig{
		SafetyStockFloorDays:  7,
		TargetCoverageDays:    180,
		FBACoverageDays:       45,
		FBABufferDays:         10,
		LeadTimeBufferDays:    14,
		BestSellerVelocity:    10.0,
		ZBestSeller:           2.33,
		ZRegular:              1.65,
		ZSlowMover:            1.28,
		VelocityBlendShort:    0.6,
		VelocityDivergencePct: 50.0,
	}
}

func constantHistory(days int, units float64) []forecast.SalesDataPoint {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)
	history := make([]forecast.SalesDataPoint, days)
	for i := range history {
		history[i] = forecast.SalesDataPoint{
			Date:    start.AddDate(0, 0, i),
			Units:   units,
			Revenue: units * 19.99,
		}
	}
	return history
}

func TestRecommendOrderQuantityCoversTarget(t *testing.T) {
	planner := NewPlanner(testDecisionConfig())
	history := constantHistory(120, 10)

	inv := InventoryState{FBAAvailable: 180}
	sup := SupplierInfo{LeadTimeDays: 14, MOQ: 100}

	rec := planner.Recommend("SKU-001", history, nil, inv, sup)
	require.NotNil(t, rec)

	// 10 units/day over a 180-day target minus 180 units already held.
	assert.Equal(t, 1620, rec.OrderQty)
	assert.InDelta(t, 10.0, rec.EffectiveVelocity, 0.01)
	assert.InDelta(t, 18.0, rec.DaysOfSupply, 0.1)

	// 18 days of cover against a 14-day lead time plus buffer.
	assert.Equal(t, UrgencyCritical, rec.Urgency)
	require.NotNil(t, rec.StockoutDate)
	assert.NotEmpty(t, rec.Reasoning)
}

func TestRecommendAmpleStockIsOK(t *testing.T) {
	planner := NewPlanner(testDecisionConfig())
	history := constantHistory(120, 10)

	inv := InventoryState{FBAAvailable: 900, WarehouseAvailable: 1000, OnOrder: 500}
	sup := SupplierInfo{LeadTimeDays: 14}

	rec := planner.Recommend("SKU-002", history, nil, inv, sup)
	require.NotNil(t, rec)

	// 2400 units at 10/day is 240 days of supply.
	assert.Equal(t, UrgencyOK, rec.Urgency)
	assert.Equal(t, 0, rec.OrderQty)
}

func TestRecommendMOQFloor(t *testing.T) {
	planner := NewPlanner(testDecisionConfig())
	history := constantHistory(90, 10)

	// Just under the target so the raw gap is below the MOQ.
	inv := InventoryState{WarehouseAvailable: 1750}
	sup := SupplierInfo{LeadTimeDays: 14, MOQ: 250}

	rec := planner.Recommend("SKU-003", history, nil, inv, sup)
	require.NotNil(t, rec)
	assert.Equal(t, 250, rec.OrderQty)
}

func TestEffectiveVelocityBlendsOnDivergence(t *testing.T) {
	planner := NewPlanner(testDecisionConfig())

	// 10/day baseline with the last 7 days at 30/day: divergence well past
	// the 50% trigger, so the 7-day rate gets 60% of the blend.
	history := constantHistory(120, 10)
	for i := len(history) - 7; i < len(history); i++ {
		history[i].Units = 30
	}

	v := planner.EffectiveVelocity(history)

	v7 := 30.0
	v30 := (23*10.0 + 7*30.0) / 30
	want := 0.6*v7 + 0.4*v30
	assert.InDelta(t, want, v, 0.01)
}

func TestEffectiveVelocityStableUsesLongWindow(t *testing.T) {
	planner := NewPlanner(testDecisionConfig())
	history := constantHistory(120, 10)
	// Mild wobble on the last week, under the divergence trigger.
	for i := len(history) - 7; i < len(history); i++ {
		history[i].Units = 12
	}

	v := planner.EffectiveVelocity(history)
	v30 := (23*10.0 + 7*12.0) / 30
	assert.InDelta(t, v30, v, 0.01)
}

func TestRecommendFBAReplenishment(t *testing.T) {
	planner := NewPlanner(testDecisionConfig())
	history := constantHistory(120, 10)

	tests := []struct {
		name      string
		inv       InventoryState
		wantedFBA int
	}{
		{
			name:      "warehouse covers the gap",
			inv:       InventoryState{FBAAvailable: 100, FBAInbound: 50, WarehouseAvailable: 2000},
			wantedFBA: 400, // 10/day * (45+10) - 150
		},
		{
			name:      "capped by warehouse stock",
			inv:       InventoryState{FBAAvailable: 100, WarehouseAvailable: 120},
			wantedFBA: 120,
		},
		{
			name:      "fba already covered",
			inv:       InventoryState{FBAAvailable: 600, WarehouseAvailable: 2000},
			wantedFBA: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := planner.Recommend("SKU-004", history, nil, tt.inv, SupplierInfo{LeadTimeDays: 14})
			require.NotNil(t, rec)
			assert.Equal(t, tt.wantedFBA, rec.FBAQty)
		})
	}
}

func TestRecommendZeroVelocity(t *testing.T) {
	planner := NewPlanner(testDecisionConfig())
	history := constantHistory(60, 0)

	rec := planner.Recommend("SKU-005", history, nil, InventoryState{FBAAvailable: 50}, SupplierInfo{LeadTimeDays: 14})
	require.NotNil(t, rec)

	assert.Equal(t, 0, rec.OrderQty)
	assert.True(t, math.IsInf(rec.DaysOfSupply, 1))
	assert.Nil(t, rec.StockoutDate)
	assert.Equal(t, UrgencyOK, rec.Urgency)
}

func TestUrgencyTiers(t *testing.T) {
	planner := NewPlanner(testDecisionConfig())
	history := constantHistory(120, 10)
	sup := SupplierInfo{LeadTimeDays: 14}

	tests := []struct {
		onHand float64
		want   string
	}{
		{100, UrgencyCritical}, // 10 days of supply
		{500, UrgencyHigh},     // 50 days, 22 remaining
		{800, UrgencyMedium},   // 80 days, 52 remaining
		{1100, UrgencyLow},     // 110 days, 82 remaining
		{1300, UrgencyOK},      // 130 days, 102 remaining
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("on_hand_%.0f", tt.onHand), func(t *testing.T) {
			rec := planner.Recommend("SKU-006", history, nil, InventoryState{FBAAvailable: tt.onHand}, sup)
			require.NotNil(t, rec)
			assert.Equal(t, tt.want, rec.Urgency)
		})
	}
}

func TestReorderPointCoversLeadTimeAndSafety(t *testing.T) {
	planner := NewPlanner(testDecisionConfig())
	history := constantHistory(120, 10)

	rec := planner.Recommend("SKU-007", history, nil, InventoryState{FBAAvailable: 500}, SupplierInfo{LeadTimeDays: 14})
	require.NotNil(t, rec)

	// Constant demand has zero sigma, so safety stock hits the 7-day floor.
	assert.Equal(t, 70, rec.SafetyStock)
	assert.Equal(t, 140+70, rec.ReorderPoint)
}
