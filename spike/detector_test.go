package spike

import (
	"testing"
	"time"

	"demandcast/config"
	"demandcast/forecast"
)

func testConfig() config.SpikeConfig {
	return config.SpikeConfig{
		ThresholdPct:     50.0,
		BaselineStartDay: 37,
		BaselineEndDay:   7,
		RecentDays:       7,
		DecayHorizonDays: 60,
		AdSpendJumpPct:   50.0,
	}
}

// history with baseline units/day, except the last recentDays at recent units/day.
func spikeHistory(days int, baseline, recent float64, recentDays int) []forecast.SalesDataPoint {
	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	out := make([]forecast.SalesDataPoint, days)
	for i := 0; i < days; i++ {
		units := baseline
		if i >= days-recentDays {
			units = recent
		}
		out[i] = forecast.SalesDataPoint{Date: end.AddDate(0, 0, i-days), Units: units}
	}
	return out
}

func TestDetectVelocitySpike(t *testing.T) {
	det := NewDetector(testConfig())

	// 7-day velocity 18 against a 30-day baseline of 10.
	history := spikeHistory(60, 10, 18, 7)
	result := det.Detect("SKU-1", history, Signals{})

	if !result.IsSpiking {
		t.Fatal("expected spike for 1.8x velocity ratio")
	}
	if result.Multiplier < 1.75 || result.Multiplier > 1.85 {
		t.Errorf("multiplier = %f, want ~1.8", result.Multiplier)
	}
	if result.StartDate == nil {
		t.Error("expected a spike start date")
	}
	if result.InventoryImpactUnits <= 0 {
		t.Errorf("inventory impact = %f, want > 0", result.InventoryImpactUnits)
	}
}

func TestNoSpikeBelowThreshold(t *testing.T) {
	det := NewDetector(testConfig())

	history := spikeHistory(60, 10, 13, 7) // 1.3x, below the 1.5x threshold
	result := det.Detect("SKU-1", history, Signals{})

	if result.IsSpiking {
		t.Errorf("1.3x ratio flagged as spike")
	}
	if result.MultiplierAt(0) != 1.0 {
		t.Errorf("non-spiking multiplier = %f, want 1.0", result.MultiplierAt(0))
	}
}

func TestNoSpikeOnDeadBaseline(t *testing.T) {
	det := NewDetector(testConfig())

	history := spikeHistory(60, 0, 5, 7)
	result := det.Detect("SKU-1", history, Signals{})
	if result.IsSpiking {
		t.Error("zero baseline must not divide into a spike")
	}
}

func TestDecayMonotonicTowardOne(t *testing.T) {
	det := NewDetector(testConfig())
	history := spikeHistory(60, 10, 25, 7)
	result := det.Detect("SKU-1", history, Signals{})
	if !result.IsSpiking {
		t.Fatal("expected spike")
	}

	prev := result.MultiplierAt(0)
	for day := 1; day <= 120; day++ {
		m := result.MultiplierAt(day)
		if m > prev {
			t.Fatalf("decay increased at day %d: %f > %f", day, m, prev)
		}
		if m < 1.0 {
			t.Fatalf("decay dipped below 1.0 at day %d: %f", day, m)
		}
		prev = m
	}
	if final := result.MultiplierAt(120); final > 1.1 {
		t.Errorf("multiplier %f still elevated well past the horizon", final)
	}
}

func TestCauseCascade(t *testing.T) {
	det := NewDetector(testConfig())
	recentChange := time.Now().Add(-48 * time.Hour)
	staleChange := time.Now().Add(-90 * 24 * time.Hour)

	tests := []struct {
		name     string
		signals  Signals
		expected string
	}{
		{"ad spend wins first", Signals{AdSpendChangePct: 80, HasActiveDeal: true}, CauseAdSpend},
		{"deal before listing", Signals{HasActiveDeal: true, ListingChangedAt: &recentChange}, CauseActiveDeal},
		{"recent listing change", Signals{ListingChangedAt: &recentChange}, CauseListingChange},
		{"stale listing change is organic", Signals{ListingChangedAt: &staleChange}, CauseOrganic},
		{"no evidence is organic", Signals{}, CauseOrganic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cause, confidence := det.inferCause(tt.signals)
			if cause != tt.expected {
				t.Errorf("cause = %s, want %s", cause, tt.expected)
			}
			if confidence <= 0 || confidence > 1 {
				t.Errorf("confidence %f outside (0,1]", confidence)
			}
		})
	}
}

func TestDecayCurveSampledWeekly(t *testing.T) {
	det := NewDetector(testConfig())
	history := spikeHistory(60, 10, 20, 7)
	result := det.Detect("SKU-1", history, Signals{})
	if !result.IsSpiking {
		t.Fatal("expected spike")
	}
	if len(result.DecayCurve) == 0 {
		t.Fatal("expected decay curve samples")
	}
	for i, pt := range result.DecayCurve {
		if pt.DaysFromNow != i*7 {
			t.Errorf("sample %d at day %d, want %d", i, pt.DaysFromNow, i*7)
		}
	}
}
