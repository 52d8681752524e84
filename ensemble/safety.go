package ensemble

import (
	"math"

	"demandcast/config"
)

// ZScoreForVelocity returns the velocity-tiered service-level z multiplier:
// best-sellers get the tightest service level, slow movers the loosest.
func ZScoreForVelocity(velocity float64, cfg config.DecisionConfig) float64 {
	switch {
	case velocity > cfg.BestSellerVelocity:
		return cfg.ZBestSeller
	case velocity >= 1.0:
		return cfg.ZRegular
	default:
		return cfg.ZSlowMover
	}
}

// SafetyStock computes buffer inventory for one day of expected demand:
// the statistical requirement z·σ·√leadTime with a hard floor of
// floorDays × forecast, whichever is larger, rounded up.
func SafetyStock(dailyForecast, sigmaDemand float64, leadTimeDays int, z float64, floorDays int) float64 {
	if dailyForecast < 0 {
		dailyForecast = 0
	}
	if sigmaDemand < 0 {
		sigmaDemand = 0
	}
	if leadTimeDays < 1 {
		leadTimeDays = 1
	}
	statistical := z * sigmaDemand * math.Sqrt(float64(leadTimeDays))
	floor := dailyForecast * float64(floorDays)
	return math.Ceil(math.Max(statistical, floor))
}
