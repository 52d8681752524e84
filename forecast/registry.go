package forecast

import "demandcast/config"

// NewModels constructs the four ensemble members in canonical order.
// Adding or removing a model is a change local to this function and the
// ModelNames list.
func NewModels(cfg config.ForecastConfig) []Model {
	return []Model{
		NewExponentialSmoothing(cfg),
		NewProphet(cfg),
		NewPatternMatch(cfg),
		NewArima(cfg),
	}
}
