package anomaly

import (
	"fmt"
	"log"
	"sync"

	"demandcast/config"
)

// Applier is the explicit apply step for proposed parameter adjustments.
// Detection never mutates configuration; an operator (or a trusted policy)
// hands accepted proposals to Apply. Applies are idempotent per parameter
// key: re-applying an adjustment whose value is already in effect is a
// logged no-op.
type Applier struct {
	mu          sync.Mutex
	cfg         *config.Config
	applied     map[string]float64
	reoptimizer func(sku string)
}

// NewApplier creates an applier mutating cfg in place.
func NewApplier(cfg *config.Config) *Applier {
	return &Applier{cfg: cfg, applied: make(map[string]float64)}
}

// OnReoptimize registers the hook invoked for force-reoptimize adjustments.
func (a *Applier) OnReoptimize(fn func(sku string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reoptimizer = fn
}

// Apply puts one adjustment into effect. It returns false when the
// adjustment was already applied.
func (a *Applier) Apply(sku string, adj ParameterAdjustment) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := adj.Parameter
	if adj.Parameter == ParamForceReoptimize {
		key = adj.Parameter + ":" + sku
	}
	if prev, ok := a.applied[key]; ok && prev == adj.NewValue {
		log.Printf("📊 Adjustment %s already applied, skipping", key)
		return false, nil
	}

	switch adj.Parameter {
	case ParamSafetyStockFloorDays:
		a.cfg.Decision.SafetyStockFloorDays = int(adj.NewValue)
	case ParamSpikeThresholdPct:
		a.cfg.Spike.ThresholdPct = adj.NewValue
	case ParamBiasCorrection:
		a.cfg.Decision.BiasCorrection = adj.NewValue
	case ParamForceReoptimize:
		if a.reoptimizer != nil {
			a.reoptimizer(sku)
		}
	default:
		return false, fmt.Errorf("Apply: unknown parameter %q", adj.Parameter)
	}

	a.applied[key] = adj.NewValue
	log.Printf("✅ Applied adjustment %s: %.2f -> %.2f (%s)", key, adj.OldValue, adj.NewValue, adj.Reason)
	return true, nil
}
