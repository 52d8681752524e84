package backtest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"demandcast/config"
	"demandcast/forecast"
)

// WeightStore is the persistence boundary for per-SKU learned weights.
// Get returns (nil, nil) when no weights exist yet. CompareAndSwap must
// reject the write when the stored row no longer matches old, so two
// concurrent optimizer runs cannot interleave a read-then-write.
type WeightStore interface {
	Get(sku string) (*forecast.SKUWeights, error)
	CompareAndSwap(sku string, old, updated *forecast.SKUWeights) error
}

// OptimizationResult describes one optimizer pass over a SKU.
type OptimizationResult struct {
	SKU        string             `json:"sku"`
	Skipped    bool               `json:"skipped"`
	SkipReason string             `json:"skip_reason,omitempty"`
	Persisted  bool               `json:"persisted"`
	OldMape    float64            `json:"old_mape"`
	NewMape    float64            `json:"new_mape"`
	OldWeights forecast.WeightSet `json:"old_weights,omitempty"`
	NewWeights forecast.WeightSet `json:"new_weights,omitempty"`
	Backtests  map[string]*Result `json:"backtests,omitempty"`
}

// Optimizer retunes per-SKU ensemble weights from backtest accuracy.
type Optimizer struct {
	models []forecast.Model
	bt     *Backtester
	store  WeightStore
	cfg    config.OptimizerConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewOptimizer creates an optimizer writing through the given store.
func NewOptimizer(models []forecast.Model, store WeightStore, cfg config.OptimizerConfig) *Optimizer {
	return &Optimizer{
		models: models,
		bt:     NewBacktester(models, cfg),
		store:  store,
		cfg:    cfg,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Backtester exposes the underlying backtester for accuracy reporting.
func (o *Optimizer) Backtester() *Backtester { return o.bt }

// lockFor serializes optimizer runs per SKU key: the improve-or-skip
// comparison reads then writes and is not safe under concurrent mutation.
func (o *Optimizer) lockFor(sku string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[sku]
	if !ok {
		l = &sync.Mutex{}
		o.locks[sku] = l
	}
	return l
}

func skipped(sku, reason string) *OptimizationResult {
	return &OptimizationResult{SKU: sku, Skipped: true, SkipReason: reason}
}

// OptimizeSKU runs one optimization pass: backtest all models, propose
// inverse-MAPE weights, smooth against the current weights and persist
// only on measured improvement. Re-running on unchanged history after a
// rejected persist is a no-op.
func (o *Optimizer) OptimizeSKU(ctx context.Context, sku string, history []forecast.SalesDataPoint) (*OptimizationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(history) < o.cfg.MinHistoryDays {
		return skipped(sku, fmt.Sprintf("requires %d days of history, have %d", o.cfg.MinHistoryDays, len(history))), nil
	}

	lock := o.lockFor(sku)
	lock.Lock()
	defer lock.Unlock()

	// Hold out the final window for the improvement comparison; backtest
	// windows only see what precedes it.
	split := len(history) - o.cfg.ValidationDays
	if split < minTrainDays+o.cfg.WindowDays {
		return skipped(sku, "not enough history left after holding out validation"), nil
	}
	train, validation := history[:split], history[split:]

	backtests := o.bt.Run(sku, train)
	if backtests == nil {
		return skipped(sku, "fewer than the minimum usable backtest windows"), nil
	}

	proposed := o.proposeWeights(backtests)
	if proposed == nil {
		return skipped(sku, "every model exceeded the MAPE exclusion threshold"), nil
	}

	current, err := o.store.Get(sku)
	if err != nil {
		return nil, fmt.Errorf("OptimizeSKU load weights: %w", err)
	}

	currentWeights := forecast.EqualWeights()
	if current != nil {
		currentWeights = current.Weights.Normalized()
	}

	// Smooth toward the proposal so one noisy backtest cannot whipsaw
	// the ensemble.
	smoothed := make(forecast.WeightSet, len(proposed))
	for name := range proposed {
		smoothed[name] = o.cfg.SmoothingFactor*proposed[name] + (1-o.cfg.SmoothingFactor)*currentWeights[name]
	}
	smoothed = smoothed.Normalized()

	// Score both weight sets on identical validation forecasts.
	series := make(map[string][]forecast.Prediction, len(o.models))
	for _, model := range o.models {
		series[model.Name()] = model.ForecastDaily(train, len(validation))
	}
	oldMape := ensembleMapeFromSeries(series, validation, currentWeights)
	newMape := ensembleMapeFromSeries(series, validation, smoothed)

	result := &OptimizationResult{
		SKU:        sku,
		OldMape:    oldMape,
		NewMape:    newMape,
		OldWeights: currentWeights,
		NewWeights: smoothed,
		Backtests:  backtests,
	}

	// Improvement guard: persist only a strictly better weight set, or the
	// first set this SKU ever gets.
	if current != nil && newMape >= oldMape-1e-9 {
		log.Printf("📐 Weights for %s kept: new MAPE %.2f%% does not beat %.2f%%", sku, newMape, oldMape)
		return result, nil
	}

	updated := &forecast.SKUWeights{
		SKU:         sku,
		Weights:     smoothed,
		OverallMape: newMape,
		LastUpdated: time.Now(),
	}
	if err := o.store.CompareAndSwap(sku, current, updated); err != nil {
		return nil, fmt.Errorf("OptimizeSKU persist weights: %w", err)
	}
	result.Persisted = true
	log.Printf("✅ Weights for %s updated: MAPE %.2f%% → %.2f%%", sku, oldMape, newMape)
	return result, nil
}

// proposeWeights derives weights from inverse MAPE, excluding models whose
// error is at or past the exclusion threshold. Returns nil when nothing
// usable remains.
func (o *Optimizer) proposeWeights(backtests map[string]*Result) forecast.WeightSet {
	proposed := make(forecast.WeightSet, len(backtests))
	usable := false
	for name, res := range backtests {
		if res.Mape >= o.cfg.ExcludeMapeAbove {
			proposed[name] = 0
			continue
		}
		proposed[name] = 1.0 / (res.Mape + o.cfg.MapeEpsilon)
		usable = true
	}
	if !usable {
		return nil
	}
	return proposed.Normalized()
}
