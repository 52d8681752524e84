package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"demandcast/anomaly"
	"demandcast/backtest"
	"demandcast/cache"
	"demandcast/config"
	"demandcast/database/anomalies"
	"demandcast/database/inventory"
	"demandcast/database/sales"
	"demandcast/decision"
	"demandcast/ensemble"
	"demandcast/forecast"
	"demandcast/metrics"
	"demandcast/notifications"
	"demandcast/realtime"
	"demandcast/spike"
)

// Default horizons the engine caches forecasts for.
var forecastHorizons = []int{30, 90, 180}

const historyWindowDays = 400

// Engine orchestrates the per-SKU forecasting pipeline: history in,
// forecasts, recommendations, spike reads and anomaly events out. It is
// stateless per invocation except for the persisted weight table.
type Engine struct {
	cfg       *config.Config
	combiner  *ensemble.Combiner
	planner   *decision.Planner
	detector  *spike.Detector
	scanner   *anomaly.Scanner
	applier   *anomaly.Applier
	optimizer *backtest.Optimizer

	salesRepo *sales.Repository
	invRepo   *inventory.Repository
	anomRepo  *anomalies.Repository
	weights   backtest.WeightStore

	fcache   *cache.ForecastCache
	broker   *realtime.Broker
	webhooks *notifications.WebhookManager
}

// EngineDeps carries the collaborators an Engine needs.
type EngineDeps struct {
	SalesRepo *sales.Repository
	InvRepo   *inventory.Repository
	AnomRepo  *anomalies.Repository
	Weights   backtest.WeightStore
	Cache     *cache.ForecastCache
	Broker    *realtime.Broker
	Webhooks  *notifications.WebhookManager
}

// NewEngine wires the pipeline from configuration.
func NewEngine(cfg *config.Config, deps EngineDeps) *Engine {
	models := forecast.NewModels(cfg.Forecast)

	e := &Engine{
		cfg:       cfg,
		combiner:  ensemble.NewCombiner(models, cfg.Decision),
		planner:   decision.NewPlanner(cfg.Decision),
		detector:  spike.NewDetector(cfg.Spike),
		scanner:   anomaly.NewScanner(cfg),
		applier:   anomaly.NewApplier(cfg),
		optimizer: backtest.NewOptimizer(models, deps.Weights, cfg.Optimizer),
		salesRepo: deps.SalesRepo,
		invRepo:   deps.InvRepo,
		anomRepo:  deps.AnomRepo,
		weights:   deps.Weights,
		fcache:    deps.Cache,
		broker:    deps.Broker,
		webhooks:  deps.Webhooks,
	}

	e.applier.OnReoptimize(func(sku string) {
		go func() {
			if _, err := e.OptimizeSKU(context.Background(), sku); err != nil {
				log.Printf("⚠️  Forced re-optimization for %s failed: %v", sku, err)
			}
		}()
	})

	return e
}

// ForecastSKU produces the blended daily forecast series for one SKU.
func (e *Engine) ForecastSKU(ctx context.Context, sku string, horizonDays int) ([]ensemble.Forecast, error) {
	if e.fcache != nil {
		if series, ok := e.fcache.GetForecast(ctx, sku, horizonDays); ok {
			return series, nil
		}
	}

	start := time.Now()

	history, err := e.salesRepo.History(sku, historyWindowDays)
	if err != nil {
		metrics.ForecastsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("ForecastSKU: %w", err)
	}
	if len(history) == 0 {
		metrics.ForecastsTotal.WithLabelValues("no_history").Inc()
		return nil, fmt.Errorf("ForecastSKU: no sales history for %s", sku)
	}

	weights := forecast.EqualWeights()
	if stored, err := e.weights.Get(sku); err != nil {
		log.Printf("⚠️  Weight read for %s failed, using equal weights: %v", sku, err)
	} else if stored != nil {
		weights = stored.Weights
	}

	// Calendar and promotion context are non-critical: a read failure
	// degrades to a forecast without that multiplier.
	events, err := e.salesRepo.SeasonalEvents()
	if err != nil {
		log.Printf("⚠️  Seasonal event read failed: %v", err)
	}
	deals, err := e.salesRepo.ActiveDeals(sku, horizonDays)
	if err != nil {
		log.Printf("⚠️  Deal read failed for %s: %v", sku, err)
	}

	det := e.detectSpike(ctx, sku, history, len(deals) > 0)

	series := e.combiner.Forecast(ensemble.Inputs{
		SKU:          sku,
		History:      history,
		Weights:      weights,
		Events:       events,
		Deals:        deals,
		Spike:        det,
		LeadTimeDays: e.leadTimeDays(sku),
	}, horizonDays)

	metrics.ForecastsTotal.WithLabelValues("ok").Inc()
	metrics.ForecastDuration.Observe(time.Since(start).Seconds())

	if e.fcache != nil {
		_ = e.fcache.SetForecast(ctx, sku, horizonDays, series, 15*time.Minute)
	}
	if e.broker != nil && len(series) > 0 {
		e.broker.Broadcast(realtime.EventForecast, sku, series[0])
	}
	return series, nil
}

// RecommendSKU produces the reorder recommendation for one SKU.
func (e *Engine) RecommendSKU(ctx context.Context, sku string) (*decision.Recommendation, error) {
	if e.fcache != nil {
		if rec, ok := e.fcache.GetRecommendation(ctx, sku); ok {
			return rec, nil
		}
	}

	history, err := e.salesRepo.History(sku, historyWindowDays)
	if err != nil {
		return nil, fmt.Errorf("RecommendSKU: %w", err)
	}

	forecasts, err := e.ForecastSKU(ctx, sku, 30)
	if err != nil {
		// Partial result: recommend on velocity alone.
		log.Printf("⚠️  Forecast unavailable for %s, recommending on velocity: %v", sku, err)
		forecasts = nil
	}

	inv, sup := e.stockState(sku)
	rec := e.planner.Recommend(sku, history, forecasts, inv, sup)

	if e.fcache != nil {
		_ = e.fcache.SetRecommendation(ctx, sku, rec, 15*time.Minute)
	}
	return rec, nil
}

// SpikeSKU runs spike detection for one SKU, alerting when one is found.
func (e *Engine) SpikeSKU(ctx context.Context, sku string) (*spike.Detection, error) {
	history, err := e.salesRepo.History(sku, historyWindowDays)
	if err != nil {
		return nil, fmt.Errorf("SpikeSKU: %w", err)
	}

	deals, err := e.salesRepo.ActiveDeals(sku, 1)
	if err != nil {
		log.Printf("⚠️  Deal read failed for %s: %v", sku, err)
	}

	det := e.detectSpike(ctx, sku, history, len(deals) > 0)
	if det.IsSpiking {
		metrics.SpikesDetectedTotal.WithLabelValues(det.Cause).Inc()
		if e.broker != nil {
			e.broker.Broadcast(realtime.EventSpike, sku, det)
		}
		if e.webhooks != nil {
			e.webhooks.SendSpikeAlert(det)
		}
		if e.fcache != nil {
			_ = e.fcache.PublishSpike(ctx, det)
		}
	}
	return det, nil
}

// OptimizeSKU retunes the SKU's ensemble weights from backtest accuracy.
func (e *Engine) OptimizeSKU(ctx context.Context, sku string) (*backtest.OptimizationResult, error) {
	history, err := e.salesRepo.History(sku, historyWindowDays)
	if err != nil {
		return nil, fmt.Errorf("OptimizeSKU: %w", err)
	}

	res, err := e.optimizer.OptimizeSKU(ctx, sku, history)
	if err != nil {
		metrics.OptimizationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	switch {
	case res.Skipped:
		metrics.OptimizationsTotal.WithLabelValues("skipped").Inc()
	case res.Persisted:
		metrics.OptimizationsTotal.WithLabelValues("persisted").Inc()
		metrics.OptimizerMape.Observe(res.NewMape)
		if e.fcache != nil {
			e.fcache.Invalidate(ctx, sku, forecastHorizons...)
		}
		if e.broker != nil {
			e.broker.Broadcast(realtime.EventWeights, sku, res)
		}
	default:
		metrics.OptimizationsTotal.WithLabelValues("kept").Inc()
	}
	return res, nil
}

// BacktestSKU reports per-model backtest accuracy without touching the
// stored weights. Returns nil when the history is too short.
func (e *Engine) BacktestSKU(ctx context.Context, sku string) (map[string]*backtest.Result, error) {
	history, err := e.salesRepo.History(sku, historyWindowDays)
	if err != nil {
		return nil, fmt.Errorf("BacktestSKU: %w", err)
	}
	return e.optimizer.Backtester().Run(sku, history), nil
}

// ScanSKU runs anomaly detection for one SKU and persists what it finds.
func (e *Engine) ScanSKU(ctx context.Context, sku string) ([]*anomaly.Event, error) {
	history, err := e.salesRepo.History(sku, historyWindowDays)
	if err != nil {
		return nil, fmt.Errorf("ScanSKU: %w", err)
	}

	e.recordAccuracy(sku, history)

	state := anomaly.SKUState{
		SKU:     sku,
		History: history,
	}

	if pos, err := e.invRepo.Position(sku); err != nil {
		log.Printf("⚠️  Position read failed for %s: %v", sku, err)
	} else if pos != nil {
		state.AvailableUnits = pos.FBAAvailable + pos.WarehouseAvailable
		state.UnitPrice = pos.UnitPrice
		if sup, err := e.invRepo.Supplier(pos.SupplierID); err == nil && sup != nil {
			state.LeadTimeDays = sup.LeadTimeDays
		}
	}

	if delay, err := e.invRepo.LatestPODelayDays(sku); err != nil {
		log.Printf("⚠️  PO delay read failed for %s: %v", sku, err)
	} else {
		state.LastPODelayDays = delay
	}

	if recs, err := e.salesRepo.RecentAccuracy(sku, 30); err != nil {
		log.Printf("⚠️  Accuracy read failed for %s: %v", sku, err)
	} else {
		for _, rec := range recs {
			state.Accuracy = append(state.Accuracy, anomaly.AccuracyRecord{
				Date:     rec.Date,
				Forecast: rec.Forecast,
				Actual:   rec.Actual,
			})
		}
	}

	if fees, err := e.invRepo.StorageFees(sku, 3); err != nil {
		log.Printf("⚠️  Storage fee read failed for %s: %v", sku, err)
	} else {
		for _, fee := range fees {
			state.StorageFees = append(state.StorageFees, anomaly.StorageFee{
				Month:  fee.Month,
				Amount: fee.Amount,
			})
		}
	}

	if det := e.detectSpike(ctx, sku, history, false); det != nil {
		state.SpikeFlagged = det.IsSpiking
	}

	events := e.scanner.Scan(state)
	for _, ev := range events {
		metrics.AnomaliesDetectedTotal.WithLabelValues(ev.Type).Inc()
		if _, err := e.anomRepo.SaveEvent(ev); err != nil {
			log.Printf("⚠️  Failed to persist %s anomaly for %s: %v", ev.Type, sku, err)
		}
		if e.broker != nil {
			e.broker.Broadcast(realtime.EventAnomaly, sku, ev)
		}
		if e.webhooks != nil {
			e.webhooks.SendAnomalyAlert(ev)
		}
		if e.fcache != nil {
			_ = e.fcache.PublishAnomaly(ctx, ev)
		}
	}
	return events, nil
}

// recordAccuracy logs the most recent closed day's forecast against what
// actually sold, feeding the forecast-miss check. The one-day forecast is
// reconstructed from the history that preceded that day, so the comparison
// reflects what the ensemble would have predicted going in blind.
func (e *Engine) recordAccuracy(sku string, history []forecast.SalesDataPoint) {
	if len(history) < 2 {
		return
	}
	last := history[len(history)-1]
	prior := history[:len(history)-1]

	weights := forecast.EqualWeights()
	if stored, err := e.weights.Get(sku); err == nil && stored != nil {
		weights = stored.Weights
	}

	series := e.combiner.Forecast(ensemble.Inputs{
		SKU:     sku,
		History: prior,
		Weights: weights,
	}, 1)
	if len(series) == 0 {
		return
	}

	if err := e.salesRepo.RecordAccuracy(sku, last.Date, series[0].FinalForecast, last.Units); err != nil {
		log.Printf("⚠️  Failed to record forecast accuracy for %s: %v", sku, err)
	}
}

// ApplyAdjustment runs the explicit apply step for one stored adjustment.
func (e *Engine) ApplyAdjustment(sku string, adjustmentID int64, adj anomaly.ParameterAdjustment) error {
	applied, err := e.applier.Apply(sku, adj)
	if err != nil {
		return err
	}
	if applied {
		metrics.AdjustmentsAppliedTotal.WithLabelValues(adj.Parameter).Inc()
		if err := e.anomRepo.MarkAdjustmentApplied(adjustmentID); err != nil {
			log.Printf("⚠️  Failed to mark adjustment %d applied: %v", adjustmentID, err)
		}
	}
	return nil
}

// detectSpike is the shared detection path; failures degrade to a nil read
// so the forecast still goes out without the spike multiplier.
func (e *Engine) detectSpike(ctx context.Context, sku string, history []forecast.SalesDataPoint, hasDeal bool) *spike.Detection {
	if e.fcache != nil {
		if det, ok := e.fcache.GetSpike(ctx, sku); ok {
			return det
		}
	}

	det := e.detector.Detect(sku, history, spike.Signals{HasActiveDeal: hasDeal})

	if e.fcache != nil {
		_ = e.fcache.SetSpike(ctx, sku, &det, 1*time.Hour)
	}
	return &det
}

// stockState loads the SKU's inventory position and supplier terms with
// conservative defaults when either is missing.
func (e *Engine) stockState(sku string) (decision.InventoryState, decision.SupplierInfo) {
	var inv decision.InventoryState
	sup := decision.SupplierInfo{LeadTimeDays: 14}

	pos, err := e.invRepo.Position(sku)
	if err != nil {
		log.Printf("⚠️  Position read failed for %s: %v", sku, err)
		return inv, sup
	}
	if pos == nil {
		return inv, sup
	}

	inv = decision.InventoryState{
		FBAAvailable:       pos.FBAAvailable,
		FBAInbound:         pos.FBAInbound,
		WarehouseAvailable: pos.WarehouseAvailable,
		OnOrder:            pos.OnOrder,
	}

	if supplier, err := e.invRepo.Supplier(pos.SupplierID); err != nil {
		log.Printf("⚠️  Supplier read failed for %s: %v", sku, err)
	} else if supplier != nil {
		sup = decision.SupplierInfo{LeadTimeDays: supplier.LeadTimeDays, MOQ: supplier.MOQ}
	}
	return inv, sup
}

func (e *Engine) leadTimeDays(sku string) int {
	_, sup := e.stockState(sku)
	return sup.LeadTimeDays
}
