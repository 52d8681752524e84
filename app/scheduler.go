package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"demandcast/config"
	"demandcast/database"
	"demandcast/metrics"
)

// activeWindowDays bounds which SKUs the catalog jobs touch: anything
// without a sale in this window is skipped until it sells again.
const activeWindowDays = 180

// Scheduler runs the background catalog loops on cron schedules: weekly
// weight retuning, nightly anomaly scans and hourly spike sweeps.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
	rawDB  *database.DB
	cfg    config.JobsConfig

	anomCfg config.AnomalyConfig

	concurrency int

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(engine *Engine, rawDB *database.DB, cfg *config.Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	concurrency := cfg.Optimizer.CatalogConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scheduler{
		cron:        cron.New(),
		engine:      engine,
		rawDB:       rawDB,
		cfg:         cfg.Jobs,
		anomCfg:     cfg.Anomaly,
		concurrency: concurrency,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start registers the catalog jobs and begins the cron loop.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"optimize", s.cfg.OptimizeSchedule, s.OptimizeCatalog},
		{"anomaly", s.cfg.AnomalySchedule, s.ScanCatalog},
		{"spike", s.cfg.SpikeSchedule, s.SpikeSweep},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, j.run); err != nil {
			return err
		}
		log.Printf("🔄 Scheduled %s job: %s", j.name, j.spec)
	}
	s.cron.Start()
	return nil
}

// Stop cancels in-flight catalog runs and halts the cron loop.
func (s *Scheduler) Stop() {
	s.cancel()
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Println("⚠️  Scheduler stop timed out, abandoning running jobs")
	}
}

// OptimizeCatalog retunes ensemble weights for every active SKU.
func (s *Scheduler) OptimizeCatalog() {
	s.runCatalog("optimize", func(ctx context.Context, sku string) {
		if _, err := s.engine.OptimizeSKU(ctx, sku); err != nil {
			log.Printf("⚠️  Optimization failed for %s: %v", sku, err)
		}
	})
}

// ScanCatalog runs anomaly detection across every active SKU, then retunes
// any SKU whose forecast has been persistently missing so it does not wait
// for the weekly optimization pass.
func (s *Scheduler) ScanCatalog() {
	s.runCatalog("anomaly", func(ctx context.Context, sku string) {
		if _, err := s.engine.ScanSKU(ctx, sku); err != nil {
			log.Printf("⚠️  Anomaly scan failed for %s: %v", sku, err)
		}
	})
	s.refreshStaleForecasts()
}

func (s *Scheduler) refreshStaleForecasts() {
	stale, err := s.rawDB.StaleForecastSKUs(s.ctx, 7, s.anomCfg.ForecastMissMinRecords, s.anomCfg.ForecastMissErrorPct)
	if err != nil {
		log.Printf("⚠️  Stale forecast listing failed: %v", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	log.Printf("🔄 Re-optimizing %d SKUs with stale forecasts", len(stale))
	for _, sku := range stale {
		if s.ctx.Err() != nil {
			return
		}
		if _, err := s.engine.OptimizeSKU(s.ctx, sku); err != nil {
			log.Printf("⚠️  Stale forecast retune failed for %s: %v", sku, err)
		}
	}
}

// SpikeSweep checks every active SKU for demand spikes.
func (s *Scheduler) SpikeSweep() {
	s.runCatalog("spike", func(ctx context.Context, sku string) {
		if _, err := s.engine.SpikeSKU(ctx, sku); err != nil {
			log.Printf("⚠️  Spike check failed for %s: %v", sku, err)
		}
	})
}

// runCatalog fans the per-SKU work across a bounded worker pool, stopping
// early when the scheduler shuts down.
func (s *Scheduler) runCatalog(name string, work func(ctx context.Context, sku string)) {
	start := time.Now()

	skus, err := s.rawDB.ActiveSKUs(s.ctx, activeWindowDays)
	if err != nil {
		log.Printf("⚠️  Catalog listing for %s job failed: %v", name, err)
		return
	}
	log.Printf("📊 Starting %s job over %d SKUs", name, len(skus))

	queue := make(chan string)
	done := make(chan struct{})
	for i := 0; i < s.concurrency; i++ {
		go func() {
			for sku := range queue {
				work(s.ctx, sku)
			}
			done <- struct{}{}
		}()
	}

feed:
	for _, sku := range skus {
		select {
		case <-s.ctx.Done():
			break feed
		case queue <- sku:
		}
	}
	close(queue)
	for i := 0; i < s.concurrency; i++ {
		<-done
	}

	elapsed := time.Since(start)
	metrics.CatalogScanDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	log.Printf("✅ Finished %s job over %d SKUs in %s", name, len(skus), elapsed.Round(time.Millisecond))
}
