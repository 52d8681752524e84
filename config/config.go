package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// HTTP API
	APIPort int

	// Order ledger feed
	OrderFeedURL     string
	OrderFeedToken   string
	OrderFeedEnabled bool

	// Forecasting configuration
	Forecast ForecastConfig

	// Optimizer configuration
	Optimizer OptimizerConfig

	// Decision configuration
	Decision DecisionConfig

	// Spike detection configuration
	Spike SpikeConfig

	// Anomaly detection configuration
	Anomaly AnomalyConfig

	// Background job scheduling
	Jobs JobsConfig
}

// ForecastConfig holds per-model tunables for the forecast layer.
// Minimum-history thresholds differ per model on purpose; they are kept
// as explicit configuration rather than inline constants.
type ForecastConfig struct {
	// Exponential smoothing (Holt-Winters)
	SmoothingAlpha float64 // level
	SmoothingBeta  float64 // trend
	SmoothingGamma float64 // seasonal
	SeasonalPeriod int     // days; weekly retail cycle

	// Prophet-style decomposition
	MaxChangePoints       int
	ChangePointPriorScale float64
	HolidayPriorScale     float64
	WeeklyFourierOrder    int
	YearlyFourierOrder    int
	RidgeLambda           float64

	// Pattern matching
	SequenceLength        int
	PatternMatchThreshold float64
	RecencyDecayRate      float64

	// ARIMA
	ArimaP int
	ArimaD int
	ArimaQ int

	// Per-model minimum history (days) before the fallback estimator kicks in
	MinHistorySmoothing int
	MinHistoryProphet   int
	MinHistoryPattern   int
	MinHistoryArima     int

	// Fallback estimator
	FallbackMaxConfidence float64
}

// OptimizerConfig holds tunables for the weight optimization loop
type OptimizerConfig struct {
	MinHistoryDays     int     // skip SKUs with less history
	WindowDays         int     // size of each backtest window
	MaxWindows         int     // cap on sequential test windows
	MinWindows         int     // below this, "not yet optimizable"
	SmoothingFactor    float64 // share of the proposed weights in the blend
	MapeEpsilon        float64 // guards 1/mape against division by zero
	ExcludeMapeAbove   float64 // models at or above this MAPE get zero weight
	HitRateTolerance   float64 // relative error counted as a hit
	ValidationDays     int     // held-out window for the improvement guard
	CatalogConcurrency int     // worker pool size for full-catalog runs
}

// DecisionConfig holds safety stock and replenishment tunables
type DecisionConfig struct {
	SafetyStockFloorDays  int     // hard floor in days of expected demand
	TargetCoverageDays    int     // total inventory target horizon
	FBACoverageDays       int     // FBA replenishment target horizon
	FBABufferDays         int     // extra days on top of FBA coverage
	LeadTimeBufferDays    int     // urgency buffer on top of lead time
	BestSellerVelocity    float64 // units/day above which a SKU is a best-seller
	ZBestSeller           float64
	ZRegular              float64
	ZSlowMover            float64
	VelocityBlendShort    float64 // 7-day share when blending divergent velocities
	VelocityDivergencePct float64 // divergence that triggers the blend
	BiasCorrection        float64 // ensemble base multiplier, fed back from the anomaly scanner
}

// SpikeConfig holds spike detection tunables
type SpikeConfig struct {
	ThresholdPct     float64 // percent increase over baseline that counts as a spike
	BaselineStartDay int     // days back where the baseline window starts
	BaselineEndDay   int     // days back where the baseline window ends
	RecentDays       int     // trailing window for current velocity
	DecayHorizonDays int     // days over which a spike relaxes toward 1.0
	AdSpendJumpPct   float64 // ad spend increase that explains a spike
}

// AnomalyConfig holds the root-cause weighting table and scan thresholds.
// Contribution weights are heuristic and replaceable; they are not required
// to sum to 1.
type AnomalyConfig struct {
	OverstockDaysOfSupply   float64
	ForecastMissMinRecords  int
	ForecastMissErrorPct    float64
	SupplierDelayDays       int
	VelocityDeclinePct      float64
	WeightSupplierDelay     float64
	WeightUndetectedSpike   float64
	WeightForecastBias      float64
	StorageFeeSpikeIncrease float64 // month-over-month fee increase ratio
}

// JobsConfig holds cron schedules for background loops
type JobsConfig struct {
	OptimizeSchedule string // weekly weight retuning
	AnomalySchedule  string // nightly catalog scan
	SpikeSchedule    string // spike sweep
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	seasonalPeriod := getEnvInt("FORECAST_SEASONAL_PERIOD", 7)

	return &Config{
		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "demandcast"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "demandcast"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "demandcast123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		APIPort: getEnvInt("API_PORT", 8090),

		OrderFeedURL:     getEnvOrDefault("ORDER_FEED_URL", ""),
		OrderFeedToken:   getEnvOrDefault("ORDER_FEED_TOKEN", ""),
		OrderFeedEnabled: getEnvOrDefault("ORDER_FEED_ENABLED", "false") == "true",

		Forecast: ForecastConfig{
			SmoothingAlpha: getEnvFloat("FORECAST_ALPHA", 0.3),
			SmoothingBeta:  getEnvFloat("FORECAST_BETA", 0.1),
			SmoothingGamma: getEnvFloat("FORECAST_GAMMA", 0.2),
			SeasonalPeriod: seasonalPeriod,

			MaxChangePoints:       getEnvInt("FORECAST_MAX_CHANGEPOINTS", 25),
			ChangePointPriorScale: getEnvFloat("FORECAST_CHANGEPOINT_PRIOR", 0.05),
			HolidayPriorScale:     getEnvFloat("FORECAST_HOLIDAY_PRIOR", 10.0),
			WeeklyFourierOrder:    getEnvInt("FORECAST_WEEKLY_FOURIER_ORDER", 3),
			YearlyFourierOrder:    getEnvInt("FORECAST_YEARLY_FOURIER_ORDER", 10),
			RidgeLambda:           getEnvFloat("FORECAST_RIDGE_LAMBDA", 0.1),

			SequenceLength:        getEnvInt("FORECAST_SEQUENCE_LENGTH", 14),
			PatternMatchThreshold: getEnvFloat("FORECAST_PATTERN_THRESHOLD", 0.7),
			RecencyDecayRate:      getEnvFloat("FORECAST_RECENCY_DECAY", 0.95),

			ArimaP: getEnvInt("FORECAST_ARIMA_P", 2),
			ArimaD: getEnvInt("FORECAST_ARIMA_D", 1),
			ArimaQ: getEnvInt("FORECAST_ARIMA_Q", 1),

			MinHistorySmoothing: getEnvInt("FORECAST_MIN_HISTORY_SMOOTHING", seasonalPeriod*2),
			MinHistoryProphet:   getEnvInt("FORECAST_MIN_HISTORY_PROPHET", 30),
			MinHistoryPattern:   getEnvInt("FORECAST_MIN_HISTORY_PATTERN", 30),
			MinHistoryArima:     getEnvInt("FORECAST_MIN_HISTORY_ARIMA", 30),

			FallbackMaxConfidence: getEnvFloat("FORECAST_FALLBACK_MAX_CONFIDENCE", 0.5),
		},

		Optimizer: OptimizerConfig{
			MinHistoryDays:     getEnvInt("OPTIMIZER_MIN_HISTORY_DAYS", 90),
			WindowDays:         getEnvInt("OPTIMIZER_WINDOW_DAYS", 30),
			MaxWindows:         getEnvInt("OPTIMIZER_MAX_WINDOWS", 6),
			MinWindows:         getEnvInt("OPTIMIZER_MIN_WINDOWS", 2),
			SmoothingFactor:    getEnvFloat("OPTIMIZER_SMOOTHING", 0.3),
			MapeEpsilon:        getEnvFloat("OPTIMIZER_MAPE_EPSILON", 0.01),
			ExcludeMapeAbove:   getEnvFloat("OPTIMIZER_EXCLUDE_MAPE", 100.0),
			HitRateTolerance:   getEnvFloat("OPTIMIZER_HIT_TOLERANCE", 0.20),
			ValidationDays:     getEnvInt("OPTIMIZER_VALIDATION_DAYS", 30),
			CatalogConcurrency: getEnvInt("OPTIMIZER_CONCURRENCY", 4),
		},

		Decision: DecisionConfig{
			SafetyStockFloorDays:  getEnvInt("DECISION_SAFETY_FLOOR_DAYS", 7),
			TargetCoverageDays:    getEnvInt("DECISION_TARGET_COVERAGE_DAYS", 180),
			FBACoverageDays:       getEnvInt("DECISION_FBA_COVERAGE_DAYS", 45),
			FBABufferDays:         getEnvInt("DECISION_FBA_BUFFER_DAYS", 10),
			LeadTimeBufferDays:    getEnvInt("DECISION_LEAD_TIME_BUFFER_DAYS", 14),
			BestSellerVelocity:    getEnvFloat("DECISION_BEST_SELLER_VELOCITY", 10.0),
			ZBestSeller:           getEnvFloat("DECISION_Z_BEST_SELLER", 2.33),
			ZRegular:              getEnvFloat("DECISION_Z_REGULAR", 1.65),
			ZSlowMover:            getEnvFloat("DECISION_Z_SLOW_MOVER", 1.28),
			VelocityBlendShort:    getEnvFloat("DECISION_VELOCITY_BLEND_SHORT", 0.6),
			VelocityDivergencePct: getEnvFloat("DECISION_VELOCITY_DIVERGENCE_PCT", 50.0),
			BiasCorrection:        getEnvFloat("DECISION_BIAS_CORRECTION", 1.0),
		},

		Spike: SpikeConfig{
			ThresholdPct:     getEnvFloat("SPIKE_THRESHOLD_PCT", 50.0),
			BaselineStartDay: getEnvInt("SPIKE_BASELINE_START_DAY", 37),
			BaselineEndDay:   getEnvInt("SPIKE_BASELINE_END_DAY", 7),
			RecentDays:       getEnvInt("SPIKE_RECENT_DAYS", 7),
			DecayHorizonDays: getEnvInt("SPIKE_DECAY_HORIZON_DAYS", 60),
			AdSpendJumpPct:   getEnvFloat("SPIKE_AD_SPEND_JUMP_PCT", 50.0),
		},

		Anomaly: AnomalyConfig{
			OverstockDaysOfSupply:   getEnvFloat("ANOMALY_OVERSTOCK_DOS", 300.0),
			ForecastMissMinRecords:  getEnvInt("ANOMALY_FORECAST_MISS_MIN", 3),
			ForecastMissErrorPct:    getEnvFloat("ANOMALY_FORECAST_MISS_ERROR_PCT", 50.0),
			SupplierDelayDays:       getEnvInt("ANOMALY_SUPPLIER_DELAY_DAYS", 7),
			VelocityDeclinePct:      getEnvFloat("ANOMALY_VELOCITY_DECLINE_PCT", 30.0),
			WeightSupplierDelay:     getEnvFloat("ANOMALY_WEIGHT_SUPPLIER_DELAY", 0.4),
			WeightUndetectedSpike:   getEnvFloat("ANOMALY_WEIGHT_UNDETECTED_SPIKE", 0.35),
			WeightForecastBias:      getEnvFloat("ANOMALY_WEIGHT_FORECAST_BIAS", 0.25),
			StorageFeeSpikeIncrease: getEnvFloat("ANOMALY_STORAGE_FEE_INCREASE", 0.5),
		},

		Jobs: JobsConfig{
			OptimizeSchedule: getEnvOrDefault("JOBS_OPTIMIZE_SCHEDULE", "0 3 * * 0"),
			AnomalySchedule:  getEnvOrDefault("JOBS_ANOMALY_SCHEDULE", "0 2 * * *"),
			SpikeSchedule:    getEnvOrDefault("JOBS_SPIKE_SCHEDULE", "0 * * * *"),
		},
	}
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid integer for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float64 or returns a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid float for %s, using default %f", key, defaultValue)
	}
	return defaultValue
}
