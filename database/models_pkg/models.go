package models

import "time"

// SalesRecord is one SKU's realized demand for one calendar day. The sales
// ledger is append-only: rows are written by the order-feed consumer and
// never mutated by the forecasting engine, only re-upserted when late
// order events arrive for an already-written day.
//
// Key Fields:
//   - SKU: seller SKU (indexed, part of the daily uniqueness key)
//   - Date: calendar day in UTC (indexed, part of the daily uniqueness key)
//   - Units: total units sold that day
//   - Revenue: total order value that day
type SalesRecord struct {
	ID      int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SKU     string    `gorm:"size:64;not null;uniqueIndex:idx_daily_sales_sku_date" json:"sku"`
	Date    time.Time `gorm:"not null;uniqueIndex:idx_daily_sales_sku_date;index" json:"date"`
	Units   float64   `gorm:"type:decimal(12,2);not null" json:"units"`
	Revenue float64   `gorm:"type:decimal(15,2)" json:"revenue"`
}

// TableName specifies the table name for SalesRecord
func (SalesRecord) TableName() string {
	return "daily_sales"
}

// ModelWeightsRecord is the persisted per-SKU ensemble weight set, the only
// long-lived learned state in the engine. LastUpdated doubles as the
// optimistic-concurrency token for compare-and-swap updates.
type ModelWeightsRecord struct {
	SKU         string    `gorm:"size:64;primaryKey" json:"sku"`
	Weights     string    `gorm:"type:jsonb;not null" json:"weights"`
	OverallMape float64   `gorm:"type:decimal(8,4)" json:"overall_mape"`
	LastUpdated time.Time `gorm:"not null" json:"last_updated"`
}

// TableName specifies the table name for ModelWeightsRecord
func (ModelWeightsRecord) TableName() string {
	return "model_weights"
}

// InventoryPosition is the current stock state for a SKU across locations.
type InventoryPosition struct {
	SKU                string    `gorm:"size:64;primaryKey" json:"sku"`
	SupplierID         int64     `gorm:"index" json:"supplier_id"`
	FBAAvailable       float64   `gorm:"type:decimal(12,2)" json:"fba_available"`
	FBAInbound         float64   `gorm:"type:decimal(12,2)" json:"fba_inbound"`
	WarehouseAvailable float64   `gorm:"type:decimal(12,2)" json:"warehouse_available"`
	OnOrder            float64   `gorm:"type:decimal(12,2)" json:"on_order"`
	UnitPrice          float64   `gorm:"type:decimal(12,2)" json:"unit_price"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName specifies the table name for InventoryPosition
func (InventoryPosition) TableName() string {
	return "inventory_positions"
}

// Supplier carries the ordering terms used by the decision layer.
type Supplier struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string `gorm:"size:128;not null" json:"name"`
	LeadTimeDays int    `gorm:"not null" json:"lead_time_days"`
	MOQ          int    `json:"moq"`
}

// TableName specifies the table name for Supplier
func (Supplier) TableName() string {
	return "suppliers"
}

// PurchaseOrder tracks an order through its lifecycle; the gap between
// ExpectedAt and ReceivedAt feeds supplier-delay root-cause analysis.
type PurchaseOrder struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SKU        string     `gorm:"size:64;index;not null" json:"sku"`
	SupplierID int64      `gorm:"index" json:"supplier_id"`
	Quantity   int        `gorm:"not null" json:"quantity"`
	OrderedAt  time.Time  `gorm:"not null" json:"ordered_at"`
	ExpectedAt time.Time  `gorm:"not null" json:"expected_at"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
	Status     string     `gorm:"size:20;index" json:"status"` // OPEN, RECEIVED, CANCELLED
}

// TableName specifies the table name for PurchaseOrder
func (PurchaseOrder) TableName() string {
	return "purchase_orders"
}

// SeasonalEventRecord is a recurring calendar window with its demand
// multiplier. SKUMultipliers holds per-SKU overrides as a JSON object.
type SeasonalEventRecord struct {
	ID                int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string   `gorm:"size:64;uniqueIndex;not null" json:"name"`
	StartMonth        int      `gorm:"not null" json:"start_month"`
	StartDay          int      `gorm:"not null" json:"start_day"`
	EndMonth          int      `gorm:"not null" json:"end_month"`
	EndDay            int      `gorm:"not null" json:"end_day"`
	BaseMultiplier    float64  `gorm:"type:decimal(6,3);not null" json:"base_multiplier"`
	LearnedMultiplier *float64 `gorm:"type:decimal(6,3)" json:"learned_multiplier,omitempty"`
	SKUMultipliers    string   `gorm:"type:jsonb" json:"sku_multipliers,omitempty"`
	IsActive          bool     `gorm:"index" json:"is_active"`
}

// TableName specifies the table name for SeasonalEventRecord
func (SeasonalEventRecord) TableName() string {
	return "seasonal_events"
}

// DealRecord is a promotion window for a SKU.
type DealRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SKU        string    `gorm:"size:64;index;not null" json:"sku"`
	Name       string    `gorm:"size:128;not null" json:"name"`
	StartDate  time.Time `gorm:"not null" json:"start_date"`
	EndDate    time.Time `gorm:"not null" json:"end_date"`
	Multiplier float64   `gorm:"type:decimal(6,3);not null" json:"multiplier"`
}

// TableName specifies the table name for DealRecord
func (DealRecord) TableName() string {
	return "deals"
}

// AnomalyEventRecord is a detected inventory or forecast failure. Factors
// holds the weighted contributing causes as a JSON array, already sorted
// descending by contribution.
type AnomalyEventRecord struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SKU             string     `gorm:"size:64;index;not null" json:"sku"`
	Type            string     `gorm:"size:32;index;not null" json:"type"`
	DetectedAt      time.Time  `gorm:"index;not null" json:"detected_at"`
	RootCause       string     `gorm:"size:64;not null" json:"root_cause"`
	Factors         string     `gorm:"type:jsonb" json:"factors"`
	UnitImpact      float64    `gorm:"type:decimal(12,2)" json:"unit_impact"`
	FinancialImpact float64    `gorm:"type:decimal(15,2)" json:"financial_impact"`
	Resolved        bool       `gorm:"index" json:"resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// TableName specifies the table name for AnomalyEventRecord
func (AnomalyEventRecord) TableName() string {
	return "anomaly_events"
}

// ParameterAdjustmentRecord is one proposed configuration change attached
// to an anomaly event. AppliedAt stays nil until the explicit apply step
// runs for it.
type ParameterAdjustmentRecord struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AnomalyEventID int64      `gorm:"index;not null" json:"anomaly_event_id"`
	Parameter      string     `gorm:"size:64;not null" json:"parameter"`
	OldValue       float64    `gorm:"type:decimal(12,4)" json:"old_value"`
	NewValue       float64    `gorm:"type:decimal(12,4)" json:"new_value"`
	Reason         string     `gorm:"size:256" json:"reason"`
	AppliedAt      *time.Time `json:"applied_at,omitempty"`
}

// TableName specifies the table name for ParameterAdjustmentRecord
func (ParameterAdjustmentRecord) TableName() string {
	return "parameter_adjustments"
}

// ForecastAccuracyRecord logs one day's ensemble forecast against realized
// demand once the day closes; the anomaly scanner reads it for bias and
// forecast-miss detection.
type ForecastAccuracyRecord struct {
	ID       int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SKU      string    `gorm:"size:64;uniqueIndex:idx_forecast_accuracy_sku_date;not null" json:"sku"`
	Date     time.Time `gorm:"uniqueIndex:idx_forecast_accuracy_sku_date;not null" json:"date"`
	Forecast float64   `gorm:"type:decimal(12,2);not null" json:"forecast"`
	Actual   float64   `gorm:"type:decimal(12,2);not null" json:"actual"`
	ErrorPct float64   `gorm:"type:decimal(8,2)" json:"error_pct"`
}

// TableName specifies the table name for ForecastAccuracyRecord
func (ForecastAccuracyRecord) TableName() string {
	return "forecast_accuracy"
}

// StorageFeeRecord is one month's storage cost for a SKU.
type StorageFeeRecord struct {
	ID     int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SKU    string    `gorm:"size:64;index;not null" json:"sku"`
	Month  time.Time `gorm:"index;not null" json:"month"`
	Amount float64   `gorm:"type:decimal(12,2);not null" json:"amount"`
}

// TableName specifies the table name for StorageFeeRecord
func (StorageFeeRecord) TableName() string {
	return "storage_fees"
}

// WebhookRecord is a registered alert destination. EventTypes is a
// comma-separated list of the event types the endpoint subscribes to.
type WebhookRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	URL        string    `gorm:"size:512;not null" json:"url"`
	EventTypes string    `gorm:"size:256" json:"event_types"`
	IsActive   bool      `gorm:"index" json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for WebhookRecord
func (WebhookRecord) TableName() string {
	return "webhooks"
}
