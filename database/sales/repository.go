// Package sales persists the daily demand ledger plus the calendars
// (seasonal events, deals) and the forecast accuracy log that modulate
// and audit it.
package sales

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	models "demandcast/database/models_pkg"
	"demandcast/ensemble"
	"demandcast/forecast"
)

// Repository handles database operations for sales and calendar data
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new sales repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertDaily writes one day's sales for a SKU, replacing the row when a
// late order event re-delivers an already-written day.
func (r *Repository) UpsertDaily(rec *models.SalesRecord) error {
	rec.Date = rec.Date.UTC().Truncate(24 * time.Hour)
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"units", "revenue"}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("UpsertDaily: %w", err)
	}
	return nil
}

// AddUnits increments one day's sales for a SKU, creating the row on first
// sight of the day.
func (r *Repository) AddUnits(sku string, date time.Time, units, revenue float64) error {
	day := date.UTC().Truncate(24 * time.Hour)
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "sku"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"units":   gorm.Expr("daily_sales.units + ?", units),
			"revenue": gorm.Expr("daily_sales.revenue + ?", revenue),
		}),
	}).Create(&models.SalesRecord{SKU: sku, Date: day, Units: units, Revenue: revenue}).Error
	if err != nil {
		return fmt.Errorf("AddUnits: %w", err)
	}
	return nil
}

// History returns the SKU's daily series for the trailing window, oldest
// first, in the shape the model layer consumes.
func (r *Repository) History(sku string, days int) ([]forecast.SalesDataPoint, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var records []models.SalesRecord
	err := r.db.Where("sku = ? AND date >= ?", sku, cutoff).
		Order("date ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}

	history := make([]forecast.SalesDataPoint, len(records))
	for i, rec := range records {
		history[i] = forecast.SalesDataPoint{
			Date:    rec.Date,
			Units:   rec.Units,
			Revenue: rec.Revenue,
		}
	}
	return history, nil
}

// SeasonalEvents returns all active calendar events as the combiner's
// domain type.
func (r *Repository) SeasonalEvents() ([]ensemble.SeasonalEvent, error) {
	var records []models.SeasonalEventRecord
	if err := r.db.Where("is_active = ?", true).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("SeasonalEvents: %w", err)
	}

	events := make([]ensemble.SeasonalEvent, 0, len(records))
	for _, rec := range records {
		ev := ensemble.SeasonalEvent{
			Name: rec.Name,
			Window: forecast.EventWindow{
				Name:       rec.Name,
				StartMonth: rec.StartMonth,
				StartDay:   rec.StartDay,
				EndMonth:   rec.EndMonth,
				EndDay:     rec.EndDay,
			},
			BaseMultiplier:    rec.BaseMultiplier,
			LearnedMultiplier: rec.LearnedMultiplier,
			IsActive:          rec.IsActive,
		}
		if rec.SKUMultipliers != "" {
			if err := json.Unmarshal([]byte(rec.SKUMultipliers), &ev.SKUMultipliers); err != nil {
				return nil, fmt.Errorf("SeasonalEvents sku multipliers for %s: %w", rec.Name, err)
			}
		}
		events = append(events, ev)
	}
	return events, nil
}

// ActiveDeals returns the SKU's promotions overlapping the window starting now.
func (r *Repository) ActiveDeals(sku string, horizonDays int) ([]ensemble.Deal, error) {
	now := time.Now().UTC()
	end := now.AddDate(0, 0, horizonDays)

	var records []models.DealRecord
	err := r.db.Where("sku = ? AND start_date <= ? AND end_date >= ?", sku, end, now).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("ActiveDeals: %w", err)
	}

	deals := make([]ensemble.Deal, len(records))
	for i, rec := range records {
		deals[i] = ensemble.Deal{
			Name:       rec.Name,
			Start:      rec.StartDate,
			End:        rec.EndDate,
			Multiplier: rec.Multiplier,
		}
	}
	return deals, nil
}

// RecordAccuracy logs one closed day's forecast against what actually sold.
func (r *Repository) RecordAccuracy(sku string, date time.Time, forecasted, actual float64) error {
	errPct := 0.0
	if base := math.Max(actual, 1); base > 0 {
		errPct = (forecasted - actual) / base * 100
	}
	rec := models.ForecastAccuracyRecord{
		SKU:      sku,
		Date:     date.UTC().Truncate(24 * time.Hour),
		Forecast: forecasted,
		Actual:   actual,
		ErrorPct: errPct,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"forecast", "actual", "error_pct"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("RecordAccuracy: %w", err)
	}
	return nil
}

// RecentAccuracy returns the SKU's accuracy log for the trailing window,
// oldest first.
func (r *Repository) RecentAccuracy(sku string, days int) ([]models.ForecastAccuracyRecord, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var records []models.ForecastAccuracyRecord
	err := r.db.Where("sku = ? AND date >= ?", sku, cutoff).
		Order("date ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("RecentAccuracy: %w", err)
	}
	return records, nil
}
