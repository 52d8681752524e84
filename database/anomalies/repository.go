// Package anomalies persists detected anomaly events and their proposed
// parameter adjustments.
package anomalies

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"demandcast/anomaly"
	models "demandcast/database/models_pkg"
)

// Repository handles database operations for anomaly events
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new anomalies repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SaveEvent persists one detected event with its adjustments in a single
// transaction and returns the stored event id.
func (r *Repository) SaveEvent(ev *anomaly.Event) (int64, error) {
	factors, err := json.Marshal(ev.Factors)
	if err != nil {
		return 0, fmt.Errorf("SaveEvent factors: %w", err)
	}

	rec := models.AnomalyEventRecord{
		SKU:             ev.SKU,
		Type:            ev.Type,
		DetectedAt:      ev.DetectedAt,
		RootCause:       ev.RootCause,
		Factors:         string(factors),
		UnitImpact:      ev.UnitImpact,
		FinancialImpact: ev.FinancialImpact,
		Resolved:        ev.Resolved,
		ResolvedAt:      ev.ResolvedAt,
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		for _, adj := range ev.Adjustments {
			adjRec := models.ParameterAdjustmentRecord{
				AnomalyEventID: rec.ID,
				Parameter:      adj.Parameter,
				OldValue:       adj.OldValue,
				NewValue:       adj.NewValue,
				Reason:         adj.Reason,
			}
			if err := tx.Create(&adjRec).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("SaveEvent: %w", err)
	}
	return rec.ID, nil
}

// ListOpen returns unresolved events, newest first.
func (r *Repository) ListOpen(limit int) ([]models.AnomalyEventRecord, error) {
	query := r.db.Where("resolved = ?", false).Order("detected_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.AnomalyEventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("ListOpen: %w", err)
	}
	return records, nil
}

// ListBySKU returns the SKU's events in the trailing window, newest first.
func (r *Repository) ListBySKU(sku string, days int) ([]models.AnomalyEventRecord, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var records []models.AnomalyEventRecord
	err := r.db.Where("sku = ? AND detected_at >= ?", sku, cutoff).
		Order("detected_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("ListBySKU: %w", err)
	}
	return records, nil
}

// Resolve closes an event.
func (r *Repository) Resolve(id int64) error {
	now := time.Now().UTC()
	res := r.db.Model(&models.AnomalyEventRecord{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{"resolved": true, "resolved_at": now})
	if res.Error != nil {
		return fmt.Errorf("Resolve: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("Resolve: event %d not found or already resolved", id)
	}
	return nil
}

// Adjustments returns the proposed adjustments attached to an event.
func (r *Repository) Adjustments(eventID int64) ([]models.ParameterAdjustmentRecord, error) {
	var records []models.ParameterAdjustmentRecord
	err := r.db.Where("anomaly_event_id = ?", eventID).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("Adjustments: %w", err)
	}
	return records, nil
}

// ActiveWebhooks returns the registered alert destinations.
func (r *Repository) ActiveWebhooks() ([]models.WebhookRecord, error) {
	var hooks []models.WebhookRecord
	if err := r.db.Where("is_active = ?", true).Find(&hooks).Error; err != nil {
		return nil, fmt.Errorf("ActiveWebhooks: %w", err)
	}
	return hooks, nil
}

// Event returns one stored event by id, nil when absent.
func (r *Repository) Event(id int64) (*models.AnomalyEventRecord, error) {
	var rec models.AnomalyEventRecord
	err := r.db.First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Event: %w", err)
	}
	return &rec, nil
}

// ListWebhooks returns every registered destination, active or not.
func (r *Repository) ListWebhooks() ([]models.WebhookRecord, error) {
	var hooks []models.WebhookRecord
	if err := r.db.Order("id").Find(&hooks).Error; err != nil {
		return nil, fmt.Errorf("ListWebhooks: %w", err)
	}
	return hooks, nil
}

// SaveWebhook registers or updates an alert destination.
func (r *Repository) SaveWebhook(hook *models.WebhookRecord) error {
	if err := r.db.Save(hook).Error; err != nil {
		return fmt.Errorf("SaveWebhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes an alert destination.
func (r *Repository) DeleteWebhook(id int64) error {
	if err := r.db.Delete(&models.WebhookRecord{}, id).Error; err != nil {
		return fmt.Errorf("DeleteWebhook: %w", err)
	}
	return nil
}

// MarkAdjustmentApplied stamps an adjustment once the apply step ran it.
// Re-marking an already-applied adjustment is a no-op.
func (r *Repository) MarkAdjustmentApplied(id int64) error {
	now := time.Now().UTC()
	res := r.db.Model(&models.ParameterAdjustmentRecord{}).
		Where("id = ? AND applied_at IS NULL", id).
		Update("applied_at", now)
	if res.Error != nil {
		return fmt.Errorf("MarkAdjustmentApplied: %w", res.Error)
	}
	return nil
}
