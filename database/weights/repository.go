// Package weights persists per-SKU learned ensemble weights with
// compare-and-swap semantics so concurrent optimizer runs cannot
// interleave a read-then-write.
package weights

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	models "demandcast/database/models_pkg"
	"demandcast/forecast"
)

// ErrConflict is returned when the stored row no longer matches the
// caller's snapshot.
var ErrConflict = errors.New("weights changed concurrently")

// Repository handles database operations for model weights. It implements
// the optimizer's WeightStore boundary.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new weights repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the SKU's weights, or (nil, nil) when none exist yet.
func (r *Repository) Get(sku string) (*forecast.SKUWeights, error) {
	var rec models.ModelWeightsRecord
	err := r.db.Where("sku = ?", sku).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return fromRecord(&rec)
}

// CompareAndSwap persists updated only if the stored row still matches old.
// old == nil asserts the row does not exist yet.
func (r *Repository) CompareAndSwap(sku string, old, updated *forecast.SKUWeights) error {
	rec, err := toRecord(sku, updated)
	if err != nil {
		return err
	}

	if old == nil {
		if err := r.db.Create(rec).Error; err != nil {
			// A concurrent first write beat us to the insert.
			return fmt.Errorf("CompareAndSwap: %w", ErrConflict)
		}
		return nil
	}

	res := r.db.Model(&models.ModelWeightsRecord{}).
		Where("sku = ? AND last_updated = ?", sku, old.LastUpdated).
		Updates(map[string]interface{}{
			"weights":      rec.Weights,
			"overall_mape": rec.OverallMape,
			"last_updated": rec.LastUpdated,
		})
	if res.Error != nil {
		return fmt.Errorf("CompareAndSwap: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("CompareAndSwap: %w", ErrConflict)
	}
	return nil
}

// All returns every persisted weight set, for reporting.
func (r *Repository) All() ([]*forecast.SKUWeights, error) {
	var records []models.ModelWeightsRecord
	if err := r.db.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("All: %w", err)
	}

	out := make([]*forecast.SKUWeights, 0, len(records))
	for i := range records {
		w, err := fromRecord(&records[i])
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func toRecord(sku string, w *forecast.SKUWeights) (*models.ModelWeightsRecord, error) {
	raw, err := json.Marshal(w.Weights)
	if err != nil {
		return nil, fmt.Errorf("toRecord: %w", err)
	}
	last := w.LastUpdated
	if last.IsZero() {
		last = time.Now().UTC()
	}
	return &models.ModelWeightsRecord{
		SKU:         sku,
		Weights:     string(raw),
		OverallMape: w.OverallMape,
		LastUpdated: last,
	}, nil
}

func fromRecord(rec *models.ModelWeightsRecord) (*forecast.SKUWeights, error) {
	var ws forecast.WeightSet
	if err := json.Unmarshal([]byte(rec.Weights), &ws); err != nil {
		return nil, fmt.Errorf("fromRecord weights for %s: %w", rec.SKU, err)
	}
	return &forecast.SKUWeights{
		SKU:         rec.SKU,
		Weights:     ws,
		OverallMape: rec.OverallMape,
		LastUpdated: rec.LastUpdated,
	}, nil
}
