// Package inventory persists stock positions, suppliers, purchase orders
// and storage fees.
package inventory

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	models "demandcast/database/models_pkg"
)

// Repository handles database operations for inventory data
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new inventory repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Position returns the SKU's current stock state, or (nil, nil) when the
// SKU has never been positioned.
func (r *Repository) Position(sku string) (*models.InventoryPosition, error) {
	var pos models.InventoryPosition
	err := r.db.Where("sku = ?", sku).First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Position: %w", err)
	}
	return &pos, nil
}

// UpsertPosition replaces the SKU's stock state.
func (r *Repository) UpsertPosition(pos *models.InventoryPosition) error {
	pos.UpdatedAt = time.Now().UTC()
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		UpdateAll: true,
	}).Create(pos).Error
	if err != nil {
		return fmt.Errorf("UpsertPosition: %w", err)
	}
	return nil
}

// Supplier returns the supplier's ordering terms.
func (r *Repository) Supplier(id int64) (*models.Supplier, error) {
	var sup models.Supplier
	err := r.db.First(&sup, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Supplier: %w", err)
	}
	return &sup, nil
}

// LatestPODelayDays returns how many days late the most recently received
// purchase order for the SKU arrived, 0 when on time or no order exists.
func (r *Repository) LatestPODelayDays(sku string) (int, error) {
	var po models.PurchaseOrder
	err := r.db.Where("sku = ? AND received_at IS NOT NULL", sku).
		Order("received_at DESC").
		First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("LatestPODelayDays: %w", err)
	}

	delay := int(po.ReceivedAt.Sub(po.ExpectedAt).Hours() / 24)
	if delay < 0 {
		return 0, nil
	}
	return delay, nil
}

// SavePurchaseOrder records a new or updated purchase order.
func (r *Repository) SavePurchaseOrder(po *models.PurchaseOrder) error {
	if err := r.db.Save(po).Error; err != nil {
		return fmt.Errorf("SavePurchaseOrder: %w", err)
	}
	return nil
}

// StorageFees returns the SKU's monthly storage costs, oldest first.
func (r *Repository) StorageFees(sku string, months int) ([]models.StorageFeeRecord, error) {
	cutoff := time.Now().UTC().AddDate(0, -months, 0)

	var fees []models.StorageFeeRecord
	err := r.db.Where("sku = ? AND month >= ?", sku, cutoff).
		Order("month ASC").
		Find(&fees).Error
	if err != nil {
		return nil, fmt.Errorf("StorageFees: %w", err)
	}
	return fees, nil
}
