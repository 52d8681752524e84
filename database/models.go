// Package database provides database connection management for the
// demandcast forecasting engine.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - A raw database/sql connection for catalog-wide aggregate queries
//   - Schema migration for all engine tables
//
// Data Models:
//
//	All data models (SalesRecord, ModelWeightsRecord, AnomalyEventRecord,
//	etc.) are defined in the models_pkg package to avoid circular import
//	dependencies.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "demandcast/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the
// underlying DB instance. It serves as the central connection point for all
// repository operations in the application.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// Migrate creates or updates all engine tables.
func (d *Database) Migrate() error {
	if err := d.db.AutoMigrate(
		&models.SalesRecord{},
		&models.ModelWeightsRecord{},
		&models.InventoryPosition{},
		&models.Supplier{},
		&models.PurchaseOrder{},
		&models.SeasonalEventRecord{},
		&models.DealRecord{},
		&models.AnomalyEventRecord{},
		&models.ParameterAdjustmentRecord{},
		&models.ForecastAccuracyRecord{},
		&models.StorageFeeRecord{},
		&models.WebhookRecord{},
	); err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ============================================================================
// Backward Compatibility Type Aliases
// ============================================================================

// These type aliases let callers import record types from the database
// package directly.

type SalesRecord = models.SalesRecord
type ModelWeightsRecord = models.ModelWeightsRecord
type InventoryPosition = models.InventoryPosition
type Supplier = models.Supplier
type PurchaseOrder = models.PurchaseOrder
type SeasonalEventRecord = models.SeasonalEventRecord
type DealRecord = models.DealRecord
type AnomalyEventRecord = models.AnomalyEventRecord
type ParameterAdjustmentRecord = models.ParameterAdjustmentRecord
type ForecastAccuracyRecord = models.ForecastAccuracyRecord
type StorageFeeRecord = models.StorageFeeRecord
type WebhookRecord = models.WebhookRecord
