package database

import (
	"context"
	"fmt"
	"time"
)

// Catalog-scan data structures

// CatalogVelocity is one SKU's aggregate trailing demand rate.
type CatalogVelocity struct {
	SKU        string  `json:"sku"`
	TotalUnits float64 `json:"total_units"`
	Velocity   float64 `json:"velocity"` // units/day over the window
}

// Catalog Query Methods
//
// These run as raw SQL on the pooled connection: the nightly scan touches
// every SKU and the per-row GORM path is too chatty for it.

// ActiveSKUs returns every SKU with at least one sale in the trailing window.
func (db *DB) ActiveSKUs(ctx context.Context, days int) ([]string, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT sku FROM daily_sales WHERE date >= $1 ORDER BY sku`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("ActiveSKUs: %w", err)
	}
	defer rows.Close()

	var skus []string
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			return nil, fmt.Errorf("ActiveSKUs scan: %w", err)
		}
		skus = append(skus, sku)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ActiveSKUs rows: %w", err)
	}
	return skus, nil
}

// CatalogVelocities returns trailing units/day for the whole catalog in a
// single aggregate pass.
func (db *DB) CatalogVelocities(ctx context.Context, days int) ([]CatalogVelocity, error) {
	if days < 1 {
		days = 1
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT sku, COALESCE(SUM(units), 0) AS total_units
		   FROM daily_sales
		  WHERE date >= $1
		  GROUP BY sku
		  ORDER BY total_units DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("CatalogVelocities: %w", err)
	}
	defer rows.Close()

	var out []CatalogVelocity
	for rows.Next() {
		var v CatalogVelocity
		if err := rows.Scan(&v.SKU, &v.TotalUnits); err != nil {
			return nil, fmt.Errorf("CatalogVelocities scan: %w", err)
		}
		v.Velocity = v.TotalUnits / float64(days)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CatalogVelocities rows: %w", err)
	}
	return out, nil
}

// StaleForecastSKUs returns SKUs whose accuracy log shows at least minMisses
// days above errPct error in the trailing window, the candidates for forced
// re-optimization.
func (db *DB) StaleForecastSKUs(ctx context.Context, days, minMisses int, errPct float64) ([]string, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT sku FROM forecast_accuracy
		  WHERE date >= $1 AND ABS(error_pct) > $2
		  GROUP BY sku
		 HAVING COUNT(*) >= $3
		  ORDER BY sku`, cutoff, errPct, minMisses)
	if err != nil {
		return nil, fmt.Errorf("StaleForecastSKUs: %w", err)
	}
	defer rows.Close()

	var skus []string
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			return nil, fmt.Errorf("StaleForecastSKUs scan: %w", err)
		}
		skus = append(skus, sku)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("StaleForecastSKUs rows: %w", err)
	}
	return skus, nil
}
