package store

import (
	"context"
	"database/sql"
	"fmt"

	"order-analytics/config"
	"order-analytics/internal/kpi"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore connects to Postgres and applies the pool settings.
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB returns the underlying database connection
func (s *Store) DB() *sqlx.DB {
	return s.db
}

const schema = `
CREATE TABLE IF NOT EXISTS customers (
    customer_id   TEXT PRIMARY KEY,
    customer_name TEXT NOT NULL,
    mobile_number TEXT NOT NULL UNIQUE,
    region        TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_customers_region ON customers (region);

CREATE TABLE IF NOT EXISTS orders (
    order_id        TEXT PRIMARY KEY,
    mobile_number   TEXT NOT NULL REFERENCES customers (mobile_number),
    order_date_time TIMESTAMPTZ NOT NULL,
    order_date_raw  TEXT NOT NULL,
    sku_id          TEXT NOT NULL,
    sku_count       INTEGER NOT NULL,
    total_amount    DOUBLE PRECISION NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_orders_mobile ON orders (mobile_number);
CREATE INDEX IF NOT EXISTS idx_orders_date   ON orders (order_date_time);
CREATE INDEX IF NOT EXISTS idx_orders_sku    ON orders (sku_id);
CREATE INDEX IF NOT EXISTS idx_orders_amount ON orders (total_amount);

CREATE TABLE IF NOT EXISTS kpi_results (
    id               BIGSERIAL PRIMARY KEY,
    kpi_name         TEXT NOT NULL,
    engine           TEXT NOT NULL,
    calculation_date TIMESTAMPTZ NOT NULL,
    parameters       TEXT NOT NULL DEFAULT '',
    result_count     INTEGER NOT NULL DEFAULT 0,
    result_value     DOUBLE PRECISION NOT NULL DEFAULT 0,
    result_json      JSONB,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_kpi_results_lookup ON kpi_results (kpi_name, calculation_date DESC);
`

// InitSchema creates the tables and indexes if they do not exist yet.
// total_amount is DOUBLE PRECISION so SQL aggregation arithmetic matches the
// in-memory float64 arithmetic.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Summary reads the headline numbers from the tables. Both engines expose
// the same SummaryStats shape; agreement between them is the pipeline's
// correctness check.
func (s *Store) Summary(ctx context.Context) (kpi.SummaryStats, error) {
	var stats kpi.SummaryStats

	var row struct {
		TotalOrders   int          `db:"total_orders"`
		TotalRevenue  float64      `db:"total_revenue"`
		AvgOrderValue float64      `db:"avg_order_value"`
		MinDate       sql.NullTime `db:"min_date"`
		MaxDate       sql.NullTime `db:"max_date"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT COUNT(*)                   AS total_orders,
		       COALESCE(SUM(total_amount), 0) AS total_revenue,
		       COALESCE(AVG(total_amount), 0) AS avg_order_value,
		       MIN(order_date_time)      AS min_date,
		       MAX(order_date_time)      AS max_date
		FROM orders`)
	if err != nil {
		return stats, fmt.Errorf("failed to read order summary: %w", err)
	}
	stats.TotalOrders = row.TotalOrders
	stats.TotalRevenue = row.TotalRevenue
	stats.AvgOrderValue = row.AvgOrderValue
	if row.MinDate.Valid {
		stats.DateRange = kpi.DateRange{Start: row.MinDate.Time, End: row.MaxDate.Time}
	}

	if err := s.db.GetContext(ctx, &stats.TotalCustomers, "SELECT COUNT(*) FROM customers"); err != nil {
		return stats, fmt.Errorf("failed to count customers: %w", err)
	}

	err = s.db.GetContext(ctx, &stats.Regions, `
		SELECT COUNT(DISTINCT c.region)
		FROM customers c
		JOIN orders o ON o.mobile_number = c.mobile_number`)
	if err != nil {
		return stats, fmt.Errorf("failed to count active regions: %w", err)
	}
	return stats, nil
}

// TotalCustomers counts the customers table.
func (s *Store) TotalCustomers(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM customers")
	return count, err
}
