package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"order-analytics/internal/kpi"
	"order-analytics/internal/models"
)

// ErrKPIResultNotFound is returned when no stored result exists for a KPI.
var ErrKPIResultNotFound = errors.New("kpi result not found")

const repeatCustomerRowsQuery = `
	SELECT o.mobile_number,
	       COALESCE(c.customer_id, 'Unknown')   AS customer_id,
	       COALESCE(c.customer_name, 'Unknown') AS customer_name,
	       COALESCE(c.region, 'Unknown')        AS region,
	       COUNT(*)                             AS order_count,
	       SUM(o.total_amount)                  AS total_spent,
	       AVG(o.total_amount)                  AS avg_order_value
	FROM orders o
	LEFT JOIN customers c ON c.mobile_number = o.mobile_number
	GROUP BY o.mobile_number, c.customer_id, c.customer_name, c.region
	HAVING COUNT(*) > 1`

const monthlyTrendRowsQuery = `
	SELECT EXTRACT(YEAR FROM order_date_time)::int  AS year,
	       EXTRACT(MONTH FROM order_date_time)::int AS month,
	       COUNT(*)                                 AS total_orders,
	       SUM(total_amount)                        AS total_revenue,
	       AVG(total_amount)                        AS avg_order_value,
	       COALESCE(STDDEV_SAMP(total_amount), 0)   AS revenue_std,
	       COUNT(DISTINCT mobile_number)            AS unique_customers
	FROM orders
	GROUP BY 1, 2
	ORDER BY 1, 2`

const regionalRevenueRowsQuery = `
	SELECT COALESCE(c.region, 'Unknown')            AS region,
	       COUNT(*)                                 AS total_orders,
	       SUM(o.total_amount)                      AS total_revenue,
	       AVG(o.total_amount)                      AS avg_order_value,
	       COALESCE(STDDEV_SAMP(o.total_amount), 0) AS revenue_std,
	       MIN(o.total_amount)                      AS min_order_value,
	       MAX(o.total_amount)                      AS max_order_value,
	       COUNT(DISTINCT o.mobile_number)          AS unique_customers,
	       SUM(o.sku_count)::int                    AS total_items_sold
	FROM orders o
	LEFT JOIN customers c ON c.mobile_number = o.mobile_number
	GROUP BY 1`

// FMMonth strips the blank padding, matching time.Month.String().
const regionMonthlyRevenueRowsQuery = `
	SELECT COALESCE(c.region, 'Unknown')         AS region,
	       TO_CHAR(o.order_date_time, 'FMMonth') AS month_name,
	       SUM(o.total_amount)                   AS revenue,
	       COUNT(*)                              AS orders
	FROM orders o
	LEFT JOIN customers c ON c.mobile_number = o.mobile_number
	GROUP BY 1, 2`

const customerSpendingRowsQuery = `
	SELECT o.mobile_number,
	       COALESCE(c.customer_id, '')              AS customer_id,
	       COALESCE(c.customer_name, '')            AS customer_name,
	       COALESCE(c.region, '')                   AS region,
	       SUM(o.total_amount)                      AS total_spent,
	       AVG(o.total_amount)                      AS avg_order_value,
	       COUNT(*)                                 AS total_orders,
	       COALESCE(STDDEV_SAMP(o.total_amount), 0) AS spending_std,
	       SUM(o.sku_count)::int                    AS total_items,
	       COUNT(DISTINCT o.order_id)               AS unique_orders,
	       MIN(o.order_date_time)                   AS first_order_date,
	       MAX(o.order_date_time)                   AS last_order_date
	FROM orders o
	LEFT JOIN customers c ON c.mobile_number = o.mobile_number
	WHERE o.order_date_time >= $1
	GROUP BY o.mobile_number, c.customer_id, c.customer_name, c.region`

// RepeatCustomerRows aggregates orders per customer, keeping customers with
// more than one order. Rows feed kpi.BuildRepeatCustomersResult.
func (s *Store) RepeatCustomerRows(ctx context.Context) ([]kpi.RepeatCustomer, error) {
	var rows []kpi.RepeatCustomer
	err := s.db.SelectContext(ctx, &rows, repeatCustomerRowsQuery)
	return rows, err
}

// MonthlyTrendRows aggregates orders per calendar month. Rows feed
// kpi.BuildMonthlyTrendsResult.
func (s *Store) MonthlyTrendRows(ctx context.Context) ([]kpi.MonthBucket, error) {
	var rows []kpi.MonthBucket
	err := s.db.SelectContext(ctx, &rows, monthlyTrendRowsQuery)
	return rows, err
}

// RegionalRevenueRows aggregates orders per customer region. Rows feed
// kpi.BuildRegionalRevenueResult.
func (s *Store) RegionalRevenueRows(ctx context.Context) ([]kpi.RegionBucket, error) {
	var rows []kpi.RegionBucket
	err := s.db.SelectContext(ctx, &rows, regionalRevenueRowsQuery)
	return rows, err
}

// RegionMonthlyRevenueRows aggregates revenue per region and calendar month
// name for the seasonal peak analysis.
func (s *Store) RegionMonthlyRevenueRows(ctx context.Context) ([]kpi.RegionMonthBucket, error) {
	var rows []kpi.RegionMonthBucket
	err := s.db.SelectContext(ctx, &rows, regionMonthlyRevenueRowsQuery)
	return rows, err
}

// CustomerSpendingRows aggregates orders per customer inside the trailing
// window starting at since. Rows feed kpi.BuildTopCustomersResult, which
// fills empty identity columns with Unknown.
func (s *Store) CustomerSpendingRows(ctx context.Context, since time.Time) ([]kpi.CustomerSpending, error) {
	var rows []kpi.CustomerSpending
	err := s.db.SelectContext(ctx, &rows, customerSpendingRowsQuery, since)
	return rows, err
}

// SaveKPIResult inserts one row into the kpi_results cache table and fills
// the record's ID and CreatedAt.
func (s *Store) SaveKPIResult(ctx context.Context, rec *models.KPIResultRecord) error {
	query := `
		INSERT INTO kpi_results (kpi_name, engine, calculation_date, parameters, result_count, result_value, result_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	row := s.db.QueryRowxContext(ctx, query,
		rec.KPIName, rec.Engine, rec.CalculationDate, rec.Parameters,
		rec.ResultCount, rec.ResultValue, rec.ResultJSON)
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return fmt.Errorf("failed to save kpi result: %w", err)
	}
	return nil
}

// LatestKPIResult retrieves the most recent stored result for a KPI name.
func (s *Store) LatestKPIResult(ctx context.Context, kpiName string) (*models.KPIResultRecord, error) {
	var rec models.KPIResultRecord
	err := s.db.GetContext(ctx, &rec, `
		SELECT * FROM kpi_results
		WHERE kpi_name = $1
		ORDER BY calculation_date DESC, id DESC
		LIMIT 1`, kpiName)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrKPIResultNotFound, kpiName)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CleanupOldOrders deletes orders older than retainDays.
func (s *Store) CleanupOldOrders(ctx context.Context, retainDays int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM orders WHERE order_date_time < NOW() - ($1 * INTERVAL '1 day')", retainDays)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old orders: %w", err)
	}
	return res.RowsAffected()
}

// CleanupOldCustomers deletes customers older than retainDays that have no
// remaining orders.
func (s *Store) CleanupOldCustomers(ctx context.Context, retainDays int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM customers c
		WHERE c.created_at < NOW() - ($1 * INTERVAL '1 day')
		  AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.mobile_number = c.mobile_number)`,
		retainDays)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old customers: %w", err)
	}
	return res.RowsAffected()
}
