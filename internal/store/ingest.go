package store

import (
	"context"
	"fmt"

	"order-analytics/internal/models"
)

// batchSampleLimit caps the per-batch error and orphan samples.
const batchSampleLimit = 5

const upsertCustomerQuery = `
	INSERT INTO customers (customer_id, customer_name, mobile_number, region)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (customer_id) DO UPDATE
	SET customer_name = EXCLUDED.customer_name,
	    mobile_number = EXCLUDED.mobile_number,
	    region        = EXCLUDED.region,
	    updated_at    = NOW()
	RETURNING (xmax = 0) AS inserted`

const upsertOrderQuery = `
	INSERT INTO orders (order_id, mobile_number, order_date_time, order_date_raw, sku_id, sku_count, total_amount)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (order_id) DO UPDATE
	SET mobile_number   = EXCLUDED.mobile_number,
	    order_date_time = EXCLUDED.order_date_time,
	    order_date_raw  = EXCLUDED.order_date_raw,
	    sku_id          = EXCLUDED.sku_id,
	    sku_count       = EXCLUDED.sku_count,
	    total_amount    = EXCLUDED.total_amount,
	    updated_at      = NOW()
	RETURNING (xmax = 0) AS inserted`

// BulkUpsertCustomers writes a customer batch in one transaction. Each row
// runs inside a savepoint, so a failed row (for example a mobile number
// already owned by another customer) is recorded and skipped without
// discarding the rows before it.
func (s *Store) BulkUpsertCustomers(ctx context.Context, customers []models.Customer) (models.BatchResult, error) {
	result := models.BatchResult{Attempted: len(customers)}
	if len(customers) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, c := range customers {
		sp := fmt.Sprintf("sp_customer_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			return result, fmt.Errorf("failed to create savepoint: %w", err)
		}

		var inserted bool
		err := tx.GetContext(ctx, &inserted, upsertCustomerQuery,
			c.CustomerID, c.CustomerName, c.MobileNumber, c.Region)
		if err != nil {
			result.Failed++
			if len(result.Errors) < batchSampleLimit {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", c.CustomerID, err))
			}
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); err != nil {
				return result, fmt.Errorf("failed to roll back savepoint: %w", err)
			}
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit customer batch: %w", err)
	}
	return result, nil
}

// BulkUpsertOrders writes an order batch in one transaction with the same
// savepoint-per-row recovery. Orders whose mobile number has no customer row
// are rejected as orphans before any insert is attempted.
func (s *Store) BulkUpsertOrders(ctx context.Context, orders []models.Order) (models.BatchResult, error) {
	result := models.BatchResult{Attempted: len(orders)}
	if len(orders) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, o := range orders {
		var exists bool
		err := tx.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM customers WHERE mobile_number = $1)", o.MobileNumber)
		if err != nil {
			return result, fmt.Errorf("failed to check customer for order %s: %w", o.OrderID, err)
		}
		if !exists {
			result.OrphansSkipped++
			if len(result.OrphanSample) < batchSampleLimit {
				result.OrphanSample = append(result.OrphanSample, o.MobileNumber)
			}
			continue
		}

		sp := fmt.Sprintf("sp_order_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			return result, fmt.Errorf("failed to create savepoint: %w", err)
		}

		var inserted bool
		err = tx.GetContext(ctx, &inserted, upsertOrderQuery,
			o.OrderID, o.MobileNumber, o.OrderDateTime, o.OrderDateRaw, o.SKUID, o.SKUCount, o.TotalAmount)
		if err != nil {
			result.Failed++
			if len(result.Errors) < batchSampleLimit {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", o.OrderID, err))
			}
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); err != nil {
				return result, fmt.Errorf("failed to roll back savepoint: %w", err)
			}
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit order batch: %w", err)
	}
	return result, nil
}
