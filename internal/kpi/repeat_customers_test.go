package kpi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-analytics/internal/models"
)

func TestRepeatCustomersRateExact(t *testing.T) {
	customers := []models.Customer{
		testCustomer("CUST-001", "John Doe", "9876543210", "North"),
		testCustomer("CUST-002", "Jane Roe", "9876543211", "South"),
		testCustomer("CUST-003", "Amit Shah", "9876543212", "North"),
		testCustomer("CUST-004", "Priya Nair", "9876543213", "East"),
	}
	orders := []models.Order{
		testOrder("ORD-001", "9876543210", day(2024, 3, 1), 100),
		testOrder("ORD-002", "9876543210", day(2024, 3, 5), 300),
		testOrder("ORD-003", "9876543211", day(2024, 3, 2), 100),
		testOrder("ORD-004", "9876543211", day(2024, 3, 8), 100),
		testOrder("ORD-005", "9876543211", day(2024, 3, 9), 100),
		testOrder("ORD-006", "9876543212", day(2024, 3, 3), 50),
	}

	calc := NewRepeatCustomersCalculator(NewDatasetAt(customers, orders, datasetNow))
	result, err := calc.Calculate(context.Background())
	require.NoError(t, err)

	res, ok := result.(RepeatCustomersResult)
	require.True(t, ok)

	// 2 repeat customers out of 4 is exactly 50.0, never 49.999...
	assert.Equal(t, 50.0, res.RepeatCustomerRate)
	assert.Equal(t, 2, res.TotalRepeatCustomers)
	assert.Equal(t, 4, res.TotalCustomers)
	assert.Equal(t, 5, res.OrdersByRepeatCustomers)
	assert.InDelta(t, 700.0, res.RevenueByRepeatCustomers, 1e-9)

	require.Len(t, res.RepeatCustomers, 2)
	assert.Equal(t, "CUST-001", res.RepeatCustomers[0].CustomerID)
	assert.InDelta(t, 400.0, res.RepeatCustomers[0].TotalSpent, 1e-9)
	assert.InDelta(t, 200.0, res.RepeatCustomers[0].AvgOrderValue, 1e-9)
	assert.Equal(t, "CUST-002", res.RepeatCustomers[1].CustomerID)
	assert.Equal(t, 3, res.RepeatCustomers[1].OrderCount)
}

func TestRepeatCustomersSortTiebreaks(t *testing.T) {
	customers := []models.Customer{
		testCustomer("CUST-001", "A", "9000000001", "North"),
		testCustomer("CUST-002", "B", "9000000002", "North"),
		testCustomer("CUST-003", "C", "9000000003", "North"),
	}
	orders := []models.Order{
		testOrder("ORD-001", "9000000001", day(2024, 3, 1), 200),
		testOrder("ORD-002", "9000000001", day(2024, 3, 2), 200),
		testOrder("ORD-003", "9000000001", day(2024, 3, 3), 200),
		testOrder("ORD-004", "9000000003", day(2024, 3, 1), 250),
		testOrder("ORD-005", "9000000003", day(2024, 3, 2), 350),
		testOrder("ORD-006", "9000000002", day(2024, 3, 1), 300),
		testOrder("ORD-007", "9000000002", day(2024, 3, 2), 300),
	}

	calc := NewRepeatCustomersCalculator(NewDatasetAt(customers, orders, datasetNow))
	result, err := calc.Calculate(context.Background())
	require.NoError(t, err)
	res := result.(RepeatCustomersResult)

	// All spent 600: higher order count first, then mobile ascending.
	require.Len(t, res.RepeatCustomers, 3)
	assert.Equal(t, "9000000001", res.RepeatCustomers[0].MobileNumber)
	assert.Equal(t, "9000000002", res.RepeatCustomers[1].MobileNumber)
	assert.Equal(t, "9000000003", res.RepeatCustomers[2].MobileNumber)
}

func TestRepeatCustomersOrphanKeepsUnknownIdentity(t *testing.T) {
	customers := []models.Customer{
		testCustomer("CUST-001", "John Doe", "9876543210", "North"),
	}
	orders := []models.Order{
		testOrder("ORD-001", "9999999999", day(2024, 3, 1), 100),
		testOrder("ORD-002", "9999999999", day(2024, 3, 2), 100),
	}

	calc := NewRepeatCustomersCalculator(NewDatasetAt(customers, orders, datasetNow))
	result, err := calc.Calculate(context.Background())
	require.NoError(t, err)
	res := result.(RepeatCustomersResult)

	require.Len(t, res.RepeatCustomers, 1)
	row := res.RepeatCustomers[0]
	assert.Equal(t, "Unknown", row.CustomerID)
	assert.Equal(t, "Unknown", row.CustomerName)
	assert.Equal(t, "Unknown", row.Region)
	assert.Equal(t, "9999999999", row.MobileNumber)
}

func TestRepeatCustomersByRegion(t *testing.T) {
	customers := []models.Customer{
		testCustomer("CUST-001", "John Doe", "9876543210", "North"),
		testCustomer("CUST-002", "Jane Roe", "9876543211", "South"),
		testCustomer("CUST-003", "Amit Shah", "9876543212", "North"),
	}
	orders := []models.Order{
		testOrder("ORD-001", "9876543210", day(2024, 3, 1), 100),
		testOrder("ORD-002", "9876543210", day(2024, 3, 5), 300),
		testOrder("ORD-003", "9876543212", day(2024, 3, 1), 50),
		testOrder("ORD-004", "9876543212", day(2024, 3, 2), 50),
		testOrder("ORD-005", "9876543212", day(2024, 3, 3), 50),
		testOrder("ORD-006", "9876543212", day(2024, 3, 4), 50),
		testOrder("ORD-007", "9876543211", day(2024, 3, 1), 100),
		testOrder("ORD-008", "9876543211", day(2024, 3, 2), 100),
	}

	calc := NewRepeatCustomersCalculator(NewDatasetAt(customers, orders, datasetNow))
	breakdown, err := calc.ByRegion(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, breakdown.TotalRegions)

	north := breakdown.Regions["North"]
	assert.Equal(t, 2, north.RepeatCustomersCount)
	assert.Equal(t, 6, north.TotalOrders)
	assert.InDelta(t, 600.0, north.TotalRevenue, 1e-9)
	// Mean of per-customer averages (200 and 50), not revenue/orders.
	assert.InDelta(t, 125.0, north.AvgOrderValue, 1e-9)

	south := breakdown.Regions["South"]
	assert.Equal(t, 1, south.RepeatCustomersCount)
	assert.InDelta(t, 100.0, south.AvgOrderValue, 1e-9)
}

func TestRepeatCustomersEmptyInput(t *testing.T) {
	calc := NewRepeatCustomersCalculator(NewDatasetAt(nil, nil, datasetNow))
	result, err := calc.Calculate(context.Background())
	require.NoError(t, err)
	res := result.(RepeatCustomersResult)

	assert.NotNil(t, res.RepeatCustomers)
	assert.Empty(t, res.RepeatCustomers)
	assert.Equal(t, 0, res.TotalRepeatCustomers)
	assert.Equal(t, 0.0, res.RepeatCustomerRate)
	assert.Equal(t, datasetNow, res.CalculationDate)
	assert.Equal(t, KPIRepeatCustomers, res.KPIName())
}

func TestRepeatCustomersIdempotent(t *testing.T) {
	customers := []models.Customer{
		testCustomer("CUST-001", "John Doe", "9876543210", "North"),
	}
	orders := []models.Order{
		testOrder("ORD-001", "9876543210", day(2024, 3, 1), 100),
		testOrder("ORD-002", "9876543210", day(2024, 3, 5), 300),
	}

	calc := NewRepeatCustomersCalculator(NewDatasetAt(customers, orders, datasetNow))
	first, err := calc.Calculate(context.Background())
	require.NoError(t, err)
	second, err := calc.Calculate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRepeatCustomersCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calc := NewRepeatCustomersCalculator(NewDatasetAt(nil, nil, datasetNow))
	_, err := calc.Calculate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
