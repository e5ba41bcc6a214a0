package kpi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-analytics/internal/models"
)

func topCustomersFixture() *Dataset {
	customers := []models.Customer{
		testCustomer("CUST-001", "John Doe", "9876543210", "North"),
		testCustomer("CUST-002", "Jane Roe", "9876543211", "South"),
		testCustomer("CUST-003", "Old Timer", "9876543212", "East"),
	}
	orders := []models.Order{
		testOrder("ORD-001", "9876543210", day(2024, 3, 10), 1000),
		testOrder("ORD-002", "9876543210", day(2024, 3, 20), 2000),
		testOrder("ORD-003", "9876543211", day(2024, 3, 15), 500),
		// Before the 30 day cutoff, must not appear anywhere.
		testOrder("ORD-004", "9876543212", day(2024, 2, 15), 700),
	}
	return NewDatasetAt(customers, orders, datasetNow)
}

func calculateTop(t *testing.T, ds *Dataset, days, topN int) TopCustomersResult {
	t.Helper()
	calc := NewTopCustomersCalculator(ds, days, topN)
	result, err := calc.Calculate(context.Background())
	require.NoError(t, err)
	res, ok := result.(TopCustomersResult)
	require.True(t, ok)
	return res
}

func TestTopCustomersWindowAndRanking(t *testing.T) {
	res := calculateTop(t, topCustomersFixture(), 30, 10)

	require.Len(t, res.TopCustomers, 2)
	first := res.TopCustomers[0]
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, "CUST-001", first.CustomerID)
	assert.InDelta(t, 3000.0, first.TotalSpent, 1e-9)
	assert.Equal(t, 2, first.TotalOrders)
	assert.InDelta(t, 1500.0, first.AvgOrderValue, 1e-9)
	assert.InDelta(t, 707.1068, first.SpendingStd, 1e-3)
	assert.Equal(t, 2, first.UniqueOrders)
	assert.Equal(t, 11, first.DaysActive)
	assert.InDelta(t, 2.0/11, first.OrdersPerDay, 1e-9)
	assert.InDelta(t, 3000.0/11, first.SpendingPerDay, 1e-9)
	assert.Equal(t, day(2024, 3, 10), first.FirstOrderDate)
	assert.Equal(t, day(2024, 3, 20), first.LastOrderDate)

	second := res.TopCustomers[1]
	assert.Equal(t, 2, second.Rank)
	assert.Equal(t, "CUST-002", second.CustomerID)
	assert.Equal(t, 1, second.DaysActive)
	assert.InDelta(t, 1.0, second.OrdersPerDay, 1e-9)

	info := res.TimePeriodInfo
	assert.Equal(t, 30, info.DaysAnalyzed)
	assert.Equal(t, datasetNow.AddDate(0, 0, -30), info.CutoffDate)
	assert.Equal(t, datasetNow, info.AnalysisDate)
	assert.Equal(t, 2, info.TotalCustomersInPeriod)
	assert.Equal(t, 3, info.TotalOrdersInPeriod)
	assert.Equal(t, day(2024, 3, 10), info.DateRange.Start)
	assert.Equal(t, day(2024, 3, 20), info.DateRange.End)
}

func TestTopCustomersCutoffIsInclusive(t *testing.T) {
	cutoff := datasetNow.AddDate(0, 0, -30)
	orders := []models.Order{
		testOrder("ORD-001", "9876543210", cutoff, 100),
		testOrder("ORD-002", "9876543210", cutoff.Add(-time.Second), 900),
	}
	ds := NewDatasetAt(
		[]models.Customer{testCustomer("CUST-001", "John Doe", "9876543210", "North")},
		orders, datasetNow)
	res := calculateTop(t, ds, 30, 10)

	require.Len(t, res.TopCustomers, 1)
	assert.InDelta(t, 100.0, res.TopCustomers[0].TotalSpent, 1e-9)
	assert.Equal(t, 1, res.TopCustomers[0].TotalOrders)
}

func TestTopCustomersSpendingSummary(t *testing.T) {
	res := calculateTop(t, topCustomersFixture(), 30, 10)
	summary := res.SpendingSummary

	assert.InDelta(t, 3500.0, summary.TotalRevenue, 1e-9)
	assert.Equal(t, 2, summary.TotalCustomers)
	assert.Equal(t, 3, summary.TotalOrders)
	assert.InDelta(t, 1750.0, summary.AvgRevenuePerCustomer, 1e-9)
	assert.InDelta(t, 1.5, summary.AvgOrdersPerCustomer, 1e-9)

	assert.Equal(t, "John Doe", summary.TopCustomer.CustomerName)
	assert.InDelta(t, 3000.0, summary.TopCustomer.TotalSpent, 1e-9)
	assert.Equal(t, 2, summary.TopCustomer.TotalOrders)

	dist := summary.SpendingDistribution
	assert.InDelta(t, 500.0, dist.MinSpending, 1e-9)
	assert.InDelta(t, 3000.0, dist.MaxSpending, 1e-9)
	assert.InDelta(t, 1750.0, dist.MedianSpending, 1e-9)
	assert.InDelta(t, 2375.0, dist.P75Spending, 1e-9)
	assert.InDelta(t, 2750.0, dist.P90Spending, 1e-9)
	assert.InDelta(t, 2875.0, dist.P95Spending, 1e-9)
	assert.InDelta(t, 1767.767, dist.StdSpending, 1e-3)

	conc := summary.RevenueConcentration
	assert.Equal(t, 1, conc.CustomersInTop10Pct)
	assert.InDelta(t, 3000.0/3500.0*100, conc.Top10PctRevenueShare, 1e-9)
}

func TestTopCustomersSegments(t *testing.T) {
	res := calculateTop(t, topCustomersFixture(), 30, 10)
	segs := res.CustomerSegments

	thresholds := segs.SegmentThresholds
	assert.InDelta(t, 2500.0, thresholds.VIPThreshold, 1e-9)
	assert.InDelta(t, 2000.0, thresholds.HighValueThreshold, 1e-9)
	assert.InDelta(t, 1500.0, thresholds.MediumValueThreshold, 1e-9)
	assert.InDelta(t, 1000.0, thresholds.LowValueThreshold, 1e-9)

	// Only the populated segments appear, highest band first.
	require.Equal(t, 2, segs.TotalSegments)
	vip := segs.Segments[0]
	assert.Equal(t, "VIP", vip.Segment)
	assert.Equal(t, 1, vip.CustomerCount)
	assert.InDelta(t, 3000.0, vip.TotalRevenue, 1e-9)
	assert.InDelta(t, 2.0, vip.AvgOrdersPerCustomer, 1e-9)
	assert.InDelta(t, 1500.0, vip.AvgOrderValue, 1e-9)
	assert.InDelta(t, 50.0, vip.CustomerSharePct, 1e-9)
	assert.InDelta(t, 3000.0/3500.0*100, vip.RevenueSharePct, 1e-9)

	minimal := segs.Segments[1]
	assert.Equal(t, "Minimal", minimal.Segment)
	assert.Equal(t, 1, minimal.CustomerCount)

	require.Len(t, segs.RegionalDistribution, 2)
	assert.Equal(t, RegionalSegmentCount{Region: "North", Segment: "VIP", CustomerCount: 1}, segs.RegionalDistribution[0])
	assert.Equal(t, RegionalSegmentCount{Region: "South", Segment: "Minimal", CustomerCount: 1}, segs.RegionalDistribution[1])
}

func TestTopCustomersTopNClampAndTies(t *testing.T) {
	customers := []models.Customer{
		testCustomer("CUST-001", "A", "9000000002", "North"),
		testCustomer("CUST-002", "B", "9000000001", "North"),
	}
	orders := []models.Order{
		testOrder("ORD-001", "9000000002", day(2024, 3, 10), 400),
		testOrder("ORD-002", "9000000002", day(2024, 3, 12), 600),
		testOrder("ORD-003", "9000000001", day(2024, 3, 11), 1000),
	}
	ds := NewDatasetAt(customers, orders, datasetNow)

	res := calculateTop(t, ds, 30, 1)
	// Equal spend: the lower mobile number ranks first.
	require.Len(t, res.TopCustomers, 1)
	assert.Equal(t, "9000000001", res.TopCustomers[0].MobileNumber)
	// Summary still covers everyone in the window.
	assert.Equal(t, 2, res.TimePeriodInfo.TotalCustomersInPeriod)
	assert.Equal(t, 2, res.SpendingSummary.TotalCustomers)
}

func TestTopCustomersOrphanGetsUnknownIdentity(t *testing.T) {
	ds := NewDatasetAt(
		[]models.Customer{testCustomer("CUST-001", "John Doe", "9876543210", "North")},
		[]models.Order{
			testOrder("ORD-001", "9876543210", day(2024, 3, 10), 100),
			testOrder("ORD-002", "9999999999", day(2024, 3, 12), 900),
		},
		datasetNow)
	res := calculateTop(t, ds, 30, 10)

	require.Len(t, res.TopCustomers, 2)
	orphan := res.TopCustomers[0]
	assert.Equal(t, "9999999999", orphan.MobileNumber)
	assert.Equal(t, "Unknown", orphan.CustomerID)
	assert.Equal(t, "Unknown", orphan.CustomerName)
	assert.Equal(t, "Unknown", orphan.Region)
}

func TestTopCustomersEmptyWindow(t *testing.T) {
	ds := NewDatasetAt(
		[]models.Customer{testCustomer("CUST-001", "John Doe", "9876543210", "North")},
		[]models.Order{testOrder("ORD-001", "9876543210", day(2023, 1, 1), 100)},
		datasetNow)
	res := calculateTop(t, ds, 30, 10)

	assert.NotNil(t, res.TopCustomers)
	assert.Empty(t, res.TopCustomers)
	assert.Equal(t, 0, res.TimePeriodInfo.TotalCustomersInPeriod)
	assert.Equal(t, 30, res.TimePeriodInfo.DaysAnalyzed)
	assert.Equal(t, datasetNow.AddDate(0, 0, -30), res.TimePeriodInfo.CutoffDate)
	assert.Equal(t, KPITopCustomers, res.KPIName())
}

func TestTopCustomersEmptyInput(t *testing.T) {
	res := calculateTop(t, NewDatasetAt(nil, nil, datasetNow), 90, 10)
	assert.Empty(t, res.TopCustomers)
	assert.Equal(t, 90, res.TimePeriodInfo.DaysAnalyzed)
	assert.Equal(t, datasetNow, res.CalculationDate)
}
