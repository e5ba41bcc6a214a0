package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-analytics/config"
	"order-analytics/internal/ingest"
	"order-analytics/internal/models"
)

const fixtureCustomersCSV = `customer_id,customer_name,mobile_number,region
CUST-001,john doe,9876543210,North
CUST-002,jane roe,9123456780,South
CUST-003,sam poe,9988776655,North
`

const fixtureOrdersXML = `<?xml version="1.0" encoding="UTF-8"?>
<orders>
  <order>
    <order_id>ORD-1001</order_id>
    <mobile_number>9876543210</mobile_number>
    <order_date_time>2024-03-10T12:00:00</order_date_time>
    <sku_id>SKU-1001</sku_id>
    <sku_count>2</sku_count>
    <total_amount>1000.00</total_amount>
  </order>
  <order>
    <order_id>ORD-1002</order_id>
    <mobile_number>9876543210</mobile_number>
    <order_date_time>2024-03-20T12:00:00</order_date_time>
    <sku_id>SKU-2001</sku_id>
    <sku_count>1</sku_count>
    <total_amount>2000.00</total_amount>
  </order>
  <order>
    <order_id>ORD-1003</order_id>
    <mobile_number>9123456780</mobile_number>
    <order_date_time>2024-03-15T12:00:00</order_date_time>
    <sku_id>SKU-1002</sku_id>
    <sku_count>1</sku_count>
    <total_amount>500.00</total_amount>
  </order>
  <order>
    <order_id>ORD-1004</order_id>
    <mobile_number>9988776655</mobile_number>
    <order_date_time>2024-02-15T12:00:00</order_date_time>
    <sku_id>SKU-3001</sku_id>
    <sku_count>1</sku_count>
    <total_amount>700.00</total_amount>
  </order>
</orders>
`

// fixtureOrphanOrdersXML adds one order whose mobile has no customer record.
const fixtureOrphanOrdersXML = `<?xml version="1.0" encoding="UTF-8"?>
<orders>
  <order>
    <order_id>ORD-2001</order_id>
    <mobile_number>9876543210</mobile_number>
    <order_date_time>2024-03-10T12:00:00</order_date_time>
    <sku_id>SKU-1001</sku_id>
    <sku_count>1</sku_count>
    <total_amount>1000.00</total_amount>
  </order>
  <order>
    <order_id>ORD-2002</order_id>
    <mobile_number>9999999988</mobile_number>
    <order_date_time>2024-03-18T12:00:00</order_date_time>
    <sku_id>SKU-1002</sku_id>
    <sku_count>1</sku_count>
    <total_amount>900.00</total_amount>
  </order>
</orders>
`

func writePipelineFixtures(t *testing.T, customersCSV, ordersXML string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	customersPath := filepath.Join(dir, "customers.csv")
	ordersPath := filepath.Join(dir, "orders.xml")
	require.NoError(t, os.WriteFile(customersPath, []byte(customersCSV), 0o644))
	require.NoError(t, os.WriteFile(ordersPath, []byte(ordersXML), 0o644))
	return customersPath, ordersPath
}

func newTestMemoryEngine() *MemoryEngine {
	cfg := config.PipelineConfig{TopCustomersCount: 10, TopSpendersDays: 30}
	return NewMemoryEngineAt(cfg, nil, func() time.Time { return pipelineNow })
}

func TestMemoryEngineEndToEnd(t *testing.T) {
	customersPath, ordersPath := writePipelineFixtures(t, fixtureCustomersCSV, fixtureOrdersXML)
	engine := newTestMemoryEngine()
	ctx := context.Background()

	require.NoError(t, engine.LoadData(ctx, customersPath, ordersPath))

	report, err := engine.CalculateKPIs(ctx)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, EngineInMemory, report.Engine)
	assert.Equal(t, engine.RunID(), report.RunID)
	assert.Equal(t, pipelineNow, report.CalculationDate)
	assert.Equal(t, 4, report.KPIsCalculated)
	assert.Equal(t, 4, report.KPIsSucceeded)

	assert.Equal(t, 3, report.DataSummary.TotalCustomers)
	assert.Equal(t, 4, report.DataSummary.TotalOrders)
	assert.InDelta(t, 4200.0, report.DataSummary.TotalRevenue, 1e-9)
	assert.InDelta(t, 1050.0, report.DataSummary.AvgOrderValue, 1e-9)
	assert.Equal(t, 2, report.DataSummary.Regions)

	require.NotNil(t, report.RepeatCustomers)
	assert.Equal(t, 1, report.RepeatCustomers.TotalRepeatCustomers)
	assert.InDelta(t, 33.33, report.RepeatCustomers.RepeatCustomerRate, 1e-9)
	require.Len(t, report.RepeatCustomers.RepeatCustomers, 1)
	assert.Equal(t, "CUST-001", report.RepeatCustomers.RepeatCustomers[0].CustomerID)
	assert.Equal(t, "John Doe", report.RepeatCustomers.RepeatCustomers[0].CustomerName)
	assert.InDelta(t, 3000.0, report.RepeatCustomers.RepeatCustomers[0].TotalSpent, 1e-9)

	require.NotNil(t, report.MonthlyTrends)
	assert.Equal(t, 2, report.MonthlyTrends.TotalMonths)
	assert.Equal(t, "2024-02", report.MonthlyTrends.MonthlyTrends[0].Period)
	assert.Equal(t, "2024-03", report.MonthlyTrends.MonthlyTrends[1].Period)
	assert.InDelta(t, 4200.0, report.MonthlyTrends.TrendSummary.TotalRevenue, 1e-9)
	assert.Equal(t, "increasing", report.MonthlyTrends.GrowthMetrics.RevenueTrendDirection)

	require.NotNil(t, report.RegionalRevenue)
	assert.Equal(t, 2, report.RegionalRevenue.TotalRegions)
	require.NotEmpty(t, report.RegionalRevenue.RegionalRevenue)
	assert.Equal(t, "North", report.RegionalRevenue.RegionalRevenue[0].Region)
	assert.InDelta(t, 3700.0, report.RegionalRevenue.RegionalRevenue[0].TotalRevenue, 1e-9)

	require.NotNil(t, report.TopCustomers)
	require.NotEmpty(t, report.TopCustomers.TopCustomers)
	topSpender := report.TopCustomers.TopCustomers[0]
	assert.Equal(t, 1, topSpender.Rank)
	assert.Equal(t, "CUST-001", topSpender.CustomerID)
	assert.InDelta(t, 3000.0, topSpender.TotalSpent, 1e-9)
	assert.Equal(t, 2, topSpender.TotalOrders)
	// ORD-1004 predates the 30-day window.
	assert.Equal(t, 2, report.TopCustomers.TimePeriodInfo.TotalCustomersInPeriod)
	assert.Equal(t, 3, report.TopCustomers.TimePeriodInfo.TotalOrdersInPeriod)
}

func TestMemoryEngineKeepsOrphanOrders(t *testing.T) {
	customersPath, ordersPath := writePipelineFixtures(t, fixtureCustomersCSV, fixtureOrphanOrdersXML)
	engine := newTestMemoryEngine()
	ctx := context.Background()

	require.NoError(t, engine.LoadData(ctx, customersPath, ordersPath))

	report, err := engine.CalculateKPIs(ctx)
	require.NoError(t, err)

	// The orphan order stays in the dataset under the Unknown region.
	assert.Equal(t, 2, report.DataSummary.TotalOrders)
	require.NotNil(t, report.RegionalRevenue)
	regions := make(map[string]float64)
	for _, r := range report.RegionalRevenue.RegionalRevenue {
		regions[r.Region] = r.TotalRevenue
	}
	assert.InDelta(t, 900.0, regions["Unknown"], 1e-9)
	assert.InDelta(t, 1000.0, regions["North"], 1e-9)

	quality := engine.DataQualityReport()
	assert.Equal(t, 1, quality.RelationshipQuality.OrdersWithoutCustomers)
	assert.Less(t, quality.RelationshipQuality.DataIntegrityScore, 95.0)
	assert.Contains(t, quality.OverallScore.Recommendations,
		"Add customer records for orders with missing customer data")
}

func TestMemoryEngineExportResults(t *testing.T) {
	customersPath, ordersPath := writePipelineFixtures(t, fixtureCustomersCSV, fixtureOrdersXML)
	engine := newTestMemoryEngine()
	ctx := context.Background()

	require.NoError(t, engine.LoadData(ctx, customersPath, ordersPath))
	_, err := engine.CalculateKPIs(ctx)
	require.NoError(t, err)

	outDir := t.TempDir()
	exported, err := engine.ExportResults(outDir)
	require.NoError(t, err)

	wantKeys := []string{
		"complete_results",
		"repeat_customers",
		"monthly_trends",
		"regional_revenue",
		"top_customers",
		"summary_report",
		"data_quality",
	}
	require.Len(t, exported, len(wantKeys))
	for _, key := range wantKeys {
		path, ok := exported[key]
		require.True(t, ok, "missing export %q", key)
		_, err := os.Stat(path)
		require.NoError(t, err)
	}
	assert.Equal(t, filepath.Join(outDir, "in_memory_kpi_results.json"), exported["complete_results"])
	assert.Equal(t, filepath.Join(outDir, "kpi_repeat_customers.json"), exported["repeat_customers"])
	assert.Equal(t, filepath.Join(outDir, "in_memory_pipeline_summary.json"), exported["summary_report"])
	assert.Equal(t, filepath.Join(outDir, "data_quality_report.json"), exported["data_quality"])

	data, err := os.ReadFile(exported["complete_results"])
	require.NoError(t, err)
	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, EngineInMemory, decoded.Engine)
	assert.Equal(t, 4, decoded.KPIsSucceeded)
	require.NotNil(t, decoded.RepeatCustomers)
	assert.InDelta(t, 33.33, decoded.RepeatCustomers.RepeatCustomerRate, 1e-9)

	data, err = os.ReadFile(exported["summary_report"])
	require.NoError(t, err)
	var summary SummaryReport
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, "SUCCESS", summary.PipelineSummary.ProcessingStatus)
	assert.Equal(t, "North", summary.KeyInsights.MarketDistribution.TopRegion)
	assert.Equal(t, 2, summary.KeyInsights.BusinessGrowth.MonthsAnalyzed)

	data, err = os.ReadFile(exported["data_quality"])
	require.NoError(t, err)
	var quality models.DataQualityReport
	require.NoError(t, json.Unmarshal(data, &quality))
	assert.Equal(t, 100, quality.OverallScore.Score)
	assert.Equal(t, "Excellent", quality.OverallScore.Grade)
}

func TestMemoryEngineCalculateBeforeLoad(t *testing.T) {
	engine := newTestMemoryEngine()
	_, err := engine.CalculateKPIs(context.Background())
	require.ErrorIs(t, err, ingest.ErrDataNotLoaded)
}

func TestMemoryEngineExportBeforeCalculate(t *testing.T) {
	engine := newTestMemoryEngine()
	_, err := engine.ExportResults(t.TempDir())
	require.Error(t, err)
}

func TestMemoryEngineLoadDataMissingFile(t *testing.T) {
	dir := t.TempDir()
	engine := newTestMemoryEngine()
	err := engine.LoadData(context.Background(), filepath.Join(dir, "absent.csv"), filepath.Join(dir, "absent.xml"))
	require.Error(t, err)
}

func TestMemoryEngineCancelledContext(t *testing.T) {
	customersPath, ordersPath := writePipelineFixtures(t, fixtureCustomersCSV, fixtureOrdersXML)
	engine := newTestMemoryEngine()
	require.NoError(t, engine.LoadData(context.Background(), customersPath, ordersPath))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.CalculateKPIs(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
