package kpi

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"order-analytics/internal/util"
)

// MonthBucket is one month's base aggregate, the engine-neutral input to
// BuildMonthlyTrendsResult.
type MonthBucket struct {
	Year            int     `db:"year"`
	Month           int     `db:"month"`
	TotalOrders     int     `db:"total_orders"`
	TotalRevenue    float64 `db:"total_revenue"`
	AvgOrderValue   float64 `db:"avg_order_value"`
	RevenueStd      float64 `db:"revenue_std"`
	UniqueCustomers int     `db:"unique_customers"`
}

// MonthlyTrendsCalculator buckets orders by calendar month.
type MonthlyTrendsCalculator struct {
	ds     *Dataset
	logger *zap.Logger
}

func NewMonthlyTrendsCalculator(ds *Dataset) *MonthlyTrendsCalculator {
	return &MonthlyTrendsCalculator{ds: ds.Clone(), logger: util.GetLogger()}
}

func (c *MonthlyTrendsCalculator) Name() string { return KPIMonthlyTrends }

func (c *MonthlyTrendsCalculator) Calculate(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.ds.OrderCount() == 0 {
		c.logger.Warn("Empty orders data provided for monthly trends calculation")
		return BuildMonthlyTrendsResult(nil, c.ds.Now()), nil
	}

	result := BuildMonthlyTrendsResult(c.aggregate(), c.ds.Now())
	c.logger.Info("Monthly trends calculated", zap.Int("months", result.TotalMonths))
	return result, nil
}

// Quarterly aggregates orders by calendar quarter.
func (c *MonthlyTrendsCalculator) Quarterly(ctx context.Context) (QuarterlyTrends, error) {
	if err := ctx.Err(); err != nil {
		return QuarterlyTrends{}, err
	}
	result := QuarterlyTrends{QuarterlyTrends: []QuarterlyTrend{}}
	if c.ds.OrderCount() == 0 {
		return result, nil
	}

	type key struct{ year, quarter int }
	type agg struct {
		orders  int
		revenue float64
		mobiles map[string]struct{}
	}
	buckets := make(map[key]*agg)
	for _, o := range c.ds.orders {
		k := key{o.OrderDateTime.Year(), (int(o.OrderDateTime.Month())-1)/3 + 1}
		a, ok := buckets[k]
		if !ok {
			a = &agg{mobiles: make(map[string]struct{})}
			buckets[k] = a
		}
		a.orders++
		a.revenue += o.TotalAmount
		a.mobiles[o.MobileNumber] = struct{}{}
	}

	keys := make([]key, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].quarter < keys[j].quarter
	})

	for _, k := range keys {
		a := buckets[k]
		result.QuarterlyTrends = append(result.QuarterlyTrends, QuarterlyTrend{
			Quarter:         fmt.Sprintf("%04dQ%d", k.year, k.quarter),
			TotalOrders:     a.orders,
			TotalRevenue:    a.revenue,
			AvgOrderValue:   a.revenue / float64(a.orders),
			UniqueCustomers: len(a.mobiles),
		})
	}
	result.TotalQuarters = len(result.QuarterlyTrends)
	return result, nil
}

// aggregate buckets orders by calendar month.
func (c *MonthlyTrendsCalculator) aggregate() []MonthBucket {
	type key struct{ year, month int }
	type agg struct {
		amounts []float64
		mobiles map[string]struct{}
	}
	buckets := make(map[key]*agg)
	for _, o := range c.ds.orders {
		k := key{o.OrderDateTime.Year(), int(o.OrderDateTime.Month())}
		a, ok := buckets[k]
		if !ok {
			a = &agg{mobiles: make(map[string]struct{})}
			buckets[k] = a
		}
		a.amounts = append(a.amounts, o.TotalAmount)
		a.mobiles[o.MobileNumber] = struct{}{}
	}

	rows := make([]MonthBucket, 0, len(buckets))
	for k, a := range buckets {
		var total float64
		for _, v := range a.amounts {
			total += v
		}
		rows = append(rows, MonthBucket{
			Year:            k.year,
			Month:           k.month,
			TotalOrders:     len(a.amounts),
			TotalRevenue:    total,
			AvgOrderValue:   Mean(a.amounts),
			RevenueStd:      StdDevSample(a.amounts),
			UniqueCustomers: len(a.mobiles),
		})
	}
	return rows
}

// BuildMonthlyTrendsResult derives the month-level trend KPI from per-month
// aggregates. Buckets may arrive in any order; both engines feed this.
func BuildMonthlyTrendsResult(buckets []MonthBucket, now time.Time) MonthlyTrendsResult {
	result := MonthlyTrendsResult{
		MonthlyTrends:   []MonthlyTrend{},
		CalculationDate: now,
	}
	if len(buckets) == 0 {
		return result
	}

	sorted := make([]MonthBucket, len(buckets))
	copy(sorted, buckets)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Year != sorted[j].Year {
			return sorted[i].Year < sorted[j].Year
		}
		return sorted[i].Month < sorted[j].Month
	})

	trends := make([]MonthlyTrend, len(sorted))
	for i, b := range sorted {
		t := MonthlyTrend{
			Period:          fmt.Sprintf("%04d-%02d", b.Year, b.Month),
			Year:            b.Year,
			Month:           b.Month,
			TotalOrders:     b.TotalOrders,
			TotalRevenue:    b.TotalRevenue,
			AvgOrderValue:   b.AvgOrderValue,
			RevenueStd:      b.RevenueStd,
			UniqueCustomers: b.UniqueCustomers,
		}
		if i > 0 {
			t.RevenueGrowthPct = growthPct(sorted[i-1].TotalRevenue, b.TotalRevenue)
			t.OrderGrowthPct = growthPct(float64(sorted[i-1].TotalOrders), float64(b.TotalOrders))
		}
		trends[i] = t
	}

	result.MonthlyTrends = trends
	result.TotalMonths = len(trends)
	result.TrendSummary = buildTrendSummary(trends)
	result.GrowthMetrics = buildGrowthMetrics(trends)
	return result
}

// growthPct is the month-over-month change. A zero base yields 0 rather than
// a division blowup; the first month therefore reports exactly 0.
func growthPct(prev, cur float64) float64 {
	if prev <= 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

func buildTrendSummary(trends []MonthlyTrend) TrendSummary {
	var summary TrendSummary
	if len(trends) == 0 {
		return summary
	}

	peakRev, lowRev, peakOrd, lowOrd := 0, 0, 0, 0
	for i, t := range trends {
		summary.TotalRevenue += t.TotalRevenue
		summary.TotalOrders += t.TotalOrders
		if t.TotalRevenue > trends[peakRev].TotalRevenue {
			peakRev = i
		}
		if t.TotalRevenue < trends[lowRev].TotalRevenue {
			lowRev = i
		}
		if t.TotalOrders > trends[peakOrd].TotalOrders {
			peakOrd = i
		}
		if t.TotalOrders < trends[lowOrd].TotalOrders {
			lowOrd = i
		}
	}

	n := float64(len(trends))
	summary.AvgMonthlyRevenue = summary.TotalRevenue / n
	summary.AvgMonthlyOrders = float64(summary.TotalOrders) / n
	summary.PeakRevenueMonth = snapshotOf(trends[peakRev])
	summary.LowRevenueMonth = snapshotOf(trends[lowRev])
	summary.PeakOrdersMonth = snapshotOf(trends[peakOrd])
	summary.LowOrdersMonth = snapshotOf(trends[lowOrd])
	return summary
}

func snapshotOf(t MonthlyTrend) MonthSnapshot {
	return MonthSnapshot{Period: t.Period, Revenue: t.TotalRevenue, Orders: t.TotalOrders}
}

func buildGrowthMetrics(trends []MonthlyTrend) GrowthMetrics {
	if len(trends) < 2 {
		return GrowthMetrics{}
	}

	revGrowths := make([]float64, 0, len(trends)-1)
	ordGrowths := make([]float64, 0, len(trends)-1)
	for _, t := range trends[1:] {
		revGrowths = append(revGrowths, t.RevenueGrowthPct)
		ordGrowths = append(ordGrowths, t.OrderGrowthPct)
	}

	first, last := trends[0], trends[len(trends)-1]
	metrics := GrowthMetrics{
		AvgMonthlyRevenueGrowthPct: Mean(revGrowths),
		AvgMonthlyOrderGrowthPct:   Mean(ordGrowths),
		RevenueGrowthVolatility:    StdDevSample(revGrowths),
		OrderGrowthVolatility:      StdDevSample(ordGrowths),
		AnalysisPeriod: AnalysisPeriod{
			Start:          first.Period,
			End:            last.Period,
			MonthsAnalyzed: len(trends),
		},
	}
	if first.TotalRevenue > 0 {
		metrics.OverallRevenueGrowthPct = (last.TotalRevenue - first.TotalRevenue) / first.TotalRevenue * 100
	}
	if first.TotalOrders > 0 {
		metrics.OverallOrderGrowthPct = float64(last.TotalOrders-first.TotalOrders) / float64(first.TotalOrders) * 100
	}
	metrics.RevenueTrendDirection = trendDirection(metrics.AvgMonthlyRevenueGrowthPct)
	metrics.OrderTrendDirection = trendDirection(metrics.AvgMonthlyOrderGrowthPct)
	return metrics
}

func trendDirection(avgGrowth float64) string {
	switch {
	case avgGrowth > 0:
		return "increasing"
	case avgGrowth < 0:
		return "decreasing"
	default:
		return "stable"
	}
}
