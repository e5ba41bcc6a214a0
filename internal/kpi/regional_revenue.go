package kpi

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"order-analytics/internal/util"
)

// RegionBucket is one region's base aggregate, the engine-neutral input to
// BuildRegionalRevenueResult.
type RegionBucket struct {
	Region          string  `db:"region"`
	TotalOrders     int     `db:"total_orders"`
	TotalRevenue    float64 `db:"total_revenue"`
	AvgOrderValue   float64 `db:"avg_order_value"`
	RevenueStd      float64 `db:"revenue_std"`
	MinOrderValue   float64 `db:"min_order_value"`
	MaxOrderValue   float64 `db:"max_order_value"`
	UniqueCustomers int     `db:"unique_customers"`
	TotalItemsSold  int     `db:"total_items_sold"`
}

// RegionMonthBucket is one region-month revenue cell feeding the seasonal
// peak analysis. MonthName is the English month name, so the same month of
// different years aggregates together.
type RegionMonthBucket struct {
	Region    string  `db:"region"`
	MonthName string  `db:"month_name"`
	Revenue   float64 `db:"revenue"`
	Orders    int     `db:"orders"`
}

// RegionalRevenueCalculator distributes revenue across customer regions.
// Orders without a matching customer are kept under the Unknown region.
type RegionalRevenueCalculator struct {
	ds     *Dataset
	logger *zap.Logger
}

func NewRegionalRevenueCalculator(ds *Dataset) *RegionalRevenueCalculator {
	return &RegionalRevenueCalculator{ds: ds.Clone(), logger: util.GetLogger()}
}

func (c *RegionalRevenueCalculator) Name() string { return KPIRegionalRevenue }

func (c *RegionalRevenueCalculator) Calculate(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.ds.CustomerCount() == 0 || c.ds.OrderCount() == 0 {
		c.logger.Warn("Empty data provided for regional revenue calculation")
		return BuildRegionalRevenueResult(nil, nil, c.ds.Now()), nil
	}

	buckets, regionMonths := c.aggregate()
	result := BuildRegionalRevenueResult(buckets, regionMonths, c.ds.Now())
	c.logger.Info("Regional revenue calculated", zap.Int("regions", result.TotalRegions))
	return result, nil
}

// aggregate groups the enriched join by region, and by region-month for the
// seasonal analysis.
func (c *RegionalRevenueCalculator) aggregate() ([]RegionBucket, []RegionMonthBucket) {
	type agg struct {
		amounts []float64
		mobiles map[string]struct{}
		items   int
	}
	byRegion := make(map[string]*agg)

	type monthKey struct{ region, month string }
	type monthAgg struct {
		revenue float64
		orders  int
	}
	byRegionMonth := make(map[monthKey]*monthAgg)

	unmapped := 0
	for _, e := range c.ds.Enriched() {
		region := e.Region
		if !e.HasCustomer {
			region = unknownLabel
			unmapped++
		}

		a, ok := byRegion[region]
		if !ok {
			a = &agg{mobiles: make(map[string]struct{})}
			byRegion[region] = a
		}
		a.amounts = append(a.amounts, e.TotalAmount)
		a.mobiles[e.MobileNumber] = struct{}{}
		a.items += e.SKUCount

		mk := monthKey{region, e.OrderDateTime.Month().String()}
		ma, ok := byRegionMonth[mk]
		if !ok {
			ma = &monthAgg{}
			byRegionMonth[mk] = ma
		}
		ma.revenue += e.TotalAmount
		ma.orders++
	}
	if unmapped > 0 {
		c.logger.Warn("Orders found without region mapping", zap.Int("count", unmapped))
	}

	buckets := make([]RegionBucket, 0, len(byRegion))
	for region, a := range byRegion {
		minAmount, maxAmount := a.amounts[0], a.amounts[0]
		for _, v := range a.amounts {
			if v < minAmount {
				minAmount = v
			}
			if v > maxAmount {
				maxAmount = v
			}
		}
		var total float64
		for _, v := range a.amounts {
			total += v
		}
		buckets = append(buckets, RegionBucket{
			Region:          region,
			TotalOrders:     len(a.amounts),
			TotalRevenue:    total,
			AvgOrderValue:   Mean(a.amounts),
			RevenueStd:      StdDevSample(a.amounts),
			MinOrderValue:   minAmount,
			MaxOrderValue:   maxAmount,
			UniqueCustomers: len(a.mobiles),
			TotalItemsSold:  a.items,
		})
	}

	regionMonths := make([]RegionMonthBucket, 0, len(byRegionMonth))
	for mk, ma := range byRegionMonth {
		regionMonths = append(regionMonths, RegionMonthBucket{
			Region:    mk.region,
			MonthName: mk.month,
			Revenue:   ma.revenue,
			Orders:    ma.orders,
		})
	}
	return buckets, regionMonths
}

// BuildRegionalRevenueResult derives the regional revenue KPI from
// per-region aggregates and region-month cells. Both engines feed this;
// shares, rankings and concentration measures are computed here so the
// engines agree by construction.
func BuildRegionalRevenueResult(buckets []RegionBucket, regionMonths []RegionMonthBucket, now time.Time) RegionalRevenueResult {
	result := RegionalRevenueResult{
		RegionalRevenue: []RegionRevenue{},
		CalculationDate: now,
	}
	if len(buckets) == 0 {
		return result
	}

	rows := make([]RegionRevenue, len(buckets))
	var totalRevenue float64
	var totalOrders, totalCustomers int
	for i, b := range buckets {
		rows[i] = RegionRevenue{
			Region:          b.Region,
			TotalOrders:     b.TotalOrders,
			TotalRevenue:    b.TotalRevenue,
			AvgOrderValue:   b.AvgOrderValue,
			RevenueStd:      b.RevenueStd,
			MinOrderValue:   b.MinOrderValue,
			MaxOrderValue:   b.MaxOrderValue,
			UniqueCustomers: b.UniqueCustomers,
			TotalItemsSold:  b.TotalItemsSold,
		}
		totalRevenue += b.TotalRevenue
		totalOrders += b.TotalOrders
		totalCustomers += b.UniqueCustomers
	}

	for i := range rows {
		if totalRevenue > 0 {
			rows[i].RevenueSharePct = rows[i].TotalRevenue / totalRevenue * 100
		}
		if totalOrders > 0 {
			rows[i].OrderSharePct = float64(rows[i].TotalOrders) / float64(totalOrders) * 100
		}
		if totalCustomers > 0 {
			rows[i].CustomerSharePct = float64(rows[i].UniqueCustomers) / float64(totalCustomers) * 100
		}
		if rows[i].UniqueCustomers > 0 {
			rows[i].RevenuePerCustomer = rows[i].TotalRevenue / float64(rows[i].UniqueCustomers)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalRevenue != rows[j].TotalRevenue {
			return rows[i].TotalRevenue > rows[j].TotalRevenue
		}
		return rows[i].Region < rows[j].Region
	})

	result.RegionalRevenue = rows
	result.TotalRegions = len(rows)
	result.TopRegions = buildTopRegions(rows)
	result.RegionalMetrics = buildRegionalMetrics(rows, regionMonths)
	return result
}

func buildTopRegions(rows []RegionRevenue) TopRegions {
	top := TopRegions{
		ByRevenue:       []RevenueRank{},
		ByOrders:        []OrderRank{},
		ByCustomers:     []CustomerRank{},
		ByAvgOrderValue: []AvgOrderValueRank{},
	}

	n := 3
	if len(rows) < n {
		n = len(rows)
	}

	// rows arrive revenue-sorted already.
	for _, r := range rows[:n] {
		top.ByRevenue = append(top.ByRevenue, RevenueRank{
			Region:          r.Region,
			TotalRevenue:    r.TotalRevenue,
			RevenueSharePct: r.RevenueSharePct,
		})
	}
	for _, r := range rankedCopy(rows, func(a, b RegionRevenue) bool { return a.TotalOrders > b.TotalOrders })[:n] {
		top.ByOrders = append(top.ByOrders, OrderRank{
			Region:        r.Region,
			TotalOrders:   r.TotalOrders,
			OrderSharePct: r.OrderSharePct,
		})
	}
	for _, r := range rankedCopy(rows, func(a, b RegionRevenue) bool { return a.UniqueCustomers > b.UniqueCustomers })[:n] {
		top.ByCustomers = append(top.ByCustomers, CustomerRank{
			Region:           r.Region,
			UniqueCustomers:  r.UniqueCustomers,
			CustomerSharePct: r.CustomerSharePct,
		})
	}
	for _, r := range rankedCopy(rows, func(a, b RegionRevenue) bool { return a.AvgOrderValue > b.AvgOrderValue })[:n] {
		top.ByAvgOrderValue = append(top.ByAvgOrderValue, AvgOrderValueRank{
			Region:        r.Region,
			AvgOrderValue: r.AvgOrderValue,
			TotalOrders:   r.TotalOrders,
		})
	}
	return top
}

// rankedCopy stable-sorts a copy, preserving the revenue order between ties.
func rankedCopy(rows []RegionRevenue, more func(a, b RegionRevenue) bool) []RegionRevenue {
	out := make([]RegionRevenue, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool { return more(out[i], out[j]) })
	return out
}

func buildRegionalMetrics(rows []RegionRevenue, regionMonths []RegionMonthBucket) RegionalMetrics {
	revenues := make([]float64, len(rows))
	var totalRevenue float64
	var totalOrders, totalCustomers int
	for i, r := range rows {
		revenues[i] = r.TotalRevenue
		totalRevenue += r.TotalRevenue
		totalOrders += r.TotalOrders
		totalCustomers += r.UniqueCustomers
	}

	minRevenue, maxRevenue := revenues[0], revenues[0]
	for _, v := range revenues {
		if v < minRevenue {
			minRevenue = v
		}
		if v > maxRevenue {
			maxRevenue = v
		}
	}

	n := float64(len(rows))
	metrics := RegionalMetrics{
		RevenueConcentrationIndex: giniIndex(revenues),
		DiversityIndex:            shannonDiversity(revenues, totalRevenue),
		AvgRevenuePerRegion:       totalRevenue / n,
		AvgCustomersPerRegion:     float64(totalCustomers) / n,
		AvgOrdersPerRegion:        float64(totalOrders) / n,
		SeasonalPatterns:          buildSeasonalPatterns(regionMonths),
		PerformanceSpread: PerformanceSpread{
			MaxRevenue: maxRevenue,
			MinRevenue: minRevenue,
			RevenueStd: StdDevSample(revenues),
		},
	}
	if minRevenue > 0 {
		metrics.RevenueGapRatio = maxRevenue / minRevenue
	}
	return metrics
}

// giniIndex measures revenue concentration across regions, 0 when fewer than
// two regions or no revenue.
func giniIndex(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sorted := sortedCopy(values)
	var total, weighted float64
	for i, v := range sorted {
		total += v
		weighted += float64(i+1) * v
	}
	if total <= 0 {
		return 0
	}
	return 2*weighted/(float64(n)*total) - float64(n+1)/float64(n)
}

// shannonDiversity is the revenue share entropy normalized by its maximum,
// 0 for a single region or no revenue.
func shannonDiversity(values []float64, total float64) float64 {
	if len(values) < 2 || total <= 0 {
		return 0
	}
	var entropy float64
	for _, v := range values {
		share := v / total
		if share > 0 {
			entropy -= share * math.Log(share)
		}
	}
	return entropy / math.Log(float64(len(values)))
}

func buildSeasonalPatterns(regionMonths []RegionMonthBucket) SeasonalPatterns {
	patterns := SeasonalPatterns{RegionPeakMonths: map[string]RegionPeak{}}
	if len(regionMonths) == 0 {
		return patterns
	}

	// Merge cells that name the same region-month, then scan in a stable
	// order so ties resolve deterministically.
	type cellKey struct{ region, month string }
	merged := make(map[cellKey]*monthCell)
	for _, cell := range regionMonths {
		k := cellKey{cell.Region, cell.MonthName}
		m, ok := merged[k]
		if !ok {
			m = &monthCell{}
			merged[k] = m
		}
		m.revenue += cell.Revenue
		m.orders += cell.Orders
	}

	keys := make([]cellKey, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].region != keys[j].region {
			return keys[i].region < keys[j].region
		}
		return keys[i].month < keys[j].month
	})

	for _, k := range keys {
		m := merged[k]
		peak, ok := patterns.RegionPeakMonths[k.region]
		if !ok || m.revenue > peak.PeakRevenue {
			patterns.RegionPeakMonths[k.region] = RegionPeak{
				PeakMonth:   k.month,
				PeakRevenue: m.revenue,
				PeakOrders:  m.orders,
			}
		}
	}
	patterns.TotalRegionsAnalyzed = len(patterns.RegionPeakMonths)
	return patterns
}

type monthCell struct {
	revenue float64
	orders  int
}
