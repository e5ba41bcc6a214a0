package kpi

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"order-analytics/internal/util"
)

// Customer segments from highest to lowest spending band.
var segmentOrder = []string{"VIP", "High Value", "Medium Value", "Low Value", "Minimal"}

// CustomerSpending is one customer's aggregate inside the trailing window,
// the engine-neutral input to BuildTopCustomersResult. Identity fields may
// arrive empty for orphan mobiles; the builder fills them with Unknown.
type CustomerSpending struct {
	MobileNumber   string    `db:"mobile_number"`
	CustomerID     string    `db:"customer_id"`
	CustomerName   string    `db:"customer_name"`
	Region         string    `db:"region"`
	TotalSpent     float64   `db:"total_spent"`
	AvgOrderValue  float64   `db:"avg_order_value"`
	TotalOrders    int       `db:"total_orders"`
	SpendingStd    float64   `db:"spending_std"`
	TotalItems     int       `db:"total_items"`
	UniqueOrders   int       `db:"unique_orders"`
	FirstOrderDate time.Time `db:"first_order_date"`
	LastOrderDate  time.Time `db:"last_order_date"`
}

// TopCustomersCalculator ranks spenders over a trailing window of days.
type TopCustomersCalculator struct {
	ds     *Dataset
	days   int
	topN   int
	logger *zap.Logger
}

func NewTopCustomersCalculator(ds *Dataset, days, topN int) *TopCustomersCalculator {
	return &TopCustomersCalculator{ds: ds.Clone(), days: days, topN: topN, logger: util.GetLogger()}
}

func (c *TopCustomersCalculator) Name() string { return KPITopCustomers }

// Cutoff is the inclusive lower bound of the analysis window.
func (c *TopCustomersCalculator) Cutoff() time.Time {
	return c.ds.Now().AddDate(0, 0, -c.days)
}

func (c *TopCustomersCalculator) Calculate(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cutoff := c.Cutoff()
	if c.ds.CustomerCount() == 0 || c.ds.OrderCount() == 0 {
		c.logger.Warn("Empty data provided for top customers calculation")
		return BuildTopCustomersResult(nil, c.topN, c.days, cutoff, c.ds.Now()), nil
	}

	rows := c.aggregate(cutoff)
	if len(rows) == 0 {
		c.logger.Warn("No orders found in analysis window", zap.Int("days", c.days))
	}
	result := BuildTopCustomersResult(rows, c.topN, c.days, cutoff, c.ds.Now())
	c.logger.Info("Top customers calculated",
		zap.Int("ranked", len(result.TopCustomers)),
		zap.Int("customers_in_period", result.TimePeriodInfo.TotalCustomersInPeriod))
	return result, nil
}

// aggregate groups window orders by mobile number and joins identity.
func (c *TopCustomersCalculator) aggregate(cutoff time.Time) []CustomerSpending {
	type agg struct {
		amounts  []float64
		items    int
		orderIDs map[string]struct{}
		first    time.Time
		last     time.Time
	}
	byMobile := make(map[string]*agg)
	for _, o := range c.ds.orders {
		if o.OrderDateTime.Before(cutoff) {
			continue
		}
		a, ok := byMobile[o.MobileNumber]
		if !ok {
			a = &agg{
				orderIDs: make(map[string]struct{}),
				first:    o.OrderDateTime,
				last:     o.OrderDateTime,
			}
			byMobile[o.MobileNumber] = a
		}
		a.amounts = append(a.amounts, o.TotalAmount)
		a.items += o.SKUCount
		a.orderIDs[o.OrderID] = struct{}{}
		if o.OrderDateTime.Before(a.first) {
			a.first = o.OrderDateTime
		}
		if o.OrderDateTime.After(a.last) {
			a.last = o.OrderDateTime
		}
	}

	identity := c.ds.customerByMobile()
	rows := make([]CustomerSpending, 0, len(byMobile))
	for mobile, a := range byMobile {
		var total float64
		for _, v := range a.amounts {
			total += v
		}
		row := CustomerSpending{
			MobileNumber:   mobile,
			TotalSpent:     total,
			AvgOrderValue:  Mean(a.amounts),
			TotalOrders:    len(a.amounts),
			SpendingStd:    StdDevSample(a.amounts),
			TotalItems:     a.items,
			UniqueOrders:   len(a.orderIDs),
			FirstOrderDate: a.first,
			LastOrderDate:  a.last,
		}
		if cust, ok := identity[mobile]; ok {
			row.CustomerID = cust.CustomerID
			row.CustomerName = cust.CustomerName
			row.Region = cust.Region
		}
		rows = append(rows, row)
	}
	return rows
}

// BuildTopCustomersResult derives the top-customer KPI from per-customer
// window aggregates. Both engines feed this; ranking, distribution and
// segmentation are computed here so the engines agree by construction.
func BuildTopCustomersResult(rows []CustomerSpending, topN, days int, cutoff, now time.Time) TopCustomersResult {
	result := TopCustomersResult{
		TopCustomers:    []TopCustomer{},
		CalculationDate: now,
		TimePeriodInfo: TimePeriodInfo{
			DaysAnalyzed: days,
			CutoffDate:   cutoff,
			AnalysisDate: now,
		},
	}
	if len(rows) == 0 {
		return result
	}

	sorted := make([]CustomerSpending, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MobileNumber < sorted[j].MobileNumber })
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TotalSpent > sorted[j].TotalSpent })

	for i := range sorted {
		if sorted[i].CustomerID == "" {
			sorted[i].CustomerID = unknownLabel
		}
		if sorted[i].CustomerName == "" {
			sorted[i].CustomerName = unknownLabel
		}
		if sorted[i].Region == "" {
			sorted[i].Region = unknownLabel
		}
	}

	n := topN
	if n > len(sorted) {
		n = len(sorted)
	}
	if n < 0 {
		n = 0
	}
	top := make([]TopCustomer, 0, n)
	for i, r := range sorted[:n] {
		daysActive := int(r.LastOrderDate.Sub(r.FirstOrderDate).Hours()/24) + 1
		top = append(top, TopCustomer{
			Rank:           i + 1,
			CustomerID:     r.CustomerID,
			CustomerName:   r.CustomerName,
			MobileNumber:   r.MobileNumber,
			Region:         r.Region,
			TotalSpent:     r.TotalSpent,
			TotalOrders:    r.TotalOrders,
			AvgOrderValue:  r.AvgOrderValue,
			SpendingStd:    r.SpendingStd,
			TotalItems:     r.TotalItems,
			UniqueOrders:   r.UniqueOrders,
			DaysActive:     daysActive,
			OrdersPerDay:   float64(r.TotalOrders) / float64(daysActive),
			SpendingPerDay: r.TotalSpent / float64(daysActive),
			FirstOrderDate: r.FirstOrderDate,
			LastOrderDate:  r.LastOrderDate,
		})
	}

	minStart, maxEnd := sorted[0].FirstOrderDate, sorted[0].LastOrderDate
	var totalOrdersInPeriod int
	for _, r := range sorted {
		if r.FirstOrderDate.Before(minStart) {
			minStart = r.FirstOrderDate
		}
		if r.LastOrderDate.After(maxEnd) {
			maxEnd = r.LastOrderDate
		}
		totalOrdersInPeriod += r.TotalOrders
	}

	result.TopCustomers = top
	result.SpendingSummary = buildSpendingSummary(sorted)
	result.CustomerSegments = buildCustomerSegments(sorted)
	result.TimePeriodInfo.TotalCustomersInPeriod = len(sorted)
	result.TimePeriodInfo.TotalOrdersInPeriod = totalOrdersInPeriod
	result.TimePeriodInfo.DateRange = PeriodRange{Start: minStart, End: maxEnd}
	return result
}

// buildSpendingSummary expects rows sorted by total spent descending.
func buildSpendingSummary(sorted []CustomerSpending) SpendingSummary {
	var totalRevenue float64
	var totalOrders int
	spends := make([]float64, len(sorted))
	for i, r := range sorted {
		totalRevenue += r.TotalSpent
		totalOrders += r.TotalOrders
		spends[i] = r.TotalSpent
	}
	customers := float64(len(sorted))
	asc := sortedCopy(spends)

	topDecile := len(sorted) / 10
	if topDecile < 1 {
		topDecile = 1
	}
	var topRevenue float64
	for _, r := range sorted[:topDecile] {
		topRevenue += r.TotalSpent
	}
	var concentration float64
	if totalRevenue > 0 {
		concentration = topRevenue / totalRevenue * 100
	}

	return SpendingSummary{
		TotalRevenue:          totalRevenue,
		TotalCustomers:        len(sorted),
		TotalOrders:           totalOrders,
		AvgRevenuePerCustomer: totalRevenue / customers,
		AvgOrdersPerCustomer:  float64(totalOrders) / customers,
		TopCustomer: TopCustomerSnapshot{
			CustomerName: sorted[0].CustomerName,
			TotalSpent:   sorted[0].TotalSpent,
			TotalOrders:  sorted[0].TotalOrders,
		},
		SpendingDistribution: SpendingDistribution{
			MinSpending:    asc[0],
			MaxSpending:    asc[len(asc)-1],
			MedianSpending: Percentile(asc, 0.5),
			P75Spending:    Percentile(asc, 0.75),
			P90Spending:    Percentile(asc, 0.9),
			P95Spending:    Percentile(asc, 0.95),
			StdSpending:    StdDevSample(spends),
		},
		RevenueConcentration: RevenueConcentration{
			Top10PctRevenueShare: concentration,
			CustomersInTop10Pct:  topDecile,
		},
	}
}

func buildCustomerSegments(sorted []CustomerSpending) CustomerSegments {
	spends := make([]float64, len(sorted))
	var totalRevenue float64
	for i, r := range sorted {
		spends[i] = r.TotalSpent
		totalRevenue += r.TotalSpent
	}
	asc := sortedCopy(spends)

	thresholds := SegmentThresholds{
		VIPThreshold:         Percentile(asc, 0.8),
		HighValueThreshold:   Percentile(asc, 0.6),
		MediumValueThreshold: Percentile(asc, 0.4),
		LowValueThreshold:    Percentile(asc, 0.2),
	}
	classify := func(spent float64) string {
		switch {
		case spent >= thresholds.VIPThreshold:
			return "VIP"
		case spent >= thresholds.HighValueThreshold:
			return "High Value"
		case spent >= thresholds.MediumValueThreshold:
			return "Medium Value"
		case spent >= thresholds.LowValueThreshold:
			return "Low Value"
		default:
			return "Minimal"
		}
	}

	type agg struct {
		count     int
		revenue   float64
		orders    int
		avgValues float64
	}
	byName := make(map[string]*agg)
	type regionSegKey struct{ region, segment string }
	regionCounts := make(map[regionSegKey]int)

	for _, r := range sorted {
		seg := classify(r.TotalSpent)
		a, ok := byName[seg]
		if !ok {
			a = &agg{}
			byName[seg] = a
		}
		a.count++
		a.revenue += r.TotalSpent
		a.orders += r.TotalOrders
		a.avgValues += r.AvgOrderValue
		regionCounts[regionSegKey{r.Region, seg}]++
	}

	segments := make([]CustomerSegment, 0, len(byName))
	for _, name := range segmentOrder {
		a, ok := byName[name]
		if !ok {
			continue
		}
		seg := CustomerSegment{
			Segment:               name,
			CustomerCount:         a.count,
			TotalRevenue:          a.revenue,
			AvgRevenuePerCustomer: a.revenue / float64(a.count),
			AvgOrdersPerCustomer:  float64(a.orders) / float64(a.count),
			AvgOrderValue:         a.avgValues / float64(a.count),
			CustomerSharePct:      float64(a.count) / float64(len(sorted)) * 100,
		}
		if totalRevenue > 0 {
			seg.RevenueSharePct = a.revenue / totalRevenue * 100
		}
		segments = append(segments, seg)
	}

	keys := make([]regionSegKey, 0, len(regionCounts))
	for k := range regionCounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].region != keys[j].region {
			return keys[i].region < keys[j].region
		}
		return keys[i].segment < keys[j].segment
	})
	dist := make([]RegionalSegmentCount, 0, len(keys))
	for _, k := range keys {
		dist = append(dist, RegionalSegmentCount{
			Region:        k.region,
			Segment:       k.segment,
			CustomerCount: regionCounts[k],
		})
	}

	return CustomerSegments{
		Segments:             segments,
		TotalSegments:        len(segments),
		SegmentThresholds:    thresholds,
		RegionalDistribution: dist,
	}
}
