package kpi

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"order-analytics/internal/util"
)

// unknownLabel replaces identity fields of orders with no matching customer.
const unknownLabel = "Unknown"

// RepeatCustomersCalculator finds customers with more than one order.
type RepeatCustomersCalculator struct {
	ds     *Dataset
	logger *zap.Logger
}

func NewRepeatCustomersCalculator(ds *Dataset) *RepeatCustomersCalculator {
	return &RepeatCustomersCalculator{ds: ds.Clone(), logger: util.GetLogger()}
}

func (c *RepeatCustomersCalculator) Name() string { return KPIRepeatCustomers }

func (c *RepeatCustomersCalculator) Calculate(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.ds.CustomerCount() == 0 || c.ds.OrderCount() == 0 {
		c.logger.Warn("Empty data provided for repeat customers calculation")
		return BuildRepeatCustomersResult(nil, c.ds.CustomerCount(), c.ds.Now()), nil
	}

	result := BuildRepeatCustomersResult(c.aggregate(), c.ds.CustomerCount(), c.ds.Now())
	c.logger.Info("Repeat customers calculated",
		zap.Int("repeat_customers", result.TotalRepeatCustomers),
		zap.Int("total_customers", result.TotalCustomers),
		zap.Float64("repeat_rate", result.RepeatCustomerRate))
	return result, nil
}

// ByRegion breaks the repeat customers down by region.
func (c *RepeatCustomersCalculator) ByRegion(ctx context.Context) (RegionalRepeatBreakdown, error) {
	if err := ctx.Err(); err != nil {
		return RegionalRepeatBreakdown{}, err
	}
	if c.ds.CustomerCount() == 0 || c.ds.OrderCount() == 0 {
		return BuildRegionalRepeatBreakdown(nil), nil
	}
	result := BuildRepeatCustomersResult(c.aggregate(), c.ds.CustomerCount(), c.ds.Now())
	return BuildRegionalRepeatBreakdown(result.RepeatCustomers), nil
}

// aggregate groups orders by mobile number and joins customer identity.
// Orphan mobiles keep their aggregates under the Unknown identity.
func (c *RepeatCustomersCalculator) aggregate() []RepeatCustomer {
	type agg struct {
		count int
		total float64
	}
	byMobile := make(map[string]*agg)
	for _, o := range c.ds.orders {
		a, ok := byMobile[o.MobileNumber]
		if !ok {
			a = &agg{}
			byMobile[o.MobileNumber] = a
		}
		a.count++
		a.total += o.TotalAmount
	}

	identity := c.ds.customerByMobile()
	rows := make([]RepeatCustomer, 0, len(byMobile))
	for mobile, a := range byMobile {
		row := RepeatCustomer{
			CustomerID:    unknownLabel,
			CustomerName:  unknownLabel,
			MobileNumber:  mobile,
			Region:        unknownLabel,
			OrderCount:    a.count,
			TotalSpent:    a.total,
			AvgOrderValue: a.total / float64(a.count),
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

// BuildRepeatCustomersResult derives the repeat-customer KPI from
// per-customer order aggregates. Both engines feed it: the in-memory engine
// from its dataset, the table engine from SQL aggregation rows. Rows with a
// single order are filtered here, so callers may pass either all customers
// or pre-filtered repeat rows.
func BuildRepeatCustomersResult(rows []RepeatCustomer, totalCustomers int, now time.Time) RepeatCustomersResult {
	result := RepeatCustomersResult{
		RepeatCustomers: []RepeatCustomer{},
		TotalCustomers:  totalCustomers,
		CalculationDate: now,
	}

	repeat := make([]RepeatCustomer, 0, len(rows))
	for _, r := range rows {
		if r.OrderCount > 1 {
			repeat = append(repeat, r)
		}
	}
	if len(repeat) == 0 {
		return result
	}

	sort.Slice(repeat, func(i, j int) bool {
		if repeat[i].TotalSpent != repeat[j].TotalSpent {
			return repeat[i].TotalSpent > repeat[j].TotalSpent
		}
		if repeat[i].OrderCount != repeat[j].OrderCount {
			return repeat[i].OrderCount > repeat[j].OrderCount
		}
		return repeat[i].MobileNumber < repeat[j].MobileNumber
	})

	for _, r := range repeat {
		result.OrdersByRepeatCustomers += r.OrderCount
		result.RevenueByRepeatCustomers += r.TotalSpent
	}
	result.RepeatCustomers = repeat
	result.TotalRepeatCustomers = len(repeat)
	if totalCustomers > 0 {
		result.RepeatCustomerRate = Round2(float64(len(repeat)) / float64(totalCustomers) * 100)
	}
	return result
}

// BuildRegionalRepeatBreakdown groups repeat customers by region. The
// regional average order value is the mean of per-customer averages, not an
// order-weighted mean.
func BuildRegionalRepeatBreakdown(repeat []RepeatCustomer) RegionalRepeatBreakdown {
	breakdown := RegionalRepeatBreakdown{Regions: map[string]RegionRepeatStats{}}
	if len(repeat) == 0 {
		return breakdown
	}

	type agg struct {
		customers int
		orders    int
		revenue   float64
		avgSum    float64
	}
	byRegion := make(map[string]*agg)
	for _, r := range repeat {
		a, ok := byRegion[r.Region]
		if !ok {
			a = &agg{}
			byRegion[r.Region] = a
		}
		a.customers++
		a.orders += r.OrderCount
		a.revenue += r.TotalSpent
		a.avgSum += r.AvgOrderValue
	}

	for region, a := range byRegion {
		breakdown.Regions[region] = RegionRepeatStats{
			RepeatCustomersCount: a.customers,
			TotalOrders:          a.orders,
			TotalRevenue:         a.revenue,
			AvgOrderValue:        a.avgSum / float64(a.customers),
		}
	}
	breakdown.TotalRegions = len(breakdown.Regions)
	return breakdown
}
