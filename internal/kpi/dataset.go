package kpi

import (
	"math"
	"time"

	"order-analytics/internal/ingest"
	"order-analytics/internal/models"
)

// Dataset is a snapshot of validated customers and orders handed to the
// in-memory calculators. Every calculator receives its own clone, so a
// misbehaving computation cannot leak state into its siblings.
type Dataset struct {
	customers []models.Customer
	orders    []models.Order
	now       time.Time

	enriched []models.EnrichedOrder
}

// NewDataset snapshots the given slices against the current time.
func NewDataset(customers []models.Customer, orders []models.Order) *Dataset {
	return NewDatasetAt(customers, orders, time.Now())
}

// NewDatasetAt pins the reference time used for order-age and
// trailing-window derivations.
func NewDatasetAt(customers []models.Customer, orders []models.Order, now time.Time) *Dataset {
	d := &Dataset{
		customers: make([]models.Customer, len(customers)),
		orders:    make([]models.Order, len(orders)),
		now:       now,
	}
	copy(d.customers, customers)
	copy(d.orders, orders)
	for i := range d.orders {
		d.orders[i] = sanitizeOrder(d.orders[i])
	}
	return d
}

// sanitizeOrder coerces values the calculators cannot work with: quantities
// below one and negative or NaN amounts.
func sanitizeOrder(o models.Order) models.Order {
	if o.SKUCount < 1 {
		o.SKUCount = 1
	}
	if math.IsNaN(o.TotalAmount) || o.TotalAmount < 0 {
		o.TotalAmount = 0
	}
	return o
}

// Clone returns an independent copy sharing nothing with the receiver.
func (d *Dataset) Clone() *Dataset {
	return NewDatasetAt(d.customers, d.orders, d.now)
}

func (d *Dataset) Now() time.Time { return d.now }

func (d *Dataset) CustomerCount() int { return len(d.customers) }

func (d *Dataset) OrderCount() int { return len(d.orders) }

// Enriched returns the order-to-customer join, computed once and cached.
func (d *Dataset) Enriched() []models.EnrichedOrder {
	if d.enriched == nil {
		d.enriched = ingest.EnrichOrders(d.customers, d.orders, d.now)
	}
	return d.enriched
}

// customerByMobile indexes customers by mobile number, first match winning.
func (d *Dataset) customerByMobile() map[string]models.Customer {
	byMobile := make(map[string]models.Customer, len(d.customers))
	for _, c := range d.customers {
		if _, ok := byMobile[c.MobileNumber]; !ok {
			byMobile[c.MobileNumber] = c
		}
	}
	return byMobile
}

// DateRange bounds the order timestamps in a dataset.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SummaryStats is the cross-engine headline view of one dataset.
type SummaryStats struct {
	TotalCustomers int       `json:"total_customers"`
	TotalOrders    int       `json:"total_orders"`
	TotalRevenue   float64   `json:"total_revenue"`
	AvgOrderValue  float64   `json:"avg_order_value"`
	DateRange      DateRange `json:"date_range"`
	Regions        int       `json:"regions"`
}

// SummaryStats aggregates the headline numbers both engines must agree on.
func (d *Dataset) SummaryStats() SummaryStats {
	stats := SummaryStats{
		TotalCustomers: len(d.customers),
		TotalOrders:    len(d.orders),
	}
	if len(d.orders) == 0 {
		return stats
	}

	regions := make(map[string]struct{})
	minDate, maxDate := d.orders[0].OrderDateTime, d.orders[0].OrderDateTime
	for _, e := range d.Enriched() {
		stats.TotalRevenue += e.TotalAmount
		if e.OrderDateTime.Before(minDate) {
			minDate = e.OrderDateTime
		}
		if e.OrderDateTime.After(maxDate) {
			maxDate = e.OrderDateTime
		}
		if e.HasCustomer {
			regions[e.Region] = struct{}{}
		}
	}
	stats.AvgOrderValue = stats.TotalRevenue / float64(len(d.orders))
	stats.DateRange = DateRange{Start: minDate, End: maxDate}
	stats.Regions = len(regions)
	return stats
}
