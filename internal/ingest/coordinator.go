package ingest

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"order-analytics/internal/models"
	"order-analytics/internal/util"
)

var (
	// ErrNoValidRecords is returned when validation drops every record in a file.
	ErrNoValidRecords = errors.New("no valid records after validation")
	// ErrDataNotLoaded is returned by operations requiring both entity sets.
	ErrDataNotLoaded = errors.New("both customer and order data must be processed first")
)

const issueSampleLimit = 5

// Coordinator sequences the two validators and owns the cross-entity checks.
// Consistency problems are reported, never fatal: downstream stages decide
// what to do with orphan orders.
type Coordinator struct {
	customerValidator *CustomerValidator
	orderValidator    *OrderValidator
	logger            *zap.Logger
	now               func() time.Time

	customers    []models.Customer
	orders       []models.Order
	customerErrs []models.FieldError
	orderErrs    []models.FieldError
	enriched     []models.EnrichedOrder
}

func NewCoordinator() *Coordinator {
	return NewCoordinatorAt(time.Now)
}

// NewCoordinatorAt pins the clock used for order-age derivations.
func NewCoordinatorAt(now func() time.Time) *Coordinator {
	return &Coordinator{
		customerValidator: NewCustomerValidator(),
		orderValidator:    NewOrderValidator(),
		logger:            util.GetLogger(),
		now:               now,
	}
}

// ProcessCustomerData validates the customer CSV at path. The batch is
// rejected outright when nothing valid survives.
func (c *Coordinator) ProcessCustomerData(path string) error {
	customers, fieldErrs, err := c.customerValidator.ParseFile(path)
	if err != nil {
		c.logger.Error("Customer ingest failed", zap.String("path", path), zap.Error(err))
		return err
	}
	if len(customers) == 0 {
		c.logger.Error("Customer ingest produced no valid records", zap.String("path", path))
		return fmt.Errorf("%w: %s", ErrNoValidRecords, path)
	}

	c.customers = customers
	c.customerErrs = fieldErrs
	c.enriched = nil
	c.logger.Info("Customer data processed",
		zap.String("path", path),
		zap.Int("valid", len(customers)),
		zap.Int("field_errors", len(fieldErrs)))
	return nil
}

// ProcessOrderData validates the order XML at path. The batch is rejected
// outright when nothing valid survives.
func (c *Coordinator) ProcessOrderData(path string) error {
	orders, fieldErrs, err := c.orderValidator.ParseFile(path)
	if err != nil {
		c.logger.Error("Order ingest failed", zap.String("path", path), zap.Error(err))
		return err
	}
	if len(orders) == 0 {
		c.logger.Error("Order ingest produced no valid records", zap.String("path", path))
		return fmt.Errorf("%w: %s", ErrNoValidRecords, path)
	}

	c.orders = orders
	c.orderErrs = fieldErrs
	c.enriched = nil
	c.logger.Info("Order data processed",
		zap.String("path", path),
		zap.Int("valid", len(orders)),
		zap.Int("field_errors", len(fieldErrs)))
	return nil
}

// ValidateConsistency cross-checks the two entity sets. It reports orphan
// order mobiles, customers with no orders, and duplicate identifiers; the
// first return is true only when no issues were found.
func (c *Coordinator) ValidateConsistency() (bool, []models.ConsistencyIssue) {
	if c.customers == nil || c.orders == nil {
		var missing []string
		if c.customers == nil {
			missing = append(missing, "customers")
		}
		if c.orders == nil {
			missing = append(missing, "orders")
		}
		return false, []models.ConsistencyIssue{
			{Kind: models.IssueDataNotLoaded, Count: 1, Sample: missing},
		}
	}

	customerMobiles := make(map[string]struct{}, len(c.customers))
	for _, cust := range c.customers {
		customerMobiles[cust.MobileNumber] = struct{}{}
	}
	orderMobiles := make(map[string]struct{}, len(c.orders))
	for _, o := range c.orders {
		orderMobiles[o.MobileNumber] = struct{}{}
	}

	var issues []models.ConsistencyIssue
	addIssue := func(kind string, count int, sample []string) {
		if count == 0 {
			return
		}
		issues = append(issues, models.ConsistencyIssue{Kind: kind, Count: count, Sample: sampleOf(sample)})
	}

	orphans := setDifference(orderMobiles, customerMobiles)
	addIssue(models.IssueOrphanOrders, len(orphans), orphans)

	withoutOrders := setDifference(customerMobiles, orderMobiles)
	addIssue(models.IssueCustomersWithoutOrders, len(withoutOrders), withoutOrders)

	customerIDs := make([]string, len(c.customers))
	mobiles := make([]string, len(c.customers))
	for i, cust := range c.customers {
		customerIDs[i] = cust.CustomerID
		mobiles[i] = cust.MobileNumber
	}
	dupCount, dupValues := duplicatedValues(customerIDs)
	addIssue(models.IssueDuplicateCustomerIDs, dupCount, dupValues)
	dupCount, dupValues = duplicatedValues(mobiles)
	addIssue(models.IssueDuplicateMobileNumbers, dupCount, dupValues)

	orderIDs := make([]string, len(c.orders))
	for i, o := range c.orders {
		orderIDs[i] = o.OrderID
	}
	dupCount, dupValues = duplicatedValues(orderIDs)
	addIssue(models.IssueDuplicateOrderIDs, dupCount, dupValues)

	for _, issue := range issues {
		c.logger.Warn("Data consistency issue", zap.String("issue", issue.String()))
	}
	if len(issues) == 0 {
		c.logger.Info("Data consistency validation passed")
		return true, nil
	}
	c.logger.Warn("Data consistency validation failed", zap.Int("issues", len(issues)))
	return false, issues
}

// EnrichedDataset joins orders to customers on mobile number (left join,
// orders kept when no customer matches). The join is computed once and
// cached until either entity set is reprocessed.
func (c *Coordinator) EnrichedDataset() ([]models.EnrichedOrder, error) {
	if c.customers == nil || c.orders == nil {
		return nil, ErrDataNotLoaded
	}
	if c.enriched == nil {
		c.enriched = EnrichOrders(c.customers, c.orders, c.now())
		c.logger.Info("Enriched dataset created", zap.Int("records", len(c.enriched)))
	}
	out := make([]models.EnrichedOrder, len(c.enriched))
	copy(out, c.enriched)
	return out, nil
}

// Summary combines per-entity quality reports, the consistency verdict and
// customer/order coverage into one processing summary.
func (c *Coordinator) Summary() (models.ProcessingSummary, error) {
	if c.customers == nil || c.orders == nil {
		return models.ProcessingSummary{}, ErrDataNotLoaded
	}

	isConsistent, issues := c.ValidateConsistency()

	orderMobiles := make(map[string]struct{}, len(c.orders))
	for _, o := range c.orders {
		orderMobiles[o.MobileNumber] = struct{}{}
	}

	return models.ProcessingSummary{
		ProcessedAt: c.now(),
		Customers: models.EntitySummary{
			TotalRecords:     len(c.customers),
			ValidationErrors: len(c.customerErrs),
			Quality:          c.customerValidator.QualityReport(c.customers, c.customerErrs),
		},
		Orders: models.OrderEntitySummary{
			TotalRecords:     len(c.orders),
			ValidationErrors: len(c.orderErrs),
			Quality:          c.orderValidator.QualityReport(c.orders, c.orderErrs),
		},
		Consistency: models.ConsistencySummary{
			IsConsistent: isConsistent,
			Issues:       issues,
		},
		Coverage: models.CoverageSummary{
			CustomersWithOrders: len(orderMobiles),
			TotalCustomers:      len(c.customers),
			CoveragePct:         float64(len(orderMobiles)) / float64(len(c.customers)) * 100,
		},
	}, nil
}

// Customers returns a copy of the validated customer set.
func (c *Coordinator) Customers() []models.Customer {
	out := make([]models.Customer, len(c.customers))
	copy(out, c.customers)
	return out
}

// Orders returns a copy of the validated order set.
func (c *Coordinator) Orders() []models.Order {
	out := make([]models.Order, len(c.orders))
	copy(out, c.orders)
	return out
}

// EnrichOrders left-joins orders to customers on mobile number and derives
// order age, order month and SKU category relative to now. When mobiles
// collide the first customer wins.
func EnrichOrders(customers []models.Customer, orders []models.Order, now time.Time) []models.EnrichedOrder {
	byMobile := make(map[string]models.Customer, len(customers))
	for _, cust := range customers {
		if _, ok := byMobile[cust.MobileNumber]; !ok {
			byMobile[cust.MobileNumber] = cust
		}
	}

	enriched := make([]models.EnrichedOrder, 0, len(orders))
	for _, o := range orders {
		e := models.EnrichedOrder{
			Order:          o,
			DaysSinceOrder: int(now.Sub(o.OrderDateTime).Hours() / 24),
			OrderMonth:     o.OrderDateTime.Format("2006-01"),
			SKUCategory:    SKUCategory(o.SKUID),
		}
		if cust, ok := byMobile[o.MobileNumber]; ok {
			e.CustomerID = cust.CustomerID
			e.CustomerName = cust.CustomerName
			e.Region = cust.Region
			e.HasCustomer = true
		}
		enriched = append(enriched, e)
	}
	return enriched
}

// setDifference returns the sorted members of a not present in b.
func setDifference(a, b map[string]struct{}) []string {
	var diff []string
	for v := range a {
		if _, ok := b[v]; !ok {
			diff = append(diff, v)
		}
	}
	sort.Strings(diff)
	return diff
}

// duplicatedValues counts occurrences beyond the first of each value, in
// input order.
func duplicatedValues(values []string) (int, []string) {
	seen := make(map[string]struct{}, len(values))
	var dups []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			dups = append(dups, v)
			continue
		}
		seen[v] = struct{}{}
	}
	return len(dups), dups
}

func sampleOf(values []string) []string {
	if len(values) > issueSampleLimit {
		return values[:issueSampleLimit]
	}
	return values
}
