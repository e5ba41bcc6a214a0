package models

import (
	"fmt"
	"time"
)

// Region values accepted for a customer record. Matching is exact and
// case-sensitive.
var ValidRegions = []string{"North", "South", "East", "West", "Central", "Northeast"}

// Customer represents one validated customer record.
type Customer struct {
	CustomerID   string    `db:"customer_id" json:"customer_id"`
	CustomerName string    `db:"customer_name" json:"customer_name"`
	MobileNumber string    `db:"mobile_number" json:"mobile_number"`
	Region       string    `db:"region" json:"region"`
	CreatedAt    time.Time `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Order represents one validated order record. OrderDateRaw preserves the
// original date string exactly as it appeared in the source file.
type Order struct {
	OrderID       string    `db:"order_id" json:"order_id"`
	MobileNumber  string    `db:"mobile_number" json:"mobile_number"`
	OrderDateTime time.Time `db:"order_date_time" json:"order_date_time"`
	OrderDateRaw  string    `db:"order_date_raw" json:"order_date_raw"`
	SKUID         string    `db:"sku_id" json:"sku_id"`
	SKUCount      int       `db:"sku_count" json:"sku_count"`
	TotalAmount   float64   `db:"total_amount" json:"total_amount"`
	CreatedAt     time.Time `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// UnitPrice returns total_amount divided by sku_count, the figure checked
// against the plausibility band during validation.
func (o Order) UnitPrice() float64 {
	if o.SKUCount <= 0 {
		return 0
	}
	return o.TotalAmount / float64(o.SKUCount)
}

// Unit-price plausibility band. Orders outside it are accepted but flagged.
const (
	UnitPriceMin = 10.0
	UnitPriceMax = 100000.0
)

// EnrichedOrder is an order left-joined onto its customer by mobile number,
// with derived columns used by the KPI calculators.
type EnrichedOrder struct {
	Order
	CustomerID     string `json:"customer_id"`
	CustomerName   string `json:"customer_name"`
	Region         string `json:"region"`
	HasCustomer    bool   `json:"has_customer"`
	DaysSinceOrder int    `json:"days_since_order"`
	OrderMonth     string `json:"order_month"`
	SKUCategory    string `json:"sku_category"`
}

// FieldError describes one per-record validation failure. Row is the source
// row number for CSV input (data rows start at 2) or the 1-based element
// ordinal for XML input.
type FieldError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
}

// CustomerQualityReport summarizes the outcome of one customer batch.
type CustomerQualityReport struct {
	TotalRecords           int            `json:"total_records"`
	ValidationErrors       int            `json:"validation_errors"`
	RegionDistribution     map[string]int `json:"region_distribution"`
	DuplicateCustomerIDs   int            `json:"duplicate_customer_ids"`
	DuplicateMobileNumbers int            `json:"duplicate_mobile_numbers"`
	MobileNumberStats      LengthStats    `json:"mobile_number_stats"`
}

// LengthStats holds min/max/avg string lengths.
type LengthStats struct {
	MinLength int     `json:"min_length"`
	MaxLength int     `json:"max_length"`
	AvgLength float64 `json:"avg_length"`
}

// OrderQualityReport summarizes the outcome of one order batch.
type OrderQualityReport struct {
	TotalOrders         int              `json:"total_orders"`
	ValidationErrors    int              `json:"validation_errors"`
	SuspiciousUnitPrice int              `json:"suspicious_unit_price"`
	DateRange           DateRangeStats   `json:"date_range"`
	AmountStats         AmountStats      `json:"amount_stats"`
	QuantityStats       QuantityStats    `json:"quantity_stats"`
	SKUAnalysis         SKUAnalysis      `json:"sku_analysis"`
	CustomerAnalysis    CustomerAnalysis `json:"customer_analysis"`
	DuplicateOrderIDs   int              `json:"duplicate_order_ids"`
}

type DateRangeStats struct {
	MinDate  time.Time `json:"min_date"`
	MaxDate  time.Time `json:"max_date"`
	DaysSpan int       `json:"days_span"`
}

type AmountStats struct {
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Avg          float64 `json:"avg"`
	TotalRevenue float64 `json:"total_revenue"`
}

type QuantityStats struct {
	Min        int     `json:"min"`
	Max        int     `json:"max"`
	Avg        float64 `json:"avg"`
	TotalItems int     `json:"total_items"`
}

type SKUAnalysis struct {
	UniqueSKUs        int `json:"unique_skus"`
	TotalSKUInstances int `json:"total_sku_instances"`
}

type CustomerAnalysis struct {
	UniqueCustomers      int     `json:"unique_customers"`
	TotalOrders          int     `json:"total_orders"`
	AvgOrdersPerCustomer float64 `json:"avg_orders_per_customer"`
}

// Consistency issue kinds reported by the data coordinator.
const (
	IssueOrphanOrders           = "orphan_orders"
	IssueCustomersWithoutOrders = "customers_without_orders"
	IssueDuplicateCustomerIDs   = "duplicate_customer_ids"
	IssueDuplicateMobileNumbers = "duplicate_mobile_numbers"
	IssueDuplicateOrderIDs      = "duplicate_order_ids"
	IssueDataNotLoaded          = "data_not_loaded"
)

// ConsistencyIssue is one named cross-entity finding. Sample carries at most
// five offending values.
type ConsistencyIssue struct {
	Kind   string   `json:"kind"`
	Count  int      `json:"count"`
	Sample []string `json:"sample,omitempty"`
}

func (i ConsistencyIssue) String() string {
	if len(i.Sample) > 0 {
		return fmt.Sprintf("%s: %d (sample: %v)", i.Kind, i.Count, i.Sample)
	}
	return fmt.Sprintf("%s: %d", i.Kind, i.Count)
}

// ProcessingSummary is the coordinator's combined view of one ingest run.
type ProcessingSummary struct {
	ProcessedAt time.Time          `json:"processed_at"`
	Customers   EntitySummary      `json:"customers"`
	Orders      OrderEntitySummary `json:"orders"`
	Consistency ConsistencySummary `json:"consistency"`
	Coverage    CoverageSummary    `json:"coverage"`
}

type EntitySummary struct {
	TotalRecords     int                   `json:"total_records"`
	ValidationErrors int                   `json:"validation_errors"`
	Quality          CustomerQualityReport `json:"quality"`
}

type OrderEntitySummary struct {
	TotalRecords     int                `json:"total_records"`
	ValidationErrors int                `json:"validation_errors"`
	Quality          OrderQualityReport `json:"quality"`
}

type ConsistencySummary struct {
	IsConsistent bool               `json:"is_consistent"`
	Issues       []ConsistencyIssue `json:"issues"`
}

type CoverageSummary struct {
	CustomersWithOrders int     `json:"customers_with_orders"`
	TotalCustomers      int     `json:"total_customers"`
	CoveragePct         float64 `json:"coverage_pct"`
}

// BatchResult reports one bulk upsert into the persisted store.
type BatchResult struct {
	Attempted      int      `json:"attempted"`
	Inserted       int      `json:"inserted"`
	Updated        int      `json:"updated"`
	Failed         int      `json:"failed"`
	OrphansSkipped int      `json:"orphans_skipped"`
	OrphanSample   []string `json:"orphan_sample,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// KPIResultRecord is one row of the kpi_results cache table.
type KPIResultRecord struct {
	ID              int64     `db:"id" json:"id"`
	KPIName         string    `db:"kpi_name" json:"kpi_name"`
	Engine          string    `db:"engine" json:"engine"`
	CalculationDate time.Time `db:"calculation_date" json:"calculation_date"`
	Parameters      string    `db:"parameters" json:"parameters"`
	ResultCount     int       `db:"result_count" json:"result_count"`
	ResultValue     float64   `db:"result_value" json:"result_value"`
	ResultJSON      []byte    `db:"result_json" json:"result_json,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// DataQualityReport is the pipeline-level quality assessment.
type DataQualityReport struct {
	AssessmentDate      time.Time           `json:"assessment_date"`
	CustomerDataQuality CustomerDataQuality `json:"customer_data_quality"`
	OrderDataQuality    OrderDataQuality    `json:"order_data_quality"`
	RelationshipQuality RelationshipQuality `json:"relationship_quality"`
	OverallScore        QualityScore        `json:"overall_score"`
}

type CustomerDataQuality struct {
	TotalRecords           int            `json:"total_records"`
	DuplicateMobileNumbers int            `json:"duplicate_mobile_numbers"`
	MissingNames           int            `json:"missing_names"`
	MissingRegions         int            `json:"missing_regions"`
	UniqueRegions          int            `json:"unique_regions"`
	RegionDistribution     map[string]int `json:"region_distribution"`
}

type OrderDataQuality struct {
	TotalRecords      int            `json:"total_records"`
	DuplicateOrderIDs int            `json:"duplicate_order_ids"`
	ZeroAmounts       int            `json:"zero_amounts"`
	NegativeAmounts   int            `json:"negative_amounts"`
	DateRange         DateRangeStats `json:"date_range"`
	AmountStats       AmountStats    `json:"amount_stats"`
}

type RelationshipQuality struct {
	OrdersWithoutCustomers int     `json:"orders_without_customers"`
	CustomersWithoutOrders int     `json:"customers_without_orders"`
	DataIntegrityScore     float64 `json:"data_integrity_score"`
}

type QualityScore struct {
	Score           int      `json:"score"`
	Grade           string   `json:"grade"`
	Recommendations []string `json:"recommendations"`
}
