package kpi

import "time"

// RepeatCustomer is one customer with more than one order. The db tags let
// the table engine scan its aggregation rows directly into this type.
type RepeatCustomer struct {
	CustomerID    string  `db:"customer_id" json:"customer_id"`
	CustomerName  string  `db:"customer_name" json:"customer_name"`
	MobileNumber  string  `db:"mobile_number" json:"mobile_number"`
	Region        string  `db:"region" json:"region"`
	OrderCount    int     `db:"order_count" json:"order_count"`
	TotalSpent    float64 `db:"total_spent" json:"total_spent"`
	AvgOrderValue float64 `db:"avg_order_value" json:"avg_order_value"`
}

// RepeatCustomersResult lists repeat customers sorted by total spent.
type RepeatCustomersResult struct {
	RepeatCustomers          []RepeatCustomer `json:"repeat_customers"`
	TotalRepeatCustomers     int              `json:"total_repeat_customers"`
	TotalCustomers           int              `json:"total_customers"`
	RepeatCustomerRate       float64          `json:"repeat_customer_rate"`
	OrdersByRepeatCustomers  int              `json:"total_orders_by_repeat_customers"`
	RevenueByRepeatCustomers float64          `json:"revenue_by_repeat_customers"`
	CalculationDate          time.Time        `json:"calculation_date"`
}

func (r RepeatCustomersResult) KPIName() string { return KPIRepeatCustomers }
func (r RepeatCustomersResult) CalculatedAt() time.Time { return r.CalculationDate }

// RegionRepeatStats aggregates the repeat customers of one region.
type RegionRepeatStats struct {
	RepeatCustomersCount int     `json:"repeat_customers_count"`
	TotalOrders          int     `json:"total_orders"`
	TotalRevenue         float64 `json:"total_revenue"`
	AvgOrderValue        float64 `json:"avg_order_value"`
}

// RegionalRepeatBreakdown groups repeat customers by region.
type RegionalRepeatBreakdown struct {
	Regions      map[string]RegionRepeatStats `json:"regions"`
	TotalRegions int                          `json:"total_regions"`
}

// MonthlyTrend is one month's order aggregate with month-over-month growth.
type MonthlyTrend struct {
	Period           string  `json:"period"`
	Year             int     `json:"year"`
	Month            int     `json:"month"`
	TotalOrders      int     `json:"total_orders"`
	TotalRevenue     float64 `json:"total_revenue"`
	AvgOrderValue    float64 `json:"avg_order_value"`
	RevenueStd       float64 `json:"revenue_std"`
	UniqueCustomers  int     `json:"unique_customers"`
	RevenueGrowthPct float64 `json:"revenue_growth_pct"`
	OrderGrowthPct   float64 `json:"order_growth_pct"`
}

// MonthSnapshot names one month together with its revenue and order count.
type MonthSnapshot struct {
	Period  string  `json:"period"`
	Revenue float64 `json:"revenue"`
	Orders  int     `json:"orders"`
}

// TrendSummary is the whole-period view over all months.
type TrendSummary struct {
	TotalRevenue      float64       `json:"total_revenue"`
	TotalOrders       int           `json:"total_orders"`
	AvgMonthlyRevenue float64       `json:"avg_monthly_revenue"`
	AvgMonthlyOrders  float64       `json:"avg_monthly_orders"`
	PeakRevenueMonth  MonthSnapshot `json:"peak_revenue_month"`
	LowRevenueMonth   MonthSnapshot `json:"low_revenue_month"`
	PeakOrdersMonth   MonthSnapshot `json:"peak_orders_month"`
	LowOrdersMonth    MonthSnapshot `json:"low_orders_month"`
}

// AnalysisPeriod bounds a growth analysis.
type AnalysisPeriod struct {
	Start          string `json:"start"`
	End            string `json:"end"`
	MonthsAnalyzed int    `json:"months_analyzed"`
}

// GrowthMetrics summarizes month-over-month movement. It is zero when fewer
// than two months are present.
type GrowthMetrics struct {
	AvgMonthlyRevenueGrowthPct float64        `json:"avg_monthly_revenue_growth_pct"`
	AvgMonthlyOrderGrowthPct   float64        `json:"avg_monthly_order_growth_pct"`
	RevenueGrowthVolatility    float64        `json:"revenue_growth_volatility"`
	OrderGrowthVolatility      float64        `json:"order_growth_volatility"`
	OverallRevenueGrowthPct    float64        `json:"overall_revenue_growth_pct"`
	OverallOrderGrowthPct      float64        `json:"overall_order_growth_pct"`
	RevenueTrendDirection      string         `json:"revenue_trend_direction"`
	OrderTrendDirection        string         `json:"order_trend_direction"`
	AnalysisPeriod             AnalysisPeriod `json:"analysis_period"`
}

// MonthlyTrendsResult is the month-level trend analysis.
type MonthlyTrendsResult struct {
	MonthlyTrends   []MonthlyTrend `json:"monthly_trends"`
	TrendSummary    TrendSummary   `json:"trend_summary"`
	GrowthMetrics   GrowthMetrics  `json:"growth_metrics"`
	TotalMonths     int            `json:"total_months"`
	CalculationDate time.Time      `json:"calculation_date"`
}

func (r MonthlyTrendsResult) KPIName() string { return KPIMonthlyTrends }
func (r MonthlyTrendsResult) CalculatedAt() time.Time { return r.CalculationDate }

// QuarterlyTrend aggregates one calendar quarter.
type QuarterlyTrend struct {
	Quarter         string  `json:"quarter"`
	TotalOrders     int     `json:"total_orders"`
	TotalRevenue    float64 `json:"total_revenue"`
	AvgOrderValue   float64 `json:"avg_order_value"`
	UniqueCustomers int     `json:"unique_customers"`
}

// QuarterlyTrends groups orders by calendar quarter.
type QuarterlyTrends struct {
	QuarterlyTrends []QuarterlyTrend `json:"quarterly_trends"`
	TotalQuarters   int              `json:"total_quarters"`
}

// RegionRevenue is one region's revenue aggregate with its global shares.
type RegionRevenue struct {
	Region             string  `json:"region"`
	TotalOrders        int     `json:"total_orders"`
	TotalRevenue       float64 `json:"total_revenue"`
	AvgOrderValue      float64 `json:"avg_order_value"`
	RevenueStd         float64 `json:"revenue_std"`
	MinOrderValue      float64 `json:"min_order_value"`
	MaxOrderValue      float64 `json:"max_order_value"`
	UniqueCustomers    int     `json:"unique_customers"`
	TotalItemsSold     int     `json:"total_items_sold"`
	RevenueSharePct    float64 `json:"revenue_share_pct"`
	OrderSharePct      float64 `json:"order_share_pct"`
	CustomerSharePct   float64 `json:"customer_share_pct"`
	RevenuePerCustomer float64 `json:"revenue_per_customer"`
}

// RevenueRank places one region in the revenue leaderboard.
type RevenueRank struct {
	Region          string  `json:"region"`
	TotalRevenue    float64 `json:"total_revenue"`
	RevenueSharePct float64 `json:"revenue_share_pct"`
}

// OrderRank places one region in the order-count leaderboard.
type OrderRank struct {
	Region        string  `json:"region"`
	TotalOrders   int     `json:"total_orders"`
	OrderSharePct float64 `json:"order_share_pct"`
}

// CustomerRank places one region in the unique-customer leaderboard.
type CustomerRank struct {
	Region           string  `json:"region"`
	UniqueCustomers  int     `json:"unique_customers"`
	CustomerSharePct float64 `json:"customer_share_pct"`
}

// AvgOrderValueRank places one region in the average-order-value leaderboard.
type AvgOrderValueRank struct {
	Region        string  `json:"region"`
	AvgOrderValue float64 `json:"avg_order_value"`
	TotalOrders   int     `json:"total_orders"`
}

// TopRegions holds the top-3 leaderboards per metric.
type TopRegions struct {
	ByRevenue       []RevenueRank       `json:"by_revenue"`
	ByOrders        []OrderRank         `json:"by_orders"`
	ByCustomers     []CustomerRank      `json:"by_customers"`
	ByAvgOrderValue []AvgOrderValueRank `json:"by_avg_order_value"`
}

// RegionPeak is the strongest calendar month of one region.
type RegionPeak struct {
	PeakMonth   string  `json:"peak_month"`
	PeakRevenue float64 `json:"peak_revenue"`
	PeakOrders  int     `json:"peak_orders"`
}

// SeasonalPatterns maps each region to its peak month.
type SeasonalPatterns struct {
	RegionPeakMonths     map[string]RegionPeak `json:"region_peak_months"`
	TotalRegionsAnalyzed int                   `json:"total_regions_analyzed"`
}

// PerformanceSpread bounds regional revenue.
type PerformanceSpread struct {
	MaxRevenue float64 `json:"max_revenue"`
	MinRevenue float64 `json:"min_revenue"`
	RevenueStd float64 `json:"revenue_std"`
}

// RegionalMetrics carries the cross-region concentration and diversity
// measures.
type RegionalMetrics struct {
	RevenueConcentrationIndex float64           `json:"revenue_concentration_index"`
	DiversityIndex            float64           `json:"diversity_index"`
	RevenueGapRatio           float64           `json:"revenue_gap_ratio"`
	AvgRevenuePerRegion       float64           `json:"avg_revenue_per_region"`
	AvgCustomersPerRegion     float64           `json:"avg_customers_per_region"`
	AvgOrdersPerRegion        float64           `json:"avg_orders_per_region"`
	SeasonalPatterns          SeasonalPatterns  `json:"seasonal_patterns"`
	PerformanceSpread         PerformanceSpread `json:"performance_spread"`
}

// RegionalRevenueResult is the per-region revenue analysis, regions sorted by
// revenue descending.
type RegionalRevenueResult struct {
	RegionalRevenue []RegionRevenue `json:"regional_revenue"`
	TopRegions      TopRegions      `json:"top_regions"`
	RegionalMetrics RegionalMetrics `json:"regional_metrics"`
	TotalRegions    int             `json:"total_regions"`
	CalculationDate time.Time       `json:"calculation_date"`
}

func (r RegionalRevenueResult) KPIName() string { return KPIRegionalRevenue }
func (r RegionalRevenueResult) CalculatedAt() time.Time { return r.CalculationDate }

// TopCustomer is one ranked customer in the trailing spending window.
type TopCustomer struct {
	Rank           int       `json:"rank"`
	CustomerID     string    `json:"customer_id"`
	CustomerName   string    `json:"customer_name"`
	MobileNumber   string    `json:"mobile_number"`
	Region         string    `json:"region"`
	TotalSpent     float64   `json:"total_spent"`
	TotalOrders    int       `json:"total_orders"`
	AvgOrderValue  float64   `json:"avg_order_value"`
	SpendingStd    float64   `json:"spending_std"`
	TotalItems     int       `json:"total_items"`
	UniqueOrders   int       `json:"unique_orders"`
	DaysActive     int       `json:"days_active"`
	OrdersPerDay   float64   `json:"orders_per_day"`
	SpendingPerDay float64   `json:"spending_per_day"`
	FirstOrderDate time.Time `json:"first_order_date"`
	LastOrderDate  time.Time `json:"last_order_date"`
}

// TopCustomerSnapshot is the single highest spender.
type TopCustomerSnapshot struct {
	CustomerName string  `json:"customer_name"`
	TotalSpent   float64 `json:"total_spent"`
	TotalOrders  int     `json:"total_orders"`
}

// SpendingDistribution describes per-customer spending in the window.
type SpendingDistribution struct {
	MinSpending    float64 `json:"min_spending"`
	MaxSpending    float64 `json:"max_spending"`
	MedianSpending float64 `json:"median_spending"`
	P75Spending    float64 `json:"p75_spending"`
	P90Spending    float64 `json:"p90_spending"`
	P95Spending    float64 `json:"p95_spending"`
	StdSpending    float64 `json:"std_spending"`
}

// RevenueConcentration measures how much revenue the top decile carries.
type RevenueConcentration struct {
	Top10PctRevenueShare float64 `json:"top_10_pct_customers_revenue_share"`
	CustomersInTop10Pct  int     `json:"customers_in_top_10_pct"`
}

// SpendingSummary is the whole-window spending analysis.
type SpendingSummary struct {
	TotalRevenue          float64              `json:"total_revenue"`
	TotalCustomers        int                  `json:"total_customers"`
	TotalOrders           int                  `json:"total_orders"`
	AvgRevenuePerCustomer float64              `json:"avg_revenue_per_customer"`
	AvgOrdersPerCustomer  float64              `json:"avg_orders_per_customer"`
	TopCustomer           TopCustomerSnapshot  `json:"top_customer"`
	SpendingDistribution  SpendingDistribution `json:"spending_distribution"`
	RevenueConcentration  RevenueConcentration `json:"revenue_concentration"`
}

// CustomerSegment is one spending band with its aggregate stats.
type CustomerSegment struct {
	Segment               string  `json:"segment"`
	CustomerCount         int     `json:"customer_count"`
	TotalRevenue          float64 `json:"total_revenue"`
	AvgRevenuePerCustomer float64 `json:"avg_revenue_per_customer"`
	AvgOrdersPerCustomer  float64 `json:"avg_orders_per_customer"`
	AvgOrderValue         float64 `json:"avg_order_value"`
	CustomerSharePct      float64 `json:"customer_share_pct"`
	RevenueSharePct       float64 `json:"revenue_share_pct"`
}

// SegmentThresholds records the percentile cut points used to segment.
type SegmentThresholds struct {
	VIPThreshold         float64 `json:"vip_threshold"`
	HighValueThreshold   float64 `json:"high_value_threshold"`
	MediumValueThreshold float64 `json:"medium_value_threshold"`
	LowValueThreshold    float64 `json:"low_value_threshold"`
}

// RegionalSegmentCount counts one segment's customers in one region.
type RegionalSegmentCount struct {
	Region        string `json:"region"`
	Segment       string `json:"segment"`
	CustomerCount int    `json:"customer_count"`
}

// CustomerSegments is the spending-band segmentation of the window.
type CustomerSegments struct {
	Segments             []CustomerSegment      `json:"segments"`
	TotalSegments        int                    `json:"total_segments"`
	SegmentThresholds    SegmentThresholds      `json:"segment_thresholds"`
	RegionalDistribution []RegionalSegmentCount `json:"regional_distribution"`
}

// PeriodRange bounds the orders observed inside the window.
type PeriodRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TimePeriodInfo describes the trailing analysis window.
type TimePeriodInfo struct {
	DaysAnalyzed           int         `json:"days_analyzed"`
	CutoffDate             time.Time   `json:"cutoff_date"`
	AnalysisDate           time.Time   `json:"analysis_date"`
	TotalCustomersInPeriod int         `json:"total_customers_in_period"`
	TotalOrdersInPeriod    int         `json:"total_orders_in_period"`
	DateRange              PeriodRange `json:"date_range"`
}

// TopCustomersResult ranks spenders over the trailing window.
type TopCustomersResult struct {
	TopCustomers     []TopCustomer    `json:"top_customers"`
	SpendingSummary  SpendingSummary  `json:"spending_summary"`
	CustomerSegments CustomerSegments `json:"customer_segments"`
	TimePeriodInfo   TimePeriodInfo   `json:"time_period_info"`
	CalculationDate  time.Time        `json:"calculation_date"`
}

func (r TopCustomersResult) KPIName() string { return KPITopCustomers }
func (r TopCustomersResult) CalculatedAt() time.Time { return r.CalculationDate }
