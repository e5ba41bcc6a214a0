package kpi

import (
	"context"
	"time"
)

// KPI names, used as result keys, cache keys and export file suffixes.
const (
	KPIRepeatCustomers = "repeat_customers"
	KPIMonthlyTrends   = "monthly_trends"
	KPIRegionalRevenue = "regional_revenue"
	KPITopCustomers    = "top_customers"
)

// Calculator is the computation contract shared by every KPI regardless of
// the engine feeding it. Implementations never fail on empty or degenerate
// input; they return the documented empty result instead.
type Calculator interface {
	Name() string
	Calculate(ctx context.Context) (Result, error)
}

// Result is implemented by every typed KPI result.
type Result interface {
	KPIName() string
	CalculatedAt() time.Time
}
