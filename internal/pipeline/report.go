package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"order-analytics/internal/kpi"
	"order-analytics/internal/models"
	"order-analytics/internal/util"
)

// Engine names recorded on persisted results, cache keys and exports.
const (
	EngineInMemory    = "in_memory"
	EngineTableBacked = "table_backed"
)

// Params are the tunables of one KPI run.
type Params struct {
	TopCustomersCount int `json:"top_customers_count"`
	TopSpendersDays   int `json:"top_spenders_days"`
}

// KPIStatus records the outcome of one KPI calculation within a run.
type KPIStatus struct {
	Name            string  `json:"name"`
	Success         bool    `json:"success"`
	Error           string  `json:"error,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Report is the complete outcome of one pipeline run: every KPI result that
// succeeded plus per-KPI status. A failed KPI leaves its slot nil and the
// rest of the run intact.
type Report struct {
	Engine          string           `json:"engine"`
	RunID           string           `json:"run_id"`
	CalculationDate time.Time        `json:"calculation_date"`
	Parameters      Params           `json:"parameters"`
	DataSummary     kpi.SummaryStats `json:"data_summary"`

	RepeatCustomers *kpi.RepeatCustomersResult `json:"repeat_customers,omitempty"`
	MonthlyTrends   *kpi.MonthlyTrendsResult   `json:"monthly_trends,omitempty"`
	RegionalRevenue *kpi.RegionalRevenueResult `json:"regional_revenue,omitempty"`
	TopCustomers    *kpi.TopCustomersResult    `json:"top_customers,omitempty"`

	KPIStatuses    []KPIStatus `json:"kpi_statuses"`
	KPIsCalculated int         `json:"kpis_calculated"`
	KPIsSucceeded  int         `json:"kpis_succeeded"`
}

func newReport(engine, runID string, params Params, now time.Time) *Report {
	return &Report{
		Engine:          engine,
		RunID:           runID,
		CalculationDate: now,
		Parameters:      params,
	}
}

// attach stores a successful result in its typed slot.
func (r *Report) attach(res kpi.Result) {
	switch v := res.(type) {
	case kpi.RepeatCustomersResult:
		r.RepeatCustomers = &v
	case kpi.MonthlyTrendsResult:
		r.MonthlyTrends = &v
	case kpi.RegionalRevenueResult:
		r.RegionalRevenue = &v
	case kpi.TopCustomersResult:
		r.TopCustomers = &v
	}
}

// recordStatus appends the outcome of one calculation and bumps the counters.
func (r *Report) recordStatus(name string, err error, elapsed time.Duration) {
	status := KPIStatus{Name: name, Success: err == nil, DurationSeconds: elapsed.Seconds()}
	if err != nil {
		status.Error = err.Error()
	} else {
		r.KPIsSucceeded++
	}
	r.KPIsCalculated++
	r.KPIStatuses = append(r.KPIStatuses, status)
}

// Results returns the attached results in canonical KPI order.
func (r *Report) Results() []kpi.Result {
	var out []kpi.Result
	if r.RepeatCustomers != nil {
		out = append(out, *r.RepeatCustomers)
	}
	if r.MonthlyTrends != nil {
		out = append(out, *r.MonthlyTrends)
	}
	if r.RegionalRevenue != nil {
		out = append(out, *r.RegionalRevenue)
	}
	if r.TopCustomers != nil {
		out = append(out, *r.TopCustomers)
	}
	return out
}

// resultRecord flattens one KPI result into a kpi_results row. The headline
// count and value carried beside the full JSON depend on the KPI.
func resultRecord(engine string, params Params, res kpi.Result) (models.KPIResultRecord, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return models.KPIResultRecord{}, fmt.Errorf("marshal %s result: %w", res.KPIName(), err)
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return models.KPIResultRecord{}, fmt.Errorf("marshal parameters: %w", err)
	}

	rec := models.KPIResultRecord{
		KPIName:         res.KPIName(),
		Engine:          engine,
		CalculationDate: res.CalculatedAt(),
		Parameters:      string(paramsJSON),
		ResultJSON:      payload,
	}
	switch v := res.(type) {
	case kpi.RepeatCustomersResult:
		rec.ResultCount = v.TotalRepeatCustomers
		rec.ResultValue = v.RepeatCustomerRate
	case kpi.MonthlyTrendsResult:
		rec.ResultCount = v.TotalMonths
		rec.ResultValue = v.TrendSummary.TotalRevenue
	case kpi.RegionalRevenueResult:
		rec.ResultCount = v.TotalRegions
		rec.ResultValue = v.RegionalMetrics.RevenueConcentrationIndex
	case kpi.TopCustomersResult:
		rec.ResultCount = len(v.TopCustomers)
		rec.ResultValue = v.SpendingSummary.TotalRevenue
	}
	return rec, nil
}

// calculation names one KPI computation step.
type calculation struct {
	name string
	run  func(context.Context) (kpi.Result, error)
}

// runCalculations executes each step, recording per-KPI status, metrics and
// results. A failing step is skipped so the others still run; a cancelled
// context aborts the remainder.
func runCalculations(ctx context.Context, engine string, report *Report, steps []calculation, logger *zap.Logger) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			util.PipelineRunsTotal.WithLabelValues(engine, "aborted").Inc()
			return err
		}

		start := time.Now()
		res, err := step.run(ctx)
		elapsed := time.Since(start)

		report.recordStatus(step.name, err, elapsed)
		util.KPICalculationLatency.WithLabelValues(engine, step.name).Observe(elapsed.Seconds())
		if err != nil {
			util.KPICalculationsTotal.WithLabelValues(engine, step.name, "error").Inc()
			logger.Error("KPI calculation failed",
				zap.String("engine", engine),
				zap.String("kpi", step.name),
				zap.Error(err))
			continue
		}

		util.KPICalculationsTotal.WithLabelValues(engine, step.name, "success").Inc()
		report.attach(res)
		logger.Info("KPI calculated",
			zap.String("engine", engine),
			zap.String("kpi", step.name),
			zap.Duration("elapsed", elapsed))
	}

	status := "success"
	if report.KPIsSucceeded < report.KPIsCalculated {
		status = "partial"
	}
	util.PipelineRunsTotal.WithLabelValues(engine, status).Inc()
	return nil
}

// SummaryReport is the headline rollup exported alongside the raw results.
type SummaryReport struct {
	PipelineSummary PipelineSummary `json:"pipeline_summary"`
	KeyInsights     KeyInsights     `json:"key_insights"`
}

type PipelineSummary struct {
	Engine           string        `json:"engine"`
	CalculationDate  time.Time     `json:"calculation_date"`
	ProcessingStatus string        `json:"processing_status"`
	DataProcessed    DataProcessed `json:"data_processed"`
}

type DataProcessed struct {
	Customers int     `json:"customers"`
	Orders    int     `json:"orders"`
	Revenue   float64 `json:"revenue"`
}

type KeyInsights struct {
	CustomerRetention  RetentionInsight `json:"customer_retention"`
	BusinessGrowth     GrowthInsight    `json:"business_growth"`
	MarketDistribution MarketInsight    `json:"market_distribution"`
	CustomerValue      ValueInsight     `json:"customer_value"`
}

type RetentionInsight struct {
	RepeatCustomers  int     `json:"repeat_customers"`
	RetentionRatePct float64 `json:"retention_rate_pct"`
}

type GrowthInsight struct {
	MonthsAnalyzed int    `json:"months_analyzed"`
	GrowthTrend    string `json:"growth_trend"`
}

type MarketInsight struct {
	RegionsCovered int    `json:"regions_covered"`
	TopRegion      string `json:"top_region"`
}

type ValueInsight struct {
	VIPCustomers int     `json:"vip_customers"`
	VIPThreshold float64 `json:"vip_threshold"`
}

// SummaryReport condenses the run into its headline insights. Slots for KPIs
// that failed keep their zero values.
func (r *Report) SummaryReport() SummaryReport {
	status := "SUCCESS"
	if r.KPIsSucceeded < r.KPIsCalculated || r.KPIsCalculated == 0 {
		status = "PARTIAL"
	}

	out := SummaryReport{
		PipelineSummary: PipelineSummary{
			Engine:           r.Engine,
			CalculationDate:  r.CalculationDate,
			ProcessingStatus: status,
			DataProcessed: DataProcessed{
				Customers: r.DataSummary.TotalCustomers,
				Orders:    r.DataSummary.TotalOrders,
				Revenue:   r.DataSummary.TotalRevenue,
			},
		},
		KeyInsights: KeyInsights{
			BusinessGrowth:     GrowthInsight{GrowthTrend: "unknown"},
			MarketDistribution: MarketInsight{TopRegion: "N/A"},
		},
	}

	if r.RepeatCustomers != nil {
		out.KeyInsights.CustomerRetention = RetentionInsight{
			RepeatCustomers:  r.RepeatCustomers.TotalRepeatCustomers,
			RetentionRatePct: r.RepeatCustomers.RepeatCustomerRate,
		}
	}
	if r.MonthlyTrends != nil {
		out.KeyInsights.BusinessGrowth.MonthsAnalyzed = r.MonthlyTrends.TotalMonths
		if dir := r.MonthlyTrends.GrowthMetrics.RevenueTrendDirection; dir != "" {
			out.KeyInsights.BusinessGrowth.GrowthTrend = dir
		}
	}
	if r.RegionalRevenue != nil {
		out.KeyInsights.MarketDistribution.RegionsCovered = r.RegionalRevenue.TotalRegions
		if ranks := r.RegionalRevenue.TopRegions.ByRevenue; len(ranks) > 0 {
			out.KeyInsights.MarketDistribution.TopRegion = ranks[0].Region
		}
	}
	if r.TopCustomers != nil {
		out.KeyInsights.CustomerValue.VIPThreshold = r.TopCustomers.CustomerSegments.SegmentThresholds.VIPThreshold
		for _, seg := range r.TopCustomers.CustomerSegments.Segments {
			if seg.Segment == "VIP" {
				out.KeyInsights.CustomerValue.VIPCustomers = seg.CustomerCount
			}
		}
	}
	return out
}
