package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"order-analytics/config"
	"order-analytics/internal/broker"
	"order-analytics/internal/ingest"
	"order-analytics/internal/kpi"
	"order-analytics/internal/models"
	"order-analytics/internal/redisclient"
	"order-analytics/internal/store"
	"order-analytics/internal/util"
)

// TableEngine persists validated batches to Postgres and computes every KPI
// from SQL aggregation rows. The rows feed the same result builders the
// in-memory engine uses, so a numeric disagreement between the engines can
// only come from the rows, never from the assembly.
//
// Unlike the in-memory engine, the relational schema enforces the customer
// reference: orphan orders are rejected at ingest and reported.
type TableEngine struct {
	cfg    *config.Config
	store  *store.Store
	cache  *redisclient.Client
	events *broker.EventPublisher
	logger *zap.Logger
	now    func() time.Time

	runID  string
	report *Report
}

// NewTableEngine wires the relational engine to its store, cache and event
// publisher. cache and events may be nil; persistence then skips those sinks.
func NewTableEngine(cfg *config.Config, st *store.Store, cache *redisclient.Client, events *broker.EventPublisher) *TableEngine {
	return NewTableEngineAt(cfg, st, cache, events, time.Now)
}

// NewTableEngineAt pins the clock used for window cutoffs and timestamps.
func NewTableEngineAt(cfg *config.Config, st *store.Store, cache *redisclient.Client, events *broker.EventPublisher, now func() time.Time) *TableEngine {
	return &TableEngine{
		cfg:    cfg,
		store:  st,
		cache:  cache,
		events: events,
		logger: util.GetLogger(),
		now:    now,
		runID:  uuid.New().String(),
	}
}

// RunID identifies this engine instance across its events and logs.
func (e *TableEngine) RunID() string { return e.runID }

// Initialize creates the schema. Safe to call repeatedly.
func (e *TableEngine) Initialize(ctx context.Context) error {
	return e.store.InitSchema(ctx)
}

// Ingest validates both input files and persists the survivors. Customers
// load first so the order upsert can check its customer reference; orders
// failing that check are skipped and counted, not failed.
func (e *TableEngine) Ingest(ctx context.Context, customersPath, ordersPath string) (models.BatchResult, models.BatchResult, error) {
	ctx, span := util.StartSpan(ctx, "TableEngine.Ingest")
	defer span.End()

	coord := ingest.NewCoordinatorAt(e.now)
	if err := coord.ProcessCustomerData(customersPath); err != nil {
		return models.BatchResult{}, models.BatchResult{}, fmt.Errorf("load customers: %w", err)
	}
	if err := coord.ProcessOrderData(ordersPath); err != nil {
		return models.BatchResult{}, models.BatchResult{}, fmt.Errorf("load orders: %w", err)
	}
	consistent, issues := coord.ValidateConsistency()
	if !consistent {
		e.logger.Warn("Ingesting inconsistent batch", zap.Int("issues", len(issues)))
	}

	custResult, err := e.store.BulkUpsertCustomers(ctx, coord.Customers())
	if err != nil {
		return custResult, models.BatchResult{}, fmt.Errorf("persist customers: %w", err)
	}
	orderResult, err := e.store.BulkUpsertOrders(ctx, coord.Orders())
	if err != nil {
		return custResult, orderResult, fmt.Errorf("persist orders: %w", err)
	}

	util.RowsUpsertedTotal.WithLabelValues("customers").Add(float64(custResult.Inserted + custResult.Updated))
	util.RowsUpsertedTotal.WithLabelValues("orders").Add(float64(orderResult.Inserted + orderResult.Updated))
	util.RowFailuresTotal.WithLabelValues("customers").Add(float64(custResult.Failed))
	util.RowFailuresTotal.WithLabelValues("orders").Add(float64(orderResult.Failed))
	util.OrphanOrdersRejectedTotal.Add(float64(orderResult.OrphansSkipped))

	summary, err := coord.Summary()
	if err != nil {
		return custResult, orderResult, err
	}
	e.events.PublishIngestCompleted(ctx, &models.IngestCompletedEvent{
		RunID:             e.runID,
		Engine:            EngineTableBacked,
		CustomersLoaded:   custResult.Inserted + custResult.Updated,
		OrdersLoaded:      orderResult.Inserted + orderResult.Updated,
		CustomerErrors:    summary.Customers.ValidationErrors + custResult.Failed,
		OrderErrors:       summary.Orders.ValidationErrors + orderResult.Failed,
		OrphansRejected:   orderResult.OrphansSkipped,
		ConsistencyIssues: len(issues),
	})

	e.logger.Info("Batch ingested",
		zap.Int("customers", custResult.Inserted+custResult.Updated),
		zap.Int("orders", orderResult.Inserted+orderResult.Updated),
		zap.Int("customer_failures", custResult.Failed),
		zap.Int("order_failures", orderResult.Failed),
		zap.Int("orphans_skipped", orderResult.OrphansSkipped))
	return custResult, orderResult, nil
}

// CalculateKPIs computes every KPI over the persisted tables. A failing KPI
// is recorded and skipped while the others still run.
func (e *TableEngine) CalculateKPIs(ctx context.Context) (*Report, error) {
	ctx, span := util.StartSpan(ctx, "TableEngine.CalculateKPIs")
	defer span.End()

	params := Params{
		TopCustomersCount: e.cfg.Pipeline.TopCustomersCount,
		TopSpendersDays:   e.cfg.Pipeline.TopSpendersDays,
	}
	now := e.now()
	report := newReport(EngineTableBacked, e.runID, params, now)

	summary, err := e.store.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("data summary: %w", err)
	}
	report.DataSummary = summary

	steps := []calculation{
		{kpi.KPIRepeatCustomers, func(ctx context.Context) (kpi.Result, error) {
			rows, err := e.store.RepeatCustomerRows(ctx)
			if err != nil {
				return nil, err
			}
			total, err := e.store.TotalCustomers(ctx)
			if err != nil {
				return nil, err
			}
			return kpi.BuildRepeatCustomersResult(rows, total, now), nil
		}},
		{kpi.KPIMonthlyTrends, func(ctx context.Context) (kpi.Result, error) {
			buckets, err := e.store.MonthlyTrendRows(ctx)
			if err != nil {
				return nil, err
			}
			return kpi.BuildMonthlyTrendsResult(buckets, now), nil
		}},
		{kpi.KPIRegionalRevenue, func(ctx context.Context) (kpi.Result, error) {
			buckets, err := e.store.RegionalRevenueRows(ctx)
			if err != nil {
				return nil, err
			}
			months, err := e.store.RegionMonthlyRevenueRows(ctx)
			if err != nil {
				return nil, err
			}
			return kpi.BuildRegionalRevenueResult(buckets, months, now), nil
		}},
		{kpi.KPITopCustomers, func(ctx context.Context) (kpi.Result, error) {
			cutoff := now.AddDate(0, 0, -params.TopSpendersDays)
			rows, err := e.store.CustomerSpendingRows(ctx, cutoff)
			if err != nil {
				return nil, err
			}
			return kpi.BuildTopCustomersResult(rows, params.TopCustomersCount, params.TopSpendersDays, cutoff, now), nil
		}},
	}

	if err := runCalculations(ctx, EngineTableBacked, report, steps, e.logger); err != nil {
		return report, err
	}

	e.events.PublishPipelineCompleted(ctx, &models.PipelineCompletedEvent{
		RunID:          e.runID,
		Engine:         EngineTableBacked,
		KPIsSucceeded:  report.KPIsSucceeded,
		KPIsCalculated: report.KPIsCalculated,
		TotalCustomers: report.DataSummary.TotalCustomers,
		TotalOrders:    report.DataSummary.TotalOrders,
		TotalRevenue:   report.DataSummary.TotalRevenue,
	})

	e.report = report
	return report, nil
}

// Report returns the latest calculation report, nil before the first run.
func (e *TableEngine) Report() *Report { return e.report }

// PersistResults writes each successful result to the kpi_results table and
// refreshes the Redis cache. Cache failures are logged, not fatal.
func (e *TableEngine) PersistResults(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "TableEngine.PersistResults")
	defer span.End()

	if e.report == nil {
		return fmt.Errorf("no KPI results to persist")
	}
	for _, res := range e.report.Results() {
		rec, err := resultRecord(EngineTableBacked, e.report.Parameters, res)
		if err != nil {
			return err
		}
		if err := e.store.SaveKPIResult(ctx, &rec); err != nil {
			return fmt.Errorf("save %s result: %w", res.KPIName(), err)
		}
		if e.cache != nil {
			if err := e.cache.SetKPIResult(ctx, EngineTableBacked, res.KPIName(), res, e.cfg.Redis.TTL); err != nil {
				e.logger.Warn("KPI cache refresh failed",
					zap.String("kpi", res.KPIName()),
					zap.Error(err))
			}
		}
	}
	return nil
}

// ExportResults writes the full report to one JSON file in dir and returns
// its path.
func (e *TableEngine) ExportResults(dir string) (string, error) {
	if e.report == nil {
		return "", fmt.Errorf("no KPI results to export")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, "table_kpi_results.json")
	data, err := json.MarshalIndent(e.report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	e.logger.Info("Results exported", zap.String("file", path))
	return path, nil
}

// Cleanup removes orders older than retainDays and customers left without
// any orders, then publishes the retention event.
func (e *TableEngine) Cleanup(ctx context.Context, retainDays int) (int64, int64, error) {
	ctx, span := util.StartSpan(ctx, "TableEngine.Cleanup")
	defer span.End()

	orders, err := e.store.CleanupOldOrders(ctx, retainDays)
	if err != nil {
		return 0, 0, fmt.Errorf("cleanup orders: %w", err)
	}
	customers, err := e.store.CleanupOldCustomers(ctx, retainDays)
	if err != nil {
		return orders, 0, fmt.Errorf("cleanup customers: %w", err)
	}

	util.RetentionDeletesTotal.WithLabelValues("orders").Add(float64(orders))
	util.RetentionDeletesTotal.WithLabelValues("customers").Add(float64(customers))
	e.events.PublishRetentionApplied(ctx, &models.RetentionAppliedEvent{
		RetainDays:       retainDays,
		OrdersDeleted:    orders,
		CustomersDeleted: customers,
	})

	e.logger.Info("Retention applied",
		zap.Int("retain_days", retainDays),
		zap.Int64("orders_deleted", orders),
		zap.Int64("customers_deleted", customers))
	return orders, customers, nil
}

// Close releases the database handle.
func (e *TableEngine) Close() error {
	return e.store.Close()
}
