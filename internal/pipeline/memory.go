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
	"order-analytics/internal/util"
)

// MemoryEngine runs the whole analysis in process: validate the input files,
// join them in memory and compute every KPI over the joined snapshot. Orphan
// orders are kept and surface under the Unknown region.
type MemoryEngine struct {
	cfg    config.PipelineConfig
	coord  *ingest.Coordinator
	events *broker.EventPublisher
	logger *zap.Logger
	now    func() time.Time

	runID  string
	loaded bool
	report *Report
}

// NewMemoryEngine creates an in-memory engine. events may be nil; lifecycle
// events are then skipped.
func NewMemoryEngine(cfg config.PipelineConfig, events *broker.EventPublisher) *MemoryEngine {
	return NewMemoryEngineAt(cfg, events, time.Now)
}

// NewMemoryEngineAt pins the clock used for window cutoffs and timestamps.
func NewMemoryEngineAt(cfg config.PipelineConfig, events *broker.EventPublisher, now func() time.Time) *MemoryEngine {
	return &MemoryEngine{
		cfg:    cfg,
		coord:  ingest.NewCoordinatorAt(now),
		events: events,
		logger: util.GetLogger(),
		now:    now,
		runID:  uuid.New().String(),
	}
}

// RunID identifies this engine instance across its events and logs.
func (e *MemoryEngine) RunID() string { return e.runID }

// LoadData validates both input files and cross-checks them. Consistency
// issues are logged and reported through the ingest event, never fatal.
func (e *MemoryEngine) LoadData(ctx context.Context, customersPath, ordersPath string) error {
	ctx, span := util.StartSpan(ctx, "MemoryEngine.LoadData")
	defer span.End()

	if err := e.coord.ProcessCustomerData(customersPath); err != nil {
		return fmt.Errorf("load customers: %w", err)
	}
	if err := e.coord.ProcessOrderData(ordersPath); err != nil {
		return fmt.Errorf("load orders: %w", err)
	}

	consistent, issues := e.coord.ValidateConsistency()
	if !consistent {
		e.logger.Warn("Proceeding with inconsistent data", zap.Int("issues", len(issues)))
	}
	e.loaded = true

	summary, err := e.coord.Summary()
	if err != nil {
		return err
	}
	e.events.PublishIngestCompleted(ctx, &models.IngestCompletedEvent{
		RunID:             e.runID,
		Engine:            EngineInMemory,
		CustomersLoaded:   summary.Customers.TotalRecords,
		OrdersLoaded:      summary.Orders.TotalRecords,
		CustomerErrors:    summary.Customers.ValidationErrors,
		OrderErrors:       summary.Orders.ValidationErrors,
		ConsistencyIssues: len(issues),
	})
	return nil
}

// CalculateKPIs computes every KPI over the validated snapshot. Each
// calculator gets its own dataset clone; a failing KPI is recorded and
// skipped while the others still run.
func (e *MemoryEngine) CalculateKPIs(ctx context.Context) (*Report, error) {
	ctx, span := util.StartSpan(ctx, "MemoryEngine.CalculateKPIs")
	defer span.End()

	if !e.loaded {
		return nil, ingest.ErrDataNotLoaded
	}

	params := Params{
		TopCustomersCount: e.cfg.TopCustomersCount,
		TopSpendersDays:   e.cfg.TopSpendersDays,
	}
	report := newReport(EngineInMemory, e.runID, params, e.now())

	ds := kpi.NewDatasetAt(e.coord.Customers(), e.coord.Orders(), e.now())
	report.DataSummary = ds.SummaryStats()

	calculators := []kpi.Calculator{
		kpi.NewRepeatCustomersCalculator(ds.Clone()),
		kpi.NewMonthlyTrendsCalculator(ds.Clone()),
		kpi.NewRegionalRevenueCalculator(ds.Clone()),
		kpi.NewTopCustomersCalculator(ds.Clone(), params.TopSpendersDays, params.TopCustomersCount),
	}
	steps := make([]calculation, 0, len(calculators))
	for _, calc := range calculators {
		steps = append(steps, calculation{name: calc.Name(), run: calc.Calculate})
	}

	if err := runCalculations(ctx, EngineInMemory, report, steps, e.logger); err != nil {
		return report, err
	}

	e.events.PublishPipelineCompleted(ctx, &models.PipelineCompletedEvent{
		RunID:          e.runID,
		Engine:         EngineInMemory,
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
func (e *MemoryEngine) Report() *Report { return e.report }

// ProcessingSummary exposes the ingest summary for the loaded batch.
func (e *MemoryEngine) ProcessingSummary() (models.ProcessingSummary, error) {
	return e.coord.Summary()
}

// DataQualityReport assesses the batch currently loaded.
func (e *MemoryEngine) DataQualityReport() models.DataQualityReport {
	return BuildDataQualityReport(e.coord.Customers(), e.coord.Orders(), e.now())
}

// ExportResults writes the latest report to dir: the complete result set,
// one file per KPI, the headline summary and the data quality report. The
// returned map names each artifact and its path.
func (e *MemoryEngine) ExportResults(dir string) (map[string]string, error) {
	if e.report == nil {
		return nil, fmt.Errorf("no KPI results to export")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	exported := make(map[string]string)
	write := func(key, name string, payload interface{}) error {
		path := filepath.Join(dir, name)
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		exported[key] = path
		return nil
	}

	if err := write("complete_results", "in_memory_kpi_results.json", e.report); err != nil {
		return nil, err
	}
	for _, res := range e.report.Results() {
		name := res.KPIName()
		if err := write(name, "kpi_"+name+".json", res); err != nil {
			return nil, err
		}
	}
	if err := write("summary_report", "in_memory_pipeline_summary.json", e.report.SummaryReport()); err != nil {
		return nil, err
	}
	if err := write("data_quality", "data_quality_report.json", e.DataQualityReport()); err != nil {
		return nil, err
	}

	e.logger.Info("Results exported",
		zap.Int("files", len(exported)),
		zap.String("dir", dir))
	return exported, nil
}
