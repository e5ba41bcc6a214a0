package main

import (
	"context"
	"flag"
	"log"
	"math"

	"order-analytics/config"
	"order-analytics/internal/broker"
	"order-analytics/internal/pipeline"
	"order-analytics/internal/redisclient"
	"order-analytics/internal/store"
	"order-analytics/internal/util"
)

func main() {

	engineFlag := flag.String("engine", "memory", "engine to run: memory, table or both")
	customersFlag := flag.String("customers", "", "customers CSV path, overrides CUSTOMERS_FILE")
	ordersFlag := flag.String("orders", "", "orders XML path, overrides ORDERS_FILE")
	outputFlag := flag.String("output", "", "export directory, overrides OUTPUT_DIR")
	flag.Parse()

	cfg := config.Load()
	if *customersFlag != "" {
		cfg.Pipeline.CustomersFile = *customersFlag
	}
	if *ordersFlag != "" {
		cfg.Pipeline.OrdersFile = *ordersFlag
	}
	if *outputFlag != "" {
		cfg.Pipeline.OutputDir = *outputFlag
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()
	events := broker.NewEventPublisher(producer)

	ctx := context.Background()

	switch *engineFlag {
	case "memory":
		runMemoryEngine(ctx, cfg, events)
	case "table":
		runTableEngine(ctx, cfg, events)
	case "both":
		memReport := runMemoryEngine(ctx, cfg, events)
		tabReport, orphansSkipped := runTableEngine(ctx, cfg, events)
		compareEngines(memReport, tabReport, orphansSkipped)
	default:
		log.Fatalf("Unknown engine %q: want memory, table or both", *engineFlag)
	}
}

func runMemoryEngine(ctx context.Context, cfg *config.Config, events *broker.EventPublisher) *pipeline.Report {
	engine := pipeline.NewMemoryEngine(cfg.Pipeline, events)

	if err := engine.LoadData(ctx, cfg.Pipeline.CustomersFile, cfg.Pipeline.OrdersFile); err != nil {
		log.Fatalf("In-memory load failed: %v", err)
	}

	report, err := engine.CalculateKPIs(ctx)
	if err != nil {
		log.Fatalf("In-memory KPI run failed: %v", err)
	}

	exported, err := engine.ExportResults(cfg.Pipeline.OutputDir)
	if err != nil {
		log.Fatalf("In-memory export failed: %v", err)
	}

	log.Printf("In-memory engine: %d/%d KPIs succeeded, %d files exported to %s",
		report.KPIsSucceeded, report.KPIsCalculated, len(exported), cfg.Pipeline.OutputDir)
	logReportSummary(report)
	return report
}

func runTableEngine(ctx context.Context, cfg *config.Config, events *broker.EventPublisher) (*pipeline.Report, int) {
	db, err := store.NewStore(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var cache *redisclient.Client
	cache, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("Redis unavailable, results will not be cached: %v", err)
		cache = nil
	} else {
		defer cache.Close()
	}

	engine := pipeline.NewTableEngine(cfg, db, cache, events)
	if err := engine.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	customerResult, orderResult, err := engine.Ingest(ctx, cfg.Pipeline.CustomersFile, cfg.Pipeline.OrdersFile)
	if err != nil {
		log.Fatalf("Table ingest failed: %v", err)
	}
	log.Printf("Table engine ingested %d customers and %d orders, skipped %d orphan orders",
		customerResult.Inserted+customerResult.Updated,
		orderResult.Inserted+orderResult.Updated,
		orderResult.OrphansSkipped)

	report, err := engine.CalculateKPIs(ctx)
	if err != nil {
		log.Fatalf("Table KPI run failed: %v", err)
	}

	if err := engine.PersistResults(ctx); err != nil {
		log.Printf("Failed to persist KPI results: %v", err)
	}

	path, err := engine.ExportResults(cfg.Pipeline.OutputDir)
	if err != nil {
		log.Fatalf("Table export failed: %v", err)
	}

	log.Printf("Table engine: %d/%d KPIs succeeded, exported %s",
		report.KPIsSucceeded, report.KPIsCalculated, path)
	logReportSummary(report)
	return report, orderResult.OrphansSkipped
}

func logReportSummary(report *pipeline.Report) {
	log.Printf("  Customers: %d, Orders: %d, Revenue: %.2f",
		report.DataSummary.TotalCustomers,
		report.DataSummary.TotalOrders,
		report.DataSummary.TotalRevenue)

	if report.RepeatCustomers != nil {
		log.Printf("  Repeat customers: %d (%.2f%% of customers)",
			report.RepeatCustomers.TotalRepeatCustomers,
			report.RepeatCustomers.RepeatCustomerRate)
	}
	if report.MonthlyTrends != nil {
		log.Printf("  Monthly trends: %d months, revenue trend %s",
			report.MonthlyTrends.TotalMonths,
			report.MonthlyTrends.GrowthMetrics.RevenueTrendDirection)
	}
	if report.RegionalRevenue != nil && len(report.RegionalRevenue.RegionalRevenue) > 0 {
		top := report.RegionalRevenue.RegionalRevenue[0]
		log.Printf("  Regional revenue: %d regions, top %s with %.2f",
			report.RegionalRevenue.TotalRegions, top.Region, top.TotalRevenue)
	}
	if report.TopCustomers != nil && len(report.TopCustomers.TopCustomers) > 0 {
		top := report.TopCustomers.TopCustomers[0]
		log.Printf("  Top customer: %s with %.2f over the last %d days",
			top.CustomerName, top.TotalSpent, report.TopCustomers.TimePeriodInfo.DaysAnalyzed)
	}
}

// compareEngines checks the headline numbers both engines reported. The
// totals legitimately drift when the table engine rejected orphan orders the
// in-memory engine kept.
func compareEngines(mem, tab *pipeline.Report, orphansSkipped int) {
	log.Println("Cross-engine agreement check:")
	compareCount("total_customers", mem.DataSummary.TotalCustomers, tab.DataSummary.TotalCustomers)
	compareCount("total_orders", mem.DataSummary.TotalOrders, tab.DataSummary.TotalOrders)

	memRevenue := mem.DataSummary.TotalRevenue
	tabRevenue := tab.DataSummary.TotalRevenue
	if math.Abs(memRevenue-tabRevenue) > 1e-6 {
		log.Printf("  total_revenue: memory=%.2f table=%.2f MISMATCH", memRevenue, tabRevenue)
	} else {
		log.Printf("  total_revenue: %.2f ok", memRevenue)
	}

	if orphansSkipped > 0 {
		log.Printf("  note: the table engine rejected %d orphan orders the in-memory engine kept", orphansSkipped)
	}
}

func compareCount(name string, mem, tab int) {
	if mem != tab {
		log.Printf("  %s: memory=%d table=%d MISMATCH", name, mem, tab)
		return
	}
	log.Printf("  %s: %d ok", name, mem)
}
