package models

import "time"

// Event types
const (
	EventTypeIngestCompleted   = "INGEST_COMPLETED"
	EventTypePipelineCompleted = "PIPELINE_COMPLETED"
	EventTypeRetentionApplied  = "RETENTION_APPLIED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// IngestCompletedEvent published after a batch has been validated and,
// for the table engine, persisted
type IngestCompletedEvent struct {
	BaseEvent
	RunID             string `json:"run_id"`
	Engine            string `json:"engine"`
	CustomersLoaded   int    `json:"customers_loaded"`
	OrdersLoaded      int    `json:"orders_loaded"`
	CustomerErrors    int    `json:"customer_errors"`
	OrderErrors       int    `json:"order_errors"`
	OrphansRejected   int    `json:"orphans_rejected"`
	ConsistencyIssues int    `json:"consistency_issues"`
}

// PipelineCompletedEvent published after a KPI calculation run
type PipelineCompletedEvent struct {
	BaseEvent
	RunID          string  `json:"run_id"`
	Engine         string  `json:"engine"`
	KPIsSucceeded  int     `json:"kpis_succeeded"`
	KPIsCalculated int     `json:"kpis_calculated"`
	TotalCustomers int     `json:"total_customers"`
	TotalOrders    int     `json:"total_orders"`
	TotalRevenue   float64 `json:"total_revenue"`
}

// RetentionAppliedEvent published after an age-based cleanup pass
type RetentionAppliedEvent struct {
	BaseEvent
	RetainDays       int   `json:"retain_days"`
	OrdersDeleted    int64 `json:"orders_deleted"`
	CustomersDeleted int64 `json:"customers_deleted"`
}
