package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsValidatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "records_validated_total",
		Help: "Total number of records that passed validation",
	}, []string{"entity"})

	ValidationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_errors_total",
		Help: "Total number of records dropped by validation",
	}, []string{"entity"})

	SuspiciousUnitPriceTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "suspicious_unit_price_total",
		Help: "Total number of accepted orders with an implausible unit price",
	})

	RowsUpsertedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rows_upserted_total",
		Help: "Total number of rows written to the store",
	}, []string{"table"})

	RowFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "row_failures_total",
		Help: "Total number of rows rolled back during a bulk upsert",
	}, []string{"table"})

	OrphanOrdersRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orphan_orders_rejected_total",
		Help: "Total number of orders rejected for a missing customer reference",
	})

	KPICalculationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kpi_calculations_total",
		Help: "Total number of KPI calculations",
	}, []string{"engine", "kpi", "status"})

	KPICalculationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kpi_calculation_latency_seconds",
		Help:    "Latency of individual KPI calculations",
		Buckets: prometheus.DefBuckets,
	}, []string{"engine", "kpi"})

	PipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_runs_total",
		Help: "Total number of pipeline runs",
	}, []string{"engine", "status"})

	RetentionDeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retention_deletes_total",
		Help: "Total number of rows removed by age-based retention",
	}, []string{"table"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
