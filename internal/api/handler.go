package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"order-analytics/internal/kpi"
	"order-analytics/internal/models"
	"order-analytics/internal/pipeline"
	"order-analytics/internal/redisclient"
	"order-analytics/internal/store"
	"order-analytics/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Cleaner triggers an age-based retention pass.
type Cleaner interface {
	Cleanup(ctx context.Context, retainDays int) (int64, int64, error)
}

var kpiNames = []string{
	kpi.KPIRepeatCustomers,
	kpi.KPIMonthlyTrends,
	kpi.KPIRegionalRevenue,
	kpi.KPITopCustomers,
}

// Handler contains HTTP handlers
type Handler struct {
	store    *store.Store
	cache    *redisclient.Client
	cleaner  Cleaner
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler. cache may be nil, the KPI endpoint
// then reads straight from the store. cleaner may be nil, the retention
// endpoint then responds 503.
func NewHandler(st *store.Store, cache *redisclient.Client, cleaner Cleaner, cacheTTL time.Duration) *Handler {
	return &Handler{
		store:    st,
		cache:    cache,
		cleaner:  cleaner,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/kpis", h.listKPIs)
		v1.GET("/kpis/:name", h.getKPI)
		v1.GET("/summary", h.getSummary)
		v1.POST("/retention", h.triggerRetention)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the store and the cache answer.
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": err.Error(),
		})
		return
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"details": err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listKPIs returns the latest stored result per KPI name. Names without a
// stored result are left out.
func (h *Handler) listKPIs(c *gin.Context) {
	ctx := c.Request.Context()

	records := make([]*models.KPIResultRecord, 0, len(kpiNames))
	for _, name := range kpiNames {
		rec, err := h.store.LatestKPIResult(ctx, name)
		if errors.Is(err, store.ErrKPIResultNotFound) {
			continue
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to load KPI results",
				"details": err.Error(),
			})
			return
		}
		records = append(records, rec)
	}

	c.JSON(http.StatusOK, gin.H{
		"kpis":  records,
		"count": len(records),
	})
}

// getKPI serves one KPI result, cache-aside over the kpi_results table.
func (h *Handler) getKPI(c *gin.Context) {
	name := c.Param("name")
	if !knownKPI(name) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown KPI",
			"kpis":  kpiNames,
		})
		return
	}

	ctx := c.Request.Context()

	if h.cache != nil {
		var cached json.RawMessage
		err := h.cache.GetKPIResult(ctx, pipeline.EngineTableBacked, name, &cached)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{
				"kpi_name": name,
				"source":   "cache",
				"result":   cached,
			})
			return
		}
		if !errors.Is(err, redisclient.ErrCacheMiss) {
			h.logger.Warn("KPI cache read failed", zap.String("kpi", name), zap.Error(err))
		}
	}

	rec, err := h.store.LatestKPIResult(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrKPIResultNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":    "No stored result for KPI",
				"kpi_name": name,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load KPI result",
			"details": err.Error(),
		})
		return
	}

	if h.cache != nil && len(rec.ResultJSON) > 0 {
		if err := h.cache.SetKPIResult(ctx, rec.Engine, name, json.RawMessage(rec.ResultJSON), h.cacheTTL); err != nil {
			h.logger.Warn("KPI cache backfill failed", zap.String("kpi", name), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"kpi_name": name,
		"source":   "database",
		"result":   json.RawMessage(rec.ResultJSON),
	})
}

// getSummary serves the headline numbers straight from the tables.
func (h *Handler) getSummary(c *gin.Context) {
	summary, err := h.store.Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load summary",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

type retentionRequest struct {
	RetainDays int `json:"retain_days" binding:"required,gt=0"`
}

// triggerRetention runs one retention pass on demand.
func (h *Handler) triggerRetention(c *gin.Context) {
	if h.cleaner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Retention is not available",
		})
		return
	}

	var req retentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	ordersDeleted, customersDeleted, err := h.cleaner.Cleanup(c.Request.Context(), req.RetainDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Retention pass failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"retain_days":       req.RetainDays,
		"orders_deleted":    ordersDeleted,
		"customers_deleted": customersDeleted,
	})
}

func knownKPI(name string) bool {
	for _, n := range kpiNames {
		if n == name {
			return true
		}
	}
	return false
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
