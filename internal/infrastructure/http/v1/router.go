// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"costledger/internal/domain/registers/stock"
	"costledger/internal/infrastructure/http/v1/handlers"
	"costledger/internal/infrastructure/http/v1/middleware"
	"costledger/internal/infrastructure/metrics"
	"costledger/internal/infrastructure/storage/postgres"
	"costledger/pkg/logger"
)

// RouterConfig holds the services the HTTP layer serves.
type RouterConfig struct {
	Logger *logger.Logger
	Pool   *postgres.Pool
	// Redis is nil unless the redis lock backend is configured.
	Redis redis.UniversalClient

	Documents    handlers.DocumentReader
	Drafts       handlers.DraftCreator
	Transitioner handlers.DocumentTransitioner
	// TransitionRetries bounds retries of transitions that lost a race.
	TransitionRetries int

	Stock        handlers.StockReader
	Recalculator handlers.LedgerRecalculator

	Journals handlers.JournalReader
	Invoices handlers.InvoiceReader
	Audit    handlers.AuditReader

	// Idempotency is optional; nil disables X-Idempotency-Key handling.
	Idempotency *postgres.IdempotencyStore
	// Metrics is optional; nil disables /metrics.
	Metrics *metrics.Collector

	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Order matters: errors are rendered after recovery converts panics.
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	health := handlers.NewHealthHandler(cfg.Pool, cfg.Redis)
	hg := router.Group("/health")
	{
		hg.GET("/live", health.Live)
		hg.GET("/ready", health.Ready)
		hg.GET("/info", health.Info)
	}

	var progress stock.ProgressFunc
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
		progress = cfg.Metrics.RecalcProgress(nil)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.UserContext())
	api.Use(middleware.Idempotency(cfg.Idempotency))

	base := handlers.NewBaseHandler()
	RegisterDocumentRoutes(api.Group("/documents"),
		handlers.NewDocumentHandler(base, cfg.Documents, cfg.Drafts, cfg.Transitioner, cfg.TransitionRetries))
	RegisterStockRoutes(api.Group("/stock"),
		handlers.NewStockHandler(base, cfg.Stock, cfg.Recalculator, progress))
	RegisterLedgerRoutes(api,
		handlers.NewLedgerHandler(base, cfg.Journals, cfg.Invoices, cfg.Audit))

	return router
}
