package v1

import (
	"github.com/gin-gonic/gin"
)

// DocumentRouteHandler defines the document endpoints.
type DocumentRouteHandler interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Transition(c *gin.Context)
}

// StockRouteHandler defines the stock ledger endpoints.
type StockRouteHandler interface {
	GetLedger(c *gin.Context)
	GetValuation(c *gin.Context)
	GetAnomalies(c *gin.Context)
	Recalculate(c *gin.Context)
}

// LedgerRouteHandler defines journal, invoice and history endpoints.
type LedgerRouteHandler interface {
	GetJournal(c *gin.Context)
	GetInvoice(c *gin.Context)
	ListAllocations(c *gin.Context)
	GetHistory(c *gin.Context)
}

// RegisterDocumentRoutes registers draft creation, lookup and the state
// machine actions (approve, unapprove, close, repost) for documents.
//
// Usage:
//
//	handler := handlers.NewDocumentHandler(base, repo, drafts, transitioner, 3)
//	RegisterDocumentRoutes(api.Group("/documents"), handler)
func RegisterDocumentRoutes(group *gin.RouterGroup, handler DocumentRouteHandler) {
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	group.POST("/:type/:id/:action", handler.Transition)
}

// RegisterStockRoutes registers ledger reads and recalculation.
func RegisterStockRoutes(group *gin.RouterGroup, handler StockRouteHandler) {
	group.GET("/ledger", handler.GetLedger)
	group.GET("/valuation", handler.GetValuation)
	group.GET("/anomalies", handler.GetAnomalies)
	group.POST("/recalculate", handler.Recalculate)
}

// RegisterLedgerRoutes registers journal, invoice and audit reads on the api
// root group.
func RegisterLedgerRoutes(api *gin.RouterGroup, handler LedgerRouteHandler) {
	api.GET("/documents/:id/history", handler.GetHistory)
	api.GET("/journals/:type/:id", handler.GetJournal)
	api.GET("/invoices/:id", handler.GetInvoice)
	api.GET("/invoices/:id/allocations", handler.ListAllocations)
}
