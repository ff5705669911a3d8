// Package httpapi exposes the serve verb's read-only HTTP surface: health,
// Prometheus metrics, and a read-only view of transactions. It never
// accepts a write — install/rollback/cleanup stay CLI-only, matching
// spec.md §6's privilege notes (mutating the host requires the operator's
// own invocation, not a remote API call).
//
// Adapted from the teacher's cmd/server/main.go (gin.Default(), a /health
// route, route groups registered by a per-domain Handler) generalized from
// the agent registry's domain to transactions.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"optiinfra/pkginstall/internal/logger"
	"optiinfra/pkginstall/internal/metrics"
	"optiinfra/pkginstall/internal/txn"
)

// Handler serves the read-only transaction surface.
type Handler struct {
	manager *txn.Manager
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewHandler builds a Handler over the given transaction manager.
func NewHandler(manager *txn.Manager, log *logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{manager: manager, log: log, metrics: m}
}

// RegisterRoutes wires this handler's routes onto router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	transactions := router.Group("/transactions")
	{
		transactions.GET("", h.List)
		transactions.GET("/:id", h.Get)
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "pkginstall",
		"timestamp": time.Now(),
	})
}

// List returns the most recent transactions, optionally bounded by
// ?limit=N.
func (h *Handler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = parsed
	}

	views, err := h.manager.List(c.Request.Context(), limit)
	if err != nil {
		h.log.Errorw("list transactions failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": views, "count": len(views)})
}

// Get returns one transaction with its steps.
func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}

	view, err := h.manager.Status(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, view)
}
