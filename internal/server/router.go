// Package server exposes the data facade over a local HTTP API so the
// portal UI can read and write through the offline layer.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qualivida/portalsync/internal/data"
	apperrors "github.com/qualivida/portalsync/internal/errors"
	"github.com/qualivida/portalsync/internal/models"
	"github.com/qualivida/portalsync/internal/remote"
)

// Handler holds the facade behind the HTTP routes.
type Handler struct {
	Facade *data.Facade
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(facade *data.Facade) *gin.Engine {
	h := &Handler{Facade: facade}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/data/:table", h.GetTable)
		v1.POST("/data/:table", h.InsertRow)
		v1.PUT("/data/:table/:id", h.UpdateRow)
		v1.DELETE("/data/:table/:id", h.DeleteRow)

		v1.GET("/sync/status", h.SyncStatus)
		v1.POST("/sync/trigger", h.TriggerSync)
		v1.POST("/sync/retry", h.RetrySync)
	}

	return r
}

// GetTable serves a partition cache-first; when online the partition is
// refreshed in the background for the next read. The request never
// waits on the network.
func (h *Handler) GetTable(c *gin.Context) {
	filter := map[string]string{}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			filter[key] = values[0]
		}
	}

	result, err := h.Facade.GetData(c.Request.Context(), c.Param("table"), data.GetOptions{
		Filter:  filter,
		Refresh: true,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// InsertRow applies a write-through insert.
func (h *Handler) InsertRow(c *gin.Context) {
	var row remote.Row
	if err := c.ShouldBindJSON(&row); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mutate(c, c.Param("table"), models.OperationInsert, row)
}

// UpdateRow applies a write-through update.
func (h *Handler) UpdateRow(c *gin.Context) {
	var row remote.Row
	if err := c.ShouldBindJSON(&row); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	row["id"] = c.Param("id")
	h.mutate(c, c.Param("table"), models.OperationUpdate, row)
}

// DeleteRow applies a write-through delete.
func (h *Handler) DeleteRow(c *gin.Context) {
	h.mutate(c, c.Param("table"), models.OperationDelete, remote.Row{"id": c.Param("id")})
}

// mutate runs the facade write path and maps the one hard failure
// (local persistence) to a 500; everything else is accepted, since
// remote confirmation is asynchronous.
func (h *Handler) mutate(c *gin.Context, table string, op models.Operation, row remote.Row) {
	entry, err := h.Facade.Mutate(c.Request.Context(), table, op, row)
	if err != nil {
		status := http.StatusInternalServerError
		if apperrors.Is(err, apperrors.ErrInvalid) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"queued": entry.ID,
		"status": string(entry.Status),
	})
}

// SyncStatus reports outbox counts and sync state for the UI badge.
func (h *Handler) SyncStatus(c *gin.Context) {
	status, err := h.Facade.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// TriggerSync kicks off a flush cycle without waiting for it.
func (h *Handler) TriggerSync(c *gin.Context) {
	go func() {
		// Detached from the request context on purpose.
		h.Facade.SyncOutbox(context.Background())
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
}

// RetrySync re-queues errored entries and flushes them.
func (h *Handler) RetrySync(c *gin.Context) {
	count, result, err := h.Facade.RetryErrored(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requeued": count, "result": result})
}
