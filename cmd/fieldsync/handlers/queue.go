// Package handlers provides the local REST API for the offline queue.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kimhsiao/fieldsync/backend/internal/errors"
	"github.com/kimhsiao/fieldsync/backend/internal/logging"
	"github.com/kimhsiao/fieldsync/backend/internal/models"
	"github.com/kimhsiao/fieldsync/backend/internal/sync/queue"
	"github.com/kimhsiao/fieldsync/backend/internal/telemetry"
	"github.com/kimhsiao/fieldsync/backend/internal/uuid"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// EnqueueResponse is returned by POST /api/offline-queue.
type EnqueueResponse struct {
	ID string `json:"id"`
}

// CountResponse is returned by GET /api/offline-queue/count.
type CountResponse struct {
	Count int `json:"count"`
}

// ClearResponse is returned by DELETE /api/offline-queue.
type ClearResponse struct {
	Removed int `json:"removed"`
}

// Drainer runs one drain pass.
type Drainer interface {
	Drain(ctx context.Context) (models.DrainResult, error)
}

// QueueHandler handles offline queue operations.
type QueueHandler struct {
	queue   *queue.Queue
	drainer Drainer
	metrics *telemetry.Metrics
}

// NewQueueHandler creates a new QueueHandler. drainer may be nil when no
// backend is configured; POST /drain then answers 503.
func NewQueueHandler(q *queue.Queue, drainer Drainer, metrics *telemetry.Metrics) *QueueHandler {
	return &QueueHandler{queue: q, drainer: drainer, metrics: metrics}
}

// Enqueue handles POST /api/offline-queue
func (h *QueueHandler) Enqueue(c *gin.Context) {
	var req models.NewSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: string(errors.ErrInvalid)})
		return
	}

	id, err := h.queue.Enqueue(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.metrics.Enqueued()

	c.JSON(http.StatusCreated, EnqueueResponse{ID: id})
}

// List handles GET /api/offline-queue
func (h *QueueHandler) List(c *gin.Context) {
	all, err := h.queue.GetAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, all)
}

// queueID returns the :id parameter, answering 400 if it is not a queue id.
func queueID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := uuid.Validate(id); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: string(errors.ErrInvalid)})
		return "", false
	}
	return id, true
}

// Get handles GET /api/offline-queue/:id
func (h *QueueHandler) Get(c *gin.Context) {
	id, ok := queueID(c)
	if !ok {
		return
	}
	rec, err := h.queue.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "submission not queued", Code: string(errors.ErrNotFound)})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Count handles GET /api/offline-queue/count
func (h *QueueHandler) Count(c *gin.Context) {
	n, err := h.queue.Count(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, CountResponse{Count: n})
}

// Stats handles GET /api/offline-queue/stats
func (h *QueueHandler) Stats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Remove handles DELETE /api/offline-queue/:id
func (h *QueueHandler) Remove(c *gin.Context) {
	id, ok := queueID(c)
	if !ok {
		return
	}
	if err := h.queue.Remove(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Clear handles DELETE /api/offline-queue
func (h *QueueHandler) Clear(c *gin.Context) {
	n, err := h.queue.Clear(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ClearResponse{Removed: n})
}

// Drain handles POST /api/offline-queue/drain. The pass runs to completion
// before responding.
func (h *QueueHandler) Drain(c *gin.Context) {
	if h.drainer == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "no delivery backend configured",
			Code:  string(errors.ErrConfigInvalid),
		})
		return
	}
	h.metrics.Triggered(telemetry.ReasonManual)

	res, err := h.drainer.Drain(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func respondError(c *gin.Context, err error) {
	code := errors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrInvalid:
		status = http.StatusBadRequest
	case errors.ErrNotFound:
		status = http.StatusNotFound
	case errors.ErrStorage:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		logging.ErrorWithCode("Offline queue request failed", string(code), err, map[string]interface{}{
			"path": c.FullPath(),
		})
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: string(code)})
}
