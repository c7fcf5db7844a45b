package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kimhsiao/fieldsync/backend/internal/sync/trigger"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "fieldsync"

// LifecycleHandler forwards UI lifecycle events into the drain trigger.
type LifecycleHandler struct {
	source *trigger.ManualSource
	online func() bool
}

// NewLifecycleHandler creates a LifecycleHandler. online reports the
// trigger's current connectivity.
func NewLifecycleHandler(source *trigger.ManualSource, online func() bool) *LifecycleHandler {
	return &LifecycleHandler{source: source, online: online}
}

// Visible handles POST /api/lifecycle/visible
func (h *LifecycleHandler) Visible(c *gin.Context) {
	h.source.Notify(trigger.SignalVisible)
	c.JSON(http.StatusAccepted, gin.H{"online": h.online()})
}

// Hidden handles POST /api/lifecycle/hidden
func (h *LifecycleHandler) Hidden(c *gin.Context) {
	h.source.Notify(trigger.SignalHidden)
	c.Status(http.StatusAccepted)
}

// Health handles GET /api/health
func (h *LifecycleHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": ServiceName,
		"online":  h.online(),
	})
}
