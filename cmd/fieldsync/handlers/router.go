package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter registers every local API route. gatherer may be nil to omit
// /metrics.
func NewRouter(q *QueueHandler, l *LifecycleHandler, gatherer prometheus.Gatherer) *gin.Engine {
	// Request bodies keep integers as json.Number, matching what the stores return.
	binding.EnableDecoderUseNumber = true

	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", l.Health)

	oq := api.Group("/offline-queue")
	oq.POST("", q.Enqueue)
	oq.GET("", q.List)
	oq.DELETE("", q.Clear)
	oq.GET("/count", q.Count)
	oq.GET("/stats", q.Stats)
	oq.POST("/drain", q.Drain)
	oq.GET("/:id", q.Get)
	oq.DELETE("/:id", q.Remove)

	lc := api.Group("/lifecycle")
	lc.POST("/visible", l.Visible)
	lc.POST("/hidden", l.Hidden)

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}
