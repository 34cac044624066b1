package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundlib/waveform-be/internal/dispatch/handler"
)

// SetupRouter configures the Gin router. The local-scheduler routes are only
// registered when an in-process scheduler is present.
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "waveform-dispatch-service",
		})
	})

	dispatchHandler := handler.NewDispatchHandler(deps)

	// Entry point for the externally managed dispatcher.
	r.POST("/tasks/waveform", dispatchHandler.HandleWaveformTask)

	// Operator visibility into processing outcomes.
	r.GET("/metricz", dispatchHandler.GetMetrics)

	if deps.Scheduler != nil {
		jobsHandler := handler.NewJobsHandler(deps)

		v1 := r.Group("/api/v1")
		{
			jobs := v1.Group("/jobs")
			{
				jobs.POST("", jobsHandler.EnqueueJob)
				jobs.GET("/:job_id", jobsHandler.GetJob)
			}
			v1.GET("/scheduler/stats", jobsHandler.GetSchedulerStats)
		}
	}

	return r
}
