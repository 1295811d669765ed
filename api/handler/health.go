package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/domprobe/browser"
	"github.com/use-agent/domprobe/models"
)

// Version is reported by the health endpoint and the CLI.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when more than 80% of the driver's pages are in use.
func Health(driver browser.Driver, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := driver.Stats()

		status := "healthy"
		if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Driver:    driver.Name(),
			PoolStats: stats,
			Version:   Version,
		})
	}
}
