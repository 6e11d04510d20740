package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dspash/dspash-go/internal/infrastructure/monitoring"
)

// Metrics creates a middleware that records Prometheus metrics for HTTP requests
func Metrics(m *monitoring.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			m.RecordHTTPRequest(c.Request().Method, c.Path(), c.Response().Status, time.Since(start))

			return err
		}
	}
}

// MetricsEndpoint creates an endpoint handler for Prometheus metrics
func MetricsEndpoint() echo.HandlerFunc {
	return func(c echo.Context) error {
		// The actual metrics are exposed via promhttp.Handler()
		// This is just a placeholder that returns basic info
		return c.JSON(200, map[string]string{
			"status": "metrics available at /metrics",
			"help":   "Use Prometheus to scrape this endpoint",
		})
	}
}
