package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/observability/metrics"
)

// TelemetryMiddleware records request counts, latencies and response sizes.
type TelemetryMiddleware struct {
	httpMetrics *metrics.HTTPMetrics
}

// NewTelemetryMiddleware creates a new telemetry middleware instance
func NewTelemetryMiddleware(httpMetrics *metrics.HTTPMetrics) *TelemetryMiddleware {
	return &TelemetryMiddleware{httpMetrics: httpMetrics}
}

// Middleware returns the Echo middleware function
func (tm *TelemetryMiddleware) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if tm.httpMetrics == nil {
				return next(c)
			}

			start := time.Now()
			tm.httpMetrics.RequestStarted()
			defer tm.httpMetrics.RequestFinished()

			err := next(c)

			// route template, so /folders/:folder/files is one series
			path := normalizePath(c.Path(), c.Request().URL.Path)
			method := c.Request().Method

			statusCode := c.Response().Status
			if statusCode == 0 {
				statusCode = http.StatusOK
			}
			var he *echo.HTTPError
			if err != nil && errors.As(err, &he) {
				statusCode = he.Code
			}

			tm.httpMetrics.RecordHTTPRequest(method, path, statusCode, time.Since(start).Seconds())
			tm.httpMetrics.RecordHTTPResponseSize(method, path, c.Response().Size)
			if err != nil || statusCode >= http.StatusBadRequest {
				tm.httpMetrics.RecordHTTPRequestError(method, path, categorizeError(err, statusCode))
			}

			return err
		}
	}
}

// normalizePath prefers the matched route; unmatched requests collapse into
// one label to keep cardinality bounded.
func normalizePath(route, raw string) string {
	if route != "" {
		return route
	}
	if strings.HasPrefix(raw, "/api/") {
		return "/api/unmatched"
	}
	return "unmatched"
}

func categorizeError(err error, statusCode int) string {
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		return "cancelled"
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case statusCode >= http.StatusInternalServerError:
		return "server_error"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode >= http.StatusBadRequest:
		return "client_error_" + strconv.Itoa(statusCode)
	default:
		return "handler_error"
	}
}
