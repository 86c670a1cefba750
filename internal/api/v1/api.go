// internal/api/v1/api.go
package api

import (
	"context"
	"crypto/rand"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/reviewdash/internal/aggregate"
	"github.com/tphakala/reviewdash/internal/datastore/repository"
	"github.com/tphakala/reviewdash/internal/datasync"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/feedback"
	"github.com/tphakala/reviewdash/internal/ingest"
	"github.com/tphakala/reviewdash/internal/logger"
	"github.com/tphakala/reviewdash/internal/objectstore"
)

// Syncer runs warehouse table syncs.
type Syncer interface {
	SyncAll(ctx context.Context, kind datasync.Kind) map[string]bool
	SyncTable(ctx context.Context, name string, kind datasync.Kind) (bool, error)
}

// Ingester runs delivery ingestion and browses the object store.
type Ingester interface {
	Ingest(ctx context.Context, partition string) (*ingest.Result, error)
	ListPartitions(ctx context.Context) ([]string, error)
	ListManifests(ctx context.Context, partition string) ([]objectstore.ObjectInfo, error)
}

// Controller manages the API routes and handlers
type Controller struct {
	Group *echo.Group

	stats    *aggregate.Engine
	syncer   Syncer
	ingester Ingester
	feedback *feedback.Service
	syncLogs repository.SyncLogRepository

	maxUploadSize int64
	logger        logger.Logger
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithSyncer enables the sync endpoints.
func WithSyncer(s Syncer) Option {
	return func(c *Controller) { c.syncer = s }
}

// WithIngester enables the ingestion and object store endpoints.
func WithIngester(i Ingester) Option {
	return func(c *Controller) { c.ingester = i }
}

// WithFeedback enables the feedback upload endpoint.
func WithFeedback(s *feedback.Service) Option {
	return func(c *Controller) { c.feedback = s }
}

// WithSyncLogs enables the sync log endpoint.
func WithSyncLogs(r repository.SyncLogRepository) Option {
	return func(c *Controller) { c.syncLogs = r }
}

// WithMaxUploadSize limits feedback uploads to n bytes.
func WithMaxUploadSize(n int64) Option {
	return func(c *Controller) { c.maxUploadSize = n }
}

// WithLogger overrides the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// DefaultMaxUploadSize applies when no upload limit is configured.
const DefaultMaxUploadSize = 10 << 20

// New creates the controller and registers its routes under /api/v1.
// Endpoints whose dependency was not provided respond 503.
func New(e *echo.Echo, stats *aggregate.Engine, opts ...Option) *Controller {
	c := &Controller{
		Group:         e.Group("/api/v1"),
		stats:         stats,
		maxUploadSize: DefaultMaxUploadSize,
		logger:        logger.Global().Module("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	stats := c.Group.Group("/stats")
	stats.GET("/overall", c.GetOverall)
	stats.GET("/by-domain", c.GetByDomain)
	stats.GET("/by-reviewer", c.GetByReviewer)
	stats.GET("/by-trainer", c.GetByTrainer)
	stats.GET("/tasks", c.GetTaskLevel)

	delivery := c.Group.Group("/delivery")
	delivery.GET("/tracker", c.GetDeliveryTracker)
	delivery.GET("/tasks", c.GetClientTasks)

	c.Group.POST("/sync", c.TriggerSync)
	c.Group.GET("/sync/logs", c.GetSyncLogs)
	c.Group.POST("/ingest", c.TriggerIngest)
	c.Group.GET("/objectstore/folders", c.ListFolders)
	c.Group.GET("/objectstore/folders/:folder/files", c.ListFolderFiles)
	c.Group.POST("/feedback", c.UploadFeedback)
	c.Group.POST("/dimensions/refresh", c.RefreshDimensions)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}

	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates a short random identifier for error tracking.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs err and writes an ErrorResponse with code.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.logger.Error("API error", fields...)
	} else {
		c.logger.Warn("API request rejected", fields...)
	}

	return ctx.JSON(code, resp)
}

// statusFor maps an error category to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (c *Controller) unavailable(ctx echo.Context, feature string) error {
	return c.HandleError(ctx, nil, feature+" is not configured", http.StatusServiceUnavailable)
}
