// internal/api/v1/stats.go
package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/reviewdash/internal/aggregate"
	"github.com/tphakala/reviewdash/internal/errors"
)

const dateLayout = "2006-01-02"

// parseFilters reads the aggregation filters from the query string.
//
//	?domain=Coding&reviewer=12&trainer=7&quality_dimension=Accuracy
//	&min_score=2.5&max_score=5&min_task_count=3&date_from=2025-01-01&date_to=2025-01-31
func parseFilters(ctx echo.Context) (aggregate.Filters, error) {
	var f aggregate.Filters
	var err error

	f.Domain = optionalString(ctx.QueryParam("domain"))
	f.QualityDimension = optionalString(ctx.QueryParam("quality_dimension"))
	if f.Reviewer, err = optionalInt64(ctx, "reviewer"); err != nil {
		return f, err
	}
	if f.Trainer, err = optionalInt64(ctx, "trainer"); err != nil {
		return f, err
	}
	if f.MinScore, err = optionalFloat(ctx, "min_score"); err != nil {
		return f, err
	}
	if f.MaxScore, err = optionalFloat(ctx, "max_score"); err != nil {
		return f, err
	}
	if f.DateFrom, err = optionalDate(ctx, "date_from"); err != nil {
		return f, err
	}
	if f.DateTo, err = optionalDate(ctx, "date_to"); err != nil {
		return f, err
	}

	if raw := ctx.QueryParam("min_task_count"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 0 {
			return f, invalidParam("min_task_count", raw)
		}
		f.MinTaskCount = &n
	}

	if f.MinScore != nil && f.MaxScore != nil && *f.MinScore > *f.MaxScore {
		return f, errors.Newf("min_score must not exceed max_score").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return f, nil
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func optionalInt64(ctx echo.Context, name string) (*int64, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, invalidParam(name, raw)
	}
	return &n, nil
}

func optionalFloat(ctx echo.Context, name string) (*float64, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, invalidParam(name, raw)
	}
	return &v, nil
}

func optionalDate(ctx echo.Context, name string) (*time.Time, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return nil, invalidParam(name, raw)
	}
	return &t, nil
}

func invalidParam(name, value string) error {
	return errors.Newf("invalid value %q for query parameter %s", value, name).
		Component("api").
		Category(errors.CategoryValidation).
		Context("parameter", name).
		Build()
}

// statsRequest parses scope and filters, writing a 400 response on failure.
func (c *Controller) statsRequest(ctx echo.Context) (aggregate.Scope, aggregate.Filters, error) {
	scope, err := aggregate.ParseScope(ctx.QueryParam("scope"))
	if err != nil {
		return "", aggregate.Filters{}, err
	}
	f, err := parseFilters(ctx)
	return scope, f, err
}

// GetOverall handles GET /api/v1/stats/overall
func (c *Controller) GetOverall(ctx echo.Context) error {
	scope, f, err := c.statsRequest(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid query parameters", http.StatusBadRequest)
	}
	result, err := c.stats.Overall(ctx.Request().Context(), scope, f)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute overall statistics", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, result)
}

// GetByDomain handles GET /api/v1/stats/by-domain
func (c *Controller) GetByDomain(ctx echo.Context) error {
	scope, f, err := c.statsRequest(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid query parameters", http.StatusBadRequest)
	}
	result, err := c.stats.ByDomain(ctx.Request().Context(), scope, f)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute domain statistics", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, result)
}

// GetByReviewer handles GET /api/v1/stats/by-reviewer
func (c *Controller) GetByReviewer(ctx echo.Context) error {
	scope, f, err := c.statsRequest(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid query parameters", http.StatusBadRequest)
	}
	result, err := c.stats.ByReviewer(ctx.Request().Context(), scope, f)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute reviewer statistics", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, result)
}

// GetByTrainer handles GET /api/v1/stats/by-trainer
func (c *Controller) GetByTrainer(ctx echo.Context) error {
	scope, f, err := c.statsRequest(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid query parameters", http.StatusBadRequest)
	}
	result, err := c.stats.ByTrainer(ctx.Request().Context(), scope, f)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute trainer statistics", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, result)
}

// GetTaskLevel handles GET /api/v1/stats/tasks. Task level reads are always
// pre-delivery, so scope is not accepted here.
func (c *Controller) GetTaskLevel(ctx echo.Context) error {
	f, err := parseFilters(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid query parameters", http.StatusBadRequest)
	}
	result, err := c.stats.TaskLevel(ctx.Request().Context(), f)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute task statistics", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, result)
}

// GetDeliveryTracker handles GET /api/v1/delivery/tracker
func (c *Controller) GetDeliveryTracker(ctx echo.Context) error {
	result, err := c.stats.DeliveryTracker(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load delivery tracker", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, result)
}

// GetClientTasks handles GET /api/v1/delivery/tasks
func (c *Controller) GetClientTasks(ctx echo.Context) error {
	result, err := c.stats.ClientTaskWise(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load client delivery tasks", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, result)
}
