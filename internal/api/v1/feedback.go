// internal/api/v1/feedback.go
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/feedback"
)

// UploadFeedback handles POST /api/v1/feedback with a multipart "file" field
// holding the client's CSV or xlsx export.
func (c *Controller) UploadFeedback(ctx echo.Context) error {
	if c.feedback == nil {
		return c.unavailable(ctx, "feedback")
	}

	ctx.Request().Body = http.MaxBytesReader(ctx.Response(), ctx.Request().Body, c.maxUploadSize)

	header, err := ctx.FormFile("file")
	if err != nil {
		if tooLarge := (*http.MaxBytesError)(nil); errors.As(err, &tooLarge) {
			return c.HandleError(ctx, err, "Feedback file is too large", http.StatusRequestEntityTooLarge)
		}
		return c.HandleError(ctx, err, "A feedback file is required in the \"file\" field", http.StatusBadRequest)
	}
	if header.Size > c.maxUploadSize {
		return c.HandleError(ctx, nil, "Feedback file is too large", http.StatusRequestEntityTooLarge)
	}

	file, err := header.Open()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read uploaded file", http.StatusBadRequest)
	}
	defer func() { _ = file.Close() }()

	rows, err := feedback.ParseFile(file, header.Filename)
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, feedback.ErrUnsupportedFormat) {
			code = http.StatusUnsupportedMediaType
		}
		return c.HandleError(ctx, err, "Invalid feedback file", code)
	}

	result, err := c.feedback.Apply(ctx.Request().Context(), rows)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to apply feedback", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, result)
}
