// Package notification sends pipeline alerts through shoutrrr services.
package notification

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
	"github.com/tphakala/reviewdash/internal/observability/metrics"
	"github.com/tphakala/reviewdash/internal/privacy"
)

const (
	serviceName    = "shoutrrr"
	defaultTimeout = 10 * time.Second
)

// sender is the part of the shoutrrr router the notifier uses.
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// Notifier delivers a title and message to every configured service URL.
type Notifier struct {
	sender  sender
	prefix  string
	metrics *metrics.NotificationMetrics
	log     logger.Logger
}

// NewNotifier builds a shoutrrr router for settings.URLs. m may be nil.
func NewNotifier(settings *conf.NotificationSettings, m *metrics.NotificationMetrics) (*Notifier, error) {
	if len(settings.URLs) == 0 {
		return nil, errors.Newf("no notification urls configured").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	router, err := shoutrrr.CreateSender(settings.URLs...)
	if err != nil {
		// shoutrrr echoes the offending URL, which carries the service token
		return nil, errors.New(privacy.ScrubError(err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("url_count", len(settings.URLs)).
			Build()
	}

	router.Timeout = settings.Timeout
	if router.Timeout <= 0 {
		router.Timeout = defaultTimeout
	}
	router.SetLogger(log.New(io.Discard, "", 0))

	return newNotifier(router, settings.Title, m), nil
}

func newNotifier(s sender, prefix string, m *metrics.NotificationMetrics) *Notifier {
	return &Notifier{
		sender:  s,
		prefix:  strings.TrimSpace(prefix),
		metrics: m,
		log:     logger.Global().Module("notification"),
	}
}

// Notify sends message to all services. Failures from individual services are
// joined into one error; services that succeeded are not retried.
func (n *Notifier) Notify(ctx context.Context, title, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	params.SetTitle(n.title(title))

	start := time.Now()
	var sendErrs []error
	for _, err := range n.sender.Send(message, &params) {
		if err != nil {
			sendErrs = append(sendErrs, privacy.ScrubError(err))
		}
	}
	duration := time.Since(start)

	if len(sendErrs) > 0 {
		n.record("error", duration)
		n.log.Warn("notification delivery failed",
			logger.String("title", title),
			logger.Int("failed_services", len(sendErrs)),
			logger.Error(sendErrs[0]))
		return errors.New(errors.Join(sendErrs...)).
			Component("notification").
			Category(errors.CategoryNotification).
			Context("title", title).
			Context("failed_services", len(sendErrs)).
			Build()
	}

	n.record("success", duration)
	n.log.Debug("notification sent", logger.String("title", title), logger.Duration("duration", duration))
	return nil
}

func (n *Notifier) title(title string) string {
	switch {
	case n.prefix == "":
		return title
	case title == "":
		return n.prefix
	default:
		return n.prefix + ": " + title
	}
}

func (n *Notifier) record(status string, d time.Duration) {
	if n.metrics != nil {
		n.metrics.RecordDelivery(serviceName, status, d)
	}
}
