// Package aggregate computes the dashboard statistics over the review detail
// table.
//
// Reads come in two scopes. The pre delivery scope covers reviews of tasks not
// yet delivered and counts tasks by their own id. The post delivery scope
// covers reviews of delivered tasks, joined through the work items that
// delivered them, and counts tasks by the work item's task id since one task
// can be delivered more than once.
package aggregate

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/datastore/repository"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
	"github.com/tphakala/reviewdash/internal/observability/metrics"
)

// Scope selects which review rows a read covers.
type Scope string

const (
	// ScopePre reads reviews of tasks not delivered yet.
	ScopePre Scope = "pre"
	// ScopePost reads reviews of delivered tasks through their work items.
	ScopePost Scope = "post"
)

// ParseScope maps a query parameter to a Scope. Empty means pre.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopePre:
		return ScopePre, nil
	case ScopePost:
		return ScopePost, nil
	default:
		return "", errors.Newf("unknown scope %q", s).
			Component("aggregate").
			Category(errors.CategoryValidation).
			Context("scope", s).
			Build()
	}
}

// unknownLabel is shown for missing domains and contributors.
const unknownLabel = "Unknown"

// Filters narrow a read. Nil fields do not filter. Score bounds are
// inclusive, DateTo includes the whole day it falls on.
type Filters struct {
	Domain           *string
	Reviewer         *int64
	Trainer          *int64
	QualityDimension *string
	MinScore         *float64
	MaxScore         *float64
	MinTaskCount     *int
	DateFrom         *time.Time
	DateTo           *time.Time
}

// keepGroup applies MinTaskCount, which filters grouped results rather than rows.
func (f Filters) keepGroup(stats GroupStats) bool {
	return f.MinTaskCount == nil || stats.TaskCount >= *f.MinTaskCount
}

// Engine answers dashboard reads. It is safe for concurrent use.
type Engine struct {
	db           *gorm.DB
	contributors repository.ContributorRepository
	allow        *AllowList

	log     logger.Logger
	metrics metrics.Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics records read durations and failures.
func WithMetrics(m metrics.Recorder) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// New creates an Engine reading from store and filtering dimensions by allow.
func New(store *datastore.Store, allow *AllowList, opts ...Option) *Engine {
	e := &Engine{
		db:           store.DB(),
		contributors: repository.NewContributorRepository(store.DB()),
		allow:        allow,
		log:          logger.Global().Module("aggregate"),
		metrics:      metrics.NopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AllowList returns the dimension allow-list the engine filters by.
func (e *Engine) AllowList() *AllowList {
	return e.allow
}

// DomainStats is the aggregate of one domain.
type DomainStats struct {
	Domain string `json:"domain"`
	GroupStats
}

// ContributorStats is the aggregate of one reviewer or trainer.
type ContributorStats struct {
	ID    *int64  `json:"id"`
	Name  string  `json:"name"`
	Email *string `json:"email"`
	GroupStats
}

// ByDomain groups the scope's rows by domain, sorted by domain.
func (e *Engine) ByDomain(ctx context.Context, scope Scope, f Filters) ([]DomainStats, error) {
	defer e.observe(time.Now())

	rows, err := e.detailRows(ctx, scope, f)
	if err != nil {
		return nil, e.fail(err, "by_domain", scope)
	}

	groups := process(rows, scope, e.allow.Names(ctx), func(r *detailRow) string {
		return domainLabel(r.Domain)
	})

	result := make([]DomainStats, 0, len(groups))
	for _, g := range groups {
		if f.keepGroup(g.stats) {
			result = append(result, DomainStats{Domain: g.key, GroupStats: g.stats})
		}
	}
	slices.SortStableFunc(result, func(a, b DomainStats) int { return cmp.Compare(a.Domain, b.Domain) })
	return result, nil
}

// ByReviewer groups the scope's rows by reviewer, sorted by display name.
func (e *Engine) ByReviewer(ctx context.Context, scope Scope, f Filters) ([]ContributorStats, error) {
	defer e.observe(time.Now())
	return e.byContributor(ctx, scope, f, "by_reviewer", func(r *detailRow) *int64 { return r.ReviewerID })
}

// ByTrainer groups the scope's rows by trainer, sorted by display name.
func (e *Engine) ByTrainer(ctx context.Context, scope Scope, f Filters) ([]ContributorStats, error) {
	defer e.observe(time.Now())
	return e.byContributor(ctx, scope, f, "by_trainer", func(r *detailRow) *int64 { return r.TrainerID })
}

func (e *Engine) byContributor(ctx context.Context, scope Scope, f Filters, op string, idOf func(*detailRow) *int64) ([]ContributorStats, error) {
	rows, err := e.detailRows(ctx, scope, f)
	if err != nil {
		return nil, e.fail(err, op, scope)
	}

	groups := process(rows, scope, e.allow.Names(ctx), func(r *detailRow) string {
		if id := idOf(r); id != nil {
			return formatID(*id)
		}
		return ""
	})

	ids := make([]int64, 0, len(groups))
	for _, g := range groups {
		if id := idOf(g.sample); id != nil {
			ids = append(ids, *id)
		}
	}
	people, err := e.contributors.GetByIDs(ctx, ids)
	if err != nil {
		return nil, e.fail(err, op, scope)
	}

	result := make([]ContributorStats, 0, len(groups))
	for _, g := range groups {
		if !f.keepGroup(g.stats) {
			continue
		}
		id := idOf(g.sample)
		name, email := lookupContributor(people, id)
		result = append(result, ContributorStats{ID: id, Name: name, Email: email, GroupStats: g.stats})
	}
	slices.SortStableFunc(result, func(a, b ContributorStats) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), compareIDs(a.ID, b.ID))
	})
	return result, nil
}

// detailRows loads the scope's review rows with the row level filters applied.
func (e *Engine) detailRows(ctx context.Context, scope Scope, f Filters) ([]detailRow, error) {
	var rows []detailRow
	err := e.detailQuery(ctx, scope, f).
		Order("review_detail.id").
		Scan(&rows).Error
	return rows, err
}

const detailColumns = "review_detail.domain, review_detail.reviewer_id, review_detail.human_role_id, " +
	"review_detail.conversation_id, review_detail.name, review_detail.score, review_detail.task_score, task.rework_count"

func (e *Engine) detailQuery(ctx context.Context, scope Scope, f Filters) *gorm.DB {
	q := e.db.WithContext(ctx).Table(datastore.TableReviewDetail)
	if scope == ScopePost {
		q = q.Select(detailColumns+", work_item.task_id AS delivered_task_id").
			Joins("JOIN task ON task.id = review_detail.conversation_id").
			Joins("JOIN work_item ON work_item.colab_link = task.colab_link").
			Where("review_detail.is_delivered = ?", true)
	} else {
		q = q.Select(detailColumns).
			Joins("LEFT JOIN task ON task.id = review_detail.conversation_id").
			Where("review_detail.is_delivered = ?", false)
	}
	return applyFilters(q, f)
}

func applyFilters(q *gorm.DB, f Filters) *gorm.DB {
	if f.Domain != nil && *f.Domain != "" {
		q = q.Where("review_detail.domain = ?", *f.Domain)
	}
	if f.Reviewer != nil {
		q = q.Where("review_detail.reviewer_id = ?", *f.Reviewer)
	}
	if f.Trainer != nil {
		q = q.Where("review_detail.human_role_id = ?", *f.Trainer)
	}
	if f.QualityDimension != nil && *f.QualityDimension != "" {
		q = q.Where("review_detail.name = ?", *f.QualityDimension)
	}
	if f.MinScore != nil {
		q = q.Where("review_detail.score >= ?", *f.MinScore)
	}
	if f.MaxScore != nil {
		q = q.Where("review_detail.score <= ?", *f.MaxScore)
	}
	if f.DateFrom != nil {
		q = q.Where("review_detail.updated_at >= ?", f.DateFrom.UTC())
	}
	if f.DateTo != nil {
		q = q.Where("review_detail.updated_at < ?", f.DateTo.UTC().AddDate(0, 0, 1))
	}
	return q
}

func (e *Engine) observe(start time.Time) {
	e.metrics.RecordDuration(metrics.OpAggregate, time.Since(start).Seconds())
}

// fail wraps a read error. Reads return no partial results.
func (e *Engine) fail(err error, op string, scope Scope) error {
	e.metrics.RecordOperation(metrics.OpAggregate, metrics.StatusError)
	e.metrics.RecordError(metrics.OpAggregate, string(errors.CategoryDatabase))
	e.log.Error("aggregation read failed",
		logger.String("operation", op),
		logger.String("scope", string(scope)),
		logger.Error(err))
	return errors.New(err).
		Component("aggregate").
		Category(errors.CategoryAggregation).
		Context("operation", op).
		Context("scope", string(scope)).
		Build()
}

func domainLabel(domain *string) string {
	if domain == nil || *domain == "" {
		return unknownLabel
	}
	return *domain
}

// lookupContributor returns the display name and email for id.
func lookupContributor(people map[int64]datastore.Contributor, id *int64) (string, *string) {
	if id == nil {
		return unknownLabel, nil
	}
	c, ok := people[*id]
	if !ok {
		return unknownLabel, nil
	}
	return DisplayName(c.Name, c.Status), c.Email
}

// DisplayName formats a contributor name, suffixed with the lower cased
// status unless the contributor is active.
func DisplayName(name, status *string) string {
	if name == nil || *name == "" {
		return unknownLabel
	}
	if status == nil || *status == "" || strings.EqualFold(*status, "active") {
		return *name
	}
	return *name + " (" + strings.ToLower(*status) + ")"
}

func compareIDs(a, b *int64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return cmp.Compare(*a, *b)
	}
}
