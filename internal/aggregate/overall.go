package aggregate

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tphakala/reviewdash/internal/datastore"
)

// OverallStats is the single bucket summary of a scope. The delivery counts
// are only filled for the pre scope, QualityDimensionsCount only for post.
type OverallStats struct {
	GroupStats
	ReviewerCount          int    `json:"reviewer_count"`
	TrainerCount           int    `json:"trainer_count"`
	DomainCount            int    `json:"domain_count"`
	WorkItemsCount         int64  `json:"work_items_count"`
	DeliveredTasks         *int64 `json:"delivered_tasks,omitempty"`
	DeliveredFiles         *int64 `json:"delivered_files,omitempty"`
	QualityDimensionsCount *int   `json:"quality_dimensions_count,omitempty"`
}

const overallKey = "overall"

// Overall summarizes the scope in one bucket.
func (e *Engine) Overall(ctx context.Context, scope Scope, f Filters) (*OverallStats, error) {
	defer e.observe(time.Now())

	var (
		stats *OverallStats
		err   error
	)
	if scope == ScopePost {
		stats, err = e.overallPost(ctx, f)
	} else {
		stats, err = e.overallPre(ctx, f)
	}
	if err != nil {
		return nil, e.fail(err, "overall", scope)
	}
	return stats, nil
}

func (e *Engine) overallPre(ctx context.Context, f Filters) (*OverallStats, error) {
	rows, err := e.detailRows(ctx, ScopePre, f)
	if err != nil {
		return nil, err
	}

	groups := process(rows, ScopePre, e.allow.Names(ctx), func(*detailRow) string { return overallKey })
	if len(groups) == 0 {
		return &OverallStats{
			GroupStats:     GroupStats{QualityDimensions: []DimensionStats{}},
			DeliveredTasks: new(int64),
			DeliveredFiles: new(int64),
		}, nil
	}

	stats := &OverallStats{GroupStats: groups[0].stats}
	stats.ReviewerCount, stats.TrainerCount, stats.DomainCount = distinctPeople(rows)

	// the task count comes from the task table so tasks without allowed
	// dimension rows are still counted
	var taskCount, deliveredTasks, deliveredFiles int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q := e.db.WithContext(gctx).Model(&datastore.Task{}).
			Where("is_delivered = ?", false)
		if f.Domain != nil && *f.Domain != "" {
			q = q.Where("domain = ?", *f.Domain)
		}
		if f.Trainer != nil {
			q = q.Where("current_user_id = ?", *f.Trainer)
		}
		return q.Distinct("id").Count(&taskCount).Error
	})
	g.Go(func() error {
		return e.workItems(gctx).
			Where("task_id IS NOT NULL AND task_id <> ''").
			Distinct("task_id").Count(&deliveredTasks).Error
	})
	g.Go(func() error {
		return e.workItems(gctx).
			Where("json_filename IS NOT NULL AND json_filename <> ''").
			Distinct("json_filename").Count(&deliveredFiles).Error
	})
	g.Go(func() error {
		return e.workItems(gctx).Count(&stats.WorkItemsCount).Error
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.TaskCount = int(taskCount)
	stats.DeliveredTasks = &deliveredTasks
	stats.DeliveredFiles = &deliveredFiles
	return stats, nil
}

// deliveredTaskRow is one work item joined with its delivered task.
type deliveredTaskRow struct {
	TaskID      string  `gorm:"column:task_id"`
	Domain      *string `gorm:"column:domain"`
	TrainerID   *int64  `gorm:"column:current_user_id"`
	ReworkCount *int    `gorm:"column:rework_count"`
}

func (e *Engine) overallPost(ctx context.Context, f Filters) (*OverallStats, error) {
	rows, err := e.detailRows(ctx, ScopePost, f)
	if err != nil {
		return nil, err
	}
	allowed := e.allow.Names(ctx)

	stats := &OverallStats{GroupStats: GroupStats{QualityDimensions: []DimensionStats{}}}
	if groups := process(rows, ScopePost, allowed, func(*detailRow) string { return overallKey }); len(groups) > 0 {
		stats.GroupStats = groups[0].stats
	}

	var (
		taskCount     int64
		reviewerCount int64
		taskRows      []deliveredTaskRow
		dimNames      []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// every delivered work item counts, matched to a task or not
		return e.workItems(gctx).
			Where("task_id IS NOT NULL AND task_id <> ''").
			Distinct("task_id").Count(&taskCount).Error
	})
	g.Go(func() error {
		return e.workItems(gctx).Count(&stats.WorkItemsCount).Error
	})
	g.Go(func() error {
		return e.deliveredTasks(gctx, f).
			Select("work_item.task_id, task.domain, task.current_user_id, task.rework_count").
			Order("work_item.task_id").Order("work_item.work_item_id").
			Scan(&taskRows).Error
	})
	g.Go(func() error {
		return e.deliveredTasks(gctx, f).
			Joins("JOIN review_detail ON review_detail.conversation_id = task.id").
			Distinct("review_detail.reviewer_id").
			Count(&reviewerCount).Error
	})
	g.Go(func() error {
		q := e.db.WithContext(gctx).Table(datastore.TableReviewDetail).
			Joins("JOIN task ON task.id = review_detail.conversation_id").
			Joins("JOIN work_item ON work_item.colab_link = task.colab_link").
			Where("review_detail.is_delivered = ? AND review_detail.name IS NOT NULL", true)
		if f.Domain != nil && *f.Domain != "" {
			q = q.Where("review_detail.domain = ?", *f.Domain)
		}
		return q.Distinct().Pluck("review_detail.name", &dimNames).Error
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.TaskCount = int(taskCount)
	stats.ReviewerCount = int(reviewerCount)

	dimCount := 0
	for _, name := range dimNames {
		if _, ok := allowed[name]; ok {
			dimCount++
		}
	}
	stats.QualityDimensionsCount = &dimCount

	// one row per delivered task id, first match wins
	trainers := make(map[int64]struct{})
	domains := make(map[string]struct{})
	rework := make(map[string]int)
	seen := make(map[string]struct{})
	for _, r := range taskRows {
		if _, dup := seen[r.TaskID]; dup {
			continue
		}
		seen[r.TaskID] = struct{}{}
		if r.Domain != nil && *r.Domain != "" {
			domains[*r.Domain] = struct{}{}
		}
		if r.TrainerID != nil && *r.TrainerID != 0 {
			trainers[*r.TrainerID] = struct{}{}
		}
		if r.ReworkCount != nil {
			rework[r.TaskID] = *r.ReworkCount
		}
	}
	if len(seen) == 0 {
		stats.ReviewerCount = 0
		dimCount = 0
	}
	stats.TrainerCount = len(trainers)
	stats.DomainCount = len(domains)
	stats.TotalReworkCount, stats.AverageReworkCount = reworkStats(rework)
	return stats, nil
}

func (e *Engine) workItems(ctx context.Context) *gorm.DB {
	return e.db.WithContext(ctx).Model(&datastore.WorkItem{})
}

// deliveredTasks joins work items to their delivered tasks.
func (e *Engine) deliveredTasks(ctx context.Context, f Filters) *gorm.DB {
	q := e.db.WithContext(ctx).Table(datastore.TableWorkItem).
		Joins("JOIN task ON task.colab_link = work_item.colab_link").
		Where("task.is_delivered = ?", true)
	if f.Domain != nil && *f.Domain != "" {
		q = q.Where("task.domain = ?", *f.Domain)
	}
	return q
}

// distinctPeople counts the distinct reviewers, trainers and domains of rows,
// allowed dimension or not.
func distinctPeople(rows []detailRow) (reviewers, trainers, domains int) {
	rs := make(map[int64]struct{})
	ts := make(map[int64]struct{})
	ds := make(map[string]struct{})
	for i := range rows {
		r := &rows[i]
		if r.ReviewerID != nil && *r.ReviewerID != 0 {
			rs[*r.ReviewerID] = struct{}{}
		}
		if r.TrainerID != nil && *r.TrainerID != 0 {
			ts[*r.TrainerID] = struct{}{}
		}
		if r.Domain != nil && *r.Domain != "" {
			ds[*r.Domain] = struct{}{}
		}
	}
	return len(rs), len(ts), len(ds)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
