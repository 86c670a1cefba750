package aggregate

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/tphakala/reviewdash/internal/datastore"
)

// DeliveryDay is one calendar day of deliveries.
type DeliveryDay struct {
	Date       string   `json:"delivery_date"`
	TotalTasks int      `json:"total_tasks"`
	FileNames  []string `json:"file_names"`
	FileCount  int      `json:"file_count"`
}

// DeliveryTracker lists work item deliveries per UTC day, newest first.
// TotalTasks counts work items, so a task delivered twice counts twice.
func (e *Engine) DeliveryTracker(ctx context.Context) ([]DeliveryDay, error) {
	defer e.observe(time.Now())

	var items []datastore.WorkItem
	err := e.db.WithContext(ctx).
		Select("task_id", "json_filename", "delivery_date").
		Where("delivery_date IS NOT NULL").
		Find(&items).Error
	if err != nil {
		return nil, e.fail(err, "delivery_tracker", ScopePost)
	}

	type day struct {
		tasks int
		files map[string]struct{}
	}
	days := make(map[string]*day)
	for i := range items {
		it := &items[i]
		date := it.DeliveryDate.UTC().Format(time.DateOnly)
		d, ok := days[date]
		if !ok {
			d = &day{files: make(map[string]struct{})}
			days[date] = d
		}
		if it.TaskID != "" {
			d.tasks++
		}
		if it.SourceFilename != "" {
			d.files[it.SourceFilename] = struct{}{}
		}
	}

	result := make([]DeliveryDay, 0, len(days))
	for date, d := range days {
		files := make([]string, 0, len(d.files))
		for f := range d.files {
			files = append(files, f)
		}
		slices.Sort(files)
		result = append(result, DeliveryDay{Date: date, TotalTasks: d.tasks, FileNames: files, FileCount: len(files)})
	}
	slices.SortFunc(result, func(a, b DeliveryDay) int { return cmp.Compare(b.Date, a.Date) })
	return result, nil
}

// ClientWorkItem is one delivered work item with its client feedback.
type ClientWorkItem struct {
	WorkItemID        string  `json:"work_item_id"`
	TaskID            string  `json:"task_id"`
	DeliveryDate      *string `json:"delivery_date"`
	Filename          string  `json:"json_filename"`
	TuringStatus      string  `json:"turing_status"`
	ClientStatus      string  `json:"client_status"`
	TaskLevelFeedback *string `json:"task_level_feedback"`
	ErrorCategories   *string `json:"error_categories"`
}

// ClientTask groups the work items delivered for one task.
type ClientTask struct {
	TaskID        string           `json:"task_id"`
	TaskScore     *float64         `json:"task_score"`
	ReworkCount   int              `json:"rework_count"`
	DeliveryDate  *string          `json:"delivery_date"`
	WorkItemCount int              `json:"work_item_count"`
	TuringStatus  string           `json:"turing_status"`
	ClientStatus  string           `json:"client_status"`
	WorkItems     []ClientWorkItem `json:"work_items"`
}

type clientRow struct {
	WorkItemID        string     `gorm:"column:work_item_id"`
	WorkItemTaskID    string     `gorm:"column:workitem_task_id"`
	DeliveryDate      *time.Time `gorm:"column:delivery_date"`
	LabellingTaskID   *int64     `gorm:"column:labelling_task_id"`
	Filename          string     `gorm:"column:json_filename"`
	TaskScore         *float64   `gorm:"column:task_score"`
	ReworkCount       *int       `gorm:"column:rework_count"`
	TuringStatus      string     `gorm:"column:turing_status"`
	ClientStatus      *string    `gorm:"column:client_status"`
	TaskLevelFeedback *string    `gorm:"column:task_level_feedback"`
	ErrorCategories   *string    `gorm:"column:error_categories"`
}

// ClientTaskWise groups every work item by the task it delivered. Work items
// whose link matches no task form a group of their own. A group is Rework if
// any of its items is; its client status is the one of the latest delivered
// item, Pending when none has a delivery date.
func (e *Engine) ClientTaskWise(ctx context.Context) ([]ClientTask, error) {
	defer e.observe(time.Now())

	var rows []clientRow
	err := e.db.WithContext(ctx).Table(datastore.TableWorkItem).
		Distinct("work_item.work_item_id", "work_item.task_id AS workitem_task_id", "work_item.delivery_date",
			"task.id AS labelling_task_id", "work_item.json_filename", "review_detail.task_score", "task.rework_count",
			"work_item.turing_status", "work_item.client_status", "work_item.task_level_feedback", "work_item.error_categories").
		Joins("LEFT JOIN task ON task.colab_link = work_item.colab_link").
		Joins("LEFT JOIN review_detail ON review_detail.conversation_id = task.id").
		Order("work_item.work_item_id").
		Scan(&rows).Error
	if err != nil {
		return nil, e.fail(err, "client_task_wise", ScopePost)
	}

	groups := make(map[string]*ClientTask)
	var order []string
	for i := range rows {
		r := &rows[i]
		key := "wi_" + r.WorkItemID
		if r.LabellingTaskID != nil && *r.LabellingTaskID != 0 {
			key = formatID(*r.LabellingTaskID)
		}

		g, ok := groups[key]
		if !ok {
			g = &ClientTask{TaskID: key, TaskScore: r.TaskScore}
			if r.LabellingTaskID == nil || *r.LabellingTaskID == 0 {
				g.TaskID = cmp.Or(r.WorkItemTaskID, r.WorkItemID)
			}
			if r.ReworkCount != nil {
				g.ReworkCount = *r.ReworkCount
			}
			groups[key] = g
			order = append(order, key)
		}

		item := ClientWorkItem{
			WorkItemID:        r.WorkItemID,
			TaskID:            r.WorkItemTaskID,
			Filename:          r.Filename,
			TuringStatus:      r.TuringStatus,
			ClientStatus:      datastore.ClientStatusPending,
			TaskLevelFeedback: r.TaskLevelFeedback,
			ErrorCategories:   r.ErrorCategories,
		}
		if r.DeliveryDate != nil {
			date := r.DeliveryDate.UTC().Format(time.DateOnly)
			item.DeliveryDate = &date
		}
		if r.ClientStatus != nil && *r.ClientStatus != "" {
			item.ClientStatus = *r.ClientStatus
		}
		g.WorkItems = append(g.WorkItems, item)
	}

	result := make([]ClientTask, 0, len(order))
	for _, key := range order {
		g := groups[key]
		g.WorkItemCount = len(g.WorkItems)
		g.TuringStatus = datastore.TuringStatusDelivered
		g.ClientStatus = datastore.ClientStatusPending
		for _, it := range g.WorkItems {
			if it.TuringStatus == datastore.TuringStatusRework {
				g.TuringStatus = datastore.TuringStatusRework
			}
			// first item wins ties on the latest date
			if it.DeliveryDate != nil && (g.DeliveryDate == nil || *it.DeliveryDate > *g.DeliveryDate) {
				g.DeliveryDate = it.DeliveryDate
				g.ClientStatus = it.ClientStatus
			}
		}
		result = append(result, *g)
	}
	return result, nil
}
