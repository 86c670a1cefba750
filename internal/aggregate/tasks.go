package aggregate

import (
	"cmp"
	"context"
	"slices"
	"time"
)

// TaskStats is one pre delivery task with every recorded dimension score.
type TaskStats struct {
	TaskID            int64              `json:"task_id"`
	TaskScore         *float64           `json:"task_score"`
	AnnotatorID       *int64             `json:"annotator_id"`
	AnnotatorName     string             `json:"annotator_name"`
	AnnotatorEmail    *string            `json:"annotator_email"`
	ReviewerID        *int64             `json:"reviewer_id"`
	ReviewerName      *string            `json:"reviewer_name"`
	ReviewerEmail     *string            `json:"reviewer_email"`
	CollabLink        *string            `json:"colab_link"`
	UpdatedAt         *time.Time         `json:"updated_at"`
	WeekNumber        *int               `json:"week_number"`
	ReworkCount       *int               `json:"rework_count"`
	QualityDimensions map[string]float64 `json:"quality_dimensions"`
}

type taskDetailRow struct {
	ConversationID *int64     `gorm:"column:conversation_id"`
	TaskScore      *float64   `gorm:"column:task_score"`
	TrainerID      *int64     `gorm:"column:human_role_id"`
	ReviewerID     *int64     `gorm:"column:reviewer_id"`
	UpdatedAt      *time.Time `gorm:"column:updated_at"`
	Name           *string    `gorm:"column:name"`
	Score          *float64   `gorm:"column:score"`
	CollabLink     *string    `gorm:"column:colab_link"`
	WeekNumber     *int       `gorm:"column:week_number"`
	ReworkCount    *int       `gorm:"column:rework_count"`
}

// TaskLevel lists pre delivery tasks sorted by id. The dimension allow-list
// is not applied here; every recorded score is returned. Task fields are
// taken from the task's first review row.
func (e *Engine) TaskLevel(ctx context.Context, f Filters) ([]TaskStats, error) {
	defer e.observe(time.Now())

	var rows []taskDetailRow
	q := e.db.WithContext(ctx).Table("review_detail").
		Select("review_detail.conversation_id, review_detail.task_score, review_detail.human_role_id, " +
			"review_detail.reviewer_id, review_detail.updated_at, review_detail.name, review_detail.score, " +
			"task.colab_link, task.week_number, task.rework_count").
		Joins("LEFT JOIN task ON task.id = review_detail.conversation_id").
		Where("review_detail.is_delivered = ?", false)
	if err := applyFilters(q, f).Order("review_detail.id").Scan(&rows).Error; err != nil {
		return nil, e.fail(err, "task_level", ScopePre)
	}

	tasks := make(map[int64]*TaskStats)
	var people []int64
	for i := range rows {
		r := &rows[i]
		if r.ConversationID == nil || *r.ConversationID == 0 {
			continue
		}
		t, ok := tasks[*r.ConversationID]
		if !ok {
			t = &TaskStats{
				TaskID:            *r.ConversationID,
				AnnotatorID:       r.TrainerID,
				ReviewerID:        r.ReviewerID,
				CollabLink:        r.CollabLink,
				UpdatedAt:         r.UpdatedAt,
				WeekNumber:        r.WeekNumber,
				ReworkCount:       r.ReworkCount,
				QualityDimensions: make(map[string]float64),
			}
			if r.TaskScore != nil {
				score := round2(*r.TaskScore)
				t.TaskScore = &score
			}
			for _, id := range []*int64{r.TrainerID, r.ReviewerID} {
				if id != nil {
					people = append(people, *id)
				}
			}
			tasks[*r.ConversationID] = t
		}
		if r.Name != nil && *r.Name != "" && r.Score != nil {
			t.QualityDimensions[*r.Name] = round2(*r.Score)
		}
	}

	slices.Sort(people)
	contributors, err := e.contributors.GetByIDs(ctx, slices.Compact(people))
	if err != nil {
		return nil, e.fail(err, "task_level", ScopePre)
	}

	result := make([]TaskStats, 0, len(tasks))
	for _, t := range tasks {
		t.AnnotatorName, t.AnnotatorEmail = lookupContributor(contributors, t.AnnotatorID)
		// a task without a reviewer has no reviewer name at all
		if t.ReviewerID != nil {
			name, email := lookupContributor(contributors, t.ReviewerID)
			t.ReviewerName, t.ReviewerEmail = &name, email
		}
		result = append(result, *t)
	}
	slices.SortFunc(result, func(a, b TaskStats) int { return cmp.Compare(a.TaskID, b.TaskID) })
	return result, nil
}
