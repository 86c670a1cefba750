package aggregate

import (
	"math"
	"slices"
	"strconv"
)

// DimensionStats summarizes one quality dimension within a group.
type DimensionStats struct {
	Name         string   `json:"name"`
	AverageScore *float64 `json:"average_score"`
	TaskCount    int      `json:"task_count"`
}

// GroupStats is the shared shape of every grouped result.
type GroupStats struct {
	TaskCount          int              `json:"task_count"`
	AverageTaskScore   *float64         `json:"average_task_score"`
	TotalReworkCount   int              `json:"total_rework_count"`
	AverageReworkCount float64          `json:"average_rework_count"`
	QualityDimensions  []DimensionStats `json:"quality_dimensions"`
}

// detailRow is one review detail row joined with its task, and in the post
// delivery scope with a delivered work item.
type detailRow struct {
	Domain          *string  `gorm:"column:domain"`
	ReviewerID      *int64   `gorm:"column:reviewer_id"`
	TrainerID       *int64   `gorm:"column:human_role_id"`
	ConversationID  *int64   `gorm:"column:conversation_id"`
	DeliveredTaskID *string  `gorm:"column:delivered_task_id"`
	Name            *string  `gorm:"column:name"`
	Score           *float64 `gorm:"column:score"`
	TaskScore       *float64 `gorm:"column:task_score"`
	ReworkCount     *int     `gorm:"column:rework_count"`
}

// taskKey is the identifier tasks are counted by: the review's task id
// before delivery, the delivered work item's task id after.
func (r *detailRow) taskKey(scope Scope) (string, bool) {
	if scope == ScopePost {
		if r.DeliveredTaskID == nil {
			return "", false
		}
		return *r.DeliveredTaskID, true
	}
	if r.ConversationID == nil {
		return "", false
	}
	return strconv.FormatInt(*r.ConversationID, 10), true
}

type dimensionAcc struct {
	ids         map[string]struct{}
	scores      []float64
	taskScores  map[string]float64
	reworkCount map[string]int
}

type groupAcc struct {
	sample     *detailRow
	dimensions map[string]*dimensionAcc
}

// group is a processed group together with a row carrying its key values.
type group struct {
	key    string
	sample *detailRow
	stats  GroupStats
}

// process groups rows by keyFn and then by dimension name, keeping only
// allowed dimensions. Task scores and rework counts are deduplicated by task
// key because the joins repeat them on every dimension row. Groups come back
// in order of first appearance.
func process(rows []detailRow, scope Scope, allowed map[string]struct{}, keyFn func(*detailRow) string) []group {
	accs := make(map[string]*groupAcc)
	var order []string

	for i := range rows {
		row := &rows[i]
		if row.Name == nil || *row.Name == "" {
			continue
		}
		if _, ok := allowed[*row.Name]; !ok {
			continue
		}

		key := keyFn(row)
		acc, ok := accs[key]
		if !ok {
			acc = &groupAcc{sample: row, dimensions: make(map[string]*dimensionAcc)}
			accs[key] = acc
			order = append(order, key)
		}

		dim, ok := acc.dimensions[*row.Name]
		if !ok {
			dim = &dimensionAcc{
				ids:         make(map[string]struct{}),
				taskScores:  make(map[string]float64),
				reworkCount: make(map[string]int),
			}
			acc.dimensions[*row.Name] = dim
		}

		if id, ok := row.taskKey(scope); ok {
			dim.ids[id] = struct{}{}
			if row.TaskScore != nil {
				dim.taskScores[id] = *row.TaskScore
			}
			if row.ReworkCount != nil {
				dim.reworkCount[id] = *row.ReworkCount
			}
		}
		if row.Score != nil {
			dim.scores = append(dim.scores, *row.Score)
		}
	}

	groups := make([]group, 0, len(order))
	for _, key := range order {
		acc := accs[key]
		groups = append(groups, group{key: key, sample: acc.sample, stats: summarize(acc)})
	}
	return groups
}

func summarize(acc *groupAcc) GroupStats {
	names := make([]string, 0, len(acc.dimensions))
	for name := range acc.dimensions {
		names = append(names, name)
	}
	slices.Sort(names)

	ids := make(map[string]struct{})
	taskScores := make(map[string]float64)
	reworkCounts := make(map[string]int)
	dims := make([]DimensionStats, 0, len(names))

	for _, name := range names {
		dim := acc.dimensions[name]
		for id := range dim.ids {
			ids[id] = struct{}{}
		}
		for id, s := range dim.taskScores {
			taskScores[id] = s
		}
		for id, n := range dim.reworkCount {
			reworkCounts[id] = n
		}
		dims = append(dims, DimensionStats{
			Name:         name,
			AverageScore: mean(dim.scores),
			TaskCount:    len(dim.ids),
		})
	}

	stats := GroupStats{
		TaskCount:         len(ids),
		QualityDimensions: dims,
	}
	if len(taskScores) > 0 {
		values := make([]float64, 0, len(taskScores))
		for _, s := range taskScores {
			values = append(values, s)
		}
		stats.AverageTaskScore = mean(values)
	}
	stats.TotalReworkCount, stats.AverageReworkCount = reworkStats(reworkCounts)
	return stats
}

// reworkStats returns the sum and the mean rounded to two places, zero for
// no values.
func reworkStats(counts map[string]int) (int, float64) {
	if len(counts) == 0 {
		return 0, 0
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, round2(float64(total) / float64(len(counts)))
}

// mean returns the average rounded to two places, nil for no values.
func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := round2(sum / float64(len(values)))
	return &avg
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
