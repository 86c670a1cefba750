package datasync

import (
	"fmt"

	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/warehouse"
)

func mapContributors(rows []warehouse.Row) ([]datastore.Contributor, error) {
	out := make([]datastore.Contributor, 0, len(rows))
	for i, row := range rows {
		id := row.Int64("id")
		if id == nil {
			return nil, fmt.Errorf("contributor row %d has no id", i)
		}
		out = append(out, datastore.Contributor{
			ID:       *id,
			Name:     row.String("name"),
			Email:    row.String("turing_email"),
			RoleType: row.String("type"),
			Status:   row.String("status"),
		})
	}
	return out, nil
}

func mapTaskReviewedInfo(rows []warehouse.Row) ([]datastore.TaskReviewedInfo, error) {
	out := make([]datastore.TaskReviewedInfo, 0, len(rows))
	for _, row := range rows {
		out = append(out, datastore.TaskReviewedInfo{
			ReviewedTaskID:  row.Int64("r_id"),
			DeliveredTaskID: row.Int64("delivered_id"),
			CollabLink:      row.String("rlhf_link"),
			IsDelivered:     row.Bool("is_delivered"),
			ReviewStatus:    row.String("status"),
			TaskScore:       row.Float64("task_score"),
			UpdatedAt:       row.Time("updated_at"),
			ContributorName: row.String("name"),
			AnnotationDate:  row.Time("annotation_date"),
		})
	}
	return out, nil
}

func mapTasks(rows []warehouse.Row, projectStart string) ([]datastore.Task, error) {
	out := make([]datastore.Task, 0, len(rows))
	for i, row := range rows {
		id := row.Int64("id")
		if id == nil {
			return nil, fmt.Errorf("task row %d has no id", i)
		}

		task := datastore.Task{
			ID:                 *id,
			CreatedAt:          row.Time("created_at"),
			UpdatedAt:          row.Time("updated_at"),
			Statement:          row.String("statement"),
			Status:             row.String("status"),
			ProjectID:          row.Int64("project_id"),
			BatchID:            row.Int64("batch_id"),
			OwnerContributorID: row.Int64("current_user_id"),
			CollabLink:         row.String("colab_link"),
			IsDelivered:        row.Bool("is_delivered"),
			Domain:             row.String("domain"),
		}
		if rework := row.Int64("rework_count"); rework != nil {
			task.ReworkCount = int(*rework)
		}
		if task.Domain == nil || *task.Domain == "" {
			task.Domain = ExtractDomain(task.Statement)
		}

		taskDate := task.UpdatedAt
		if taskDate == nil {
			taskDate = task.CreatedAt
		}
		task.WeekNumber = WeekNumber(taskDate, projectStart)

		out = append(out, task)
	}
	return out, nil
}

func mapReviewDetails(rows []warehouse.Row) ([]datastore.ReviewDetail, error) {
	out := make([]datastore.ReviewDetail, 0, len(rows))
	for _, row := range rows {
		out = append(out, datastore.ReviewDetail{
			QualityDimensionID: row.Int64("quality_dimension_id"),
			Domain:             row.String("domain"),
			OwnerContributorID: row.Int64("human_role_id"),
			ReviewID:           row.Int64("review_id"),
			ReviewerID:         row.Int64("reviewer_id"),
			TaskID:             row.Int64("conversation_id"),
			IsDelivered:        row.Bool("is_delivered"),
			DimensionName:      row.String("name"),
			ScoreText:          row.String("score_text"),
			Score:              row.Float64("score"),
			TaskScore:          row.Float64("task_score"),
			UpdatedAt:          row.Time("updated_at"),
		})
	}
	return out, nil
}
