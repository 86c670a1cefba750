package warehouse

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// Queries builds the sync and allow-list queries for one labeling project.
type Queries struct {
	tables        *strings.Replacer
	projectFilter int64
}

// NewQueries validates the identifiers that end up in table paths.
func NewQueries(projectID, dataset string, projectFilter int64) (*Queries, error) {
	if !identifierPattern.MatchString(projectID) {
		return nil, fmt.Errorf("invalid warehouse project identifier %q", projectID)
	}
	if !identifierPattern.MatchString(dataset) {
		return nil, fmt.Errorf("invalid warehouse dataset identifier %q", dataset)
	}

	ref := func(table string) string {
		return "`" + projectID + "." + dataset + "." + table + "`"
	}
	tables := strings.NewReplacer(
		"{conversation}", ref("conversation"),
		"{conversation_status_history}", ref("conversation_status_history"),
		"{review}", ref("review"),
		"{batch}", ref("batch"),
		"{delivery_batch_task}", ref("delivery_batch_task"),
		"{contributor}", ref("contributor"),
		"{review_quality_dimension_value}", ref("review_quality_dimension_value"),
		"{quality_dimension}", ref("quality_dimension"),
		"{project_quality_dimension}", ref("project_quality_dimension"),
	)

	return &Queries{tables: tables, projectFilter: projectFilter}, nil
}

func (q *Queries) build(name, sql string) Query {
	return Query{
		Name:   name,
		SQL:    q.tables.Replace(sql),
		Params: []Param{{Name: "project_id", Type: ParamInt64, Value: q.projectFilter}},
	}
}

// Contributors selects every contributor, inactive ones included.
func (q *Queries) Contributors() Query {
	return Query{
		Name: "contributor",
		SQL:  q.tables.Replace(contributorSQL),
	}
}

// TaskReviewedInfo selects the latest published manual review of each completed task.
func (q *Queries) TaskReviewedInfo() Query {
	return q.build("task_reviewed_info", taskReviewedInfoCTE+"SELECT * FROM task_reviewed_info")
}

// Tasks selects completed reviewed tasks with domain and rework count.
func (q *Queries) Tasks() Query {
	return q.build("task", taskReviewedInfoCTE+taskSQL)
}

// ReviewDetails selects one row per task and quality dimension of the selected review.
func (q *Queries) ReviewDetails() Query {
	return q.build("review_detail", taskReviewedInfoCTE+reviewDetailSQL)
}

// AllowedDimensions selects the quality dimension names enabled for the project.
func (q *Queries) AllowedDimensions() Query {
	return q.build("allowed_dimensions", allowedDimensionsSQL)
}

const contributorSQL = `
SELECT id, name, turing_email, type, status
FROM {contributor}
`

const taskReviewedInfoCTE = `
WITH task_reviewed_info AS (
	SELECT DISTINCT
		r.conversation_id AS r_id,
		bt.task_id AS delivered_id,
		c.colab_link AS rlhf_link,
		FALSE AS is_delivered,
		r.status,
		r.score AS task_score,
		DATE(r.updated_at) AS updated_at,
		cb.name,
		(
			SELECT DATE(MIN(csh_inner.updated_at))
			FROM {conversation_status_history} csh_inner
			WHERE csh_inner.conversation_id = c.id
				AND csh_inner.old_status = 'labeling'
				AND csh_inner.new_status = 'completed'
		) AS annotation_date
	FROM {conversation} c
	INNER JOIN {review} r ON c.id = r.conversation_id
	INNER JOIN {batch} b ON c.project_id = b.project_id
	LEFT JOIN {delivery_batch_task} bt ON bt.task_id = c.id
	LEFT JOIN {contributor} cb ON cb.id = c.current_user_id
	WHERE c.project_id = @project_id
		AND c.status = 'completed'
		AND r.review_type NOT IN ('auto')
		AND r.followup_required = 0
		AND r.id = (
			SELECT MAX(rn.id)
			FROM {review} rn
			WHERE rn.conversation_id = r.conversation_id
				AND rn.review_type = 'manual'
				AND rn.status = 'published'
		)
)
`

const domainExpr = `
		CASE
			WHEN REGEXP_CONTAINS(c.statement, r'\*\*domain\*\*') THEN
				TRIM(REGEXP_EXTRACT(c.statement, r'\*\*domain\*\*\s*-\s*([^\n]+)'))
			WHEN REGEXP_CONTAINS(c.statement, r'\*\*suggested-domain\*\*') THEN
				TRIM(REGEXP_EXTRACT(c.statement, r'\*\*suggested-domain\*\*\s*-\s*([^\n]+)'))
			ELSE NULL
		END AS domain`

const taskSQL = `,
rework_counts AS (
	SELECT
		conversation_id,
		COUNTIF(old_status = 'rework' OR new_status = 'rework') AS rework_count
	FROM {conversation_status_history}
	WHERE conversation_id IN (SELECT r_id FROM task_reviewed_info)
	GROUP BY conversation_id
)
SELECT
	c.id,
	c.created_at,
	c.updated_at,
	c.statement,
	c.status,
	c.project_id,
	c.batch_id,
	c.current_user_id,
	c.colab_link,
	tdi.is_delivered,
	COALESCE(rc.rework_count, 0) AS rework_count,` + domainExpr + `
FROM {conversation} c
INNER JOIN task_reviewed_info AS tdi ON tdi.r_id = c.id
LEFT JOIN rework_counts AS rc ON rc.conversation_id = c.id
WHERE c.project_id = @project_id
	AND c.status = 'completed'
`

const reviewDetailSQL = `,
task AS (
	SELECT c.*,` + domainExpr + `
	FROM {conversation} c
	WHERE c.project_id = @project_id
		AND c.id IN (SELECT r_id FROM task_reviewed_info)
		AND c.status = 'completed'
),
review AS (
	SELECT
		*,
		ROW_NUMBER() OVER (PARTITION BY conversation_id ORDER BY id DESC) AS row_num
	FROM {review}
	WHERE review_type = 'manual'
		AND status = 'published'
		AND conversation_id IN (SELECT DISTINCT id FROM task)
)
SELECT
	b.quality_dimension_id,
	task_.domain,
	task_.human_role_id,
	b.review_id,
	a.reviewer_id,
	a.conversation_id,
	tdi.is_delivered,
	rqd.name,
	b.score_text,
	b.score,
	a.score AS task_score,
	tdi.updated_at
FROM (SELECT * FROM review WHERE row_num = 1) a
RIGHT JOIN task AS task_ ON task_.id = a.conversation_id
LEFT JOIN task_reviewed_info AS tdi ON tdi.r_id = task_.id
LEFT JOIN {review_quality_dimension_value} AS b ON b.review_id = a.id
LEFT JOIN {quality_dimension} AS rqd ON rqd.id = b.quality_dimension_id
`

const allowedDimensionsSQL = `
SELECT DISTINCT name
FROM {project_quality_dimension}
WHERE project_id = @project_id AND is_enabled = 1
`
