// model.go: gorm models for the dashboard tables
package datastore

import "time"

// Table names are fixed; the dashboard frontend and ad hoc reporting read them directly.
const (
	TableContributor      = "contributor"
	TableTaskReviewedInfo = "task_reviewed_info"
	TableTask             = "task"
	TableReviewDetail     = "review_detail"
	TableWorkItem         = "work_item"
	TableSyncLog          = "data_sync_log"
)

// Turing side delivery states of a work item
const (
	TuringStatusDelivered = "Delivered"
	TuringStatusRework    = "Rework"
)

// ClientStatusPending is the client verdict before any feedback arrives
const ClientStatusPending = "Pending"

// Contributor is a labeling tool user, replaced wholesale on each sync.
type Contributor struct {
	ID       int64   `gorm:"primaryKey;autoIncrement:false"`
	Name     *string `gorm:"size:255"`
	Email    *string `gorm:"column:turing_email;size:255"`
	RoleType *string `gorm:"column:type;size:50"`
	Status   *string `gorm:"size:50"`
}

// TableName returns the table name for GORM.
func (Contributor) TableName() string { return TableContributor }

// TaskReviewedInfo holds the latest published manual review of each completed task.
type TaskReviewedInfo struct {
	ID              uint       `gorm:"primaryKey"`
	ReviewedTaskID  *int64     `gorm:"column:r_id;index"`
	DeliveredTaskID *int64     `gorm:"column:delivered_id"`
	CollabLink      *string    `gorm:"column:rlhf_link;size:512"`
	IsDelivered     bool       `gorm:"not null;default:false"`
	ReviewStatus    *string    `gorm:"column:status;size:100"`
	TaskScore       *float64   `gorm:"column:task_score"`
	UpdatedAt       *time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
	ContributorName *string    `gorm:"column:name;size:255"`
	AnnotationDate  *time.Time `gorm:"column:annotation_date"`
}

// TableName returns the table name for GORM.
func (TaskReviewedInfo) TableName() string { return TableTaskReviewedInfo }

// Task is one reviewed work unit of the labeling project.
type Task struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt          *time.Time `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt          *time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
	Statement          *string    `gorm:"type:text"`
	Status             *string    `gorm:"size:50"`
	ProjectID          *int64     `gorm:"column:project_id"`
	BatchID            *int64     `gorm:"column:batch_id"`
	OwnerContributorID *int64     `gorm:"column:current_user_id;index"`
	CollabLink         *string    `gorm:"column:colab_link;size:512;index"`
	WeekNumber         *int       `gorm:"column:week_number"`
	IsDelivered        bool       `gorm:"not null;default:false;index"`
	Domain             *string    `gorm:"size:255;index"`
	ReworkCount        int        `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM.
func (Task) TableName() string { return TableTask }

// ReviewDetail is one quality dimension score of a task's selected review.
// Task level fields (domain, task score, trainer) repeat on every dimension row.
type ReviewDetail struct {
	ID                 uint       `gorm:"primaryKey"`
	QualityDimensionID *int64     `gorm:"column:quality_dimension_id"`
	Domain             *string    `gorm:"size:255;index:idx_review_detail_domain_name,priority:1"`
	OwnerContributorID *int64     `gorm:"column:human_role_id;index:idx_review_detail_trainer_name,priority:1"`
	ReviewID           *int64     `gorm:"column:review_id"`
	ReviewerID         *int64     `gorm:"column:reviewer_id;index:idx_review_detail_reviewer_name,priority:1"`
	TaskID             *int64     `gorm:"column:conversation_id;index:idx_review_detail_task_name,priority:1"`
	IsDelivered        bool       `gorm:"not null;default:false;index"`
	DimensionName      *string    `gorm:"column:name;size:255;index:idx_review_detail_domain_name,priority:2;index:idx_review_detail_reviewer_name,priority:2;index:idx_review_detail_trainer_name,priority:2;index:idx_review_detail_task_name,priority:2"`
	ScoreText          *string    `gorm:"column:score_text;size:255"`
	Score              *float64   `gorm:"column:score"`
	TaskScore          *float64   `gorm:"column:task_score"`
	UpdatedAt          *time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

// TableName returns the table name for GORM.
func (ReviewDetail) TableName() string { return TableReviewDetail }

// WorkItem is one delivered unit found in a delivery manifest.
// The key comes from the manifest and is never generated locally.
type WorkItem struct {
	WorkItemID         string     `gorm:"column:work_item_id;primaryKey;size:255"`
	TaskID             string     `gorm:"column:task_id;size:255;index;not null"`
	AnnotatorID        *int64     `gorm:"column:annotator_id"`
	CollabLink         string     `gorm:"column:colab_link;size:512;index"`
	IngestionPartition string     `gorm:"column:ingestion_date;size:100;index"`
	DeliveryDate       *time.Time `gorm:"column:delivery_date;index"`
	SourceFilename     string     `gorm:"column:json_filename;size:500"`
	CreatedAt          time.Time  `gorm:"autoCreateTime"`
	TuringStatus       string     `gorm:"size:100;not null;default:Delivered;index"`
	ClientStatus       string     `gorm:"size:100;not null;default:Pending;index"`
	TaskLevelFeedback  *string    `gorm:"type:text"`
	ErrorCategories    *string    `gorm:"type:text"`
}

// TableName returns the table name for GORM.
func (WorkItem) TableName() string { return TableWorkItem }

// Sync run statuses
const (
	SyncStatusStarted             = "started"
	SyncStatusCompleted           = "completed"
	SyncStatusCompletedWithErrors = "completed_with_errors"
	SyncStatusFailed              = "failed"
)

// SyncLog is an append only audit row for one table sync or ingestion run.
type SyncLog struct {
	ID            uint       `gorm:"primaryKey"`
	Table         string     `gorm:"column:table_name;size:200;index;not null"`
	StartedAt     time.Time  `gorm:"column:sync_started_at;not null"`
	CompletedAt   *time.Time `gorm:"column:sync_completed_at"`
	RecordsSynced int        `gorm:"not null;default:0"`
	Status        string     `gorm:"column:sync_status;size:100;not null"`
	ErrorMessage  *string    `gorm:"type:text"`
	SyncKind      string     `gorm:"column:sync_type;size:50;not null"`
	RunID         string     `gorm:"size:36;index"`
}

// TableName returns the table name for GORM.
func (SyncLog) TableName() string { return TableSyncLog }

// Models lists every model owned by the store, in migration order.
func Models() []any {
	return []any{
		&Contributor{},
		&TaskReviewedInfo{},
		&Task{},
		&ReviewDetail{},
		&WorkItem{},
		&SyncLog{},
	}
}
