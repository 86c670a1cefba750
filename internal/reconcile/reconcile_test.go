package reconcile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/reconcile"
	"github.com/tphakala/reviewdash/internal/testutil"
)

func link(id string) string { return "https://rlhf-v3.turing.com/prompt/" + id }

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	tasks := []datastore.Task{
		{ID: 1, CollabLink: testutil.Ptr(link("1"))},
		{ID: 2, CollabLink: testutil.Ptr(link("2")), IsDelivered: true}, // stale flag
		{ID: 3, CollabLink: testutil.Ptr(link("3"))},
		{ID: 4},
	}
	require.NoError(t, db.Create(&tasks).Error)

	details := []datastore.ReviewDetail{
		{TaskID: testutil.Ptr(int64(1)), DimensionName: testutil.Ptr("clarity")},
		{TaskID: testutil.Ptr(int64(1)), DimensionName: testutil.Ptr("correctness")},
		{TaskID: testutil.Ptr(int64(2)), DimensionName: testutil.Ptr("clarity"), IsDelivered: true},
		{TaskID: testutil.Ptr(int64(3)), DimensionName: testutil.Ptr("clarity")},
		{DimensionName: testutil.Ptr("clarity")},
	}
	require.NoError(t, db.Create(&details).Error)

	items := []datastore.WorkItem{
		{WorkItemID: "wi-1", TaskID: "1", CollabLink: link("1")},
		{WorkItemID: "wi-1b", TaskID: "1", CollabLink: link("1")},
		{WorkItemID: "wi-3", TaskID: "3", CollabLink: link("3")},
		{WorkItemID: "wi-x", TaskID: "x", CollabLink: ""},
	}
	require.NoError(t, db.Create(&items).Error)
}

type flags struct {
	tasks   map[int64]bool
	details map[uint]bool
}

func snapshot(t *testing.T, db *gorm.DB) flags {
	t.Helper()
	var tasks []datastore.Task
	require.NoError(t, db.Find(&tasks).Error)
	var details []datastore.ReviewDetail
	require.NoError(t, db.Find(&details).Error)

	f := flags{tasks: map[int64]bool{}, details: map[uint]bool{}}
	for _, task := range tasks {
		f.tasks[task.ID] = task.IsDelivered
	}
	for _, d := range details {
		f.details[d.ID] = d.IsDelivered
	}
	return f
}

func TestReconcileMarksDeliveredTasks(t *testing.T) {
	t.Parallel()

	db := testutil.NewTestStore(t).DB()
	seed(t, db)

	result, err := reconcile.New(db, 0).Reconcile(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 2, result.DeliveredLinks)
	assert.Equal(t, 2, result.DeliveredTasks)
	assert.Equal(t, 3, result.ReviewRowsMarked)

	f := snapshot(t, db)
	assert.Equal(t, map[int64]bool{1: true, 2: false, 3: true, 4: false}, f.tasks)

	var delivered []datastore.ReviewDetail
	require.NoError(t, db.Where("is_delivered = ?", true).Find(&delivered).Error)
	for _, d := range delivered {
		require.NotNil(t, d.TaskID)
		assert.Contains(t, []int64{1, 3}, *d.TaskID)
	}
	assert.Len(t, delivered, 3)
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()

	db := testutil.NewTestStore(t).DB()
	seed(t, db)

	// chunk size 1 also exercises the chunked IN lists
	r := reconcile.New(db, 1)

	first, err := r.Reconcile(t.Context())
	require.NoError(t, err)
	before := snapshot(t, db)

	second, err := r.Reconcile(t.Context())
	require.NoError(t, err)
	after := snapshot(t, db)

	assert.Equal(t, first, second)
	assert.Equal(t, before, after)
}

func TestReconcileWithoutWorkItemsClearsFlags(t *testing.T) {
	t.Parallel()

	db := testutil.NewTestStore(t).DB()
	require.NoError(t, db.Create(&datastore.Task{ID: 9, CollabLink: testutil.Ptr(link("9")), IsDelivered: true}).Error)
	require.NoError(t, db.Create(&datastore.ReviewDetail{TaskID: testutil.Ptr(int64(9)), IsDelivered: true}).Error)

	result, err := reconcile.New(db, 0).Reconcile(t.Context())
	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{}, result)

	var count int64
	require.NoError(t, db.Model(&datastore.Task{}).Where("is_delivered = ?", true).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&datastore.ReviewDetail{}).Where("is_delivered = ?", true).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReconcileRollsBackOnError(t *testing.T) {
	t.Parallel()

	store := testutil.NewTestStore(t)
	db := store.DB()
	seed(t, db)
	before := snapshot(t, db)

	require.NoError(t, db.Migrator().DropTable(&datastore.ReviewDetail{}))

	_, err := reconcile.New(db, 0).Reconcile(t.Context())
	require.Error(t, err)

	var tasks []datastore.Task
	require.NoError(t, db.Find(&tasks).Error)
	for _, task := range tasks {
		assert.Equal(t, before.tasks[task.ID], task.IsDelivered, "task %d", task.ID)
	}
}
