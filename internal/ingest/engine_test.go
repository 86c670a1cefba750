package ingest_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/datastore/repository"
	"github.com/tphakala/reviewdash/internal/ingest"
	"github.com/tphakala/reviewdash/internal/objectstore"
	"github.com/tphakala/reviewdash/internal/reconcile"
	"github.com/tphakala/reviewdash/internal/testutil"
)

var landed = time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)

const twoItems = `{"workitems": [
	{"workItemId": "wi-1", "metadata": {"annotatorId": 501}, "turns": [{"metadata": {"taskId": "1001"}}]},
	{"metadata": {"annotatorId": 502}, "turns": [{"metadata": {"taskId": "1002"}}]}
]}`

func writeFile(t *testing.T, fsys afero.Fs, name, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, name, []byte(content), 0o644))
	require.NoError(t, fsys.Chtimes(name, landed, landed))
}

type failingReconciler struct{}

func (failingReconciler) Reconcile(context.Context) (reconcile.Result, error) {
	return reconcile.Result{}, fmt.Errorf("database is locked")
}

func newEngine(t *testing.T, fsys afero.Fs, rec ingest.Reconciler) (*ingest.Engine, *datastore.Store) {
	t.Helper()
	store := testutil.NewTestStore(t)
	if rec == nil {
		rec = reconcile.New(store.DB(), 0)
	}
	objects := objectstore.NewLocalStoreFs(fsys, "deliveries", nil)
	settings := &conf.IngestSettings{Extensions: []string{".json"}}
	return ingest.New(objects, store, rec, settings), store
}

func TestIngestSingleManifest(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/deliveries/2025-10-03/batch.json", twoItems)
	writeFile(t, fsys, "/deliveries/2025-10-03/readme.txt", "ignored")

	e, store := newEngine(t, fsys, nil)

	result, err := e.Ingest(t.Context(), "")
	require.NoError(t, err)

	assert.Equal(t, datastore.SyncStatusCompletedWithErrors, result.Status)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Equal(t, 1, result.WorkItemsIngested)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "workItemId")
	assert.Contains(t, result.Errors[0], "item 1")

	item, err := repository.NewWorkItemRepository(store.DB()).Get(t.Context(), "wi-1")
	require.NoError(t, err)
	assert.Equal(t, "1001", item.TaskID)
	assert.Equal(t, "https://rlhf-v3.turing.com/prompt/1001", item.CollabLink)
	assert.Equal(t, "2025-10-03", item.IngestionPartition)
	assert.Equal(t, "batch.json", item.SourceFilename)
	require.NotNil(t, item.DeliveryDate)
	assert.True(t, landed.Equal(*item.DeliveryDate))
	require.NotNil(t, item.AnnotatorID)
	assert.Equal(t, int64(501), *item.AnnotatorID)
	assert.Equal(t, datastore.TuringStatusDelivered, item.TuringStatus)
	assert.Equal(t, datastore.ClientStatusPending, item.ClientStatus)

	logs, err := repository.NewSyncLogRepository(store.DB()).List(t.Context(), "work_item", 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "scheduled", logs[0].SyncKind)
	assert.Equal(t, datastore.SyncStatusCompletedWithErrors, logs[0].Status)
	assert.Equal(t, 1, logs[0].RecordsSynced)
}

func TestIngestPreservesFeedback(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/deliveries/2025-10-03/batch.json", twoItems)
	e, store := newEngine(t, fsys, nil)
	db := store.DB()

	_, err := e.Ingest(t.Context(), "2025-10-03")
	require.NoError(t, err)

	require.NoError(t, db.Model(&datastore.WorkItem{}).
		Where("work_item_id = ?", "wi-1").
		Updates(map[string]any{"client_status": "Approved", "task_level_feedback": "great"}).Error)

	result, err := e.Ingest(t.Context(), "2025-10-03")
	require.NoError(t, err)
	assert.Equal(t, 1, result.WorkItemsIngested)

	item, err := repository.NewWorkItemRepository(db).Get(t.Context(), "wi-1")
	require.NoError(t, err)
	assert.Equal(t, "Approved", item.ClientStatus)
	require.NotNil(t, item.TaskLevelFeedback)
	assert.Equal(t, "great", *item.TaskLevelFeedback)

	logs, err := repository.NewSyncLogRepository(db).List(t.Context(), "work_item", 1)
	require.NoError(t, err)
	assert.Equal(t, "manual", logs[0].SyncKind)
}

func TestIngestReconcilesDeliveredTasks(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/deliveries/p1/batch.json", twoItems)
	e, store := newEngine(t, fsys, nil)
	db := store.DB()

	require.NoError(t, db.Create(&datastore.Task{ID: 1001, CollabLink: testutil.Ptr("https://rlhf-v3.turing.com/prompt/1001")}).Error)
	require.NoError(t, db.Create(&datastore.ReviewDetail{TaskID: testutil.Ptr(int64(1001))}).Error)

	_, err := e.Ingest(t.Context(), "")
	require.NoError(t, err)

	var task datastore.Task
	require.NoError(t, db.First(&task, 1001).Error)
	assert.True(t, task.IsDelivered)

	var detail datastore.ReviewDetail
	require.NoError(t, db.First(&detail).Error)
	assert.True(t, detail.IsDelivered)
}

func TestIngestNoPartitions(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, afero.NewMemMapFs(), nil)

	result, err := e.Ingest(t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, datastore.SyncStatusCompleted, result.Status)
	assert.Zero(t, result.FilesProcessed)
	assert.Equal(t, []string{"No folders found"}, result.Errors)
}

func TestIngestCollectsFileErrors(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/deliveries/p1/a.json", `{"workitems": [`)
	writeFile(t, fsys, "/deliveries/p1/b.json", "")
	writeFile(t, fsys, "/deliveries/p1/c.json", `{"workitems": []}`)

	e, store := newEngine(t, fsys, failingReconciler{})

	result, err := e.Ingest(t.Context(), "p1")
	require.NoError(t, err)

	assert.Equal(t, datastore.SyncStatusCompletedWithErrors, result.Status)
	assert.Equal(t, 1, result.FilesProcessed, "an empty but valid manifest still counts")
	assert.Zero(t, result.WorkItemsIngested)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "deliveries/p1/a.json")
	assert.Equal(t, "Could not read deliveries/p1/b.json", result.Errors[1])
	assert.Equal(t, "Failed to update is_delivered status: database is locked", result.Errors[2])

	logs, err := repository.NewSyncLogRepository(store.DB()).List(t.Context(), "work_item", 1)
	require.NoError(t, err)
	require.NotNil(t, logs[0].ErrorMessage)
	assert.Contains(t, *logs[0].ErrorMessage, "; Could not read deliveries/p1/b.json; ")
}

func TestIngestCountsManifestWithoutWorkItems(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/deliveries/p1/meta.json", `{"meta":{}}`)
	writeFile(t, fsys, "/deliveries/p1/object.json", `{"workitems":{}}`)

	e, _ := newEngine(t, fsys, nil)

	result, err := e.Ingest(t.Context(), "p1")
	require.NoError(t, err)
	assert.Equal(t, datastore.SyncStatusCompleted, result.Status)
	assert.Equal(t, 2, result.FilesProcessed)
	assert.Zero(t, result.WorkItemsIngested)
	assert.Empty(t, result.Errors)
}

func TestIngestTruncatesLoggedErrors(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	for i := range 12 {
		writeFile(t, fsys, fmt.Sprintf("/deliveries/p1/f%02d.json", i), "")
	}
	e, store := newEngine(t, fsys, nil)

	result, err := e.Ingest(t.Context(), "p1")
	require.NoError(t, err)
	assert.Len(t, result.Errors, 12)

	logs, err := repository.NewSyncLogRepository(store.DB()).List(t.Context(), "work_item", 1)
	require.NoError(t, err)
	require.NotNil(t, logs[0].ErrorMessage)
	assert.Contains(t, *logs[0].ErrorMessage, "f09.json")
	assert.NotContains(t, *logs[0].ErrorMessage, "f10.json")
}

func TestListManifestsFiltersExtensions(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/deliveries/p1/a.json", "{}")
	writeFile(t, fsys, "/deliveries/p1/B.JSON", "{}")
	writeFile(t, fsys, "/deliveries/p1/c.csv", "")
	e, _ := newEngine(t, fsys, nil)

	manifests, err := e.ListManifests(t.Context(), "p1")
	require.NoError(t, err)
	names := make([]string, 0, len(manifests))
	for _, m := range manifests {
		names = append(names, m.Name())
	}
	assert.ElementsMatch(t, []string{"a.json", "B.JSON"}, names)

	partitions, err := e.ListPartitions(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, partitions)
}
