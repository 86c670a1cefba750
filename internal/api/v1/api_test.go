package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tphakala/reviewdash/internal/aggregate"
	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/datastore/repository"
	"github.com/tphakala/reviewdash/internal/datasync"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/feedback"
	"github.com/tphakala/reviewdash/internal/ingest"
	"github.com/tphakala/reviewdash/internal/objectstore"
	"github.com/tphakala/reviewdash/internal/testutil"
	"github.com/tphakala/reviewdash/internal/warehouse"
)

type fakeSyncer struct {
	kinds []datasync.Kind
}

func (f *fakeSyncer) SyncAll(_ context.Context, kind datasync.Kind) map[string]bool {
	f.kinds = append(f.kinds, kind)
	return map[string]bool{"contributor": true, "task": false}
}

func (f *fakeSyncer) SyncTable(_ context.Context, name string, kind datasync.Kind) (bool, error) {
	f.kinds = append(f.kinds, kind)
	if name != "task" {
		return false, errors.New(datasync.ErrUnknownTable).Category(errors.CategoryValidation).Build()
	}
	return true, nil
}

type fakeIngester struct {
	partition string
}

func (f *fakeIngester) Ingest(_ context.Context, partition string) (*ingest.Result, error) {
	f.partition = partition
	return &ingest.Result{Status: "completed", FilesProcessed: 2, WorkItemsIngested: 5}, nil
}

func (f *fakeIngester) ListPartitions(context.Context) ([]string, error) {
	return []string{"2025-01-14", "2025-01-15"}, nil
}

func (f *fakeIngester) ListManifests(_ context.Context, partition string) ([]objectstore.ObjectInfo, error) {
	return []objectstore.ObjectInfo{
		{Key: "deliveries/" + partition + "/batch.json", LastModified: time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC), Size: 42},
	}, nil
}

type testEnv struct {
	echo     *echo.Echo
	store    *datastore.Store
	syncer   *fakeSyncer
	ingester *fakeIngester
}

func setupTestEnvironment(t *testing.T) *testEnv {
	t.Helper()

	store := testutil.NewTestStore(t)
	seedStore(t, store)

	allow := aggregate.NewAllowList(warehouse.ClientFunc(func(context.Context, warehouse.Query) ([]warehouse.Row, error) {
		return []warehouse.Row{{"name": "clarity"}, {"name": "correctness"}}, nil
	}), warehouse.Query{Name: "allowed_dimensions"}, nil)

	env := &testEnv{echo: echo.New(), store: store, syncer: &fakeSyncer{}, ingester: &fakeIngester{}}
	New(env.echo, aggregate.New(store, allow),
		WithSyncer(env.syncer),
		WithIngester(env.ingester),
		WithFeedback(feedback.NewService(store)),
		WithSyncLogs(repository.NewSyncLogRepository(store.DB())),
		WithMaxUploadSize(1<<20),
	)
	return env
}

func seedStore(t *testing.T, store *datastore.Store) {
	t.Helper()
	db := store.DB()

	detail := func(task int64, domain, name string, score float64) datastore.ReviewDetail {
		return datastore.ReviewDetail{
			TaskID:        &task,
			Domain:        &domain,
			DimensionName: &name,
			Score:         &score,
			TaskScore:     testutil.Ptr(score),
		}
	}
	require.NoError(t, db.Create([]datastore.Task{
		{ID: 1, CollabLink: testutil.Ptr("L1"), Domain: testutil.Ptr("Law")},
		{ID: 2, CollabLink: testutil.Ptr("L2"), Domain: testutil.Ptr("Finance")},
	}).Error)
	require.NoError(t, db.Create([]datastore.ReviewDetail{
		detail(1, "Law", "clarity", 4),
		detail(2, "Finance", "clarity", 2),
		detail(2, "Finance", "correctness", 3),
	}).Error)
	require.NoError(t, db.Create(&datastore.WorkItem{
		WorkItemID: "wi-1", TaskID: "T1", CollabLink: "L9",
		TuringStatus: datastore.TuringStatusDelivered, ClientStatus: datastore.ClientStatusPending,
	}).Error)
	require.NoError(t, db.Create(&datastore.SyncLog{
		Table: datastore.TableTask, StartedAt: time.Now().UTC(), Status: datastore.SyncStatusCompleted,
		RecordsSynced: 2, SyncKind: string(datasync.KindManual), RunID: "run-1",
	}).Error)
}

func (env *testEnv) do(t *testing.T, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, body)
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestGetByDomain(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	rec := env.do(t, http.MethodGet, "/api/v1/stats/by-domain?scope=pre", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	domains := decode[[]aggregate.DomainStats](t, rec)
	require.Len(t, domains, 2)
	assert.Equal(t, "Finance", domains[0].Domain)
	assert.Equal(t, "Law", domains[1].Domain)
	assert.Len(t, domains[0].QualityDimensions, 2)

	rec = env.do(t, http.MethodGet, "/api/v1/stats/by-domain?domain=Law", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]aggregate.DomainStats](t, rec), 1)
}

func TestStats_InvalidParameters(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	for _, target := range []string{
		"/api/v1/stats/overall?scope=later",
		"/api/v1/stats/by-reviewer?reviewer=abc",
		"/api/v1/stats/by-trainer?date_from=03-10-2025",
		"/api/v1/stats/tasks?min_task_count=-1",
		"/api/v1/stats/by-domain?min_score=4&max_score=1",
	} {
		rec := env.do(t, http.MethodGet, target, nil, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, target)

		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Len(t, resp.CorrelationID, 8)
		assert.NotEmpty(t, resp.Error)
	}
}

func TestGetOverallAndTasks(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	rec := env.do(t, http.MethodGet, "/api/v1/stats/overall", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	overall := decode[aggregate.OverallStats](t, rec)
	assert.EqualValues(t, 2, overall.TaskCount)
	assert.EqualValues(t, 1, overall.WorkItemsCount)

	rec = env.do(t, http.MethodGet, "/api/v1/stats/tasks", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]aggregate.TaskStats](t, rec), 2)
}

func TestDeliveryEndpoints(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	rec := env.do(t, http.MethodGet, "/api/v1/delivery/tasks", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]aggregate.ClientTask](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/v1/delivery/tracker", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTriggerSync(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sync", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SyncResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, datasync.KindManual, resp.Kind)
	assert.Equal(t, map[string]bool{"contributor": true, "task": false}, resp.Tables)

	rec = env.do(t, http.MethodPost, "/api/v1/sync?table=task&kind=scheduled", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[SyncResponse](t, rec).Success)

	rec = env.do(t, http.MethodPost, "/api/v1/sync?table=nope", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/sync?kind=sometimes", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []datasync.Kind{datasync.KindManual, datasync.KindScheduled, datasync.KindManual}, env.syncer.kinds)
}

func TestGetSyncLogs(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	rec := env.do(t, http.MethodGet, "/api/v1/sync/logs?table=task&limit=10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[[]SyncLogEntry](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, "run-1", logs[0].RunID)
	assert.Equal(t, datastore.SyncStatusCompleted, logs[0].Status)

	rec = env.do(t, http.MethodGet, "/api/v1/sync/logs?limit=zero", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestAndObjectStore(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	rec := env.do(t, http.MethodPost, "/api/v1/ingest?folder=2025-01-15", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-01-15", env.ingester.partition)
	assert.Equal(t, 5, decode[ingest.Result](t, rec).WorkItemsIngested)

	rec = env.do(t, http.MethodGet, "/api/v1/objectstore/folders", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	folders := decode[FolderListResponse](t, rec)
	assert.Equal(t, 2, folders.Count)

	rec = env.do(t, http.MethodGet, "/api/v1/objectstore/folders/2025-01-15/files", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	files := decode[FolderFilesResponse](t, rec)
	assert.Equal(t, "2025-01-15", files.Folder)
	require.Len(t, files.Files, 1)
	assert.Equal(t, "deliveries/2025-01-15/batch.json", files.Files[0].Key)
}

func multipartFile(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestUploadFeedback(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	body, ct := multipartFile(t, "feedback.csv", "Work Item Id,Verdict\nwi-1,Rejected\nwi-404,Approved\n")
	rec := env.do(t, http.MethodPost, "/api/v1/feedback", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[feedback.Result](t, rec)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.NotFound)

	var item datastore.WorkItem
	require.NoError(t, env.store.DB().Where("work_item_id = ?", "wi-1").Take(&item).Error)
	assert.Equal(t, datastore.TuringStatusRework, item.TuringStatus)

	body, ct = multipartFile(t, "feedback.xls", "legacy")
	rec = env.do(t, http.MethodPost, "/api/v1/feedback", body, ct)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	body, ct = multipartFile(t, "feedback.csv", "Task,Notes\n1,x\n")
	rec = env.do(t, http.MethodPost, "/api/v1/feedback", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/feedback", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadFeedbackWorkbook(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Work Item Id", "Verdict"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"wi-1", "Approved"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	body, ct := multipartFile(t, "feedback.xlsx", buf.String())
	rec := env.do(t, http.MethodPost, "/api/v1/feedback", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[feedback.Result](t, rec)
	assert.Equal(t, 1, result.TotalRows)
	assert.Equal(t, 1, result.Updated)
}

func TestRefreshDimensions(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	rec := env.do(t, http.MethodPost, "/api/v1/dimensions/refresh", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"dimension_count": 2}, decode[map[string]int](t, rec))
}

func TestUnconfiguredEndpoints(t *testing.T) {
	t.Parallel()

	store := testutil.NewTestStore(t)
	allow := aggregate.NewAllowList(warehouse.ClientFunc(func(context.Context, warehouse.Query) ([]warehouse.Row, error) {
		return nil, nil
	}), warehouse.Query{}, nil)
	e := echo.New()
	New(e, aggregate.New(store, allow))

	for _, tc := range []struct{ method, target string }{
		{http.MethodPost, "/api/v1/sync"},
		{http.MethodPost, "/api/v1/ingest"},
		{http.MethodGet, "/api/v1/objectstore/folders"},
		{http.MethodPost, "/api/v1/feedback"},
		{http.MethodGet, "/api/v1/sync/logs"},
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.target, http.NoBody))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.target)
	}
}
