package feedback_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/feedback"
	"github.com/tphakala/reviewdash/internal/testutil"
)

func TestNormalizeColumn(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"Work Item Id":         "workitemid",
		" work_item_id ":       "workitemid",
		"VERDICT":              "verdict",
		"Task-Level Feedback":  "tasklevelfeedback",
		"Error Categories (1)": "errorcategories1",
	} {
		assert.Equal(t, want, feedback.NormalizeColumn(in), in)
	}
}

func TestParseCSV(t *testing.T) {
	t.Parallel()

	input := "\uFEFFTask Id,Work Item Id,Verdict,Task Level Feedback,Error Categories,prompt\n" +
		"1, wi-1 ,Approved,,None,text\n" +
		"2,wi-2, REJECTED ,\"needs work, see notes\",format\n" +
		"3,,Approved,,,\n"

	rows, err := feedback.ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "wi-1", rows[0].WorkItemID)
	assert.Equal(t, "Approved", rows[0].Verdict)
	assert.Nil(t, rows[0].TaskLevelFeedback)
	require.NotNil(t, rows[0].ErrorCategories)
	assert.Equal(t, "None", *rows[0].ErrorCategories)

	assert.Equal(t, "REJECTED", rows[1].Verdict)
	assert.Equal(t, "needs work, see notes", *rows[1].TaskLevelFeedback)
	assert.Equal(t, "format", *rows[1].ErrorCategories)

	assert.Empty(t, rows[2].WorkItemID)
}

func TestParseCSV_MissingRequiredColumn(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"no verdict":      "Work Item Id,Feedback\nwi-1,ok\n",
		"no work item id": "Task Id,Verdict\n1,Approved\n",
		"empty file":      "",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := feedback.ParseCSV(strings.NewReader(input))
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
}

func TestParseFile_RejectsUnknownFormats(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"feedback.XLS", "feedback.txt", "feedback"} {
		_, err := feedback.ParseFile(strings.NewReader("x"), name)
		require.ErrorIs(t, err, feedback.ErrUnsupportedFormat, name)
	}

	rows, err := feedback.ParseFile(strings.NewReader("workItemId,verdict\nwi-1,Approved\n"), "Feedback.CSV")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func workbook(t *testing.T, sheet string, cells [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })
	if sheet != "Sheet1" {
		require.NoError(t, f.SetSheetName("Sheet1", sheet))
	}
	for i, row := range cells {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, ref, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParseFile_Workbook(t *testing.T) {
	t.Parallel()

	buf := workbook(t, "Client Feedback", [][]any{
		{"Work Item Id", "Verdict", "Task Level Feedback", "Notes"},
		{" wi-1 ", "Approved", "", "ignored"},
		{"wi-2", "REJECTED", "needs work"},
		{12345, "Approved"},
	})

	rows, err := feedback.ParseFile(buf, "Feedback.XLSX")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "wi-1", rows[0].WorkItemID)
	assert.Equal(t, "Approved", rows[0].Verdict)
	assert.Nil(t, rows[0].TaskLevelFeedback)
	assert.Nil(t, rows[0].ErrorCategories)

	assert.Equal(t, "REJECTED", rows[1].Verdict)
	require.NotNil(t, rows[1].TaskLevelFeedback)
	assert.Equal(t, "needs work", *rows[1].TaskLevelFeedback)

	assert.Equal(t, "12345", rows[2].WorkItemID, "numeric ids read as text")
}

func TestParseFile_WorkbookErrors(t *testing.T) {
	t.Parallel()

	_, err := feedback.ParseFile(strings.NewReader("PK not a zip"), "feedback.xlsx")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))

	buf := workbook(t, "Sheet1", [][]any{{"Task Id", "Verdict"}, {1, "Approved"}})
	_, err = feedback.ParseFile(buf, "feedback.xlsx")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	empty := workbook(t, "Sheet1", nil)
	_, err = feedback.ParseFile(empty, "feedback.xlsx")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestTuringStatusFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, datastore.TuringStatusRework, feedback.TuringStatusFor("rejected", datastore.TuringStatusDelivered))
	assert.Equal(t, datastore.TuringStatusDelivered, feedback.TuringStatusFor("Approve", datastore.TuringStatusRework))
	assert.Equal(t, datastore.TuringStatusDelivered, feedback.TuringStatusFor(" APPROVED ", datastore.TuringStatusRework))
	assert.Equal(t, datastore.TuringStatusRework, feedback.TuringStatusFor("On Hold", datastore.TuringStatusRework))
}

func seedWorkItems(t *testing.T, store *datastore.Store) {
	t.Helper()
	require.NoError(t, store.DB().Create([]datastore.WorkItem{
		{WorkItemID: "wi-1", TaskID: "T1", CollabLink: "L1", TuringStatus: datastore.TuringStatusDelivered, ClientStatus: datastore.ClientStatusPending},
		{WorkItemID: "wi-2", TaskID: "T2", CollabLink: "L2", TuringStatus: datastore.TuringStatusDelivered, ClientStatus: datastore.ClientStatusPending,
			TaskLevelFeedback: testutil.Ptr("earlier feedback")},
		{WorkItemID: "wi-3", TaskID: "T3", CollabLink: "L3", TuringStatus: datastore.TuringStatusRework, ClientStatus: "Rejected"},
	}).Error)
}

func getWorkItem(t *testing.T, store *datastore.Store, id string) datastore.WorkItem {
	t.Helper()
	var item datastore.WorkItem
	require.NoError(t, store.DB().Where("work_item_id = ?", id).Take(&item).Error)
	return item
}

type capturePublisher struct {
	events []string
}

func (p *capturePublisher) Publish(_ context.Context, event string, _ any) error {
	p.events = append(p.events, event)
	return nil
}

func TestApply(t *testing.T) {
	t.Parallel()

	store := testutil.NewTestStore(t)
	seedWorkItems(t, store)
	pub := &capturePublisher{}
	svc := feedback.NewService(store, feedback.WithPublisher(pub))

	result, err := svc.Apply(t.Context(), []feedback.Row{
		{WorkItemID: "wi-1", Verdict: "REJECTED", TaskLevelFeedback: testutil.Ptr("missing steps"), ErrorCategories: testutil.Ptr("None")},
		{WorkItemID: "wi-2", Verdict: "Needs Discussion"},
		{WorkItemID: " wi-3 ", Verdict: "Approved"},
		{WorkItemID: "wi-404", Verdict: "Approved"},
		{WorkItemID: "", Verdict: "Approved"},
		{WorkItemID: "wi-1", Verdict: "  "},
	})
	require.NoError(t, err)

	assert.Equal(t, 6, result.TotalRows)
	assert.Equal(t, 3, result.Updated)
	assert.Equal(t, 2, result.NotFound, "unknown id and missing id")
	assert.Zero(t, result.Errors)
	assert.Equal(t, []string{"Row 5: missing work item id"}, result.ErrorDetails)
	assert.Equal(t, []string{feedback.EventFeedbackApplied}, pub.events)

	wi1 := getWorkItem(t, store, "wi-1")
	assert.Equal(t, "REJECTED", wi1.ClientStatus)
	assert.Equal(t, datastore.TuringStatusRework, wi1.TuringStatus)
	assert.Equal(t, "missing steps", *wi1.TaskLevelFeedback)
	assert.Nil(t, wi1.ErrorCategories, "None is not stored")

	wi2 := getWorkItem(t, store, "wi-2")
	assert.Equal(t, "Needs Discussion", wi2.ClientStatus)
	assert.Equal(t, datastore.TuringStatusDelivered, wi2.TuringStatus)
	assert.Equal(t, "earlier feedback", *wi2.TaskLevelFeedback, "absent feedback keeps the stored one")

	wi3 := getWorkItem(t, store, "wi-3")
	assert.Equal(t, "Approved", wi3.ClientStatus)
	assert.Equal(t, datastore.TuringStatusDelivered, wi3.TuringStatus)
}

func TestApply_RowFailureIsContained(t *testing.T) {
	t.Parallel()

	store := testutil.NewTestStore(t)
	seedWorkItems(t, store)

	// fail any update writing the poisoned verdict
	require.NoError(t, store.DB().Callback().Update().Before("gorm:update").Register("test:poison", func(tx *gorm.DB) {
		if updates, ok := tx.Statement.Dest.(map[string]any); ok && updates["client_status"] == "poison" {
			_ = tx.AddError(fmt.Errorf("constraint violated"))
		}
	}))

	svc := feedback.NewService(store)
	result, err := svc.Apply(t.Context(), []feedback.Row{
		{WorkItemID: "wi-1", Verdict: "Approved"},
		{WorkItemID: "wi-2", Verdict: "poison"},
		{WorkItemID: "wi-3", Verdict: "Approved"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.ErrorDetails, 1)
	assert.Contains(t, result.ErrorDetails[0], "wi-2")

	assert.Equal(t, "Approved", getWorkItem(t, store, "wi-1").ClientStatus)
	assert.Equal(t, datastore.ClientStatusPending, getWorkItem(t, store, "wi-2").ClientStatus)
	assert.Equal(t, "Approved", getWorkItem(t, store, "wi-3").ClientStatus)
}

func TestApply_CancelledContextRollsBack(t *testing.T) {
	t.Parallel()

	store := testutil.NewTestStore(t)
	seedWorkItems(t, store)
	svc := feedback.NewService(store)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := svc.Apply(ctx, []feedback.Row{{WorkItemID: "wi-1", Verdict: "Approved"}})
	require.Error(t, err)
	assert.Equal(t, datastore.ClientStatusPending, getWorkItem(t, store, "wi-1").ClientStatus)
}
