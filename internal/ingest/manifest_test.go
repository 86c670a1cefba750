package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"workitems": [
			{
				"workItemId": "wi-1",
				"metadata": {"annotatorId": 501},
				"notes": ["plain"],
				"2d777b79-8c8d-4ddd-9603-d5050a8b5a4c": [{"metadata": {"taskId": "1001"}}]
			},
			{
				"metadata": {"annotatorId": 502},
				"turns": [{"metadata": {"taskId": "1002"}}]
			},
			{
				"workItemId": 77,
				"metadata": {"annotatorId": "503"},
				"turns": [{"metadata": {"taskId": 1003}}]
			},
			{
				"workItemId": "wi-4",
				"turns": [{"text": "no metadata"}]
			},
			"not an object"
		]
	}`)

	m, err := ParseManifest(data, "batch.json")
	require.NoError(t, err)

	require.Len(t, m.Items, 2)
	assert.Equal(t, "wi-1", m.Items[0].WorkItemID)
	assert.Equal(t, "1001", m.Items[0].TaskID)
	require.NotNil(t, m.Items[0].AnnotatorID)
	assert.Equal(t, int64(501), *m.Items[0].AnnotatorID)

	assert.Equal(t, "77", m.Items[1].WorkItemID)
	assert.Equal(t, "1003", m.Items[1].TaskID)
	require.NotNil(t, m.Items[1].AnnotatorID)
	assert.Equal(t, int64(503), *m.Items[1].AnnotatorID)

	assert.Equal(t, []string{
		"Missing workItemId in batch.json (item 1)",
		"Could not extract taskId for workItemId wi-4 in batch.json",
		"Work item 4 in batch.json is not an object",
	}, m.Errors)
}

func TestParseManifestUsesFirstMatchingListInDocumentOrder(t *testing.T) {
	t.Parallel()

	data := []byte(`{"workitems": [{
		"workItemId": "wi-1",
		"zeta": [{"metadata": {"taskId": "first"}}],
		"alpha": [{"metadata": {"taskId": "second"}}]
	}]}`)

	m, err := ParseManifest(data, "f.json")
	require.NoError(t, err)
	require.Len(t, m.Items, 1)
	assert.Equal(t, "first", m.Items[0].TaskID)
	assert.Nil(t, m.Items[0].AnnotatorID)
}

func TestParseManifestRejectsDocument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{"workitems": [`},
		{"top level array", `[{"workItemId": "x"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseManifest([]byte(tt.data), "bad.json")
			assert.Error(t, err)
		})
	}
}

func TestParseManifestWithoutWorkItemList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		warning string
	}{
		{"missing workitems", `{"meta":{}}`, "No 'workitems' key found in odd.json"},
		{"workitems is an object", `{"workitems":{}}`, "'workitems' is not a list in odd.json"},
		{"workitems is a string", `{"workitems":"none"}`, "'workitems' is not a list in odd.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := ParseManifest([]byte(tt.data), "odd.json")
			require.NoError(t, err)
			assert.Empty(t, m.Items)
			assert.Empty(t, m.Errors)
			assert.Equal(t, []string{tt.warning}, m.Warnings)
		})
	}
}

func TestParseManifestEmptyList(t *testing.T) {
	t.Parallel()

	m, err := ParseManifest([]byte(`{"workitems": []}`), "empty.json")
	require.NoError(t, err)
	assert.Empty(t, m.Items)
	assert.Empty(t, m.Errors)
}
