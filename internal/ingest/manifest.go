package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"
)

// ManifestItem is one work item read from a delivery manifest.
type ManifestItem struct {
	WorkItemID  string
	TaskID      string
	AnnotatorID *int64
}

// Manifest is the interpreted content of one manifest file. Problems with
// single items are collected in Errors; the other items are still usable.
// Warnings note a file that carries no work item list at all.
type Manifest struct {
	Items    []ManifestItem
	Errors   []string
	Warnings []string
}

// taskIDShape locates the task id inside a work item. keys lists the item's
// fields in document order.
type taskIDShape struct {
	name string
	find func(item *jason.Object, keys []string) (string, bool)
}

// taskIDShapes are tried in order; the first match wins. The manifest format
// is owned upstream and not versioned, so each layout seen in the wild gets
// its own entry here.
var taskIDShapes = []taskIDShape{
	{name: "first_list_metadata_task_id", find: firstListMetadataTaskID},
}

// firstListMetadataTaskID takes the first list-valued field whose first
// element is an object with a metadata object carrying taskId.
func firstListMetadataTaskID(item *jason.Object, keys []string) (string, bool) {
	for _, key := range keys {
		list, err := item.GetValueArray(key)
		if err != nil || len(list) == 0 {
			continue
		}
		first, err := list[0].Object()
		if err != nil {
			continue
		}
		metadata, err := first.GetObject("metadata")
		if err != nil {
			continue
		}
		value, err := metadata.GetValue("taskId")
		if err != nil {
			continue
		}
		// a present but empty taskId still ends the search
		id, _ := scalarString(value)
		return id, true
	}
	return "", false
}

// ParseManifest interprets a delivery manifest. The document must be a JSON
// object; anything else is an error for the whole file. A missing or
// non-list "workitems" field yields an empty manifest with a warning. Items without a workItemId or a locatable task id are skipped with an
// entry in Errors naming file and item.
func ParseManifest(data []byte, filename string) (*Manifest, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	rawItems, ok := root["workitems"]
	if !ok {
		return &Manifest{
			Items:    []ManifestItem{},
			Warnings: []string{fmt.Sprintf("No 'workitems' key found in %s", filename)},
		}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rawItems, &items); err != nil {
		return &Manifest{
			Items:    []ManifestItem{},
			Warnings: []string{fmt.Sprintf("'workitems' is not a list in %s", filename)},
		}, nil
	}

	m := &Manifest{Items: make([]ManifestItem, 0, len(items))}
	for i, raw := range items {
		item, err := jason.NewObjectFromBytes(raw)
		if err != nil {
			m.Errors = append(m.Errors, fmt.Sprintf("Work item %d in %s is not an object", i, filename))
			continue
		}

		workItemID := ""
		if v, err := item.GetValue("workItemId"); err == nil {
			workItemID, _ = scalarString(v)
		}
		if workItemID == "" {
			m.Errors = append(m.Errors, fmt.Sprintf("Missing workItemId in %s (item %d)", filename, i))
			continue
		}

		keys, err := objectKeys(raw)
		if err != nil {
			m.Errors = append(m.Errors, fmt.Sprintf("Work item %s in %s: %v", workItemID, filename, err))
			continue
		}

		taskID := locateTaskID(item, keys)
		if taskID == "" {
			m.Errors = append(m.Errors, fmt.Sprintf("Could not extract taskId for workItemId %s in %s", workItemID, filename))
			continue
		}

		m.Items = append(m.Items, ManifestItem{
			WorkItemID:  workItemID,
			TaskID:      taskID,
			AnnotatorID: annotatorID(item),
		})
	}
	return m, nil
}

func locateTaskID(item *jason.Object, keys []string) string {
	for _, shape := range taskIDShapes {
		if id, ok := shape.find(item, keys); ok {
			return id
		}
	}
	return ""
}

// annotatorID reads metadata.annotatorId as a number or numeric string.
func annotatorID(item *jason.Object) *int64 {
	v, err := item.GetValue("metadata", "annotatorId")
	if err != nil {
		return nil
	}
	if n, err := v.Int64(); err == nil {
		return &n
	}
	if s, err := v.String(); err == nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return &n
		}
	}
	return nil
}

// scalarString renders a string or number value; other kinds yield "".
func scalarString(v *jason.Value) (string, bool) {
	if s, err := v.String(); err == nil {
		return strings.TrimSpace(s), true
	}
	if n, err := v.Number(); err == nil {
		return n.String(), true
	}
	return "", false
}

// objectKeys returns the top level keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("not an object")
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		keys = append(keys, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
