package feedback

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tphakala/reviewdash/internal/errors"
)

// ErrUnsupportedFormat is returned for uploads that are neither CSV nor an
// Office Open XML workbook.
var ErrUnsupportedFormat = errors.NewStd("unsupported feedback file format")

// Normalized column names
const (
	colWorkItemID        = "workitemid"
	colVerdict           = "verdict"
	colTaskLevelFeedback = "tasklevelfeedback"
	colErrorCategories   = "errorcategories"
)

// Row is one client verdict on a work item.
type Row struct {
	WorkItemID        string
	Verdict           string
	TaskLevelFeedback *string
	ErrorCategories   *string
}

// NormalizeColumn lower cases a header and drops everything but ASCII
// letters and digits, so "Work Item Id" and "work_item_id" both match.
func NormalizeColumn(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseFile parses an uploaded feedback file, choosing the format by
// extension. Legacy binary .xls workbooks are not readable and have to be
// saved as .xlsx or CSV first.
func ParseFile(r io.Reader, filename string) ([]Row, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		return ParseCSV(r)
	case ".xlsx", ".xlsm":
		return ParseXLSX(r)
	default:
		return nil, errors.New(ErrUnsupportedFormat).
			Component("feedback").
			Category(errors.CategoryValidation).
			Context("filename", filename).
			Context("extension", ext).
			Build()
	}
}

// ParseCSV reads feedback rows from CSV. The header must carry a work item id
// and a verdict column; task level feedback and error categories are
// optional and other columns are ignored. Cell values are trimmed and empty
// optional cells read as nil.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // exports often carry ragged trailing columns
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, missingColumn(colWorkItemID)
	}
	if err != nil {
		return nil, parseError("parse_csv", err)
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, parseError("parse_csv", err)
		}
		records = append(records, record)
	}
	return rowsFromRecords(header, records)
}

// ParseXLSX reads feedback rows from the first sheet of a workbook, with the
// same header rules as ParseCSV.
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, parseError("open_xlsx", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, missingColumn(colWorkItemID)
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, parseError("read_xlsx", err)
	}
	if len(records) == 0 {
		return nil, missingColumn(colWorkItemID)
	}
	return rowsFromRecords(records[0], records[1:])
}

func rowsFromRecords(header []string, records [][]string) ([]Row, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		key := NormalizeColumn(name)
		if _, dup := columns[key]; !dup {
			columns[key] = i
		}
	}
	for _, required := range []string{colWorkItemID, colVerdict} {
		if _, ok := columns[required]; !ok {
			return nil, missingColumn(required)
		}
	}

	rows := make([]Row, 0, len(records))
	for _, record := range records {
		rows = append(rows, Row{
			WorkItemID:        cell(record, columns, colWorkItemID),
			Verdict:           cell(record, columns, colVerdict),
			TaskLevelFeedback: optionalCell(record, columns, colTaskLevelFeedback),
			ErrorCategories:   optionalCell(record, columns, colErrorCategories),
		})
	}
	return rows, nil
}

func cell(record []string, columns map[string]int, name string) string {
	i, ok := columns[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func optionalCell(record []string, columns map[string]int, name string) *string {
	v := cell(record, columns, name)
	if v == "" {
		return nil
	}
	return &v
}

func missingColumn(name string) error {
	return errors.Newf("required column not found: %s", name).
		Component("feedback").
		Category(errors.CategoryValidation).
		Context("column", name).
		Build()
}

func parseError(operation string, err error) error {
	return errors.New(err).
		Component("feedback").
		Category(errors.CategoryFileParsing).
		Context("operation", operation).
		Build()
}
