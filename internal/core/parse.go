package core

import (
	"bytes"
	"encoding/csv"
	"strings"
	"unicode/utf8"
)

// MaxImportFileSize is the maximum accepted import file size (20MB).
var MaxImportFileSize int64 = 20 * 1024 * 1024

// Required import columns. Header matching is case-insensitive; missing
// any of these fails the whole batch before a single row is processed.
var requiredColumns = []string{
	"materialIdentifier",
	"description",
	"materialType",
	"systemType",
	"quantityEstimated",
	"unitOfMeasure",
}

// Optional import columns. When a column is absent the corresponding row
// field stays nil ("leave unchanged"); a present-but-empty cell is an
// explicit clear. Unknown columns are ignored entirely.
var optionalColumns = []string{
	"locationLevel",
	"locationZone",
	"detailDrawingId",
	"costEstimated",
	"status",
}

// headerIndex maps lowercased column names to their position in the row.
type headerIndex map[string]int

func makeHeaderIndex(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

// ParseImportFile converts a spreadsheet byte stream into structured
// rows. The first row must hold the headers and must be a superset of
// the required column set; otherwise the whole batch fails with a
// *ParseError and no rows are returned.
func ParseImportFile(data []byte) ([]ImportRow, error) {
	if int64(len(data)) > MaxImportFileSize {
		return nil, &ParseError{Reason: "file too large"}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Reason: "empty file"}
	}

	// Excel-on-Windows prefixes its CSV exports with a UTF-8 BOM, which
	// would otherwise stick to the first header cell.
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	data = sanitizeUTF8(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, &ParseError{Reason: "invalid csv: " + err.Error()}
	}
	if len(records) == 0 {
		return nil, &ParseError{Reason: "empty file"}
	}

	idx := makeHeaderIndex(records[0])

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &ParseError{Missing: missing}
	}

	rows := make([]ImportRow, 0, len(records)-1)
	for i, record := range records[1:] {
		if isEmptyRow(record) {
			continue
		}

		row := ImportRow{
			Index:              i + 1,
			MaterialIdentifier: cellAt(record, idx, "materialIdentifier"),
			Description:        cellAt(record, idx, "description"),
			MaterialType:       cellAt(record, idx, "materialType"),
			SystemType:         cellAt(record, idx, "systemType"),
			QuantityEstimated:  cellAt(record, idx, "quantityEstimated"),
			UnitOfMeasure:      cellAt(record, idx, "unitOfMeasure"),

			LocationLevel:   optionalCellAt(record, idx, "locationLevel"),
			LocationZone:    optionalCellAt(record, idx, "locationZone"),
			DetailDrawingID: optionalCellAt(record, idx, "detailDrawingId"),
			CostEstimated:   optionalCellAt(record, idx, "costEstimated"),
			Status:          optionalCellAt(record, idx, "status"),
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// cellAt returns the cleaned cell for a required column. Short records
// read as empty cells; row-level validation decides what that means.
func cellAt(record []string, idx headerIndex, column string) string {
	pos, ok := idx[strings.ToLower(column)]
	if !ok || pos >= len(record) {
		return ""
	}
	return CleanCell(record[pos])
}

// optionalCellAt returns nil when the column is absent from the file,
// and a pointer to the cleaned value (possibly empty, meaning "clear")
// when present.
func optionalCellAt(record []string, idx headerIndex, column string) *string {
	pos, ok := idx[strings.ToLower(column)]
	if !ok {
		return nil
	}
	v := ""
	if pos < len(record) {
		v = CleanCell(record[pos])
	}
	return &v
}

func isEmptyRow(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// sanitizeUTF8 replaces invalid byte sequences with the Unicode
// replacement character so the CSV reader never chokes on exported
// spreadsheets with stray Windows-1252 bytes.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
