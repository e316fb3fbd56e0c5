package core

import (
	"errors"
	"strings"
	"testing"
)

// ============================================================================
// ParseImportFile Tests
// ============================================================================

const fullHeader = "materialIdentifier,description,materialType,systemType,quantityEstimated,unitOfMeasure,locationLevel,locationZone,detailDrawingId,costEstimated,status"

func TestParseImportFile_RequiredAndOptionalColumns(t *testing.T) {
	data := []byte(fullHeader + "\n" +
		"P-001,6in CHW supply,PIPE,CHW,120.5,LF,L02,Z-A,DWG-17,1500.00,DETAILED\n")

	rows, err := ParseImportFile(data)
	if err != nil {
		t.Fatalf("ParseImportFile: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	if row.Index != 1 {
		t.Errorf("Index = %d, want 1", row.Index)
	}
	if row.MaterialIdentifier != "P-001" {
		t.Errorf("MaterialIdentifier = %q", row.MaterialIdentifier)
	}
	if row.QuantityEstimated != "120.5" {
		t.Errorf("QuantityEstimated = %q", row.QuantityEstimated)
	}
	if row.LocationLevel == nil || *row.LocationLevel != "L02" {
		t.Errorf("LocationLevel = %v, want L02", row.LocationLevel)
	}
	if row.CostEstimated == nil || *row.CostEstimated != "1500.00" {
		t.Errorf("CostEstimated = %v, want 1500.00", row.CostEstimated)
	}
	if row.Status == nil || *row.Status != "DETAILED" {
		t.Errorf("Status = %v, want DETAILED", row.Status)
	}
}

func TestParseImportFile_AbsentOptionalColumnIsNil(t *testing.T) {
	data := []byte("materialIdentifier,description,materialType,systemType,quantityEstimated,unitOfMeasure\n" +
		"P-001,6in CHW supply,PIPE,CHW,120.5,LF\n")

	rows, err := ParseImportFile(data)
	if err != nil {
		t.Fatalf("ParseImportFile: %v", err)
	}
	row := rows[0]
	if row.LocationLevel != nil {
		t.Error("absent locationLevel column should parse as nil")
	}
	if row.CostEstimated != nil {
		t.Error("absent costEstimated column should parse as nil")
	}
	if row.Status != nil {
		t.Error("absent status column should parse as nil")
	}
}

func TestParseImportFile_PresentEmptyOptionalIsExplicitClear(t *testing.T) {
	data := []byte("materialIdentifier,description,materialType,systemType,quantityEstimated,unitOfMeasure,costEstimated\n" +
		"P-001,6in CHW supply,PIPE,CHW,120.5,LF,\n")

	rows, err := ParseImportFile(data)
	if err != nil {
		t.Fatalf("ParseImportFile: %v", err)
	}
	row := rows[0]
	if row.CostEstimated == nil {
		t.Fatal("present-but-empty costEstimated should be non-nil")
	}
	if *row.CostEstimated != "" {
		t.Errorf("present-but-empty costEstimated = %q, want empty", *row.CostEstimated)
	}
}

func TestParseImportFile_MissingRequiredColumns(t *testing.T) {
	data := []byte("materialIdentifier,description\nP-001,widget\n")

	_, err := ParseImportFile(data)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}

	want := []string{"materialType", "systemType", "quantityEstimated", "unitOfMeasure"}
	if len(parseErr.Missing) != len(want) {
		t.Fatalf("Missing = %v, want %v", parseErr.Missing, want)
	}
	for i, col := range want {
		if parseErr.Missing[i] != col {
			t.Errorf("Missing[%d] = %q, want %q", i, parseErr.Missing[i], col)
		}
	}
}

func TestParseImportFile_ByteOrderMark(t *testing.T) {
	// Excel-on-Windows exports start with a UTF-8 BOM; the header must
	// parse as if it were not there.
	data := []byte("\xef\xbb\xbf" + "materialIdentifier,description,materialType,systemType,quantityEstimated,unitOfMeasure\n" +
		"P-001,widget,PIPE,CHW,1,EA\n")

	rows, err := ParseImportFile(data)
	if err != nil {
		t.Fatalf("ParseImportFile with BOM: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].MaterialIdentifier != "P-001" {
		t.Errorf("MaterialIdentifier = %q, want P-001", rows[0].MaterialIdentifier)
	}
}

func TestParseImportFile_HeaderCaseInsensitive(t *testing.T) {
	data := []byte("MATERIALIDENTIFIER,Description,materialtype,SystemType,quantityestimated,UnitOfMeasure\n" +
		"P-001,widget,PIPE,CHW,1,EA\n")

	rows, err := ParseImportFile(data)
	if err != nil {
		t.Fatalf("ParseImportFile: %v", err)
	}
	if len(rows) != 1 || rows[0].Description != "widget" {
		t.Errorf("case-insensitive headers should parse normally, got %+v", rows)
	}
}

func TestParseImportFile_EmptyFile(t *testing.T) {
	for _, data := range [][]byte{nil, []byte(""), []byte("  \n \n")} {
		var parseErr *ParseError
		if _, err := ParseImportFile(data); !errors.As(err, &parseErr) {
			t.Errorf("empty input %q should fail with *ParseError, got %v", data, err)
		}
	}
}

func TestParseImportFile_FileTooLarge(t *testing.T) {
	saved := MaxImportFileSize
	MaxImportFileSize = 16
	defer func() { MaxImportFileSize = saved }()

	_, err := ParseImportFile([]byte(fullHeader + "\nP-001,widget,PIPE,CHW,1,EA\n"))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if !strings.Contains(parseErr.Error(), "too large") {
		t.Errorf("error = %q, want mention of size", parseErr.Error())
	}
}

func TestParseImportFile_SkipsEmptyRows(t *testing.T) {
	data := []byte("materialIdentifier,description,materialType,systemType,quantityEstimated,unitOfMeasure\n" +
		"P-001,widget,PIPE,CHW,1,EA\n" +
		",,,,,\n" +
		"P-002,gadget,VALVE,HHW,2,EA\n")

	rows, err := ParseImportFile(data)
	if err != nil {
		t.Fatalf("ParseImportFile: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after skipping blank, got %d", len(rows))
	}
	// Index still reflects file position.
	if rows[1].Index != 3 {
		t.Errorf("second row Index = %d, want 3", rows[1].Index)
	}
}

func TestParseImportFile_CleansExcelArtifacts(t *testing.T) {
	data := []byte("materialIdentifier,description,materialType,systemType,quantityEstimated,unitOfMeasure\n" +
		`="P-001",  widget , PIPE ,CHW,"1,200",EA` + "\n")

	rows, err := ParseImportFile(data)
	if err != nil {
		t.Fatalf("ParseImportFile: %v", err)
	}
	row := rows[0]
	if row.MaterialIdentifier != "P-001" {
		t.Errorf("MaterialIdentifier = %q, want P-001", row.MaterialIdentifier)
	}
	if row.Description != "widget" {
		t.Errorf("Description = %q, want widget", row.Description)
	}
	if row.QuantityEstimated != "1,200" {
		t.Errorf("QuantityEstimated = %q, want raw 1,200", row.QuantityEstimated)
	}
}

func TestParseImportFile_ShortRecord(t *testing.T) {
	data := []byte("materialIdentifier,description,materialType,systemType,quantityEstimated,unitOfMeasure\n" +
		"P-001,widget\n")

	rows, err := ParseImportFile(data)
	if err != nil {
		t.Fatalf("ParseImportFile: %v", err)
	}
	if rows[0].QuantityEstimated != "" {
		t.Errorf("missing cells in a short record should read as empty, got %q", rows[0].QuantityEstimated)
	}
}
