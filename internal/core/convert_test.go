package core

import "testing"

// ============================================================================
// CleanCell Tests
// ============================================================================

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain value", "hello", "hello"},
		{"surrounding whitespace", "  hello  ", "hello"},
		{"excel formula prefix", `="12345"`, "12345"},
		{"bare equals prefix", "=12345", "12345"},
		{"double quotes", `"hello"`, "hello"},
		{"single quotes", "'hello'", "hello"},
		{"quotes then whitespace", `" hello "`, "hello"},
		{"empty", "", ""},
		{"only whitespace", "   ", ""},
		{"preserves interior quotes", `he"llo`, `he"llo`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ============================================================================
// ParseNumber / ParseQuantity Tests
// ============================================================================

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{"integer", "42", 42, false},
		{"decimal", "3.25", 3.25, false},
		{"negative", "-17", -17, false},
		{"leading plus", "+5", 5, false},
		{"currency dollar", "$1,234.50", 1234.5, false},
		{"currency euro", "€99", 99, false},
		{"currency pound", "£12.00", 12, false},
		{"thousands separators", "1,000,000", 1000000, false},
		{"accounting negative", "(123.45)", -123.45, false},
		{"accounting with currency", "($1,500)", -1500, false},
		{"scientific notation", "1.5e3", 1500, false},
		{"surrounding whitespace", " 7 ", 7, false},
		{"empty", "", 0, true},
		{"not a number", "abc", 0, true},
		{"trailing garbage", "12abc", 0, true},
		{"double decimal", "1.2.3", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNumber(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNumber(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseNumber(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseQuantity(t *testing.T) {
	if _, err := ParseQuantity("-1"); err == nil {
		t.Error("negative quantity should be rejected")
	}
	if _, err := ParseQuantity("(5)"); err == nil {
		t.Error("accounting-negative quantity should be rejected")
	}

	got, err := ParseQuantity("2,500")
	if err != nil {
		t.Fatalf("ParseQuantity: %v", err)
	}
	if got != 2500 {
		t.Errorf("ParseQuantity(\"2,500\") = %v, want 2500", got)
	}

	if _, err := ParseQuantity("0"); err != nil {
		t.Errorf("zero quantity should be accepted: %v", err)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{42, "42"},
		{3.25, "3.25"},
		{0, "0"},
		{-17.5, "-17.5"},
		{1000000, "1000000"},
	}

	for _, tt := range tests {
		if got := FormatNumber(tt.input); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
