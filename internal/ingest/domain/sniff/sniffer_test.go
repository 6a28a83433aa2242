package sniff

import (
	"context"
	"errors"
	"strings"
	"testing"

	ingest "meterprofile/internal/ingest/domain"
)

func TestSniffText_DirectiveAndBlankLines(t *testing.T) {
	text := "sep=;\r\n\r\nDate;Time;kWh\r\n2024-01-01;00:00;12,5\r\n2024-01-01;00:30;10\r\n"
	table := SniffText(text, Options{})
	if table.Empty() {
		t.Fatalf("expected table, got empty")
	}
	if !table.DirectiveSkipped {
		t.Fatalf("expected directive skipped")
	}
	if table.Separator != ';' {
		t.Fatalf("expected ';' separator, got %q", table.Separator)
	}
	if table.HeaderRowIndex != 2 {
		t.Fatalf("expected header row 2, got %d", table.HeaderRowIndex)
	}
	if strings.Join(table.Headers, "|") != "Date|Time|kWh" {
		t.Fatalf("unexpected headers %v", table.Headers)
	}
	if len(table.Rows) != 2 || table.Cell(0, 2) != "12,5" {
		t.Fatalf("unexpected rows %v", table.Rows)
	}
	if table.Layout != ingest.LayoutDelimited {
		t.Fatalf("expected delimited layout, got %s", table.Layout)
	}
}

func TestDetectSeparator(t *testing.T) {
	cases := map[string]rune{
		"a\tb;c,d": '\t',
		"a;b;c":    ';',
		"a;b,c":    ',',
		"a,b,c":    ',',
		"abc":      ',',
	}
	for line, want := range cases {
		if got := DetectSeparator(line); got != want {
			t.Fatalf("DetectSeparator(%q) = %q, want %q", line, got, want)
		}
	}
}

func TestSniffText_QuotedCells(t *testing.T) {
	table := SniffText("Date,Meter \"A\",Value\n2024-01-01 00:00,\"1,234.5\",x\n", Options{})
	if table.Empty() {
		t.Fatalf("expected table")
	}
	if table.Cell(0, 1) != "1,234.5" {
		t.Fatalf("expected quoted cell to stay whole, got %q", table.Cell(0, 1))
	}
}

func TestSniffText_WhitespaceMode(t *testing.T) {
	table := SniffText("date   time  kw\n2024-01-01 00:00   3.5\n", Options{Separator: ingest.WhitespaceSeparator})
	if table.Empty() {
		t.Fatalf("expected table")
	}
	if len(table.Headers) != 3 || len(table.Rows[0]) != 3 {
		t.Fatalf("expected 3 columns, got headers=%v row=%v", table.Headers, table.Rows[0])
	}
}

func TestSniffText_PivotAfterMetadata(t *testing.T) {
	text := strings.Join([]string{
		"Consumption report",
		"Site: Mall One",
		"Time,Shop A,Shop B",
		"00:00,1.5,2",
		"00:30,1.5,2",
	}, "\n")
	table := SniffText(text, Options{})
	if table.Layout != ingest.LayoutPivot {
		t.Fatalf("expected pivot layout")
	}
	if table.HeaderRowIndex != 2 {
		t.Fatalf("expected header row 2, got %d", table.HeaderRowIndex)
	}
	if table.Header(1) != "Shop A" || len(table.Rows) != 2 {
		t.Fatalf("unexpected table %+v", table)
	}
}

type fixedDetector struct{ idx int }

func (d fixedDetector) DetectHeader([][]string) (int, bool) { return d.idx, true }

func TestSniffText_ReplaceablePivotStrategy(t *testing.T) {
	text := "junk\nheader,a\n1,2\n"
	table := SniffText(text, Options{Pivot: fixedDetector{idx: 1}})
	if table.Header(0) != "header" {
		t.Fatalf("expected custom detector to choose header, got %v", table.Headers)
	}

	narrow := ScanWindow{Rows: 2}
	rows := [][]string{{"a"}, {"b"}, {"c"}, {"00:00", "1"}}
	if _, ok := narrow.DetectHeader(rows); ok {
		t.Fatalf("expected slot outside the window to be ignored")
	}
}

func TestSniffText_TooFewLines(t *testing.T) {
	for _, text := range []string{"", "\n\n", "sep=,\nDate,kWh\n", "only one line"} {
		table := SniffText(text, Options{})
		if !table.Empty() {
			t.Fatalf("expected empty table for %q", text)
		}
		if table.HeaderRowIndex != -1 {
			t.Fatalf("expected sentinel header index for %q", text)
		}
	}
}

func TestSniffGrid_Pivot(t *testing.T) {
	grid := [][]string{
		{"", ""},
		{"Time", "Shop A", "Shop A (2)"},
		{"00:00", "3", "3"},
		{"01:00", "4", "4"},
	}
	table := SniffGrid(grid, Options{})
	if table.Layout != ingest.LayoutPivot || table.HeaderRowIndex != 1 {
		t.Fatalf("unexpected grid table %+v", table)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
}

func TestSniffTextContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := SniffTextContext(ctx, "a,b\n1,2\n", Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
