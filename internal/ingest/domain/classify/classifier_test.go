package classify

import (
	"errors"
	"testing"

	ingest "meterprofile/internal/ingest/domain"
)

func meterTable() ingest.ParsedTable {
	return ingest.ParsedTable{
		Headers: []string{"Date", "Time", "kWh", "Status", "Export kWh", "Notes"},
		Rows: [][]string{
			{"2024-01-01", "00:00", "12.5", "1", "0", "ok"},
			{"2024-01-01", "00:30", "\"1,010.0\"", "1", "0", "ok"},
			{"2024-01-02", "00:00", "R 8", "1", "1", "checked"},
			{"2024-01-02", "00:30", "", "1", "0", "ok"},
		},
		Layout: ingest.LayoutDelimited,
	}
}

func TestClassify_Roles(t *testing.T) {
	c := Classify(meterTable(), Options{})
	wantRoles := []Role{RoleDate, RoleTime, RoleValue, RoleIgnore, RoleValue, RoleIgnore}
	for i, want := range wantRoles {
		if c.Columns[i].Role != want {
			t.Fatalf("column %d (%s): got %s, want %s", i, c.Columns[i].Header, c.Columns[i].Role, want)
		}
	}
	kwh := c.Columns[2]
	if kwh.NonZeroCount != 3 {
		t.Fatalf("expected 3 non-zero kWh cells, got %d", kwh.NonZeroCount)
	}
	if kwh.Average < 343.49 || kwh.Average > 343.51 {
		t.Fatalf("unexpected average %v", kwh.Average)
	}
	if len(kwh.Samples) != 3 {
		t.Fatalf("expected empty cells left out of samples, got %v", kwh.Samples)
	}
	if c.Recommended != 2 {
		t.Fatalf("expected recommended column 2, got %d", c.Recommended)
	}
	if len(c.Ignored) != 2 || c.Ignored[0].Reason == "" {
		t.Fatalf("expected ignored columns with reasons, got %+v", c.Ignored)
	}
}

func TestClassify_StatusExcludedDespiteNumbers(t *testing.T) {
	c := Classify(meterTable(), Options{})
	if c.Columns[3].Role != RoleIgnore {
		t.Fatalf("status column must never be a value column")
	}
}

func TestClassify_RecommendedTieBreaksOnLowestIndex(t *testing.T) {
	table := ingest.ParsedTable{
		Headers: []string{"Timestamp", "A", "B"},
		Rows: [][]string{
			{"2024-01-01 00:00", "1", "2"},
			{"2024-01-01 01:00", "1", "2"},
		},
	}
	c := Classify(table, Options{})
	if c.Recommended != 1 {
		t.Fatalf("expected lowest index on tie, got %d", c.Recommended)
	}
	if !c.Columns[0].HasDatePart || !c.Columns[0].HasClockPart {
		t.Fatalf("expected combined timestamp column, got %+v", c.Columns[0])
	}
}

func TestClassify_NumericThreshold(t *testing.T) {
	rows := make([][]string, 0, 20)
	for i := 0; i < 20; i++ {
		cell := "n/a"
		if i < 2 {
			cell = "5"
		}
		rows = append(rows, []string{"2024-01-01 00:00", cell})
	}
	table := ingest.ParsedTable{Headers: []string{"When", "Reading"}, Rows: rows}
	if c := Classify(table, Options{}); c.Columns[1].Role != RoleValue {
		t.Fatalf("10%% numeric should qualify, got %s", c.Columns[1].Role)
	}
	if c := Classify(table, Options{MinNumericRatio: 0.2}); c.Columns[1].Role != RoleIgnore {
		t.Fatalf("expected ignore at a 20%% threshold")
	}
}

func TestClassify_EmptyValueColumnsIsValid(t *testing.T) {
	table := ingest.ParsedTable{
		Headers: []string{"Date", "Comment"},
		Rows:    [][]string{{"2024-01-01", "hello"}, {"2024-01-02", "world"}},
	}
	c := Classify(table, Options{})
	if len(c.ValueColumns) != 0 || c.Recommended != NoColumn {
		t.Fatalf("expected no value columns, got %+v", c)
	}
}

func TestResolve_DateAndTime(t *testing.T) {
	c := Classify(meterTable(), Options{})
	sel, err := Resolve(c, ingest.LayoutDelimited, Overrides{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sel.DateColumn != 0 || sel.TimeColumn != 1 || sel.TimestampColumn != NoColumn {
		t.Fatalf("unexpected selection %+v", sel)
	}
	if len(sel.ValueColumns) != 1 || sel.ValueColumns[0] != 2 {
		t.Fatalf("expected recommended value column, got %v", sel.ValueColumns)
	}
}

func TestResolve_OverrideWins(t *testing.T) {
	c := Classify(meterTable(), Options{})
	value := 4
	sel, err := Resolve(c, ingest.LayoutDelimited, Overrides{ValueColumns: []int{value}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sel.ValueColumns[0] != 4 {
		t.Fatalf("expected override value column, got %v", sel.ValueColumns)
	}

	sel, err = Resolve(c, ingest.LayoutDelimited, Overrides{Roles: map[int]Role{2: RoleIgnore}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sel.ValueColumns[0] != 4 {
		t.Fatalf("expected role override to move recommendation, got %v", sel.ValueColumns)
	}
}

func TestResolve_AmbiguityWithoutDate(t *testing.T) {
	table := ingest.ParsedTable{
		Headers: []string{"Meter", "kWh"},
		Rows:    [][]string{{"m1", "1"}, {"m2", "2"}},
	}
	c := Classify(table, Options{})
	if _, err := Resolve(c, ingest.LayoutDelimited, Overrides{}); !errors.Is(err, ingest.ErrColumnAmbiguity) {
		t.Fatalf("expected ErrColumnAmbiguity, got %v", err)
	}
	ts := 0
	if _, err := Resolve(c, ingest.LayoutDelimited, Overrides{TimestampColumn: &ts}); err != nil {
		t.Fatalf("override should resolve ambiguity: %v", err)
	}
}

func TestResolve_PivotTakesAllValueColumns(t *testing.T) {
	table := ingest.ParsedTable{
		Headers: []string{"Time", "Shop A", "Shop B"},
		Rows:    [][]string{{"00:00", "1", "2"}, {"01:00", "3", "4"}},
		Layout:  ingest.LayoutPivot,
	}
	c := Classify(table, Options{})
	sel, err := Resolve(c, ingest.LayoutPivot, Overrides{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sel.TimeColumn != 0 || len(sel.ValueColumns) != 2 || sel.HasDate() {
		t.Fatalf("unexpected pivot selection %+v", sel)
	}
}
