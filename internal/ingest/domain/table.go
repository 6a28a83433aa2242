package ingest

// Layout describes how a table arranges time and meters.
type Layout string

const (
	// LayoutDelimited is a row-per-reading export with a date dimension.
	LayoutDelimited Layout = "delimited"
	// LayoutPivot has time-of-day rows and one column per meter, without dates.
	LayoutPivot Layout = "pivot"
)

// WhitespaceSeparator selects splitting on any whitespace run.
const WhitespaceSeparator rune = ' '

// RawImportFile is one uploaded file, scoped to a single import session.
// Exactly one of Text or Grid is set.
type RawImportFile struct {
	Name string
	Text string
	Grid [][]string
}

// IsGrid reports whether the file was read as a spreadsheet grid.
func (f RawImportFile) IsGrid() bool { return f.Grid != nil }

// RowCount returns the number of raw rows.
func (f RawImportFile) RowCount() int {
	if f.Grid != nil {
		return len(f.Grid)
	}
	if f.Text == "" {
		return 0
	}
	count := 1
	for i := 0; i < len(f.Text); i++ {
		if f.Text[i] == '\n' {
			count++
		}
	}
	return count
}

// ParsedTable is the header/row structure recovered from a raw file.
type ParsedTable struct {
	Headers          []string
	Rows             [][]string
	Separator        rune
	HeaderRowIndex   int
	Layout           Layout
	DirectiveSkipped bool
}

// Empty reports whether the table is the sentinel returned for unusable input.
func (t ParsedTable) Empty() bool {
	return len(t.Headers) == 0 || len(t.Rows) == 0
}

// Cell returns the trimmed cell at row/col, or "" when out of range.
func (t ParsedTable) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	cells := t.Rows[row]
	if col < 0 || col >= len(cells) {
		return ""
	}
	return cells[col]
}

// Header returns the header at col, or "" when out of range.
func (t ParsedTable) Header(col int) string {
	if col < 0 || col >= len(t.Headers) {
		return ""
	}
	return t.Headers[col]
}

// ColumnCount returns the widest of the header and data rows.
func (t ParsedTable) ColumnCount() int {
	width := len(t.Headers)
	for _, row := range t.Rows {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}
