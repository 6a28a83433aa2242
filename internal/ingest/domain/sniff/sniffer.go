package sniff

import (
	"context"
	"encoding/csv"
	"regexp"
	"strings"

	ingest "meterprofile/internal/ingest/domain"
)

// DefaultScanRows is how many leading rows the default pivot detector inspects.
const DefaultScanRows = 10

const cancelCheckEvery = 2048

var (
	lineBreak     = regexp.MustCompile(`\r?\n`)
	sepDirective  = regexp.MustCompile(`^(?i)sep=(.?)\s*$`)
	periodNumber  = regexp.MustCompile(`^\d{1,3}$`)
	timeHeaderSet = map[string]struct{}{
		"time":        {},
		"time slot":   {},
		"timeslot":    {},
		"time period": {},
		"period":      {},
		"interval":    {},
		"hour":        {},
	}
)

// PivotDetector locates the header of a pivot-table layout among leading rows.
// It returns the index of the header row and whether a pivot layout was found.
type PivotDetector interface {
	DetectHeader(rows [][]string) (int, bool)
}

// ScanWindow inspects the first Rows rows for time-of-day slot labels.
type ScanWindow struct {
	Rows int
}

// DetectHeader implements PivotDetector.
func (w ScanWindow) DetectHeader(rows [][]string) (int, bool) {
	limit := w.Rows
	if limit <= 0 {
		limit = DefaultScanRows
	}
	if limit > len(rows) {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		first := firstCell(rows[i])
		if i > 0 && ingest.IsTimeSlot(first) {
			return i - 1, true
		}
		if _, ok := timeHeaderSet[strings.ToLower(first)]; ok && i+1 < len(rows) && len(rows[i]) > 1 {
			next := firstCell(rows[i+1])
			if ingest.IsTimeSlot(next) || periodNumber.MatchString(next) {
				return i, true
			}
		}
	}
	return 0, false
}

// Options tunes sniffing. The zero value auto-detects everything.
type Options struct {
	// Separator forces a separator; ingest.WhitespaceSeparator splits on whitespace runs.
	Separator rune
	// Pivot replaces the default ScanWindow detector.
	Pivot PivotDetector
}

func (o Options) detector() PivotDetector {
	if o.Pivot != nil {
		return o.Pivot
	}
	return ScanWindow{Rows: DefaultScanRows}
}

type row struct {
	line  int
	cells []string
}

// SplitLines splits raw text on \r?\n.
func SplitLines(text string) []string {
	return lineBreak.Split(text, -1)
}

// SniffText splits text into lines and sniffs them.
func SniffText(text string, opts Options) ingest.ParsedTable {
	table, _ := SniffLinesContext(context.Background(), SplitLines(text), opts)
	return table
}

// SniffTextContext is SniffText with cancellation checks between chunks of lines.
func SniffTextContext(ctx context.Context, text string, opts Options) (ingest.ParsedTable, error) {
	return SniffLinesContext(ctx, SplitLines(text), opts)
}

// Sniff detects directive, separator and header row in already split lines.
// Unusable input yields the empty sentinel table.
func Sniff(lines []string, opts Options) ingest.ParsedTable {
	table, _ := SniffLinesContext(context.Background(), lines, opts)
	return table
}

// SniffLinesContext is Sniff with cancellation checks between chunks of lines.
func SniffLinesContext(ctx context.Context, lines []string, opts Options) (ingest.ParsedTable, error) {
	if len(lines) > 0 && strings.HasPrefix(lines[0], "\ufeff") {
		trimmed := make([]string, len(lines))
		copy(trimmed, lines)
		trimmed[0] = strings.TrimPrefix(trimmed[0], "\ufeff")
		lines = trimmed
	}
	start, directive, hasDirective := skipPreamble(lines)

	separator := opts.Separator
	if separator == 0 && hasDirective && directive != 0 {
		separator = directive
	}
	if separator == 0 {
		separator = detectFromLines(lines[start:], DefaultScanRows)
	}

	rows := make([]row, 0, len(lines)-start)
	for i := start; i < len(lines); i++ {
		if (i-start)%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return emptyTable(separator), err
			}
		}
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		rows = append(rows, row{line: i, cells: SplitCells(lines[i], separator)})
	}
	table := buildTable(rows, opts)
	table.Separator = separator
	table.DirectiveSkipped = hasDirective
	return table, nil
}

// SniffGrid applies header and pivot detection to a spreadsheet grid.
func SniffGrid(grid [][]string, opts Options) ingest.ParsedTable {
	rows := make([]row, 0, len(grid))
	directive := false
	for i, cells := range grid {
		trimmed := make([]string, len(cells))
		blank := true
		for j, cell := range cells {
			trimmed[j] = ingest.TrimCell(cell)
			if trimmed[j] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		if len(rows) == 0 && !directive && sepDirective.MatchString(trimmed[0]) {
			directive = true
			continue
		}
		rows = append(rows, row{line: i, cells: trimTrailingEmpty(trimmed)})
	}
	table := buildTable(rows, opts)
	table.DirectiveSkipped = directive
	return table
}

// DetectSeparator applies the tab, semicolon-without-comma, comma precedence to a line.
func DetectSeparator(line string) rune {
	switch {
	case strings.Contains(line, "\t"):
		return '\t'
	case strings.Contains(line, ";") && !strings.Contains(line, ","):
		return ';'
	default:
		return ','
	}
}

// SplitCells splits one line into trimmed cells.
func SplitCells(line string, separator rune) []string {
	var cells []string
	if separator == ingest.WhitespaceSeparator {
		cells = strings.Fields(line)
	} else {
		reader := csv.NewReader(strings.NewReader(line))
		reader.Comma = separator
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		record, err := reader.Read()
		if err != nil {
			record = strings.Split(line, string(separator))
		}
		cells = record
	}
	for i := range cells {
		cells[i] = ingest.TrimCell(cells[i])
	}
	return cells
}

func skipPreamble(lines []string) (int, rune, bool) {
	var (
		directive    rune
		hasDirective bool
	)
	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			i++
			continue
		}
		if !hasDirective {
			if match := sepDirective.FindStringSubmatch(trimmed); match != nil {
				hasDirective = true
				if match[1] != "" {
					directive = []rune(match[1])[0]
				}
				i++
				continue
			}
		}
		break
	}
	return i, directive, hasDirective
}

func detectFromLines(lines []string, limit int) rune {
	seen := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.ContainsAny(line, "\t;,") {
			return DetectSeparator(line)
		}
		seen++
		if seen >= limit {
			break
		}
	}
	return ','
}

func buildTable(rows []row, opts Options) ingest.ParsedTable {
	if len(rows) < 2 {
		return emptyTable(0)
	}
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = r.cells
	}
	header := 0
	layout := ingest.LayoutDelimited
	if idx, ok := opts.detector().DetectHeader(cells); ok && idx >= 0 && idx < len(rows)-1 {
		header = idx
		layout = ingest.LayoutPivot
	}

	data := make([][]string, 0, len(rows)-header-1)
	for _, r := range rows[header+1:] {
		data = append(data, r.cells)
	}
	if len(data) == 0 {
		return emptyTable(0)
	}
	headers := make([]string, len(rows[header].cells))
	copy(headers, rows[header].cells)
	return ingest.ParsedTable{
		Headers:        headers,
		Rows:           data,
		HeaderRowIndex: rows[header].line,
		Layout:         layout,
	}
}

func emptyTable(separator rune) ingest.ParsedTable {
	return ingest.ParsedTable{Separator: separator, HeaderRowIndex: -1, Layout: ingest.LayoutDelimited}
}

func firstCell(cells []string) string {
	if len(cells) == 0 {
		return ""
	}
	return ingest.TrimCell(cells[0])
}

func trimTrailingEmpty(cells []string) []string {
	end := len(cells)
	for end > 0 && cells[end-1] == "" {
		end--
	}
	return cells[:end]
}
