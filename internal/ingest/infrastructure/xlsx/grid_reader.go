package xlsx

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	ingest "meterprofile/internal/ingest/domain"
)

// ErrSheetNotFound is returned when the requested sheet does not exist.
var ErrSheetNotFound = errors.New("xlsx: sheet not found")

// Grid is one worksheet read as display strings.
type Grid struct {
	Sheet  string
	Sheets []string
	Rows   [][]string
}

// ReadGrid reads a worksheet from an XLSX workbook. An empty sheet name selects the
// first non-empty sheet. Cells are returned as formatted, so time-of-day cells
// come back as "0:30" rather than day fractions.
func ReadGrid(r io.Reader, sheet string) (Grid, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Grid{}, fmt.Errorf("%w: open workbook: %v", ingest.ErrFormat, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Grid{}, fmt.Errorf("%w: workbook has no sheets", ingest.ErrFormat)
	}
	grid := Grid{Sheets: sheets}

	if sheet != "" {
		name, ok := findSheet(sheets, sheet)
		if !ok {
			return grid, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return grid, fmt.Errorf("%w: read sheet %q: %v", ingest.ErrFormat, name, err)
		}
		grid.Sheet, grid.Rows = name, rows
		return grid, nil
	}

	for _, name := range sheets {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		if len(rows) > 0 {
			grid.Sheet, grid.Rows = name, rows
			return grid, nil
		}
	}
	return grid, fmt.Errorf("%w: every sheet is empty", ingest.ErrFormat)
}

// ReadImportFile reads a workbook into a RawImportFile carrying the grid.
func ReadImportFile(name string, r io.Reader, sheet string) (ingest.RawImportFile, error) {
	grid, err := ReadGrid(r, sheet)
	if err != nil {
		return ingest.RawImportFile{Name: name}, err
	}
	return ingest.RawImportFile{Name: name, Grid: grid.Rows}, nil
}

// IsWorkbook reports whether a file name looks like an XLSX workbook.
func IsWorkbook(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xlsm")
}

func findSheet(sheets []string, want string) (string, bool) {
	for _, name := range sheets {
		if strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(want)) {
			return name, true
		}
	}
	return "", false
}
