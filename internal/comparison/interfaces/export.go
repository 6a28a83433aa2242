package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	comparison "meterprofile/internal/comparison/domain"
)

// ExportOptions control the rendered comparison table.
type ExportOptions struct {
	Title        string
	IncludeTotal bool
	GeneratedAt  time.Time
}

func tableHeader(cmp comparison.Comparison, includeTotal bool) []string {
	header := make([]string, 0, len(cmp.Columns)+2)
	header = append(header, "label")
	for _, column := range cmp.Columns {
		header = append(header, column.Label)
	}
	if includeTotal {
		header = append(header, "Total")
	}
	return header
}

func tableRow(cmp comparison.Comparison, point comparison.Point, includeTotal bool) []float64 {
	row := make([]float64, 0, len(cmp.Columns)+1)
	for _, column := range cmp.Columns {
		row = append(row, point.Values[column.MeterID])
	}
	if includeTotal {
		row = append(row, comparison.RoundValue(cmp.Total(point)))
	}
	return row
}

// BuildComparisonCSV renders the comparison as delimited text, values with two decimals.
func BuildComparisonCSV(cmp comparison.Comparison, opts ExportOptions) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(tableHeader(cmp, opts.IncludeTotal)); err != nil {
		return nil, err
	}
	for _, point := range cmp.Points {
		values := tableRow(cmp, point, opts.IncludeTotal)
		record := make([]string, 0, len(values)+1)
		record = append(record, point.Label)
		for _, v := range values {
			record = append(record, fmt.Sprintf("%.2f", v))
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildComparisonXLSX renders the comparison table and per-meter stats as a workbook.
func BuildComparisonXLSX(cmp comparison.Comparison, opts ExportOptions) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	dataSheet := "comparison"
	statsSheet := "stats"
	if err := f.SetSheetName("Sheet1", dataSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(statsSheet); err != nil {
		return nil, err
	}

	for col, title := range tableHeader(cmp, opts.IncludeTotal) {
		_ = f.SetCellValue(dataSheet, cellName(col, 1), title)
	}
	for i, point := range cmp.Points {
		row := i + 2
		_ = f.SetCellValue(dataSheet, cellName(0, row), point.Label)
		for col, v := range tableRow(cmp, point, opts.IncludeTotal) {
			_ = f.SetCellValue(dataSheet, cellName(col+1, row), v)
		}
	}

	statsHeader := []string{"Meter", "Average", "Peak", "Total (kWh)", "vs Mean (%)", "vs Baseline (%)", "kWh/m2"}
	for col, title := range statsHeader {
		_ = f.SetCellValue(statsSheet, cellName(col, 1), title)
	}
	for i, s := range cmp.Stats {
		row := i + 2
		_ = f.SetCellValue(statsSheet, cellName(0, row), s.Label)
		_ = f.SetCellValue(statsSheet, cellName(1, row), s.Average)
		_ = f.SetCellValue(statsSheet, cellName(2, row), s.Peak)
		_ = f.SetCellValue(statsSheet, cellName(3, row), s.Total)
		_ = f.SetCellValue(statsSheet, cellName(4, row), s.DeviationFromMean)
		if s.DeviationFromBaseline != nil {
			_ = f.SetCellValue(statsSheet, cellName(5, row), *s.DeviationFromBaseline)
		}
		if s.Intensity != nil {
			_ = f.SetCellValue(statsSheet, cellName(6, row), *s.Intensity)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildComparisonPDF renders a landscape report with the comparison table and stats.
func BuildComparisonPDF(cmp comparison.Comparison, opts ExportOptions) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	title := opts.Title
	if title == "" {
		title = "Meter Comparison"
	}
	pdf.Cell(0, 8, title)
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Mode: %s", cmp.Mode))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Day type: %s", cmp.DayType))
	pdf.Ln(5)
	if !opts.GeneratedAt.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", opts.GeneratedAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	header := tableHeader(cmp, opts.IncludeTotal)
	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	width := (pageWidth - left - right) / float64(len(header))

	pdf.SetFont("Arial", "B", 8)
	for _, title := range header {
		pdf.CellFormat(width, 6, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, point := range cmp.Points {
		pdf.CellFormat(width, 5, point.Label, "1", 0, "C", false, 0, "")
		for _, v := range tableRow(cmp, point, opts.IncludeTotal) {
			pdf.CellFormat(width, 5, fmt.Sprintf("%.2f", v), "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 9)
	for _, title := range []string{"Meter", "Average", "Peak", "Total (kWh)", "vs Mean (%)", "vs Baseline (%)"} {
		pdf.CellFormat(40, 6, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, s := range cmp.Stats {
		baseline := "-"
		if s.DeviationFromBaseline != nil {
			baseline = fmt.Sprintf("%.1f", *s.DeviationFromBaseline)
		}
		pdf.CellFormat(40, 6, s.Label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", s.Average), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", s.Peak), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.0f", s.Total), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.1f", s.DeviationFromMean), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, baseline, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return fmt.Sprintf("A%d", row)
	}
	return name
}
