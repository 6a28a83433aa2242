package normalize

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	ingest "meterprofile/internal/ingest/domain"
	"meterprofile/internal/ingest/domain/classify"
	"meterprofile/internal/ingest/domain/units"
)

const cancelCheckEvery = 4096

// Drop reasons counted in Result.DroppedByReason.
const (
	ReasonTimestamp = "timestamp"
	ReasonValue     = "value"
	ReasonNegative  = "negative"
)

// Options carries the unit and parsing settings for one column.
type Options struct {
	// Unit of the value column. Empty infers it from the header, falling back to kWh.
	Unit units.Unit
	// IntervalMinutes is the sampling interval. Zero detects it from time-of-day labels.
	IntervalMinutes int
	// IntervalSampleRows bounds the data rows whose labels feed interval detection.
	IntervalSampleRows int
	PowerFactor     float64
	Voltage         float64
	Phase           units.Phase
	DateOrder       DateOrder
	Location        *time.Location
	SourceFileName  string
}

func (o Options) intervalSampleRows() int {
	if o.IntervalSampleRows <= 0 {
		return classify.DefaultSampleRows
	}
	return o.IntervalSampleRows
}

func (o Options) converter(header string, interval int) units.Converter {
	unit := o.Unit
	if unit == "" {
		if inferred, ok := units.InferUnit(header); ok {
			unit = inferred
		} else {
			unit = units.KWh
		}
	}
	return units.Converter{
		Unit:            unit,
		IntervalMinutes: interval,
		PowerFactor:     o.PowerFactor,
		Voltage:         o.Voltage,
		Phase:           o.Phase,
	}
}

// Result is the normalized profile of one value column.
type Result struct {
	Column          int              `json:"column"`
	Header          string           `json:"header"`
	Profile         ingest.Profile   `json:"profile"`
	Readings        []ingest.Reading `json:"-"`
	Dropped         int              `json:"dropped"`
	DroppedByReason map[string]int   `json:"dropped_by_reason,omitempty"`
	IntervalMinutes int              `json:"interval_minutes"`
	Unit            units.Unit       `json:"unit"`
	Warnings        []ingest.Warning `json:"warnings,omitempty"`
}

type sample struct {
	at    time.Time
	value float64
}

// Normalize turns the first selected value column of a timestamped table into a
// raw-kW profile. Bad rows are dropped and counted; only a column without a single
// usable row fails.
func Normalize(ctx context.Context, table ingest.ParsedTable, sel classify.Selection, opts Options) (Result, error) {
	if table.Empty() {
		return Result{}, ingest.ErrFormat
	}
	if len(sel.ValueColumns) == 0 {
		return Result{}, ingest.ErrNoValueColumn
	}
	if !sel.HasDate() {
		return Result{}, ingest.ErrColumnAmbiguity
	}
	column := sel.ValueColumns[0]
	header := table.Header(column)

	order := opts.DateOrder
	if order == DateOrderAuto {
		order = DetectDateOrder(dateCells(table, sel))
	}
	parser := newTimestampParser(order, opts.Location)

	result := Result{Column: column, Header: header, DroppedByReason: map[string]int{}}
	samples := make([]sample, 0, len(table.Rows))
	labels := make([]string, 0, len(table.Rows))
	for i, row := range table.Rows {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		at, ok := parser.rowTime(row, sel)
		if !ok {
			result.DroppedByReason[ReasonTimestamp]++
			continue
		}
		value, ok := ingest.ExtractNumber(cell(row, column))
		if !ok {
			result.DroppedByReason[ReasonValue]++
			continue
		}
		if value < 0 {
			result.DroppedByReason[ReasonNegative]++
			continue
		}
		samples = append(samples, sample{at: at, value: value})
		if i < opts.intervalSampleRows() {
			labels = append(labels, at.Format("15:04"))
		}
	}
	result.Dropped = countDropped(result.DroppedByReason)
	if len(samples) == 0 {
		return result, fmt.Errorf("%w: column %q", ingest.ErrNoUsableData, header)
	}

	result.IntervalMinutes = opts.IntervalMinutes
	if result.IntervalMinutes <= 0 {
		result.IntervalMinutes = units.DetectInterval(labels)
	}
	conv := opts.converter(header, result.IntervalMinutes)
	if err := conv.Validate(); err != nil {
		return result, err
	}
	result.Unit = conv.Unit

	acc := newAccumulator(result.IntervalMinutes)
	result.Readings = make([]ingest.Reading, 0, len(samples))
	for _, s := range samples {
		kw, err := conv.ToKW(s.value)
		if err != nil {
			return result, err
		}
		acc.add(s.at, kw, true)
		result.Readings = append(result.Readings, ingest.Reading{At: s.at, KW: kw})
	}
	sort.SliceStable(result.Readings, func(i, j int) bool { return result.Readings[i].At.Before(result.Readings[j].At) })

	result.Profile = acc.profile(opts.SourceFileName)
	result.Warnings = warnings(result)
	return result, nil
}

// NormalizePivot builds one profile per selected value column of a pivot table,
// where rows are time-of-day slots and there is no calendar date. Every slot counts
// as weekday data; weekend hours are filled from the weekday means and flagged.
// Columns without a usable cell are left out of the results.
func NormalizePivot(ctx context.Context, table ingest.ParsedTable, sel classify.Selection, opts Options) ([]Result, error) {
	if table.Empty() {
		return nil, ingest.ErrFormat
	}
	if sel.TimeColumn == classify.NoColumn {
		return nil, ingest.ErrColumnAmbiguity
	}
	if len(sel.ValueColumns) == 0 {
		return nil, ingest.ErrNoValueColumn
	}
	parser := newTimestampParser(DateOrderDayFirst, opts.Location)

	slots := make([]time.Duration, len(table.Rows))
	valid := make([]bool, len(table.Rows))
	labels := make([]string, 0, len(table.Rows))
	for i, row := range table.Rows {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		offset, ok := parser.clock(cell(row, sel.TimeColumn))
		if !ok {
			continue
		}
		slots[i], valid[i] = offset, true
		if i < opts.intervalSampleRows() {
			labels = append(labels, ingest.TrimCell(cell(row, sel.TimeColumn)))
		}
	}

	interval := opts.IntervalMinutes
	if interval <= 0 {
		interval = units.DetectInterval(labels)
	}
	// pivot slots carry no date; bucket them on a Monday
	anchor := time.Date(2000, time.January, 3, 0, 0, 0, 0, time.UTC)

	var results []Result
	for _, column := range sel.ValueColumns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header := table.Header(column)
		conv := opts.converter(header, interval)
		if err := conv.Validate(); err != nil {
			return nil, err
		}
		result := Result{Column: column, Header: header, DroppedByReason: map[string]int{}, IntervalMinutes: interval, Unit: conv.Unit}
		acc := newAccumulator(interval)
		for i, row := range table.Rows {
			if !valid[i] {
				result.DroppedByReason[ReasonTimestamp]++
				continue
			}
			value, ok := ingest.ExtractNumber(cell(row, column))
			if !ok {
				result.DroppedByReason[ReasonValue]++
				continue
			}
			if value < 0 {
				result.DroppedByReason[ReasonNegative]++
				continue
			}
			kw, err := conv.ToKW(value)
			if err != nil {
				return nil, err
			}
			acc.add(anchor.Add(slots[i]%(24*time.Hour)), kw, false)
		}
		result.Dropped = countDropped(result.DroppedByReason)
		if acc.points == 0 {
			continue
		}
		result.Profile = acc.profile(opts.SourceFileName)
		fillWeekend(&result.Profile, acc)
		result.Warnings = warnings(result)
		results = append(results, result)
	}
	if len(results) == 0 {
		return nil, ingest.ErrNoUsableData
	}
	return results, nil
}

func fillWeekend(profile *ingest.Profile, acc *accumulator) {
	for hour := 0; hour < ingest.HoursPerDay; hour++ {
		if acc.counts[weekendBucket][hour] > 0 || acc.counts[weekdayBucket][hour] == 0 {
			continue
		}
		profile.Weekend[hour] = profile.Weekday[hour]
		profile.ApproximatedHours = append(profile.ApproximatedHours, hour)
	}
	profile.WeekendApproximated = len(profile.ApproximatedHours) > 0
}

func warnings(result Result) []ingest.Warning {
	var out []ingest.Warning
	if result.Profile.IsZero() {
		out = append(out, ingest.Warning{
			Kind:    ingest.WarningEmptyResult,
			Message: fmt.Sprintf("every parsed value in %q is zero", result.Header),
		})
	}
	if result.Profile.WeekendApproximated {
		out = append(out, ingest.Warning{
			Kind:    ingest.WarningWeekendApproximated,
			Message: fmt.Sprintf("%d weekend hours copied from weekday averages", len(result.Profile.ApproximatedHours)),
		})
	}
	if result.Dropped > 0 {
		out = append(out, ingest.Warning{
			Kind:    ingest.WarningRowsDropped,
			Message: fmt.Sprintf("%d rows dropped (%s)", result.Dropped, describeDrops(result.DroppedByReason)),
		})
	}
	return out
}

func describeDrops(reasons map[string]int) string {
	keys := make([]string, 0, len(reasons))
	for key := range reasons {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", key, reasons[key]))
	}
	return strings.Join(parts, ", ")
}

func countDropped(reasons map[string]int) int {
	total := 0
	for _, n := range reasons {
		total += n
	}
	return total
}

func (p timestampParser) rowTime(row []string, sel classify.Selection) (time.Time, bool) {
	if sel.TimestampColumn != classify.NoColumn {
		return p.combined(cell(row, sel.TimestampColumn))
	}
	day, ok := p.combined(cell(row, sel.DateColumn))
	if !ok {
		return time.Time{}, false
	}
	if sel.TimeColumn == classify.NoColumn {
		return day, true
	}
	offset, ok := p.clock(cell(row, sel.TimeColumn))
	if !ok {
		return time.Time{}, false
	}
	return midnight(day).Add(offset), true
}

func dateCells(table ingest.ParsedTable, sel classify.Selection) []string {
	column := sel.TimestampColumn
	if column == classify.NoColumn {
		column = sel.DateColumn
	}
	limit := len(table.Rows)
	if limit > 1000 {
		limit = 1000
	}
	cells := make([]string, 0, limit)
	for _, row := range table.Rows[:limit] {
		cells = append(cells, cell(row, column))
	}
	return cells
}

func cell(row []string, column int) string {
	if column < 0 || column >= len(row) {
		return ""
	}
	return row[column]
}
