package comparison

import (
	"context"
	"fmt"
	"sort"
	"time"

	ingest "meterprofile/internal/ingest/domain"
	meters "meterprofile/internal/meters/domain"
)

// Mode is the aggregation granularity of a comparison.
type Mode string

const (
	// ModeHourly averages readings per hour of day.
	ModeHourly Mode = "hourly"
	// ModeWeekly averages daily totals per day of week.
	ModeWeekly Mode = "weekly"
	// ModeMonthly sums readings per calendar month.
	ModeMonthly Mode = "monthly"
	// ModeProfile compares stored canonical profiles hour by hour.
	ModeProfile Mode = "profile"
)

// ParseMode maps a query value to a Mode, defaulting to hourly.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case "":
		return ModeHourly, nil
	case ModeHourly, ModeWeekly, ModeMonthly, ModeProfile:
		return Mode(value), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, value)
	}
}

const cancelCheckEvery = 8192

var weekdayLabels = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Query selects how readings are aggregated.
type Query struct {
	Mode    Mode
	DayType ingest.DayType
	// From and To are inclusive calendar dates; nil leaves the range open.
	From       *time.Time
	To         *time.Time
	BaselineID string
	// Location decides calendar dates and hours; nil means UTC.
	Location *time.Location
}

func (q Query) normalized() (Query, error) {
	if q.Mode == "" {
		q.Mode = ModeHourly
	}
	if q.DayType == "" {
		q.DayType = ingest.DayTypeAll
	}
	if q.Location == nil {
		q.Location = time.UTC
	}
	if q.From != nil && q.To != nil && civilDate(*q.From, q.Location).After(civilDate(*q.To, q.Location)) {
		return q, ErrInvalidRange
	}
	return q, nil
}

// Window converts the inclusive date range into a repository window.
func (q Query) Window() meters.Window {
	q, _ = q.normalized()
	var window meters.Window
	if q.From != nil {
		window.From = civilDate(*q.From, q.Location)
	}
	if q.To != nil {
		window.To = civilDate(*q.To, q.Location).AddDate(0, 0, 1)
	}
	return window
}

func (q Query) includes(at time.Time) bool {
	local := at.In(q.Location)
	if !q.DayType.Matches(local) {
		return false
	}
	date := civilDate(local, q.Location)
	if q.From != nil && date.Before(civilDate(*q.From, q.Location)) {
		return false
	}
	if q.To != nil && date.After(civilDate(*q.To, q.Location)) {
		return false
	}
	return true
}

// civilDate returns midnight of t's calendar date, placed in loc.
func civilDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Point is one labelled position of a comparison series.
type Point struct {
	Label  string             `json:"label"`
	Values map[string]float64 `json:"values"`
}

// Column identifies one compared meter, in display order.
type Column struct {
	MeterID string `json:"meter_id"`
	Label   string `json:"label"`
	Color   string `json:"color,omitempty"`
}

// Comparison is a rounded, display-ready comparison of several meters.
type Comparison struct {
	Mode       Mode           `json:"mode"`
	DayType    ingest.DayType `json:"day_type"`
	BaselineID string         `json:"baseline_id,omitempty"`
	Columns    []Column       `json:"columns"`
	Points     []Point        `json:"points"`
	Stats      []Stats        `json:"stats"`
	// Baseline re-expresses every point relative to the baseline meter in percent.
	Baseline []Point `json:"baseline,omitempty"`
}

// Total sums a point over all columns.
func (c Comparison) Total(point Point) float64 {
	var total float64
	for _, column := range c.Columns {
		total += point.Values[column.MeterID]
	}
	return total
}

// Aggregate re-aggregates the readings of the selected meters. Readings outside the
// day type or date range are ignored; a meter without matching readings yields zeros.
func Aggregate(ctx context.Context, series []meters.Series, q Query) (Comparison, error) {
	if len(series) == 0 {
		return Comparison{}, ErrNoMeters
	}
	q, err := q.normalized()
	if err != nil {
		return Comparison{}, err
	}
	inputs := make([]meterInput, len(series))
	for i, s := range series {
		inputs[i] = meterInput{
			column:    Column{MeterID: s.Meter.ID, Label: s.Meter.DisplayName(), Color: s.Meter.Color},
			floorArea: s.Meter.FloorArea,
		}
	}
	baseline, err := baselineIndex(inputs, q.BaselineID)
	if err != nil {
		return Comparison{}, err
	}

	var labels []string
	switch q.Mode {
	case ModeHourly:
		labels = hourLabels()
		for i := range series {
			values, err := hourlyMeans(ctx, series[i].Readings, q)
			if err != nil {
				return Comparison{}, err
			}
			inputs[i].values = values
		}
	case ModeWeekly:
		labels = weekdayLabels
		for i := range series {
			values, err := weekdayMeans(ctx, series[i].Readings, q)
			if err != nil {
				return Comparison{}, err
			}
			inputs[i].values = values
		}
	case ModeMonthly:
		sums := make([]map[time.Time]float64, len(series))
		months := make(map[time.Time]struct{})
		for i := range series {
			byMonth, err := monthlySums(ctx, series[i].Readings, q)
			if err != nil {
				return Comparison{}, err
			}
			sums[i] = byMonth
			for month := range byMonth {
				months[month] = struct{}{}
			}
		}
		ordered := make([]time.Time, 0, len(months))
		for month := range months {
			ordered = append(ordered, month)
		}
		sort.Slice(ordered, func(a, b int) bool { return ordered[a].Before(ordered[b]) })
		labels = make([]string, len(ordered))
		for k, month := range ordered {
			labels[k] = month.Format("Jan 2006")
		}
		for i := range series {
			values := make([]float64, len(ordered))
			for k, month := range ordered {
				values[k] = sums[i][month]
			}
			inputs[i].values = values
		}
	default:
		return Comparison{}, fmt.Errorf("%w: %q", ErrInvalidMode, q.Mode)
	}

	return assemble(Comparison{Mode: q.Mode, DayType: q.DayType, BaselineID: q.BaselineID}, labels, inputs, baseline), nil
}

type meterInput struct {
	column    Column
	floorArea *float64
	values    []float64
}

func baselineIndex(inputs []meterInput, baselineID string) (int, error) {
	if baselineID == "" {
		return -1, nil
	}
	for i, input := range inputs {
		if input.column.MeterID == baselineID {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrUnknownBaseline, baselineID)
}

func hourLabels() []string {
	labels := make([]string, ingest.HoursPerDay)
	for hour := range labels {
		labels[hour] = fmt.Sprintf("%02d:00", hour)
	}
	return labels
}

func hourlyMeans(ctx context.Context, readings []ingest.Reading, q Query) ([]float64, error) {
	var sums [ingest.HoursPerDay]float64
	var counts [ingest.HoursPerDay]int
	for i, reading := range readings {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !q.includes(reading.At) {
			continue
		}
		hour := reading.At.In(q.Location).Hour()
		sums[hour] += reading.KW
		counts[hour]++
	}
	values := make([]float64, ingest.HoursPerDay)
	for hour := range values {
		if counts[hour] > 0 {
			values[hour] = sums[hour] / float64(counts[hour])
		}
	}
	return values, nil
}

func weekdayMeans(ctx context.Context, readings []ingest.Reading, q Query) ([]float64, error) {
	daily := make(map[time.Time]float64)
	for i, reading := range readings {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !q.includes(reading.At) {
			continue
		}
		daily[civilDate(reading.At.In(q.Location), q.Location)] += reading.KW
	}
	var sums [7]float64
	var counts [7]int
	for date, total := range daily {
		index := (int(date.Weekday()) + 6) % 7
		sums[index] += total
		counts[index]++
	}
	values := make([]float64, 7)
	for index := range values {
		if counts[index] > 0 {
			values[index] = sums[index] / float64(counts[index])
		}
	}
	return values, nil
}

func monthlySums(ctx context.Context, readings []ingest.Reading, q Query) (map[time.Time]float64, error) {
	sums := make(map[time.Time]float64)
	for i, reading := range readings {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !q.includes(reading.At) {
			continue
		}
		local := reading.At.In(q.Location)
		sums[time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, q.Location)] += reading.KW
	}
	return sums, nil
}

// assemble rounds the raw series into points and computes stats and the baseline series.
func assemble(cmp Comparison, labels []string, inputs []meterInput, baseline int) Comparison {
	cmp.Columns = make([]Column, len(inputs))
	for i, input := range inputs {
		cmp.Columns[i] = input.column
	}
	cmp.Points = make([]Point, len(labels))
	for k, label := range labels {
		point := Point{Label: label, Values: make(map[string]float64, len(inputs))}
		for _, input := range inputs {
			point.Values[input.column.MeterID] = RoundValue(input.values[k])
		}
		cmp.Points[k] = point
	}
	cmp.Stats = computeStats(inputs, baseline)
	if baseline >= 0 {
		cmp.Baseline = relativeSeries(labels, inputs, baseline)
	}
	return cmp
}

func relativeSeries(labels []string, inputs []meterInput, baseline int) []Point {
	points := make([]Point, len(labels))
	for k, label := range labels {
		point := Point{Label: label, Values: make(map[string]float64, len(inputs))}
		reference := inputs[baseline].values[k]
		for i, input := range inputs {
			var value float64
			if i != baseline && reference != 0 {
				value = RoundPercentage((input.values[k] - reference) / reference * 100)
			}
			point.Values[input.column.MeterID] = value
		}
		points[k] = point
	}
	return points
}
