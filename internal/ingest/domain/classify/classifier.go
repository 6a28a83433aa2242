package classify

import (
	"fmt"
	"regexp"
	"strings"

	ingest "meterprofile/internal/ingest/domain"
)

// Role is the part a column plays in a meter export.
type Role string

const (
	RoleDate   Role = "date"
	RoleTime   Role = "time"
	RoleValue  Role = "value"
	RoleIgnore Role = "ignore"
)

const (
	// DefaultSampleRows is the number of data rows inspected per column.
	DefaultSampleRows = 100
	// DefaultMinNumericRatio is the share of numeric cells a value candidate needs.
	DefaultMinNumericRatio = 0.10

	maxSamples = 5
)

var (
	datePart = regexp.MustCompile(`\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}|\d{1,2}[- ][A-Za-z]{3}[- ]\d{2,4}`)

	defaultNonValueHeaders      = []string{"status"}
	defaultExactNonValueHeaders = []string{"rdate", "rtime"}
)

// Options tunes classification.
type Options struct {
	SampleRows           int
	MinNumericRatio      float64
	NonValueHeaders      []string
	ExactNonValueHeaders []string
}

func (o Options) withDefaults() Options {
	if o.SampleRows <= 0 {
		o.SampleRows = DefaultSampleRows
	}
	if o.MinNumericRatio <= 0 {
		o.MinNumericRatio = DefaultMinNumericRatio
	}
	if o.NonValueHeaders == nil {
		o.NonValueHeaders = defaultNonValueHeaders
	}
	if o.ExactNonValueHeaders == nil {
		o.ExactNonValueHeaders = defaultExactNonValueHeaders
	}
	return o
}

// ColumnInfo describes one column as seen in the sample window.
type ColumnInfo struct {
	Index        int      `json:"index"`
	Header       string   `json:"header"`
	Role         Role     `json:"role"`
	Samples      []string `json:"samples"`
	NumericRatio float64  `json:"numeric_ratio"`
	NonZeroCount int      `json:"non_zero_count"`
	Average      float64  `json:"average"`
	HasDatePart  bool     `json:"has_date_part"`
	HasClockPart bool     `json:"has_clock_part"`
	IgnoreReason string   `json:"ignore_reason,omitempty"`
}

// IgnoredColumn explains why a column was left out.
type IgnoredColumn struct {
	Index  int    `json:"index"`
	Header string `json:"header"`
	Reason string `json:"reason"`
}

// Classification is the full column report for a table.
type Classification struct {
	Columns      []ColumnInfo    `json:"columns"`
	DateColumns  []int           `json:"date_columns"`
	TimeColumns  []int           `json:"time_columns"`
	ValueColumns []int           `json:"value_columns"`
	Ignored      []IgnoredColumn `json:"ignored"`
	Recommended  int             `json:"recommended"`
}

// Column returns the info for index, if present.
func (c Classification) Column(index int) (ColumnInfo, bool) {
	if index < 0 || index >= len(c.Columns) {
		return ColumnInfo{}, false
	}
	return c.Columns[index], true
}

// Classify assigns a role to every column. It never fails; an empty ValueColumns
// list is a valid result.
func Classify(table ingest.ParsedTable, opts Options) Classification {
	opts = opts.withDefaults()
	width := table.ColumnCount()
	sample := table.Rows
	if len(sample) > opts.SampleRows {
		sample = sample[:opts.SampleRows]
	}

	columns := make([]ColumnInfo, 0, width)
	for col := 0; col < width; col++ {
		columns = append(columns, inspect(table.Header(col), col, sample, opts))
	}
	return summarize(columns)
}

func inspect(header string, col int, sample [][]string, opts Options) ColumnInfo {
	info := ColumnInfo{Index: col, Header: header}
	lower := strings.ToLower(strings.TrimSpace(header))

	var (
		cells, nonEmpty, numeric, clocks, dates int
		sum                                     float64
	)
	for _, row := range sample {
		if col >= len(row) {
			continue
		}
		cells++
		cell := ingest.TrimCell(row[col])
		if cell == "" {
			continue
		}
		nonEmpty++
		if len(info.Samples) < maxSamples {
			info.Samples = append(info.Samples, cell)
		}
		if ingest.ContainsClock(cell) {
			clocks++
		}
		if datePart.MatchString(cell) {
			dates++
		}
		if value, ok := ingest.ParseNumber(cell); ok {
			numeric++
			sum += value
			if value != 0 {
				info.NonZeroCount++
			}
		}
	}
	if cells > 0 {
		info.NumericRatio = float64(numeric) / float64(cells)
	}
	if numeric > 0 {
		info.Average = sum / float64(numeric)
	}
	majority := func(n int) bool { return nonEmpty > 0 && n*2 > nonEmpty }
	info.HasClockPart = majority(clocks)
	info.HasDatePart = majority(dates)

	exactNonValue := containsExact(opts.ExactNonValueHeaders, lower)
	switch {
	case strings.Contains(lower, "date") || lower == "rdate":
		info.Role = RoleDate
		if nonEmpty == 0 {
			info.HasDatePart = true
		}
	case strings.Contains(lower, "time") || strings.Contains(lower, "period") || lower == "rtime" || info.HasClockPart:
		info.Role = RoleTime
	case exactNonValue || containsAny(lower, opts.NonValueHeaders):
		info.Role = RoleIgnore
		info.IgnoreReason = fmt.Sprintf("header %q is a known non-value label", header)
	case nonEmpty == 0:
		info.Role = RoleIgnore
		info.IgnoreReason = "column has no values in the sample"
	case info.HasDatePart:
		info.Role = RoleDate
	case info.NumericRatio >= opts.MinNumericRatio:
		info.Role = RoleValue
	default:
		info.Role = RoleIgnore
		info.IgnoreReason = fmt.Sprintf("only %.0f%% of sampled cells are numeric", info.NumericRatio*100)
	}
	if info.Role != RoleValue {
		info.NonZeroCount = 0
		info.Average = 0
	}
	return info
}

func summarize(columns []ColumnInfo) Classification {
	result := Classification{Columns: columns, Recommended: -1}
	best := -1
	for _, info := range columns {
		switch info.Role {
		case RoleDate:
			result.DateColumns = append(result.DateColumns, info.Index)
		case RoleTime:
			result.TimeColumns = append(result.TimeColumns, info.Index)
		case RoleValue:
			result.ValueColumns = append(result.ValueColumns, info.Index)
			if info.NonZeroCount > best {
				best = info.NonZeroCount
				result.Recommended = info.Index
			}
		default:
			result.Ignored = append(result.Ignored, IgnoredColumn{Index: info.Index, Header: info.Header, Reason: info.IgnoreReason})
		}
	}
	return result
}

func containsExact(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

func containsAny(value string, keywords []string) bool {
	for _, keyword := range keywords {
		if keyword != "" && strings.Contains(value, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
