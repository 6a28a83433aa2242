package classify

import (
	"fmt"

	ingest "meterprofile/internal/ingest/domain"
)

// NoColumn marks an unused column slot in a Selection.
const NoColumn = -1

// Overrides are caller-chosen column roles. Any field set here wins over heuristics.
type Overrides struct {
	TimestampColumn *int
	DateColumn      *int
	TimeColumn      *int
	ValueColumns    []int
	Roles           map[int]Role
}

// IsZero reports whether no override was supplied.
func (o Overrides) IsZero() bool {
	return o.TimestampColumn == nil && o.DateColumn == nil && o.TimeColumn == nil &&
		len(o.ValueColumns) == 0 && len(o.Roles) == 0
}

// Selection is the resolved set of columns the normalizer reads.
type Selection struct {
	Layout          ingest.Layout `json:"layout"`
	TimestampColumn int           `json:"timestamp_column"`
	DateColumn      int           `json:"date_column"`
	TimeColumn      int           `json:"time_column"`
	ValueColumns    []int         `json:"value_columns"`
}

// HasDate reports whether the selection carries a calendar date dimension.
func (s Selection) HasDate() bool {
	return s.TimestampColumn != NoColumn || s.DateColumn != NoColumn
}

// ApplyRoles returns a copy of the classification with explicit role overrides applied.
func ApplyRoles(c Classification, roles map[int]Role) Classification {
	if len(roles) == 0 {
		return c
	}
	columns := make([]ColumnInfo, len(c.Columns))
	copy(columns, c.Columns)
	for index, role := range roles {
		if index < 0 || index >= len(columns) {
			continue
		}
		columns[index].Role = role
		if role == RoleIgnore {
			columns[index].IgnoreReason = "ignored by override"
		} else {
			columns[index].IgnoreReason = ""
		}
	}
	return summarize(columns)
}

// Resolve turns a classification plus overrides into a Selection.
func Resolve(c Classification, layout ingest.Layout, overrides Overrides) (Selection, error) {
	c = ApplyRoles(c, overrides.Roles)
	sel := Selection{Layout: layout, TimestampColumn: NoColumn, DateColumn: NoColumn, TimeColumn: NoColumn}
	width := len(c.Columns)
	for _, ptr := range []*int{overrides.TimestampColumn, overrides.DateColumn, overrides.TimeColumn} {
		if ptr != nil && (*ptr < 0 || *ptr >= width) {
			return Selection{}, fmt.Errorf("%w: column %d out of range", ingest.ErrFormat, *ptr)
		}
	}
	for _, index := range overrides.ValueColumns {
		if index < 0 || index >= width {
			return Selection{}, fmt.Errorf("%w: value column %d out of range", ingest.ErrFormat, index)
		}
	}

	if layout == ingest.LayoutPivot {
		sel.TimeColumn = pivotTimeColumn(c, overrides)
		if sel.TimeColumn == NoColumn {
			return Selection{}, ingest.ErrColumnAmbiguity
		}
		sel.ValueColumns = pickValues(c, overrides, sel.TimeColumn, true)
		if len(sel.ValueColumns) == 0 {
			return Selection{}, ingest.ErrNoValueColumn
		}
		return sel, nil
	}

	switch {
	case overrides.TimestampColumn != nil:
		sel.TimestampColumn = *overrides.TimestampColumn
	case overrides.DateColumn != nil:
		sel.DateColumn = *overrides.DateColumn
		if overrides.TimeColumn != nil {
			sel.TimeColumn = *overrides.TimeColumn
		} else {
			sel.TimeColumn = firstClockOnly(c, sel.DateColumn)
		}
	default:
		if err := heuristicTime(c, &sel); err != nil {
			return Selection{}, err
		}
		if overrides.TimeColumn != nil && sel.TimestampColumn == NoColumn {
			sel.TimeColumn = *overrides.TimeColumn
		}
	}

	exclude := map[int]bool{sel.TimestampColumn: true, sel.DateColumn: true, sel.TimeColumn: true}
	values := pickValues(c, overrides, NoColumn, false)
	for _, index := range values {
		if !exclude[index] {
			sel.ValueColumns = append(sel.ValueColumns, index)
		}
	}
	if len(sel.ValueColumns) == 0 {
		return Selection{}, ingest.ErrNoValueColumn
	}
	return sel, nil
}

func heuristicTime(c Classification, sel *Selection) error {
	candidates := append(append([]int(nil), c.DateColumns...), c.TimeColumns...)
	for _, index := range candidates {
		info := c.Columns[index]
		if info.HasDatePart && info.HasClockPart {
			sel.TimestampColumn = index
			return nil
		}
	}
	for _, index := range candidates {
		info := c.Columns[index]
		if info.HasDatePart || info.Role == RoleDate {
			sel.DateColumn = index
			sel.TimeColumn = firstClockOnly(c, index)
			if sel.TimeColumn == NoColumn {
				sel.TimestampColumn, sel.DateColumn = index, NoColumn
			}
			return nil
		}
	}
	return ingest.ErrColumnAmbiguity
}

func firstClockOnly(c Classification, skip int) int {
	for _, index := range c.TimeColumns {
		if index == skip {
			continue
		}
		if !c.Columns[index].HasDatePart {
			return index
		}
	}
	return NoColumn
}

func pivotTimeColumn(c Classification, overrides Overrides) int {
	if overrides.TimeColumn != nil {
		return *overrides.TimeColumn
	}
	if len(c.TimeColumns) > 0 {
		return c.TimeColumns[0]
	}
	if len(c.Columns) > 0 && c.Columns[0].HasClockPart {
		return 0
	}
	return NoColumn
}

// pickValues returns the override value columns, or every candidate when all is set,
// or the recommended column.
func pickValues(c Classification, overrides Overrides, skip int, all bool) []int {
	if len(overrides.ValueColumns) > 0 {
		out := make([]int, 0, len(overrides.ValueColumns))
		for _, index := range overrides.ValueColumns {
			if index != skip {
				out = append(out, index)
			}
		}
		return out
	}
	if all {
		out := make([]int, 0, len(c.ValueColumns))
		for _, index := range c.ValueColumns {
			if index != skip {
				out = append(out, index)
			}
		}
		return out
	}
	if c.Recommended == NoColumn {
		return nil
	}
	return []int{c.Recommended}
}
