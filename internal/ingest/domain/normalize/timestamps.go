package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	ingest "meterprofile/internal/ingest/domain"
)

// DateOrder resolves ambiguous numeric dates such as 03/04/2024.
type DateOrder string

const (
	DateOrderAuto       DateOrder = ""
	DateOrderDayFirst   DateOrder = "day_first"
	DateOrderMonthFirst DateOrder = "month_first"
)

// ParseDateOrder maps a config or query value to a DateOrder.
func ParseDateOrder(value string) DateOrder {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "day_first", "dmy", "day":
		return DateOrderDayFirst
	case "month_first", "mdy", "month":
		return DateOrderMonthFirst
	default:
		return DateOrderAuto
	}
}

// largest serial excelize accepts (9999-12-31)
const maxExcelSerial = 2958465

var (
	clockToken  = regexp.MustCompile(`\d{1,2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:\s*[AaPp][Mm])?`)
	fraction    = regexp.MustCompile(`(:\d{2})\.\d+`)
	numericDate = regexp.MustCompile(`^(\d{1,2})[/.-](\d{1,2})[/.-]\d{2,4}`)

	isoLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
	}
	dayFirstLayouts   = []string{"2/1/2006", "2-1-2006", "2.1.2006", "2/1/06", "2-1-06", "2.1.06"}
	monthFirstLayouts = []string{"1/2/2006", "1-2-2006", "1.2.2006", "1/2/06", "1-2-06", "1.2.06"}
	commonLayouts     = []string{
		"2006-1-2",
		"2006/1/2",
		"2006.1.2",
		"20060102",
		"2 Jan 2006",
		"2-Jan-2006",
		"2-Jan-06",
		"2 Jan 06",
		"2 January 2006",
		"Jan 2 2006",
		"Jan 2, 2006",
		"January 2 2006",
		"January 2, 2006",
		"Mon 2 Jan 2006",
		"Mon, 2 Jan 2006",
	}
)

// DetectDateOrder inspects numeric dates until one is unambiguous. Day-first wins
// when every sample is ambiguous.
func DetectDateOrder(cells []string) DateOrder {
	for _, cell := range cells {
		match := numericDate.FindStringSubmatch(ingest.TrimCell(cell))
		if match == nil {
			continue
		}
		first, _ := strconv.Atoi(match[1])
		second, _ := strconv.Atoi(match[2])
		switch {
		case first > 12 && second <= 12:
			return DateOrderDayFirst
		case second > 12 && first <= 12:
			return DateOrderMonthFirst
		}
	}
	return DateOrderDayFirst
}

type timestampParser struct {
	layouts []string
	loc     *time.Location
}

func newTimestampParser(order DateOrder, loc *time.Location) timestampParser {
	if loc == nil {
		loc = time.UTC
	}
	layouts := make([]string, 0, len(commonLayouts)+len(dayFirstLayouts))
	layouts = append(layouts, commonLayouts...)
	if order == DateOrderMonthFirst {
		layouts = append(layouts, monthFirstLayouts...)
	} else {
		layouts = append(layouts, dayFirstLayouts...)
	}
	return timestampParser{layouts: layouts, loc: loc}
}

// combined parses a cell holding a date with an optional time of day.
func (p timestampParser) combined(raw string) (time.Time, bool) {
	raw = ingest.TrimCell(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, ok := p.excelSerial(raw); ok {
		return t, true
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, raw, p.loc); err == nil {
			return t, true
		}
	}
	datePart := raw
	var offset time.Duration
	if clock := clockToken.FindString(raw); clock != "" {
		hour, minute, ok := ingest.ParseClock(fraction.ReplaceAllString(clock, "$1"))
		if !ok {
			return time.Time{}, false
		}
		offset = time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute
		datePart = strings.Replace(raw, clock, " ", 1)
	}
	day, ok := p.date(datePart)
	if !ok {
		return time.Time{}, false
	}
	return day.Add(offset), true
}

func (p timestampParser) date(raw string) (time.Time, bool) {
	raw = strings.Join(strings.Fields(strings.Trim(raw, " ,T")), " ")
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range p.layouts {
		if t, err := time.ParseInLocation(layout, raw, p.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// clock parses a time-of-day cell: "07:30", "7:30 PM", "00:00-00:30", a datetime
// whose clock part is used, or an Excel day fraction.
func (p timestampParser) clock(raw string) (time.Duration, bool) {
	raw = ingest.TrimCell(raw)
	hour, minute, ok := ingest.ParseClock(raw)
	if !ok {
		if token := clockToken.FindString(raw); token != "" {
			hour, minute, ok = ingest.ParseClock(fraction.ReplaceAllString(token, "$1"))
		}
	}
	if !ok {
		value, isNumber := ingest.ParseNumber(raw)
		if !isNumber || value < 0 || value >= 1 {
			return 0, false
		}
		minutes := int(math.Round(value * 24 * 60))
		hour, minute, ok = minutes/60, minutes%60, true
	}
	return time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute, ok
}

// excelSerial accepts spreadsheet serial day numbers, with the fraction as time of day.
func (p timestampParser) excelSerial(raw string) (time.Time, bool) {
	value, ok := ingest.ParseNumber(raw)
	if !ok || value < 1 || value > maxExcelSerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(value, false)
	if err != nil {
		return time.Time{}, false
	}
	if p.loc != time.UTC {
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, p.loc)
	}
	return t, true
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
