package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	clockPattern    = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?(?:\s*([AaPp][Mm]))?(?:\s*[-–]\s*\d{1,2}:\d{2}(?::\d{2})?(?:\s*[AaPp][Mm])?)?$`)
	clockAnywhere   = regexp.MustCompile(`(^|[^\d])\d{1,2}:\d{2}($|[^\d])`)
	numberToken     = regexp.MustCompile(`[-+]?(\d[\d ,.'\x{00a0}]*\d|\d)`)
	thousandsComma  = regexp.MustCompile(`^[-+]?\d{1,3}(,\d{3})+$`)
	thousandsDot    = regexp.MustCompile(`^[-+]?\d{1,3}(\.\d{3})+$`)
	randPrefix      = regexp.MustCompile(`^(?i)(zar|r)\s*`)
	surroundingChar = `"'` + "`"
)

// ParseNumber parses a cell as a number after removing surrounding quotes, currency
// symbols and thousands separators. It rejects cells carrying any other text.
func ParseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), surroundingChar))
	if s == "" {
		return 0, false
	}
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Sc, r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(randPrefix.ReplaceAllString(s, ""))
	s = resolveSeparators(s)
	if s == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

// ExtractNumber takes the first numeric token from a cell, ignoring unit suffixes
// and other non-numeric characters around it.
func ExtractNumber(raw string) (float64, bool) {
	if value, ok := ParseNumber(raw); ok {
		return value, true
	}
	token := numberToken.FindString(strings.Trim(strings.TrimSpace(raw), surroundingChar))
	if token == "" {
		return 0, false
	}
	return ParseNumber(token)
}

func resolveSeparators(s string) string {
	s = strings.NewReplacer(" ", "", "\u00a0", "", "'", "", "_", "").Replace(s)
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case hasComma:
		if thousandsComma.MatchString(s) && !strings.HasPrefix(strings.TrimLeft(s, "-+"), "0,") {
			return strings.ReplaceAll(s, ",", "")
		}
		if strings.Count(s, ",") > 1 {
			return ""
		}
		return strings.Replace(s, ",", ".", 1)
	case hasDot && strings.Count(s, ".") > 1:
		if thousandsDot.MatchString(s) {
			return strings.ReplaceAll(s, ".", "")
		}
		return ""
	}
	return s
}

// ParseClock parses a time-of-day label such as "7:30", "07:30:00", "7:30 PM" or the
// start of a period like "00:00-00:30". Hour 24 is accepted for end-of-day labels.
func ParseClock(raw string) (hour, minute int, ok bool) {
	match := clockPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(match[1])
	minute, _ = strconv.Atoi(match[2])
	if minute > 59 {
		return 0, 0, false
	}
	if suffix := strings.ToLower(match[4]); suffix != "" {
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if suffix == "pm" && hour != 12 {
			hour += 12
		}
		if suffix == "am" && hour == 12 {
			hour = 0
		}
	}
	if hour > 24 || (hour == 24 && minute != 0) {
		return 0, 0, false
	}
	return hour, minute, true
}

// IsTimeSlot reports whether the cell is a bare HH:MM time-of-day label.
func IsTimeSlot(raw string) bool {
	_, _, ok := ParseClock(raw)
	return ok
}

// ContainsClock reports whether an HH:MM pattern appears anywhere in the cell.
func ContainsClock(raw string) bool {
	return clockAnywhere.MatchString(raw)
}

// TrimCell removes surrounding whitespace and quotes from a cell.
func TrimCell(raw string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), surroundingChar))
}
