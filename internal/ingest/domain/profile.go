package ingest

import (
	"fmt"
	"math"
	"time"
)

// HoursPerDay is the fixed length of every profile array.
const HoursPerDay = 24

// Representation states what the profile values mean. It is set when the profile
// is created and never derived from the values.
type Representation string

const (
	// RepresentationRawKW holds average kW per hour-of-day.
	RepresentationRawKW Representation = "raw_kw"
	// RepresentationPercentage holds each hour's share of the day, summing to 100.
	RepresentationPercentage Representation = "percentage"
)

// IsValid reports whether r is a known representation.
func (r Representation) IsValid() bool {
	return r == RepresentationRawKW || r == RepresentationPercentage
}

// DayType is the weekday/weekend classification of a calendar date.
type DayType string

const (
	DayTypeAll     DayType = "all"
	DayTypeWeekday DayType = "weekday"
	DayTypeWeekend DayType = "weekend"
)

// ParseDayType maps a query value to a DayType, defaulting to all.
func ParseDayType(value string) (DayType, error) {
	switch DayType(value) {
	case "", DayTypeAll:
		return DayTypeAll, nil
	case DayTypeWeekday, DayTypeWeekend:
		return DayType(value), nil
	default:
		return "", fmt.Errorf("ingest: unknown day type %q", value)
	}
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	day := t.Weekday()
	return day == time.Saturday || day == time.Sunday
}

// Matches reports whether t belongs to the day type.
func (d DayType) Matches(t time.Time) bool {
	switch d {
	case DayTypeWeekday:
		return !IsWeekend(t)
	case DayTypeWeekend:
		return IsWeekend(t)
	default:
		return true
	}
}

// Reading is one converted sample retained for drill-down aggregation.
type Reading struct {
	At time.Time `json:"at"`
	KW float64   `json:"kw"`
}

// Profile is the canonical 24-hour weekday/weekend consumption profile of one meter.
type Profile struct {
	Weekday             [HoursPerDay]float64 `json:"weekday"`
	Weekend             [HoursPerDay]float64 `json:"weekend"`
	Representation      Representation       `json:"representation"`
	DataPoints          int                  `json:"data_points"`
	DateRangeStart      time.Time            `json:"date_range_start"`
	DateRangeEnd        time.Time            `json:"date_range_end"`
	WeekdayDays         int                  `json:"weekday_days"`
	WeekendDays         int                  `json:"weekend_days"`
	TotalKWh            float64              `json:"total_kwh"`
	PeakKW              float64              `json:"peak_kw"`
	SourceFileName      string               `json:"source_file_name"`
	WeekendApproximated bool                 `json:"weekend_approximated"`
	ApproximatedHours   []int                `json:"approximated_hours,omitempty"`
}

// Validate checks the profile invariants.
func (p Profile) Validate() error {
	if !p.Representation.IsValid() {
		return fmt.Errorf("%w: representation %q", ErrInvalidProfile, p.Representation)
	}
	for hour := 0; hour < HoursPerDay; hour++ {
		if p.Weekday[hour] < 0 || math.IsNaN(p.Weekday[hour]) {
			return fmt.Errorf("%w: weekday hour %d is %v", ErrInvalidProfile, hour, p.Weekday[hour])
		}
		if p.Weekend[hour] < 0 || math.IsNaN(p.Weekend[hour]) {
			return fmt.Errorf("%w: weekend hour %d is %v", ErrInvalidProfile, hour, p.Weekend[hour])
		}
	}
	if p.Representation == RepresentationPercentage {
		if p.IsZero() {
			return fmt.Errorf("%w: percentage profile is empty", ErrInvalidProfile)
		}
		// An array without consumption stays at zero.
		for _, sum := range []float64{sumHours(p.Weekday), sumHours(p.Weekend)} {
			if sum != 0 && (sum < 99 || sum > 101) {
				return fmt.Errorf("%w: percentage profile sums to %.2f", ErrInvalidProfile, sum)
			}
		}
	}
	return nil
}

// IsZero reports whether every hour in both arrays is zero.
func (p Profile) IsZero() bool {
	return sumHours(p.Weekday) == 0 && sumHours(p.Weekend) == 0
}

// DailyKWh approximates daily energy for the day type under one reading per hour.
func (p Profile) DailyKWh(dayType DayType) float64 {
	if dayType == DayTypeWeekend {
		return sumHours(p.Weekend)
	}
	return sumHours(p.Weekday)
}

// Hours returns the array for a day type; all maps to weekday.
func (p Profile) Hours(dayType DayType) [HoursPerDay]float64 {
	if dayType == DayTypeWeekend {
		return p.Weekend
	}
	return p.Weekday
}

// ToPercentage returns a copy with each array scaled to sum to 100. An array with a
// zero total stays zero; a profile with no consumption at all returns ErrZeroProfile.
func (p Profile) ToPercentage() (Profile, error) {
	if p.Representation == RepresentationPercentage {
		return p, nil
	}
	if p.IsZero() {
		return Profile{}, ErrZeroProfile
	}
	out := p
	out.ApproximatedHours = append([]int(nil), p.ApproximatedHours...)
	out.Weekday = toPercentages(p.Weekday)
	out.Weekend = toPercentages(p.Weekend)
	out.Representation = RepresentationPercentage
	return out, nil
}

func toPercentages(values [HoursPerDay]float64) [HoursPerDay]float64 {
	sum := sumHours(values)
	if sum <= 0 {
		return [HoursPerDay]float64{}
	}
	var out [HoursPerDay]float64
	for hour, v := range values {
		out[hour] = v / sum * 100
	}
	return out
}

func sumHours(values [HoursPerDay]float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum
}
