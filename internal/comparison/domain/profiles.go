package comparison

import (
	"fmt"

	ingest "meterprofile/internal/ingest/domain"
	meters "meterprofile/internal/meters/domain"
)

// ProfileEntry is a stored canonical profile selected for comparison.
type ProfileEntry struct {
	Column    Column
	FloorArea *float64
	Profile   *ingest.Profile
}

// EntriesFromMeters builds profile entries in the given order.
func EntriesFromMeters(list []meters.Meter) []ProfileEntry {
	entries := make([]ProfileEntry, len(list))
	for i, m := range list {
		entries[i] = ProfileEntry{
			Column:    Column{MeterID: m.ID, Label: m.DisplayName(), Color: m.Color},
			FloorArea: m.FloorArea,
			Profile:   m.Profile,
		}
	}
	return entries
}

// CompareProfiles compares canonical profiles hour by hour. Percentage and raw kW
// profiles are only compared together when reconcile is set, in which case every
// profile is converted to percentages first. DayTypeAll weights weekdays 5/7 and
// weekends 2/7.
func CompareProfiles(entries []ProfileEntry, dayType ingest.DayType, reconcile bool, baselineID string) (Comparison, error) {
	if len(entries) == 0 {
		return Comparison{}, ErrNoMeters
	}
	if dayType == "" {
		dayType = ingest.DayTypeAll
	}
	mixed := false
	for _, entry := range entries {
		if entry.Profile == nil {
			return Comparison{}, fmt.Errorf("%w: %s", ErrMissingProfile, entry.Column.MeterID)
		}
		if entry.Profile.Representation != entries[0].Profile.Representation {
			mixed = true
		}
	}
	if mixed && !reconcile {
		return Comparison{}, ErrMixedRepresentation
	}

	inputs := make([]meterInput, len(entries))
	for i, entry := range entries {
		profile := *entry.Profile
		if reconcile {
			converted, err := profile.ToPercentage()
			if err != nil {
				return Comparison{}, fmt.Errorf("comparison: reconcile %s: %w", entry.Column.MeterID, err)
			}
			profile = converted
		}
		inputs[i] = meterInput{column: entry.Column, floorArea: entry.FloorArea, values: profileHours(profile, dayType)}
	}
	baseline, err := baselineIndex(inputs, baselineID)
	if err != nil {
		return Comparison{}, err
	}
	return assemble(Comparison{Mode: ModeProfile, DayType: dayType, BaselineID: baselineID}, hourLabels(), inputs, baseline), nil
}

func profileHours(profile ingest.Profile, dayType ingest.DayType) []float64 {
	values := make([]float64, ingest.HoursPerDay)
	for hour := range values {
		switch dayType {
		case ingest.DayTypeWeekday:
			values[hour] = profile.Weekday[hour]
		case ingest.DayTypeWeekend:
			values[hour] = profile.Weekend[hour]
		default:
			values[hour] = (5*profile.Weekday[hour] + 2*profile.Weekend[hour]) / 7
		}
	}
	return values
}
