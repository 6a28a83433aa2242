package matching

import (
	"math"

	ingest "meterprofile/internal/ingest/domain"
)

// DefaultDuplicateTolerance is the largest per-hour difference two copies may have.
const DefaultDuplicateTolerance = 0.01

// NotDuplicate marks a canonical entry in the DetectDuplicates output.
const NotDuplicate = -1

// DetectDuplicates compares weekday arrays pairwise and returns, per profile, the
// index of the earlier profile it copies, or NotDuplicate. The first occurrence is
// always the canonical one. A tolerance <= 0 uses DefaultDuplicateTolerance.
func DetectDuplicates(profiles []ingest.Profile, tolerance float64) []int {
	series := make([][]float64, len(profiles))
	for i := range profiles {
		series[i] = profiles[i].Weekday[:]
	}
	return DetectDuplicateSeries(series, tolerance)
}

// DetectDuplicateSeries is DetectDuplicates over plain value slices. Slices of
// different lengths never match.
func DetectDuplicateSeries(series [][]float64, tolerance float64) []int {
	if tolerance <= 0 {
		tolerance = DefaultDuplicateTolerance
	}
	duplicateOf := make([]int, len(series))
	for i := range duplicateOf {
		duplicateOf[i] = NotDuplicate
	}
	for i := 0; i < len(series); i++ {
		if duplicateOf[i] != NotDuplicate {
			continue
		}
		for j := i + 1; j < len(series); j++ {
			if duplicateOf[j] != NotDuplicate {
				continue
			}
			if withinTolerance(series[i], series[j], tolerance) {
				duplicateOf[j] = i
			}
		}
	}
	return duplicateOf
}

func withinTolerance(a, b []float64, tolerance float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if math.Abs(a[k]-b[k]) > tolerance {
			return false
		}
	}
	return true
}
