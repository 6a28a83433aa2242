package comparison

// Stats summarizes one meter's series.
type Stats struct {
	MeterID string  `json:"meter_id"`
	Label   string  `json:"label"`
	Average float64 `json:"average"`
	Peak    float64 `json:"peak"`
	Total   float64 `json:"total"`
	// DeviationFromMean is the percent difference of Total from the mean total of all meters.
	DeviationFromMean float64 `json:"deviation_from_mean"`
	// DeviationFromBaseline is nil without a baseline, for the baseline itself, or when
	// the baseline total is zero.
	DeviationFromBaseline *float64 `json:"deviation_from_baseline"`
	// Intensity is Total per square metre; nil when the floor area is unknown.
	Intensity *float64 `json:"intensity"`
}

func computeStats(inputs []meterInput, baseline int) []Stats {
	totals := make([]float64, len(inputs))
	var groupTotal float64
	for i, input := range inputs {
		for _, v := range input.values {
			totals[i] += v
		}
		groupTotal += totals[i]
	}
	groupMean := groupTotal / float64(len(inputs))

	stats := make([]Stats, len(inputs))
	for i, input := range inputs {
		s := Stats{MeterID: input.column.MeterID, Label: input.column.Label}
		if n := len(input.values); n > 0 {
			s.Average = RoundValue(totals[i] / float64(n))
			peak := input.values[0]
			for _, v := range input.values[1:] {
				peak = max(peak, v)
			}
			s.Peak = RoundValue(peak)
		}
		s.Total = RoundTotal(totals[i])
		if groupMean != 0 {
			s.DeviationFromMean = RoundPercentage((totals[i] - groupMean) / groupMean * 100)
		}
		if baseline >= 0 && i != baseline && totals[baseline] != 0 {
			deviation := (totals[i] - totals[baseline]) / totals[baseline] * 100
			s.DeviationFromBaseline = roundPtr(&deviation, PercentagePlaces)
		}
		if input.floorArea != nil && *input.floorArea > 0 {
			intensity := totals[i] / *input.floorArea
			s.Intensity = roundPtr(&intensity, ValuePlaces)
		}
		stats[i] = s
	}
	return stats
}
