package comparison

import "github.com/shopspring/decimal"

// Display precision. Rounding is half away from zero.
const (
	ValuePlaces      = 2
	PercentagePlaces = 1
	TotalPlaces      = 0
)

func round(value float64, places int32) float64 {
	rounded, _ := decimal.NewFromFloat(value).Round(places).Float64()
	return rounded
}

// RoundValue rounds a series value or statistic for display.
func RoundValue(value float64) float64 { return round(value, ValuePlaces) }

// RoundPercentage rounds a percentage for display.
func RoundPercentage(value float64) float64 { return round(value, PercentagePlaces) }

// RoundTotal rounds an energy total to whole kWh.
func RoundTotal(value float64) float64 { return round(value, TotalPlaces) }

func roundPtr(value *float64, places int32) *float64 {
	if value == nil {
		return nil
	}
	rounded := round(*value, places)
	return &rounded
}
