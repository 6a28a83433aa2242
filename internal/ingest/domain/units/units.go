package units

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	ingest "meterprofile/internal/ingest/domain"
)

// Unit is an electrical unit accepted on import.
type Unit string

const (
	KW   Unit = "kW"
	KWh  Unit = "kWh"
	W    Unit = "W"
	Wh   Unit = "Wh"
	MW   Unit = "MW"
	MWh  Unit = "MWh"
	KVA  Unit = "kVA"
	KVAh Unit = "kVAh"
	Amps Unit = "A"
)

// Phase selects the Amps to kW formula.
type Phase string

const (
	PhaseUnset  Phase = ""
	PhaseSingle Phase = "single"
	PhaseThree  Phase = "three"
)

const (
	// DefaultPowerFactor applies to kVA and Amps conversions when none is supplied.
	DefaultPowerFactor = 0.9
	// DefaultIntervalMinutes is assumed when too few distinct time labels are seen.
	DefaultIntervalMinutes = 60
	// HalfHourIntervalMinutes is detected for dense half-hourly exports.
	HalfHourIntervalMinutes = 30
	// HalfHourLabelThreshold is the distinct time-of-day count implying 30-minute data.
	HalfHourLabelThreshold = 40
)

var bracketedUnit = regexp.MustCompile(`[(\[]\s*([a-z]+)\s*[)\]]`)

var unitAliases = map[string]Unit{
	"kw":        KW,
	"kwh":       KWh,
	"w":         W,
	"watt":      W,
	"watts":     W,
	"wh":        Wh,
	"mw":        MW,
	"mwh":       MWh,
	"kva":       KVA,
	"kvah":      KVAh,
	"a":         Amps,
	"amp":       Amps,
	"amps":      Amps,
	"ampere":    Amps,
	"amperes":   Amps,
	"kilowatt":  KW,
	"kilowatts": KW,
}

// ParseUnit maps a user or header supplied unit label to a Unit.
func ParseUnit(value string) (Unit, error) {
	key := strings.ToLower(strings.TrimSpace(value))
	key = strings.NewReplacer(" ", "", "-", "", ".", "").Replace(key)
	if key == "" {
		return KWh, nil
	}
	if unit, ok := unitAliases[key]; ok {
		return unit, nil
	}
	return "", fmt.Errorf("%w: unknown unit %q", ingest.ErrConversion, value)
}

// ParsePhase maps a phase label to a Phase.
func ParsePhase(value string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return PhaseUnset, nil
	case "single", "1", "1p", "single-phase":
		return PhaseSingle, nil
	case "three", "3", "3p", "three-phase":
		return PhaseThree, nil
	default:
		return "", fmt.Errorf("%w: unknown phase %q", ingest.ErrConversion, value)
	}
}

// IsEnergy reports whether the unit measures energy over an interval.
func (u Unit) IsEnergy() bool {
	return u == KWh || u == Wh || u == MWh || u == KVAh
}

// Converter normalizes values in one unit to kW.
type Converter struct {
	Unit            Unit
	IntervalMinutes int
	PowerFactor     float64
	Voltage         float64
	Phase           Phase
}

// Validate checks that the converter has what its unit needs.
func (c Converter) Validate() error {
	if c.Unit.IsEnergy() && c.IntervalMinutes <= 0 {
		return fmt.Errorf("%w: %s needs a sampling interval", ingest.ErrConversion, c.Unit)
	}
	if c.PowerFactor < 0 || c.PowerFactor > 1 {
		return fmt.Errorf("%w: power factor %v out of range", ingest.ErrConversion, c.PowerFactor)
	}
	if c.Unit == Amps {
		if c.Voltage <= 0 {
			return fmt.Errorf("%w: amps need a voltage", ingest.ErrConversion)
		}
		if c.Phase != PhaseSingle && c.Phase != PhaseThree {
			return fmt.Errorf("%w: amps need an explicit single or three phase selection", ingest.ErrConversion)
		}
	}
	if _, ok := factors[c.Unit]; !ok && c.Unit != Amps {
		return fmt.Errorf("%w: unsupported unit %q", ingest.ErrConversion, c.Unit)
	}
	return nil
}

var factors = map[Unit]float64{
	KW:   1,
	KWh:  1,
	W:    0.001,
	Wh:   0.001,
	MW:   1000,
	MWh:  1000,
	KVA:  1,
	KVAh: 1,
}

func (c Converter) powerFactor() float64 {
	if c.PowerFactor == 0 {
		return DefaultPowerFactor
	}
	return c.PowerFactor
}

func (c Converter) hours() float64 {
	return float64(c.IntervalMinutes) / 60
}

// ToKW converts one value to kW.
func (c Converter) ToKW(value float64) (float64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	if c.Unit == Amps {
		kw := c.Voltage * value * c.powerFactor() / 1000
		if c.Phase == PhaseThree {
			kw *= math.Sqrt(3)
		}
		return kw, nil
	}
	kw := value * factors[c.Unit]
	if c.Unit == KVA || c.Unit == KVAh {
		kw *= c.powerFactor()
	}
	if c.Unit.IsEnergy() {
		kw /= c.hours()
	}
	return kw, nil
}

// KWToKWh converts an average kW over one interval to kWh.
func (c Converter) KWToKWh(kw float64) (float64, error) {
	if c.IntervalMinutes <= 0 {
		return 0, fmt.Errorf("%w: kWh needs a sampling interval", ingest.ErrConversion)
	}
	return kw * c.hours(), nil
}

// DetectInterval infers the sampling interval from distinct time-of-day labels.
func DetectInterval(labels []string) int {
	distinct := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		distinct[label] = struct{}{}
	}
	if len(distinct) >= HalfHourLabelThreshold {
		return HalfHourIntervalMinutes
	}
	return DefaultIntervalMinutes
}

// InferUnit looks for a unit in a column header such as "Energy (kWh)" or
// "Current [A]". A bracketed unit may be a single letter; elsewhere single-letter
// tokens are ignored since they collide with labels like "Shop A".
func InferUnit(header string) (Unit, bool) {
	for _, match := range bracketedUnit.FindAllStringSubmatch(strings.ToLower(header), -1) {
		if unit, ok := unitAliases[match[1]]; ok {
			return unit, true
		}
	}
	tokens := strings.FieldsFunc(strings.ToLower(header), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	for _, token := range tokens {
		if len(token) < 2 {
			continue
		}
		if unit, ok := unitAliases[token]; ok {
			return unit, true
		}
	}
	return "", false
}
