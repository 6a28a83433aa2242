package application

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"meterprofile/internal/ingest/domain/classify"
	"meterprofile/internal/ingest/domain/normalize"
	"meterprofile/internal/ingest/domain/sniff"
	"meterprofile/internal/ingest/domain/units"
	matching "meterprofile/internal/matching/domain"
)

// UnitDefaults are the conversion settings applied when an upload does not carry its own.
type UnitDefaults struct {
	Unit            string  `yaml:"unit"`
	IntervalMinutes int     `yaml:"interval_minutes"`
	PowerFactor     float64 `yaml:"power_factor"`
	Voltage         float64 `yaml:"voltage"`
	Phase           string  `yaml:"phase"`
}

// MatchingConfig tunes identity matching.
type MatchingConfig struct {
	Threshold          float64  `yaml:"threshold"`
	Strategies         []string `yaml:"strategies"`
	ContainmentWeight  float64  `yaml:"containment_weight"`
	TokenOverlapWeight float64  `yaml:"token_overlap_weight"`
	TokenMinLength     int      `yaml:"token_min_length"`
}

// ClassifyConfig tunes column classification.
type ClassifyConfig struct {
	SampleRows           int      `yaml:"sample_rows"`
	MinNumericRatio      float64  `yaml:"min_numeric_ratio"`
	NonValueHeaders      []string `yaml:"non_value_headers"`
	ExactNonValueHeaders []string `yaml:"exact_non_value_headers"`
}

// Config defines the import engine configuration.
type Config struct {
	ScanRows           int                     `yaml:"scan_rows"`
	Classify           ClassifyConfig          `yaml:"classify"`
	Units              UnitDefaults            `yaml:"units"`
	Sites              map[string]UnitDefaults `yaml:"sites"`
	Matching           MatchingConfig          `yaml:"matching"`
	DuplicateTolerance float64                 `yaml:"duplicate_tolerance"`
	DateOrder          string                  `yaml:"date_order"`
	Timezone           string                  `yaml:"timezone"`
	MaxFileBytes       int64                   `yaml:"max_file_bytes"`
	PreviewTTL         time.Duration           `yaml:"preview_ttl"`
}

// DefaultConfig returns the built-in engine settings.
func DefaultConfig() Config {
	return Config{
		ScanRows: sniff.DefaultScanRows,
		Classify: ClassifyConfig{
			SampleRows:      classify.DefaultSampleRows,
			MinNumericRatio: classify.DefaultMinNumericRatio,
		},
		Units: UnitDefaults{
			PowerFactor: units.DefaultPowerFactor,
			Voltage:     230,
		},
		Matching: MatchingConfig{
			Threshold:          matching.DefaultThreshold,
			ContainmentWeight:  matching.ContainmentWeight,
			TokenOverlapWeight: matching.TokenOverlapWeight,
			TokenMinLength:     matching.TokenOverlapMinSize,
		},
		DuplicateTolerance: matching.DefaultDuplicateTolerance,
		Timezone:           "UTC",
		MaxFileBytes:       32 << 20,
		PreviewTTL:         30 * time.Minute,
	}
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("INGEST_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Units.Unit == "" {
		cfg.Units.Unit = os.Getenv("INGEST_DEFAULT_UNIT")
	}
	if cfg.Units.Phase == "" {
		cfg.Units.Phase = os.Getenv("INGEST_DEFAULT_PHASE")
	}
	cfg.Units.PowerFactor = getenvFloatDefault("INGEST_POWER_FACTOR", cfg.Units.PowerFactor)
	cfg.Units.Voltage = getenvFloatDefault("INGEST_VOLTAGE", cfg.Units.Voltage)
	cfg.Matching.Threshold = getenvFloatDefault("INGEST_MATCH_THRESHOLD", cfg.Matching.Threshold)
	cfg.DuplicateTolerance = getenvFloatDefault("INGEST_DUPLICATE_TOLERANCE", cfg.DuplicateTolerance)
	if len(cfg.Matching.Strategies) == 0 {
		cfg.Matching.Strategies = splitCSV(os.Getenv("INGEST_MATCH_STRATEGIES"))
	}
	if cfg.DateOrder == "" {
		cfg.DateOrder = os.Getenv("INGEST_DATE_ORDER")
	}
	cfg.Timezone = getenvDefault("INGEST_TIMEZONE", cfg.Timezone)
	if mb := getenvFloatDefault("INGEST_MAX_FILE_MB", 0); mb > 0 {
		cfg.MaxFileBytes = int64(mb * (1 << 20))
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that every named setting resolves.
func (c Config) Validate() error {
	if c.Units.Unit != "" {
		if _, err := units.ParseUnit(c.Units.Unit); err != nil {
			return fmt.Errorf("ingest config: %w", err)
		}
	}
	if _, err := units.ParsePhase(c.Units.Phase); err != nil {
		return fmt.Errorf("ingest config: %w", err)
	}
	if _, err := time.LoadLocation(c.timezone()); err != nil {
		return fmt.Errorf("ingest config: timezone %q: %w", c.Timezone, err)
	}
	if _, err := c.strategies(); err != nil {
		return err
	}
	return nil
}

// UnitsForSite returns unit defaults for a site, merged over the global defaults.
func (c Config) UnitsForSite(site string) UnitDefaults {
	if c.Sites != nil {
		if override, ok := c.Sites[site]; ok {
			return mergeUnits(c.Units, override)
		}
	}
	return c.Units
}

// SniffOptions builds the sniffer settings.
func (c Config) SniffOptions(separator rune) sniff.Options {
	opts := sniff.Options{Separator: separator}
	if c.ScanRows > 0 {
		opts.Pivot = sniff.ScanWindow{Rows: c.ScanRows}
	}
	return opts
}

// ClassifyOptions builds the classifier settings.
func (c Config) ClassifyOptions() classify.Options {
	return classify.Options{
		SampleRows:           c.Classify.SampleRows,
		MinNumericRatio:      c.Classify.MinNumericRatio,
		NonValueHeaders:      c.Classify.NonValueHeaders,
		ExactNonValueHeaders: c.Classify.ExactNonValueHeaders,
	}
}

// NormalizeOptions resolves unit defaults for a site into normalizer options.
func (c Config) NormalizeOptions(site string) (normalize.Options, error) {
	defaults := c.UnitsForSite(site)
	opts := normalize.Options{
		IntervalMinutes:    defaults.IntervalMinutes,
		IntervalSampleRows: c.Classify.SampleRows,
		PowerFactor:        defaults.PowerFactor,
		Voltage:            defaults.Voltage,
		DateOrder:          normalize.ParseDateOrder(c.DateOrder),
	}
	if defaults.Unit != "" {
		unit, err := units.ParseUnit(defaults.Unit)
		if err != nil {
			return opts, err
		}
		opts.Unit = unit
	}
	phase, err := units.ParsePhase(defaults.Phase)
	if err != nil {
		return opts, err
	}
	opts.Phase = phase
	loc, err := time.LoadLocation(c.timezone())
	if err != nil {
		return opts, err
	}
	opts.Location = loc
	return opts, nil
}

// Matcher builds the identity matcher from the configured strategy list.
func (c Config) Matcher() (*matching.Matcher, error) {
	strategies, err := c.strategies()
	if err != nil {
		return nil, err
	}
	return matching.NewMatcher(matching.WithStrategies(strategies...), matching.WithThreshold(c.Matching.Threshold)), nil
}

func (c Config) strategies() ([]matching.Strategy, error) {
	if len(c.Matching.Strategies) == 0 {
		return []matching.Strategy{
			matching.ExactStrategy{},
			matching.ContainmentStrategy{Weight: c.Matching.ContainmentWeight},
			matching.TokenOverlapStrategy{Weight: c.Matching.TokenOverlapWeight, MinLen: c.Matching.TokenMinLength},
		}, nil
	}
	out := make([]matching.Strategy, 0, len(c.Matching.Strategies))
	for _, name := range c.Matching.Strategies {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "exact":
			out = append(out, matching.ExactStrategy{})
		case "containment":
			out = append(out, matching.ContainmentStrategy{Weight: c.Matching.ContainmentWeight})
		case "token_overlap":
			out = append(out, matching.TokenOverlapStrategy{Weight: c.Matching.TokenOverlapWeight, MinLen: c.Matching.TokenMinLength})
		default:
			return nil, fmt.Errorf("ingest config: unknown match strategy %q", name)
		}
	}
	return out, nil
}

func (c Config) timezone() string {
	if c.Timezone == "" {
		return "UTC"
	}
	return c.Timezone
}

func mergeUnits(base, override UnitDefaults) UnitDefaults {
	if override.Unit != "" {
		base.Unit = override.Unit
	}
	if override.IntervalMinutes != 0 {
		base.IntervalMinutes = override.IntervalMinutes
	}
	if override.PowerFactor != 0 {
		base.PowerFactor = override.PowerFactor
	}
	if override.Voltage != 0 {
		base.Voltage = override.Voltage
	}
	if override.Phase != "" {
		base.Phase = override.Phase
	}
	return base
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
