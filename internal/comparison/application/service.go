package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	comparison "meterprofile/internal/comparison/domain"
	ingest "meterprofile/internal/ingest/domain"
	meters "meterprofile/internal/meters/domain"
	"meterprofile/internal/observability/metrics"
)

// ErrTooManyMeters is returned when a request selects more meters than allowed.
var ErrTooManyMeters = errors.New("comparison: too many meters")

// DefaultMaxMeters bounds one comparison request.
const DefaultMaxMeters = 50

// Request selects meters and aggregation settings for a comparison.
type Request struct {
	MeterIDs   []string
	Mode       comparison.Mode
	DayType    ingest.DayType
	From       *time.Time
	To         *time.Time
	BaselineID string
	// Reconcile allows mixing percentage and raw kW profiles in profile mode.
	Reconcile bool
}

// ComparisonService loads meters and builds comparisons.
type ComparisonService struct {
	repo      meters.Repository
	logger    *log.Logger
	loc       *time.Location
	maxMeters int
}

// NewComparisonService constructs a service. A nil location means UTC.
func NewComparisonService(repo meters.Repository, loc *time.Location, logger *log.Logger) (*ComparisonService, error) {
	if repo == nil {
		return nil, errors.New("comparison service: nil repository")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ComparisonService{repo: repo, logger: logger, loc: loc, maxMeters: DefaultMaxMeters}, nil
}

// Compare builds a comparison for the requested meters, in request order.
func (s *ComparisonService) Compare(ctx context.Context, req Request) (result comparison.Comparison, err error) {
	start := time.Now()
	mode := req.Mode
	if mode == "" {
		mode = comparison.ModeHourly
	}
	outcome := metrics.ResultSuccess
	defer func() {
		if err != nil {
			outcome = metrics.ResultError
		}
		metrics.ObserveComparison(string(mode), outcome, time.Since(start))
	}()

	ids := uniqueIDs(req.MeterIDs)
	if len(ids) == 0 {
		return comparison.Comparison{}, comparison.ErrNoMeters
	}
	if len(ids) > s.maxMeters {
		return comparison.Comparison{}, fmt.Errorf("%w: %d > %d", ErrTooManyMeters, len(ids), s.maxMeters)
	}
	query := comparison.Query{
		Mode:       mode,
		DayType:    req.DayType,
		From:       req.From,
		To:         req.To,
		BaselineID: req.BaselineID,
		Location:   s.loc,
	}

	if mode == comparison.ModeProfile {
		list := make([]meters.Meter, 0, len(ids))
		for _, id := range ids {
			meter, err := s.repo.Get(ctx, id)
			if err != nil {
				return comparison.Comparison{}, fmt.Errorf("comparison: load %s: %w", id, err)
			}
			list = append(list, *meter)
		}
		return comparison.CompareProfiles(comparison.EntriesFromMeters(list), req.DayType, req.Reconcile, req.BaselineID)
	}

	series, err := s.repo.LoadSeries(ctx, ids, query.Window())
	if err != nil {
		return comparison.Comparison{}, fmt.Errorf("comparison: load series: %w", err)
	}
	if missing := missingIDs(ids, series); len(missing) > 0 {
		return comparison.Comparison{}, fmt.Errorf("%w: %s", meters.ErrMeterNotFound, strings.Join(missing, ", "))
	}
	result, err = comparison.Aggregate(ctx, series, query)
	if err != nil {
		return comparison.Comparison{}, err
	}
	readings := 0
	for _, item := range series {
		readings += len(item.Readings)
	}
	s.logger.Printf("comparison: mode=%s meters=%d readings=%d took=%s", mode, len(series), readings, time.Since(start))
	return result, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(ids []string, series []meters.Series) []string {
	found := make(map[string]struct{}, len(series))
	for _, s := range series {
		found[s.Meter.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
