package comparison

import (
	"context"
	"errors"
	"testing"
	"time"

	ingest "meterprofile/internal/ingest/domain"
	meters "meterprofile/internal/meters/domain"
)

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func series(id, name string, floorArea *float64, readings ...ingest.Reading) meters.Series {
	return meters.Series{
		Meter: meters.Meter{
			ID:       id,
			Identity: meters.Identity{ShopName: name, FloorArea: floorArea},
		},
		Readings: readings,
	}
}

func TestAggregate_WeekendFilterOnWeekdayOnlyMeterIsZero(t *testing.T) {
	s := series("a", "Shop A", nil,
		ingest.Reading{At: at(2024, 1, 1, 0, 0), KW: 4},
		ingest.Reading{At: at(2024, 1, 2, 13, 0), KW: 7},
	)
	cmp, err := Aggregate(context.Background(), []meters.Series{s}, Query{Mode: ModeHourly, DayType: ingest.DayTypeWeekend})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(cmp.Points) != 24 {
		t.Fatalf("expected 24 points, got %d", len(cmp.Points))
	}
	for _, point := range cmp.Points {
		if point.Values["a"] != 0 {
			t.Fatalf("expected zero at %s, got %v", point.Label, point.Values["a"])
		}
	}
	if cmp.Points[0].Label != "00:00" || cmp.Points[23].Label != "23:00" {
		t.Fatalf("unexpected labels %s..%s", cmp.Points[0].Label, cmp.Points[23].Label)
	}
	if cmp.Stats[0].Total != 0 || cmp.Stats[0].DeviationFromMean != 0 {
		t.Fatalf("unexpected stats %+v", cmp.Stats[0])
	}
}

func TestAggregate_MonthlyLabelsAreChronological(t *testing.T) {
	a := series("a", "Shop A", nil,
		ingest.Reading{At: at(2024, 1, 15, 10, 0), KW: 3},
		ingest.Reading{At: at(2023, 12, 31, 23, 0), KW: 2},
		ingest.Reading{At: at(2023, 12, 1, 0, 0), KW: 1.5},
	)
	b := series("b", "Shop B", nil, ingest.Reading{At: at(2024, 1, 2, 0, 0), KW: 10})
	cmp, err := Aggregate(context.Background(), []meters.Series{a, b}, Query{Mode: ModeMonthly})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(cmp.Points) != 2 || cmp.Points[0].Label != "Dec 2023" || cmp.Points[1].Label != "Jan 2024" {
		t.Fatalf("unexpected points %+v", cmp.Points)
	}
	if cmp.Points[0].Values["a"] != 3.5 || cmp.Points[0].Values["b"] != 0 || cmp.Points[1].Values["b"] != 10 {
		t.Fatalf("unexpected monthly sums %+v", cmp.Points)
	}
	if total := cmp.Total(cmp.Points[1]); total != 13 {
		t.Fatalf("expected point total 13, got %v", total)
	}
}

func TestAggregate_HourlyMeansWithInclusiveRange(t *testing.T) {
	s := series("a", "Shop A", nil,
		ingest.Reading{At: at(2024, 1, 1, 0, 0), KW: 2},
		ingest.Reading{At: at(2024, 1, 1, 0, 30), KW: 4},
		ingest.Reading{At: at(2024, 1, 2, 0, 0), KW: 6},
		ingest.Reading{At: at(2024, 1, 2, 23, 30), KW: 1},
		ingest.Reading{At: at(2024, 1, 3, 0, 0), KW: 100},
	)
	cmp, err := Aggregate(context.Background(), []meters.Series{s}, Query{})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if cmp.Mode != ModeHourly || cmp.Points[0].Values["a"] != 28 {
		t.Fatalf("expected hour 0 mean 28, got %v", cmp.Points[0].Values["a"])
	}

	day := at(2024, 1, 2, 15, 0)
	cmp, err = Aggregate(context.Background(), []meters.Series{s}, Query{From: &day, To: &day})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if cmp.Points[0].Values["a"] != 6 || cmp.Points[23].Values["a"] != 1 {
		t.Fatalf("expected only 2 Jan readings, got %v and %v", cmp.Points[0].Values["a"], cmp.Points[23].Values["a"])
	}

	window := Query{From: &day, To: &day}.Window()
	if !window.From.Equal(at(2024, 1, 2, 0, 0)) || !window.To.Equal(at(2024, 1, 3, 0, 0)) {
		t.Fatalf("unexpected window %+v", window)
	}
}

func TestAggregate_WeeklyMeanOfDailyTotals(t *testing.T) {
	s := series("a", "Shop A", nil,
		ingest.Reading{At: at(2024, 1, 1, 8, 0), KW: 1},
		ingest.Reading{At: at(2024, 1, 1, 9, 0), KW: 2},
		ingest.Reading{At: at(2024, 1, 8, 8, 0), KW: 5},
		ingest.Reading{At: at(2024, 1, 7, 8, 0), KW: 9},
	)
	cmp, err := Aggregate(context.Background(), []meters.Series{s}, Query{Mode: ModeWeekly})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(cmp.Points) != 7 || cmp.Points[0].Label != "Mon" || cmp.Points[6].Label != "Sun" {
		t.Fatalf("unexpected weekly points %+v", cmp.Points)
	}
	if cmp.Points[0].Values["a"] != 4 || cmp.Points[6].Values["a"] != 9 || cmp.Points[5].Values["a"] != 0 {
		t.Fatalf("unexpected weekly values %+v", cmp.Points)
	}
}

func TestAggregate_BaselineAndStats(t *testing.T) {
	area := 3.0
	a := series("a", "Shop A", nil, ingest.Reading{At: at(2024, 1, 1, 0, 0), KW: 10})
	b := series("b", "Shop B", &area, ingest.Reading{At: at(2024, 1, 1, 0, 0), KW: 15})
	cmp, err := Aggregate(context.Background(), []meters.Series{a, b}, Query{BaselineID: "a"})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	sa, sb := cmp.Stats[0], cmp.Stats[1]
	if sa.DeviationFromBaseline != nil || sa.Intensity != nil {
		t.Fatalf("baseline must not deviate from itself: %+v", sa)
	}
	if sb.DeviationFromBaseline == nil || *sb.DeviationFromBaseline != 50 {
		t.Fatalf("expected +50%% against baseline, got %+v", sb)
	}
	if sa.DeviationFromMean != -20 || sb.DeviationFromMean != 20 {
		t.Fatalf("unexpected deviation from mean %v %v", sa.DeviationFromMean, sb.DeviationFromMean)
	}
	if sb.Intensity == nil || *sb.Intensity != 5 || sb.Peak != 15 || sb.Total != 15 {
		t.Fatalf("unexpected stats %+v", sb)
	}
	if sb.Average != 0.63 {
		t.Fatalf("expected average 15/24 rounded to 0.63, got %v", sb.Average)
	}
	if cmp.Baseline[0].Values["a"] != 0 || cmp.Baseline[0].Values["b"] != 50 || cmp.Baseline[1].Values["b"] != 0 {
		t.Fatalf("unexpected baseline series %+v", cmp.Baseline[:2])
	}

	noBaseline, _ := Aggregate(context.Background(), []meters.Series{a, b}, Query{})
	if noBaseline.Baseline != nil || noBaseline.Stats[1].DeviationFromBaseline != nil {
		t.Fatalf("expected no baseline output")
	}
}

func TestAggregate_Errors(t *testing.T) {
	ctx := context.Background()
	s := series("a", "Shop A", nil, ingest.Reading{At: at(2024, 1, 1, 0, 0), KW: 1})
	if _, err := Aggregate(ctx, nil, Query{}); !errors.Is(err, ErrNoMeters) {
		t.Fatalf("expected ErrNoMeters, got %v", err)
	}
	if _, err := Aggregate(ctx, []meters.Series{s}, Query{BaselineID: "zzz"}); !errors.Is(err, ErrUnknownBaseline) {
		t.Fatalf("expected ErrUnknownBaseline, got %v", err)
	}
	from, to := at(2024, 2, 1, 0, 0), at(2024, 1, 1, 0, 0)
	if _, err := Aggregate(ctx, []meters.Series{s}, Query{From: &from, To: &to}); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := Aggregate(ctx, []meters.Series{s}, Query{Mode: "yearly"}); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if _, err := ParseMode("daily"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := Aggregate(cancelled, []meters.Series{s}, Query{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRounding(t *testing.T) {
	if RoundValue(2.345) != 2.35 || RoundValue(-2.345) != -2.35 {
		t.Fatalf("values must round half away from zero")
	}
	if RoundPercentage(12.25) != 12.3 || RoundPercentage(-0.25) != -0.3 {
		t.Fatalf("percentages must round to one decimal")
	}
	if RoundTotal(2.5) != 3 || RoundTotal(-2.5) != -3 || RoundTotal(1234.49) != 1234 {
		t.Fatalf("totals must round to whole kWh")
	}
}
