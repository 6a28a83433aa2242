package ingest

import (
	"errors"
	"math"
	"testing"
)

func TestProfileToPercentage_WeekdayOnly(t *testing.T) {
	p := Profile{Representation: RepresentationRawKW}
	p.Weekday[8], p.Weekday[9] = 30, 10

	pct, err := p.ToPercentage()
	if err != nil {
		t.Fatalf("to percentage: %v", err)
	}
	if pct.Representation != RepresentationPercentage || pct.Weekday[8] != 75 || pct.Weekday[9] != 25 {
		t.Fatalf("unexpected weekday percentages %+v", pct.Weekday)
	}
	if pct.DailyKWh(DayTypeWeekend) != 0 {
		t.Fatalf("weekend without consumption must stay zero, got %+v", pct.Weekend)
	}
	if err := pct.Validate(); err != nil {
		t.Fatalf("weekday-only percentage profile should validate: %v", err)
	}
	if p.Weekday[8] != 30 {
		t.Fatalf("source profile modified")
	}
}

func TestProfileToPercentage_Errors(t *testing.T) {
	if _, err := (Profile{Representation: RepresentationRawKW}).ToPercentage(); !errors.Is(err, ErrZeroProfile) {
		t.Fatalf("expected ErrZeroProfile, got %v", err)
	}

	empty := Profile{Representation: RepresentationPercentage}
	if err := empty.Validate(); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected empty percentage profile rejected, got %v", err)
	}
	partial := Profile{Representation: RepresentationPercentage}
	partial.Weekday[0], partial.Weekend[0] = 100, 60
	if err := partial.Validate(); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected weekend sum of 60 rejected, got %v", err)
	}
	partial.Weekend[0] = math.NaN()
	if err := partial.Validate(); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected NaN rejected, got %v", err)
	}
}
