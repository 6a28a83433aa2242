package application

import (
	"context"
	"errors"
	"testing"
	"time"

	comparison "meterprofile/internal/comparison/domain"
	ingest "meterprofile/internal/ingest/domain"
	meters "meterprofile/internal/meters/domain"
	"meterprofile/internal/meters/infrastructure/memory"
)

func seedRepo(t *testing.T) *memory.MeterRepository {
	t.Helper()
	repo := memory.NewMeterRepository()
	ctx := context.Background()

	profile := ingest.Profile{Representation: ingest.RepresentationRawKW}
	profile.Weekday[9] = 4
	a := &meters.Meter{ID: "a", Identity: meters.Identity{SiteName: "Mall", ShopName: "Bakery"}, Profile: &profile}
	readings := []ingest.Reading{
		{At: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), KW: 4},
		{At: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), KW: 8},
	}
	if err := repo.Create(ctx, a, readings); err != nil {
		t.Fatalf("create a: %v", err)
	}
	b := &meters.Meter{ID: "b", Identity: meters.Identity{SiteName: "Mall", ShopName: "Books"}}
	if err := repo.Create(ctx, b, []ingest.Reading{{At: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), KW: 2}}); err != nil {
		t.Fatalf("create b: %v", err)
	}
	return repo
}

func TestCompare_HourlyWithinRange(t *testing.T) {
	svc, err := NewComparisonService(seedRepo(t), nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	cmp, err := svc.Compare(context.Background(), Request{MeterIDs: []string{"a", "b", "a"}, From: &day, To: &day, BaselineID: "a"})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(cmp.Columns) != 2 || cmp.Columns[0].Label != "Bakery" {
		t.Fatalf("unexpected columns %+v", cmp.Columns)
	}
	if cmp.Points[9].Values["a"] != 8 || cmp.Points[9].Values["b"] != 0 {
		t.Fatalf("unexpected hour 9 %+v", cmp.Points[9])
	}
}

func TestCompare_ProfileModeAndErrors(t *testing.T) {
	svc, _ := NewComparisonService(seedRepo(t), time.UTC, nil)
	ctx := context.Background()

	cmp, err := svc.Compare(ctx, Request{MeterIDs: []string{"a"}, Mode: comparison.ModeProfile, DayType: ingest.DayTypeWeekday})
	if err != nil {
		t.Fatalf("profile compare: %v", err)
	}
	if cmp.Mode != comparison.ModeProfile || cmp.Points[9].Values["a"] != 4 {
		t.Fatalf("unexpected profile comparison %+v", cmp.Points[9])
	}

	if _, err := svc.Compare(ctx, Request{MeterIDs: []string{"a", "b"}, Mode: comparison.ModeProfile}); !errors.Is(err, comparison.ErrMissingProfile) {
		t.Fatalf("expected ErrMissingProfile, got %v", err)
	}
	if _, err := svc.Compare(ctx, Request{MeterIDs: []string{"a", "nope"}}); !errors.Is(err, meters.ErrMeterNotFound) {
		t.Fatalf("expected ErrMeterNotFound, got %v", err)
	}
	if _, err := svc.Compare(ctx, Request{MeterIDs: []string{" "}}); !errors.Is(err, comparison.ErrNoMeters) {
		t.Fatalf("expected ErrNoMeters, got %v", err)
	}
	svc.maxMeters = 1
	if _, err := svc.Compare(ctx, Request{MeterIDs: []string{"a", "b"}}); !errors.Is(err, ErrTooManyMeters) {
		t.Fatalf("expected ErrTooManyMeters, got %v", err)
	}
}
