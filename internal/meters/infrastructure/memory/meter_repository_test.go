package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	ingest "meterprofile/internal/ingest/domain"
	meters "meterprofile/internal/meters/domain"
)

func TestMeterRepository_CreateUpdateLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewMeterRepository()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	meter := &meters.Meter{ID: "m-1", Identity: meters.Identity{SiteName: "Mall", ShopName: "Cafe"}}
	readings := []ingest.Reading{{At: start, KW: 1}, {At: start.Add(time.Hour), KW: 2}}
	if err := repo.Create(ctx, meter, readings); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, meter, nil); err == nil {
		t.Fatalf("expected duplicate id error")
	}

	profile := ingest.Profile{Representation: ingest.RepresentationRawKW}
	profile.Weekday[0] = 3
	if err := repo.UpdateProfile(ctx, "m-1", profile, "cafe.csv", []ingest.Reading{{At: start.Add(time.Hour), KW: 5}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := repo.UpdateProfile(ctx, "missing", profile, "", nil); !errors.Is(err, meters.ErrMeterNotFound) {
		t.Fatalf("expected ErrMeterNotFound, got %v", err)
	}

	got, err := repo.Get(ctx, "m-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Profile == nil || got.Profile.Weekday[0] != 3 || got.FileName != "cafe.csv" {
		t.Fatalf("unexpected meter %+v", got)
	}

	series, err := repo.LoadSeries(ctx, []string{"m-1", "unknown"}, meters.Window{From: start, To: start.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(series) != 1 || len(series[0].Readings) != 2 || series[0].Readings[1].KW != 5 {
		t.Fatalf("unexpected series %+v", series)
	}

	summaries, err := repo.ListSummaries(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 1 || !summaries[0].HasProfile {
		t.Fatalf("unexpected summaries %+v", summaries)
	}
}

func TestMeterRepository_RejectsInvalidMeter(t *testing.T) {
	repo := NewMeterRepository()
	if err := repo.Create(context.Background(), &meters.Meter{ID: "m-1"}, nil); !errors.Is(err, meters.ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	area := -1.0
	bad := &meters.Meter{ID: "m-2", Identity: meters.Identity{ShopName: "x", FloorArea: &area}}
	if err := repo.Create(context.Background(), bad, nil); !errors.Is(err, meters.ErrInvalidFloorArea) {
		t.Fatalf("expected ErrInvalidFloorArea, got %v", err)
	}
}
