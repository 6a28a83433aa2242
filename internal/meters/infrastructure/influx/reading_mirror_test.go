package influx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	ingest "meterprofile/internal/ingest/domain"
	meters "meterprofile/internal/meters/domain"
)

type recordingWriter struct {
	calls  [][]*write.Point
	failOn int
}

func (w *recordingWriter) WritePoint(ctx context.Context, points ...*write.Point) error {
	w.calls = append(w.calls, points)
	if w.failOn > 0 && len(w.calls) == w.failOn {
		return errors.New("boom")
	}
	return nil
}

func TestMirrorReadings_Batches(t *testing.T) {
	writer := &recordingWriter{}
	mirror := NewReadingMirror(writer, 2)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	readings := []ingest.Reading{
		{At: start, KW: 1},
		{At: start.Add(time.Hour), KW: 2},
		{At: start.Add(2 * time.Hour), KW: 3},
	}
	meter := meters.Meter{ID: "m-1", Identity: meters.Identity{SiteName: "Mall", ShopName: "Cafe", Category: "food"}}
	if err := mirror.MirrorReadings(context.Background(), meter, readings); err != nil {
		t.Fatalf("mirror: %v", err)
	}
	if len(writer.calls) != 2 || len(writer.calls[0]) != 2 || len(writer.calls[1]) != 1 {
		t.Fatalf("unexpected batches %v", writer.calls)
	}
	point := writer.calls[0][0]
	if point.Name() != measurement {
		t.Fatalf("unexpected measurement %s", point.Name())
	}
	tags := map[string]string{}
	for _, tag := range point.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["meter_id"] != "m-1" || tags["category"] != "food" {
		t.Fatalf("unexpected tags %v", tags)
	}
}

func TestMirrorReadings_WrapsWriteError(t *testing.T) {
	mirror := NewReadingMirror(&recordingWriter{failOn: 1}, 10)
	err := mirror.MirrorReadings(context.Background(), meters.Meter{ID: "m-2"}, []ingest.Reading{{At: time.Now(), KW: 1}})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestConnect_Disabled(t *testing.T) {
	if _, err := Connect(context.Background(), Config{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
