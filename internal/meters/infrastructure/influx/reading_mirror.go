package influx

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	ingest "meterprofile/internal/ingest/domain"
	meters "meterprofile/internal/meters/domain"
)

const (
	measurement      = "meter_load"
	defaultBatchSize = 1000
	connectTimeout   = 10 * time.Second
)

// ErrDisabled is returned by Connect when no URL is configured.
var ErrDisabled = errors.New("influx mirror: disabled")

// Config selects the InfluxDB bucket readings are mirrored to.
type Config struct {
	URL       string
	Token     string
	Org       string
	Bucket    string
	BatchSize int
}

// PointWriter is the blocking write API subset the mirror uses.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// ReadingMirror copies saved readings into InfluxDB, one point per reading tagged
// with the meter identity.
type ReadingMirror struct {
	writer    PointWriter
	batchSize int
	close     func()
}

// NewReadingMirror wraps an existing writer.
func NewReadingMirror(writer PointWriter, batchSize int) *ReadingMirror {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &ReadingMirror{writer: writer, batchSize: batchSize, close: func() {}}
}

// Connect creates a client, verifies connectivity and returns a mirror writing to
// cfg.Bucket.
func Connect(ctx context.Context, cfg Config) (*ReadingMirror, error) {
	if cfg.URL == "" {
		return nil, ErrDisabled
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influx mirror: ping: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, errors.New("influx mirror: server not healthy")
	}
	mirror := NewReadingMirror(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg.BatchSize)
	mirror.close = client.Close
	return mirror, nil
}

// MirrorReadings implements meters.ReadingMirror.
func (m *ReadingMirror) MirrorReadings(ctx context.Context, meter meters.Meter, readings []ingest.Reading) error {
	if m == nil || m.writer == nil {
		return errors.New("influx mirror: nil writer")
	}
	tags := map[string]string{
		"meter_id": meter.ID,
		"site":     meter.SiteName,
		"shop":     meter.ShopName,
	}
	if meter.Category != "" {
		tags["category"] = meter.Category
	}
	for start := 0; start < len(readings); start += m.batchSize {
		end := min(start+m.batchSize, len(readings))
		points := make([]*write.Point, 0, end-start)
		for _, reading := range readings[start:end] {
			points = append(points, write.NewPoint(measurement, tags, map[string]interface{}{"kw": reading.KW}, reading.At))
		}
		if err := m.writer.WritePoint(ctx, points...); err != nil {
			return fmt.Errorf("influx mirror: write meter %s: %w", meter.ID, err)
		}
	}
	return nil
}

// Close releases the underlying client.
func (m *ReadingMirror) Close() {
	if m != nil && m.close != nil {
		m.close()
	}
}
