package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	ingest "meterprofile/internal/ingest/domain"
	meters "meterprofile/internal/meters/domain"
)

// MeterRepository is an in-memory repository for demo/testing.
type MeterRepository struct {
	mu       sync.RWMutex
	meters   map[string]*meters.Meter
	readings map[string]map[time.Time]float64
	now      func() time.Time
}

// NewMeterRepository constructs a repository.
func NewMeterRepository() *MeterRepository {
	return &MeterRepository{
		meters:   make(map[string]*meters.Meter),
		readings: make(map[string]map[time.Time]float64),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ListSummaries returns every meter ordered by site and shop name.
func (r *MeterRepository) ListSummaries(ctx context.Context) ([]meters.Summary, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]meters.Summary, 0, len(r.meters))
	for _, meter := range r.meters {
		out = append(out, meter.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SiteName != out[j].SiteName {
			return out[i].SiteName < out[j].SiteName
		}
		if out[i].ShopName != out[j].ShopName {
			return out[i].ShopName < out[j].ShopName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get loads a meter by id.
func (r *MeterRepository) Get(ctx context.Context, id string) (*meters.Meter, error) {
	_ = ctx
	if id == "" {
		return nil, meters.ErrEmptyID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	meter := r.meters[id]
	if meter == nil {
		return nil, meters.ErrMeterNotFound
	}
	copied := cloneMeter(meter)
	return &copied, nil
}

// Create stores a new meter.
func (r *MeterRepository) Create(ctx context.Context, meter *meters.Meter, readings []ingest.Reading) error {
	_ = ctx
	if meter == nil {
		return errors.New("memory meter repo: nil meter")
	}
	if err := meter.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.meters[meter.ID]; exists {
		return errors.New("memory meter repo: duplicate id " + meter.ID)
	}
	now := r.now()
	meter.CreatedAt, meter.UpdatedAt = now, now
	stored := cloneMeter(meter)
	r.meters[meter.ID] = &stored
	r.upsertReadings(meter.ID, readings)
	return nil
}

// UpdateProfile replaces the profile of an existing meter.
func (r *MeterRepository) UpdateProfile(ctx context.Context, id string, profile ingest.Profile, fileName string, readings []ingest.Reading) error {
	_ = ctx
	if id == "" {
		return meters.ErrEmptyID
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	meter := r.meters[id]
	if meter == nil {
		return meters.ErrMeterNotFound
	}
	meter.Profile = &profile
	if fileName != "" {
		meter.FileName = fileName
	}
	meter.UpdatedAt = r.now()
	r.upsertReadings(id, readings)
	return nil
}

// LoadSeries returns the selected meters with readings inside the window, in the
// order of ids. Unknown ids are skipped.
func (r *MeterRepository) LoadSeries(ctx context.Context, ids []string, window meters.Window) ([]meters.Series, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]meters.Series, 0, len(ids))
	for _, id := range ids {
		meter := r.meters[id]
		if meter == nil {
			continue
		}
		series := meters.Series{Meter: cloneMeter(meter)}
		for at, kw := range r.readings[id] {
			if window.Contains(at) {
				series.Readings = append(series.Readings, ingest.Reading{At: at, KW: kw})
			}
		}
		sort.Slice(series.Readings, func(i, j int) bool { return series.Readings[i].At.Before(series.Readings[j].At) })
		out = append(out, series)
	}
	return out, nil
}

func (r *MeterRepository) upsertReadings(id string, readings []ingest.Reading) {
	if len(readings) == 0 {
		return
	}
	bucket := r.readings[id]
	if bucket == nil {
		bucket = make(map[time.Time]float64, len(readings))
		r.readings[id] = bucket
	}
	for _, reading := range readings {
		bucket[reading.At.UTC()] = reading.KW
	}
}

func cloneMeter(meter *meters.Meter) meters.Meter {
	copied := *meter
	if meter.FloorArea != nil {
		area := *meter.FloorArea
		copied.FloorArea = &area
	}
	if meter.Profile != nil {
		profile := *meter.Profile
		profile.ApproximatedHours = append([]int(nil), meter.Profile.ApproximatedHours...)
		copied.Profile = &profile
	}
	return copied
}
