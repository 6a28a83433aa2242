package meters

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	ingest "meterprofile/internal/ingest/domain"
)

var (
	// ErrMeterNotFound is returned when a meter id is unknown.
	ErrMeterNotFound = errors.New("meter: not found")
	// ErrEmptyID is returned for operations without a meter id.
	ErrEmptyID = errors.New("meter: empty id")
	// ErrEmptyName is returned when a meter has no shop name and no label.
	ErrEmptyName = errors.New("meter: empty shop name and label")
	// ErrInvalidFloorArea is returned for a non-positive floor area.
	ErrInvalidFloorArea = errors.New("meter: floor area must be positive")
)

// Identity holds the descriptive fields of a meter record.
type Identity struct {
	SiteName   string   `json:"site_name"`
	ShopName   string   `json:"shop_name"`
	ShopNumber string   `json:"shop_number,omitempty"`
	Label      string   `json:"label,omitempty"`
	Color      string   `json:"color,omitempty"`
	FloorArea  *float64 `json:"floor_area,omitempty"`
	Category   string   `json:"category,omitempty"`
	FileName   string   `json:"file_name,omitempty"`
}

// DisplayName is the label shown in comparisons.
func (i Identity) DisplayName() string {
	if strings.TrimSpace(i.Label) != "" {
		return i.Label
	}
	return i.ShopName
}

// Meter is a persisted meter record with its canonical profile.
type Meter struct {
	ID string `json:"id"`
	Identity
	Profile   *ingest.Profile `json:"profile,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewMeterID generates an id for a new meter record.
func NewMeterID() string {
	return uuid.NewString()
}

// Validate checks meter invariants.
func (m Meter) Validate() error {
	if m.ID == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(m.ShopName) == "" && strings.TrimSpace(m.Label) == "" {
		return ErrEmptyName
	}
	if m.FloorArea != nil && *m.FloorArea <= 0 {
		return ErrInvalidFloorArea
	}
	if m.Profile != nil {
		return m.Profile.Validate()
	}
	return nil
}

// Summary is the matching view of a meter record.
func (m Meter) Summary() Summary {
	s := Summary{ID: m.ID, Identity: m.Identity, UpdatedAt: m.UpdatedAt}
	if m.Profile != nil {
		s.HasProfile = true
		s.Representation = m.Profile.Representation
	}
	return s
}

// Summary is the lightweight record listing used for matching and selection.
type Summary struct {
	ID string `json:"id"`
	Identity
	HasProfile     bool                  `json:"has_profile"`
	Representation ingest.Representation `json:"representation,omitempty"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Series is a meter together with its readings inside a query window.
type Series struct {
	Meter    Meter            `json:"meter"`
	Readings []ingest.Reading `json:"readings"`
}

// Window bounds a readings query. Zero values are open ends; To is exclusive.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// Repository persists meter records and their readings.
type Repository interface {
	ListSummaries(ctx context.Context) ([]Summary, error)
	Get(ctx context.Context, id string) (*Meter, error)
	// Create stores a new meter with its readings.
	Create(ctx context.Context, meter *Meter, readings []ingest.Reading) error
	// UpdateProfile replaces the profile and source file name of an existing meter and
	// upserts its readings by timestamp.
	UpdateProfile(ctx context.Context, id string, profile ingest.Profile, fileName string, readings []ingest.Reading) error
	LoadSeries(ctx context.Context, ids []string, window Window) ([]Series, error)
}

// ReadingMirror receives readings after a successful save, for example a time-series
// database used by dashboards.
type ReadingMirror interface {
	MirrorReadings(ctx context.Context, meter Meter, readings []ingest.Reading) error
}
