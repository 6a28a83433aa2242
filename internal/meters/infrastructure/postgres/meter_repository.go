package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	ingest "meterprofile/internal/ingest/domain"
	meters "meterprofile/internal/meters/domain"
)

const (
	defaultMetersTable   = "meters"
	defaultReadingsTable = "meter_readings"
	readingsBatchSize    = 500
)

// DBTX is the subset of *sql.DB and *sql.Tx the repository needs.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is a DBTX that can open transactions, such as *sql.DB.
type DB interface {
	DBTX
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// MeterRepository is a Postgres implementation for meter records and readings.
type MeterRepository struct {
	db            DB
	table         string
	readingsTable string
}

// NewMeterRepository constructs a repository.
func NewMeterRepository(db DB, opts ...MeterOption) *MeterRepository {
	repo := &MeterRepository{db: db, table: defaultMetersTable, readingsTable: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// MeterOption configures the repository.
type MeterOption func(*MeterRepository)

// WithMeterTable overrides the default meters table name.
func WithMeterTable(table string) MeterOption {
	return func(repo *MeterRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// WithReadingsTable overrides the default readings table name.
func WithReadingsTable(table string) MeterOption {
	return func(repo *MeterRepository) {
		if table != "" {
			repo.readingsTable = table
		}
	}
}

const meterColumns = `id, site_name, shop_name, shop_number, label, color, floor_area, category, file_name, profile, created_at, updated_at`

// ListSummaries returns every meter ordered by site and shop name.
func (r *MeterRepository) ListSummaries(ctx context.Context) ([]meters.Summary, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("meter repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY site_name, shop_name, id`, meterColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []meters.Summary
	for rows.Next() {
		meter, err := scanMeter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, meter.Summary())
	}
	return out, rows.Err()
}

// Get loads a meter by id.
func (r *MeterRepository) Get(ctx context.Context, id string) (*meters.Meter, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("meter repo: nil db")
	}
	if id == "" {
		return nil, meters.ErrEmptyID
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, meterColumns, r.table)

	meter, err := scanMeter(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, meters.ErrMeterNotFound
		}
		return nil, err
	}
	return &meter, nil
}

// Create inserts a new meter and its readings in one transaction.
func (r *MeterRepository) Create(ctx context.Context, meter *meters.Meter, readings []ingest.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("meter repo: nil db")
	}
	if meter == nil {
		return errors.New("meter repo: nil meter")
	}
	if err := meter.Validate(); err != nil {
		return err
	}
	profile, err := encodeProfile(meter.Profile)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	site_name,
	shop_name,
	shop_number,
	label,
	color,
	floor_area,
	category,
	file_name,
	profile,
	representation
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(
		ctx,
		query,
		meter.ID,
		meter.SiteName,
		meter.ShopName,
		meter.ShopNumber,
		meter.Label,
		meter.Color,
		nullFloat(meter.FloorArea),
		meter.Category,
		meter.FileName,
		profile,
		representation(meter.Profile),
	)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := r.upsertReadings(ctx, tx, meter.ID, readings); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	now := time.Now().UTC()
	meter.CreatedAt, meter.UpdatedAt = now, now
	return nil
}

// UpdateProfile replaces the profile of an existing meter and upserts its readings in
// one transaction.
func (r *MeterRepository) UpdateProfile(ctx context.Context, id string, profile ingest.Profile, fileName string, readings []ingest.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("meter repo: nil db")
	}
	if id == "" {
		return meters.ErrEmptyID
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	payload, err := encodeProfile(&profile)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
UPDATE %s
SET profile = $2,
	representation = $3,
	file_name = COALESCE(NULLIF($4, ''), file_name),
	updated_at = NOW()
WHERE id = $1`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, query, id, payload, string(profile.Representation), fileName)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		_ = tx.Rollback()
		return meters.ErrMeterNotFound
	}
	if err := r.upsertReadings(ctx, tx, id, readings); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// LoadSeries returns the selected meters with readings inside the window, in the
// order of ids. Unknown ids are skipped.
func (r *MeterRepository) LoadSeries(ctx context.Context, ids []string, window meters.Window) ([]meters.Series, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("meter repo: nil db")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = ANY($1)`, meterColumns, r.table)
	rows, err := r.db.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]meters.Meter, len(ids))
	for rows.Next() {
		meter, err := scanMeter(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		byID[meter.ID] = meter
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	readings, err := r.loadReadings(ctx, ids, window)
	if err != nil {
		return nil, err
	}
	out := make([]meters.Series, 0, len(byID))
	for _, id := range ids {
		meter, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, meters.Series{Meter: meter, Readings: readings[id]})
	}
	return out, nil
}

func (r *MeterRepository) loadReadings(ctx context.Context, ids []string, window meters.Window) (map[string][]ingest.Reading, error) {
	args := []any{ids}
	conditions := []string{"meter_id = ANY($1)"}
	if !window.From.IsZero() {
		args = append(args, window.From.UTC())
		conditions = append(conditions, fmt.Sprintf("reading_at >= $%d", len(args)))
	}
	if !window.To.IsZero() {
		args = append(args, window.To.UTC())
		conditions = append(conditions, fmt.Sprintf("reading_at < $%d", len(args)))
	}
	query := fmt.Sprintf(`
SELECT meter_id, reading_at, kw
FROM %s
WHERE %s
ORDER BY meter_id, reading_at`, r.readingsTable, strings.Join(conditions, " AND "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]ingest.Reading, len(ids))
	for rows.Next() {
		var (
			meterID string
			reading ingest.Reading
		)
		if err := rows.Scan(&meterID, &reading.At, &reading.KW); err != nil {
			return nil, err
		}
		reading.At = reading.At.UTC()
		out[meterID] = append(out[meterID], reading)
	}
	return out, rows.Err()
}

func (r *MeterRepository) upsertReadings(ctx context.Context, db DBTX, meterID string, readings []ingest.Reading) error {
	for start := 0; start < len(readings); start += readingsBatchSize {
		end := start + readingsBatchSize
		if end > len(readings) {
			end = len(readings)
		}
		batch := readings[start:end]
		values := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*3)
		for i, reading := range batch {
			values = append(values, fmt.Sprintf("($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3))
			args = append(args, meterID, reading.At.UTC(), reading.KW)
		}
		query := fmt.Sprintf(`
INSERT INTO %s (meter_id, reading_at, kw)
VALUES %s
ON CONFLICT (meter_id, reading_at)
DO UPDATE SET kw = EXCLUDED.kw`, r.readingsTable, strings.Join(values, ", "))
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("meter repo: readings batch at %d: %w", start, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeter(row rowScanner) (meters.Meter, error) {
	var (
		meter     meters.Meter
		floorArea sql.NullFloat64
		profile   []byte
	)
	if err := row.Scan(
		&meter.ID,
		&meter.SiteName,
		&meter.ShopName,
		&meter.ShopNumber,
		&meter.Label,
		&meter.Color,
		&floorArea,
		&meter.Category,
		&meter.FileName,
		&profile,
		&meter.CreatedAt,
		&meter.UpdatedAt,
	); err != nil {
		return meters.Meter{}, err
	}
	if floorArea.Valid {
		area := floorArea.Float64
		meter.FloorArea = &area
	}
	if len(profile) > 0 {
		var decoded ingest.Profile
		if err := json.Unmarshal(profile, &decoded); err != nil {
			return meters.Meter{}, fmt.Errorf("meter repo: decode profile of %s: %w", meter.ID, err)
		}
		meter.Profile = &decoded
	}
	meter.CreatedAt = meter.CreatedAt.UTC()
	meter.UpdatedAt = meter.UpdatedAt.UTC()
	return meter, nil
}

func encodeProfile(profile *ingest.Profile) ([]byte, error) {
	if profile == nil {
		return nil, nil
	}
	payload, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("meter repo: encode profile: %w", err)
	}
	return payload, nil
}

func representation(profile *ingest.Profile) string {
	if profile == nil {
		return ""
	}
	return string(profile.Representation)
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}
