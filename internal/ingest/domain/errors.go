package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned when no usable header or columns can be detected.
	ErrFormat = errors.New("ingest: no usable header or columns")
	// ErrColumnAmbiguity is returned when no date-like column exists and no override was supplied.
	ErrColumnAmbiguity = errors.New("ingest: no date or time column detected")
	// ErrNoValueColumn is returned when no value column can be selected.
	ErrNoValueColumn = errors.New("ingest: no value column detected")
	// ErrConversion is returned when a unit conversion lacks required parameters.
	ErrConversion = errors.New("ingest: unit conversion")
	// ErrNoUsableData is returned when zero rows parse successfully.
	ErrNoUsableData = errors.New("ingest: no usable data")
	// ErrPersistence marks a failed save of a single meter.
	ErrPersistence = errors.New("ingest: persistence")
	// ErrInvalidProfile is returned when a profile breaks its invariants.
	ErrInvalidProfile = errors.New("ingest: invalid profile")
	// ErrZeroProfile is returned when a zero-total profile is asked to normalize to percentages.
	ErrZeroProfile = errors.New("ingest: profile total is zero")
)

// PersistenceError reports one meter whose save failed.
type PersistenceError struct {
	MeterID string
	Label   string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.MeterID != "" {
		return fmt.Sprintf("ingest: save meter %s (%s): %v", e.MeterID, e.Label, e.Err)
	}
	return fmt.Sprintf("ingest: save %s: %v", e.Label, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// WarningKind classifies non-fatal findings surfaced to the caller.
type WarningKind string

const (
	// WarningEmptyResult means every parsed value was zero.
	WarningEmptyResult WarningKind = "empty_result"
	// WarningWeekendApproximated means weekend hours were copied from weekday averages.
	WarningWeekendApproximated WarningKind = "weekend_approximated"
	// WarningRowsDropped means some rows were skipped.
	WarningRowsDropped WarningKind = "rows_dropped"
)

// Warning is a non-fatal message attached to a result.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}
