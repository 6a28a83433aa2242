package comparison

import "errors"

var (
	// ErrInvalidMode is returned when the aggregation mode is unsupported.
	ErrInvalidMode = errors.New("comparison: invalid mode")
	// ErrNoMeters is returned when a comparison has no meters.
	ErrNoMeters = errors.New("comparison: no meters selected")
	// ErrUnknownBaseline is returned when the baseline meter is not part of the selection.
	ErrUnknownBaseline = errors.New("comparison: baseline meter not selected")
	// ErrInvalidRange is returned when the date range is reversed.
	ErrInvalidRange = errors.New("comparison: from is after to")
	// ErrMixedRepresentation is returned when percentage and raw kW profiles are compared
	// without reconciliation.
	ErrMixedRepresentation = errors.New("comparison: mixed percentage and raw kW profiles")
	// ErrMissingProfile is returned when a profile comparison includes a meter without a profile.
	ErrMissingProfile = errors.New("comparison: meter has no profile")
)
