package application

import "errors"

var (
	// ErrNoFiles is returned for a preview without files.
	ErrNoFiles = errors.New("import: no files")
	// ErrNoCandidates is returned when no file in a batch produced a profile.
	ErrNoCandidates = errors.New("import: no file produced a profile")
	// ErrPreviewNotFound is returned when a batch id is unknown or expired.
	ErrPreviewNotFound = errors.New("import: preview not found")
	// ErrUnknownCandidate is returned for a save item pointing outside the batch.
	ErrUnknownCandidate = errors.New("import: unknown candidate")
	// ErrInvalidAction is returned for an unsupported save action.
	ErrInvalidAction = errors.New("import: invalid save action")
	// ErrFileTooLarge is returned when an upload exceeds the configured limit.
	ErrFileTooLarge = errors.New("import: file too large")
)
