package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ingest "meterprofile/internal/ingest/domain"
	matching "meterprofile/internal/matching/domain"
	meters "meterprofile/internal/meters/domain"
	"meterprofile/internal/observability/metrics"
)

// SaveAction is what happens to one candidate on save.
type SaveAction string

const (
	ActionCreate SaveAction = "create"
	ActionUpdate SaveAction = "update"
	ActionSkip   SaveAction = "skip"
)

// ParseSaveAction maps a request value to a SaveAction.
func ParseSaveAction(value string) (SaveAction, error) {
	switch action := SaveAction(strings.ToLower(strings.TrimSpace(value))); action {
	case ActionCreate, ActionUpdate, ActionSkip:
		return action, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, value)
	}
}

// SaveItem is the caller's decision for one preview candidate.
type SaveItem struct {
	Candidate int        `json:"candidate"`
	Action    SaveAction `json:"action"`
	// MeterID is the record to update; required for ActionUpdate.
	MeterID string `json:"meter_id,omitempty"`
	// Identity replaces the proposed identity of a created meter.
	Identity *meters.Identity `json:"identity,omitempty"`
	// Representation stores the profile as raw kW (default) or percentages.
	Representation ingest.Representation `json:"representation,omitempty"`
}

// SaveRequest commits a preview batch. Empty Items applies DefaultSelection.
type SaveRequest struct {
	BatchID string     `json:"batch_id"`
	Items   []SaveItem `json:"items"`
}

// SavedMeter reports one persisted candidate.
type SavedMeter struct {
	Candidate int        `json:"candidate"`
	MeterID   string     `json:"meter_id"`
	Action    SaveAction `json:"action"`
	Label     string     `json:"label"`
}

// SaveFailure is the serializable form of a PersistenceError.
type SaveFailure struct {
	MeterID string `json:"meter_id,omitempty"`
	Label   string `json:"label"`
	Error   string `json:"error"`
}

// SaveSummary counts the outcome of a save. Failed items never stop the others.
type SaveSummary struct {
	BatchID   string                     `json:"batch_id"`
	Created   int                        `json:"created"`
	Updated   int                        `json:"updated"`
	Skipped   int                        `json:"skipped"`
	Failed    []*ingest.PersistenceError `json:"-"`
	Failures  []SaveFailure              `json:"failures"`
	Meters    []SavedMeter               `json:"meters"`
	Cancelled bool                       `json:"cancelled"`
}

// Err joins every item failure, or returns nil.
func (s SaveSummary) Err() error {
	if len(s.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(s.Failed))
	for i, failure := range s.Failed {
		errs[i] = failure
	}
	return errors.Join(errs...)
}

func (s *SaveSummary) fail(meterID, label string, err error) {
	failure := &ingest.PersistenceError{MeterID: meterID, Label: label, Err: err}
	s.Failed = append(s.Failed, failure)
	s.Failures = append(s.Failures, SaveFailure{MeterID: meterID, Label: label, Error: err.Error()})
}

// DefaultSelection updates matched candidates, creates new ones and skips duplicates
// and deselected candidates.
func DefaultSelection(preview *Preview) []SaveItem {
	items := make([]SaveItem, 0, len(preview.Candidates))
	for _, candidate := range preview.Candidates {
		item := SaveItem{Candidate: candidate.Index, Action: ActionSkip}
		switch {
		case !candidate.Selected || candidate.Match.Type == matching.MatchDuplicate:
		case candidate.Match.Matched():
			item.Action = ActionUpdate
			item.MeterID = candidate.Match.CandidateID
		default:
			item.Action = ActionCreate
		}
		items = append(items, item)
	}
	return items
}

// Save persists the chosen candidates of a preview one meter at a time. Item failures
// are collected in the summary. On cancellation the remaining items are counted as
// skipped and the context error is returned with the partial summary.
func (s *ImportService) Save(ctx context.Context, req SaveRequest) (SaveSummary, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	summary := SaveSummary{BatchID: req.BatchID, Failures: []SaveFailure{}, Meters: []SavedMeter{}}
	defer func() {
		metrics.ObserveSave(result, time.Since(start))
		metrics.AddSaveItems("created", summary.Created)
		metrics.AddSaveItems("updated", summary.Updated)
		metrics.AddSaveItems("skipped", summary.Skipped)
		metrics.AddSaveItems("failed", len(summary.Failed))
	}()

	preview, err := s.previews.Get(ctx, req.BatchID)
	if err != nil {
		result = metrics.ResultError
		return summary, err
	}
	items := req.Items
	if len(items) == 0 {
		items = DefaultSelection(preview)
	}

	session := matching.NewSession()
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			summary.Skipped += len(items) - i
			summary.Cancelled = true
			result = metrics.ResultError
			s.logger.Printf("import save: batch=%s cancelled remaining=%d", req.BatchID, len(items)-i)
			return summary, err
		}
		if item.Candidate < 0 || item.Candidate >= len(preview.Candidates) {
			summary.fail(item.MeterID, fmt.Sprintf("candidate %d", item.Candidate), ErrUnknownCandidate)
			continue
		}
		candidate := preview.Candidates[item.Candidate]
		switch item.Action {
		case ActionSkip:
			summary.Skipped++
		case ActionCreate:
			s.create(ctx, preview, candidate, item, &summary)
		case ActionUpdate:
			if item.MeterID == "" {
				summary.fail("", candidate.Label, meters.ErrEmptyID)
				continue
			}
			if err := session.Claim(item.MeterID); err != nil {
				summary.fail(item.MeterID, candidate.Label, err)
				continue
			}
			s.update(ctx, candidate, item, &summary)
		default:
			summary.fail(item.MeterID, candidate.Label, fmt.Errorf("%w: %q", ErrInvalidAction, item.Action))
		}
	}

	if len(summary.Failed) > 0 {
		result = metrics.ResultPartial
	} else if err := s.previews.Delete(ctx, req.BatchID); err != nil {
		s.logger.Printf("import save: batch=%s drop preview: %v", req.BatchID, err)
	}
	s.logger.Printf("import save: batch=%s created=%d updated=%d skipped=%d failed=%d",
		req.BatchID, summary.Created, summary.Updated, summary.Skipped, len(summary.Failed))
	return summary, nil
}

func (s *ImportService) create(ctx context.Context, preview *Preview, candidate Candidate, item SaveItem, summary *SaveSummary) {
	profile, err := storedProfile(candidate.Result.Profile, item.Representation)
	if err != nil {
		summary.fail("", candidate.Label, err)
		return
	}
	identity := meters.Identity{ShopName: displayLabel(candidate)}
	if item.Identity != nil {
		identity = *item.Identity
	}
	if identity.SiteName == "" {
		identity.SiteName = preview.SiteName
	}
	if identity.FileName == "" {
		identity.FileName = candidate.FileName
	}
	meter := &meters.Meter{ID: meters.NewMeterID(), Identity: identity, Profile: &profile}
	if err := s.repo.Create(ctx, meter, candidate.Result.Readings); err != nil {
		summary.fail(meter.ID, candidate.Label, err)
		return
	}
	summary.Created++
	summary.Meters = append(summary.Meters, SavedMeter{Candidate: candidate.Index, MeterID: meter.ID, Action: ActionCreate, Label: candidate.Label})
	s.mirrorReadings(ctx, *meter, candidate.Result.Readings)
}

func (s *ImportService) update(ctx context.Context, candidate Candidate, item SaveItem, summary *SaveSummary) {
	profile, err := storedProfile(candidate.Result.Profile, item.Representation)
	if err != nil {
		summary.fail(item.MeterID, candidate.Label, err)
		return
	}
	if err := s.repo.UpdateProfile(ctx, item.MeterID, profile, candidate.FileName, candidate.Result.Readings); err != nil {
		summary.fail(item.MeterID, candidate.Label, err)
		return
	}
	summary.Updated++
	summary.Meters = append(summary.Meters, SavedMeter{Candidate: candidate.Index, MeterID: item.MeterID, Action: ActionUpdate, Label: candidate.Label})
	if s.mirror == nil {
		return
	}
	meter, err := s.repo.Get(ctx, item.MeterID)
	if err != nil {
		s.logger.Printf("import save: mirror lookup meter=%s: %v", item.MeterID, err)
		return
	}
	s.mirrorReadings(ctx, *meter, candidate.Result.Readings)
}

// mirrorReadings forwards readings after a successful save; failures are logged only.
func (s *ImportService) mirrorReadings(ctx context.Context, meter meters.Meter, readings []ingest.Reading) {
	if s.mirror == nil || len(readings) == 0 {
		return
	}
	if err := s.mirror.MirrorReadings(ctx, meter, readings); err != nil {
		metrics.IncMirror(metrics.ResultError)
		s.logger.Printf("import save: mirror meter=%s: %v", meter.ID, err)
		return
	}
	metrics.IncMirror(metrics.ResultSuccess)
}

func storedProfile(profile ingest.Profile, representation ingest.Representation) (ingest.Profile, error) {
	switch representation {
	case "", ingest.RepresentationRawKW:
		return profile, nil
	case ingest.RepresentationPercentage:
		return profile.ToPercentage()
	default:
		return ingest.Profile{}, fmt.Errorf("%w: representation %q", ingest.ErrInvalidProfile, representation)
	}
}
