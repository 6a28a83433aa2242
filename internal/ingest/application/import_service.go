package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	ingest "meterprofile/internal/ingest/domain"
	"meterprofile/internal/ingest/domain/classify"
	"meterprofile/internal/ingest/domain/normalize"
	"meterprofile/internal/ingest/domain/sniff"
	"meterprofile/internal/ingest/domain/units"
	matching "meterprofile/internal/matching/domain"
	meters "meterprofile/internal/meters/domain"
	"meterprofile/internal/observability/metrics"
)

// FileOptions are caller-supplied settings for one uploaded file.
type FileOptions struct {
	Separator       rune               `json:"-"`
	Overrides       classify.Overrides `json:"-"`
	Unit            string             `json:"unit,omitempty"`
	IntervalMinutes int                `json:"interval_minutes,omitempty"`
	PowerFactor     float64            `json:"power_factor,omitempty"`
	Voltage         float64            `json:"voltage,omitempty"`
	Phase           string             `json:"phase,omitempty"`
	DateOrder       string             `json:"date_order,omitempty"`
}

// FileInput is one file of a preview batch.
type FileInput struct {
	File    ingest.RawImportFile
	Options FileOptions
}

// PreviewRequest is a batch of files uploaded for one site.
type PreviewRequest struct {
	SiteName string
	Files    []FileInput
}

// Candidate is one normalized value column proposed for saving.
type Candidate struct {
	Index     int                `json:"index"`
	FileIndex int                `json:"file_index"`
	FileName  string             `json:"file_name"`
	Label     string             `json:"label"`
	LabelKind matching.LabelKind `json:"label_kind"`
	Result    normalize.Result   `json:"result"`
	Match     matching.Result    `json:"match"`
	Selected  bool               `json:"selected"`
}

// FileReport is the per-file outcome of a preview.
type FileReport struct {
	Name             string                   `json:"name"`
	Layout           ingest.Layout            `json:"layout,omitempty"`
	Separator        string                   `json:"separator,omitempty"`
	HeaderRowIndex   int                      `json:"header_row_index"`
	DirectiveSkipped bool                     `json:"directive_skipped"`
	Columns          []classify.ColumnInfo    `json:"columns,omitempty"`
	Ignored          []classify.IgnoredColumn `json:"ignored,omitempty"`
	Selection        *classify.Selection      `json:"selection,omitempty"`
	Candidates       []int                    `json:"candidates"`
	Warnings         []ingest.Warning         `json:"warnings,omitempty"`
	Error            string                   `json:"error,omitempty"`
}

// Preview is the unsaved result of an import batch.
type Preview struct {
	BatchID    string       `json:"batch_id"`
	SiteName   string       `json:"site_name"`
	CreatedAt  time.Time    `json:"created_at"`
	Files      []FileReport `json:"files"`
	Candidates []Candidate  `json:"candidates"`
	Claimed    []string     `json:"claimed"`
}

// PreviewStore keeps previews between the preview and save steps.
type PreviewStore interface {
	Put(ctx context.Context, preview *Preview) error
	Get(ctx context.Context, batchID string) (*Preview, error)
	Delete(ctx context.Context, batchID string) error
}

// ImportService runs the preview and save steps of a meter import.
type ImportService struct {
	repo     meters.Repository
	previews PreviewStore
	mirror   meters.ReadingMirror
	matcher  *matching.Matcher
	cfg      Config
	logger   *log.Logger
	now      func() time.Time
}

// ServiceOption configures an ImportService.
type ServiceOption func(*ImportService)

// WithReadingMirror forwards saved readings to a mirror.
func WithReadingMirror(mirror meters.ReadingMirror) ServiceOption {
	return func(s *ImportService) {
		s.mirror = mirror
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *ImportService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewImportService constructs a service.
func NewImportService(repo meters.Repository, previews PreviewStore, cfg Config, logger *log.Logger, opts ...ServiceOption) (*ImportService, error) {
	if repo == nil {
		return nil, errors.New("import service: nil repo")
	}
	if previews == nil {
		return nil, errors.New("import service: nil preview store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	matcher, err := cfg.Matcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &ImportService{
		repo:     repo,
		previews: previews,
		matcher:  matcher,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Preview parses, normalizes, dedupes and matches a batch of files. Nothing is
// persisted besides the preview itself. The batch fails only when no file produced a
// candidate.
func (s *ImportService) Preview(ctx context.Context, req PreviewRequest) (*Preview, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObservePreview(result, time.Since(start))
	}()

	if len(req.Files) == 0 {
		result = metrics.ResultError
		return nil, ErrNoFiles
	}
	summaries, err := s.repo.ListSummaries(ctx)
	if err != nil {
		result = metrics.ResultError
		return nil, fmt.Errorf("import preview: list meters: %w", err)
	}

	preview := &Preview{
		BatchID:   uuid.NewString(),
		SiteName:  strings.TrimSpace(req.SiteName),
		CreatedAt: s.now().UTC(),
	}
	var fileErrs []error
	for i, input := range req.Files {
		report, results, kind, err := s.previewFile(ctx, preview.SiteName, input)
		if ctxErr := ctx.Err(); ctxErr != nil {
			result = metrics.ResultError
			return nil, ctxErr
		}
		report.Candidates = []int{}
		if err != nil {
			report.Error = err.Error()
			fileErrs = append(fileErrs, fmt.Errorf("%s: %w", input.File.Name, err))
			metrics.IncImportFile(string(report.Layout), metrics.ResultError)
			s.logger.Printf("import preview: batch=%s file=%s err=%v", preview.BatchID, input.File.Name, err)
		} else {
			metrics.IncImportFile(string(report.Layout), metrics.ResultSuccess)
		}
		for _, res := range results {
			label := input.File.Name
			if kind == matching.LabelHeader {
				label = res.Header
			}
			for reason, count := range res.DroppedByReason {
				metrics.AddRowsDropped(reason, count)
			}
			report.Candidates = append(report.Candidates, len(preview.Candidates))
			preview.Candidates = append(preview.Candidates, Candidate{
				Index:     len(preview.Candidates),
				FileIndex: i,
				FileName:  input.File.Name,
				Label:     label,
				LabelKind: kind,
				Result:    res,
				Selected:  true,
			})
		}
		preview.Files = append(preview.Files, report)
	}
	if len(preview.Candidates) == 0 {
		result = metrics.ResultError
		return nil, errors.Join(append([]error{ErrNoCandidates}, fileErrs...)...)
	}

	if err := s.matchCandidates(ctx, preview, candidatePool(summaries, preview.SiteName)); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := s.previews.Put(ctx, preview); err != nil {
		result = metrics.ResultError
		return nil, fmt.Errorf("import preview: store: %w", err)
	}
	if len(fileErrs) > 0 {
		result = metrics.ResultPartial
	}
	s.logger.Printf("import preview: batch=%s site=%q files=%d candidates=%d failed_files=%d",
		preview.BatchID, preview.SiteName, len(req.Files), len(preview.Candidates), len(fileErrs))
	return preview, nil
}

// matchCandidates flags duplicates first, then matches the remaining candidates in
// batch order against one claim session.
func (s *ImportService) matchCandidates(ctx context.Context, preview *Preview, pool []matching.Candidate) error {
	profiles := make([]ingest.Profile, len(preview.Candidates))
	for i := range preview.Candidates {
		profiles[i] = preview.Candidates[i].Result.Profile
	}
	duplicateOf := matching.DetectDuplicates(profiles, s.cfg.DuplicateTolerance)

	session := matching.NewSession()
	for i := range preview.Candidates {
		candidate := &preview.Candidates[i]
		if original := duplicateOf[i]; original != matching.NotDuplicate {
			candidate.Match = matching.DuplicateMatch(original, preview.Candidates[original].Label)
			candidate.Selected = false
			metrics.IncMatch(string(candidate.Match.Type))
			continue
		}
		match, err := s.matcher.Match(ctx, candidate.Label, candidate.LabelKind, pool, session)
		if err != nil {
			return err
		}
		candidate.Match = match
		metrics.IncMatch(string(match.Type))
	}
	preview.Claimed = session.Claimed()
	return nil
}

func (s *ImportService) previewFile(ctx context.Context, site string, input FileInput) (FileReport, []normalize.Result, matching.LabelKind, error) {
	report := FileReport{Name: input.File.Name}
	if size := int64(len(input.File.Text)); s.cfg.MaxFileBytes > 0 && size > s.cfg.MaxFileBytes {
		return report, nil, "", fmt.Errorf("%w: %d bytes", ErrFileTooLarge, size)
	}

	sniffOpts := s.cfg.SniffOptions(input.Options.Separator)
	var table ingest.ParsedTable
	if input.File.IsGrid() {
		table = sniff.SniffGrid(input.File.Grid, sniffOpts)
	} else {
		var err error
		table, err = sniff.SniffTextContext(ctx, input.File.Text, sniffOpts)
		if err != nil {
			return report, nil, "", err
		}
	}
	report.Layout = table.Layout
	report.HeaderRowIndex = table.HeaderRowIndex
	report.DirectiveSkipped = table.DirectiveSkipped
	if table.Separator != 0 {
		report.Separator = string(table.Separator)
	}
	if table.Empty() {
		return report, nil, "", fmt.Errorf("%w: fewer than two usable lines", ingest.ErrFormat)
	}

	classification := classify.Classify(table, s.cfg.ClassifyOptions())
	report.Columns = classification.Columns
	report.Ignored = classification.Ignored
	sel, err := classify.Resolve(classification, table.Layout, input.Options.Overrides)
	if err != nil {
		return report, nil, "", err
	}
	report.Selection = &sel

	opts, err := s.normalizeOptions(site, input)
	if err != nil {
		return report, nil, "", err
	}

	if sel.Layout == ingest.LayoutPivot {
		results, err := normalize.NormalizePivot(ctx, table, sel, opts)
		if err != nil {
			return report, nil, "", err
		}
		return report, results, matching.LabelHeader, nil
	}

	kind := matching.LabelFilename
	if len(sel.ValueColumns) > 1 {
		kind = matching.LabelHeader
	}
	results := make([]normalize.Result, 0, len(sel.ValueColumns))
	var columnErrs []error
	for _, column := range sel.ValueColumns {
		single := sel
		single.ValueColumns = []int{column}
		res, err := normalize.Normalize(ctx, table, single, opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, nil, "", ctxErr
			}
			columnErrs = append(columnErrs, err)
			report.Warnings = append(report.Warnings, ingest.Warning{
				Kind:    ingest.WarningRowsDropped,
				Message: fmt.Sprintf("column %q skipped: %v", table.Header(column), err),
			})
			continue
		}
		results = append(results, res)
	}
	if len(results) == 0 {
		return report, nil, "", errors.Join(columnErrs...)
	}
	return report, results, kind, nil
}

func (s *ImportService) normalizeOptions(site string, input FileInput) (normalize.Options, error) {
	opts, err := s.cfg.NormalizeOptions(site)
	if err != nil {
		return opts, err
	}
	fo := input.Options
	if fo.Unit != "" {
		unit, err := units.ParseUnit(fo.Unit)
		if err != nil {
			return opts, err
		}
		opts.Unit = unit
	}
	if fo.Phase != "" {
		phase, err := units.ParsePhase(fo.Phase)
		if err != nil {
			return opts, err
		}
		opts.Phase = phase
	}
	if fo.IntervalMinutes > 0 {
		opts.IntervalMinutes = fo.IntervalMinutes
	}
	if fo.PowerFactor > 0 {
		opts.PowerFactor = fo.PowerFactor
	}
	if fo.Voltage > 0 {
		opts.Voltage = fo.Voltage
	}
	if fo.DateOrder != "" {
		opts.DateOrder = normalize.ParseDateOrder(fo.DateOrder)
	}
	opts.SourceFileName = input.File.Name
	return opts, nil
}

// candidatePool turns stored meters into matching candidates, restricted to the site
// when one is given.
func candidatePool(summaries []meters.Summary, site string) []matching.Candidate {
	pool := make([]matching.Candidate, 0, len(summaries))
	for _, summary := range summaries {
		if site != "" && !strings.EqualFold(strings.TrimSpace(summary.SiteName), site) {
			continue
		}
		pool = append(pool, matching.Candidate{
			ID:         summary.ID,
			SiteName:   summary.SiteName,
			ShopName:   summary.ShopName,
			ShopNumber: summary.ShopNumber,
			Label:      summary.Label,
			FileName:   summary.FileName,
		})
	}
	return pool
}

// displayLabel is the shop name proposed for a new meter.
func displayLabel(candidate Candidate) string {
	if candidate.LabelKind == matching.LabelHeader {
		return strings.TrimSpace(candidate.Label)
	}
	name := filepath.Base(candidate.Label)
	return strings.TrimSpace(strings.TrimSuffix(name, filepath.Ext(name)))
}
