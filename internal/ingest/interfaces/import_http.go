package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"meterprofile/internal/audit"
	importapp "meterprofile/internal/ingest/application"
	ingest "meterprofile/internal/ingest/domain"
	"meterprofile/internal/ingest/domain/classify"
	"meterprofile/internal/ingest/infrastructure/xlsx"
	matching "meterprofile/internal/matching/domain"
	meters "meterprofile/internal/meters/domain"
)

const (
	// APIPrefix is the user-facing route prefix guarded by JWT.
	APIPrefix = "/api/v1/imports/"
	// IngestPrefix is the machine upload prefix guarded by request signatures.
	IngestPrefix = "/ingest/v1/imports/"

	multipartMemory = 8 << 20
)

// ImportHandler serves the preview and save steps of meter imports.
type ImportHandler struct {
	service      *importapp.ImportService
	auditLogger  audit.Logger
	logger       *log.Logger
	maxFileBytes int64
	maxFiles     int
}

// NewImportHandler constructs a handler. maxFileBytes bounds each uploaded file.
func NewImportHandler(service *importapp.ImportService, auditLogger audit.Logger, logger *log.Logger, maxFileBytes int64) (*ImportHandler, error) {
	if service == nil {
		return nil, errors.New("import handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	if maxFileBytes <= 0 {
		maxFileBytes = 32 << 20
	}
	return &ImportHandler{service: service, auditLogger: auditLogger, logger: logger, maxFileBytes: maxFileBytes, maxFiles: 20}, nil
}

// ServeHTTP handles POST {prefix}preview and POST {prefix}save under both route prefixes.
func (h *ImportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var rest string
	switch {
	case strings.HasPrefix(r.URL.Path, APIPrefix):
		rest = strings.TrimPrefix(r.URL.Path, APIPrefix)
	case strings.HasPrefix(r.URL.Path, IngestPrefix):
		rest = strings.TrimPrefix(r.URL.Path, IngestPrefix)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch rest {
	case "preview":
		h.handlePreview(w, r)
	case "save":
		h.handleSave(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// fileOptionsPayload is the per-file JSON form of import settings. Column indices are
// zero-based positions in the detected header row.
type fileOptionsPayload struct {
	Separator       string         `json:"separator"`
	Sheet           string         `json:"sheet"`
	Unit            string         `json:"unit"`
	IntervalMinutes int            `json:"interval_minutes"`
	PowerFactor     float64        `json:"power_factor"`
	Voltage         float64        `json:"voltage"`
	Phase           string         `json:"phase"`
	DateOrder       string         `json:"date_order"`
	TimestampColumn *int           `json:"timestamp_column"`
	DateColumn      *int           `json:"date_column"`
	TimeColumn      *int           `json:"time_column"`
	ValueColumns    []int          `json:"value_columns"`
	Roles           map[int]string `json:"roles"`
}

func (h *ImportHandler) handlePreview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileBytes*int64(h.maxFiles)+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		http.Error(w, importapp.ErrNoFiles.Error(), http.StatusBadRequest)
		return
	}
	if len(headers) > h.maxFiles {
		http.Error(w, fmt.Sprintf("at most %d files per batch", h.maxFiles), http.StatusBadRequest)
		return
	}

	defaults, perFile, err := parseFormOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := importapp.PreviewRequest{SiteName: strings.TrimSpace(r.FormValue("site_name"))}
	for i, header := range headers {
		payload := defaults
		if i < len(perFile) {
			payload = mergePayload(defaults, perFile[i])
		}
		options, err := payload.toOptions()
		if err != nil {
			http.Error(w, fmt.Sprintf("%s: %v", header.Filename, err), http.StatusBadRequest)
			return
		}
		file, err := h.readUpload(header, payload.Sheet)
		if err != nil {
			if errors.Is(err, importapp.ErrFileTooLarge) {
				http.Error(w, fmt.Sprintf("%s: %v", header.Filename, err), http.StatusRequestEntityTooLarge)
				return
			}
			// Unreadable workbooks stay in the batch so the report names them.
			h.logger.Printf("import preview: read %s: %v", header.Filename, err)
		}
		req.Files = append(req.Files, importapp.FileInput{File: file, Options: options})
	}

	preview, err := h.service.Preview(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(preview)
	h.logAudit(r, audit.ActionImportPreview, preview.BatchID, preview.SiteName, map[string]any{
		"files":      len(preview.Files),
		"candidates": len(preview.Candidates),
	})
}

func (h *ImportHandler) readUpload(header *multipart.FileHeader, sheet string) (ingest.RawImportFile, error) {
	raw := ingest.RawImportFile{Name: header.Filename}
	if header.Size > h.maxFileBytes {
		return raw, fmt.Errorf("%w: %d bytes", importapp.ErrFileTooLarge, header.Size)
	}
	f, err := header.Open()
	if err != nil {
		return raw, err
	}
	defer f.Close()

	if xlsx.IsWorkbook(header.Filename) {
		file, err := xlsx.ReadImportFile(header.Filename, f, sheet)
		if err != nil {
			// An empty grid makes the sniffer report the file as unreadable.
			return ingest.RawImportFile{Name: header.Filename, Grid: [][]string{}}, err
		}
		return file, nil
	}
	data, err := io.ReadAll(io.LimitReader(f, h.maxFileBytes+1))
	if err != nil {
		return raw, err
	}
	if int64(len(data)) > h.maxFileBytes {
		return raw, fmt.Errorf("%w: more than %d bytes", importapp.ErrFileTooLarge, h.maxFileBytes)
	}
	raw.Text = string(data)
	return raw, nil
}

func (h *ImportHandler) handleSave(w http.ResponseWriter, r *http.Request) {
	var req importapp.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.BatchID) == "" {
		http.Error(w, "batch_id is required", http.StatusBadRequest)
		return
	}
	for i := range req.Items {
		action, err := importapp.ParseSaveAction(string(req.Items[i].Action))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Items[i].Action = action
	}

	summary, err := h.service.Save(r.Context(), req)
	if err != nil && !summary.Cancelled {
		respondServiceError(w, err)
		return
	}
	status := http.StatusOK
	switch {
	case summary.Cancelled:
		status = http.StatusServiceUnavailable
	case len(summary.Failed) > 0:
		status = http.StatusMultiStatus
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(summary)
	h.logAudit(r, audit.ActionImportSave, summary.BatchID, "", map[string]any{
		"created":   summary.Created,
		"updated":   summary.Updated,
		"skipped":   summary.Skipped,
		"failed":    len(summary.Failed),
		"cancelled": summary.Cancelled,
	})
}

func (h *ImportHandler) logAudit(r *http.Request, action, batchID, siteName string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	entry, ok := audit.FromRequest(r, action, "import_batch", batchID, siteName, meta)
	if !ok {
		return
	}
	// Audit writes outlive a cancelled request.
	if err := h.auditLogger.Log(context.WithoutCancel(r.Context()), entry); err != nil {
		h.logger.Printf("audit: action=%s batch=%s err=%v", action, batchID, err)
	}
}

func parseFormOptions(r *http.Request) (fileOptionsPayload, []fileOptionsPayload, error) {
	defaults := fileOptionsPayload{
		Separator: r.FormValue("separator"),
		Sheet:     r.FormValue("sheet"),
		Unit:      r.FormValue("unit"),
		Phase:     r.FormValue("phase"),
		DateOrder: r.FormValue("date_order"),
	}
	var err error
	if defaults.IntervalMinutes, err = formInt(r, "interval_minutes"); err != nil {
		return defaults, nil, err
	}
	if defaults.PowerFactor, err = formFloat(r, "power_factor"); err != nil {
		return defaults, nil, err
	}
	if defaults.Voltage, err = formFloat(r, "voltage"); err != nil {
		return defaults, nil, err
	}
	var perFile []fileOptionsPayload
	if raw := r.FormValue("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &perFile); err != nil {
			return defaults, nil, errors.New("options must be a JSON array of per-file settings")
		}
	}
	return defaults, perFile, nil
}

func mergePayload(base, override fileOptionsPayload) fileOptionsPayload {
	out := override
	if out.Separator == "" {
		out.Separator = base.Separator
	}
	if out.Sheet == "" {
		out.Sheet = base.Sheet
	}
	if out.Unit == "" {
		out.Unit = base.Unit
	}
	if out.IntervalMinutes == 0 {
		out.IntervalMinutes = base.IntervalMinutes
	}
	if out.PowerFactor == 0 {
		out.PowerFactor = base.PowerFactor
	}
	if out.Voltage == 0 {
		out.Voltage = base.Voltage
	}
	if out.Phase == "" {
		out.Phase = base.Phase
	}
	if out.DateOrder == "" {
		out.DateOrder = base.DateOrder
	}
	return out
}

func (p fileOptionsPayload) toOptions() (importapp.FileOptions, error) {
	separator, err := parseSeparator(p.Separator)
	if err != nil {
		return importapp.FileOptions{}, err
	}
	overrides := classify.Overrides{
		TimestampColumn: p.TimestampColumn,
		DateColumn:      p.DateColumn,
		TimeColumn:      p.TimeColumn,
		ValueColumns:    p.ValueColumns,
	}
	if len(p.Roles) > 0 {
		overrides.Roles = make(map[int]classify.Role, len(p.Roles))
		for index, value := range p.Roles {
			role := classify.Role(strings.ToLower(strings.TrimSpace(value)))
			switch role {
			case classify.RoleDate, classify.RoleTime, classify.RoleValue, classify.RoleIgnore:
			default:
				return importapp.FileOptions{}, fmt.Errorf("unknown column role %q", value)
			}
			overrides.Roles[index] = role
		}
	}
	return importapp.FileOptions{
		Separator:       separator,
		Overrides:       overrides,
		Unit:            p.Unit,
		IntervalMinutes: p.IntervalMinutes,
		PowerFactor:     p.PowerFactor,
		Voltage:         p.Voltage,
		Phase:           p.Phase,
		DateOrder:       p.DateOrder,
	}, nil
}

func parseSeparator(value string) (rune, error) {
	switch strings.ToLower(value) {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	if utf8.RuneCountInString(value) != 1 {
		return 0, fmt.Errorf("separator must be a single character, got %q", value)
	}
	sep, _ := utf8.DecodeRuneInString(value)
	return sep, nil
}

func formInt(r *http.Request, key string) (int, error) {
	value := strings.TrimSpace(r.FormValue(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return parsed, nil
}

func formFloat(r *http.Request, key string) (float64, error) {
	value := strings.TrimSpace(r.FormValue(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		return 0, fmt.Errorf("%s must be a non-negative number", key)
	}
	return parsed, nil
}

func respondServiceError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, importapp.ErrPreviewNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, importapp.ErrNoCandidates), errors.Is(err, importapp.ErrNoFiles),
		errors.Is(err, ingest.ErrFormat), errors.Is(err, ingest.ErrNoValueColumn):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, importapp.ErrFileTooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, matching.ErrAlreadyClaimed), errors.Is(err, meters.ErrMeterNotFound):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
	default:
		http.Error(w, "import error", http.StatusInternalServerError)
	}
}
