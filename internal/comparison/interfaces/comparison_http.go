package interfaces

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"meterprofile/internal/audit"
	compapp "meterprofile/internal/comparison/application"
	comparison "meterprofile/internal/comparison/domain"
	ingest "meterprofile/internal/ingest/domain"
	meters "meterprofile/internal/meters/domain"
	"meterprofile/internal/observability/metrics"
)

const dateLayout = "2006-01-02"

// ComparisonHandler serves comparison queries and exports.
type ComparisonHandler struct {
	service     *compapp.ComparisonService
	auditLogger audit.Logger
	logger      *log.Logger
	now         func() time.Time
}

// NewComparisonHandler constructs a handler.
func NewComparisonHandler(service *compapp.ComparisonService, auditLogger audit.Logger, logger *log.Logger) (*ComparisonHandler, error) {
	if service == nil {
		return nil, errors.New("comparison handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ComparisonHandler{service: service, auditLogger: auditLogger, logger: logger, now: time.Now}, nil
}

// ServeHTTP handles GET /api/v1/comparisons and GET /api/v1/exports/comparison.{csv,xlsx,pdf}.
func (h *ComparisonHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/comparisons":
		h.handleCompare(w, r)
	case "/api/v1/exports/comparison.csv":
		h.handleExport(w, r, "csv")
	case "/api/v1/exports/comparison.xlsx":
		h.handleExport(w, r, "xlsx")
	case "/api/v1/exports/comparison.pdf":
		h.handleExport(w, r, "pdf")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ComparisonHandler) handleCompare(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmp, err := h.service.Compare(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cmp)
}

func (h *ComparisonHandler) handleExport(w http.ResponseWriter, r *http.Request, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport(format, result, time.Since(start))
	}()

	req, err := parseRequest(r)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmp, err := h.service.Compare(r.Context(), req)
	if err != nil {
		result = metrics.ResultError
		respondServiceError(w, err)
		return
	}
	opts := ExportOptions{
		Title:        r.URL.Query().Get("title"),
		IncludeTotal: queryBool(r, "total"),
		GeneratedAt:  h.now().UTC(),
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "csv":
		data, err = BuildComparisonCSV(cmp, opts)
		contentType = "text/csv; charset=utf-8"
	case "xlsx":
		data, err = BuildComparisonXLSX(cmp, opts)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		data, err = BuildComparisonPDF(cmp, opts)
		contentType = "application/pdf"
	}
	if err != nil {
		result = metrics.ResultError
		h.logger.Printf("comparison export: format=%s err=%v", format, err)
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "comparison."+format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, map[string]any{
		"format":   format,
		"mode":     cmp.Mode,
		"meters":   req.MeterIDs,
		"baseline": cmp.BaselineID,
	})
}

func (h *ComparisonHandler) logAudit(r *http.Request, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	entry, ok := audit.FromRequest(r, audit.ActionExport, "comparison", "", "", meta)
	if !ok {
		return
	}
	if err := h.auditLogger.Log(r.Context(), entry); err != nil {
		h.logger.Printf("audit: action=%s err=%v", entry.Action, err)
	}
}

// parseRequest reads meter ids from repeated meter_id params or a comma separated ids param.
func parseRequest(r *http.Request) (compapp.Request, error) {
	query := r.URL.Query()
	var req compapp.Request
	req.MeterIDs = append(req.MeterIDs, query["meter_id"]...)
	if ids := query.Get("ids"); ids != "" {
		req.MeterIDs = append(req.MeterIDs, strings.Split(ids, ",")...)
	}

	mode, err := comparison.ParseMode(query.Get("mode"))
	if err != nil {
		return req, err
	}
	req.Mode = mode
	dayType, err := ingest.ParseDayType(query.Get("day_type"))
	if err != nil {
		return req, err
	}
	req.DayType = dayType
	if req.From, err = parseDate(query.Get("from"), "from"); err != nil {
		return req, err
	}
	if req.To, err = parseDate(query.Get("to"), "to"); err != nil {
		return req, err
	}
	req.BaselineID = strings.TrimSpace(query.Get("baseline"))
	req.Reconcile = queryBool(r, "reconcile")
	return req, nil
}

func parseDate(value, key string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, errors.New(key + " must be YYYY-MM-DD")
	}
	return &parsed, nil
}

func queryBool(r *http.Request, key string) bool {
	value, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && value
}

func respondServiceError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, meters.ErrMeterNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, comparison.ErrMixedRepresentation), errors.Is(err, comparison.ErrMissingProfile):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, comparison.ErrInvalidMode), errors.Is(err, comparison.ErrNoMeters),
		errors.Is(err, comparison.ErrUnknownBaseline), errors.Is(err, comparison.ErrInvalidRange),
		errors.Is(err, compapp.ErrTooManyMeters), errors.Is(err, ingest.ErrZeroProfile):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "comparison error", http.StatusInternalServerError)
	}
}
