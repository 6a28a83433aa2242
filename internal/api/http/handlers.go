package apihttp

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	meters "meterprofile/internal/meters/domain"
)

const timeLayout = time.RFC3339

// MetersHandler serves meter record queries.
type MetersHandler struct {
	repo meters.Repository
}

// NewMetersHandler constructs a MetersHandler.
func NewMetersHandler(repo meters.Repository) *MetersHandler {
	return &MetersHandler{repo: repo}
}

// ServeHTTP handles GET /api/v1/meters, GET /api/v1/meters/{id},
// GET /api/v1/meters/{id}/readings and GET /api/v1/meters/{id}/readings.csv.
func (h *MetersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.repo == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == "/api/v1/meters" {
		h.handleList(w, r)
		return
	}
	rest := strings.TrimPrefix(path, "/api/v1/meters/")
	if rest == path || rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1:
		h.handleGet(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "readings":
		h.handleReadings(w, r, parts[0], false)
	case len(parts) == 2 && parts[1] == "readings.csv":
		h.handleReadings(w, r, parts[0], true)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *MetersHandler) handleList(w http.ResponseWriter, r *http.Request) {
	site := strings.TrimSpace(r.URL.Query().Get("site_name"))
	search := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))

	summaries, err := h.repo.ListSummaries(r.Context())
	if err != nil {
		http.Error(w, "query meters error", http.StatusInternalServerError)
		return
	}
	out := make([]meters.Summary, 0, len(summaries))
	for _, s := range summaries {
		if site != "" && !strings.EqualFold(s.SiteName, site) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(s.ShopName+" "+s.ShopNumber+" "+s.Label), search) {
			continue
		}
		out = append(out, s)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *MetersHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	meter, err := h.repo.Get(r.Context(), id)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(meter)
}

func (h *MetersHandler) handleReadings(w http.ResponseWriter, r *http.Request, id string, asCSV bool) {
	var window meters.Window
	var err error
	if window.From, err = parseOptionalTime(r, "from"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if window.To, err = parseOptionalTime(r, "to"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !window.From.IsZero() && !window.To.IsZero() && !window.To.After(window.From) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	series, err := h.repo.LoadSeries(r.Context(), []string{id}, window)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	if len(series) == 0 {
		http.Error(w, meters.ErrMeterNotFound.Error(), http.StatusNotFound)
		return
	}

	if !asCSV {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(series[0])
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"meter_id", "timestamp", "kw"})
	for _, reading := range series[0].Readings {
		_ = writer.Write([]string{
			id,
			formatTime(reading.At),
			formatFloat(reading.KW),
		})
	}
	writer.Flush()
}

func respondRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, meters.ErrMeterNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, meters.ErrEmptyID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "query meters error", http.StatusInternalServerError)
	}
}

func parseOptionalTime(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
