package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"meterprofile/internal/audit"
	"meterprofile/internal/auth"
	importapp "meterprofile/internal/ingest/application"
	previewmemory "meterprofile/internal/ingest/infrastructure/memory"
	matching "meterprofile/internal/matching/domain"
	meters "meterprofile/internal/meters/domain"
	"meterprofile/internal/meters/infrastructure/memory"
)

const (
	sampleCSV   = "Date,Time,kWh\n2024-01-01,00:00,12.5\n2024-01-01,00:30,10.0\n2024-01-02,00:00,8.0\n"
	pharmacyCSV = "Date,Time,kWh\n2024-01-01,00:00,3.5\n2024-01-01,00:30,4.0\n2024-01-02,00:00,2.0\n"
)

type recordingAudit struct {
	entries []audit.Entry
}

func (r *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func newTestHandler(t *testing.T) (*ImportHandler, *memory.MeterRepository, *recordingAudit) {
	t.Helper()
	repo := memory.NewMeterRepository()
	err := repo.Create(context.Background(), &meters.Meter{
		ID:       "m-1",
		Identity: meters.Identity{SiteName: "Mall One", ShopName: "Woolworths"},
	}, nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	svc, err := importapp.NewImportService(repo, previewmemory.NewPreviewStore(time.Minute, 8), importapp.DefaultConfig(), logger)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	recorder := &recordingAudit{}
	handler, err := NewImportHandler(svc, recorder, logger, 1<<20)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return handler, repo, recorder
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("field: %v", err)
		}
	}
	for _, name := range []string{"woolworths_jan.csv", "pharmacy.csv", "broken.csv"} {
		content, ok := files[name]
		if !ok {
			continue
		}
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("file: %v", err)
		}
		_, _ = part.Write([]byte(content))
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func withOperator(r *http.Request) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{Subject: "user-1", Role: auth.RoleOperator, Method: auth.MethodJWT}))
}

func TestImportHandler_PreviewThenSave(t *testing.T) {
	handler, repo, recorder := newTestHandler(t)

	body, contentType := multipartBody(t,
		map[string]string{"site_name": "Mall One", "unit": "kWh"},
		map[string]string{"woolworths_jan.csv": sampleCSV, "pharmacy.csv": pharmacyCSV, "broken.csv": "nothing"},
	)
	req := withOperator(httptest.NewRequest(http.MethodPost, "/api/v1/imports/preview", body))
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("preview: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var preview importapp.Preview
	if err := json.NewDecoder(resp.Body).Decode(&preview); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if len(preview.Files) != 3 || preview.Files[2].Error == "" {
		t.Fatalf("expected broken file reported, got %+v", preview.Files)
	}
	if len(preview.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(preview.Candidates))
	}
	if preview.Candidates[0].Match.Type != matching.MatchExact {
		t.Fatalf("expected exact match, got %+v", preview.Candidates[0].Match)
	}

	payload, _ := json.Marshal(importapp.SaveRequest{BatchID: preview.BatchID})
	req = withOperator(httptest.NewRequest(http.MethodPost, "/api/v1/imports/save", bytes.NewReader(payload)))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var summary importapp.SaveSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Created != 1 || summary.Updated != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	updated, err := repo.Get(context.Background(), "m-1")
	if err != nil || updated.Profile == nil || updated.FileName != "woolworths_jan.csv" {
		t.Fatalf("expected m-1 profile from upload, got %+v err=%v", updated, err)
	}

	if len(recorder.entries) != 2 || recorder.entries[0].Action != audit.ActionImportPreview || recorder.entries[1].Action != audit.ActionImportSave {
		t.Fatalf("unexpected audit entries %+v", recorder.entries)
	}
	if recorder.entries[0].SiteName != "Mall One" || recorder.entries[0].ResourceID != preview.BatchID {
		t.Fatalf("unexpected preview audit %+v", recorder.entries[0])
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/imports/save", bytes.NewReader(payload)))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected consumed batch to be gone, got %d", resp.Code)
	}
}

func TestImportHandler_PartialSaveIsMultiStatus(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	body, contentType := multipartBody(t, map[string]string{"site_name": "Mall One"}, map[string]string{"pharmacy.csv": pharmacyCSV})
	req := httptest.NewRequest(http.MethodPost, IngestPrefix+"preview", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("preview: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var preview importapp.Preview
	_ = json.NewDecoder(resp.Body).Decode(&preview)

	payload, _ := json.Marshal(importapp.SaveRequest{BatchID: preview.BatchID, Items: []importapp.SaveItem{
		{Candidate: 0, Action: importapp.ActionCreate},
		{Candidate: 5, Action: importapp.ActionCreate},
	}})
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, IngestPrefix+"save", bytes.NewReader(payload)))
	if resp.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d: %s", resp.Code, resp.Body.String())
	}
	var summary importapp.SaveSummary
	_ = json.NewDecoder(resp.Body).Decode(&summary)
	if summary.Created != 1 || len(summary.Failures) != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestImportHandler_RejectsBadRequests(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/imports/preview", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}

	body, contentType := multipartBody(t, map[string]string{"site_name": "Mall One"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports/preview", body)
	req.Header.Set("Content-Type", contentType)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without files, got %d", resp.Code)
	}

	body, contentType = multipartBody(t, map[string]string{"separator": "::"}, map[string]string{"pharmacy.csv": pharmacyCSV})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/imports/preview", body)
	req.Header.Set("Content-Type", contentType)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad separator, got %d", resp.Code)
	}

	body, contentType = multipartBody(t, nil, map[string]string{"broken.csv": "nothing"})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/imports/preview", body)
	req.Header.Set("Content-Type", contentType)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 when no file yields a profile, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/imports/save", strings.NewReader(`{"batch_id":"b","items":[{"candidate":0,"action":"merge"}]}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/imports/save", strings.NewReader(`{"batch_id":"missing"}`)))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown batch, got %d", resp.Code)
	}
}

func TestParseSeparatorAndRoles(t *testing.T) {
	if sep, err := parseSeparator("tab"); err != nil || sep != '\t' {
		t.Fatalf("expected tab, got %q %v", sep, err)
	}
	if sep, err := parseSeparator(";"); err != nil || sep != ';' {
		t.Fatalf("expected semicolon, got %q %v", sep, err)
	}
	payload := fileOptionsPayload{Roles: map[int]string{2: "Ignore"}}
	opts, err := payload.toOptions()
	if err != nil || opts.Overrides.Roles[2] != "ignore" {
		t.Fatalf("expected ignore role, got %+v %v", opts.Overrides, err)
	}
	payload.Roles[3] = "meter"
	if _, err := payload.toOptions(); err == nil {
		t.Fatalf("expected unknown role error")
	}
	merged := mergePayload(fileOptionsPayload{Unit: "kW", Voltage: 400}, fileOptionsPayload{Unit: "A"})
	if merged.Unit != "A" || merged.Voltage != 400 {
		t.Fatalf("unexpected merge %+v", merged)
	}
}
