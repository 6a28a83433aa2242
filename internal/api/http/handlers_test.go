package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ingest "meterprofile/internal/ingest/domain"
	meters "meterprofile/internal/meters/domain"
	"meterprofile/internal/meters/infrastructure/memory"
)

func newMetersHandler(t *testing.T) *MetersHandler {
	t.Helper()
	repo := memory.NewMeterRepository()
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []meters.Meter{
		{ID: "m-1", Identity: meters.Identity{SiteName: "Mall One", ShopName: "Woolworths", ShopNumber: "G12"}},
		{ID: "m-2", Identity: meters.Identity{SiteName: "Mall One", ShopName: "Pharmacy"}},
		{ID: "m-3", Identity: meters.Identity{SiteName: "Mall Two", ShopName: "Cafe"}},
	}
	for i := range seed {
		readings := []ingest.Reading{{At: start, KW: 1.5}, {At: start.Add(time.Hour), KW: 2.25}}
		if err := repo.Create(ctx, &seed[i], readings); err != nil {
			t.Fatalf("seed %s: %v", seed[i].ID, err)
		}
	}
	return NewMetersHandler(repo)
}

func TestMetersHandler_ListFiltersBySiteAndSearch(t *testing.T) {
	handler := newMetersHandler(t)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/meters?site_name=mall%20one&q=g12", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var list []meters.Summary
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ID != "m-1" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestMetersHandler_GetAndReadings(t *testing.T) {
	handler := newMetersHandler(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/meters/m-2", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"shop_name":"Pharmacy"`) {
		t.Fatalf("unexpected get response %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/meters/ghost", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	target := "/api/v1/meters/m-1/readings.csv?from=2024-01-01T00:30:00Z"
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, target, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	lines := strings.Split(strings.TrimSpace(resp.Body.String()), "\n")
	if len(lines) != 2 || lines[1] != "m-1,2024-01-01T01:00:00Z,2.25" {
		t.Fatalf("unexpected csv %q", lines)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/meters/m-1/readings?from=yesterday", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/meters", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}
