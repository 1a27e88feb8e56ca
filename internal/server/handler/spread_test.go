package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEvaluator serves canned results keyed by pair id.
type fakeEvaluator struct {
	results map[string]domain.SpreadResult
	errs    map[string]error
	alerts  []domain.Alert
}

func (f *fakeEvaluator) EvaluateAll() []domain.SpreadResult {
	out := make([]domain.SpreadResult, 0, len(f.results))
	for _, r := range f.results {
		out = append(out, r)
	}
	return out
}

func (f *fakeEvaluator) EvaluateByID(id string) (domain.SpreadResult, error) {
	if err, ok := f.errs[id]; ok {
		return domain.SpreadResult{}, err
	}
	r, ok := f.results[id]
	if !ok {
		return domain.SpreadResult{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeEvaluator) Alerts(minThreshold float64) []domain.Alert {
	var out []domain.Alert
	for _, a := range f.alerts {
		if a.Spread.MaxSpread >= minThreshold {
			out = append(out, a)
		}
	}
	return out
}

func newMux(h *SpreadHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/spreads", h.ListSpreads)
	mux.HandleFunc("GET /api/spreads/{id}", h.GetSpread)
	mux.HandleFunc("GET /api/alerts", h.ListAlerts)
	return mux
}

func TestGetSpreadStatusCodes(t *testing.T) {
	ev := &fakeEvaluator{
		results: map[string]domain.SpreadResult{
			"fed-hike": {PairID: "fed-hike", MaxSpread: 0.04},
		},
		errs: map[string]error{
			"cold-pair": domain.ErrInsufficientData,
		},
	}
	mux := newMux(NewSpreadHandler(ev, testLogger()))

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"known pair", "/api/spreads/fed-hike", http.StatusOK},
		{"unknown pair", "/api/spreads/nope", http.StatusNotFound},
		{"insufficient data", "/api/spreads/cold-pair", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestListSpreads(t *testing.T) {
	ev := &fakeEvaluator{
		results: map[string]domain.SpreadResult{
			"a": {PairID: "a", MaxSpread: 0.02},
			"b": {PairID: "b", MaxSpread: 0.11},
		},
	}
	mux := newMux(NewSpreadHandler(ev, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/spreads", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Spreads []domain.SpreadResult `json:"spreads"`
		Count   int                   `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 2 || len(body.Spreads) != 2 {
		t.Fatalf("count = %d spreads = %d, want 2/2", body.Count, len(body.Spreads))
	}
}

func TestListAlertsMinThreshold(t *testing.T) {
	ev := &fakeEvaluator{
		alerts: []domain.Alert{
			{ID: "1", Spread: domain.SpreadResult{PairID: "a", MaxSpread: 0.06}, Severity: domain.SeverityLow},
			{ID: "2", Spread: domain.SpreadResult{PairID: "b", MaxSpread: 0.22}, Severity: domain.SeverityCritical},
		},
	}
	mux := newMux(NewSpreadHandler(ev, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts?min_threshold=0.10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Alerts []domain.Alert `json:"alerts"`
		Count  int            `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 1 || body.Alerts[0].Spread.PairID != "b" {
		t.Fatalf("alerts = %+v, want only pair b", body.Alerts)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts?min_threshold=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid min_threshold", rec.Code)
	}
}
