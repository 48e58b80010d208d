package ingest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/k1832/speedtest-logger/internal/domain"
	"github.com/k1832/speedtest-logger/internal/ports"
)

type fakeStore struct {
	mu   sync.Mutex
	rows []domain.SpeedRecord
	err  error
}

func (f *fakeStore) InsertAtTop(rec domain.SpeedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append([]domain.SpeedRecord{rec}, f.rows...)
	return nil
}

func (f *fakeStore) Name() string { return "fake" }

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type nopObs struct{}

func (nopObs) LogInfo(msg string, fields ...ports.Field)             {}
func (nopObs) LogError(msg string, err error, fields ...ports.Field) {}
func (nopObs) IncCounter(name string, v float64)                     {}
func (nopObs) ObserveLatency(name string, seconds float64)           {}
func (nopObs) SetGauge(name string, v float64)                       {}

func post(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	return w
}

func TestIngestCurrentProtocol(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store, nopObs{})

	w := post(t, h, `{"timestamp":"2021-10-02T11:30:00Z","ping":4.5,"download":80.5,"upload":40.25}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "ok\n" {
		t.Fatalf("unexpected response %q", w.Body.String())
	}
	if store.count() != 1 {
		t.Fatalf("expected 1 row, got %d", store.count())
	}
	got := store.rows[0]
	if got.Timestamp != "2021-10-02T11:30:00Z" || got.PingMs != 4.5 || got.DownloadMbps != 80.5 || got.UploadMbps != 40.25 {
		t.Fatalf("unexpected row %+v", got)
	}
}

func TestIngestNewestRowIsOnTop(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store, nopObs{})

	post(t, h, `{"timestamp":"2021-10-02T11:30:00Z","ping":1,"download":1,"upload":1}`)
	post(t, h, `{"timestamp":"2021-10-02T11:35:00Z","ping":2,"download":2,"upload":2}`)

	if store.count() != 2 {
		t.Fatalf("expected 2 rows, got %d", store.count())
	}
	if store.rows[0].Timestamp != "2021-10-02T11:35:00Z" {
		t.Fatalf("expected newest row on top, got %+v", store.rows[0])
	}
	if store.rows[1].Timestamp != "2021-10-02T11:30:00Z" {
		t.Fatalf("expected older row shifted down, got %+v", store.rows[1])
	}
}

func TestIngestLegacyProtocol(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store, nopObs{})

	w := post(t, h, `{"data":"2021-10-02T11:30:00Z,23,78.08,143.15"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	want := "timestamp: 2021-10-02T11:30:00Z, ping: 23, download: 78.08, upload: 143.15\n"
	if w.Body.String() != want {
		t.Fatalf("response %q, want %q", w.Body.String(), want)
	}
	if store.count() != 1 {
		t.Fatalf("expected 1 row, got %d", store.count())
	}
	got := store.rows[0]
	if got.Timestamp != "2021-10-02T11:30:00Z" || got.PingMs != 23 || got.DownloadMbps != 78.08 || got.UploadMbps != 143.15 {
		t.Fatalf("unexpected row %+v", got)
	}
}

func TestIngestLegacyWrongFieldCount(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store, nopObs{})

	w := post(t, h, `{"data":"a,b,c"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w.Body.String() != "Posted data is invalid.\n" {
		t.Fatalf("unexpected response %q", w.Body.String())
	}
	if store.count() != 0 {
		t.Fatalf("store must be unchanged, got %d rows", store.count())
	}
}

func TestIngestRejectsMalformedPayloads(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "speedtest"},
		{"empty body", ""},
		{"json array", "[1,2]"},
		{"missing upload", `{"timestamp":"2021-10-02T11:30:00Z","ping":4,"download":80}`},
		{"ping as string", `{"timestamp":"2021-10-02T11:30:00Z","ping":"4","download":80,"upload":40}`},
		{"negative download", `{"timestamp":"2021-10-02T11:30:00Z","ping":4,"download":-80,"upload":40}`},
		{"bad timestamp", `{"timestamp":"last tuesday","ping":4,"download":80,"upload":40}`},
		{"legacy data not a string", `{"data":42}`},
		{"legacy five fields", `{"data":"a,1,2,3,4"}`},
		{"legacy non-numeric metric", `{"data":"2021-10-02T11:30:00Z,fast,78.08,143.15"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{}
			h := NewHandler(store, nopObs{})

			w := post(t, h, tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if store.count() != 0 {
				t.Fatalf("store must be unchanged, got %d rows", store.count())
			}
		})
	}
}

// Duplicate submissions are appended twice by design; the store deduplicates
// nothing.
func TestIngestDuplicateSubmissions(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store, nopObs{})

	body := `{"timestamp":"2021-10-02T11:30:00Z","ping":4,"download":80,"upload":40}`
	post(t, h, body)
	post(t, h, body)

	if store.count() != 2 {
		t.Fatalf("expected 2 rows for duplicate submissions, got %d", store.count())
	}
}

func TestIngestStoreFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("store down")}
	h := NewHandler(store, nopObs{})

	w := post(t, h, `{"timestamp":"2021-10-02T11:30:00Z","ping":4,"download":80,"upload":40}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := NewHandler(&fakeStore{}, nopObs{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestIngestRejectsNonPost(t *testing.T) {
	h := NewHandler(&fakeStore{}, nopObs{})

	req := httptest.NewRequest(http.MethodGet, "/ingest", nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
