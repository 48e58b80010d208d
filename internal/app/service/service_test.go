package service

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/k1832/speedtest-logger/internal/app/config"
	"github.com/k1832/speedtest-logger/internal/domain"
	"github.com/k1832/speedtest-logger/internal/ports"
)

type fakeStore struct {
	mu   sync.Mutex
	rows []domain.SpeedRecord
}

func (f *fakeStore) InsertAtTop(rec domain.SpeedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append([]domain.SpeedRecord{rec}, f.rows...)
	return nil
}

func (f *fakeStore) Name() string { return "fake" }

type nopObs struct{}

func (nopObs) LogInfo(msg string, fields ...ports.Field)             {}
func (nopObs) LogError(msg string, err error, fields ...ports.Field) {}
func (nopObs) IncCounter(name string, v float64)                     {}
func (nopObs) ObserveLatency(name string, seconds float64)           {}
func (nopObs) SetGauge(name string, v float64)                       {}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:  config.ServerConfig{Addr: "127.0.0.1:0"},
		Store:   config.StoreConfig{Backend: "csv", CSVPath: filepath.Join(t.TempDir(), "log.csv")},
		Metrics: config.MetricsConfig{Addr: "127.0.0.1:0"},
	}
}

func TestNewWiresIngestHandler(t *testing.T) {
	store := &fakeStore{}
	svc, err := New(testConfig(t), WithStore(store), WithObservability(nopObs{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/ingest",
		strings.NewReader(`{"timestamp":"2021-10-02T11:30:00Z","ping":4,"download":80,"upload":40}`))
	w := httptest.NewRecorder()
	svc.httpSrv.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(store.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(store.rows))
	}
}

func TestNewBuildsCSVStoreByDefault(t *testing.T) {
	svc, err := New(testConfig(t), WithObservability(nopObs{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.store.Name() != "csv" {
		t.Fatalf("expected csv store, got %s", svc.store.Name())
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "sqlite"
	if _, err := New(cfg, WithObservability(nopObs{})); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
