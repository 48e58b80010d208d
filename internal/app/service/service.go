package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/k1832/speedtest-logger/internal/adapters/observability"
	"github.com/k1832/speedtest-logger/internal/adapters/store"
	"github.com/k1832/speedtest-logger/internal/app/config"
	"github.com/k1832/speedtest-logger/internal/ingest"
	"github.com/k1832/speedtest-logger/internal/ports"
)

// Option customizes the dependencies used by Service.
type Option func(*overrides)

type overrides struct {
	store ports.Store
	obs   ports.Observability
}

// WithStore injects a custom store implementation.
func WithStore(s ports.Store) Option {
	return func(o *overrides) {
		o.store = s
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs ports.Observability) Option {
	return func(o *overrides) {
		o.obs = obs
	}
}

// rowCounter is implemented by stores that can report their current size.
type rowCounter interface {
	Rows() (int, error)
}

// Service wires the ingestion endpoint to the append-only store and exposes
// lifecycle hooks for running it as a long-lived process.
type Service struct {
	cfg         *config.Config
	store       ports.Store
	obs         ports.Observability
	db          *sql.DB
	httpSrv     *http.Server
	metricsSrv  *http.Server
	gaugeStopCh chan struct{}
}

// New bootstraps the default adapters (CSV or Postgres store, Prometheus +
// zerolog observability). Option values override any dependency.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	obs := o.obs
	if obs == nil {
		obs = observability.NewPromObs(observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format))
	}

	var (
		db  *sql.DB
		st  ports.Store
		err error
	)
	if o.store != nil {
		st = o.store
	} else {
		switch cfg.Store.Backend {
		case "csv":
			st, err = store.NewCSVStore(cfg.Store.CSVPath)
			if err != nil {
				return nil, err
			}
		case "postgres":
			db, err = sql.Open("postgres", cfg.Store.ConnString)
			if err != nil {
				return nil, err
			}
			st = store.NewPostgresStore(db, cfg.Store.Table)
		default:
			return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
		}
	}

	handler := ingest.NewHandler(st, obs)

	return &Service{
		cfg:   cfg,
		store: st,
		obs:   obs,
		db:    db,
		httpSrv: &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: handler.Router(),
		},
	}, nil
}

// Start launches the ingestion and metrics servers. It returns immediately;
// call Run to block on a context instead.
func (s *Service) Start() error {
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.obs.LogError("ingest_server_exited", err)
		}
	}()
	s.obs.LogInfo("ingest_server_started",
		ports.Field{Key: "addr", Value: s.cfg.Server.Addr},
		ports.Field{Key: "store", Value: s.store.Name()})

	s.startMetrics()
	return nil
}

// Run starts the service and blocks until the provided context is cancelled,
// then attempts a graceful shutdown.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops both servers and closes the DB connection.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error

	if s.gaugeStopCh != nil {
		close(s.gaugeStopCh)
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, err)
	}
	if s.metricsSrv != nil {
		if err := s.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *Service) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.metricsSrv = &http.Server{
		Addr:    s.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.obs.LogError("metrics_server_exited", err)
		}
	}()

	if rc, ok := s.store.(rowCounter); ok {
		s.gaugeStopCh = make(chan struct{})
		go s.recordRowGauge(rc, s.gaugeStopCh, 15*time.Second)
	}
}

func (s *Service) recordRowGauge(rc rowCounter, stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := rc.Rows()
			if err != nil {
				s.obs.LogError("row_count_failed", err)
				continue
			}
			s.obs.SetGauge("speedtest_logger_store_rows", float64(n))
		}
	}
}
