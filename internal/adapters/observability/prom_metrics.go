package observability

import (
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/k1832/speedtest-logger/internal/ports"
)

// NewLogger builds the process logger. Format "console" is for interactive
// runs; everything else is JSON.
func NewLogger(level, format string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "warn", "warning":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}

	if strings.ToLower(format) == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(lvl).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

type PromObs struct {
	log      zerolog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func NewPromObs(log zerolog.Logger) *PromObs {
	inserted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "speedtest_logger_records_inserted_total",
		Help: "Records successfully appended to the store.",
	})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "speedtest_logger_ingest_rejected_total",
		Help: "Ingestion requests rejected before any store write.",
	})
	collectFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "speedtest_logger_collect_failures_total",
		Help: "Collection ticks aborted before transport.",
	})
	transportFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "speedtest_logger_transport_failures_total",
		Help: "Samples dropped after a failed or non-2xx delivery attempt.",
	})
	insertLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "speedtest_logger_store_insert_latency_seconds",
		Help:    "Latency of a single insert-at-top operation.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	rows := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "speedtest_logger_store_rows",
		Help: "Data rows currently in the append-only store.",
	})

	prometheus.MustRegister(inserted, rejected, collectFailures, transportFailures, insertLatency, rows)

	return &PromObs{
		log: log,
		counters: map[string]prometheus.Counter{
			"speedtest_logger_records_inserted_total":   inserted,
			"speedtest_logger_ingest_rejected_total":    rejected,
			"speedtest_logger_collect_failures_total":   collectFailures,
			"speedtest_logger_transport_failures_total": transportFailures,
		},
		gauges: map[string]prometheus.Gauge{
			"speedtest_logger_store_rows": rows,
		},
		histos: map[string]prometheus.Observer{
			"speedtest_logger_store_insert_latency_seconds": insertLatency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	ev := p.log.Info()
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	ev := p.log.Error().Err(err)
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

var _ ports.Observability = (*PromObs)(nil)
