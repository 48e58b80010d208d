package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestPromObsMetrics(t *testing.T) {
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	obs := NewPromObs(zerolog.Nop())

	obs.IncCounter("speedtest_logger_records_inserted_total", 3)
	if got := testutil.ToFloat64(obs.counters["speedtest_logger_records_inserted_total"]); got != 3 {
		t.Fatalf("expected inserted counter 3, got %f", got)
	}

	obs.IncCounter("speedtest_logger_ingest_rejected_total", 2)
	if got := testutil.ToFloat64(obs.counters["speedtest_logger_ingest_rejected_total"]); got != 2 {
		t.Fatalf("expected rejected counter 2, got %f", got)
	}

	obs.SetGauge("speedtest_logger_store_rows", 42)
	if got := testutil.ToFloat64(obs.gauges["speedtest_logger_store_rows"]); got != 42 {
		t.Fatalf("expected rows gauge 42, got %f", got)
	}

	obs.ObserveLatency("speedtest_logger_store_insert_latency_seconds", 0.25)
	hCollector := obs.histos["speedtest_logger_store_insert_latency_seconds"].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	// Unknown names must be ignored, not panic.
	obs.IncCounter("no_such_counter", 1)
	obs.SetGauge("no_such_gauge", 1)
	obs.ObserveLatency("no_such_histogram", 1)
}
