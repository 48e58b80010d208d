package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/k1832/speedtest-logger/internal/domain"
	"github.com/k1832/speedtest-logger/internal/normalize"
	"github.com/k1832/speedtest-logger/internal/ports"
)

// Sender delivers one canonical record to the ingestion endpoint.
type Sender interface {
	Send(ctx context.Context, rec domain.SpeedRecord) error
}

// Collector executes one collection tick: measure, normalize, send. There is
// no loop here; an external scheduler invokes one run per tick, and a failed
// tick is simply a lost sample.
type Collector struct {
	source ports.MeasurementSource
	sender Sender
	obs    ports.Observability
}

func New(source ports.MeasurementSource, sender Sender, obs ports.Observability) *Collector {
	return &Collector{source: source, sender: sender, obs: obs}
}

// RunOnce performs the linear measure → normalize → send sequence. A sample
// that fails measurement or normalization aborts before any network call.
func (c *Collector) RunOnce(ctx context.Context) error {
	raw, err := c.source.Measure(ctx)
	if err != nil {
		c.obs.IncCounter("speedtest_logger_collect_failures_total", 1)
		c.obs.LogError("measurement_failed", err, ports.Field{Key: "source", Value: c.source.Name()})
		return fmt.Errorf("measure: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		err := errors.New("measurement source returned no data")
		c.obs.IncCounter("speedtest_logger_collect_failures_total", 1)
		c.obs.LogError("measurement_empty", err, ports.Field{Key: "source", Value: c.source.Name()})
		return err
	}

	rec, err := normalize.Normalize(raw)
	if err != nil {
		c.obs.IncCounter("speedtest_logger_collect_failures_total", 1)
		c.obs.LogError("normalization_failed", err, ports.Field{Key: "source", Value: c.source.Name()})
		return fmt.Errorf("normalize: %w", err)
	}

	if err := c.sender.Send(ctx, rec); err != nil {
		c.obs.IncCounter("speedtest_logger_transport_failures_total", 1)
		c.obs.LogError("delivery_failed", err, ports.Field{Key: "timestamp", Value: rec.Timestamp})
		return fmt.Errorf("send: %w", err)
	}

	c.obs.LogInfo("sample_delivered",
		ports.Field{Key: "timestamp", Value: rec.Timestamp},
		ports.Field{Key: "ping_ms", Value: rec.PingMs},
		ports.Field{Key: "download_mbps", Value: rec.DownloadMbps},
		ports.Field{Key: "upload_mbps", Value: rec.UploadMbps})
	return nil
}
