package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-ping/ping"

	"github.com/k1832/speedtest-logger/internal/ports"
)

// PingSource is a degraded measurement source for hosts without the speed-test
// utility: an ICMP probe that reports latency only. It emits a legacy-flat raw
// sample with zero throughput so the rest of the pipeline stays unchanged.
type PingSource struct {
	host    string
	count   int
	timeout time.Duration
}

func NewPingSource(host string) (*PingSource, error) {
	if host == "" {
		return nil, errors.New("ping source: host is required")
	}
	return &PingSource{host: host, count: 5, timeout: 10 * time.Second}, nil
}

func (p *PingSource) Name() string { return "ping" }

func (p *PingSource) Measure(ctx context.Context) ([]byte, error) {
	pinger, err := ping.NewPinger(p.host)
	if err != nil {
		return nil, fmt.Errorf("ping source: %w", err)
	}
	pinger.Count = p.count
	pinger.Timeout = p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < pinger.Timeout {
			pinger.Timeout = remaining
		}
	}
	pinger.SetPrivileged(true)

	if err := pinger.Run(); err != nil {
		return nil, fmt.Errorf("ping source: %w", err)
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return nil, fmt.Errorf("ping source: no replies from %s", p.host)
	}

	sample := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"ping":      float64(stats.AvgRtt) / float64(time.Millisecond),
		"download":  0.0,
		"upload":    0.0,
	}
	return json.Marshal(sample)
}

var _ ports.MeasurementSource = (*PingSource)(nil)
