package domain

import (
	"fmt"
	"math"
	"time"
)

// SpeedRecord is the canonical unit of network telemetry in this module. It is
// the only shape that crosses the transport boundary and the only shape the
// store persists. Throughput is always megabits per second; converting from
// whatever the measurement utility reports is the normalizer's job.
type SpeedRecord struct {
	Timestamp    string  `json:"timestamp"`
	PingMs       float64 `json:"ping"`
	DownloadMbps float64 `json:"download"`
	UploadMbps   float64 `json:"upload"`
}

// Validate checks the invariants every persisted record must hold: a parseable
// ISO-8601 timestamp and non-negative, finite metrics.
func (r SpeedRecord) Validate() error {
	if r.Timestamp == "" {
		return fmt.Errorf("timestamp is required")
	}
	if _, err := time.Parse(time.RFC3339, r.Timestamp); err != nil {
		return fmt.Errorf("timestamp %q: %w", r.Timestamp, err)
	}
	for _, m := range []struct {
		name  string
		value float64
	}{
		{"ping", r.PingMs},
		{"download", r.DownloadMbps},
		{"upload", r.UploadMbps},
	} {
		if math.IsNaN(m.value) || math.IsInf(m.value, 0) {
			return fmt.Errorf("%s is not a finite number", m.name)
		}
		if m.value < 0 {
			return fmt.Errorf("%s must be non-negative, got %v", m.name, m.value)
		}
	}
	return nil
}
