package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/k1832/speedtest-logger/internal/ports"
)

// SpeedtestSource runs the external speed-test utility and hands back whatever
// JSON it printed. The schema of that output is the normalizer's problem; this
// source treats it as opaque.
type SpeedtestSource struct {
	command []string
}

func NewSpeedtestSource(command []string) (*SpeedtestSource, error) {
	if len(command) == 0 {
		return nil, errors.New("speedtest source: command is required")
	}
	return &SpeedtestSource{command: command}, nil
}

func (s *SpeedtestSource) Name() string { return "speedtest" }

func (s *SpeedtestSource) Measure(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return nil, fmt.Errorf("speedtest source: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("speedtest source: %w", err)
	}

	return bytes.TrimSpace(stdout.Bytes()), nil
}

var _ ports.MeasurementSource = (*SpeedtestSource)(nil)
