package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/k1832/speedtest-logger/internal/domain"
)

// Failure is any reason a delivery attempt did not land: network error,
// timeout, or a non-2xx response. The sample is dropped either way; the next
// scheduled tick produces a fresh one.
type Failure struct {
	Status int // zero when no response was received
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("transport: %v", f.Err)
	}
	return fmt.Sprintf("transport: endpoint returned status %d", f.Status)
}

func (f *Failure) Unwrap() error { return f.Err }

// Client delivers one record per Send with exactly one HTTP request. Delivery
// is at-most-once: no retry, no backoff, no queue. Periodic collection is the
// reliability mechanism, not this client.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) Send(ctx context.Context, rec domain.SpeedRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return &Failure{Err: fmt.Errorf("marshal record: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return &Failure{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", uuid.New().String())

	resp, err := c.http.Do(req)
	if err != nil {
		return &Failure{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Failure{Status: resp.StatusCode}
	}
	return nil
}
