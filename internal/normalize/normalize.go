package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/k1832/speedtest-logger/internal/domain"
)

// SchemaError reports a raw sample whose shape matches no supported schema or
// whose fields cannot be converted safely. It aborts the collection run before
// any network call is made.
type SchemaError struct {
	msg string
}

func (e *SchemaError) Error() string { return "normalize: " + e.msg }

func schemaErrf(format string, args ...any) *SchemaError {
	return &SchemaError{msg: fmt.Sprintf(format, args...)}
}

// currentSample is the nested schema emitted by recent speedtest CLI versions.
// Bandwidth is reported in bytes per second.
type currentSample struct {
	Timestamp string `json:"timestamp"`
	Ping      struct {
		Latency *float64 `json:"latency"`
	} `json:"ping"`
	Download struct {
		Bandwidth *float64 `json:"bandwidth"`
	} `json:"download"`
	Upload struct {
		Bandwidth *float64 `json:"bandwidth"`
	} `json:"upload"`
}

// legacySample is the flat schema emitted by older collector versions.
// Download and upload are reported in bits per second.
type legacySample struct {
	Timestamp string   `json:"timestamp"`
	Ping      *float64 `json:"ping"`
	Download  *float64 `json:"download"`
	Upload    *float64 `json:"upload"`
}

const (
	bitsPerMegabit = 1e6
	bitsPerByte    = 8
	requiredFields = 4
)

// Normalize maps a raw JSON sample, in either supported schema, to one
// canonical SpeedRecord. Detection is structural: a nested "ping" object
// selects the current schema, a flat numeric "ping" selects the legacy one.
// Anything else fails with *SchemaError; there is no partial recovery, and
// units are never passed through unconverted.
func Normalize(raw []byte) (domain.SpeedRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return domain.SpeedRecord{}, schemaErrf("empty sample")
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return domain.SpeedRecord{}, schemaErrf("sample is not a JSON object: %v", err)
	}

	ping, ok := probe["ping"]
	if !ok {
		return domain.SpeedRecord{}, schemaErrf("sample has no ping field")
	}

	if bytes.HasPrefix(bytes.TrimSpace(ping), []byte("{")) {
		return normalizeCurrent(raw)
	}
	return normalizeLegacy(raw)
}

func normalizeCurrent(raw []byte) (domain.SpeedRecord, error) {
	var s currentSample
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.SpeedRecord{}, schemaErrf("current schema: %v", err)
	}
	if s.Ping.Latency == nil || s.Download.Bandwidth == nil || s.Upload.Bandwidth == nil {
		return domain.SpeedRecord{}, schemaErrf("current schema: missing latency or bandwidth fields")
	}

	rec := domain.SpeedRecord{
		Timestamp:    s.Timestamp,
		PingMs:       *s.Ping.Latency,
		DownloadMbps: *s.Download.Bandwidth * bitsPerByte / bitsPerMegabit,
		UploadMbps:   *s.Upload.Bandwidth * bitsPerByte / bitsPerMegabit,
	}
	if err := rec.Validate(); err != nil {
		return domain.SpeedRecord{}, schemaErrf("current schema: %v", err)
	}
	return rec, nil
}

func normalizeLegacy(raw []byte) (domain.SpeedRecord, error) {
	var s legacySample
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.SpeedRecord{}, schemaErrf("legacy schema: %v", err)
	}
	if s.Ping == nil || s.Download == nil || s.Upload == nil {
		return domain.SpeedRecord{}, schemaErrf("legacy schema: missing ping, download, or upload")
	}

	rec := domain.SpeedRecord{
		Timestamp:    s.Timestamp,
		PingMs:       *s.Ping,
		DownloadMbps: *s.Download / bitsPerMegabit,
		UploadMbps:   *s.Upload / bitsPerMegabit,
	}
	if err := rec.Validate(); err != nil {
		return domain.SpeedRecord{}, schemaErrf("legacy schema: %v", err)
	}
	return rec, nil
}

// NormalizeLine maps the oldest text encoding, a single comma-joined
// "timestamp,ping,download,upload" string with values already in Mbps. The
// split must yield exactly four fields.
func NormalizeLine(line string) (domain.SpeedRecord, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != requiredFields {
		return domain.SpeedRecord{}, schemaErrf("comma-joined sample has %d fields, want %d", len(parts), requiredFields)
	}

	values := make([]float64, 3)
	for i, name := range []string{"ping", "download", "upload"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return domain.SpeedRecord{}, schemaErrf("comma-joined sample: %s %q is not numeric", name, parts[i+1])
		}
		values[i] = v
	}

	rec := domain.SpeedRecord{
		Timestamp:    strings.TrimSpace(parts[0]),
		PingMs:       values[0],
		DownloadMbps: values[1],
		UploadMbps:   values[2],
	}
	if err := rec.Validate(); err != nil {
		return domain.SpeedRecord{}, schemaErrf("comma-joined sample: %v", err)
	}
	return rec, nil
}
