package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/k1832/speedtest-logger/internal/domain"
	"github.com/k1832/speedtest-logger/internal/ports"
)

// ErrMalformedPayload marks any request rejected before the store is touched:
// JSON syntax errors, wrong shapes, or a legacy data string with the wrong
// field count.
var ErrMalformedPayload = errors.New("malformed payload")

// invalidResponse matches the reply of the original ingestion endpoint, with
// http.Error supplying the trailing newline.
const invalidResponse = "Posted data is invalid."

const maxPayloadBytes = 1 << 20

// Handler is the stateless ingestion endpoint. The store handle is injected at
// construction; each request either fully validates and appends one row or
// leaves the store untouched. One malformed request never affects another.
type Handler struct {
	store ports.Store
	obs   ports.Observability
}

func NewHandler(store ports.Store, obs ports.Observability) *Handler {
	return &Handler{store: store, obs: obs}
}

func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ingest", h.handleIngest).Methods(http.MethodPost).Name("PostIngest")
	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet).Name("GetHealthz")
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		h.reject(w, fmt.Errorf("%w: read body: %v", ErrMalformedPayload, err))
		return
	}

	rec, echo, err := decodePayload(body)
	if err != nil {
		h.reject(w, err)
		return
	}

	start := time.Now()
	if err := h.store.InsertAtTop(rec); err != nil {
		h.obs.LogError("store_insert_failed", err, ports.Field{Key: "store", Value: h.store.Name()})
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.obs.ObserveLatency("speedtest_logger_store_insert_latency_seconds", time.Since(start).Seconds())
	h.obs.IncCounter("speedtest_logger_records_inserted_total", 1)
	h.obs.LogInfo("record_inserted",
		ports.Field{Key: "timestamp", Value: rec.Timestamp},
		ports.Field{Key: "store", Value: h.store.Name()})

	if echo != nil {
		fmt.Fprintf(w, "timestamp: %s, ping: %s, download: %s, upload: %s\n",
			echo[0], echo[1], echo[2], echo[3])
		return
	}
	io.WriteString(w, "ok\n")
}

func (h *Handler) reject(w http.ResponseWriter, err error) {
	h.obs.IncCounter("speedtest_logger_ingest_rejected_total", 1)
	h.obs.LogError("payload_rejected", err)
	http.Error(w, invalidResponse, http.StatusBadRequest)
}

// decodePayload picks the protocol by shape: a "data" key selects the legacy
// comma-joined form, anything else must be a canonical typed record. A non-nil
// echo slice carries the raw legacy tokens for the confirmation reply.
func decodePayload(body []byte) (domain.SpeedRecord, []string, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return domain.SpeedRecord{}, nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if raw, ok := probe["data"]; ok {
		var line string
		if err := json.Unmarshal(raw, &line); err != nil {
			return domain.SpeedRecord{}, nil, fmt.Errorf("%w: data is not a string", ErrMalformedPayload)
		}
		return decodeLegacy(line)
	}
	return decodeCurrent(body)
}

// decodeLegacy enforces exactly the validation the legacy protocol always had:
// the data string must split into four comma-separated fields. The timestamp
// passes through verbatim; the metrics must parse as numbers because the store
// columns are numeric.
func decodeLegacy(line string) (domain.SpeedRecord, []string, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 4 {
		return domain.SpeedRecord{}, nil, fmt.Errorf("%w: data splits into %d fields, want 4", ErrMalformedPayload, len(parts))
	}

	values := make([]float64, 3)
	for i, name := range []string{"ping", "download", "upload"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return domain.SpeedRecord{}, nil, fmt.Errorf("%w: %s %q is not numeric", ErrMalformedPayload, name, parts[i+1])
		}
		values[i] = v
	}

	rec := domain.SpeedRecord{
		Timestamp:    parts[0],
		PingMs:       values[0],
		DownloadMbps: values[1],
		UploadMbps:   values[2],
	}
	return rec, parts, nil
}

func decodeCurrent(body []byte) (domain.SpeedRecord, []string, error) {
	var p struct {
		Timestamp *string  `json:"timestamp"`
		Ping      *float64 `json:"ping"`
		Download  *float64 `json:"download"`
		Upload    *float64 `json:"upload"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &p); err != nil {
		return domain.SpeedRecord{}, nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Timestamp == nil || p.Ping == nil || p.Download == nil || p.Upload == nil {
		return domain.SpeedRecord{}, nil, fmt.Errorf("%w: missing required fields", ErrMalformedPayload)
	}

	rec := domain.SpeedRecord{
		Timestamp:    *p.Timestamp,
		PingMs:       *p.Ping,
		DownloadMbps: *p.Download,
		UploadMbps:   *p.Upload,
	}
	if err := rec.Validate(); err != nil {
		return domain.SpeedRecord{}, nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return rec, nil, nil
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
