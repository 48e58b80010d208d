package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/k1832/speedtest-logger/internal/domain"
	"github.com/k1832/speedtest-logger/internal/ports"
)

// csvHeader is fixed: the offline analysis tooling matches these column names
// exactly.
var csvHeader = []string{"timestamp (UTC)", "ping (ms)", "download (Mbps)", "upload (Mbps)"}

// CSVStore is an append-only CSV log with the newest record directly below the
// header row. An insert rewrites the file through a temp file and rename, so a
// crash mid-insert leaves the previous contents intact. The mutex serializes
// concurrent writers; without it two inserts could interleave the
// read-shift-write sequence and lose a row.
type CSVStore struct {
	mu   sync.Mutex
	path string
}

func NewCSVStore(path string) (*CSVStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &CSVStore{path: path}
	if err := s.bootstrap(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CSVStore) Name() string { return "csv" }

func (s *CSVStore) bootstrap() error {
	rows, err := s.readAll()
	if errors.Is(err, os.ErrNotExist) {
		return s.writeAll(nil)
	}
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return s.writeAll(nil)
	}
	return verifyHeader(rows[0])
}

// InsertAtTop appends rec as the new second row, shifting every existing data
// row down by one. Existing rows are never modified.
func (s *CSVStore) InsertAtTop(rec domain.SpeedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("csv store read: %w", err)
	}

	var data [][]string
	if len(rows) > 0 {
		if err := verifyHeader(rows[0]); err != nil {
			return err
		}
		data = rows[1:]
	}

	out := make([][]string, 0, len(data)+1)
	out = append(out, rowFromRecord(rec))
	out = append(out, data...)

	return s.writeAll(out)
}

// Rows reports the number of data rows (header excluded).
func (s *CSVStore) Rows() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return len(rows) - 1, nil
}

func (s *CSVStore) readAll() ([][]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	return r.ReadAll()
}

func (s *CSVStore) writeAll(data [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return err
	}
	for _, row := range data {
		if err := w.Write(row); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func verifyHeader(row []string) error {
	if len(row) != len(csvHeader) {
		return fmt.Errorf("csv store: header has %d columns, want %d", len(row), len(csvHeader))
	}
	for i, col := range csvHeader {
		if row[i] != col {
			return fmt.Errorf("csv store: header column %d is %q, want %q", i, row[i], col)
		}
	}
	return nil
}

func rowFromRecord(rec domain.SpeedRecord) []string {
	return []string{
		rec.Timestamp,
		strconv.FormatFloat(rec.PingMs, 'f', -1, 64),
		strconv.FormatFloat(rec.DownloadMbps, 'f', -1, 64),
		strconv.FormatFloat(rec.UploadMbps, 'f', -1, 64),
	}
}

var _ ports.Store = (*CSVStore)(nil)
