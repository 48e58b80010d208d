package ports

import "github.com/k1832/speedtest-logger/internal/domain"

// Store is the append-only log of speed records. InsertAtTop places the record
// directly below the fixed header row, so the newest record is always first.
// Rows are never updated or deleted; duplicate records produce duplicate rows.
//
// Implementations must serialize concurrent InsertAtTop calls themselves. The
// ingestion handler performs no locking of its own.
type Store interface {
	InsertAtTop(rec domain.SpeedRecord) error
	Name() string
}
