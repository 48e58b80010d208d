package store

import (
	"database/sql"
	"fmt"

	"github.com/k1832/speedtest-logger/internal/domain"
	"github.com/k1832/speedtest-logger/internal/ports"
)

// PostgresStore appends records to a SQL table. The table carries a BIGSERIAL
// pos column, so newest-first ordering is ORDER BY pos DESC on the read side;
// the literal shift-rows-down mechanic only exists in the CSV store. A single
// parameterized INSERT per record leaves writer serialization to the database.
type PostgresStore struct {
	db    *sql.DB
	table string
}

func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	return &PostgresStore{db: db, table: table}
}

func (p *PostgresStore) Name() string { return "postgres" }

func (p *PostgresStore) InsertAtTop(rec domain.SpeedRecord) error {
	q := fmt.Sprintf(
		"INSERT INTO %s (ts, ping_ms, download_mbps, upload_mbps) VALUES ($1,$2,$3,$4)",
		p.table,
	)
	if _, err := p.db.Exec(q, rec.Timestamp, rec.PingMs, rec.DownloadMbps, rec.UploadMbps); err != nil {
		return fmt.Errorf("postgres store insert: %w", err)
	}
	return nil
}

var _ ports.Store = (*PostgresStore)(nil)
