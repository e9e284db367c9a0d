package db

import (
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"github.com/karasz/televerifier/coring"
)

// SQLiteBaser is a minimal Baser backed by SQLite. Spec.md §1 treats the
// KEL as an external collaborator the verifier core only reads from; this
// gives the daemon and tests a concrete store to seed KEL fixtures into,
// mirroring SQLiteReger's table-per-concern layout.
type SQLiteBaser struct{ db *sql.DB }

// OpenSQLiteBaser opens/creates a SQLite-backed Baser at dsn.
func OpenSQLiteBaser(dsn string) (*SQLiteBaser, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := sqldb.Ping(); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	schema := `
CREATE TABLE IF NOT EXISTS kel (
  pre TEXT NOT NULL,
  sn  INTEGER NOT NULL,
  raw BLOB NOT NULL,
  PRIMARY KEY(pre, sn)
);
`
	if _, err := sqldb.Exec(schema); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return &SQLiteBaser{db: sqldb}, nil
}

// Close releases the underlying database handle.
func (b *SQLiteBaser) Close() error { return b.db.Close() }

// PutEvt seeds a key event, used by tests and by an ingestion path that
// keeps the KEL mirror current.
func (b *SQLiteBaser) PutEvt(pre string, sn uint64, raw []byte) error {
	_, err := b.db.Exec(
		`INSERT INTO kel(pre, sn, raw) VALUES(?, ?, ?)
		 ON CONFLICT(pre, sn) DO UPDATE SET raw=excluded.raw`, pre, sn, raw)
	return err
}

// KelLast implements Baser.
func (b *SQLiteBaser) KelLast(pre string) (uint64, string, []byte, bool, error) {
	var sn uint64
	var raw []byte
	err := b.db.QueryRow(`SELECT sn, raw FROM kel WHERE pre=? ORDER BY sn DESC LIMIT 1`, pre).Scan(&sn, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil, false, nil
	}
	if err != nil {
		return 0, "", nil, false, err
	}
	return sn, coring.NewDiger(raw).Qb64(), raw, true, nil
}

// KelEvt implements Baser.
func (b *SQLiteBaser) KelEvt(pre string, sn uint64) ([]byte, bool, error) {
	var raw []byte
	err := b.db.QueryRow(`SELECT raw FROM kel WHERE pre=? AND sn=?`, pre, sn).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

var _ Baser = (*SQLiteBaser)(nil)
