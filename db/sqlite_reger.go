package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/karasz/televerifier/coring"
)

// SQLiteReger is a Reger backed by SQLite, one table per storage concern —
// the same per-concern-table layout sqlite_store.go uses for logs/tail/
// anchors, generalized from a single hash-chained log to the TEL's event/
// anchor/backer-receipt/state/escrow tables.
type SQLiteReger struct{ db *sql.DB }

// OpenSQLiteReger opens/creates a SQLite-backed Reger at dsn.
func OpenSQLiteReger(dsn string) (*SQLiteReger, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := sqldb.Ping(); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := sqldb.Exec(p); err != nil {
			_ = sqldb.Close()
			return nil, fmt.Errorf("set %s: %w", p, err)
		}
	}
	schema := `
CREATE TABLE IF NOT EXISTS tel (
  pre  TEXT NOT NULL,
  sn   INTEGER NOT NULL,
  raw  BLOB NOT NULL,
  PRIMARY KEY(pre, sn)
);
CREATE TABLE IF NOT EXISTS anc (
  pre    TEXT NOT NULL,
  sn     INTEGER NOT NULL,
  seqner BLOB NOT NULL,
  diger  BLOB NOT NULL,
  PRIMARY KEY(pre, sn)
);
CREATE TABLE IF NOT EXISTS tib (
  pre TEXT NOT NULL,
  sn  INTEGER NOT NULL,
  idx INTEGER NOT NULL,
  sig BLOB NOT NULL,
  PRIMARY KEY(pre, sn, idx)
);
CREATE TABLE IF NOT EXISTS bak (
  regk TEXT NOT NULL,
  sn   INTEGER NOT NULL,
  baks TEXT NOT NULL,
  PRIMARY KEY(regk, sn)
);
CREATE TABLE IF NOT EXISTS states (
  pre TEXT PRIMARY KEY,
  raw BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS tets (
  pre TEXT NOT NULL,
  sn  INTEGER NOT NULL,
  dts TEXT NOT NULL,
  PRIMARY KEY(pre, sn)
);
CREATE TABLE IF NOT EXISTS escrows (
  ns    TEXT NOT NULL,
  rowid_ INTEGER PRIMARY KEY AUTOINCREMENT,
  pre   TEXT NOT NULL,
  sn    INTEGER NOT NULL,
  dig   TEXT NOT NULL,
  raw   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS escrows_ns_idx ON escrows(ns, rowid_);
CREATE UNIQUE INDEX IF NOT EXISTS escrows_ns_pre_sn_uq ON escrows(ns, pre, sn);
`
	if _, err := sqldb.Exec(schema); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return &SQLiteReger{db: sqldb}, nil
}

// Close releases the underlying database handle.
func (r *SQLiteReger) Close() error { return r.db.Close() }

func ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// PutEvt implements Reger.
func (r *SQLiteReger) PutEvt(pre string, sn uint64, raw []byte) error {
	c, cancel := ctx()
	defer cancel()
	_, err := r.db.ExecContext(c,
		`INSERT INTO tel(pre, sn, raw) VALUES(?, ?, ?)
		 ON CONFLICT(pre, sn) DO UPDATE SET raw=excluded.raw`, pre, sn, raw)
	return err
}

// GetEvt implements Reger.
func (r *SQLiteReger) GetEvt(pre string, sn uint64) ([]byte, bool, error) {
	var raw []byte
	err := r.db.QueryRow(`SELECT raw FROM tel WHERE pre=? AND sn=?`, pre, sn).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// LastEvt implements Reger.
func (r *SQLiteReger) LastEvt(pre string) (uint64, []byte, bool, error) {
	var sn uint64
	var raw []byte
	err := r.db.QueryRow(`SELECT sn, raw FROM tel WHERE pre=? ORDER BY sn DESC LIMIT 1`, pre).Scan(&sn, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	return sn, raw, true, nil
}

// PutAnchor implements Reger.
func (r *SQLiteReger) PutAnchor(pre string, sn uint64, seqner coring.Seqner, diger coring.Diger) error {
	c, cancel := ctx()
	defer cancel()
	_, err := r.db.ExecContext(c,
		`INSERT INTO anc(pre, sn, seqner, diger) VALUES(?, ?, ?, ?)
		 ON CONFLICT(pre, sn) DO UPDATE SET seqner=excluded.seqner, diger=excluded.diger`,
		pre, sn, seqner.Qb64b(), diger.Qb64b())
	return err
}

// GetAnchor implements Reger.
func (r *SQLiteReger) GetAnchor(pre string, sn uint64) (coring.Seqner, coring.Diger, bool, error) {
	var seqnerB, digerB []byte
	err := r.db.QueryRow(`SELECT seqner, diger FROM anc WHERE pre=? AND sn=?`, pre, sn).Scan(&seqnerB, &digerB)
	if errors.Is(err, sql.ErrNoRows) {
		return coring.Seqner{}, coring.Diger{}, false, nil
	}
	if err != nil {
		return coring.Seqner{}, coring.Diger{}, false, err
	}
	seqner, err := coring.ParseSeqner(string(seqnerB))
	if err != nil {
		return coring.Seqner{}, coring.Diger{}, false, err
	}
	diger, err := coring.ParseDiger(string(digerB))
	if err != nil {
		return coring.Seqner{}, coring.Diger{}, false, err
	}
	return seqner, diger, true, nil
}

// PutBackerSigs implements Reger.
func (r *SQLiteReger) PutBackerSigs(pre string, sn uint64, sigers []coring.Siger) error {
	c, cancel := ctx()
	defer cancel()
	tx, err := r.db.BeginTx(c, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, sg := range sigers {
		if _, err := tx.ExecContext(c,
			`INSERT INTO tib(pre, sn, idx, sig) VALUES(?, ?, ?, ?)
			 ON CONFLICT(pre, sn, idx) DO UPDATE SET sig=excluded.sig`,
			pre, sn, sg.Index, sg.Sig); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetBackerSigs implements Reger.
func (r *SQLiteReger) GetBackerSigs(pre string, sn uint64) ([]coring.Siger, error) {
	rows, err := r.db.Query(`SELECT idx, sig FROM tib WHERE pre=? AND sn=? ORDER BY idx ASC`, pre, sn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []coring.Siger
	for rows.Next() {
		var idx int
		var sig []byte
		if err := rows.Scan(&idx, &sig); err != nil {
			return nil, err
		}
		out = append(out, coring.Siger{Index: idx, Sig: sig})
	}
	return out, rows.Err()
}

// PutBackers implements Reger.
func (r *SQLiteReger) PutBackers(regk string, sn uint64, baks []string) error {
	raw, err := coring.Encode(map[string]any{"b": anyStrings(baks)}, coring.KindJSON)
	if err != nil {
		return err
	}
	c, cancel := ctx()
	defer cancel()
	_, err = r.db.ExecContext(c,
		`INSERT INTO bak(regk, sn, baks) VALUES(?, ?, ?)
		 ON CONFLICT(regk, sn) DO UPDATE SET baks=excluded.baks`, regk, sn, string(raw))
	return err
}

// GetBackers implements Reger.
func (r *SQLiteReger) GetBackers(regk string, sn uint64) ([]string, bool, error) {
	var raw string
	err := r.db.QueryRow(`SELECT baks FROM bak WHERE regk=? AND sn=?`, regk, sn).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	ked, err := coring.Decode([]byte(raw), coring.KindJSON)
	if err != nil {
		return nil, false, err
	}
	list, _ := ked["b"].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, true, nil
}

// PutState implements Reger.
func (r *SQLiteReger) PutState(pre string, raw []byte) error {
	c, cancel := ctx()
	defer cancel()
	_, err := r.db.ExecContext(c,
		`INSERT INTO states(pre, raw) VALUES(?, ?)
		 ON CONFLICT(pre) DO UPDATE SET raw=excluded.raw`, pre, raw)
	return err
}

// GetState implements Reger.
func (r *SQLiteReger) GetState(pre string) ([]byte, bool, error) {
	var raw []byte
	err := r.db.QueryRow(`SELECT raw FROM states WHERE pre=?`, pre).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// PutFirstSeen implements Reger.
func (r *SQLiteReger) PutFirstSeen(pre string, sn uint64, iso8601 string) error {
	c, cancel := ctx()
	defer cancel()
	_, err := r.db.ExecContext(c,
		`INSERT INTO tets(pre, sn, dts) VALUES(?, ?, ?)
		 ON CONFLICT(pre, sn) DO NOTHING`, pre, sn, iso8601)
	return err
}

// GetFirstSeen implements Reger.
func (r *SQLiteReger) GetFirstSeen(pre string, sn uint64) (string, bool, error) {
	var dts string
	err := r.db.QueryRow(`SELECT dts FROM tets WHERE pre=? AND sn=?`, pre, sn).Scan(&dts)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return dts, true, nil
}

// Escrow implements Reger.
func (r *SQLiteReger) Escrow(namespace string, e EscrowEntry) error {
	c, cancel := ctx()
	defer cancel()
	_, err := r.db.ExecContext(c,
		`INSERT INTO escrows(ns, pre, sn, dig, raw) VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(ns, pre, sn) DO UPDATE SET dig=excluded.dig, raw=excluded.raw`,
		namespace, e.Pre, e.Sn, e.Dig, e.Raw)
	return err
}

// EscrowIter implements Reger.
func (r *SQLiteReger) EscrowIter(namespace string) ([]EscrowEntry, error) {
	rows, err := r.db.Query(`SELECT pre, sn, dig, raw FROM escrows WHERE ns=? ORDER BY rowid_ ASC`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EscrowEntry
	for rows.Next() {
		var e EscrowEntry
		if err := rows.Scan(&e.Pre, &e.Sn, &e.Dig, &e.Raw); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EscrowDel implements Reger.
func (r *SQLiteReger) EscrowDel(namespace string, pre string, sn uint64) error {
	c, cancel := ctx()
	defer cancel()
	_, err := r.db.ExecContext(c, `DELETE FROM escrows WHERE ns=? AND pre=? AND sn=?`, namespace, pre, sn)
	return err
}

func anyStrings(list []string) []any {
	out := make([]any, len(list))
	for i, v := range list {
		out[i] = v
	}
	return out
}

var _ Reger = (*SQLiteReger)(nil)
