package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"mailcrm/internal"
)

// DB is the run journal: an append-only record of trigger invocations and the
// products each one created. Nothing in a scan reads it back.
type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  triggerSource TEXT NOT NULL,
  success INTEGER NOT NULL,
  messageId TEXT,
  ddeCode TEXT,
  productsCreated INTEGER NOT NULL DEFAULT 0,
  skippedRows INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  durationMs INTEGER NOT NULL DEFAULT 0,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_messageId ON runs(messageId);

CREATE TABLE IF NOT EXISTS created_products (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId INTEGER NOT NULL,
  crmId INTEGER NOT NULL,
  number REAL NOT NULL,
  name TEXT NOT NULL,
  code TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(runId) REFERENCES runs(id)
);
CREATE INDEX IF NOT EXISTS idx_created_products_runId ON created_products(runId);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// InsertRun stores a run and its created products in one transaction and
// returns the run id.
func (d *DB) InsertRun(run internal.RunRecord) (int64, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
INSERT INTO runs (traceId, triggerSource, success, messageId, ddeCode, productsCreated, skippedRows, error, durationMs)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.TraceID, run.Trigger, boolToInt(run.Success), nullString(run.MessageID), nullString(run.HeaderCode),
		run.ProductsCreated, run.SkippedRows, nullString(run.Error), run.DurationMs,
	)
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if len(run.Products) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO created_products (runId, crmId, number, name, code) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer stmt.Close()
		for _, p := range run.Products {
			if _, err := stmt.Exec(runID, p.ID, p.Number, p.Name, p.Code); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// ListRuns returns the newest runs first, without their products.
func (d *DB) ListRuns(limit int) ([]internal.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(`
SELECT id, traceId, triggerSource, success, COALESCE(messageId, ''), COALESCE(ddeCode, ''),
       productsCreated, skippedRows, COALESCE(error, ''), durationMs, createdAt
FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]internal.RunRecord, 0)
	for rows.Next() {
		var run internal.RunRecord
		var success int
		if err := rows.Scan(&run.ID, &run.TraceID, &run.Trigger, &success, &run.MessageID, &run.HeaderCode,
			&run.ProductsCreated, &run.SkippedRows, &run.Error, &run.DurationMs, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.Success = success == 1
		out = append(out, run)
	}
	return out, rows.Err()
}

func (d *DB) ListRunProducts(runID int64) ([]internal.CreatedProduct, error) {
	rows, err := d.conn.Query(`SELECT crmId, number, name, code FROM created_products WHERE runId = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]internal.CreatedProduct, 0)
	for rows.Next() {
		var p internal.CreatedProduct
		if err := rows.Scan(&p.ID, &p.Number, &p.Name, &p.Code); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
