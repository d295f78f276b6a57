package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			name TEXT NOT NULL,
			file_hash TEXT UNIQUE NOT NULL,
			record_count INTEGER NOT NULL,
			row_errors INTEGER NOT NULL DEFAULT 0,
			ingested_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_datasets_source ON datasets(source)`,

		`CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			dataset_id TEXT NOT NULL,
			source TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			period_start DATETIME NOT NULL,
			period_end DATETIME NOT NULL,
			rate REAL NOT NULL DEFAULT 0,
			amount REAL NOT NULL DEFAULT 0,
			quantity REAL NOT NULL DEFAULT 0,
			unit TEXT NOT NULL DEFAULT '',
			charge_code TEXT NOT NULL DEFAULT '',
			invoice_id TEXT NOT NULL DEFAULT '',
			terms_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			activation_date DATETIME,
			ref_line INTEGER NOT NULL,
			FOREIGN KEY (dataset_id) REFERENCES datasets(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_dataset ON records(dataset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_source ON records(source)`,
		`CREATE INDEX IF NOT EXISTS idx_records_key ON records(customer_id, service_id)`,

		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			truncated INTEGER NOT NULL DEFAULT 0,
			entity_count INTEGER NOT NULL,
			case_count INTEGER NOT NULL,
			total_recoverable REAL NOT NULL,
			total_overbilled REAL NOT NULL,
			summary_json TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS findings (
			id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			period_start DATETIME NOT NULL,
			period_end DATETIME NOT NULL,
			financial_impact REAL NOT NULL,
			confidence REAL NOT NULL,
			priority TEXT NOT NULL,
			merged_count INTEGER NOT NULL DEFAULT 1,
			evidence_json TEXT NOT NULL,
			description TEXT NOT NULL,
			PRIMARY KEY (run_id, id),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_findings_kind ON findings(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_findings_priority ON findings(priority)`,
		`CREATE INDEX IF NOT EXISTS idx_findings_customer ON findings(customer_id)`,

		`CREATE TABLE IF NOT EXISTS cases (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			customer_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			total_impact REAL NOT NULL,
			finding_count INTEGER NOT NULL,
			max_priority TEXT NOT NULL,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_customer ON cases(customer_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
