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

	// One connection serializes writers; a transaction holds it until commit.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS offers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			payout TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS publishers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			payment_method TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Leads deliberately carry no foreign keys: rows pointing at unknown
		// offers or publishers are skipped at aggregation time.
		`CREATE TABLE IF NOT EXISTS leads (
			id TEXT PRIMARY KEY,
			publisher_id TEXT NOT NULL,
			offer_id TEXT NOT NULL,
			date TEXT NOT NULL,
			count INTEGER NOT NULL CHECK (count >= 0),
			settled_payment_id TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_date ON leads(date)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_publisher ON leads(publisher_id)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_settled ON leads(settled_payment_id)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			publisher_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			payment_method TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			paid_at DATETIME,
			exchange_rate TEXT,
			final_amount TEXT,
			final_currency TEXT,
			notes TEXT NOT NULL DEFAULT '',
			failure_reason TEXT,
			period_from TEXT NOT NULL,
			period_to TEXT NOT NULL,
			lead_count INTEGER NOT NULL DEFAULT 0,
			fraud_flagged INTEGER NOT NULL DEFAULT 0,
			fraud_reason TEXT,
			fraud_checked_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_publisher ON payments(publisher_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_created_at ON payments(created_at)`,

		`CREATE TABLE IF NOT EXISTS payment_items (
			payment_id TEXT NOT NULL,
			lead_id TEXT NOT NULL,
			offer_id TEXT NOT NULL,
			count INTEGER NOT NULL,
			payout TEXT NOT NULL,
			subtotal TEXT NOT NULL,
			FOREIGN KEY (payment_id) REFERENCES payments(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_items_payment ON payment_items(payment_id)`,

		`CREATE TABLE IF NOT EXISTS rate_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			usd_to_ves TEXT,
			usd_to_cop TEXT,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS lead_imports (
			id TEXT PRIMARY KEY,
			format TEXT NOT NULL,
			file_hash TEXT UNIQUE NOT NULL,
			record_count INTEGER NOT NULL,
			imported_at DATETIME NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}

	return nil
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
