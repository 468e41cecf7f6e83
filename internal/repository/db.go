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
		`CREATE TABLE IF NOT EXISTS payees (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			payout_address TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL,
			split_preferred INTEGER NOT NULL DEFAULT 0,
			split_threshold_cents INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS balances (
			id TEXT PRIMARY KEY,
			payee_id TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			currency TEXT NOT NULL,
			earnings_date DATETIME NOT NULL,
			state TEXT NOT NULL DEFAULT 'unpaid',
			payment_id TEXT,
			FOREIGN KEY (payee_id) REFERENCES payees(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_balances_payee ON balances(payee_id)`,
		`CREATE INDEX IF NOT EXISTS idx_balances_state ON balances(state)`,
		`CREATE INDEX IF NOT EXISTS idx_balances_payment ON balances(payment_id)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			payee_id TEXT NOT NULL,
			gross_cents INTEGER NOT NULL,
			amount_cents INTEGER NOT NULL,
			platform_fee_cents INTEGER NOT NULL,
			processor_fee_cents INTEGER NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'created',
			payout_address TEXT NOT NULL,
			processor_txn_id TEXT,
			split_mode INTEGER NOT NULL DEFAULT 0,
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (payee_id) REFERENCES payees(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_payee ON payments(payee_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_state ON payments(state)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_txn ON payments(processor_txn_id)`,

		`CREATE TABLE IF NOT EXISTS split_transfers (
			payment_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			amount_cents INTEGER NOT NULL,
			state TEXT NOT NULL DEFAULT 'processing',
			processor_txn_id TEXT,
			processor_fee_cents INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (payment_id, ordinal),
			FOREIGN KEY (payment_id) REFERENCES payments(id)
		)`,

		`CREATE TABLE IF NOT EXISTS payee_notes (
			id TEXT PRIMARY KEY,
			payee_id TEXT NOT NULL,
			note TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (payee_id) REFERENCES payees(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payee_notes_payee ON payee_notes(payee_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
