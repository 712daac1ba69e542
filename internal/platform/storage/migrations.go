package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schemaVersion = 1

// Statements are written to run unchanged on sqlite and postgres.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		genre TEXT NOT NULL,
		kind TEXT NOT NULL,
		available BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		document_id TEXT PRIMARY KEY REFERENCES documents(id),
		isbn TEXT NOT NULL UNIQUE,
		page_count INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS magazines (
		document_id TEXT PRIMARY KEY REFERENCES documents(id),
		issue_number INTEGER NOT NULL,
		periodicity TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		surname TEXT NOT NULL,
		penalty_tier INTEGER NOT NULL DEFAULT 0,
		accumulated_penalty DOUBLE PRECISION NOT NULL DEFAULT 0,
		open_loan_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		member_id TEXT NOT NULL REFERENCES members(id),
		borrow_date TEXT NOT NULL,
		expected_return_date TEXT NOT NULL,
		return_date TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_open_document
		ON loans(document_id) WHERE return_date IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_loans_member ON loans(member_id)`,
	// Single-row counter for loan codes, bumped under the same transaction
	// as the loan insert.
	`CREATE TABLE IF NOT EXISTS loan_seq (value INTEGER NOT NULL)`,
	`INSERT INTO loan_seq(value)
		SELECT 0 WHERE NOT EXISTS (SELECT 1 FROM loan_seq)`,
}

func migrate(db *sqlx.DB) error {
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`,
	); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.Get(&current,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range migrations {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(tx.Rebind(
		`INSERT INTO schema_migrations(version) VALUES(?)`), schemaVersion,
	); err != nil {
		return err
	}
	return tx.Commit()
}
