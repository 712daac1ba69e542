// Package storage owns the relational store handle: opening a driver,
// applying schema migrations, and running transactions behind a circuit
// breaker.
//
// Queries throughout the repository are written with '?' placeholders and
// rebound per driver via sqlx, so the same statement text serves both the
// embedded sqlite store and postgres.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"libman/internal/fault"
)

// DB wraps the sqlx handle with the transaction runner used by all
// mutating operations.
type DB struct {
	*sqlx.DB

	breaker *gobreaker.CircuitBreaker
	txOpts  *sql.TxOptions
	log     *zap.Logger
}

// Open connects to the store named by driver ("sqlite" or "postgres"),
// applies migrations, and returns the shared handle.
func Open(driver, dsn string, log *zap.Logger) (*DB, error) {
	var (
		driverName string
		txOpts     *sql.TxOptions
	)
	switch driver {
	case "sqlite":
		driverName = "sqlite"
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
		}
		// sqlite transactions are serializable already; requesting an
		// isolation level the driver does not know would fail BeginTx.
		txOpts = nil
	case "postgres":
		driverName = "postgres"
		txOpts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}

	sqlDB, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if driver == "sqlite" {
		// Single writer; avoids SQLITE_BUSY under concurrent mutations.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "storage",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Business refusals travel through the breaker untouched; only
		// store-level failures count against it.
		IsSuccessful: func(err error) bool {
			return err == nil || fault.KindOf(err) != fault.KindUnavailable
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("storage breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &DB{DB: sqlDB, breaker: breaker, txOpts: txOpts, log: log}, nil
}

// WithinTx runs fn inside one store transaction. The transaction commits
// only when fn returns nil; any error rolls the whole unit back. Store
// failures (begin, commit, breaker open) surface as fault.Unavailable and
// the caller may retry the operation from scratch.
func (d *DB) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	_, err := d.breaker.Execute(func() (any, error) {
		tx, err := d.DB.BeginTxx(ctx, d.txOpts)
		if err != nil {
			return nil, fault.Unavailable("begin transaction", err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fault.Unavailable("commit transaction", err)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fault.Unavailable("storage circuit open", err)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique-constraint failure,
// for either driver. The text check is a fallback for errors the typed
// paths do not cover.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
