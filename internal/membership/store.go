// internal/membership/store.go
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"libman/internal/fault"
)

// Store is the persistence contract for members. Methods take an
// sqlx.ExtContext so the circulation engine can call them inside its
// lifecycle transactions.
type Store struct{}

type memberRow struct {
	ID                 string  `db:"id"`
	Name               string  `db:"name"`
	Surname            string  `db:"surname"`
	PenaltyTier        int     `db:"penalty_tier"`
	AccumulatedPenalty float64 `db:"accumulated_penalty"`
	OpenLoanCount      int     `db:"open_loan_count"`
}

func (r memberRow) toDomain() (*Member, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse member id %q: %w", r.ID, err)
	}
	return &Member{
		ID:                 id,
		Name:               r.Name,
		Surname:            r.Surname,
		PenaltyTier:        TierFromLevel(r.PenaltyTier),
		AccumulatedPenalty: r.AccumulatedPenalty,
		OpenLoanCount:      r.OpenLoanCount,
	}, nil
}

const selectMember = `
	SELECT id, name, surname, penalty_tier, accumulated_penalty, open_loan_count
	  FROM members`

// Get fetches one member.
func (Store) Get(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Member, error) {
	var row memberRow
	query := ext.Rebind(selectMember + ` WHERE id = ?`)
	if err := sqlx.GetContext(ctx, ext, &row, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("member", id.String())
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return row.toDomain()
}

// List returns every member ordered by surname.
func (Store) List(ctx context.Context, ext sqlx.ExtContext) ([]*Member, error) {
	var rows []memberRow
	if err := sqlx.SelectContext(ctx, ext, &rows,
		selectMember+` ORDER BY surname, name, id`); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	members := make([]*Member, 0, len(rows))
	for _, row := range rows {
		m, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

// Insert writes a new member row.
func (Store) Insert(ctx context.Context, ext sqlx.ExtContext, m *Member) error {
	_, err := ext.ExecContext(ctx, ext.Rebind(
		`INSERT INTO members (id, name, surname, penalty_tier, accumulated_penalty, open_loan_count)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		m.ID.String(), m.Name, m.Surname, int(m.PenaltyTier), m.AccumulatedPenalty, m.OpenLoanCount)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// Save persists name, surname, and tier.
func (Store) Save(ctx context.Context, ext sqlx.ExtContext, m *Member) error {
	res, err := ext.ExecContext(ctx, ext.Rebind(
		`UPDATE members SET name = ?, surname = ?, penalty_tier = ? WHERE id = ?`),
		m.Name, m.Surname, int(m.PenaltyTier), m.ID.String())
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fault.NotFound("member", m.ID.String())
	}
	return nil
}

// Delete removes a member row. The caller verifies no loan references the
// member first.
func (Store) Delete(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) error {
	res, err := ext.ExecContext(ctx, ext.Rebind(
		`DELETE FROM members WHERE id = ?`), id.String())
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fault.NotFound("member", id.String())
	}
	return nil
}

// IncrementOpenLoans bumps the open-loan counter by one.
func (Store) IncrementOpenLoans(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) error {
	res, err := ext.ExecContext(ctx, ext.Rebind(
		`UPDATE members SET open_loan_count = open_loan_count + 1 WHERE id = ?`),
		id.String())
	if err != nil {
		return fmt.Errorf("increment open loans: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fault.NotFound("member", id.String())
	}
	return nil
}

// DecrementOpenLoans lowers the open-loan counter by one. A counter that
// is already zero means the ledger and the counter have diverged; that is
// surfaced as an invariant violation rather than clamped.
func (Store) DecrementOpenLoans(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) error {
	res, err := ext.ExecContext(ctx, ext.Rebind(
		`UPDATE members SET open_loan_count = open_loan_count - 1
		  WHERE id = ? AND open_loan_count > 0`),
		id.String())
	if err != nil {
		return fmt.Errorf("decrement open loans: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fault.Invariant(
			fmt.Sprintf("open loan count for member %s would go negative", id))
	}
	return nil
}

// SetPenalty stores the recomputed accumulated penalty and tier.
func (Store) SetPenalty(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, accumulated float64, tier PenaltyTier) error {
	res, err := ext.ExecContext(ctx, ext.Rebind(
		`UPDATE members SET accumulated_penalty = ?, penalty_tier = ? WHERE id = ?`),
		accumulated, int(tier), id.String())
	if err != nil {
		return fmt.Errorf("set penalty: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fault.NotFound("member", id.String())
	}
	return nil
}
