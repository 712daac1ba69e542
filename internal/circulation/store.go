// internal/circulation/store.go
package circulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"libman/internal/fault"
)

// Store is the persistence contract for the loan ledger.
type Store struct{}

type loanRow struct {
	ID                 string         `db:"id"`
	DocumentID         string         `db:"document_id"`
	MemberID           string         `db:"member_id"`
	BorrowDate         string         `db:"borrow_date"`
	ExpectedReturnDate string         `db:"expected_return_date"`
	ReturnDate         sql.NullString `db:"return_date"`
}

func (r loanRow) toDomain() (*Loan, error) {
	documentID, err := uuid.Parse(r.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("parse document id %q: %w", r.DocumentID, err)
	}
	memberID, err := uuid.Parse(r.MemberID)
	if err != nil {
		return nil, fmt.Errorf("parse member id %q: %w", r.MemberID, err)
	}
	borrowDate, err := parseDate(r.BorrowDate)
	if err != nil {
		return nil, fmt.Errorf("parse borrow date: %w", err)
	}
	expected, err := parseDate(r.ExpectedReturnDate)
	if err != nil {
		return nil, fmt.Errorf("parse expected return date: %w", err)
	}
	loan := &Loan{
		ID:                 r.ID,
		DocumentID:         documentID,
		MemberID:           memberID,
		BorrowDate:         borrowDate,
		ExpectedReturnDate: expected,
	}
	if r.ReturnDate.Valid {
		returned, err := parseDate(r.ReturnDate.String)
		if err != nil {
			return nil, fmt.Errorf("parse return date: %w", err)
		}
		loan.ReturnDate = &returned
	}
	return loan, nil
}

// NextCode reserves the next loan code. The single-row counter is bumped
// inside the caller's transaction, so the read and the loan insert it
// precedes are serialized together.
func (Store) NextCode(ctx context.Context, ext sqlx.ExtContext) (string, error) {
	var n int
	err := sqlx.GetContext(ctx, ext, &n,
		`UPDATE loan_seq SET value = value + 1 RETURNING value`)
	if err != nil {
		return "", fmt.Errorf("advance loan sequence: %w", err)
	}
	return fmt.Sprintf("%s%03d", loanCodePrefix, n), nil
}

// Insert writes a new loan row.
func (Store) Insert(ctx context.Context, ext sqlx.ExtContext, loan *Loan) error {
	var returnDate any
	if loan.ReturnDate != nil {
		returnDate = formatDate(*loan.ReturnDate)
	}
	_, err := ext.ExecContext(ctx, ext.Rebind(
		`INSERT INTO loans (id, document_id, member_id, borrow_date, expected_return_date, return_date)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		loan.ID, loan.DocumentID.String(), loan.MemberID.String(),
		formatDate(loan.BorrowDate), formatDate(loan.ExpectedReturnDate), returnDate)
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

// Get fetches one loan by code.
func (Store) Get(ctx context.Context, ext sqlx.ExtContext, id string) (*Loan, error) {
	var row loanRow
	err := sqlx.GetContext(ctx, ext, &row, ext.Rebind(
		`SELECT id, document_id, member_id, borrow_date, expected_return_date, return_date
		   FROM loans WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("loan", id)
		}
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return row.toDomain()
}

// SetReturnDate stamps the loan closed. The date, once set, is never
// unset.
func (Store) SetReturnDate(ctx context.Context, ext sqlx.ExtContext, id string, date time.Time) error {
	res, err := ext.ExecContext(ctx, ext.Rebind(
		`UPDATE loans SET return_date = ? WHERE id = ? AND return_date IS NULL`),
		formatDate(date), id)
	if err != nil {
		return fmt.Errorf("set return date: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fault.NotFound("loan", id)
	}
	return nil
}

// Delete permanently removes a loan row (administrative purge).
func (Store) Delete(ctx context.Context, ext sqlx.ExtContext, id string) error {
	res, err := ext.ExecContext(ctx, ext.Rebind(
		`DELETE FROM loans WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fault.NotFound("loan", id)
	}
	return nil
}

// HasOpenLoanForDocument answers availability from the ledger, the source
// of truth, not from the cached flag.
func (Store) HasOpenLoanForDocument(ctx context.Context, ext sqlx.ExtContext, documentID uuid.UUID) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, ext, &count, ext.Rebind(
		`SELECT COUNT(*) FROM loans WHERE document_id = ? AND return_date IS NULL`),
		documentID.String())
	if err != nil {
		return false, fmt.Errorf("count open loans for document: %w", err)
	}
	return count > 0, nil
}

// HasOverdueOpenLoan reports whether the member holds an open loan whose
// expected return date is strictly before today.
func (Store) HasOverdueOpenLoan(ctx context.Context, ext sqlx.ExtContext, memberID uuid.UUID, today time.Time) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, ext, &count, ext.Rebind(
		`SELECT COUNT(*) FROM loans
		  WHERE member_id = ? AND return_date IS NULL AND expected_return_date < ?`),
		memberID.String(), formatDate(today))
	if err != nil {
		return false, fmt.Errorf("count overdue loans for member: %w", err)
	}
	return count > 0, nil
}

// CountOpenForMember counts the member's open loans from the ledger.
func (Store) CountOpenForMember(ctx context.Context, ext sqlx.ExtContext, memberID uuid.UUID) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, ext, &count, ext.Rebind(
		`SELECT COUNT(*) FROM loans WHERE member_id = ? AND return_date IS NULL`),
		memberID.String())
	if err != nil {
		return 0, fmt.Errorf("count open loans for member: %w", err)
	}
	return count, nil
}

// Filter narrows List. Zero value lists everything.
type Filter struct {
	OpenOnly bool
	// LateAsOf keeps only open loans whose expected return date is
	// strictly before the given day.
	LateAsOf *time.Time
	MemberID *uuid.UUID
}

// List returns loans matching the filter, ordered by code.
func (Store) List(ctx context.Context, ext sqlx.ExtContext, f Filter) ([]*Loan, error) {
	ds := goqu.From("loans").Select(
		"id", "document_id", "member_id",
		"borrow_date", "expected_return_date", "return_date",
	)
	if f.OpenOnly {
		ds = ds.Where(goqu.C("return_date").IsNull())
	}
	if f.LateAsOf != nil {
		ds = ds.Where(
			goqu.C("return_date").IsNull(),
			goqu.C("expected_return_date").Lt(formatDate(*f.LateAsOf)),
		)
	}
	if f.MemberID != nil {
		ds = ds.Where(goqu.C("member_id").Eq(f.MemberID.String()))
	}
	query, args, err := ds.Order(goqu.C("id").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build loan query: %w", err)
	}

	var rows []loanRow
	if err := sqlx.SelectContext(ctx, ext, &rows, ext.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	loans := make([]*Loan, 0, len(rows))
	for _, row := range rows {
		loan, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, nil
}
