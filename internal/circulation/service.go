// internal/circulation/service.go
package circulation

import (
	"context"

	"github.com/google/uuid"
)

// PenaltySummary carries both penalty figures for one member. Accrued is
// what has already been assessed at close time; OwedNow is what would be
// assessed if every currently open late loan were returned today. The two
// are independent and must not be conflated.
type PenaltySummary struct {
	Accrued float64 `json:"accumulated_penalty"`
	OwedNow float64 `json:"owed_if_returned_today"`
}

// Service is the lifecycle engine: it creates and closes loans while
// keeping document availability, member loan counters, and penalty state
// consistent, and answers availability and history queries.
type Service interface {
	CreateLoan(ctx context.Context, memberID, documentID uuid.UUID) (*Loan, error)
	CloseLoan(ctx context.Context, loanID string) error
	PurgeLoan(ctx context.Context, loanID string) error

	IsDocumentBorrowed(ctx context.Context, documentID uuid.UUID) (bool, error)
	CurrentLoans(ctx context.Context) ([]*Loan, error)
	LateLoans(ctx context.Context) ([]*Loan, error)
	AllLoans(ctx context.Context) ([]*Loan, error)
	MemberLoans(ctx context.Context, memberID uuid.UUID) ([]*Loan, error)
	ActiveLoanCount(ctx context.Context, memberID uuid.UUID) (int, error)
	PenaltySummaryFor(ctx context.Context, memberID uuid.UUID) (*PenaltySummary, error)
}
