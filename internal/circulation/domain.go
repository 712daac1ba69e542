// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"
)

const (
	// MaxBorrowsPerMember caps the open loans one member may hold.
	MaxBorrowsPerMember = 5
	// PenaltyPerDay is the amount assessed per day a return is late.
	PenaltyPerDay = 0.5
	// LoanPeriodDays is the fixed loan period.
	LoanPeriodDays = 14

	loanCodePrefix = "BR"
)

// Loan records one document lent to one member over a date range. A loan
// with a nil ReturnDate is open. At most one open loan exists per document.
type Loan struct {
	ID                 string     `json:"id"`
	DocumentID         uuid.UUID  `json:"document_id"`
	MemberID           uuid.UUID  `json:"member_id"`
	BorrowDate         time.Time  `json:"borrow_date"`
	ExpectedReturnDate time.Time  `json:"expected_return_date"`
	ReturnDate         *time.Time `json:"return_date,omitempty"`
}

// Returned reports whether the loan has been closed.
func (l Loan) Returned() bool {
	return l.ReturnDate != nil
}

// Overdue reports whether the loan ran past its expected return date,
// judged at the return date for closed loans and at today for open ones.
func (l Loan) Overdue(today time.Time) bool {
	check := civilDate(today)
	if l.ReturnDate != nil {
		check = civilDate(*l.ReturnDate)
	}
	return check.After(l.ExpectedReturnDate)
}

// DaysLate returns how many whole days past the expected return date the
// given day is, floored at zero.
func (l Loan) DaysLate(today time.Time) int {
	late := daysBetween(l.ExpectedReturnDate, civilDate(today))
	if late < 0 {
		return 0
	}
	return late
}

// civilDate truncates t to its UTC calendar day. Loan dates are
// day-granular.
func civilDate(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole days from a to b; negative when b precedes a.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}

const dateLayout = "2006-01-02"

func formatDate(t time.Time) string {
	return civilDate(t).Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}
