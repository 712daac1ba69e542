// internal/circulation/implementation.go
package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"libman/internal/catalog"
	"libman/internal/fault"
	"libman/internal/membership"
	"libman/internal/platform/locking"
	"libman/internal/platform/storage"
)

type service struct {
	db        *storage.DB
	loans     Store
	documents catalog.Store
	members   membership.Store
	locks     *locking.Keyed
	tracer    trace.Tracer
	log       *zap.Logger
	now       func() time.Time
}

// Option customizes the engine at construction.
type Option func(*service)

// WithClock replaces the wall clock. Tests use it to pin "today".
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService wires the lifecycle engine over the shared database handle.
func NewService(db *storage.DB, log *zap.Logger, opts ...Option) Service {
	s := &service{
		db:     db,
		locks:  locking.NewKeyed(),
		tracer: otel.Tracer("libman/circulation"),
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateLoan opens a loan for the member on the document. Preconditions
// are checked in a fixed order inside one transaction, so the first
// failing rule determines the error the caller sees:
//
//  1. member exists
//  2. document exists
//  3. no open loan already holds the document
//  4. member holds fewer than MaxBorrowsPerMember open loans
//  5. member is not suspended or banned
//  6. member holds no overdue open loan
//
// The per-key locks serialize concurrent attempts on the same document or
// member so the loser of a race observes the winner's open loan rather
// than a retryable serialization failure.
func (s *service) CreateLoan(ctx context.Context, memberID, documentID uuid.UUID) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.create_loan",
		trace.WithAttributes(
			attribute.String("member.id", memberID.String()),
			attribute.String("document.id", documentID.String()),
		))
	defer span.End()

	unlock := s.locks.Lock(documentID.String(), memberID.String())
	defer unlock()

	today := civilDate(s.now())
	var loan *Loan
	err := s.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		member, err := s.members.Get(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if _, err := s.documents.Get(ctx, tx, documentID); err != nil {
			return err
		}

		held, err := s.loans.HasOpenLoanForDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		if held {
			return fault.Conflict(fault.CodeItemUnavailable, "document is already on loan")
		}

		open, err := s.loans.CountOpenForMember(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if open >= MaxBorrowsPerMember {
			return fault.Denied(fault.CodeBorrowLimitReached, "member holds the maximum number of open loans")
		}

		if member.PenaltyTier >= membership.TierSuspended {
			return fault.Denied(fault.CodeMemberSuspended, "member is suspended or banned")
		}

		overdue, err := s.loans.HasOverdueOpenLoan(ctx, tx, memberID, today)
		if err != nil {
			return err
		}
		if overdue {
			return fault.Denied(fault.CodeHasOverdueItems, "member has overdue items out")
		}

		code, err := s.loans.NextCode(ctx, tx)
		if err != nil {
			return err
		}
		loan = &Loan{
			ID:                 code,
			DocumentID:         documentID,
			MemberID:           memberID,
			BorrowDate:         today,
			ExpectedReturnDate: today.AddDate(0, 0, LoanPeriodDays),
		}
		if err := s.loans.Insert(ctx, tx, loan); err != nil {
			return err
		}
		if err := s.documents.SetAvailability(ctx, tx, documentID, false); err != nil {
			return err
		}
		return s.members.IncrementOpenLoans(ctx, tx, memberID)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("loan.id", loan.ID))
	s.log.Info("loan created",
		zap.String("loan_id", loan.ID),
		zap.String("member_id", memberID.String()),
		zap.String("document_id", documentID.String()),
		zap.Time("expected_return", loan.ExpectedReturnDate))
	return loan, nil
}

// CloseLoan returns the document. A late return assesses a penalty on the
// member and recomputes the tier from the new running total. Closing an
// already-closed loan is refused.
func (s *service) CloseLoan(ctx context.Context, loanID string) error {
	ctx, span := s.tracer.Start(ctx, "circulation.close_loan",
		trace.WithAttributes(attribute.String("loan.id", loanID)))
	defer span.End()

	// The loan id alone does not identify the document and member keys to
	// lock, so peek first; the transaction re-reads under its own
	// isolation.
	peek, err := s.loans.Get(ctx, s.db, loanID)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(peek.DocumentID.String(), peek.MemberID.String())
	defer unlock()

	today := civilDate(s.now())
	var assessed float64
	err = s.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		loan, err := s.loans.Get(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan.Returned() {
			return fault.Denied(fault.CodeAlreadyReturned, "loan is already closed")
		}

		if late := loan.DaysLate(today); late > 0 {
			member, err := s.members.Get(ctx, tx, loan.MemberID)
			if err != nil {
				return err
			}
			assessed = float64(late) * PenaltyPerDay
			total := member.AccumulatedPenalty + assessed
			if err := s.members.SetPenalty(ctx, tx, loan.MemberID, total, TierFor(total)); err != nil {
				return err
			}
		}

		if err := s.loans.SetReturnDate(ctx, tx, loanID, today); err != nil {
			return err
		}
		if err := s.documents.SetAvailability(ctx, tx, loan.DocumentID, true); err != nil {
			return err
		}
		return s.members.DecrementOpenLoans(ctx, tx, loan.MemberID)
	})
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.Float64("penalty.assessed", assessed))
	s.log.Info("loan closed",
		zap.String("loan_id", loanID),
		zap.Float64("penalty_assessed", assessed))
	return nil
}

// PurgeLoan erases a loan from the record entirely. An open loan is
// unwound first (document freed, member counter decremented) but no
// penalty is ever assessed on a purge, late or not.
func (s *service) PurgeLoan(ctx context.Context, loanID string) error {
	ctx, span := s.tracer.Start(ctx, "circulation.purge_loan",
		trace.WithAttributes(attribute.String("loan.id", loanID)))
	defer span.End()

	peek, err := s.loans.Get(ctx, s.db, loanID)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(peek.DocumentID.String(), peek.MemberID.String())
	defer unlock()

	err = s.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		loan, err := s.loans.Get(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if !loan.Returned() {
			if err := s.documents.SetAvailability(ctx, tx, loan.DocumentID, true); err != nil {
				return err
			}
			if err := s.members.DecrementOpenLoans(ctx, tx, loan.MemberID); err != nil {
				return err
			}
		}
		return s.loans.Delete(ctx, tx, loanID)
	})
	if err != nil {
		return err
	}

	s.log.Info("loan purged", zap.String("loan_id", loanID))
	return nil
}

// IsDocumentBorrowed answers from the loan ledger, not the cached flag.
// The exists-check and the ledger read share one transaction so they see
// the same snapshot.
func (s *service) IsDocumentBorrowed(ctx context.Context, documentID uuid.UUID) (bool, error) {
	var borrowed bool
	err := s.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.documents.Get(ctx, tx, documentID); err != nil {
			return err
		}
		held, err := s.loans.HasOpenLoanForDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		borrowed = held
		return nil
	})
	return borrowed, err
}

func (s *service) CurrentLoans(ctx context.Context) ([]*Loan, error) {
	return s.loans.List(ctx, s.db, Filter{OpenOnly: true})
}

func (s *service) LateLoans(ctx context.Context) ([]*Loan, error) {
	today := civilDate(s.now())
	return s.loans.List(ctx, s.db, Filter{LateAsOf: &today})
}

func (s *service) AllLoans(ctx context.Context) ([]*Loan, error) {
	return s.loans.List(ctx, s.db, Filter{})
}

func (s *service) MemberLoans(ctx context.Context, memberID uuid.UUID) ([]*Loan, error) {
	if _, err := s.members.Get(ctx, s.db, memberID); err != nil {
		return nil, err
	}
	return s.loans.List(ctx, s.db, Filter{MemberID: &memberID})
}

func (s *service) ActiveLoanCount(ctx context.Context, memberID uuid.UUID) (int, error) {
	if _, err := s.members.Get(ctx, s.db, memberID); err != nil {
		return 0, err
	}
	return s.loans.CountOpenForMember(ctx, s.db, memberID)
}

// PenaltySummaryFor reports the member's assessed total alongside what a
// same-day return of every open late loan would add. Both figures come
// from one transaction: a close committing between the two reads would
// otherwise move a penalty out of OwedNow before it appears in Accrued.
func (s *service) PenaltySummaryFor(ctx context.Context, memberID uuid.UUID) (*PenaltySummary, error) {
	today := civilDate(s.now())
	var summary *PenaltySummary
	err := s.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		member, err := s.members.Get(ctx, tx, memberID)
		if err != nil {
			return err
		}
		late, err := s.loans.List(ctx, tx, Filter{MemberID: &memberID, LateAsOf: &today})
		if err != nil {
			return err
		}
		summary = &PenaltySummary{Accrued: member.AccumulatedPenalty}
		for _, loan := range late {
			summary.OwedNow += float64(loan.DaysLate(today)) * PenaltyPerDay
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}
