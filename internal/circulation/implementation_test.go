package circulation

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"libman/internal/catalog"
	"libman/internal/fault"
	"libman/internal/membership"
	"libman/internal/platform/storage"
)

// harness bundles the engine with direct store access and a movable
// clock. Tests advance the clock in whole days.
type harness struct {
	db      *storage.DB
	engine  Service
	catalog catalog.Service
	members membership.Service

	mu    sync.Mutex
	today time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := storage.Open("sqlite", filepath.Join(t.TempDir(), "libman.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		db:      db,
		catalog: catalog.NewService(db, zap.NewNop()),
		members: membership.NewService(db, zap.NewNop()),
		today:   time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
	}
	h.engine = NewService(db, zap.NewNop(), WithClock(h.now))
	return h
}

func (h *harness) now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.today
}

func (h *harness) advanceDays(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.today = h.today.AddDate(0, 0, n)
}

func (h *harness) addBook(t *testing.T, title, isbn string) *catalog.Document {
	t.Helper()
	doc, err := h.catalog.AddDocument(context.Background(), catalog.Document{
		Title:  title,
		Author: "Author",
		Genre:  "Fiction",
		Kind:   catalog.KindBook,
		Book:   &catalog.BookDetails{ISBN: isbn, PageCount: 200},
	})
	require.NoError(t, err)
	return doc
}

func (h *harness) addMember(t *testing.T, name string) *membership.Member {
	t.Helper()
	m, err := h.members.RegisterMember(context.Background(), name, "Tester")
	require.NoError(t, err)
	return m
}

// checkConsistency asserts the cached availability flags and open-loan
// counters agree with the loan ledger.
func (h *harness) checkConsistency(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	docs, err := h.catalog.ListDocuments(ctx)
	require.NoError(t, err)
	for _, doc := range docs {
		var open int
		require.NoError(t, h.db.GetContext(ctx, &open,
			h.db.Rebind(`SELECT COUNT(*) FROM loans WHERE document_id = ? AND return_date IS NULL`),
			doc.ID.String()))
		assert.Equal(t, open == 0, doc.Available,
			"document %s availability flag disagrees with ledger", doc.ID)
	}

	members, err := h.members.ListMembers(ctx)
	require.NoError(t, err)
	for _, m := range members {
		var open int
		require.NoError(t, h.db.GetContext(ctx, &open,
			h.db.Rebind(`SELECT COUNT(*) FROM loans WHERE member_id = ? AND return_date IS NULL`),
			m.ID.String()))
		assert.Equal(t, open, m.OpenLoanCount,
			"member %s open-loan counter disagrees with ledger", m.ID)
	}
}

func TestBorrowAndReturnOnTime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.addBook(t, "Dune", "978-0441172719")
	member := h.addMember(t, "Paul")

	loan, err := h.engine.CreateLoan(ctx, member.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "BR001", loan.ID)
	assert.Equal(t, h.now(), loan.BorrowDate)
	assert.Equal(t, h.now().AddDate(0, 0, LoanPeriodDays), loan.ExpectedReturnDate)
	assert.Nil(t, loan.ReturnDate)

	borrowed, err := h.engine.IsDocumentBorrowed(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, borrowed)
	h.checkConsistency(t)

	h.advanceDays(LoanPeriodDays)
	require.NoError(t, h.engine.CloseLoan(ctx, loan.ID))

	m, err := h.members.GetMember(ctx, member.ID)
	require.NoError(t, err)
	assert.Zero(t, m.AccumulatedPenalty)
	assert.Equal(t, membership.TierNone, m.PenaltyTier)
	assert.Zero(t, m.OpenLoanCount)

	borrowed, err = h.engine.IsDocumentBorrowed(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, borrowed)
	h.checkConsistency(t)
}

func TestLateReturnAssessesPenalty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.addBook(t, "Hyperion", "978-0553283686")
	member := h.addMember(t, "Sol")

	loan, err := h.engine.CreateLoan(ctx, member.ID, doc.ID)
	require.NoError(t, err)

	h.advanceDays(LoanPeriodDays + 6)
	require.NoError(t, h.engine.CloseLoan(ctx, loan.ID))

	m, err := h.members.GetMember(ctx, member.ID)
	require.NoError(t, err)
	assert.InDelta(t, 6*PenaltyPerDay, m.AccumulatedPenalty, 1e-9)
	assert.Equal(t, membership.TierWarning, m.PenaltyTier)
	h.checkConsistency(t)
}

func TestPenaltyAccumulatesAcrossLoans(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	member := h.addMember(t, "Brawne")

	// Two returns 10 days late each: 5.0 then 10.0 total, crossing the
	// suspension threshold on the second.
	for i := 0; i < 2; i++ {
		doc := h.addBook(t, fmt.Sprintf("Vol %d", i+1), fmt.Sprintf("isbn-%d", i+1))
		loan, err := h.engine.CreateLoan(ctx, member.ID, doc.ID)
		require.NoError(t, err)
		h.advanceDays(LoanPeriodDays + 10)
		require.NoError(t, h.engine.CloseLoan(ctx, loan.ID))
	}

	m, err := h.members.GetMember(ctx, member.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, m.AccumulatedPenalty, 1e-9)
	assert.Equal(t, membership.TierSuspended, m.PenaltyTier)

	doc := h.addBook(t, "Vol 3", "isbn-3")
	_, err = h.engine.CreateLoan(ctx, member.ID, doc.ID)
	require.Error(t, err)
	assert.Equal(t, fault.CodeMemberSuspended, fault.CodeOf(err))
	h.checkConsistency(t)
}

func TestBorrowDeniedWhenDocumentOnLoan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.addBook(t, "Solaris", "978-0156027601")
	first := h.addMember(t, "Kris")
	second := h.addMember(t, "Harey")

	_, err := h.engine.CreateLoan(ctx, first.ID, doc.ID)
	require.NoError(t, err)

	_, err = h.engine.CreateLoan(ctx, second.ID, doc.ID)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindConflict))
	assert.Equal(t, fault.CodeItemUnavailable, fault.CodeOf(err))
	h.checkConsistency(t)
}

func TestBorrowLimitEnforced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	member := h.addMember(t, "Meina")

	for i := 0; i < MaxBorrowsPerMember; i++ {
		doc := h.addBook(t, fmt.Sprintf("Book %d", i), fmt.Sprintf("isbn-%d", i))
		_, err := h.engine.CreateLoan(ctx, member.ID, doc.ID)
		require.NoError(t, err)
	}

	count, err := h.engine.ActiveLoanCount(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, MaxBorrowsPerMember, count)

	doc := h.addBook(t, "One Too Many", "isbn-over")
	_, err = h.engine.CreateLoan(ctx, member.ID, doc.ID)
	require.Error(t, err)
	assert.Equal(t, fault.CodeBorrowLimitReached, fault.CodeOf(err))
	h.checkConsistency(t)
}

func TestOverdueLoanBlocksNewBorrow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	member := h.addMember(t, "Lenar")
	held := h.addBook(t, "Foundation", "978-0553293357")

	_, err := h.engine.CreateLoan(ctx, member.ID, held.ID)
	require.NoError(t, err)

	h.advanceDays(LoanPeriodDays + 1)

	next := h.addBook(t, "Second Foundation", "978-0553293364")
	_, err = h.engine.CreateLoan(ctx, member.ID, next.ID)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindDenied))
	assert.Equal(t, fault.CodeHasOverdueItems, fault.CodeOf(err))
}

func TestBorrowUnknownMemberAndDocument(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.addBook(t, "Ubik", "978-0547572291")
	member := h.addMember(t, "Joe")

	_, err := h.engine.CreateLoan(ctx, uuid.New(), doc.ID)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindNotFound))

	_, err = h.engine.CreateLoan(ctx, member.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestCloseLoanTwice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.addBook(t, "Roadside Picnic", "978-1613743416")
	member := h.addMember(t, "Red")

	loan, err := h.engine.CreateLoan(ctx, member.ID, doc.ID)
	require.NoError(t, err)
	require.NoError(t, h.engine.CloseLoan(ctx, loan.ID))

	err = h.engine.CloseLoan(ctx, loan.ID)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindDenied))
	assert.Equal(t, fault.CodeAlreadyReturned, fault.CodeOf(err))
	h.checkConsistency(t)
}

func TestPurgeOpenLoanSkipsPenalty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.addBook(t, "Annihilation", "978-0374104092")
	member := h.addMember(t, "Ghost")

	loan, err := h.engine.CreateLoan(ctx, member.ID, doc.ID)
	require.NoError(t, err)

	// Well past due; a purge still assesses nothing.
	h.advanceDays(LoanPeriodDays + 30)
	require.NoError(t, h.engine.PurgeLoan(ctx, loan.ID))

	m, err := h.members.GetMember(ctx, member.ID)
	require.NoError(t, err)
	assert.Zero(t, m.AccumulatedPenalty)
	assert.Zero(t, m.OpenLoanCount)

	borrowed, err := h.engine.IsDocumentBorrowed(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, borrowed)

	err = h.engine.PurgeLoan(ctx, loan.ID)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
	h.checkConsistency(t)
}

func TestPurgeClosedLoanLeavesStateAlone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.addBook(t, "Blindsight", "978-0765319647")
	member := h.addMember(t, "Siri")

	loan, err := h.engine.CreateLoan(ctx, member.ID, doc.ID)
	require.NoError(t, err)
	require.NoError(t, h.engine.CloseLoan(ctx, loan.ID))
	require.NoError(t, h.engine.PurgeLoan(ctx, loan.ID))

	all, err := h.engine.AllLoans(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	h.checkConsistency(t)
}

func TestConcurrentBorrowSameDocument(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.addBook(t, "The Dispossessed", "978-0061054884")
	first := h.addMember(t, "Shevek")
	second := h.addMember(t, "Takver")

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		wg.Add(1)
		go func(memberID uuid.UUID) {
			defer wg.Done()
			_, err := h.engine.CreateLoan(ctx, memberID, doc.ID)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		lost++
		assert.Equal(t, fault.CodeItemUnavailable, fault.CodeOf(err))
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
	h.checkConsistency(t)
}

func TestLoanCodesAreSequential(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	member := h.addMember(t, "Case")

	for i := 1; i <= 3; i++ {
		doc := h.addBook(t, fmt.Sprintf("Sprawl %d", i), fmt.Sprintf("isbn-seq-%d", i))
		loan, err := h.engine.CreateLoan(ctx, member.ID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("BR%03d", i), loan.ID)
	}
}

func TestLoanQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.addMember(t, "Alice")
	bob := h.addMember(t, "Bob")

	early := h.addBook(t, "Early", "isbn-early")
	kept, err := h.engine.CreateLoan(ctx, alice.ID, early.ID)
	require.NoError(t, err)

	h.advanceDays(LoanPeriodDays + 2)

	// kept is now two days late; lateDoc opens today for bob.
	lateDoc := h.addBook(t, "Fresh", "isbn-fresh")
	fresh, err := h.engine.CreateLoan(ctx, bob.ID, lateDoc.ID)
	require.NoError(t, err)

	open, err := h.engine.CurrentLoans(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	late, err := h.engine.LateLoans(ctx)
	require.NoError(t, err)
	require.Len(t, late, 1)
	assert.Equal(t, kept.ID, late[0].ID)

	require.NoError(t, h.engine.CloseLoan(ctx, fresh.ID))

	all, err := h.engine.AllLoans(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := h.engine.MemberLoans(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, kept.ID, mine[0].ID)
}

func TestPenaltySummary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	member := h.addMember(t, "Hari")

	// One loan already returned 4 days late, one currently open and 3
	// days late.
	past := h.addBook(t, "Past", "isbn-past")
	loan, err := h.engine.CreateLoan(ctx, member.ID, past.ID)
	require.NoError(t, err)
	h.advanceDays(LoanPeriodDays + 4)
	require.NoError(t, h.engine.CloseLoan(ctx, loan.ID))

	current := h.addBook(t, "Current", "isbn-current")
	_, err = h.engine.CreateLoan(ctx, member.ID, current.ID)
	require.NoError(t, err)
	h.advanceDays(LoanPeriodDays + 3)

	summary, err := h.engine.PenaltySummaryFor(ctx, member.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4*PenaltyPerDay, summary.Accrued, 1e-9)
	assert.InDelta(t, 3*PenaltyPerDay, summary.OwedNow, 1e-9)
}

func TestPenaltySummaryConsistentDuringClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	member := h.addMember(t, "Theo")
	doc := h.addBook(t, "Anathem", "978-0061474101")

	loan, err := h.engine.CreateLoan(ctx, member.ID, doc.ID)
	require.NoError(t, err)
	h.advanceDays(LoanPeriodDays + 6)
	total := 6 * PenaltyPerDay

	// The penalty moves from OwedNow to Accrued at close time. Readers
	// racing the close must see it on exactly one side, never neither.
	summaries := make(chan *PenaltySummary, 512)
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s, err := h.engine.PenaltySummaryFor(ctx, member.ID)
				if err != nil {
					continue
				}
				summaries <- s
			}
		}()
	}
	require.NoError(t, h.engine.CloseLoan(ctx, loan.ID))
	wg.Wait()
	close(summaries)

	for s := range summaries {
		assert.InDelta(t, total, s.Accrued+s.OwedNow, 1e-9,
			"accrued=%v owed=%v", s.Accrued, s.OwedNow)
	}

	final, err := h.engine.PenaltySummaryFor(ctx, member.ID)
	require.NoError(t, err)
	assert.InDelta(t, total, final.Accrued, 1e-9)
	assert.Zero(t, final.OwedNow)
}
