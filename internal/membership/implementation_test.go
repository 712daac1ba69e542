package membership

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"libman/internal/fault"
	"libman/internal/platform/storage"
)

func newTestService(t *testing.T) (Service, *storage.DB) {
	t.Helper()
	db, err := storage.Open("sqlite", filepath.Join(t.TempDir(), "libman.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db, zap.NewNop()), db
}

func TestRegisterAndGetMember(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.RegisterMember(ctx, "Ada", "Lovelace")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, TierNone, created.PenaltyTier)
	assert.Zero(t, created.AccumulatedPenalty)
	assert.Zero(t, created.OpenLoanCount)

	got, err := svc.GetMember(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = svc.GetMember(ctx, uuid.New())
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestRegisterMemberValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RegisterMember(context.Background(), "", "Lovelace")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindInvalid))
}

func TestRegisterMemberRateLimited(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var denied bool
	for i := 0; i < 20; i++ {
		_, err := svc.RegisterMember(ctx, fmt.Sprintf("Member%d", i), "Burst")
		if err != nil {
			assert.Equal(t, fault.CodeRateLimited, fault.CodeOf(err))
			denied = true
			break
		}
	}
	assert.True(t, denied, "burst registrations should eventually be rate limited")
}

func TestUpdateMember(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.RegisterMember(ctx, "Grace", "Hopper")
	require.NoError(t, err)

	surname := "Murray Hopper"
	tier := TierSuspended
	updated, err := svc.UpdateMember(ctx, created.ID, Update{Surname: &surname, Tier: &tier})
	require.NoError(t, err)
	assert.Equal(t, "Murray Hopper", updated.Surname)
	assert.Equal(t, TierSuspended, updated.PenaltyTier)
	// The override moves only the tier.
	assert.Zero(t, updated.AccumulatedPenalty)

	empty := ""
	_, err = svc.UpdateMember(ctx, created.ID, Update{Name: &empty})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindInvalid))
}

func TestDeleteMember(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	gone, err := svc.RegisterMember(ctx, "No", "Loans")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteMember(ctx, gone.ID))
	_, err = svc.GetMember(ctx, gone.ID)
	assert.True(t, fault.IsKind(err, fault.KindNotFound))

	// A member with loan history, even fully returned, stays on record.
	kept, err := svc.RegisterMember(ctx, "On", "Record")
	require.NoError(t, err)
	docID := uuid.New().String()
	_, err = db.Exec(db.Rebind(
		`INSERT INTO documents (id, title, author, genre, kind, available)
		 VALUES (?, ?, ?, ?, ?, 1)`),
		docID, "Ledgered", "Author", "Genre", "book")
	require.NoError(t, err)
	_, err = db.Exec(db.Rebind(
		`INSERT INTO loans (id, document_id, member_id, borrow_date, expected_return_date, return_date)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		"BR001", docID, kept.ID.String(), "2026-01-01", "2026-01-15", "2026-01-10")
	require.NoError(t, err)

	err = svc.DeleteMember(ctx, kept.ID)
	require.Error(t, err)
	assert.Equal(t, fault.CodeMemberOnRecord, fault.CodeOf(err))
}

func TestOpenLoanCounters(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	store := Store{}

	m, err := svc.RegisterMember(ctx, "Counter", "Case")
	require.NoError(t, err)

	require.NoError(t, store.IncrementOpenLoans(ctx, db, m.ID))
	require.NoError(t, store.IncrementOpenLoans(ctx, db, m.ID))
	got, err := svc.GetMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.OpenLoanCount)

	require.NoError(t, store.DecrementOpenLoans(ctx, db, m.ID))
	require.NoError(t, store.DecrementOpenLoans(ctx, db, m.ID))

	// Decrementing past zero is a corruption signal, not a clamp.
	err = store.DecrementOpenLoans(ctx, db, m.ID)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindInvariant))
}
