// internal/membership/implementation.go
package membership

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"libman/internal/fault"
	"libman/internal/platform/storage"
)

// service implements the Service interface.
type service struct {
	db          *storage.DB
	store       Store
	rateLimiter *rate.Limiter
	log         *zap.Logger
}

// NewService creates a new membership service instance.
func NewService(db *storage.DB, log *zap.Logger) Service {
	return &service{
		db:          db,
		log:         log,
		rateLimiter: rate.NewLimiter(rate.Limit(5), 10), // registrations per second
	}
}

// RegisterMember creates a new member with a clean standing.
func (s *service) RegisterMember(ctx context.Context, name, surname string) (*Member, error) {
	if !s.rateLimiter.Allow() {
		return nil, fault.Denied(fault.CodeRateLimited, "too many registrations, slow down")
	}

	member := &Member{
		ID:          uuid.New(),
		Name:        name,
		Surname:     surname,
		PenaltyTier: TierNone,
	}
	if err := member.Validate(); err != nil {
		return nil, fault.Invalid(err)
	}

	err := s.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		return s.store.Insert(ctx, tx, member)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("member registered",
		zap.String("member_id", member.ID.String()),
		zap.String("surname", member.Surname))
	return member, nil
}

// GetMember retrieves a member by their id.
func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	return s.store.Get(ctx, s.db.DB, id)
}

// ListMembers returns every member.
func (s *service) ListMembers(ctx context.Context) ([]*Member, error) {
	return s.store.List(ctx, s.db.DB)
}

// UpdateMember applies a partial edit. A tier in the update is the
// administrative override; the accumulated penalty is left untouched.
func (s *service) UpdateMember(ctx context.Context, id uuid.UUID, upd Update) (*Member, error) {
	var updated *Member
	err := s.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		member, err := s.store.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if upd.Name != nil {
			member.Name = *upd.Name
		}
		if upd.Surname != nil {
			member.Surname = *upd.Surname
		}
		if upd.Tier != nil {
			member.PenaltyTier = *upd.Tier
		}
		if err := member.Validate(); err != nil {
			return fault.Invalid(err)
		}
		if err := s.store.Save(ctx, tx, member); err != nil {
			return err
		}
		updated = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	if upd.Tier != nil {
		s.log.Info("member tier overridden",
			zap.String("member_id", id.String()),
			zap.String("tier", updated.PenaltyTier.String()))
	}
	return updated, nil
}

// DeleteMember removes a member with no loans on record.
func (s *service) DeleteMember(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.store.Get(ctx, tx, id); err != nil {
			return err
		}
		var refs int
		if err := sqlx.GetContext(ctx, tx, &refs, tx.Rebind(
			`SELECT COUNT(*) FROM loans WHERE member_id = ?`), id.String()); err != nil {
			return fmt.Errorf("count loan references: %w", err)
		}
		if refs > 0 {
			return fault.Conflict(fault.CodeMemberOnRecord,
				fmt.Sprintf("member %s is referenced by %d loan(s)", id, refs))
		}
		return s.store.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("member deleted", zap.String("member_id", id.String()))
	return nil
}
