package cards

import (
	"context"
	"errors"
	"time"

	"github.com/buildpoint/buildpoint/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates enrolment and card-state changes. Every mutation is
// guarded by the client-generated entry id: the processed marker is inserted
// in the same transaction as the state change, and a replay of an already
// processed id succeeds without mutating anything.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Enroll activates a card for a new member. The card row is created when the
// uid is unknown, or flipped from UNASSIGNED to ACTIVE when pre-provisioned.
func (s *Service) Enroll(ctx context.Context, entryID string, input EnrollInput) (Card, error) {
	if entryID == "" {
		return Card{}, errors.New("cards: entry id required")
	}
	if input.CardUID == "" || input.Name == "" || input.Mobile == "" {
		return Card{}, errors.New("cards: card uid, name and mobile required")
	}
	var card Card
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.MarkProcessed(ctx, entryID); err != nil {
			return err
		}
		current, err := tx.GetCardForUpdate(ctx, input.CardUID)
		switch {
		case errors.Is(err, shared.ErrCardNotFound):
			card = Card{
				CardUID:      input.CardUID,
				FranchiseeID: input.FranchiseeID,
				Status:       StatusActive,
			}
			if err := tx.InsertCard(ctx, card); err != nil {
				return err
			}
		case err != nil:
			return err
		case current.Status == StatusActive:
			return shared.ErrCardAlreadyEnrolled
		case current.Status != StatusUnassigned:
			return shared.ErrCardNotActive
		default:
			if err := tx.UpdateCardStatus(ctx, input.CardUID, StatusActive); err != nil {
				return err
			}
			card = current
			card.Status = StatusActive
		}

		hasHolder, err := tx.HolderExists(ctx, input.CardUID)
		if err != nil {
			return err
		}
		if hasHolder {
			return shared.ErrCardHasHolder
		}
		return tx.InsertHolder(ctx, Holder{
			CardUID: input.CardUID,
			Name:    input.Name,
			Mobile:  input.Mobile,
			Aadhaar: input.Aadhaar,
		})
	})
	if errors.Is(err, shared.ErrDuplicateEntry) {
		return s.repo.GetCard(ctx, input.CardUID)
	}
	if err != nil {
		return Card{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.StaffID,
			Action:   "card.enroll",
			Entity:   "card",
			EntityID: input.CardUID,
			Meta:     map[string]any{"mobile": input.Mobile, "franchisee_id": input.FranchiseeID},
			At:       s.now(),
		})
	}
	return card, nil
}

// Block sets a card to BLOCKED and writes the audit row. Replaying the same
// entry id is a no-op success.
func (s *Service) Block(ctx context.Context, entryID string, input BlockInput) error {
	if entryID == "" {
		return errors.New("cards: entry id required")
	}
	if input.CardUID == "" {
		return errors.New("cards: card uid required")
	}
	if input.Reason == "" {
		input.Reason = BlockReasonOther
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.MarkProcessed(ctx, entryID); err != nil {
			return err
		}
		card, err := tx.GetCardForUpdate(ctx, input.CardUID)
		if err != nil {
			return err
		}
		if card.Status == StatusBlocked {
			return shared.ErrCardAlreadyBlocked
		}
		if err := tx.UpdateCardStatus(ctx, input.CardUID, StatusBlocked); err != nil {
			return err
		}
		return tx.InsertBlock(ctx, Block{
			CardUID:   input.CardUID,
			Reason:    input.Reason,
			BlockedBy: input.StaffID,
		})
	})
	if errors.Is(err, shared.ErrDuplicateEntry) {
		return nil
	}
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.StaffID,
			Action:   "card.block",
			Entity:   "card",
			EntityID: input.CardUID,
			Meta:     map[string]any{"reason": string(input.Reason)},
			At:       s.now(),
		})
	}
	return nil
}

// Get returns the card and, when present, its holder.
func (s *Service) Get(ctx context.Context, cardUID string) (Card, *Holder, error) {
	card, err := s.repo.GetCard(ctx, cardUID)
	if err != nil {
		return Card{}, nil, err
	}
	holder, err := s.repo.GetHolder(ctx, cardUID)
	if err != nil {
		if errors.Is(err, shared.ErrCardNotFound) {
			return card, nil, nil
		}
		return Card{}, nil, err
	}
	return card, &holder, nil
}

// ListBlocks returns the block audit trail for a card, newest first.
func (s *Service) ListBlocks(ctx context.Context, cardUID string) ([]Block, error) {
	if _, err := s.repo.GetCard(ctx, cardUID); err != nil {
		return nil, err
	}
	return s.repo.ListBlocks(ctx, cardUID)
}
