package points

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/buildpoint/buildpoint/internal/cards"
	"github.com/buildpoint/buildpoint/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config groups ledger policy settings.
type Config struct {
	ExpiryMonths   int
	VoidWindowDays int
}

func (c Config) expiryMonths() int {
	if c.ExpiryMonths > 0 {
		return c.ExpiryMonths
	}
	return 12
}

func (c Config) voidWindow() time.Duration {
	days := c.VoidWindowDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// Service owns all writes to the point ledger, the card balance projection
// and the processed-entry guard. Every mutation runs as one transaction:
// ledger rows, balance update and idempotency marker commit together or not
// at all. Replaying an already processed entry id returns the current balance
// with a zero delta instead of an error.
type Service struct {
	repo   Repository
	audit  AuditPort
	cache  *BalanceCache
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort, cache *BalanceCache, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		audit:  audit,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func categoryBalance(card cards.Card, category Category) int64 {
	if category == CategoryPlywood {
		return card.PlywoodPoints
	}
	return card.HardwarePoints
}

// replayMovement serves idempotent retries: the entry id was already
// processed, so report the current balance and a zero delta.
func (s *Service) replayMovement(ctx context.Context, cardUID string, category Category) (Movement, error) {
	card, err := s.repo.GetCard(ctx, cardUID)
	if err != nil {
		return Movement{}, err
	}
	return Movement{PointsDelta: 0, NewBalance: categoryBalance(card, category)}, nil
}

func (s *Service) invalidate(ctx context.Context, cardUIDs ...string) {
	if s.cache == nil {
		return
	}
	for _, uid := range cardUIDs {
		if err := s.cache.Invalidate(ctx, uid); err != nil {
			s.log().Warn("invalidate balance cache", slog.String("card_uid", uid), slog.Any("error", err))
		}
	}
}

// Credit converts a purchase amount into points at the given conversion rate
// and appends a CREDIT entry with a fresh expiry date.
func (s *Service) Credit(ctx context.Context, input CreditInput) (Movement, error) {
	if input.EntryID == "" || input.CardUID == "" {
		return Movement{}, errors.New("points: entry id and card uid required")
	}
	if !input.Category.Valid() {
		return Movement{}, errors.New("points: unknown category")
	}
	if !input.ConversionRate.IsPositive() {
		return Movement{}, errors.New("points: conversion rate must be positive")
	}
	pointsDelta := input.Amount.Div(input.ConversionRate).Floor().IntPart()

	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.MarkProcessed(ctx, input.EntryID); err != nil {
			return err
		}
		card, err := tx.GetCardForUpdate(ctx, input.CardUID)
		if err != nil {
			return err
		}
		if card.Status != cards.StatusActive {
			return shared.ErrCardNotActive
		}
		if pointsDelta <= 0 {
			return shared.ErrInsufficientAmount
		}
		expiresAt := s.now().AddDate(0, s.cfg.expiryMonths(), 0)
		if err := tx.InsertEntry(ctx, Entry{
			EntryID:         input.EntryID,
			CardUID:         input.CardUID,
			Category:        input.Category,
			Type:            TransactionCredit,
			Amount:          input.Amount,
			PointsDelta:     pointsDelta,
			PointsRemaining: pointsDelta,
			ExpiresAt:       &expiresAt,
		}); err != nil {
			return err
		}
		newBalance, err := tx.AddCardPoints(ctx, input.CardUID, input.Category, pointsDelta)
		if err != nil {
			return err
		}
		movement = Movement{PointsDelta: pointsDelta, NewBalance: newBalance}
		return nil
	})
	if errors.Is(err, shared.ErrDuplicateEntry) {
		return s.replayMovement(ctx, input.CardUID, input.Category)
	}
	if err != nil {
		return Movement{}, err
	}
	s.invalidate(ctx, input.CardUID)
	return movement, nil
}

// DebitFIFO redeems points by consuming credit remainders in
// soonest-to-expire order, so the cardholder loses as little as possible to
// future expiry.
func (s *Service) DebitFIFO(ctx context.Context, input DebitInput) (Movement, error) {
	if input.EntryID == "" || input.CardUID == "" {
		return Movement{}, errors.New("points: entry id and card uid required")
	}
	if !input.Category.Valid() {
		return Movement{}, errors.New("points: unknown category")
	}
	if input.Points <= 0 {
		return Movement{}, errors.New("points: debit must be positive")
	}

	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.MarkProcessed(ctx, input.EntryID); err != nil {
			return err
		}
		card, err := tx.GetCardForUpdate(ctx, input.CardUID)
		if err != nil {
			return err
		}
		if card.Status != cards.StatusActive {
			return shared.ErrCardNotActive
		}
		if categoryBalance(card, input.Category) < input.Points {
			return shared.ErrInsufficientBalance
		}
		credits, err := tx.ListOpenCreditsForUpdate(ctx, input.CardUID, input.Category)
		if err != nil {
			return err
		}
		remainingToDebit := input.Points
		for _, credit := range credits {
			if remainingToDebit == 0 {
				break
			}
			take := credit.PointsRemaining
			if take > remainingToDebit {
				take = remainingToDebit
			}
			if err := tx.SetRemaining(ctx, credit.EntryID, credit.PointsRemaining-take); err != nil {
				return err
			}
			remainingToDebit -= take
		}
		if err := tx.InsertEntry(ctx, Entry{
			EntryID:     input.EntryID,
			CardUID:     input.CardUID,
			Category:    input.Category,
			Type:        TransactionDebit,
			PointsDelta: -input.Points,
		}); err != nil {
			return err
		}
		newBalance, err := tx.AddCardPoints(ctx, input.CardUID, input.Category, -input.Points)
		if err != nil {
			return err
		}
		movement = Movement{PointsDelta: -input.Points, NewBalance: newBalance}
		return nil
	})
	if errors.Is(err, shared.ErrDuplicateEntry) {
		return s.replayMovement(ctx, input.CardUID, input.Category)
	}
	if err != nil {
		return Movement{}, err
	}
	s.invalidate(ctx, input.CardUID)
	return movement, nil
}

// Void reverses a prior entry inside the void window. The original entry is
// marked voided with its remainder forced to zero, and a VOID entry mirrors
// the full original delta back onto the balance. Reversing a credit whose
// points were already partially spent can therefore drive the category
// balance negative; that matches the upstream ledger behaviour and is
// deliberately not clamped.
func (s *Service) Void(ctx context.Context, originalEntryID string, staffID int64) error {
	if originalEntryID == "" {
		return errors.New("points: entry id required")
	}
	voidID := "void-" + originalEntryID
	var voided Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.MarkProcessed(ctx, voidID); err != nil {
			return err
		}
		peek, err := tx.GetEntry(ctx, originalEntryID)
		if err != nil {
			return err
		}
		// Lock order is card then entry everywhere; peek at the entry
		// unlocked to learn the card, then lock in that order.
		if _, err := tx.GetCardForUpdate(ctx, peek.CardUID); err != nil {
			return err
		}
		entry, err := tx.GetEntryForUpdate(ctx, originalEntryID)
		if err != nil {
			return err
		}
		if entry.Voided() {
			return shared.ErrAlreadyVoided
		}
		now := s.now()
		if now.Sub(entry.CreatedAt) > s.cfg.voidWindow() {
			return shared.ErrVoidWindowExpired
		}
		if err := tx.MarkVoided(ctx, originalEntryID, now, staffID); err != nil {
			return err
		}
		if err := tx.InsertEntry(ctx, Entry{
			EntryID:     voidID,
			CardUID:     entry.CardUID,
			Category:    entry.Category,
			Type:        TransactionVoid,
			PointsDelta: -entry.PointsDelta,
		}); err != nil {
			return err
		}
		if _, err := tx.AddCardPoints(ctx, entry.CardUID, entry.Category, -entry.PointsDelta); err != nil {
			return err
		}
		voided = entry
		return nil
	})
	if errors.Is(err, shared.ErrDuplicateEntry) {
		return nil
	}
	if err != nil {
		return err
	}
	s.invalidate(ctx, voided.CardUID)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  staffID,
			Action:   "points.void",
			Entity:   "point_entry",
			EntityID: originalEntryID,
			Meta:     map[string]any{"card_uid": voided.CardUID, "points_delta": -voided.PointsDelta},
			At:       s.now(),
		})
	}
	return nil
}

// Transfer moves the entire balance of both categories to a replacement card
// during reissue. Remaining value collapses into one TRANSFER leg pair per
// category; transferred points get a fresh expiry clock. The old card ends
// BLOCKED with zero balances in the same transaction, and the holder record
// is reassigned to the new card.
func (s *Service) Transfer(ctx context.Context, input TransferInput) error {
	if input.OldCardUID == "" || input.NewCardUID == "" {
		return errors.New("points: both card uids required")
	}
	if input.OldCardUID == input.NewCardUID {
		return errors.New("points: cards must differ")
	}
	var moved CardBalances
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Lock cards in uid order so two concurrent transfers cannot deadlock.
		first, second := input.OldCardUID, input.NewCardUID
		if second < first {
			first, second = second, first
		}
		locked := map[string]cards.Card{}
		for _, uid := range []string{first, second} {
			card, err := tx.GetCardForUpdate(ctx, uid)
			if err != nil {
				return err
			}
			locked[uid] = card
		}
		oldCard := locked[input.OldCardUID]
		newCard := locked[input.NewCardUID]
		if oldCard.FranchiseeID != newCard.FranchiseeID {
			return shared.ErrFranchiseeMismatch
		}

		now := s.now()
		expiresAt := now.AddDate(0, s.cfg.expiryMonths(), 0)
		balances := []struct {
			category Category
			points   int64
		}{
			{CategoryHardware, oldCard.HardwarePoints},
			{CategoryPlywood, oldCard.PlywoodPoints},
		}
		for _, b := range balances {
			if b.points <= 0 {
				continue
			}
			if err := tx.InsertEntry(ctx, Entry{
				EntryID:     "tr-" + uuid.NewString(),
				CardUID:     input.OldCardUID,
				Category:    b.category,
				Type:        TransactionTransfer,
				PointsDelta: -b.points,
			}); err != nil {
				return err
			}
			if err := tx.InsertEntry(ctx, Entry{
				EntryID:         "tr-" + uuid.NewString(),
				CardUID:         input.NewCardUID,
				Category:        b.category,
				Type:            TransactionTransfer,
				PointsDelta:     b.points,
				PointsRemaining: b.points,
				ExpiresAt:       &expiresAt,
			}); err != nil {
				return err
			}
			if _, err := tx.AddCardPoints(ctx, input.NewCardUID, b.category, b.points); err != nil {
				return err
			}
		}
		if err := tx.ReassignHolder(ctx, input.OldCardUID, input.NewCardUID); err != nil {
			return err
		}
		if err := tx.SetCardStatus(ctx, input.OldCardUID, cards.StatusBlocked); err != nil {
			return err
		}
		if err := tx.ZeroCardBalances(ctx, input.OldCardUID); err != nil {
			return err
		}
		moved = CardBalances{Hardware: oldCard.HardwarePoints, Plywood: oldCard.PlywoodPoints}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, input.OldCardUID, input.NewCardUID)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.StaffID,
			Action:   "points.transfer",
			Entity:   "card",
			EntityID: input.OldCardUID,
			Meta: map[string]any{
				"new_card_uid":    input.NewCardUID,
				"store_id":        input.StoreID,
				"hardware_points": moved.Hardware,
				"plywood_points":  moved.Plywood,
			},
			At: s.now(),
		})
	}
	return nil
}

// ExpiringPoints sums credit remainders expiring within the given number of
// days and reports the earliest such expiry date.
func (s *Service) ExpiringPoints(ctx context.Context, cardUID string, category Category, withinDays int) (ExpiringSummary, error) {
	if cardUID == "" {
		return ExpiringSummary{}, errors.New("points: card uid required")
	}
	if !category.Valid() {
		return ExpiringSummary{}, errors.New("points: unknown category")
	}
	if withinDays <= 0 {
		withinDays = 30
	}
	before := s.now().AddDate(0, 0, withinDays)
	entries, err := s.repo.ListExpiringCredits(ctx, cardUID, category, before)
	if err != nil {
		return ExpiringSummary{}, err
	}
	var summary ExpiringSummary
	for _, e := range entries {
		summary.Points += e.PointsRemaining
	}
	if len(entries) > 0 {
		summary.ExpiresAt = entries[0].ExpiresAt
	}
	return summary, nil
}

// Balances returns both category balances for a card, served from the cache
// when warm.
func (s *Service) Balances(ctx context.Context, cardUID string) (CardBalances, error) {
	load := func(ctx context.Context) (CardBalances, error) {
		card, err := s.repo.GetCard(ctx, cardUID)
		if err != nil {
			return CardBalances{}, err
		}
		return CardBalances{Hardware: card.HardwarePoints, Plywood: card.PlywoodPoints}, nil
	}
	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.Fetch(ctx, cardUID, load)
}

// History lists a card's ledger entries, newest first.
func (s *Service) History(ctx context.Context, cardUID string, limit int) ([]Entry, error) {
	if _, err := s.repo.GetCard(ctx, cardUID); err != nil {
		return nil, err
	}
	return s.repo.ListEntries(ctx, cardUID, limit)
}

// ProcessExpiry zeroes due credit remainders. Each entry is its own
// transaction so a failure on one neither blocks nor rolls back the rest;
// failures are logged and skipped. A second run with no new expirations
// processes nothing because the remainders are already zero.
func (s *Service) ProcessExpiry(ctx context.Context, batchLimit int) (ExpiryRunResult, error) {
	now := s.now()
	due, err := s.repo.ListDueCredits(ctx, now, batchLimit)
	if err != nil {
		return ExpiryRunResult{}, err
	}

	result := ExpiryRunResult{ExpiredByCategory: make(map[Category]int64)}
	touched := make(map[string]struct{})
	for _, candidate := range due {
		var expired int64
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if _, err := tx.GetCardForUpdate(ctx, candidate.CardUID); err != nil {
				return err
			}
			entry, err := tx.GetEntryForUpdate(ctx, candidate.EntryID)
			if err != nil {
				return err
			}
			// Re-check under lock: a concurrent debit or void may have
			// consumed the remainder since the candidate scan.
			if entry.PointsRemaining <= 0 || entry.Voided() || entry.ExpiresAt == nil || entry.ExpiresAt.After(now) {
				return nil
			}
			if err := tx.InsertEntry(ctx, Entry{
				EntryID:     "expiry-" + entry.EntryID,
				CardUID:     entry.CardUID,
				Category:    entry.Category,
				Type:        TransactionExpiry,
				PointsDelta: -entry.PointsRemaining,
			}); err != nil {
				return err
			}
			if err := tx.SetRemaining(ctx, entry.EntryID, 0); err != nil {
				return err
			}
			if _, err := tx.AddCardPoints(ctx, entry.CardUID, entry.Category, -entry.PointsRemaining); err != nil {
				return err
			}
			expired = entry.PointsRemaining
			return nil
		})
		if err != nil {
			s.log().Error("expire entry",
				slog.String("entry_id", candidate.EntryID),
				slog.String("card_uid", candidate.CardUID),
				slog.Any("error", err),
			)
			continue
		}
		if expired > 0 {
			result.ProcessedCount++
			result.TotalPointsExpired += expired
			result.ExpiredByCategory[candidate.Category] += expired
			touched[candidate.CardUID] = struct{}{}
		}
	}
	for uid := range touched {
		s.invalidate(ctx, uid)
	}
	return result, nil
}
