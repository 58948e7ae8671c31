package cards

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildpoint/buildpoint/internal/shared"
)

type memoryRepo struct {
	cards     map[string]Card
	holders   map[string]Holder
	blocks    []Block
	processed map[string]bool
	mobiles   map[string]bool
	aadhaars  map[string]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		cards:     make(map[string]Card),
		holders:   make(map[string]Holder),
		processed: make(map[string]bool),
		mobiles:   make(map[string]bool),
		aadhaars:  make(map[string]bool),
	}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	cardsCopy := make(map[string]Card, len(r.cards))
	for k, v := range r.cards {
		cardsCopy[k] = v
	}
	holdersCopy := make(map[string]Holder, len(r.holders))
	for k, v := range r.holders {
		holdersCopy[k] = v
	}
	blocksCopy := append([]Block(nil), r.blocks...)
	processedCopy := make(map[string]bool, len(r.processed))
	for k, v := range r.processed {
		processedCopy[k] = v
	}
	mobilesCopy := make(map[string]bool, len(r.mobiles))
	for k, v := range r.mobiles {
		mobilesCopy[k] = v
	}
	aadhaarsCopy := make(map[string]bool, len(r.aadhaars))
	for k, v := range r.aadhaars {
		aadhaarsCopy[k] = v
	}

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.cards = cardsCopy
		r.holders = holdersCopy
		r.blocks = blocksCopy
		r.processed = processedCopy
		r.mobiles = mobilesCopy
		r.aadhaars = aadhaarsCopy
		return err
	}
	return nil
}

func (r *memoryRepo) GetCard(ctx context.Context, cardUID string) (Card, error) {
	card, ok := r.cards[cardUID]
	if !ok {
		return Card{}, shared.ErrCardNotFound
	}
	return card, nil
}

func (r *memoryRepo) GetHolder(ctx context.Context, cardUID string) (Holder, error) {
	holder, ok := r.holders[cardUID]
	if !ok {
		return Holder{}, shared.ErrCardNotFound
	}
	return holder, nil
}

func (r *memoryRepo) ListBlocks(ctx context.Context, cardUID string) ([]Block, error) {
	var out []Block
	for i := len(r.blocks) - 1; i >= 0; i-- {
		if r.blocks[i].CardUID == cardUID {
			out = append(out, r.blocks[i])
		}
	}
	return out, nil
}

func (tx *memoryTx) MarkProcessed(ctx context.Context, entryID string) error {
	if tx.repo.processed[entryID] {
		return shared.ErrDuplicateEntry
	}
	tx.repo.processed[entryID] = true
	return nil
}

func (tx *memoryTx) GetCardForUpdate(ctx context.Context, cardUID string) (Card, error) {
	return tx.repo.GetCard(ctx, cardUID)
}

func (tx *memoryTx) InsertCard(ctx context.Context, card Card) error {
	tx.repo.cards[card.CardUID] = card
	return nil
}

func (tx *memoryTx) UpdateCardStatus(ctx context.Context, cardUID string, status Status) error {
	card, ok := tx.repo.cards[cardUID]
	if !ok {
		return shared.ErrCardNotFound
	}
	card.Status = status
	tx.repo.cards[cardUID] = card
	return nil
}

func (tx *memoryTx) HolderExists(ctx context.Context, cardUID string) (bool, error) {
	_, ok := tx.repo.holders[cardUID]
	return ok, nil
}

func (tx *memoryTx) InsertHolder(ctx context.Context, holder Holder) error {
	if tx.repo.mobiles[holder.Mobile] {
		return shared.ErrMobileAlreadyRegistered
	}
	if holder.Aadhaar != nil && tx.repo.aadhaars[*holder.Aadhaar] {
		return shared.ErrAadhaarAlreadyRegistered
	}
	tx.repo.holders[holder.CardUID] = holder
	tx.repo.mobiles[holder.Mobile] = true
	if holder.Aadhaar != nil {
		tx.repo.aadhaars[*holder.Aadhaar] = true
	}
	return nil
}

func (tx *memoryTx) InsertBlock(ctx context.Context, block Block) error {
	tx.repo.blocks = append(tx.repo.blocks, block)
	return nil
}

func TestEnrollCreatesCardAndHolder(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	card, err := svc.Enroll(ctx, "e1", EnrollInput{CardUID: "C-1", FranchiseeID: 7, Name: "Ravi", Mobile: "9876543210", StaffID: 1})
	require.NoError(t, err)
	require.Equal(t, StatusActive, card.Status)
	require.Equal(t, int64(7), card.FranchiseeID)

	holder := repo.holders["C-1"]
	require.Equal(t, "Ravi", holder.Name)
	require.Equal(t, "9876543210", holder.Mobile)
}

func TestEnrollActivatesProvisionedCard(t *testing.T) {
	repo := newMemoryRepo()
	repo.cards["C-1"] = Card{CardUID: "C-1", FranchiseeID: 7, Status: StatusUnassigned}
	svc := NewService(repo, nil)

	card, err := svc.Enroll(context.Background(), "e1", EnrollInput{CardUID: "C-1", FranchiseeID: 7, Name: "Ravi", Mobile: "9876543210", StaffID: 1})
	require.NoError(t, err)
	require.Equal(t, StatusActive, card.Status)
}

func TestEnrollRejectsActiveAndBlockedCards(t *testing.T) {
	repo := newMemoryRepo()
	repo.cards["C-active"] = Card{CardUID: "C-active", Status: StatusActive}
	repo.cards["C-blocked"] = Card{CardUID: "C-blocked", Status: StatusBlocked}
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "e1", EnrollInput{CardUID: "C-active", FranchiseeID: 7, Name: "Ravi", Mobile: "9876543210", StaffID: 1})
	require.ErrorIs(t, err, shared.ErrCardAlreadyEnrolled)

	_, err = svc.Enroll(ctx, "e2", EnrollInput{CardUID: "C-blocked", FranchiseeID: 7, Name: "Ravi", Mobile: "9876543210", StaffID: 1})
	require.ErrorIs(t, err, shared.ErrCardNotActive)
}

func TestEnrollRejectsDuplicateMobile(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "e1", EnrollInput{CardUID: "C-1", FranchiseeID: 7, Name: "Ravi", Mobile: "9876543210", StaffID: 1})
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, "e2", EnrollInput{CardUID: "C-2", FranchiseeID: 7, Name: "Anita", Mobile: "9876543210", StaffID: 1})
	require.ErrorIs(t, err, shared.ErrMobileAlreadyRegistered)

	// The failed enrolment must not leave a card behind.
	_, ok := repo.cards["C-2"]
	require.False(t, ok)
}

func TestEnrollReplayReturnsCard(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	first, err := svc.Enroll(ctx, "e1", EnrollInput{CardUID: "C-1", FranchiseeID: 7, Name: "Ravi", Mobile: "9876543210", StaffID: 1})
	require.NoError(t, err)

	replay, err := svc.Enroll(ctx, "e1", EnrollInput{CardUID: "C-1", FranchiseeID: 7, Name: "Ravi", Mobile: "9876543210", StaffID: 1})
	require.NoError(t, err)
	require.Equal(t, first.CardUID, replay.CardUID)
	require.Len(t, repo.holders, 1)
}

func TestBlockSetsStatusAndWritesAuditRow(t *testing.T) {
	repo := newMemoryRepo()
	repo.cards["C-1"] = Card{CardUID: "C-1", Status: StatusActive}
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.Block(ctx, "b1", BlockInput{CardUID: "C-1", Reason: BlockReasonLost, StaffID: 9}))
	require.Equal(t, StatusBlocked, repo.cards["C-1"].Status)
	require.Len(t, repo.blocks, 1)
	require.Equal(t, BlockReasonLost, repo.blocks[0].Reason)
	require.Equal(t, int64(9), repo.blocks[0].BlockedBy)

	// Replay is a no-op success; blocking again under a new id conflicts.
	require.NoError(t, svc.Block(ctx, "b1", BlockInput{CardUID: "C-1", Reason: BlockReasonLost, StaffID: 9}))
	require.Len(t, repo.blocks, 1)

	err := svc.Block(ctx, "b2", BlockInput{CardUID: "C-1", Reason: BlockReasonLost, StaffID: 9})
	require.ErrorIs(t, err, shared.ErrCardAlreadyBlocked)
}

func TestBlockUnknownCard(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	err := svc.Block(context.Background(), "b1", BlockInput{CardUID: "C-missing", Reason: BlockReasonLost, StaffID: 9})
	require.ErrorIs(t, err, shared.ErrCardNotFound)
}

func TestGetReturnsCardWithoutHolder(t *testing.T) {
	repo := newMemoryRepo()
	repo.cards["C-1"] = Card{CardUID: "C-1", Status: StatusUnassigned}
	svc := NewService(repo, nil)

	card, holder, err := svc.Get(context.Background(), "C-1")
	require.NoError(t, err)
	require.Equal(t, "C-1", card.CardUID)
	require.Nil(t, holder)
}

func TestListBlocksRequiresCard(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.ListBlocks(context.Background(), "C-missing")
	require.ErrorIs(t, err, shared.ErrCardNotFound)
}
