package cards

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildpoint/buildpoint/internal/platform/db"
	"github.com/buildpoint/buildpoint/internal/shared"
)

// Repository encapsulates DB operations for cards and holders.
type Repository interface {
	GetCard(ctx context.Context, cardUID string) (Card, error)
	GetHolder(ctx context.Context, cardUID string) (Holder, error)
	ListBlocks(ctx context.Context, cardUID string) ([]Block, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the mutations available within a transaction.
type TxRepository interface {
	MarkProcessed(ctx context.Context, entryID string) error
	GetCardForUpdate(ctx context.Context, cardUID string) (Card, error)
	InsertCard(ctx context.Context, card Card) error
	UpdateCardStatus(ctx context.Context, cardUID string, status Status) error
	HolderExists(ctx context.Context, cardUID string) (bool, error)
	InsertHolder(ctx context.Context, holder Holder) error
	InsertBlock(ctx context.Context, block Block) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const cardColumns = `card_uid, franchisee_id, status, hardware_points, plywood_points, created_at, updated_at`

func scanCard(row pgx.Row) (Card, error) {
	var c Card
	err := row.Scan(&c.CardUID, &c.FranchiseeID, &c.Status, &c.HardwarePoints, &c.PlywoodPoints, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Card{}, shared.ErrCardNotFound
		}
		return Card{}, err
	}
	return c, nil
}

func (r *repository) GetCard(ctx context.Context, cardUID string) (Card, error) {
	row := r.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE card_uid=$1`, cardUID)
	return scanCard(row)
}

func (r *repository) GetHolder(ctx context.Context, cardUID string) (Holder, error) {
	var h Holder
	err := r.db.QueryRow(ctx, `SELECT id, card_uid, name, mobile, aadhaar, created_at FROM card_holders WHERE card_uid=$1`, cardUID).
		Scan(&h.ID, &h.CardUID, &h.Name, &h.Mobile, &h.Aadhaar, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Holder{}, shared.ErrCardNotFound
		}
		return Holder{}, err
	}
	return h, nil
}

func (r *repository) ListBlocks(ctx context.Context, cardUID string) ([]Block, error) {
	rows, err := r.db.Query(ctx, `SELECT id, card_uid, reason, blocked_by, created_at FROM card_blocks WHERE card_uid=$1 ORDER BY created_at DESC`, cardUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var blocks []Block
	for rows.Next() {
		var b Block
		if err := rows.Scan(&b.ID, &b.CardUID, &b.Reason, &b.BlockedBy, &b.CreatedAt); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) MarkProcessed(ctx context.Context, entryID string) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO processed_entries (entry_id, created_at) VALUES ($1, $2)`, entryID, time.Now().UTC())
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return shared.ErrDuplicateEntry
		}
		return err
	}
	return nil
}

func (r *txRepository) GetCardForUpdate(ctx context.Context, cardUID string) (Card, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE card_uid=$1 FOR UPDATE`, cardUID)
	return scanCard(row)
}

func (r *txRepository) InsertCard(ctx context.Context, card Card) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO cards (card_uid, franchisee_id, status, hardware_points, plywood_points)
VALUES ($1,$2,$3,$4,$5)`, card.CardUID, card.FranchiseeID, card.Status, card.HardwarePoints, card.PlywoodPoints)
	return err
}

func (r *txRepository) UpdateCardStatus(ctx context.Context, cardUID string, status Status) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE cards SET status=$2, updated_at=NOW() WHERE card_uid=$1`, cardUID, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrCardNotFound
	}
	return nil
}

func (r *txRepository) HolderExists(ctx context.Context, cardUID string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM card_holders WHERE card_uid=$1)`, cardUID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertHolder(ctx context.Context, holder Holder) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO card_holders (card_uid, name, mobile, aadhaar) VALUES ($1,$2,$3,$4)`,
		holder.CardUID, holder.Name, holder.Mobile, holder.Aadhaar)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "uq_card_holders_mobile":
				return shared.ErrMobileAlreadyRegistered
			case "uq_card_holders_aadhaar":
				return shared.ErrAadhaarAlreadyRegistered
			}
		}
		return err
	}
	return nil
}

func (r *txRepository) InsertBlock(ctx context.Context, block Block) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO card_blocks (card_uid, reason, blocked_by) VALUES ($1,$2,$3)`,
		block.CardUID, block.Reason, block.BlockedBy)
	return err
}
