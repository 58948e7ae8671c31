package points

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildpoint/buildpoint/internal/cards"
	"github.com/buildpoint/buildpoint/internal/platform/db"
	"github.com/buildpoint/buildpoint/internal/shared"
)

// Repository encapsulates DB operations for the point ledger.
type Repository interface {
	GetCard(ctx context.Context, cardUID string) (cards.Card, error)
	ListEntries(ctx context.Context, cardUID string, limit int) ([]Entry, error)
	ListExpiringCredits(ctx context.Context, cardUID string, category Category, before time.Time) ([]Entry, error)
	ListDueCredits(ctx context.Context, now time.Time, limit int) ([]Entry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the mutations available within a transaction. Card row
// access lives here too so ledger writes and the balance projection share one
// atomic unit; GetCardForUpdate serialises concurrent writers per card.
type TxRepository interface {
	MarkProcessed(ctx context.Context, entryID string) error
	GetCardForUpdate(ctx context.Context, cardUID string) (cards.Card, error)
	AddCardPoints(ctx context.Context, cardUID string, category Category, delta int64) (int64, error)
	SetCardStatus(ctx context.Context, cardUID string, status cards.Status) error
	ZeroCardBalances(ctx context.Context, cardUID string) error
	ReassignHolder(ctx context.Context, oldCardUID, newCardUID string) error
	InsertEntry(ctx context.Context, entry Entry) error
	GetEntry(ctx context.Context, entryID string) (Entry, error)
	GetEntryForUpdate(ctx context.Context, entryID string) (Entry, error)
	ListOpenCreditsForUpdate(ctx context.Context, cardUID string, category Category) ([]Entry, error)
	SetRemaining(ctx context.Context, entryID string, remaining int64) error
	MarkVoided(ctx context.Context, entryID string, at time.Time, staffID int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `entry_id, card_uid, category, tx_type, amount, points_delta, points_remaining, expires_at, voided_at, voided_by, created_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.EntryID, &e.CardUID, &e.Category, &e.Type, &e.Amount, &e.PointsDelta, &e.PointsRemaining, &e.ExpiresAt, &e.VoidedAt, &e.VoidedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrEntryNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EntryID, &e.CardUID, &e.Category, &e.Type, &e.Amount, &e.PointsDelta, &e.PointsRemaining, &e.ExpiresAt, &e.VoidedAt, &e.VoidedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetCard(ctx context.Context, cardUID string) (cards.Card, error) {
	var c cards.Card
	err := r.db.QueryRow(ctx, `SELECT card_uid, franchisee_id, status, hardware_points, plywood_points, created_at, updated_at FROM cards WHERE card_uid=$1`, cardUID).
		Scan(&c.CardUID, &c.FranchiseeID, &c.Status, &c.HardwarePoints, &c.PlywoodPoints, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cards.Card{}, shared.ErrCardNotFound
		}
		return cards.Card{}, err
	}
	return c, nil
}

func (r *repository) ListEntries(ctx context.Context, cardUID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM point_entries WHERE card_uid=$1 ORDER BY created_at DESC, entry_id DESC LIMIT $2`, cardUID, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (r *repository) ListExpiringCredits(ctx context.Context, cardUID string, category Category, before time.Time) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM point_entries
WHERE card_uid=$1 AND category=$2 AND tx_type IN ('CREDIT','TRANSFER') AND points_remaining > 0 AND voided_at IS NULL AND expires_at <= $3
ORDER BY expires_at ASC, created_at ASC, entry_id ASC`, cardUID, category, before)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (r *repository) ListDueCredits(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM point_entries
WHERE tx_type IN ('CREDIT','TRANSFER') AND points_remaining > 0 AND voided_at IS NULL AND expires_at <= $1
ORDER BY expires_at ASC, created_at ASC, entry_id ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
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

// GetCardForUpdate locks the card row for the rest of the transaction so
// concurrent credits and debits on the same card serialise.
func (r *txRepository) GetCardForUpdate(ctx context.Context, cardUID string) (cards.Card, error) {
	var c cards.Card
	err := r.tx.QueryRow(ctx, `SELECT card_uid, franchisee_id, status, hardware_points, plywood_points, created_at, updated_at FROM cards WHERE card_uid=$1 FOR UPDATE`, cardUID).
		Scan(&c.CardUID, &c.FranchiseeID, &c.Status, &c.HardwarePoints, &c.PlywoodPoints, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cards.Card{}, shared.ErrCardNotFound
		}
		return cards.Card{}, err
	}
	return c, nil
}

func balanceColumn(category Category) string {
	if category == CategoryPlywood {
		return "plywood_points"
	}
	return "hardware_points"
}

func (r *txRepository) AddCardPoints(ctx context.Context, cardUID string, category Category, delta int64) (int64, error) {
	col := balanceColumn(category)
	var newBalance int64
	err := r.tx.QueryRow(ctx, `UPDATE cards SET `+col+` = `+col+` + $2, updated_at=NOW() WHERE card_uid=$1 RETURNING `+col, cardUID, delta).
		Scan(&newBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrCardNotFound
		}
		return 0, err
	}
	return newBalance, nil
}

func (r *txRepository) SetCardStatus(ctx context.Context, cardUID string, status cards.Status) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE cards SET status=$2, updated_at=NOW() WHERE card_uid=$1`, cardUID, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrCardNotFound
	}
	return nil
}

func (r *txRepository) ZeroCardBalances(ctx context.Context, cardUID string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE cards SET hardware_points=0, plywood_points=0, updated_at=NOW() WHERE card_uid=$1`, cardUID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrCardNotFound
	}
	return nil
}

func (r *txRepository) ReassignHolder(ctx context.Context, oldCardUID, newCardUID string) error {
	_, err := r.tx.Exec(ctx, `UPDATE card_holders SET card_uid=$2 WHERE card_uid=$1`, oldCardUID, newCardUID)
	return err
}

func (r *txRepository) InsertEntry(ctx context.Context, entry Entry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO point_entries (entry_id, card_uid, category, tx_type, amount, points_delta, points_remaining, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.EntryID, entry.CardUID, entry.Category, entry.Type, entry.Amount, entry.PointsDelta, entry.PointsRemaining, entry.ExpiresAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return shared.ErrDuplicateEntry
		}
		return err
	}
	return nil
}

func (r *txRepository) GetEntry(ctx context.Context, entryID string) (Entry, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM point_entries WHERE entry_id=$1`, entryID)
	return scanEntry(row)
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, entryID string) (Entry, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM point_entries WHERE entry_id=$1 FOR UPDATE`, entryID)
	return scanEntry(row)
}

// ListOpenCreditsForUpdate returns unvoided credit rows with remaining points
// ordered oldest-expiring first. Ties on expires_at resolve by creation order
// then entry id so the FIFO walk is deterministic.
func (r *txRepository) ListOpenCreditsForUpdate(ctx context.Context, cardUID string, category Category) ([]Entry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM point_entries
WHERE card_uid=$1 AND category=$2 AND tx_type IN ('CREDIT','TRANSFER') AND points_remaining > 0 AND voided_at IS NULL
ORDER BY expires_at ASC, created_at ASC, entry_id ASC FOR UPDATE`, cardUID, category)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (r *txRepository) SetRemaining(ctx context.Context, entryID string, remaining int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE point_entries SET points_remaining=$2 WHERE entry_id=$1`, entryID, remaining)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) MarkVoided(ctx context.Context, entryID string, at time.Time, staffID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE point_entries SET voided_at=$2, voided_by=$3, points_remaining=0 WHERE entry_id=$1`, entryID, at, staffID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}
