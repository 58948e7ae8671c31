package points

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is an independent point currency on a card.
type Category string

const (
	CategoryHardware Category = "HARDWARE"
	CategoryPlywood  Category = "PLYWOOD"
)

// Valid reports whether the category is one of the known currencies.
func (c Category) Valid() bool {
	return c == CategoryHardware || c == CategoryPlywood
}

// TransactionType enumerates ledger entry kinds.
type TransactionType string

const (
	// TransactionCredit adds points earned on a purchase.
	TransactionCredit TransactionType = "CREDIT"
	// TransactionDebit redeems points, consuming credit remainders FIFO.
	TransactionDebit TransactionType = "DEBIT"
	// TransactionExpiry zeroes a credit remainder past its expiry date.
	TransactionExpiry TransactionType = "EXPIRY"
	// TransactionVoid mirrors a prior entry's delta within the void window.
	TransactionVoid TransactionType = "VOID"
	// TransactionTransfer moves a full balance between cards on reissue.
	TransactionTransfer TransactionType = "TRANSFER"
)

// Entry is the append-only ledger record. EntryID is the externally supplied
// idempotency key. Amount is meaningful only for CREDIT rows; PointsRemaining
// only for CREDIT and TRANSFER-in rows, where it starts equal to PointsDelta
// and is consumed by FIFO debits and expiry. After creation only
// PointsRemaining and the void markers ever change.
type Entry struct {
	EntryID         string
	CardUID         string
	Category        Category
	Type            TransactionType
	Amount          decimal.Decimal
	PointsDelta     int64
	PointsRemaining int64
	ExpiresAt       *time.Time
	VoidedAt        *time.Time
	VoidedBy        *int64
	CreatedAt       time.Time
}

// Voided reports whether the entry has been voided.
func (e Entry) Voided() bool {
	return e.VoidedAt != nil
}

// CreditInput describes a credit request.
type CreditInput struct {
	EntryID        string
	CardUID        string
	Category       Category
	Amount         decimal.Decimal
	ConversionRate decimal.Decimal
	StaffID        int64
}

// DebitInput describes a redemption request.
type DebitInput struct {
	EntryID  string
	CardUID  string
	Category Category
	Points   int64
	StaffID  int64
}

// TransferInput describes a card reissue moving the full balance.
type TransferInput struct {
	OldCardUID string
	NewCardUID string
	StaffID    int64
	StoreID    int64
}

// Movement is the outcome of a credit or debit. PointsDelta is zero on an
// idempotent replay.
type Movement struct {
	PointsDelta int64 `json:"pointsDelta"`
	NewBalance  int64 `json:"newBalance"`
}

// ExpiringSummary aggregates soon-to-expire credit remainders.
type ExpiringSummary struct {
	Points    int64      `json:"points"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// ExpiryRunResult summarises one expiry sweep.
type ExpiryRunResult struct {
	ProcessedCount     int                `json:"processedCount"`
	TotalPointsExpired int64              `json:"totalPointsExpired"`
	ExpiredByCategory  map[Category]int64 `json:"expiredByCategory,omitempty"`
}

// CardBalances is the denormalized per-category balance pair of a card.
type CardBalances struct {
	Hardware int64 `json:"hardware"`
	Plywood  int64 `json:"plywood"`
}

// ForCategory returns the balance of one category.
func (b CardBalances) ForCategory(category Category) int64 {
	if category == CategoryPlywood {
		return b.Plywood
	}
	return b.Hardware
}
