package cards

import "time"

// Status enumerates the card lifecycle states.
type Status string

const (
	// StatusUnassigned marks a provisioned card without a holder.
	StatusUnassigned Status = "UNASSIGNED"
	// StatusActive marks an enrolled card that can earn and redeem points.
	StatusActive Status = "ACTIVE"
	// StatusBlocked marks a lost, stolen or retired card.
	StatusBlocked Status = "BLOCKED"
	// StatusTransferred exists for cards migrated from the legacy system;
	// a transfer-out performed here sets BLOCKED.
	StatusTransferred Status = "TRANSFERRED"
)

// Card is a physical NFC loyalty card with denormalized category balances.
// Each balance must always equal the sum of points_remaining over the card's
// non-voided CREDIT entries for that category; the two are only ever updated
// together inside one transaction.
type Card struct {
	CardUID        string
	FranchiseeID   int64
	Status         Status
	HardwarePoints int64
	PlywoodPoints  int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Holder is the person an ACTIVE card belongs to. Mobile and Aadhaar are
// unique across holders: at most one card per person.
type Holder struct {
	ID        int64
	CardUID   string
	Name      string
	Mobile    string
	Aadhaar   *string
	CreatedAt time.Time
}

// BlockReason enumerates why a card was blocked.
type BlockReason string

const (
	BlockReasonLost    BlockReason = "LOST"
	BlockReasonStolen  BlockReason = "STOLEN"
	BlockReasonDamaged BlockReason = "DAMAGED"
	BlockReasonFraud   BlockReason = "FRAUD"
	BlockReasonOther   BlockReason = "OTHER"
)

// Block is the append-only audit row written for every block event.
type Block struct {
	ID        int64
	CardUID   string
	Reason    BlockReason
	BlockedBy int64
	CreatedAt time.Time
}

// EnrollInput carries the fields needed to enroll a member.
type EnrollInput struct {
	CardUID      string
	FranchiseeID int64
	Name         string
	Mobile       string
	Aadhaar      *string
	StaffID      int64
}

// BlockInput carries the fields needed to block a card.
type BlockInput struct {
	CardUID string
	Reason  BlockReason
	StaffID int64
}
