package sync

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/buildpoint/buildpoint/internal/points"
)

// ActionType tags the variants of the offline action union.
type ActionType string

const (
	ActionEnroll ActionType = "ENROLL"
	ActionCredit ActionType = "CREDIT"
	ActionDebit  ActionType = "DEBIT"
	ActionBlock  ActionType = "BLOCK"
	ActionVoid   ActionType = "VOID"
)

// Action is one client-queued operation. EntryID is the client-generated
// idempotency key; Payload is decoded per Type so the dispatch switch stays
// exhaustive over the known variants.
type Action struct {
	Type    ActionType      `json:"type"`
	EntryID string          `json:"entryId"`
	Payload json.RawMessage `json:"payload"`
}

// EnrollPayload enrolls a new member on a card.
type EnrollPayload struct {
	CardUID      string  `json:"cardUid" validate:"required"`
	FranchiseeID int64   `json:"franchiseeId" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	Mobile       string  `json:"mobile" validate:"required,min=10,max=15"`
	Aadhaar      *string `json:"aadhaar,omitempty" validate:"omitempty,len=12"`
	StaffID      int64   `json:"staffId" validate:"required"`
}

// CreditPayload credits points for a purchase amount.
type CreditPayload struct {
	CardUID  string          `json:"cardUid" validate:"required"`
	Category points.Category `json:"category" validate:"required,oneof=HARDWARE PLYWOOD"`
	Amount   decimal.Decimal `json:"amount" validate:"required"`
	StaffID  int64           `json:"staffId" validate:"required"`
}

// DebitPayload redeems points.
type DebitPayload struct {
	CardUID  string          `json:"cardUid" validate:"required"`
	Category points.Category `json:"category" validate:"required,oneof=HARDWARE PLYWOOD"`
	Points   int64           `json:"points" validate:"required,gt=0"`
	StaffID  int64           `json:"staffId" validate:"required"`
}

// BlockPayload blocks a lost or stolen card.
type BlockPayload struct {
	CardUID string `json:"cardUid" validate:"required"`
	Reason  string `json:"reason" validate:"required,oneof=LOST STOLEN DAMAGED FRAUD OTHER"`
	StaffID int64  `json:"staffId" validate:"required"`
}

// VoidPayload reverses a previously synced entry.
type VoidPayload struct {
	TargetEntryID string `json:"targetEntryId" validate:"required"`
	StaffID       int64  `json:"staffId" validate:"required"`
}

// ActionResult is the per-action verdict the client uses to mark its local
// queue entry SUCCESS or FAILED.
type ActionResult struct {
	EntryID string `json:"entryId"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// BatchResult summarises one reconciliation run.
type BatchResult struct {
	Processed  int            `json:"processed"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Results    []ActionResult `json:"results"`
}

// CodeInvalidAction marks actions that failed decoding or validation before
// reaching business logic.
const CodeInvalidAction = "INVALID_ACTION"
