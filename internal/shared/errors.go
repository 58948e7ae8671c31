package shared

import "errors"

// Business-rule failures surfaced to callers. Always recoverable: they abort
// and roll back a single operation, never the process or a whole batch.
var (
	// ErrCardNotFound indicates the card uid does not exist.
	ErrCardNotFound = errors.New("card not found")
	// ErrFranchiseeMismatch occurs when a transfer spans two franchisees.
	ErrFranchiseeMismatch = errors.New("cards belong to different franchisees")
	// ErrCardNotActive indicates the card is not in ACTIVE status.
	ErrCardNotActive = errors.New("card not active")
	// ErrCardAlreadyEnrolled occurs when enrolling an already active card.
	ErrCardAlreadyEnrolled = errors.New("card already enrolled")
	// ErrCardAlreadyBlocked occurs when blocking a blocked card.
	ErrCardAlreadyBlocked = errors.New("card already blocked")
	// ErrInsufficientAmount indicates the purchase amount earns zero points.
	ErrInsufficientAmount = errors.New("amount too small to earn points")
	// ErrInsufficientBalance indicates the category balance cannot cover a debit.
	ErrInsufficientBalance = errors.New("insufficient point balance")
	// ErrEntryNotFound indicates no ledger entry with the given id.
	ErrEntryNotFound = errors.New("ledger entry not found")
	// ErrAlreadyVoided occurs when voiding a voided entry.
	ErrAlreadyVoided = errors.New("entry already voided")
	// ErrVoidWindowExpired occurs when the void window has passed.
	ErrVoidWindowExpired = errors.New("void window expired")
	// ErrMobileAlreadyRegistered indicates the mobile number has a card.
	ErrMobileAlreadyRegistered = errors.New("mobile number already registered")
	// ErrAadhaarAlreadyRegistered indicates the national id has a card.
	ErrAadhaarAlreadyRegistered = errors.New("aadhaar already registered")
	// ErrCardHasHolder occurs when enrolling a card that already has a holder.
	ErrCardHasHolder = errors.New("card already has a holder")
	// ErrDuplicateEntry signals an idempotency key collision inside a transaction.
	ErrDuplicateEntry = errors.New("entry already processed")
)

// CodeInternal is the per-action code for unexpected failures in a batch.
const CodeInternal = "INTERNAL_ERROR"

var errorCodes = map[error]string{
	ErrCardNotFound:             "CARD_NOT_FOUND",
	ErrFranchiseeMismatch:       "FRANCHISEE_MISMATCH",
	ErrCardNotActive:            "CARD_NOT_ACTIVE",
	ErrCardAlreadyEnrolled:      "CARD_ALREADY_ENROLLED",
	ErrCardAlreadyBlocked:       "CARD_ALREADY_BLOCKED",
	ErrInsufficientAmount:       "INSUFFICIENT_AMOUNT",
	ErrInsufficientBalance:      "INSUFFICIENT_BALANCE",
	ErrEntryNotFound:            "ENTRY_NOT_FOUND",
	ErrAlreadyVoided:            "ALREADY_VOIDED",
	ErrVoidWindowExpired:        "VOID_WINDOW_EXPIRED",
	ErrMobileAlreadyRegistered:  "MOBILE_ALREADY_REGISTERED",
	ErrAadhaarAlreadyRegistered: "AADHAAR_ALREADY_REGISTERED",
	ErrCardHasHolder:            "CARD_HAS_HOLDER",
}

// ErrorCode returns the machine-readable code for a business error, or
// CodeInternal when the error is not part of the taxonomy.
func ErrorCode(err error) string {
	for sentinel, code := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeInternal
}

// HTTPStatus maps a business error to the response status used by direct
// (non-batch) API calls.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrCardNotFound), errors.Is(err, ErrEntryNotFound):
		return 404
	case errors.Is(err, ErrCardAlreadyEnrolled), errors.Is(err, ErrCardAlreadyBlocked),
		errors.Is(err, ErrAlreadyVoided), errors.Is(err, ErrMobileAlreadyRegistered),
		errors.Is(err, ErrAadhaarAlreadyRegistered), errors.Is(err, ErrCardHasHolder),
		errors.Is(err, ErrDuplicateEntry):
		return 409
	case IsBusinessError(err):
		return 422
	default:
		return 500
	}
}

// IsBusinessError reports whether err belongs to the recoverable taxonomy.
func IsBusinessError(err error) bool {
	for sentinel := range errorCodes {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
