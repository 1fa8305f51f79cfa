package ledger

import (
	"errors"
	"fmt"

	"github.com/shouryapratikofficial/hostel-pool/pkg/store"
)

// Kind classifies an engine failure so callers (the HTTP layer) can branch on
// it instead of matching message strings.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindInvalidAmount        Kind = "invalid_amount"
	KindAmountMismatch       Kind = "amount_mismatch"
	KindNothingDue           Kind = "nothing_due"
	KindNothingToDistribute  Kind = "nothing_to_distribute"
	KindNoEligibleMembers    Kind = "no_eligible_members"
	KindPreconditionFailed   Kind = "precondition_failed"
	KindInsufficientFunds    Kind = "insufficient_funds"
	KindInvalidState         Kind = "invalid_state_transition"
	KindAccountInactive      Kind = "account_inactive"
	KindConfigurationMissing Kind = "configuration_missing"
	KindConflict             Kind = "conflict"

	// KindInvariantViolation marks a broken conservation invariant. It is a
	// bug, not a user error, and aborts the surrounding transaction.
	KindInvariantViolation Kind = "invariant_violation"
)

// Error is the typed failure returned by engine operations.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// E builds a typed engine error.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure kind from err, or "" if err is not an engine
// error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
