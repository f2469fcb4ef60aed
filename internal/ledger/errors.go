package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Code categorizes ledger failures.
type Code string

const (
	// CodeValidation indicates bad input. Never retried.
	CodeValidation Code = "VALIDATION"

	// CodeNotFound indicates a referenced account, voucher or record is absent.
	CodeNotFound Code = "NOT_FOUND"

	// CodeDuplicate indicates an account or record key already exists.
	CodeDuplicate Code = "DUPLICATE"

	// CodeInsufficientFunds indicates a debit would breach the non-negative policy.
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"

	// CodeTransient indicates storage contention (busy, locked, lost CAS race).
	// The retry layer retries these and surfaces them once attempts run out.
	CodeTransient Code = "TRANSIENT"

	// CodeConsistencyFault indicates a voucher was left partially applied and
	// compensation failed. Requires manual reconciliation.
	CodeConsistencyFault Code = "CONSISTENCY_FAULT"
)

// Error is the classified error type returned across package boundaries.
//
// Sentinel values (ErrNotFound, ErrTransient, ...) carry only a Code and match
// any *Error with the same Code under errors.Is.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Account names the affected account, when there is one.
	Account string

	// Details contains additional context (voucher ref, stage, amounts).
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is matching by code.
var (
	ErrValidation        = &Error{Code: CodeValidation}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrDuplicate         = &Error{Code: CodeDuplicate}
	ErrInsufficientFunds = &Error{Code: CodeInsufficientFunds}
	ErrTransient         = &Error{Code: CodeTransient}
	ErrConsistencyFault  = &Error{Code: CodeConsistencyFault}
)

var defaultMessages = map[Code]string{
	CodeValidation:        "validation failure",
	CodeNotFound:          "not found",
	CodeDuplicate:         "already exists",
	CodeInsufficientFunds: "insufficient funds",
	CodeTransient:         "storage busy",
	CodeConsistencyFault:  "voucher partially applied, manual reconciliation required",
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessages[e.Code]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, msg)
	if e.Account != "" {
		fmt.Fprintf(&b, " (account=%s)", e.Account)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Details[k])
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a bare sentinel with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Account == "" && t.Err == nil && t.Code == e.Code
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsTransient reports whether err is classified as storage contention.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsConsistencyFault reports whether err signals a partially applied voucher.
func IsConsistencyFault(err error) bool {
	return errors.Is(err, ErrConsistencyFault)
}

// NewValidationError creates a CodeValidation error.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound creates a CodeNotFound error for an account.
func NewNotFound(account string) *Error {
	return &Error{Code: CodeNotFound, Message: "account not found", Account: account}
}

// NewDuplicateAccount creates a CodeDuplicate error for an account.
func NewDuplicateAccount(account string) *Error {
	return &Error{Code: CodeDuplicate, Message: "account already exists", Account: account}
}

// NewVoucherNotFound creates a CodeNotFound error for a voucher id.
func NewVoucherNotFound(id int64) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: "voucher not found",
		Details: map[string]string{"id": strconv.FormatInt(id, 10)},
	}
}

// NewNotReversed creates a CodeNotFound error for a voucher with no reversal.
func NewNotReversed(voucherID int64) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: "voucher not reversed",
		Details: map[string]string{"voucher_id": strconv.FormatInt(voucherID, 10)},
	}
}

// NewAlreadyReversed creates a CodeDuplicate error for a second reversal of
// voucherID. reversalID is the existing reversal, or 0 if unknown.
func NewAlreadyReversed(voucherID, reversalID int64) *Error {
	details := map[string]string{"voucher_id": strconv.FormatInt(voucherID, 10)}
	if reversalID != 0 {
		details["reversal_id"] = strconv.FormatInt(reversalID, 10)
	}
	return &Error{Code: CodeDuplicate, Message: "voucher already reversed", Details: details}
}

// NewTransient wraps a storage contention failure.
func NewTransient(op string, err error) *Error {
	return &Error{Code: CodeTransient, Message: op, Err: err}
}

// NewConsistencyFault reports a voucher stuck in the partially applied state.
// cause is the failure that interrupted the voucher; compensation is the
// failure of the corrective mutation.
func NewConsistencyFault(v Voucher, stage string, cause, compensation error) *Error {
	return &Error{
		Code:    CodeConsistencyFault,
		Message: "voucher partially applied, manual reconciliation required",
		Details: map[string]string{
			"voucher_ref": v.Ref,
			"source":      v.Source,
			"destination": v.Destination,
			"amount":      v.Amount.String(),
			"stage":       stage,
		},
		Err: errors.Join(cause, compensation),
	}
}
