package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// Account is the persisted state of a ledger account.
//
// Balance is only ever changed through AccountStore.UpdateBalance; Version is
// bumped on every such write and used by substrates for compare-and-swap.
type Account struct {
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	Balance        decimal.Decimal `json:"balance"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Operation identifies the kind of balance change recorded by an Entry.
type Operation string

const (
	// OpOpen records the opening balance written at account creation.
	OpOpen Operation = "open"
	// OpCredit increases the balance.
	OpCredit Operation = "credit"
	// OpDebit decreases the balance.
	OpDebit Operation = "debit"
)

// Entry is one line of an account's posting history.
// Entries are append-only; Seq is assigned by the substrate.
type Entry struct {
	Seq          int64           `json:"seq"`
	Account      string          `json:"account"`
	Op           Operation       `json:"op"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	VoucherRef   string          `json:"voucher_ref,omitempty"`
	Memo         string          `json:"memo,omitempty"`
	At           time.Time       `json:"at"`
}

// Signed returns the entry amount with the sign of its effect on the balance.
func (e Entry) Signed() decimal.Decimal {
	if e.Op == OpDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// NormalizeName returns the canonical form of an account name or record key:
// surrounding whitespace trimmed and Unicode NFC normalized. Case is kept.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateName normalizes name and rejects empty names.
func ValidateName(name string) (string, error) {
	n := NormalizeName(name)
	if n == "" {
		return "", NewValidationError("account name is required")
	}
	return n, nil
}

// ValidateAmount rejects zero and negative amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &Error{
			Code:    CodeValidation,
			Message: "amount must be greater than zero",
			Details: map[string]string{"amount": amount.String()},
		}
	}
	return nil
}
