package engine

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/ledger"
)

// ReconcileMemo marks entries written by Reconcile.
const ReconcileMemo = "reconciliation"

// Reconciliation is the outcome of matching an account to a statement.
type Reconciliation struct {
	Account    string          `json:"account"`
	Previous   decimal.Decimal `json:"previous"`
	Statement  decimal.Decimal `json:"statement"`
	Difference decimal.Decimal `json:"difference"`
	Adjusted   bool            `json:"adjusted"`
}

// errInBalance aborts UpdateBalance without writing when the account already
// matches the statement.
var errInBalance = errors.New("account already matches statement")

// Reconcile brings the balance of name to statement by posting one credit or
// debit for the difference. When the balance already matches, nothing is
// written and Adjusted is false.
//
// The statement is authoritative, so the adjusting debit ignores the
// non-negative policy except that a negative statement balance is refused
// when the policy is on.
func (e *Engine) Reconcile(ctx context.Context, name string, statement decimal.Decimal) (Reconciliation, error) {
	name, err := ledger.ValidateName(name)
	if err != nil {
		return Reconciliation{}, err
	}
	if statement.IsNegative() && !e.allowNegative {
		return Reconciliation{}, &ledger.Error{
			Code:    ledger.CodeValidation,
			Message: "statement balance must not be negative",
			Account: name,
			Details: map[string]string{"statement": statement.String()},
		}
	}

	unlock := e.locks.lock(name)
	defer unlock()

	var rec Reconciliation
	apply := func(current ledger.Account) (ledger.Entry, error) {
		diff := statement.Sub(current.Balance)
		rec = Reconciliation{
			Account:    current.Name,
			Previous:   current.Balance,
			Statement:  statement,
			Difference: diff,
		}
		switch diff.Sign() {
		case 0:
			return ledger.Entry{}, errInBalance
		case 1:
			return creditEntry(diff, "", ReconcileMemo)(current)
		default:
			return debitEntry(diff.Neg(), "", ReconcileMemo, true)(current)
		}
	}

	_, err = e.apply(ctx, name, apply)
	if errors.Is(err, errInBalance) {
		e.logger.Info("account reconciled", "account", name, "adjusted", false)
		return rec, nil
	}
	if err != nil {
		return Reconciliation{}, err
	}

	rec.Adjusted = true
	e.logger.Info("account reconciled",
		"account", name,
		"adjusted", true,
		"difference", rec.Difference.String(),
	)
	return rec, nil
}
