package engine

import (
	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/ledger"
)

// creditEntry returns an ApplyFunc that adds amount to the balance.
func creditEntry(amount decimal.Decimal, ref, memo string) ledger.ApplyFunc {
	return func(current ledger.Account) (ledger.Entry, error) {
		return ledger.Entry{
			Op:           ledger.OpCredit,
			Amount:       amount,
			BalanceAfter: current.Balance.Add(amount),
			VoucherRef:   ref,
			Memo:         memo,
		}, nil
	}
}

// debitEntry returns an ApplyFunc that subtracts amount from the balance,
// refusing to go below zero unless allowNegative is set.
func debitEntry(amount decimal.Decimal, ref, memo string, allowNegative bool) ledger.ApplyFunc {
	return func(current ledger.Account) (ledger.Entry, error) {
		after := current.Balance.Sub(amount)
		if after.IsNegative() && !allowNegative {
			return ledger.Entry{}, insufficientFunds(current, amount)
		}
		return ledger.Entry{
			Op:           ledger.OpDebit,
			Amount:       amount,
			BalanceAfter: after,
			VoucherRef:   ref,
			Memo:         memo,
		}, nil
	}
}

func insufficientFunds(current ledger.Account, requested decimal.Decimal) *ledger.Error {
	return &ledger.Error{
		Code:    ledger.CodeInsufficientFunds,
		Message: "insufficient funds",
		Account: current.Name,
		Details: map[string]string{
			"balance":   current.Balance.String(),
			"requested": requested.String(),
		},
	}
}
