package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/ledger"
	"github.com/roach88/tally/internal/retry"
)

// AccountAudit is the replay result for one account.
type AccountAudit struct {
	Account  string          `json:"account"`
	Balance  decimal.Decimal `json:"balance"`
	Replayed decimal.Decimal `json:"replayed"`
	Entries  int             `json:"entries"`
	OK       bool            `json:"ok"`
}

// Audit is the result of Verify.
type Audit struct {
	Accounts []AccountAudit `json:"accounts"`
	Vouchers int            `json:"vouchers"`
	Problems []string       `json:"problems"`
}

// OK reports whether the audit found no problems.
func (a Audit) OK() bool {
	return len(a.Problems) == 0
}

// Verify replays the posting history and checks it against the stored state:
//   - each account's entries start with its opening entry, every
//     balance_after follows from the previous one, and the last one equals
//     the stored balance
//   - each logged voucher has a debit entry on its source and a credit entry
//     on its destination for the voucher amount
//
// Verify reports problems; it never changes anything.
func (e *Engine) Verify(ctx context.Context) (Audit, error) {
	accounts, err := e.ListAccounts(ctx)
	if err != nil {
		return Audit{}, err
	}
	entries, err := retry.DoValue(ctx, e.policy, "list entries", func(ctx context.Context) ([]ledger.Entry, error) {
		return e.sub.ListEntries(ctx, "")
	})
	if err != nil {
		return Audit{}, err
	}
	vouchers, err := retry.DoValue(ctx, e.policy, "list vouchers", e.sub.ListVouchers)
	if err != nil {
		return Audit{}, err
	}

	byAccount := make(map[string][]ledger.Entry)
	byRef := make(map[string][]ledger.Entry)
	for _, entry := range entries {
		byAccount[entry.Account] = append(byAccount[entry.Account], entry)
		if entry.VoucherRef != "" {
			byRef[entry.VoucherRef] = append(byRef[entry.VoucherRef], entry)
		}
	}

	audit := Audit{
		Accounts: make([]AccountAudit, 0, len(accounts)),
		Vouchers: len(vouchers),
		Problems: []string{},
	}

	for _, acct := range accounts {
		result, problems := replayAccount(acct, byAccount[acct.Name])
		audit.Accounts = append(audit.Accounts, result)
		audit.Problems = append(audit.Problems, problems...)
	}

	for _, v := range vouchers {
		audit.Problems = append(audit.Problems, checkVoucherLegs(v, byRef[v.Ref])...)
	}

	if audit.OK() {
		e.logger.Info("ledger verified", "accounts", len(accounts), "vouchers", len(vouchers))
	} else {
		e.logger.Warn("ledger verification failed", "problems", len(audit.Problems))
	}
	return audit, nil
}

func replayAccount(acct ledger.Account, entries []ledger.Entry) (AccountAudit, []string) {
	var problems []string
	result := AccountAudit{Account: acct.Name, Balance: acct.Balance, Entries: len(entries)}

	// A name can be reused after delete; replay from its latest opening.
	entries, ok := sinceLastOpening(entries)
	if !ok {
		problems = append(problems, fmt.Sprintf("account %s: no opening entry", acct.Name))
		result.Replayed = decimal.Zero
		return result, problems
	}
	result.Entries = len(entries)

	running := decimal.Zero
	for _, entry := range entries {
		switch entry.Op {
		case ledger.OpOpen:
			running = entry.Amount
		default:
			running = running.Add(entry.Signed())
		}
		if !running.Equal(entry.BalanceAfter) {
			problems = append(problems, fmt.Sprintf(
				"account %s: entry %d records balance %s but replay gives %s",
				acct.Name, entry.Seq, entry.BalanceAfter, running,
			))
			running = entry.BalanceAfter
		}
	}

	result.Replayed = running
	if !running.Equal(acct.Balance) {
		problems = append(problems, fmt.Sprintf(
			"account %s: balance %s but entries replay to %s",
			acct.Name, acct.Balance, running,
		))
	}
	result.OK = len(problems) == 0
	return result, problems
}

func checkVoucherLegs(v ledger.Voucher, entries []ledger.Entry) []string {
	var debit, credit bool
	for _, entry := range entries {
		if !entry.Amount.Equal(v.Amount) || entry.Memo != "" {
			continue
		}
		switch {
		case entry.Op == ledger.OpDebit && entry.Account == v.Source:
			debit = true
		case entry.Op == ledger.OpCredit && entry.Account == v.Destination:
			credit = true
		}
	}

	var problems []string
	if !debit {
		problems = append(problems, fmt.Sprintf("voucher %d: no debit of %s on %s", v.ID, v.Amount, v.Source))
	}
	if !credit {
		problems = append(problems, fmt.Sprintf("voucher %d: no credit of %s on %s", v.ID, v.Amount, v.Destination))
	}
	return problems
}
