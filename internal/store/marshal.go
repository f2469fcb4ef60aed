package store

import (
	"fmt"
	"time"

	"github.com/roach88/tally/internal/ledger"
)

// Timestamps are stored as TEXT in UTC so both dialects compare and
// round-trip them identically.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const accountColumns = `name, type, balance, opening_balance, version, created_at, updated_at`

func scanAccount(row rowScanner) (ledger.Account, error) {
	var (
		a                    ledger.Account
		createdAt, updatedAt string
	)
	if err := row.Scan(&a.Name, &a.Type, &a.Balance, &a.OpeningBalance, &a.Version, &createdAt, &updatedAt); err != nil {
		return ledger.Account{}, err
	}

	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Account{}, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

const entryColumns = `seq, account, op, amount, balance_after, voucher_ref, memo, at`

func scanEntry(row rowScanner) (ledger.Entry, error) {
	var (
		e  ledger.Entry
		op string
		at string
	)
	if err := row.Scan(&e.Seq, &e.Account, &op, &e.Amount, &e.BalanceAfter, &e.VoucherRef, &e.Memo, &at); err != nil {
		return ledger.Entry{}, err
	}
	e.Op = ledger.Operation(op)

	var err error
	if e.At, err = parseTime(at); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

const voucherColumns = `id, ref, type, amount, source, destination, description, reversal_of, committed_at`

func scanVoucher(row rowScanner) (ledger.Voucher, error) {
	var (
		v           ledger.Voucher
		committedAt string
	)
	if err := row.Scan(&v.ID, &v.Ref, &v.Type, &v.Amount, &v.Source, &v.Destination, &v.Description, &v.ReversalOf, &committedAt); err != nil {
		return ledger.Voucher{}, err
	}

	var err error
	if v.CommittedAt, err = parseTime(committedAt); err != nil {
		return ledger.Voucher{}, err
	}
	return v, nil
}

func scanRecord(row rowScanner) (ledger.Record, error) {
	var (
		r    ledger.Record
		body string
	)
	if err := row.Scan(&r.Kind, &r.Key, &body); err != nil {
		return ledger.Record{}, err
	}
	r.Body = []byte(body)
	return r, nil
}
