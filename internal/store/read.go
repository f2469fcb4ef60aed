package store

import (
	"context"
	"fmt"

	"github.com/roach88/tally/internal/ledger"
)

// GetAccount returns the named account or ledger.CodeNotFound.
func (s *Store) GetAccount(ctx context.Context, name string) (ledger.Account, error) {
	row := s.queryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE name = ?
	`, name)

	a, err := scanAccount(row)
	if err != nil {
		if isNoRows(err) {
			return ledger.Account{}, ledger.NewNotFound(name)
		}
		return ledger.Account{}, s.d.classify("get account", err)
	}
	return a, nil
}

// ListAccounts returns all accounts ordered by name in byte order.
//
// Returns an empty slice (not nil) if there are no accounts.
func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, s.d.classify("list accounts", err)
	}
	defer rows.Close()

	accounts := []ledger.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// ListEntries returns the posting history of one account, or of every
// account when name is empty, ordered by seq.
func (s *Store) ListEntries(ctx context.Context, name string) ([]ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries`
	var args []any
	if name != "" {
		query += ` WHERE account = ?`
		args = append(args, name)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, s.d.classify("list entries", err)
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// GetVoucher returns the voucher with the given id.
func (s *Store) GetVoucher(ctx context.Context, id int64) (ledger.Voucher, error) {
	row := s.queryRow(ctx, `
		SELECT `+voucherColumns+`
		FROM vouchers
		WHERE id = ?
	`, id)

	v, err := scanVoucher(row)
	if err != nil {
		if isNoRows(err) {
			return ledger.Voucher{}, ledger.NewVoucherNotFound(id)
		}
		return ledger.Voucher{}, s.d.classify("get voucher", err)
	}
	return v, nil
}

// FindReversal returns the voucher whose reversal_of is id.
func (s *Store) FindReversal(ctx context.Context, id int64) (ledger.Voucher, error) {
	row := s.queryRow(ctx, `
		SELECT `+voucherColumns+`
		FROM vouchers
		WHERE reversal_of = ? AND reversal_of <> 0
	`, id)

	v, err := scanVoucher(row)
	if err != nil {
		if isNoRows(err) {
			return ledger.Voucher{}, ledger.NewNotReversed(id)
		}
		return ledger.Voucher{}, s.d.classify("find reversal", err)
	}
	return v, nil
}

// ListVouchers returns the whole journal in commit order.
func (s *Store) ListVouchers(ctx context.Context) ([]ledger.Voucher, error) {
	rows, err := s.query(ctx, `
		SELECT `+voucherColumns+`
		FROM vouchers
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, s.d.classify("list vouchers", err)
	}
	defer rows.Close()

	vouchers := []ledger.Voucher{}
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voucher: %w", err)
		}
		vouchers = append(vouchers, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vouchers: %w", err)
	}
	return vouchers, nil
}

// GetRecord returns one record or ledger.CodeNotFound.
func (s *Store) GetRecord(ctx context.Context, kind, key string) (ledger.Record, error) {
	row := s.queryRow(ctx, `
		SELECT kind, record_key, body
		FROM records
		WHERE kind = ? AND record_key = ?
	`, kind, key)

	r, err := scanRecord(row)
	if err != nil {
		if isNoRows(err) {
			return ledger.Record{}, ledger.NewRecordNotFound(kind, key)
		}
		return ledger.Record{}, s.d.classify("get record", err)
	}
	return r, nil
}

// ListRecords returns the records of one kind ordered by key.
func (s *Store) ListRecords(ctx context.Context, kind string) ([]ledger.Record, error) {
	return s.listRecords(ctx, `
		SELECT kind, record_key, body
		FROM records
		WHERE kind = ?
		ORDER BY record_key COLLATE BINARY ASC
	`, kind)
}

func (s *Store) listRecords(ctx context.Context, query string, args ...any) ([]ledger.Record, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, s.d.classify("list records", err)
	}
	defer rows.Close()

	records := []ledger.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
