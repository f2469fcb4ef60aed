package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/tally/internal/ledger"
)

// CreateAccount inserts the account and its opening entry in one
// transaction. Balance is initialised to OpeningBalance and Version to 0.
func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	now := s.now().UTC()
	a.Balance = a.OpeningBalance
	a.Version = 0
	a.CreatedAt = now
	a.UpdatedAt = now

	err := s.withTx(ctx, "create account", func(tx *Store) error {
		_, err := tx.exec(ctx, `
			INSERT INTO accounts (`+accountColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			a.Name,
			a.Type,
			a.Balance,
			a.OpeningBalance,
			a.Version,
			formatTime(a.CreatedAt),
			formatTime(a.UpdatedAt),
		)
		if err != nil {
			err = tx.d.classify("create account", err)
			if ledger.CodeOf(err) == ledger.CodeDuplicate {
				return ledger.NewDuplicateAccount(a.Name)
			}
			return err
		}

		_, err = tx.insertEntry(ctx, ledger.Entry{
			Account:      a.Name,
			Op:           ledger.OpOpen,
			Amount:       a.OpeningBalance,
			BalanceAfter: a.OpeningBalance,
			At:           now,
		})
		return err
	})
	if err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

// DeleteAccount removes the account row. Its entries stay in the history.
func (s *Store) DeleteAccount(ctx context.Context, name string) error {
	res, err := s.exec(ctx, `DELETE FROM accounts WHERE name = ?`, name)
	if err != nil {
		return s.d.classify("delete account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete account: rows affected: %w", err)
	}
	if n == 0 {
		return ledger.NewNotFound(name)
	}
	return nil
}

// UpdateBalance reads the account, asks apply for the entry to write and
// stores the new balance guarded by the version that was read.
//
// The entry's Account, At and Seq are filled in by the store; apply supplies
// Op, Amount, BalanceAfter, VoucherRef and Memo.
func (s *Store) UpdateBalance(ctx context.Context, name string, apply ledger.ApplyFunc) (ledger.Account, ledger.Entry, error) {
	var (
		acct  ledger.Account
		entry ledger.Entry
	)

	err := s.withTx(ctx, "update balance", func(tx *Store) error {
		current, err := tx.GetAccount(ctx, name)
		if err != nil {
			return err
		}

		entry, err = apply(current)
		if err != nil {
			return err
		}

		now := tx.now().UTC()
		entry.Account = current.Name
		entry.At = now

		res, err := tx.exec(ctx, `
			UPDATE accounts
			SET balance = ?, version = version + 1, updated_at = ?
			WHERE name = ? AND version = ?
		`,
			entry.BalanceAfter,
			formatTime(now),
			current.Name,
			current.Version,
		)
		if err != nil {
			return tx.d.classify("update balance", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update balance: rows affected: %w", err)
		}
		if n == 0 {
			return &ledger.Error{
				Code:    ledger.CodeTransient,
				Message: "concurrent update",
				Account: current.Name,
				Details: map[string]string{"version": strconv.FormatInt(current.Version, 10)},
			}
		}

		if entry.Seq, err = tx.insertEntry(ctx, entry); err != nil {
			return err
		}

		acct = current
		acct.Balance = entry.BalanceAfter
		acct.Version = current.Version + 1
		acct.UpdatedAt = now
		return nil
	})
	if err != nil {
		return ledger.Account{}, ledger.Entry{}, err
	}
	return acct, entry, nil
}

// insertEntry appends an entry and returns its assigned seq.
func (s *Store) insertEntry(ctx context.Context, e ledger.Entry) (int64, error) {
	var seq int64
	err := s.queryRow(ctx, `
		INSERT INTO entries (account, op, amount, balance_after, voucher_ref, memo, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING seq
	`,
		e.Account,
		string(e.Op),
		e.Amount,
		e.BalanceAfter,
		e.VoucherRef,
		e.Memo,
		formatTime(e.At),
	).Scan(&seq)
	if err != nil {
		return 0, s.d.classify("append entry", err)
	}
	return seq, nil
}

// AppendVoucher assigns the next id and the commit time and persists v.
// A ref that was already committed fails with ledger.CodeDuplicate.
func (s *Store) AppendVoucher(ctx context.Context, v ledger.Voucher) (ledger.Voucher, error) {
	v.CommittedAt = s.now().UTC()

	err := s.queryRow(ctx, `
		INSERT INTO vouchers (ref, type, amount, source, destination, description, reversal_of, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		v.Ref,
		v.Type,
		v.Amount,
		v.Source,
		v.Destination,
		v.Description,
		v.ReversalOf,
		formatTime(v.CommittedAt),
	).Scan(&v.ID)
	if err != nil {
		err = s.d.classify("append voucher", err)
		if ledger.CodeOf(err) == ledger.CodeDuplicate && v.ReversalOf != 0 && strings.Contains(err.Error(), "reversal_of") {
			dup := ledger.NewAlreadyReversed(v.ReversalOf, 0)
			dup.Err = err
			return ledger.Voucher{}, dup
		}
		if ledger.CodeOf(err) == ledger.CodeDuplicate {
			return ledger.Voucher{}, &ledger.Error{
				Code:    ledger.CodeDuplicate,
				Message: "voucher already committed",
				Details: map[string]string{"voucher_ref": v.Ref},
				Err:     err,
			}
		}
		return ledger.Voucher{}, err
	}
	return v, nil
}

// CreateRecord inserts a record. Fails with ledger.CodeDuplicate if the
// (kind, key) pair exists.
func (s *Store) CreateRecord(ctx context.Context, r ledger.Record) error {
	_, err := s.exec(ctx, `
		INSERT INTO records (kind, record_key, body) VALUES (?, ?, ?)
	`, r.Kind, r.Key, string(r.Body))
	if err != nil {
		err = s.d.classify("create record", err)
		if ledger.CodeOf(err) == ledger.CodeDuplicate {
			return ledger.NewDuplicateRecord(r.Kind, r.Key)
		}
		return err
	}
	return nil
}

// UpdateRecord replaces the body of an existing record.
func (s *Store) UpdateRecord(ctx context.Context, r ledger.Record) error {
	res, err := s.exec(ctx, `
		UPDATE records SET body = ? WHERE kind = ? AND record_key = ?
	`, string(r.Body), r.Kind, r.Key)
	if err != nil {
		return s.d.classify("update record", err)
	}
	return requireAffected(res, "update record", r.Kind, r.Key)
}

// DeleteRecord removes a record.
func (s *Store) DeleteRecord(ctx context.Context, kind, key string) error {
	res, err := s.exec(ctx, `
		DELETE FROM records WHERE kind = ? AND record_key = ?
	`, kind, key)
	if err != nil {
		return s.d.classify("delete record", err)
	}
	return requireAffected(res, "delete record", kind, key)
}

func requireAffected(res sql.Result, op, kind, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return ledger.NewRecordNotFound(kind, key)
	}
	return nil
}

// isNoRows reports whether err is sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
