package store

import (
	"context"
	"fmt"

	"github.com/roach88/tally/internal/ledger"
)

// Snapshot reads the complete state inside one transaction, so the
// collections are mutually consistent.
func (s *Store) Snapshot(ctx context.Context) (ledger.Snapshot, error) {
	snap := ledger.Snapshot{
		Meta: ledger.SnapshotMeta{
			Storage:   s.d.name(),
			Version:   ledger.SnapshotVersion,
			Timestamp: s.now().UTC(),
		},
	}

	err := s.withTx(ctx, "snapshot", func(tx *Store) error {
		var err error
		if snap.Accounts, err = tx.ListAccounts(ctx); err != nil {
			return err
		}
		if snap.Entries, err = tx.ListEntries(ctx, ""); err != nil {
			return err
		}
		if snap.Vouchers, err = tx.ListVouchers(ctx); err != nil {
			return err
		}
		snap.Records, err = tx.listRecords(ctx, `
			SELECT kind, record_key, body
			FROM records
			ORDER BY kind COLLATE BINARY ASC, record_key COLLATE BINARY ASC
		`)
		return err
	})
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return snap, nil
}

// Restore loads snap into an empty database, keeping entry seqs and
// voucher ids.
func (s *Store) Restore(ctx context.Context, snap ledger.Snapshot) error {
	if snap.Meta.Version > ledger.SnapshotVersion {
		return ledger.NewValidationError("snapshot version %d is newer than supported version %d", snap.Meta.Version, ledger.SnapshotVersion)
	}

	return s.withTx(ctx, "restore", func(tx *Store) error {
		empty, err := tx.isEmpty(ctx)
		if err != nil {
			return err
		}
		if !empty {
			return ledger.NewValidationError("restore requires an empty database")
		}

		for _, a := range snap.Accounts {
			_, err := tx.exec(ctx, `
				INSERT INTO accounts (`+accountColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, a.Name, a.Type, a.Balance, a.OpeningBalance, a.Version, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
			if err != nil {
				return tx.d.classify("restore account "+a.Name, err)
			}
		}

		for _, e := range snap.Entries {
			_, err := tx.exec(ctx, `
				INSERT INTO entries (`+entryColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, e.Seq, e.Account, string(e.Op), e.Amount, e.BalanceAfter, e.VoucherRef, e.Memo, formatTime(e.At))
			if err != nil {
				return tx.d.classify(fmt.Sprintf("restore entry %d", e.Seq), err)
			}
		}

		for _, v := range snap.Vouchers {
			_, err := tx.exec(ctx, `
				INSERT INTO vouchers (`+voucherColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, v.ID, v.Ref, v.Type, v.Amount, v.Source, v.Destination, v.Description, v.ReversalOf, formatTime(v.CommittedAt))
			if err != nil {
				return tx.d.classify(fmt.Sprintf("restore voucher %d", v.ID), err)
			}
		}

		for _, r := range snap.Records {
			if err := tx.CreateRecord(ctx, r); err != nil {
				return err
			}
		}

		return tx.d.afterRestore(ctx, tx.q)
	})
}

func (s *Store) isEmpty(ctx context.Context) (bool, error) {
	var n int64
	err := s.queryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM accounts)
		     + (SELECT COUNT(*) FROM entries)
		     + (SELECT COUNT(*) FROM vouchers)
		     + (SELECT COUNT(*) FROM records)
	`).Scan(&n)
	if err != nil {
		return false, s.d.classify("count rows", err)
	}
	return n == 0, nil
}
