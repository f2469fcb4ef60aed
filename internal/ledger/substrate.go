package ledger

import "context"

// ApplyFunc computes the entry to write for an account, given its current
// state. Returning an error aborts the update without writing anything.
type ApplyFunc func(current Account) (Entry, error)

// AccountStore is the durable keyed map from account name to account state.
//
// Every mutating method persists its effect before returning.
type AccountStore interface {
	// CreateAccount inserts a new account and its opening entry.
	// Fails with CodeDuplicate if the name exists.
	CreateAccount(ctx context.Context, a Account) (Account, error)

	// GetAccount fails with CodeNotFound if the name is absent.
	GetAccount(ctx context.Context, name string) (Account, error)

	// ListAccounts returns all accounts ordered by name ascending.
	ListAccounts(ctx context.Context) ([]Account, error)

	// DeleteAccount fails with CodeNotFound if the name is absent.
	DeleteAccount(ctx context.Context, name string) error

	// UpdateBalance performs an atomic read-modify-write of one account:
	// read, call apply, write Entry.BalanceAfter guarded by the version read,
	// and append the entry. A concurrent writer winning the race yields
	// CodeTransient.
	UpdateBalance(ctx context.Context, name string, apply ApplyFunc) (Account, Entry, error)

	// ListEntries returns posting history ordered by seq. An empty account
	// name returns the history of every account.
	ListEntries(ctx context.Context, account string) ([]Entry, error)
}

// Journal is the append-only transaction log of committed vouchers.
type Journal interface {
	// AppendVoucher assigns ID and CommittedAt and persists the voucher.
	// Fails with CodeDuplicate if the ref exists or if v.ReversalOf is
	// already reversed.
	AppendVoucher(ctx context.Context, v Voucher) (Voucher, error)

	// GetVoucher fails with CodeNotFound if id was never assigned.
	GetVoucher(ctx context.Context, id int64) (Voucher, error)

	// ListVouchers returns every voucher ordered by id ascending.
	ListVouchers(ctx context.Context) ([]Voucher, error)

	// FindReversal returns the voucher reversing id.
	// Fails with CodeNotFound if id has not been reversed.
	FindReversal(ctx context.Context, id int64) (Voucher, error)
}

// Substrate is the persistence collaborator required by the engine.
type Substrate interface {
	AccountStore
	Journal
}

// Atomic is implemented by substrates that can run several mutations as one
// all-or-nothing unit. The Substrate passed to fn is only valid inside fn.
type Atomic interface {
	Atomically(ctx context.Context, fn func(tx Substrate) error) error
}

// Snapshotter exports and imports the complete persisted state.
type Snapshotter interface {
	Snapshot(ctx context.Context) (Snapshot, error)

	// Restore loads snap into an empty substrate, keeping ids and seqs.
	// Fails with CodeValidation if the substrate already holds data.
	Restore(ctx context.Context, snap Snapshot) error
}
