// Package ledger defines the data model and storage contracts shared by the
// tally engine and its persistence substrates.
//
// The package holds no behavior beyond validation helpers. It describes:
//   - Account: a named holder of a signed decimal balance
//   - Entry: one balance change (opening, credit, debit) in an account's history
//   - Voucher: an immutable, committed transfer between two accounts
//   - Record: an opaque keyed document used by the auxiliary record stores
//
// # Ownership
//
// Substrates (internal/store, internal/filestore) own persisted rows.
// Only the engine (internal/engine) calls AccountStore.UpdateBalance, so all
// balance arithmetic and policy checks live in one place.
//
// # Errors
//
// Every failure that crosses a package boundary is classified with a Code
// (see errors.go). Substrates must report lock contention as CodeTransient so
// the retry layer can tell it apart from permanent faults.
package ledger
