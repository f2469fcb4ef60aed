// Package harness runs ledger scenarios: YAML files that describe a starting
// chart of accounts, a sequence of ledger operations with their expected
// outcomes, and assertions on the final books.
//
// # Scenario Format
//
//	name: pay_supplier
//	description: "Cash pays a supplier invoice"
//	allow_negative: false
//	accounts:
//	  - { name: Cash, type: Asset, balance: "100" }
//	  - { name: Supplier, type: Liability, balance: "0" }
//	steps:
//	  - { op: post, type: payment, from: Cash, to: Supplier, amount: "40" }
//	  - { op: debit, account: Cash, amount: "500", expect: INSUFFICIENT_FUNDS }
//	assertions:
//	  - { type: balance, account: Cash, expect: "60" }
//	  - { type: voucher_count, count: 1 }
//
// # Operations
//
//   - create: open account with type and amount as opening balance
//   - credit, debit: stand-alone balance change on account
//   - post: voucher of type moving amount from one account to another
//   - reverse: reverse the voucher with the given id
//   - reconcile: bring account to the statement balance in amount
//   - delete: remove account
//
// A step's expect is "ok" (the default) or a ledger error code such as
// VALIDATION or INSUFFICIENT_FUNDS.
//
// # Assertion Types
//
//   - balance: account balance equals expect
//   - total: sum of all balances equals expect
//   - voucher_count: number of logged vouchers equals count
//   - entry_count: number of history entries of account equals count
//   - audit_clean: replaying the history finds no problems
//
// # Deterministic Testing
//
// Each scenario runs against a fresh in-memory SQLite store with a
// deterministic clock and sequential voucher refs (v-1, v-2, ...), so the
// same scenario always yields the same trace and golden snapshot.
package harness
