// Package engine implements the tally ledger engine and voucher processor.
//
// The Engine is the only writer of account balances. Every balance change
// goes through ledger.AccountStore.UpdateBalance and is wrapped in the
// retry policy, so storage contention is absorbed before callers see it.
//
// ARCHITECTURE:
//
// Per-account serialization:
// An in-process keyed mutex serializes read-modify-write on each account
// name. There is no global lock; operations on unrelated accounts run in
// parallel. The store's version compare-and-swap covers other processes
// sharing the same database.
//
// Voucher state machine (Processor.Post):
//
//	Validated -> DebitApplied -> CreditApplied -> Logged
//	    |              |               |
//	 Rejected      Rejected      PartiallyApplied
//	              (compensated)   (ConsistencyFault)
//
// Both account locks are taken in name order and held for the whole
// voucher. When the substrate implements ledger.Atomic the two legs and the
// journal append commit as one transaction and the intermediate states are
// never visible. Otherwise the processor runs the steps one by one and
// compensates on failure.
//
// CRITICAL PATTERNS:
//
// Cancellation: once the debit leg is durable the remaining steps run on
// context.WithoutCancel(ctx). A cancelled caller never strands a debit.
//
// Policy: with AllowNegative off (the default) a debit that would take a
// balance below zero fails with ledger.CodeInsufficientFunds before anything
// is written.
package engine
