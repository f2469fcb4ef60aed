package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/tally/internal/ledger"
)

// ErrInjected is the default failure returned by FaultySubstrate.
var ErrInjected = errors.New("injected failure")

// FaultySubstrate wraps a substrate and fails selected calls.
//
// It deliberately exposes only ledger.Substrate, so code that checks for
// ledger.Atomic falls back to its step-by-step path even when the wrapped
// substrate is transactional.
//
// Faults are queued per operation: each matching call pops one error; a nil
// entry lets that call through. Calls past the end of a queue pass through.
type FaultySubstrate struct {
	ledger.Substrate

	mu           sync.Mutex
	updateFaults map[string][]error
	appendFaults []error
	updateCalls  map[string]int
	afterUpdate  func(account string)
}

// NewFaultySubstrate wraps inner.
func NewFaultySubstrate(inner ledger.Substrate) *FaultySubstrate {
	return &FaultySubstrate{
		Substrate:    inner,
		updateFaults: make(map[string][]error),
		updateCalls:  make(map[string]int),
	}
}

// FailUpdate queues failures for UpdateBalance on account.
func (f *FaultySubstrate) FailUpdate(account string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateFaults[account] = append(f.updateFaults[account], errs...)
}

// FailAppend queues failures for AppendVoucher.
func (f *FaultySubstrate) FailAppend(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendFaults = append(f.appendFaults, errs...)
}

// AfterUpdate registers a hook run after every successful UpdateBalance.
func (f *FaultySubstrate) AfterUpdate(hook func(account string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterUpdate = hook
}

// UpdateCalls returns how many times UpdateBalance was called for account,
// failed calls included.
func (f *FaultySubstrate) UpdateCalls(account string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCalls[account]
}

func (f *FaultySubstrate) UpdateBalance(ctx context.Context, name string, apply ledger.ApplyFunc) (ledger.Account, ledger.Entry, error) {
	f.mu.Lock()
	f.updateCalls[name]++
	var err error
	if q := f.updateFaults[name]; len(q) > 0 {
		err, f.updateFaults[name] = q[0], q[1:]
	}
	hook := f.afterUpdate
	f.mu.Unlock()

	if err != nil {
		return ledger.Account{}, ledger.Entry{}, err
	}

	acct, entry, err := f.Substrate.UpdateBalance(ctx, name, apply)
	if err == nil && hook != nil {
		hook(name)
	}
	return acct, entry, err
}

func (f *FaultySubstrate) AppendVoucher(ctx context.Context, v ledger.Voucher) (ledger.Voucher, error) {
	f.mu.Lock()
	var err error
	if len(f.appendFaults) > 0 {
		err, f.appendFaults = f.appendFaults[0], f.appendFaults[1:]
	}
	f.mu.Unlock()

	if err != nil {
		return ledger.Voucher{}, err
	}
	return f.Substrate.AppendVoucher(ctx, v)
}
