package engine

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/ledger"
	"github.com/roach88/tally/internal/retry"
)

// Engine owns every balance mutation.
//
// Thread-safety: all methods are safe for concurrent use. Mutations on the
// same account are linearized by a per-name lock; different accounts do not
// contend.
type Engine struct {
	sub           ledger.Substrate
	locks         *accountLocks
	policy        retry.Policy
	allowNegative bool
	logger        *slog.Logger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRetryPolicy sets the policy wrapped around every storage mutation.
// Default: retry.Default() (3 attempts, 1s apart).
func WithRetryPolicy(p retry.Policy) EngineOption {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithAllowNegative switches the non-negative balance policy.
// Default: false, debits below zero are rejected.
func WithAllowNegative(allow bool) EngineOption {
	return func(e *Engine) {
		e.allowNegative = allow
	}
}

// New creates an Engine on top of the given substrate. The caller owns the
// substrate's lifecycle.
func New(sub ledger.Substrate, opts ...EngineOption) *Engine {
	e := &Engine{
		sub:    sub,
		locks:  newAccountLocks(),
		policy: retry.Default(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.policy.Logger == nil {
		e.policy.Logger = e.logger
	}
	return e
}

// AllowNegative reports the active balance policy.
func (e *Engine) AllowNegative() bool {
	return e.allowNegative
}

// CreateAccount opens a new account with the given opening balance.
// A negative opening balance is rejected unless negative balances are allowed.
func (e *Engine) CreateAccount(ctx context.Context, name, accountType string, opening decimal.Decimal) (ledger.Account, error) {
	name, err := ledger.ValidateName(name)
	if err != nil {
		return ledger.Account{}, err
	}
	if opening.IsNegative() && !e.allowNegative {
		return ledger.Account{}, &ledger.Error{
			Code:    ledger.CodeValidation,
			Message: "opening balance must not be negative",
			Account: name,
			Details: map[string]string{"opening_balance": opening.String()},
		}
	}

	unlock := e.locks.lock(name)
	defer unlock()

	acct, err := retry.DoValue(ctx, e.policy, "create account", func(ctx context.Context) (ledger.Account, error) {
		return e.sub.CreateAccount(ctx, ledger.Account{
			Name:           name,
			Type:           accountType,
			OpeningBalance: opening,
		})
	})
	if err != nil {
		return ledger.Account{}, err
	}

	e.logger.Info("account created",
		"account", acct.Name,
		"type", acct.Type,
		"opening_balance", acct.OpeningBalance.String(),
	)
	return acct, nil
}

// GetAccount returns the named account.
func (e *Engine) GetAccount(ctx context.Context, name string) (ledger.Account, error) {
	name, err := ledger.ValidateName(name)
	if err != nil {
		return ledger.Account{}, err
	}
	return retry.DoValue(ctx, e.policy, "get account", func(ctx context.Context) (ledger.Account, error) {
		return e.sub.GetAccount(ctx, name)
	})
}

// ListAccounts returns every account ordered by name.
func (e *Engine) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	return retry.DoValue(ctx, e.policy, "list accounts", e.sub.ListAccounts)
}

// DeleteAccount removes an account. Its posting history is kept.
func (e *Engine) DeleteAccount(ctx context.Context, name string) error {
	name, err := ledger.ValidateName(name)
	if err != nil {
		return err
	}

	unlock := e.locks.lock(name)
	defer unlock()

	err = e.policy.Do(ctx, "delete account", func(ctx context.Context) error {
		return e.sub.DeleteAccount(ctx, name)
	})
	if err != nil {
		return err
	}
	e.logger.Info("account deleted", "account", name)
	return nil
}

// Credit increases the balance of name by amount and returns the new
// balance.
func (e *Engine) Credit(ctx context.Context, name string, amount decimal.Decimal) (decimal.Decimal, error) {
	return e.post(ctx, name, creditEntry(amount, "", ""), amount)
}

// Debit decreases the balance of name by amount and returns the new
// balance. Fails with ledger.CodeInsufficientFunds when the result would be
// negative and the policy forbids it.
func (e *Engine) Debit(ctx context.Context, name string, amount decimal.Decimal) (decimal.Decimal, error) {
	return e.post(ctx, name, debitEntry(amount, "", "", e.allowNegative), amount)
}

// post runs one stand-alone balance change under the account lock.
func (e *Engine) post(ctx context.Context, name string, apply ledger.ApplyFunc, amount decimal.Decimal) (decimal.Decimal, error) {
	name, err := ledger.ValidateName(name)
	if err != nil {
		return decimal.Zero, err
	}
	if err := ledger.ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}

	unlock := e.locks.lock(name)
	defer unlock()

	entry, err := e.apply(ctx, name, apply)
	if err != nil {
		return decimal.Zero, err
	}

	e.logger.Debug("balance updated",
		"account", name,
		"op", string(entry.Op),
		"amount", entry.Amount.String(),
		"balance", entry.BalanceAfter.String(),
	)
	return entry.BalanceAfter, nil
}

// applyOn runs UpdateBalance on sub under the retry policy. The caller must
// hold the account lock.
func (e *Engine) applyOn(ctx context.Context, sub ledger.AccountStore, name string, apply ledger.ApplyFunc) (ledger.Entry, error) {
	return retry.DoValue(ctx, e.policy, "update balance", func(ctx context.Context) (ledger.Entry, error) {
		_, entry, err := sub.UpdateBalance(ctx, name, apply)
		return entry, err
	})
}

func (e *Engine) apply(ctx context.Context, name string, apply ledger.ApplyFunc) (ledger.Entry, error) {
	return e.applyOn(ctx, e.sub, name, apply)
}

// History returns the posting history of an account in seq order, starting
// at its latest opening entry. The history of a deleted account stays
// readable until the name is reused.
func (e *Engine) History(ctx context.Context, name string) ([]ledger.Entry, error) {
	name, err := ledger.ValidateName(name)
	if err != nil {
		return nil, err
	}

	entries, err := retry.DoValue(ctx, e.policy, "list entries", func(ctx context.Context) ([]ledger.Entry, error) {
		return e.sub.ListEntries(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		// Every account gets an opening entry, so no entries means no account.
		return nil, ledger.NewNotFound(name)
	}
	if current, ok := sinceLastOpening(entries); ok {
		return current, nil
	}
	return entries, nil
}

// sinceLastOpening drops the entries of earlier accounts that held the same
// name. ok is false when there is no opening entry at all.
func sinceLastOpening(entries []ledger.Entry) ([]ledger.Entry, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Op == ledger.OpOpen {
			return entries[i:], true
		}
	}
	return entries, false
}
