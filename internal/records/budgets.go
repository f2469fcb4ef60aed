package records

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/ledger"
)

// KindBudget is the record kind of budgets.
const KindBudget = "budget"

// Budget compares a budgeted amount against the actual amount for an
// account, keyed by account name.
type Budget struct {
	Account  string          `json:"account"`
	Budgeted decimal.Decimal `json:"budgeted"`
	Actual   decimal.Decimal `json:"actual"`
	Type     string          `json:"type"`
}

// Remaining returns Budgeted minus Actual.
func (b Budget) Remaining() decimal.Decimal {
	return b.Budgeted.Sub(b.Actual)
}

// Budgets stores budgets. Set and RecordActual are read-modify-write and run
// one at a time.
type Budgets struct {
	store *Store[Budget]
	mu    sync.Mutex
}

// NewBudgets returns the budget collection of backend.
func NewBudgets(backend Backend, opts ...Option) *Budgets {
	return &Budgets{store: New[Budget](backend, KindBudget, opts...)}
}

// Set creates the budget for account or replaces its budgeted amount.
// The actual amount and type of an existing budget are kept.
func (b *Budgets) Set(ctx context.Context, account string, budgeted decimal.Decimal, budgetType string) (Budget, error) {
	account, err := ledger.ValidateName(account)
	if err != nil {
		return Budget{}, err
	}
	if budgeted.IsNegative() {
		return Budget{}, ledger.NewValidationError("budgeted amount must not be negative")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, err := b.store.Get(ctx, account)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		if budgetType == "" {
			return Budget{}, ledger.NewValidationError("budget type is required")
		}
		budget := Budget{Account: account, Budgeted: budgeted, Actual: decimal.Zero, Type: budgetType}
		if err := b.store.Create(ctx, account, budget); err != nil {
			return Budget{}, err
		}
		return budget, nil
	case err != nil:
		return Budget{}, err
	}

	existing.Budgeted = budgeted
	if err := b.store.Update(ctx, account, existing); err != nil {
		return Budget{}, err
	}
	return existing, nil
}

// RecordActual adds amount to the actual amount of an existing budget.
func (b *Budgets) RecordActual(ctx context.Context, account string, amount decimal.Decimal) (Budget, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return Budget{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	budget, err := b.store.Get(ctx, account)
	if err != nil {
		return Budget{}, err
	}
	budget.Actual = budget.Actual.Add(amount)
	if err := b.store.Update(ctx, budget.Account, budget); err != nil {
		return Budget{}, err
	}
	return budget, nil
}

func (b *Budgets) Get(ctx context.Context, account string) (Budget, error) {
	return b.store.Get(ctx, account)
}

func (b *Budgets) List(ctx context.Context) ([]Budget, error) {
	return b.store.List(ctx)
}
