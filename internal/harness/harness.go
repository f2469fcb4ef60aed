package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/ledger"
	"github.com/roach88/tally/internal/retry"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/testutil"
)

// Harness executes the steps of one scenario.
type Harness struct {
	store     *store.Store
	engine    *engine.Engine
	processor *engine.Processor
	logger    *slog.Logger
}

// Run executes a scenario in a fresh in-memory database and returns the
// result. The error is non-nil only when the run itself could not happen;
// failed expectations and assertions are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	clock := testutil.NewDeterministicClock()
	st, err := store.Open(":memory:", store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(st,
		engine.WithLogger(logger),
		engine.WithAllowNegative(scenario.AllowNegative),
		engine.WithRetryPolicy(retry.Policy{MaxAttempts: 1}),
	)
	h := &Harness{
		store:     st,
		engine:    eng,
		processor: engine.NewProcessor(eng, &engine.SequenceGenerator{Prefix: "v"}),
		logger:    logger,
	}

	if err := h.setup(ctx, scenario.Accounts); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		event := h.execute(ctx, i, step)
		result.Trace = append(result.Trace, event)

		want := step.Expect
		if want == "" {
			want = OutcomeOK
		}
		if event.Outcome != want {
			msg := fmt.Sprintf("step %d (%s): expected %s, got %s", i, step.Op, want, event.Outcome)
			if event.Error != "" {
				msg += ": " + event.Error
			}
			result.AddError(msg)
		}
	}

	if err := h.captureState(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}

	actx := &AssertionContext{Engine: eng, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// setup opens the scenario's accounts. Setup must succeed.
func (h *Harness) setup(ctx context.Context, accounts []AccountSetup) error {
	for i, a := range accounts {
		if _, err := h.engine.CreateAccount(ctx, a.Name, a.Type, parseAmount(a.Balance)); err != nil {
			return fmt.Errorf("account %d (%s): %w", i, a.Name, err)
		}
	}
	return nil
}

// execute runs one step and turns its outcome into a trace event.
func (h *Harness) execute(ctx context.Context, i int, step Step) TraceEvent {
	event := TraceEvent{Step: i, Op: step.Op, Outcome: OutcomeOK}

	var err error
	switch step.Op {
	case OpCreate:
		var acct ledger.Account
		acct, err = h.engine.CreateAccount(ctx, step.Account, step.Type, parseAmount(step.Amount))
		if err == nil {
			event.Result = acct.Name + " opened at " + acct.Balance.String()
		}
	case OpCredit:
		event.Result, err = balanceResult(h.engine.Credit(ctx, step.Account, parseAmount(step.Amount)))
	case OpDebit:
		event.Result, err = balanceResult(h.engine.Debit(ctx, step.Account, parseAmount(step.Amount)))
	case OpPost:
		var v ledger.Voucher
		v, err = h.processor.Post(ctx, engine.VoucherRequest{
			Type:        step.Type,
			Amount:      parseAmount(step.Amount),
			Source:      step.From,
			Destination: step.To,
			Description: step.Description,
		})
		if err == nil {
			event.Result = voucherResult(v)
		}
	case OpReverse:
		var v ledger.Voucher
		v, err = h.processor.Reverse(ctx, step.Voucher, step.Description)
		if err == nil {
			event.Result = voucherResult(v)
		}
	case OpReconcile:
		var rec engine.Reconciliation
		rec, err = h.engine.Reconcile(ctx, step.Account, parseAmount(step.Amount))
		if err == nil {
			event.Result = "in balance"
			if rec.Adjusted {
				event.Result = "adjusted by " + rec.Difference.String()
			}
		}
	case OpDelete:
		err = h.engine.DeleteAccount(ctx, step.Account)
	}

	if err != nil {
		event.Outcome = outcomeOf(err)
		event.Error = err.Error()
	}

	h.logger.Info("step completed", "step", i, "op", step.Op, "outcome", event.Outcome)
	return event
}

// outcomeOf maps an error to its ledger code, or "error" for errors that
// carry none.
func outcomeOf(err error) string {
	if code := ledger.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}

func voucherResult(v ledger.Voucher) string {
	return "voucher " + strconv.FormatInt(v.ID, 10) + " (" + v.Ref + ")"
}

func balanceResult(balance interface{ String() string }, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return "balance " + balance.String(), nil
}

// captureState copies the final accounts and journal into result.
func (h *Harness) captureState(ctx context.Context, result *Result) error {
	accounts, err := h.engine.ListAccounts(ctx)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		result.Accounts = append(result.Accounts, AccountState{
			Name:    a.Name,
			Type:    a.Type,
			Balance: a.Balance.String(),
		})
	}

	vouchers, err := h.processor.List(ctx)
	if err != nil {
		return err
	}
	for _, v := range vouchers {
		result.Vouchers = append(result.Vouchers, VoucherState{
			ID:          v.ID,
			Ref:         v.Ref,
			Type:        v.Type,
			Source:      v.Source,
			Destination: v.Destination,
			Amount:      v.Amount.String(),
			ReversalOf:  v.ReversalOf,
		})
	}
	return nil
}
