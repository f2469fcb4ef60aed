package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/ledger"
	"github.com/roach88/tally/internal/retry"
)

// CompensationMemo marks entries that undo a leg of a failed voucher.
const CompensationMemo = "compensation"

// State is a step of the voucher state machine.
type State string

const (
	StateValidated        State = "validated"
	StateDebitApplied     State = "debit_applied"
	StateCreditApplied    State = "credit_applied"
	StateLogged           State = "logged"
	StateRejected         State = "rejected"
	StatePartiallyApplied State = "partially_applied"
)

// VoucherRequest is the caller's description of a transfer.
type VoucherRequest struct {
	Type        string          `json:"type" yaml:"type"`
	Amount      decimal.Decimal `json:"amount" yaml:"amount"`
	Source      string          `json:"source" yaml:"source"`
	Destination string          `json:"destination" yaml:"destination"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
}

// Processor posts vouchers: debit source, credit destination, append to the
// journal. It drives the same Engine locks and retry policy as stand-alone
// credits and debits.
type Processor struct {
	engine *Engine
	refs   RefGenerator
}

// NewProcessor creates a Processor on top of e. refs supplies voucher refs;
// nil means UUIDv7Generator.
func NewProcessor(e *Engine, refs RefGenerator) *Processor {
	if refs == nil {
		refs = UUIDv7Generator{}
	}
	return &Processor{engine: e, refs: refs}
}

// Post validates and commits one voucher.
//
// On success the returned voucher carries its journal id and commit time.
// A rejected voucher leaves no balance changed. A ledger.CodeConsistencyFault
// error means a leg could not be undone and the books need manual repair.
func (p *Processor) Post(ctx context.Context, req VoucherRequest) (ledger.Voucher, error) {
	return p.post(ctx, req, 0)
}

// Reverse posts the mirror image of voucher id: same amount, source and
// destination swapped, ReversalOf set. A voucher can be reversed once.
func (p *Processor) Reverse(ctx context.Context, id int64, description string) (ledger.Voucher, error) {
	orig, err := p.Get(ctx, id)
	if err != nil {
		return ledger.Voucher{}, err
	}
	if orig.ReversalOf != 0 {
		return ledger.Voucher{}, ledger.NewValidationError("voucher %d is itself a reversal", id)
	}
	if description == "" {
		description = "reversal of voucher " + strconv.FormatInt(id, 10)
	}
	return p.post(ctx, VoucherRequest{
		Type:        orig.Type,
		Amount:      orig.Amount,
		Source:      orig.Destination,
		Destination: orig.Source,
		Description: description,
	}, id)
}

// Get returns a committed voucher.
func (p *Processor) Get(ctx context.Context, id int64) (ledger.Voucher, error) {
	return retry.DoValue(ctx, p.engine.policy, "get voucher", func(ctx context.Context) (ledger.Voucher, error) {
		return p.engine.sub.GetVoucher(ctx, id)
	})
}

// List returns the journal in commit order.
func (p *Processor) List(ctx context.Context) ([]ledger.Voucher, error) {
	return retry.DoValue(ctx, p.engine.policy, "list vouchers", p.engine.sub.ListVouchers)
}

func (p *Processor) post(ctx context.Context, req VoucherRequest, reversalOf int64) (ledger.Voucher, error) {
	e := p.engine

	v, err := p.validate(req)
	if err != nil {
		p.logRejected(v, StateValidated, err)
		return ledger.Voucher{}, err
	}
	v.ReversalOf = reversalOf

	unlock := e.locks.lock(v.Source, v.Destination)
	defer unlock()

	if err := p.checkPreconditions(ctx, v); err != nil {
		p.logRejected(v, StateValidated, err)
		return ledger.Voucher{}, err
	}

	v.Ref = p.refs.Generate()

	var committed ledger.Voucher
	if atomic, ok := e.sub.(ledger.Atomic); ok {
		committed, err = p.commitAtomically(ctx, atomic, v)
	} else {
		committed, err = p.commitInSteps(ctx, v)
	}
	if err != nil {
		return ledger.Voucher{}, err
	}

	e.logger.Info("voucher committed",
		"state", string(StateLogged),
		"voucher_id", committed.ID,
		"voucher_ref", committed.Ref,
		"type", committed.Type,
		"source", committed.Source,
		"destination", committed.Destination,
		"amount", committed.Amount.String(),
	)
	return committed, nil
}

// validate checks the request shape. It never touches storage.
func (p *Processor) validate(req VoucherRequest) (ledger.Voucher, error) {
	v := ledger.Voucher{
		Type:        req.Type,
		Amount:      req.Amount,
		Source:      ledger.NormalizeName(req.Source),
		Destination: ledger.NormalizeName(req.Destination),
		Description: req.Description,
	}

	if v.Type == "" {
		return v, ledger.NewValidationError("voucher type is required")
	}
	if v.Source == "" || v.Destination == "" {
		return v, ledger.NewValidationError("voucher source and destination are required")
	}
	if v.Source == v.Destination {
		return v, &ledger.Error{
			Code:    ledger.CodeValidation,
			Message: "source and destination must differ",
			Account: v.Source,
		}
	}
	if err := ledger.ValidateAmount(v.Amount); err != nil {
		return v, err
	}
	return v, nil
}

// checkPreconditions verifies that both accounts exist, that a reversal
// target was not reversed already and, with the non-negative policy on, that
// the source can cover the amount. The caller holds both account locks; the
// journal's unique reversal constraint covers other processes.
func (p *Processor) checkPreconditions(ctx context.Context, v ledger.Voucher) error {
	e := p.engine

	source, err := e.GetAccount(ctx, v.Source)
	if err != nil {
		return err
	}
	if _, err := e.GetAccount(ctx, v.Destination); err != nil {
		return err
	}
	if v.ReversalOf != 0 {
		prior, err := retry.DoValue(ctx, e.policy, "find reversal", func(ctx context.Context) (ledger.Voucher, error) {
			return e.sub.FindReversal(ctx, v.ReversalOf)
		})
		switch {
		case err == nil:
			return ledger.NewAlreadyReversed(v.ReversalOf, prior.ID)
		case ledger.CodeOf(err) != ledger.CodeNotFound:
			return err
		}
	}

	if !e.allowNegative && source.Balance.LessThan(v.Amount) {
		return insufficientFunds(source, v.Amount)
	}
	return nil
}

// commitAtomically runs both legs and the journal append in one substrate
// transaction, retried as a whole.
func (p *Processor) commitAtomically(ctx context.Context, atomic ledger.Atomic, v ledger.Voucher) (ledger.Voucher, error) {
	e := p.engine

	committed, err := retry.DoValue(ctx, e.policy, "post voucher", func(ctx context.Context) (ledger.Voucher, error) {
		var out ledger.Voucher
		err := atomic.Atomically(ctx, func(tx ledger.Substrate) error {
			if _, _, err := tx.UpdateBalance(ctx, v.Source, debitEntry(v.Amount, v.Ref, "", e.allowNegative)); err != nil {
				return err
			}
			if _, _, err := tx.UpdateBalance(ctx, v.Destination, creditEntry(v.Amount, v.Ref, "")); err != nil {
				return err
			}
			var err error
			out, err = tx.AppendVoucher(ctx, v)
			return err
		})
		return out, err
	})
	if err != nil {
		p.logRejected(v, StateValidated, err)
		return ledger.Voucher{}, err
	}
	return committed, nil
}

// commitInSteps is the explicit protocol for substrates without
// transactions. Each step is retried on its own; a failed step undoes the
// ones before it.
func (p *Processor) commitInSteps(ctx context.Context, v ledger.Voucher) (ledger.Voucher, error) {
	e := p.engine
	state := StateValidated

	if _, err := e.apply(ctx, v.Source, debitEntry(v.Amount, v.Ref, "", e.allowNegative)); err != nil {
		p.logRejected(v, state, err)
		return ledger.Voucher{}, err
	}
	state = StateDebitApplied

	// The debit is durable: finish or compensate even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if _, err := e.apply(ctx, v.Destination, creditEntry(v.Amount, v.Ref, "")); err != nil {
		if cerr := p.undoDebit(ctx, v); cerr != nil {
			return ledger.Voucher{}, p.fault(v, state, err, cerr)
		}
		p.logRejected(v, state, err)
		return ledger.Voucher{}, err
	}
	state = StateCreditApplied

	committed, err := retry.DoValue(ctx, e.policy, "append voucher", func(ctx context.Context) (ledger.Voucher, error) {
		return e.sub.AppendVoucher(ctx, v)
	})
	if err != nil {
		cerr := errors.Join(p.undoCredit(ctx, v), p.undoDebit(ctx, v))
		if cerr != nil {
			return ledger.Voucher{}, p.fault(v, state, err, cerr)
		}
		p.logRejected(v, state, err)
		return ledger.Voucher{}, err
	}
	return committed, nil
}

func (p *Processor) undoDebit(ctx context.Context, v ledger.Voucher) error {
	_, err := p.engine.apply(ctx, v.Source, creditEntry(v.Amount, v.Ref, CompensationMemo))
	if err != nil {
		return fmt.Errorf("re-credit %s: %w", v.Source, err)
	}
	return nil
}

// undoCredit ignores the balance policy: the destination is giving back
// exactly what it just received.
func (p *Processor) undoCredit(ctx context.Context, v ledger.Voucher) error {
	_, err := p.engine.apply(ctx, v.Destination, debitEntry(v.Amount, v.Ref, CompensationMemo, true))
	if err != nil {
		return fmt.Errorf("re-debit %s: %w", v.Destination, err)
	}
	return nil
}

func (p *Processor) fault(v ledger.Voucher, state State, cause, compensation error) error {
	err := ledger.NewConsistencyFault(v, string(state), cause, compensation)
	p.engine.logger.Error("voucher partially applied",
		"voucher_ref", v.Ref,
		"state", string(StatePartiallyApplied),
		"stage", string(state),
		"source", v.Source,
		"destination", v.Destination,
		"amount", v.Amount.String(),
		"error", err,
	)
	return err
}

func (p *Processor) logRejected(v ledger.Voucher, at State, err error) {
	p.engine.logger.Warn("voucher rejected",
		"voucher_ref", v.Ref,
		"state", string(StateRejected),
		"stage", string(at),
		"source", v.Source,
		"destination", v.Destination,
		"amount", v.Amount.String(),
		"code", string(ledger.CodeOf(err)),
		"error", err,
	)
}
