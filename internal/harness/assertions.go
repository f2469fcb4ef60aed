package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/engine"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s -> %s", event.Step, event.Op, event.Outcome)
			if event.Result != "" {
				fmt.Fprintf(&buf, " (%s)", event.Result)
			}
			buf.WriteString("\n")
		}
	}
	return buf.String()
}

// AssertionContext gives assertions read access to the finished run.
type AssertionContext struct {
	Engine *engine.Engine
	Ctx    context.Context
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertBalance:
		return assertBalance(result, a)
	case AssertTotal:
		return assertTotal(result, a)
	case AssertVoucherCount:
		if len(result.Vouchers) != a.Count {
			return &AssertionError{
				Type:     AssertVoucherCount,
				Expected: fmt.Sprintf("%d vouchers", a.Count),
				Actual:   fmt.Sprintf("%d vouchers", len(result.Vouchers)),
				Trace:    result.Trace,
			}
		}
		return nil
	case AssertEntryCount:
		return assertEntryCount(result, a, actx)
	case AssertAuditClean:
		return assertAuditClean(result, actx)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertBalance(result *Result, a Assertion) error {
	want := parseAmount(a.Expect)
	for _, acct := range result.Accounts {
		if acct.Name != a.Account {
			continue
		}
		if !decimal.RequireFromString(acct.Balance).Equal(want) {
			return &AssertionError{
				Type:     AssertBalance,
				Expected: fmt.Sprintf("%s balance %s", a.Account, want),
				Actual:   fmt.Sprintf("%s balance %s", a.Account, acct.Balance),
				Trace:    result.Trace,
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertBalance,
		Expected: fmt.Sprintf("%s balance %s", a.Account, want),
		Actual:   "account does not exist",
		Trace:    result.Trace,
	}
}

func assertTotal(result *Result, a Assertion) error {
	want := parseAmount(a.Expect)
	total := decimal.Zero
	for _, acct := range result.Accounts {
		total = total.Add(decimal.RequireFromString(acct.Balance))
	}
	if !total.Equal(want) {
		return &AssertionError{
			Type:     AssertTotal,
			Expected: "total " + want.String(),
			Actual:   "total " + total.String(),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertEntryCount(result *Result, a Assertion, actx *AssertionContext) error {
	entries, err := actx.Engine.History(actx.Ctx, a.Account)
	if err != nil {
		return fmt.Errorf("read history of %s: %w", a.Account, err)
	}
	if len(entries) != a.Count {
		return &AssertionError{
			Type:     AssertEntryCount,
			Expected: fmt.Sprintf("%d entries for %s", a.Count, a.Account),
			Actual:   fmt.Sprintf("%d entries", len(entries)),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertAuditClean(result *Result, actx *AssertionContext) error {
	audit, err := actx.Engine.Verify(actx.Ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if !audit.OK() {
		return &AssertionError{
			Type:     AssertAuditClean,
			Expected: "no audit problems",
			Actual:   strings.Join(audit.Problems, "; "),
			Trace:    result.Trace,
		}
	}
	return nil
}
