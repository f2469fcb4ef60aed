package records

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tally/internal/ledger"
)

// KindBill is the record kind of bills.
const KindBill = "bill"

// DateLayout is the layout of bill due dates.
const DateLayout = time.DateOnly

// BillStatus is the payment state of a bill.
type BillStatus string

const (
	BillUnpaid BillStatus = "Unpaid"
	BillPaid   BillStatus = "Paid"
)

// Bill is an amount owed by a customer, keyed by bill number.
type Bill struct {
	Number    string          `json:"number"`
	Customer  string          `json:"customer"`
	AmountDue decimal.Decimal `json:"amount_due"`
	DueDate   string          `json:"due_date"`
	Status    BillStatus      `json:"status"`
}

// Bills stores bills. Pay is serialized so two callers cannot both mark the
// same bill paid.
type Bills struct {
	store *Store[Bill]
	mu    sync.Mutex
}

// NewBills returns the bill collection of backend.
func NewBills(backend Backend, opts ...Option) *Bills {
	return &Bills{store: New[Bill](backend, KindBill, opts...)}
}

// Create inserts a new unpaid bill.
func (b *Bills) Create(ctx context.Context, bill Bill) (Bill, error) {
	bill.Number = ledger.NormalizeName(bill.Number)
	if bill.Number == "" {
		return Bill{}, ledger.NewValidationError("bill number is required")
	}
	if bill.Customer == "" {
		return Bill{}, ledger.NewValidationError("bill customer is required")
	}
	if err := ledger.ValidateAmount(bill.AmountDue); err != nil {
		return Bill{}, err
	}
	if _, err := time.Parse(DateLayout, bill.DueDate); err != nil {
		return Bill{}, ledger.NewValidationError("due date %q is not a YYYY-MM-DD date", bill.DueDate)
	}
	bill.Status = BillUnpaid

	if err := b.store.Create(ctx, bill.Number, bill); err != nil {
		return Bill{}, err
	}
	return bill, nil
}

// Pay marks an unpaid bill paid. Paying a bill twice is a validation error.
func (b *Bills) Pay(ctx context.Context, number string) (Bill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bill, err := b.store.Get(ctx, number)
	if err != nil {
		return Bill{}, err
	}
	if bill.Status == BillPaid {
		return Bill{}, &ledger.Error{
			Code:    ledger.CodeValidation,
			Message: "bill already paid",
			Details: map[string]string{"number": bill.Number},
		}
	}
	bill.Status = BillPaid
	if err := b.store.Update(ctx, bill.Number, bill); err != nil {
		return Bill{}, err
	}
	return bill, nil
}

func (b *Bills) Get(ctx context.Context, number string) (Bill, error) {
	return b.store.Get(ctx, number)
}

func (b *Bills) List(ctx context.Context) ([]Bill, error) {
	return b.store.List(ctx)
}
