package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Voucher is a committed transfer of Amount from Source to Destination.
//
// ID and CommittedAt are assigned by Journal.AppendVoucher. Ref is assigned
// before any leg is applied and ties the voucher to its two Entry rows.
// A voucher is never edited; ReversalOf links a correcting voucher to the one
// it undoes.
type Voucher struct {
	ID          int64           `json:"id"`
	Ref         string          `json:"ref"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	Description string          `json:"description,omitempty"`
	ReversalOf  int64           `json:"reversal_of,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}
