package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Step    int    `json:"step"`
	Op      string `json:"op"`
	Outcome string `json:"outcome"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AccountState is an account balance after the run.
type AccountState struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Balance string `json:"balance"`
}

// VoucherState is a logged voucher after the run, without its timestamp.
type VoucherState struct {
	ID          int64  `json:"id"`
	Ref         string `json:"ref"`
	Type        string `json:"type"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	ReversalOf  int64  `json:"reversal_of,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step had its expected outcome and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace    []TraceEvent   `json:"trace"`
	Errors   []string       `json:"errors,omitempty"`
	Accounts []AccountState `json:"accounts"`
	Vouchers []VoucherState `json:"vouchers"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Accounts: []AccountState{},
		Vouchers: []VoucherState{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
