package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Scenario is one ledger test case.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// AllowNegative switches the engine's balance policy for this run.
	AllowNegative bool `yaml:"allow_negative,omitempty"`

	// Accounts are opened before the first step. They are not traced.
	Accounts []AccountSetup `yaml:"accounts,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`
}

// AccountSetup opens one account.
type AccountSetup struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Balance string `yaml:"balance"`
}

// Step is one ledger operation.
type Step struct {
	Op          string `yaml:"op"`
	Account     string `yaml:"account,omitempty"`
	Type        string `yaml:"type,omitempty"`
	From        string `yaml:"from,omitempty"`
	To          string `yaml:"to,omitempty"`
	Amount      string `yaml:"amount,omitempty"`
	Voucher     int64  `yaml:"voucher,omitempty"`
	Description string `yaml:"description,omitempty"`

	// Expect is "ok" or a ledger error code. Empty means "ok".
	Expect string `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpCreate    = "create"
	OpCredit    = "credit"
	OpDebit     = "debit"
	OpPost      = "post"
	OpReverse   = "reverse"
	OpReconcile = "reconcile"
	OpDelete    = "delete"
)

// OutcomeOK is the outcome of a step that succeeded.
const OutcomeOK = "ok"

// Assertion checks the final books.
type Assertion struct {
	Type    string `yaml:"type"`
	Account string `yaml:"account,omitempty"`
	Expect  string `yaml:"expect,omitempty"`
	Count   int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertBalance      = "balance"
	AssertTotal        = "total"
	AssertVoucherCount = "voucher_count"
	AssertEntryCount   = "entry_count"
	AssertAuditClean   = "audit_clean"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files under dir in lexical order.
// filter, if set, is a glob matched against the file name without extension.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	slices.Sort(files)
	return files, err
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 && len(s.Assertions) == 0 {
		return fmt.Errorf("steps or assertions are required")
	}

	for i, a := range s.Accounts {
		if a.Name == "" {
			return fmt.Errorf("accounts[%d]: name is required", i)
		}
		if err := checkAmount(a.Balance, true); err != nil {
			return fmt.Errorf("accounts[%d]: balance: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Op {
	case OpCreate, OpCredit, OpDebit, OpReconcile:
		if step.Account == "" {
			return fmt.Errorf("account is required for %s", step.Op)
		}
		return checkAmount(step.Amount, step.Op == OpCreate)
	case OpDelete:
		if step.Account == "" {
			return fmt.Errorf("account is required for delete")
		}
	case OpPost:
		if step.From == "" || step.To == "" {
			return fmt.Errorf("from and to are required for post")
		}
		return checkAmount(step.Amount, false)
	case OpReverse:
		if step.Voucher <= 0 {
			return fmt.Errorf("voucher id is required for reverse")
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

// checkAmount rejects unparseable amounts. Zero and negative amounts are
// accepted so scenarios can assert that the engine rejects them.
func checkAmount(s string, optional bool) error {
	if s == "" {
		if optional {
			return nil
		}
		return fmt.Errorf("amount is required")
	}
	if _, err := decimal.NewFromString(s); err != nil {
		return fmt.Errorf("invalid amount %q", s)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertBalance:
		if a.Account == "" {
			return fmt.Errorf("account is required for balance")
		}
		return checkAmount(a.Expect, false)
	case AssertTotal:
		return checkAmount(a.Expect, false)
	case AssertVoucherCount:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for voucher_count")
		}
	case AssertEntryCount:
		if a.Account == "" {
			return fmt.Errorf("account is required for entry_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for entry_count")
		}
	case AssertAuditClean:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(s)
}
