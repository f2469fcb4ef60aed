package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/ledger"
)

// runCLI executes the root command with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	stdout := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

// mustRun executes the root command and fails the test on error.
func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	require.NoError(t, err, "tally %s", strings.Join(args, " "))
	return out
}

// jsonResponse is CLIResponse with the payload left undecoded.
type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decodeResponse(t *testing.T, out string) jsonResponse {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "tally.db")
}

func TestAccountCommands(t *testing.T) {
	db := tempDB(t)

	out := mustRun(t, "--db", db, "account", "create", "Cash", "--type", "Asset", "--balance", "100")
	assert.Equal(t, "Account \"Cash\" created with balance 100\n", out)

	out = mustRun(t, "--db", db, "account", "credit", "Cash", "50")
	assert.Equal(t, "Cash credit: balance 150\n", out)

	out = mustRun(t, "--db", db, "account", "debit", "Cash", "30")
	assert.Equal(t, "Cash debit: balance 120\n", out)

	_, err := runCLI(t, "--db", db, "account", "debit", "Cash", "9999")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds))

	out = mustRun(t, "--db", db, "account", "get", "Cash")
	assert.Equal(t, "Account: Cash\nType: Asset\nBalance: 120\n", out)

	out = mustRun(t, "--db", db, "account", "history", "Cash")
	assert.Contains(t, out, "open")
	assert.Contains(t, out, "credit")
	assert.Contains(t, out, "debit")

	out = mustRun(t, "--db", db, "account", "reconcile", "Cash", "115")
	assert.Equal(t, "Cash adjusted by -5: 120 -> 115\n", out)

	out = mustRun(t, "--db", db, "account", "reconcile", "Cash", "115")
	assert.Equal(t, "Cash already matches the statement (115)\n", out)

	mustRun(t, "--db", db, "account", "delete", "Cash")
	_, err = runCLI(t, "--db", db, "account", "get", "Cash")
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out = mustRun(t, "--db", db, "account", "list")
	assert.Equal(t, "No accounts found.\n", out)
}

func TestAccountCommands_JSON(t *testing.T) {
	db := tempDB(t)
	mustRun(t, "--db", db, "account", "create", "Bank", "--type", "Asset", "--balance", "10.50")

	resp := decodeResponse(t, mustRun(t, "--db", db, "--format", "json", "account", "get", "Bank"))
	assert.Equal(t, "ok", resp.Status)

	var acct ledger.Account
	require.NoError(t, json.Unmarshal(resp.Data, &acct))
	assert.Equal(t, "Bank", acct.Name)
	assert.Equal(t, "10.5", acct.Balance.String())

	out, err := runCLI(t, "--db", db, "--format", "json", "account", "credit", "Bank", "0")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp = decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION", resp.Error.Code)
}

func TestCommandErrors(t *testing.T) {
	db := tempDB(t)

	tests := []struct {
		name string
		args []string
	}{
		{"invalid_format", []string{"--db", db, "--format", "xml", "account", "list"}},
		{"invalid_amount", []string{"--db", db, "account", "credit", "Cash", "ten"}},
		{"invalid_voucher_id", []string{"--db", db, "voucher", "get", "abc"}},
		{"postgres_without_dsn", []string{"--driver", "postgres", "account", "list"}},
		{"missing_config", []string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "account", "list"}},
		{"bad_workers", []string{"--db", db, "voucher", "import", "x.yaml", "--workers", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestVoucherCommands(t *testing.T) {
	db := tempDB(t)
	mustRun(t, "--db", db, "account", "create", "Cash", "--type", "Asset", "--balance", "100")
	mustRun(t, "--db", db, "account", "create", "Rent", "--type", "Expense")

	out := mustRun(t, "--db", db, "voucher", "post", "--type", "payment", "--from", "Cash", "--to", "Rent", "--amount", "40", "--desc", "March rent")
	assert.Equal(t, "Voucher 1 posted: 40 Cash -> Rent\n", out)

	_, err := runCLI(t, "--db", db, "voucher", "post", "--type", "payment", "--from", "Cash", "--to", "Rent", "--amount", "500")
	assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds))

	out = mustRun(t, "--db", db, "voucher", "get", "1")
	assert.Contains(t, out, "From: Cash\nTo: Rent\nAmount: 40\n")
	assert.Contains(t, out, "Description: March rent\n")

	out = mustRun(t, "--db", db, "voucher", "reverse", "1")
	assert.Equal(t, "Voucher 1 reversed by voucher 2\n", out)

	out, err = runCLI(t, "--db", db, "--format", "json", "voucher", "reverse", "1")
	assert.True(t, errors.Is(err, ledger.ErrDuplicate))
	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "DUPLICATE", resp.Error.Code)

	resp = decodeResponse(t, mustRun(t, "--db", db, "--format", "json", "voucher", "list"))
	var vouchers []ledger.Voucher
	require.NoError(t, json.Unmarshal(resp.Data, &vouchers))
	require.Len(t, vouchers, 2)
	assert.Equal(t, int64(1), vouchers[1].ReversalOf)
	assert.Equal(t, "Rent", vouchers[1].Source)

	out = mustRun(t, "--db", db, "account", "get", "Cash")
	assert.Contains(t, out, "Balance: 100\n")

	_, err = runCLI(t, "--db", db, "voucher", "get", "99")
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestVoucherImport(t *testing.T) {
	db := tempDB(t)
	mustRun(t, "--db", db, "account", "create", "Cash", "--type", "Asset", "--balance", "100")
	mustRun(t, "--db", db, "account", "create", "Rent", "--type", "Expense")

	file := filepath.Join(t.TempDir(), "vouchers.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`vouchers:
  - { type: payment, source: Cash, destination: Rent, amount: "10" }
  - { type: payment, source: Cash, destination: Rent, amount: "20" }
  - { type: payment, source: Cash, destination: Rent, amount: "500" }
  - { type: payment, source: Cash, destination: Ghost, amount: "1" }
`), 0o644))

	out, err := runCLI(t, "--db", db, "--format", "json", "voucher", "import", file, "--workers", "2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	var result ImportResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, 2, result.Posted)
	assert.Equal(t, 2, result.Rejected)
	require.Len(t, result.Items, 4)
	assert.NotZero(t, result.Items[0].VoucherID)
	assert.NotZero(t, result.Items[1].VoucherID)
	assert.Equal(t, "INSUFFICIENT_FUNDS", result.Items[2].Code)
	assert.Equal(t, "NOT_FOUND", result.Items[3].Code)

	out = mustRun(t, "--db", db, "account", "get", "Rent")
	assert.Contains(t, out, "Balance: 30\n")
}

func TestVoucherImport_UnknownField(t *testing.T) {
	file := filepath.Join(t.TempDir(), "vouchers.yaml")
	require.NoError(t, os.WriteFile(file, []byte("vouchers:\n  - { kind: payment }\n"), 0o644))

	_, err := runCLI(t, "--db", tempDB(t), "voucher", "import", file)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRecordCommands(t *testing.T) {
	db := tempDB(t)

	out := mustRun(t, "--db", db, "inventory", "add", "Widget", "--quantity", "5", "--price", "2.50")
	assert.Equal(t, "Item \"Widget\": quantity 5, price 2.5\n", out)
	mustRun(t, "--db", db, "inventory", "update", "Widget", "--quantity", "7", "--price", "3")
	out = mustRun(t, "--db", db, "inventory", "get", "Widget")
	assert.Equal(t, "Item: Widget | Quantity: 7 | Price: 3\n", out)
	mustRun(t, "--db", db, "inventory", "remove", "Widget")
	_, err := runCLI(t, "--db", db, "inventory", "get", "Widget")
	assert.True(t, errors.Is(err, ledger.ErrNotFound))

	out = mustRun(t, "--db", db, "bill", "create", "INV-7", "--customer", "Acme", "--amount", "250", "--due", "2024-03-31")
	assert.Equal(t, "Bill #INV-7 created for Acme: 250 due 2024-03-31\n", out)
	out = mustRun(t, "--db", db, "bill", "pay", "INV-7")
	assert.Equal(t, "Bill #INV-7 marked as paid\n", out)
	_, err = runCLI(t, "--db", db, "bill", "pay", "INV-7")
	assert.True(t, errors.Is(err, ledger.ErrValidation))
	_, err = runCLI(t, "--db", db, "bill", "create", "INV-8", "--customer", "Acme", "--amount", "1", "--due", "31/03/2024")
	assert.True(t, errors.Is(err, ledger.ErrValidation))

	mustRun(t, "--db", db, "budget", "set", "Rent", "1000", "--type", "Expense")
	mustRun(t, "--db", db, "budget", "actual", "Rent", "250")
	resp := decodeResponse(t, mustRun(t, "--db", db, "--format", "json", "budget", "get", "Rent"))
	assert.JSONEq(t, `{"account":"Rent","budgeted":"1000","actual":"250","type":"Expense","remaining":"750"}`, string(resp.Data))

	_, err = runCLI(t, "--db", db, "budget", "actual", "Travel", "10")
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestVerifyCommand(t *testing.T) {
	db := tempDB(t)
	mustRun(t, "--db", db, "account", "create", "Cash", "--type", "Asset", "--balance", "100")
	mustRun(t, "--db", db, "account", "create", "Rent", "--type", "Expense")
	mustRun(t, "--db", db, "voucher", "post", "--type", "payment", "--from", "Cash", "--to", "Rent", "--amount", "25")

	out := mustRun(t, "--db", db, "verify")
	assert.Contains(t, out, "✓ 2 accounts and 1 vouchers verified")

	resp := decodeResponse(t, mustRun(t, "--db", db, "--format", "json", "verify"))
	assert.Equal(t, "ok", resp.Status)
}

func TestExportRestore(t *testing.T) {
	src := tempDB(t)
	mustRun(t, "--db", src, "account", "create", "Cash", "--type", "Asset", "--balance", "100")
	mustRun(t, "--db", src, "account", "create", "Rent", "--type", "Expense")
	mustRun(t, "--db", src, "voucher", "post", "--type", "payment", "--from", "Cash", "--to", "Rent", "--amount", "25")
	mustRun(t, "--db", src, "inventory", "add", "Widget", "--quantity", "1", "--price", "9")

	snapshot := filepath.Join(t.TempDir(), "books.json")
	out := mustRun(t, "--db", src, "export", "--out", snapshot)
	assert.Equal(t, "Exported 2 accounts, 4 entries, 1 vouchers, 1 records to "+snapshot+"\n", out)

	// Restore into the other storage driver.
	dst := filepath.Join(t.TempDir(), "books-copy.json")
	mustRun(t, "--driver", "file", "--db", dst, "restore", "--in", snapshot)

	out = mustRun(t, "--driver", "file", "--db", dst, "account", "get", "Rent")
	assert.Contains(t, out, "Balance: 25\n")
	out = mustRun(t, "--driver", "file", "--db", dst, "verify")
	assert.Contains(t, out, "✓ 2 accounts and 1 vouchers verified")

	_, err := runCLI(t, "--db", src, "restore", "--in", snapshot)
	assert.True(t, errors.Is(err, ledger.ErrValidation))
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tally.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`store:
  driver: file
  path: `+filepath.Join(dir, "books.json")+`
ledger:
  allow_negative: true
`), 0o644))

	mustRun(t, "--config", path, "account", "create", "Loan", "--type", "Liability", "--balance", "-500")
	out := mustRun(t, "--config", path, "account", "get", "Loan")
	assert.Contains(t, out, "Balance: -500\n")
	assert.FileExists(t, filepath.Join(dir, "books.json"))

	// The flag overrides the file.
	_, err := runCLI(t, "--config", path, "--allow-negative=false", "account", "debit", "Loan", "1")
	assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds))
}

const cliScenario = `name: cash_basics
steps:
  - { op: create, account: Cash, type: Asset, amount: "10" }
  - { op: debit, account: Cash, amount: "50", expect: INSUFFICIENT_FUNDS }
  - { op: credit, account: Cash, amount: "5" }
assertions:
  - { type: balance, account: Cash, expect: "15" }
  - { type: audit_clean }
`

func TestTestCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cash_basics.yaml"), []byte(cliScenario), 0o644))

	out := mustRun(t, "test", dir)
	assert.Contains(t, out, "✓ cash_basics\n")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")

	out = mustRun(t, "test", dir, "--update")
	assert.Contains(t, out, "✓ cash_basics (golden updated)")
	golden := filepath.Join(dir, "golden", "cash_basics.golden")
	require.FileExists(t, golden)

	mustRun(t, "test", dir)

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0o644))
	out, err := runCLI(t, "--format", "json", "test", dir)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decodeResponse(t, out)
	var result TestResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Scenarios, 1)
	assert.Contains(t, result.Scenarios[0].Errors[0], "does not match golden file")
}

func TestTestCommand_Failures(t *testing.T) {
	dir := t.TempDir()
	failing := strings.Replace(cliScenario, `expect: "15"`, `expect: "16"`, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cash_basics.yaml"), []byte(failing), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0o644))

	out, err := runCLI(t, "test", dir)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "✗ cash_basics")
	assert.Contains(t, out, "Test Summary: 0 passed, 2 failed, 2 total")

	out = mustRun(t, "test", dir, "--filter", "nothing*")
	assert.Equal(t, "No scenarios found.\n", out)

	_, err = runCLI(t, "test", filepath.Join(dir, "missing"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
