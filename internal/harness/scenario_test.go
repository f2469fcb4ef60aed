package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_File(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/pay_supplier.yaml")
	require.NoError(t, err)

	assert.Equal(t, "pay_supplier", s.Name)
	require.Len(t, s.Accounts, 2)
	assert.Equal(t, AccountSetup{Name: "Cash", Type: "Asset", Balance: "100"}, s.Accounts[0])
	require.Len(t, s.Steps, 6)
	assert.Equal(t, Step{Op: OpPost, Type: "payment", From: "Cash", To: "Supplier", Amount: "40.50"}, s.Steps[0])
	assert.Equal(t, "INSUFFICIENT_FUNDS", s.Steps[1].Expect)
	assert.Equal(t, int64(1), s.Steps[3].Voucher)
	assert.Len(t, s.Assertions, 6)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: d\nstep:\n  - { op: credit }\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			yaml:    "description: d\nassertions:\n  - { type: audit_clean }\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: x\nassertions:\n  - { type: audit_clean }\n",
			wantErr: "description is required",
		},
		{
			name:    "nothing to do",
			yaml:    "name: x\ndescription: d\n",
			wantErr: "steps or assertions are required",
		},
		{
			name:    "unknown op",
			yaml:    "name: x\ndescription: d\nsteps:\n  - { op: transfer }\n",
			wantErr: `steps[0]: unknown op "transfer"`,
		},
		{
			name:    "credit without account",
			yaml:    "name: x\ndescription: d\nsteps:\n  - { op: credit, amount: \"1\" }\n",
			wantErr: "account is required for credit",
		},
		{
			name:    "credit without amount",
			yaml:    "name: x\ndescription: d\nsteps:\n  - { op: credit, account: Cash }\n",
			wantErr: "amount is required",
		},
		{
			name:    "bad amount",
			yaml:    "name: x\ndescription: d\nsteps:\n  - { op: debit, account: Cash, amount: lots }\n",
			wantErr: `invalid amount "lots"`,
		},
		{
			name:    "post without endpoints",
			yaml:    "name: x\ndescription: d\nsteps:\n  - { op: post, amount: \"1\" }\n",
			wantErr: "from and to are required",
		},
		{
			name:    "reverse without id",
			yaml:    "name: x\ndescription: d\nsteps:\n  - { op: reverse }\n",
			wantErr: "voucher id is required",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: d\nassertions:\n  - { type: trace_order }\n",
			wantErr: `unknown assertion type "trace_order"`,
		},
		{
			name:    "balance without account",
			yaml:    "name: x\ndescription: d\nassertions:\n  - { type: balance, expect: \"1\" }\n",
			wantErr: "account is required for balance",
		},
		{
			name:    "bad setup balance",
			yaml:    "name: x\ndescription: d\naccounts:\n  - { name: Cash, balance: abc }\nassertions:\n  - { type: audit_clean }\n",
			wantErr: "accounts[0]: balance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt", "sub/c.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	files, err := FindScenarios(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "sub", "c.yaml"),
	}, files)

	files, err = FindScenarios(dir, "b*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.yaml")}, files)

	_, err = FindScenarios(dir, "[")
	assert.Error(t, err)
}
