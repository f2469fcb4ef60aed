package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Replay the posting history and check it against balances",
		Long: `Replay the posting history and check it against balances.

Every account's entries must replay to its stored balance, and every logged
voucher must have its debit and credit entries.

Exit codes:
  0 - The books are consistent
  1 - Problems were found
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				audit, err := s.engine.Verify(cmd.Context())
				if err != nil {
					return out.Fail("verify", err)
				}
				if err := out.Render(audit, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ACCOUNT\tBALANCE\tREPLAYED\tENTRIES\tOK")
					for _, a := range audit.Accounts {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\n", a.Account, a.Balance, a.Replayed, a.Entries, a.OK)
					}
					tw.Flush()
					for _, p := range audit.Problems {
						fmt.Fprintf(w, "✗ %s\n", p)
					}
					if audit.OK() {
						fmt.Fprintf(w, "✓ %d accounts and %d vouchers verified\n", len(audit.Accounts), audit.Vouchers)
					}
				}); err != nil {
					return err
				}
				if !audit.OK() {
					return NewExitError(ExitFailure, fmt.Sprintf("%d problem(s) found", len(audit.Problems)))
				}
				return nil
			})
		},
	}
}
