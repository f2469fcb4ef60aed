package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/ledger"
)

// NewAccountCommand creates the account command group.
func NewAccountCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Create, inspect and post to accounts",
	}

	cmd.AddCommand(newAccountCreateCommand(opts))
	cmd.AddCommand(newAccountGetCommand(opts))
	cmd.AddCommand(newAccountListCommand(opts))
	cmd.AddCommand(newAccountDeleteCommand(opts))
	cmd.AddCommand(newAccountHistoryCommand(opts))
	cmd.AddCommand(newAccountPostCommand(opts, "credit"))
	cmd.AddCommand(newAccountPostCommand(opts, "debit"))
	cmd.AddCommand(newAccountReconcileCommand(opts))
	return cmd
}

func newAccountCreateCommand(opts *RootOptions) *cobra.Command {
	var (
		accountType string
		balance     string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Open a new account",
		Example: `  tally account create Cash --type Asset --balance 100
  tally account create "Office Supplies" --type Expense`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opening, err := parseAmount("balance", balance)
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				acct, err := s.engine.CreateAccount(cmd.Context(), args[0], accountType, opening)
				if err != nil {
					return out.Fail("create account", err)
				}
				return out.Render(acct, func(w io.Writer) {
					fmt.Fprintf(w, "Account %q created with balance %s\n", acct.Name, acct.Balance)
				})
			})
		},
	}
	cmd.Flags().StringVar(&accountType, "type", "", "account type (Asset, Liability, Income, Expense, ...)")
	cmd.Flags().StringVar(&balance, "balance", "0", "opening balance")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newAccountGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				acct, err := s.engine.GetAccount(cmd.Context(), args[0])
				if err != nil {
					return out.Fail("get account", err)
				}
				return out.Render(acct, func(w io.Writer) {
					fmt.Fprintf(w, "Account: %s\nType: %s\nBalance: %s\n", acct.Name, acct.Type, acct.Balance)
				})
			})
		},
	}
}

func newAccountListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				accounts, err := s.engine.ListAccounts(cmd.Context())
				if err != nil {
					return out.Fail("list accounts", err)
				}
				return out.Render(accounts, func(w io.Writer) {
					if len(accounts) == 0 {
						fmt.Fprintln(w, "No accounts found.")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ACCOUNT\tTYPE\tBALANCE")
					for _, a := range accounts {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Name, a.Type, a.Balance)
					}
					tw.Flush()
				})
			})
		},
	}
}

func newAccountDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an account, keeping its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				if err := s.engine.DeleteAccount(cmd.Context(), args[0]); err != nil {
					return out.Fail("delete account", err)
				}
				name := ledger.NormalizeName(args[0])
				return out.Render(map[string]string{"deleted": name}, func(w io.Writer) {
					fmt.Fprintf(w, "Account %q deleted\n", name)
				})
			})
		},
	}
}

func newAccountHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <name>",
		Short: "Show the posting history of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				entries, err := s.engine.History(cmd.Context(), args[0])
				if err != nil {
					return out.Fail("account history", err)
				}
				return out.Render(entries, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "SEQ\tOP\tAMOUNT\tBALANCE\tVOUCHER\tMEMO")
					for _, e := range entries {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", e.Seq, e.Op, e.Amount, e.BalanceAfter, e.VoucherRef, e.Memo)
					}
					tw.Flush()
				})
			})
		},
	}
}

// newAccountPostCommand builds "credit" or "debit".
func newAccountPostCommand(opts *RootOptions, op string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <name> <amount>",
		Short: "Post a stand-alone " + op + " to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount("amount", args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				post := s.engine.Credit
				if op == "debit" {
					post = s.engine.Debit
				}
				balance, err := post(cmd.Context(), args[0], amount)
				if err != nil {
					return out.Fail(op, err)
				}
				name := ledger.NormalizeName(args[0])
				data := struct {
					Account string          `json:"account"`
					Balance decimal.Decimal `json:"balance"`
				}{name, balance}
				return out.Render(data, func(w io.Writer) {
					fmt.Fprintf(w, "%s %s: balance %s\n", name, op, balance)
				})
			})
		},
	}
}

func newAccountReconcileCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <name> <statement-balance>",
		Short: "Adjust an account to match a statement balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			statement, err := parseAmount("statement balance", args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				rec, err := s.engine.Reconcile(cmd.Context(), args[0], statement)
				if err != nil {
					return out.Fail("reconcile", err)
				}
				return out.Render(rec, func(w io.Writer) {
					if !rec.Adjusted {
						fmt.Fprintf(w, "%s already matches the statement (%s)\n", rec.Account, rec.Statement)
						return
					}
					fmt.Fprintf(w, "%s adjusted by %s: %s -> %s\n", rec.Account, rec.Difference, rec.Previous, rec.Statement)
				})
			})
		},
	}
}
