package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/records"
)

// NewInventoryCommand creates the inventory command group.
func NewInventoryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Keep inventory items",
	}

	itemCommand := func(use, short string, update bool) *cobra.Command {
		var (
			quantity int64
			price    string
		)
		c := &cobra.Command{
			Use:   use + " <name>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := parseAmount("price", price)
				if err != nil {
					return err
				}
				item := records.InventoryItem{Name: args[0], Quantity: quantity, Price: p}
				return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
					inv := records.NewInventory(s.sub, s.recordOpts...)
					save := inv.Add
					if update {
						save = inv.Update
					}
					item, err := save(cmd.Context(), item)
					if err != nil {
						return out.Fail(use+" item", err)
					}
					return out.Render(item, func(w io.Writer) {
						fmt.Fprintf(w, "Item %q: quantity %d, price %s\n", item.Name, item.Quantity, item.Price)
					})
				})
			},
		}
		c.Flags().Int64Var(&quantity, "quantity", 0, "quantity on hand")
		c.Flags().StringVar(&price, "price", "0", "unit price")
		return c
	}
	cmd.AddCommand(itemCommand("add", "Add an inventory item", false))
	cmd.AddCommand(itemCommand("update", "Replace quantity and price of an item", true))

	cmd.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Short: "Show one inventory item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				item, err := records.NewInventory(s.sub, s.recordOpts...).Get(cmd.Context(), args[0])
				if err != nil {
					return out.Fail("get item", err)
				}
				return out.Render(item, func(w io.Writer) {
					fmt.Fprintf(w, "Item: %s | Quantity: %d | Price: %s\n", item.Name, item.Quantity, item.Price)
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List inventory items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				items, err := records.NewInventory(s.sub, s.recordOpts...).List(cmd.Context())
				if err != nil {
					return out.Fail("list items", err)
				}
				return out.Render(items, func(w io.Writer) {
					if len(items) == 0 {
						fmt.Fprintln(w, "No inventory items found.")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ITEM\tQUANTITY\tPRICE")
					for _, item := range items {
						fmt.Fprintf(tw, "%s\t%d\t%s\n", item.Name, item.Quantity, item.Price)
					}
					tw.Flush()
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove an inventory item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				if err := records.NewInventory(s.sub, s.recordOpts...).Remove(cmd.Context(), args[0]); err != nil {
					return out.Fail("remove item", err)
				}
				return out.Render(map[string]string{"removed": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Item %q removed\n", args[0])
				})
			})
		},
	})
	return cmd
}

// NewBillCommand creates the bill command group.
func NewBillCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bill",
		Short: "Track customer bills",
	}

	var (
		customer string
		amount   string
		due      string
	)
	create := &cobra.Command{
		Use:     "create <number>",
		Short:   "Create an unpaid bill",
		Example: `  tally bill create INV-7 --customer Acme --amount 250 --due 2024-03-31`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amountDue, err := parseAmount("amount", amount)
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				bill, err := records.NewBills(s.sub, s.recordOpts...).Create(cmd.Context(), records.Bill{
					Number:    args[0],
					Customer:  customer,
					AmountDue: amountDue,
					DueDate:   due,
				})
				if err != nil {
					return out.Fail("create bill", err)
				}
				return out.Render(bill, func(w io.Writer) {
					fmt.Fprintf(w, "Bill #%s created for %s: %s due %s\n", bill.Number, bill.Customer, bill.AmountDue, bill.DueDate)
				})
			})
		},
	}
	create.Flags().StringVar(&customer, "customer", "", "customer name")
	create.Flags().StringVar(&amount, "amount", "", "amount due")
	create.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	for _, name := range []string{"customer", "amount", "due"} {
		_ = create.MarkFlagRequired(name)
	}
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "pay <number>",
		Short: "Mark a bill paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				bill, err := records.NewBills(s.sub, s.recordOpts...).Pay(cmd.Context(), args[0])
				if err != nil {
					return out.Fail("pay bill", err)
				}
				return out.Render(bill, func(w io.Writer) {
					fmt.Fprintf(w, "Bill #%s marked as paid\n", bill.Number)
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <number>",
		Short: "Show one bill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				bill, err := records.NewBills(s.sub, s.recordOpts...).Get(cmd.Context(), args[0])
				if err != nil {
					return out.Fail("get bill", err)
				}
				return out.Render(bill, func(w io.Writer) {
					writeBills(w, []records.Bill{bill})
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List bills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				bills, err := records.NewBills(s.sub, s.recordOpts...).List(cmd.Context())
				if err != nil {
					return out.Fail("list bills", err)
				}
				return out.Render(bills, func(w io.Writer) {
					writeBills(w, bills)
				})
			})
		},
	})
	return cmd
}

func writeBills(w io.Writer, bills []records.Bill) {
	if len(bills) == 0 {
		fmt.Fprintln(w, "No bills found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BILL\tCUSTOMER\tAMOUNT\tDUE\tSTATUS")
	for _, b := range bills {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.Number, b.Customer, b.AmountDue, b.DueDate, b.Status)
	}
	tw.Flush()
}

// NewBudgetCommand creates the budget command group.
func NewBudgetCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Compare budgeted and actual amounts per account",
	}

	var budgetType string
	set := &cobra.Command{
		Use:   "set <account> <amount>",
		Short: "Set the budgeted amount for an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount("amount", args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				b, err := records.NewBudgets(s.sub, s.recordOpts...).Set(cmd.Context(), args[0], amount, budgetType)
				if err != nil {
					return out.Fail("set budget", err)
				}
				return out.Render(b, func(w io.Writer) {
					fmt.Fprintf(w, "Budget for %s set to %s (%s)\n", b.Account, b.Budgeted, b.Type)
				})
			})
		},
	}
	set.Flags().StringVar(&budgetType, "type", "", "budget type (Income, Expense, ...); required for a new budget")
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "actual <account> <amount>",
		Short: "Add to the actual amount of a budget",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount("amount", args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				b, err := records.NewBudgets(s.sub, s.recordOpts...).RecordActual(cmd.Context(), args[0], amount)
				if err != nil {
					return out.Fail("record actual", err)
				}
				return out.Render(b, func(w io.Writer) {
					fmt.Fprintf(w, "Actual for %s is now %s of %s\n", b.Account, b.Actual, b.Budgeted)
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <account>",
		Short: "Show one budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				b, err := records.NewBudgets(s.sub, s.recordOpts...).Get(cmd.Context(), args[0])
				if err != nil {
					return out.Fail("get budget", err)
				}
				return out.Render(budgetView(b), func(w io.Writer) {
					writeBudgets(w, []records.Budget{b})
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List budgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				budgets, err := records.NewBudgets(s.sub, s.recordOpts...).List(cmd.Context())
				if err != nil {
					return out.Fail("list budgets", err)
				}
				views := make([]budgetJSON, len(budgets))
				for i, b := range budgets {
					views[i] = budgetView(b)
				}
				return out.Render(views, func(w io.Writer) {
					writeBudgets(w, budgets)
				})
			})
		},
	})
	return cmd
}

type budgetJSON struct {
	records.Budget
	Remaining decimal.Decimal `json:"remaining"`
}

func budgetView(b records.Budget) budgetJSON {
	return budgetJSON{Budget: b, Remaining: b.Remaining()}
}

func writeBudgets(w io.Writer, budgets []records.Budget) {
	if len(budgets) == 0 {
		fmt.Fprintln(w, "No budgets found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tTYPE\tBUDGETED\tACTUAL\tREMAINING")
	for _, b := range budgets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.Account, b.Type, b.Budgeted, b.Actual, b.Remaining())
	}
	tw.Flush()
}
