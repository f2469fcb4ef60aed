package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/ledger"
)

// NewVoucherCommand creates the voucher command group.
func NewVoucherCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voucher",
		Short: "Post, inspect and reverse vouchers",
	}

	cmd.AddCommand(newVoucherPostCommand(opts))
	cmd.AddCommand(newVoucherListCommand(opts))
	cmd.AddCommand(newVoucherGetCommand(opts))
	cmd.AddCommand(newVoucherReverseCommand(opts))
	cmd.AddCommand(newVoucherImportCommand(opts))
	return cmd
}

func newVoucherPostCommand(opts *RootOptions) *cobra.Command {
	var (
		req    engine.VoucherRequest
		amount string
	)
	cmd := &cobra.Command{
		Use:     "post",
		Short:   "Move an amount from one account to another",
		Example: `  tally voucher post --type payment --from Cash --to Rent --amount 1200 --desc "March rent"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if req.Amount, err = parseAmount("amount", amount); err != nil {
				return err
			}
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				v, err := s.processor.Post(cmd.Context(), req)
				if err != nil {
					return out.Fail("post voucher", err)
				}
				return out.Render(v, func(w io.Writer) {
					fmt.Fprintf(w, "Voucher %d posted: %s %s -> %s\n", v.ID, v.Amount, v.Source, v.Destination)
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.Type, "type", "", "voucher type (payment, receipt, journal, ...)")
	cmd.Flags().StringVar(&req.Source, "from", "", "source account (debited)")
	cmd.Flags().StringVar(&req.Destination, "to", "", "destination account (credited)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount to move")
	cmd.Flags().StringVar(&req.Description, "desc", "", "description")
	for _, name := range []string{"type", "from", "to", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newVoucherListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the voucher journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				vouchers, err := s.processor.List(cmd.Context())
				if err != nil {
					return out.Fail("list vouchers", err)
				}
				return out.Render(vouchers, func(w io.Writer) {
					writeVouchers(w, vouchers)
				})
			})
		},
	}
}

func writeVouchers(w io.Writer, vouchers []ledger.Voucher) {
	if len(vouchers) == 0 {
		fmt.Fprintln(w, "No vouchers found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tFROM\tTO\tAMOUNT\tDESCRIPTION")
	for _, v := range vouchers {
		desc := v.Description
		if v.ReversalOf != 0 && desc == "" {
			desc = "reversal of " + strconv.FormatInt(v.ReversalOf, 10)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", v.ID, v.Type, v.Source, v.Destination, v.Amount, desc)
	}
	tw.Flush()
}

func parseVoucherID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid voucher id %q", s))
	}
	return id, nil
}

func newVoucherGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one voucher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseVoucherID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				v, err := s.processor.Get(cmd.Context(), id)
				if err != nil {
					return out.Fail("get voucher", err)
				}
				return out.Render(v, func(w io.Writer) {
					fmt.Fprintf(w, "Voucher: %d (%s)\nType: %s\nFrom: %s\nTo: %s\nAmount: %s\n",
						v.ID, v.Ref, v.Type, v.Source, v.Destination, v.Amount)
					if v.Description != "" {
						fmt.Fprintf(w, "Description: %s\n", v.Description)
					}
					if v.ReversalOf != 0 {
						fmt.Fprintf(w, "Reverses: %d\n", v.ReversalOf)
					}
				})
			})
		},
	}
}

func newVoucherReverseCommand(opts *RootOptions) *cobra.Command {
	var desc string
	cmd := &cobra.Command{
		Use:   "reverse <id>",
		Short: "Post the mirror image of a voucher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseVoucherID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				v, err := s.processor.Reverse(cmd.Context(), id, desc)
				if err != nil {
					return out.Fail("reverse voucher", err)
				}
				return out.Render(v, func(w io.Writer) {
					fmt.Fprintf(w, "Voucher %d reversed by voucher %d\n", id, v.ID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&desc, "desc", "", "description of the reversal")
	return cmd
}

// ImportFile is the layout of a voucher import file.
type ImportFile struct {
	Vouchers []engine.VoucherRequest `yaml:"vouchers"`
}

// ImportItem is the outcome of one imported voucher.
type ImportItem struct {
	Index     int    `json:"index"`
	VoucherID int64  `json:"voucher_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Items    []ImportItem `json:"items"`
	Posted   int          `json:"posted"`
	Rejected int          `json:"rejected"`
}

func newVoucherImportCommand(opts *RootOptions) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Post every voucher listed in a YAML file",
		Long: `Post every voucher listed in a YAML file.

Vouchers are posted concurrently by --workers goroutines, so their journal
order is not the file order. A rejected voucher does not stop the others.

File format:
  vouchers:
    - { type: payment, source: Cash, destination: Rent, amount: "1200" }
    - { type: receipt, source: Sales, destination: Bank, amount: "99.95" }`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers < 1 {
				return NewExitError(ExitCommandError, "--workers must be at least 1")
			}
			reqs, err := readImportFile(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				result, err := importVouchers(cmd.Context(), s.processor, reqs, workers)
				if err != nil {
					return out.Fail("import vouchers", err)
				}
				s.logger.Info("import finished", "posted", result.Posted, "rejected", result.Rejected)

				if err := out.Render(result, func(w io.Writer) {
					for _, item := range result.Items {
						if item.Error != "" {
							fmt.Fprintf(w, "✗ voucher %d: %s\n", item.Index, item.Error)
						}
					}
					fmt.Fprintf(w, "Imported %d vouchers, %d rejected\n", result.Posted, result.Rejected)
				}); err != nil {
					return err
				}
				if result.Rejected > 0 {
					return NewExitError(ExitFailure, fmt.Sprintf("%d voucher(s) rejected", result.Rejected))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "number of concurrent posters")
	return cmd
}

func readImportFile(path string) ([]engine.VoucherRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read import file", err)
	}
	var file ImportFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, WrapExitError(ExitCommandError, "parse import file", err)
	}
	return file.Vouchers, nil
}

// importVouchers posts reqs with at most workers in flight. Rejections are
// recorded per item; only a consistency fault or a cancelled context stops
// the import.
func importVouchers(ctx context.Context, p *engine.Processor, reqs []engine.VoucherRequest, workers int) (ImportResult, error) {
	items := make([]ImportItem, len(reqs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, req := range reqs {
		g.Go(func() error {
			items[i].Index = i
			if err := ctx.Err(); err != nil {
				items[i].Error = err.Error()
				return nil
			}
			v, err := p.Post(ctx, req)
			if ledger.IsConsistencyFault(err) {
				items[i].Code = string(ledger.CodeConsistencyFault)
				items[i].Error = err.Error()
				return err
			}
			if err != nil {
				items[i].Code = string(ledger.CodeOf(err))
				items[i].Error = err.Error()
				return nil
			}
			items[i].VoucherID = v.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ImportResult{Items: items}, err
	}

	result := ImportResult{Items: items}
	for _, item := range items {
		if item.Error != "" {
			result.Rejected++
		} else {
			result.Posted++
		}
	}
	return result, nil
}
