package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/ledger"
)

// NewExportCommand creates the export command.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot of the whole ledger to a JSON file",
		Example: `  tally export --out books.json
  tally --driver postgres --db "$DSN" export --out books.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				snap, err := s.sub.Snapshot(cmd.Context())
				if err != nil {
					return out.Fail("export", err)
				}
				data, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return WrapExitError(ExitCommandError, "encode snapshot", err)
				}
				if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
					return WrapExitError(ExitCommandError, "write snapshot", err)
				}

				summary := snapshotSummary(snap, outPath)
				return out.Render(summary, func(w io.Writer) {
					fmt.Fprintf(w, "Exported %d accounts, %d entries, %d vouchers, %d records to %s\n",
						summary.Accounts, summary.Entries, summary.Vouchers, summary.Records, outPath)
				})
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "snapshot file to write")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(opts *RootOptions) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Load a snapshot into an empty ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(inPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "read snapshot", err)
			}
			var snap ledger.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return WrapExitError(ExitCommandError, "decode snapshot", err)
			}

			return withSession(cmd, opts, func(s *session, out *OutputFormatter) error {
				if err := s.sub.Restore(cmd.Context(), snap); err != nil {
					return out.Fail("restore", err)
				}
				summary := snapshotSummary(snap, inPath)
				return out.Render(summary, func(w io.Writer) {
					fmt.Fprintf(w, "Restored %d accounts, %d entries, %d vouchers, %d records from %s\n",
						summary.Accounts, summary.Entries, summary.Vouchers, summary.Records, inPath)
				})
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "snapshot file to read")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

// SnapshotSummary counts the collections of a snapshot.
type SnapshotSummary struct {
	Path     string `json:"path"`
	Storage  string `json:"storage"`
	Accounts int    `json:"accounts"`
	Entries  int    `json:"entries"`
	Vouchers int    `json:"vouchers"`
	Records  int    `json:"records"`
}

func snapshotSummary(snap ledger.Snapshot, path string) SnapshotSummary {
	return SnapshotSummary{
		Path:     path,
		Storage:  snap.Meta.Storage,
		Accounts: len(snap.Accounts),
		Entries:  len(snap.Entries),
		Vouchers: len(snap.Vouchers),
		Records:  len(snap.Records),
	}
}
