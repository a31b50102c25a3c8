package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"b2b-pricing/internal/handler"
	"b2b-pricing/internal/model"
	"b2b-pricing/internal/spreadsheet"
)

// rootOptions are the global flags shared by every command.
type rootOptions struct {
	server  string
	shop    string
	actor   string
	timeout time.Duration
}

func (o *rootOptions) client() *apiClient {
	return newAPIClient(o.server, o.shop, o.actor, o.timeout)
}

// waitOptions control how a background job is followed.
type waitOptions struct {
	noWait      bool
	interval    time.Duration
	maxAttempts int
}

func (w *waitOptions) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&w.noWait, "no-wait", false, "return as soon as a background job is submitted")
	cmd.Flags().DurationVar(&w.interval, "interval", 2*time.Second, "delay between polls of a background job")
	cmd.Flags().IntVar(&w.maxAttempts, "max-attempts", 150, "polls before giving up on a background job")
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "pricectl",
		Short: "Reconcile shop prices from sheets and JSON",
		Long: `pricectl - command line client for the B2B pricing service.

Exports the catalog to an xlsx sheet, imports edited sheets, and follows
background updates until the platform reports them done.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("PRICECTL_SERVER", "http://localhost:8080"), "pricing service base URL")
	cmd.PersistentFlags().StringVar(&opts.shop, "shop", os.Getenv("PRICECTL_SHOP"), "shop domain sent in the Shop-Context header")
	cmd.PersistentFlags().StringVar(&opts.actor, "actor", os.Getenv("PRICECTL_ACTOR"), "who is making the change (requires --shop)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "per-request timeout")

	cmd.AddCommand(
		newExportCmd(opts),
		newImportCmd(opts),
		newReconcileCmd(opts),
		newPollCmd(opts),
	)
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download every variant's prices as an xlsx sheet",
		Long: `Download every variant's prices as an xlsx sheet.

Examples:
  pricectl export
  pricectl export -o prices.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := opts.client().export(cmd.Context())
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, content, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, len(content))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", handler.ExportFilename, "file to write")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var wait waitOptions
	var failedOut string

	cmd := &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Apply an edited price sheet",
		Long: `Apply an edited price sheet.

Large sheets are applied by a background job; import polls it until it is
done unless --no-wait is given. With --failed-out, rows that could not be
applied are written to a sheet in the uploaded columns plus a Reason column.

Examples:
  pricectl import prices.xlsx
  pricectl import prices.xlsx --failed-out failed.xlsx
  pricectl import prices.xlsx --no-wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			client := opts.client()

			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			resp, err := client.importSheet(ctx, args[0], content)
			if err != nil {
				return err
			}

			report, err := followJob(ctx, client, resp.Report, wait, out)
			if err != nil {
				return err
			}
			printReport(out, report)

			if failedOut != "" && len(report.FailedRows) > 0 {
				if err := writeFailedRows(failedOut, resp.Headers, report.FailedRows); err != nil {
					return err
				}
				fmt.Fprintf(out, "wrote %d failed rows to %s\n", len(report.FailedRows), failedOut)
			}
			return nil
		},
	}
	wait.register(cmd)
	cmd.Flags().StringVar(&failedOut, "failed-out", "", "write rows that failed to this xlsx file")
	return cmd
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var wait waitOptions
	var file string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Apply desired prices from a JSON file",
		Long: `Apply desired prices from a JSON file holding an array of rows:

  [{"sku": "TEE-S", "price": "19.99", "special_price": "15"}]

Use "-" to read the rows from standard input.

Examples:
  pricectl reconcile -f rows.json
  cat rows.json | pricectl reconcile -f -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			client := opts.client()

			rows, err := readRows(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			report, err := client.reconcile(ctx, rows)
			if err != nil {
				return err
			}

			report, err = followJob(ctx, client, report, wait, out)
			if err != nil {
				return err
			}
			printReport(out, report)
			return nil
		},
	}
	wait.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file of rows, or - for stdin")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newPollCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "poll <job-id>",
		Short: "Check a background job once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			result, err := opts.client().poll(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "job %s: %s (%d objects)\n", result.JobID, result.Status, result.ObjectCount)
			if result.Error != "" {
				fmt.Fprintf(out, "error: %s\n", result.Error)
			}
			if result.Done && result.Report != nil {
				printReport(out, result.Report)
			}
			return nil
		},
	}
}

// followJob polls the report's bulk job until it is done and returns the
// merged report. Reports without a job are returned unchanged.
func followJob(ctx context.Context, client *apiClient, report *model.Report, wait waitOptions, out io.Writer) (*model.Report, error) {
	if report.JobID == "" || wait.noWait {
		if report.JobID != "" {
			fmt.Fprintf(out, "submitted background job %s\n", report.JobID)
		}
		return report, nil
	}

	fmt.Fprintf(out, "waiting for background job %s", report.JobID)
	defer fmt.Fprintln(out)

	for attempt := 1; attempt <= wait.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait.interval):
			}
		}

		result, err := client.poll(ctx, report.JobID)
		if err != nil {
			// Transient; the job keeps running on the platform.
			fmt.Fprint(out, "!")
			continue
		}
		if !result.Done {
			fmt.Fprint(out, ".")
			continue
		}

		fmt.Fprintf(out, " %s", result.Status)
		if result.Report == nil {
			return report, nil
		}
		return result.Report, nil
	}
	return nil, fmt.Errorf("job %s still running after %d polls; check later with: pricectl poll %s",
		report.JobID, wait.maxAttempts, report.JobID)
}

// printReport writes a summary followed by one line per failed row.
func printReport(out io.Writer, report *model.Report) {
	fmt.Fprintf(out, "run %s: %d rows, %d updated (price %d, compare-at %d, b2b %d), %d unchanged, %d failed",
		report.RunID, report.Total, report.Updated,
		report.UpdatedPrice, report.UpdatedCompareAt, report.UpdatedSpecial,
		len(report.SkippedRows), len(report.FailedRows))
	if report.LimitSkippedCount > 0 {
		fmt.Fprintf(out, ", %d over the plan limit", report.LimitSkippedCount)
	}
	fmt.Fprintln(out)

	for _, msg := range report.Errors {
		fmt.Fprintf(out, "  %s\n", msg)
	}
}

func readRows(path string, stdin io.Reader) ([]model.DesiredRow, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var rows []model.DesiredRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("parsing rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows in %s", path)
	}
	return rows, nil
}

func writeFailedRows(path string, headers []string, rows []model.RowOutcome) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := spreadsheet.WriteOutcomes(f, headers, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
