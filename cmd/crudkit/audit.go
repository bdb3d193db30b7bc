package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/artpar/crudkit/core/audit"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit [resource]",
	Short: "Show the change log",
	Long: `Show recorded creates, updates and destroys, newest first.

Requires audit.enabled in the config (or CRUDKIT_AUDIT_ENABLED=true).

Examples:
  crudkit audit
  crudkit audit album --key 12
  crudkit audit --operation destroy --since 24h
  crudkit audit --counts --since 168h
  crudkit audit --prune 720h`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAudit,
}

var (
	auditKey       string
	auditOperation string
	auditSince     time.Duration
	auditLimit     int
	auditCounts    bool
	auditPrune     time.Duration
)

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&auditKey, "key", "", "only entries for this record key")
	auditCmd.Flags().StringVar(&auditOperation, "operation", "", "only entries for this operation (create, update, destroy)")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "only entries newer than this age")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "maximum entries to show")
	auditCmd.Flags().BoolVar(&auditCounts, "counts", false, "show totals per resource and operation")
	auditCmd.Flags().DurationVar(&auditPrune, "prune", 0, "delete entries older than this age")
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if _, err := provide(ctx); err != nil {
		return err
	}
	if app.Audit == nil {
		return errors.New("audit log is disabled (set audit.enabled in the config)")
	}
	if err := app.Audit.Flush(ctx); err != nil {
		return fmt.Errorf("flush audit log: %w", err)
	}

	if auditPrune > 0 {
		n, err := app.Audit.Delete(ctx, time.Now().Add(-auditPrune))
		if err != nil {
			return fmt.Errorf("prune audit log: %w", err)
		}
		fmt.Fprintf(out, "Deleted %d entries older than %s\n", n, auditPrune)
		return nil
	}

	var since time.Time
	if auditSince > 0 {
		since = time.Now().Add(-auditSince)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if auditCounts {
		counts, err := app.Audit.Counts(ctx, since)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "RESOURCE\tOPERATION\tTOTAL")
		for _, c := range counts {
			fmt.Fprintf(w, "%s\t%s\t%d\n", c.Resource, c.Operation, c.Total)
		}
		return nil
	}

	opts := audit.QueryOptions{
		Operation: auditOperation,
		RecordKey: auditKey,
		Since:     since,
		Limit:     auditLimit,
	}
	if len(args) > 0 {
		opts.Resource = args[0]
	}

	entries, total, err := app.Audit.Query(ctx, opts)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "AT\tEVENT\tKEY\tCHANGED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.At.Local().Format(time.DateTime), e.Event, e.RecordKey, strings.Join(e.Changed, ","))
	}
	fmt.Fprintf(w, "\n%d of %d entries\n", len(entries), total)
	return nil
}
