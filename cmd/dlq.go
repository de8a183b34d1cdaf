package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/bibmerge/internal/ingest"
	"github.com/sells-group/bibmerge/internal/resilience"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and retry dead-lettered records",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		errType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := env.Store.DequeueDLQ(ctx, resilience.DLQFilter{ErrorType: errType, Limit: limit, All: true})
		if err != nil {
			return err
		}
		formatDLQList(cmd.OutOrStdout(), entries)
		return nil
	},
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-ingest dead-lettered records that are due",
	Long:  "Retries transient failures whose backoff has elapsed. --permanent includes permanent failures; --all ignores backoff and retry limits.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		all, _ := cmd.Flags().GetBool("all")
		permanent, _ := cmd.Flags().GetBool("permanent")
		filter := resilience.DLQFilter{ErrorType: "transient", All: all}
		if permanent {
			filter.ErrorType = ""
		}

		res, err := ingest.NewBatch(env.Engine, env.Store, batchConfig(cfg, "")).RetryDLQ(ctx, filter)
		if res != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Retried %d: %d succeeded, %d failed, %d dropped\n",
				res.Retried, res.Succeeded, res.Failed, res.Dropped)
		}
		return err
	},
}

func formatDLQList(w io.Writer, entries []resilience.DLQEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "Dead letter queue is empty.")
		return
	}
	tw := newTable(w, "ID", "TYPE", "RETRIES", "NEXT RETRY", "ORIGIN", "TITLE", "ERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\t%s\t%s\n",
			e.ID, e.ErrorType, e.RetryCount, e.MaxRetries,
			e.NextRetryAt.Format("2006-01-02 15:04"), e.Origin,
			truncate(e.Record.Title, 40), truncate(e.Error, 60))
	}
	_ = tw.Flush()
}

func init() {
	dlqListCmd.Flags().String("type", "", "filter by error type (transient or permanent)")
	dlqListCmd.Flags().Int("limit", 0, "max entries (0 = all)")
	dlqRetryCmd.Flags().Bool("all", false, "ignore backoff and retry limits")
	dlqRetryCmd.Flags().Bool("permanent", false, "include permanent failures")
	dlqCmd.AddCommand(dlqListCmd, dlqRetryCmd)
	rootCmd.AddCommand(dlqCmd)
}
