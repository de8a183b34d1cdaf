package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/bibmerge/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.jsonl>...",
	Short: "Ingest scraper record files",
	Long:  "Decodes JSONL record files and folds every record into the canonical papers. Rejected records are counted and skipped; records the store refused go to the dead letter queue.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		source, _ := cmd.Flags().GetString("source")
		noHistory, _ := cmd.Flags().GetBool("no-history")
		bc := batchConfig(cfg, source)
		if noHistory {
			bc.HistoryDir = ""
		}

		res, err := ingest.NewBatch(env.Engine, env.Store, bc).Run(ctx, args)
		if res != nil {
			formatBatchResult(cmd.OutOrStdout(), res)
		}
		return err
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-ingest the history files",
	Long:  "Replays every history file in name order. Records already folded are duplicates, so replaying onto a populated store changes nothing.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Batch.HistoryDir
		}
		res, err := ingest.NewBatch(env.Engine, env.Store, batchConfig(cfg, "")).Replay(ctx, dir)
		if res != nil {
			formatBatchResult(cmd.OutOrStdout(), res)
		}
		return err
	},
}

func formatBatchResult(w io.Writer, res *ingest.BatchResult) {
	fmt.Fprintf(w, "batch %s: %d files, %d lines\n", res.ID, res.Files, res.Lines)
	fmt.Fprintf(w, "  ingested:   %d\n", res.Ingested)
	fmt.Fprintf(w, "  duplicates: %d\n", res.Duplicates)
	fmt.Fprintf(w, "  rejected:   %d\n", res.Rejected)
	fmt.Fprintf(w, "  failed:     %d\n", res.Failed)
	fmt.Fprintf(w, "  conflicts:  %d\n", res.Conflicts)
	fmt.Fprintf(w, "  reviews:    %d\n", res.Reviews)
	if res.History != "" {
		fmt.Fprintf(w, "  history:    %s\n", res.History)
	}
}

func init() {
	ingestCmd.Flags().String("source", "", "source name for records that carry none")
	ingestCmd.Flags().Bool("no-history", false, "do not write a history file")
	replayCmd.Flags().String("dir", "", "history directory (default from config)")
	rootCmd.AddCommand(ingestCmd, replayCmd)
}
