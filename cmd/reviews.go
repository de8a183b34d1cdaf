package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/bibmerge/internal/model"
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "List open manual review items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		formatReviews(cmd.OutOrStdout(), env.Engine.Reviews())
		return nil
	},
}

var resolveReviewCmd = &cobra.Command{
	Use:   "resolve <review-id>",
	Short: "Close a review item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Engine.ResolveReview(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Resolved review %s\n", args[0])
		return nil
	},
}

func formatReviews(w io.Writer, reviews []model.Review) {
	if len(reviews) == 0 {
		fmt.Fprintln(w, "No open reviews.")
		return
	}
	tw := newTable(w, "ID", "KIND", "NAME", "PAPER", "AUTHOR", "CANDIDATES", "CREATED")
	for _, rv := range reviews {
		ids := make([]string, len(rv.CandidateIDs))
		for i, id := range rv.CandidateIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			rv.ID, rv.Kind, rv.Name, rv.PaperID, rv.AuthorID,
			strings.Join(ids, ","), rv.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}

func init() {
	reviewsCmd.AddCommand(resolveReviewCmd)
	rootCmd.AddCommand(reviewsCmd)
}
