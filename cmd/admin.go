package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var mergePapersCmd = &cobra.Command{
	Use:   "merge-papers <id> <id>",
	Short: "Merge two papers the matcher kept apart",
	Long:  "Folds the contributions of both papers into one. The lower-quality paper is absorbed and its id redirects to the survivor.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := parseID(args[0])
		if err != nil {
			return err
		}
		b, err := parseID(args[1])
		if err != nil {
			return err
		}
		env, err := initEngine(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Engine.MergePapers(ctx, a, b)
		if err != nil {
			return err
		}
		zap.L().Info("papers merged", zap.Int64("a", a), zap.Int64("b", b), zap.Int64("survivor", p.ID))
		fmt.Fprintf(cmd.OutOrStdout(), "Merged into paper %d: %s\n", p.ID, p.Title)
		return nil
	},
}

var splitAuthorCmd = &cobra.Command{
	Use:   "split-author <author-id> <mention-id>...",
	Short: "Move mentions off an author onto a new author",
	Long:  "Mention ids have the form <fingerprint>#<position>; list them with `bibmerge author <id>`.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		env, err := initEngine(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		a, err := env.Engine.SplitAuthor(ctx, id, args[1:])
		if err != nil {
			return err
		}
		zap.L().Info("author split", zap.Int64("from", id), zap.Int64("new", a.ID), zap.Int("mentions", len(a.Mentions)))
		fmt.Fprintf(cmd.OutOrStdout(), "Created author %d (%s) with %d mention(s)\n", a.ID, a.Name, len(a.Mentions))
		return nil
	},
}

var authorCmd = &cobra.Command{
	Use:   "author <id>",
	Short: "Show an author and their mentions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		env, err := initEngine(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		a, err := env.Engine.Author(id)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), a)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Author %d: %s\n", a.ID, a.Name)
		fmt.Fprintf(w, "Quality: %.2f  Links: %s\n", float64(a.Quality), joinLinks(a.Links))
		tw := newTable(w, "MENTION", "PAPER", "NAME", "QUALITY")
		for _, m := range a.Mentions {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%.2f\n", m.ID, m.PaperID, m.Name, float64(m.Quality))
		}
		return tw.Flush()
	},
}

func init() {
	authorCmd.Flags().Bool("json", false, "print JSON")
	rootCmd.AddCommand(mergePapersCmd, splitAuthorCmd, authorCmd)
}
