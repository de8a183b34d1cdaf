package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bibmerge/internal/engine"
	"github.com/sells-group/bibmerge/internal/model"
)

var papersCmd = &cobra.Command{
	Use:   "papers",
	Short: "Query canonical papers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}
		papers := env.Engine.FindPapers(f)

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), papers)
		}
		formatPapersList(cmd.OutOrStdout(), papers)
		return nil
	},
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "title substring")
	cmd.Flags().String("author", "", "author name")
	cmd.Flags().Int64("author-id", 0, "canonical author id")
	cmd.Flags().String("link-type", "", "link type (with --link, an exact link)")
	cmd.Flags().String("link", "", "link identifier")
	cmd.Flags().String("topic", "", "topic")
	cmd.Flags().String("venue", "", "venue name")
	cmd.Flags().String("source", "", "contributing source")
	cmd.Flags().Float64("min-quality", 0, "minimum paper quality")
	cmd.Flags().Int("limit", 0, "max papers (0 = all)")
}

func filterFromFlags(cmd *cobra.Command) (engine.Filter, error) {
	var f engine.Filter
	f.Title, _ = cmd.Flags().GetString("title")
	f.Author, _ = cmd.Flags().GetString("author")
	f.AuthorID, _ = cmd.Flags().GetInt64("author-id")
	f.LinkType, _ = cmd.Flags().GetString("link-type")
	f.Link, _ = cmd.Flags().GetString("link")
	f.Topic, _ = cmd.Flags().GetString("topic")
	f.Venue, _ = cmd.Flags().GetString("venue")
	f.Source, _ = cmd.Flags().GetString("source")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	mq, _ := cmd.Flags().GetFloat64("min-quality")
	q, err := model.NewQuality(mq)
	if err != nil {
		return f, err
	}
	f.MinQuality = q
	if f.Link != "" && f.LinkType == "" {
		return f, eris.New("--link requires --link-type")
	}
	return f, nil
}

func formatPapersList(w io.Writer, papers []model.Paper) {
	if len(papers) == 0 {
		fmt.Fprintln(w, "No papers found.")
		return
	}
	tw := newTable(w, "ID", "YEAR", "QUALITY", "AUTHORS", "TITLE")
	for _, p := range papers {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%s\t%s\n", p.ID, paperYear(p), float64(p.Quality), authorSummary(p), truncate(p.Title, 80))
	}
	_ = tw.Flush()
}

func paperYear(p model.Paper) string {
	year := ""
	for _, r := range p.Releases {
		if r.DatePrecision == model.PrecisionUnknown {
			continue
		}
		if y := r.Date.Format("2006"); year == "" || y < year {
			year = y
		}
	}
	if year == "" {
		return "-"
	}
	return year
}

func authorSummary(p model.Paper) string {
	switch len(p.Authors) {
	case 0:
		return "-"
	case 1:
		return p.Authors[0].Name
	case 2:
		return p.Authors[0].Name + ", " + p.Authors[1].Name
	default:
		return p.Authors[0].Name + " et al."
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

var paperCmd = &cobra.Command{
	Use:   "paper <id>",
	Short: "Show a paper and the records it was built from",
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

		p, err := env.Engine.Paper(id)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), p)
		}
		formatPaper(cmd.OutOrStdout(), p)
		return nil
	},
}

func formatPaper(w io.Writer, p *model.Paper) {
	fmt.Fprintf(w, "Paper %d: %s\n", p.ID, p.Title)
	fmt.Fprintf(w, "Quality: %.2f  Sources: %s\n", float64(p.Quality), strings.Join(p.Sources, ", "))
	if p.CitationCount > 0 {
		fmt.Fprintf(w, "Citations: %d\n", p.CitationCount)
	}
	if len(p.Authors) > 0 {
		names := make([]string, len(p.Authors))
		for i, a := range p.Authors {
			names[i] = a.Name + " [" + strconv.FormatInt(a.AuthorID, 10) + "]"
		}
		fmt.Fprintf(w, "Authors: %s\n", strings.Join(names, "; "))
	}
	if len(p.Topics) > 0 {
		fmt.Fprintf(w, "Topics: %s\n", strings.Join(p.Topics, ", "))
	}
	fmt.Fprintf(w, "Links: %s\n", joinLinks(p.Links))
	for _, r := range p.Releases {
		date := model.FormatDate(r.Date, r.DatePrecision)
		if date == "" {
			date = "undated"
		}
		fmt.Fprintf(w, "Release: %s (%s) %s\n", r.Venue.Name, r.Status, date)
	}

	fmt.Fprintf(w, "\nContributions (%d):\n", len(p.Contributions))
	tw := newTable(w, "SOURCE", "QUALITY", "FINGERPRINT", "LINKS")
	for _, c := range p.Contributions {
		fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\n", c.Record.Source, float64(c.Record.Quality), c.Fingerprint, joinLinks(c.Record.Links))
	}
	_ = tw.Flush()
}

func joinLinks(links []model.Link) string {
	if len(links) == 0 {
		return "-"
	}
	parts := make([]string, len(links))
	for i, l := range links {
		parts[i] = l.String()
	}
	return strings.Join(parts, " ")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show arena counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		dlq, err := env.Store.CountDLQ(ctx)
		if err != nil {
			return err
		}
		s := env.Engine.Stats()
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "papers:       %d\n", s.Papers)
		fmt.Fprintf(w, "authors:      %d\n", s.Authors)
		fmt.Fprintf(w, "records:      %d\n", s.Records)
		fmt.Fprintf(w, "paper links:  %d\n", s.PaperLinks)
		fmt.Fprintf(w, "author links: %d\n", s.AuthorLinks)
		fmt.Fprintf(w, "redirects:    %d\n", s.Redirects)
		fmt.Fprintf(w, "reviews:      %d\n", s.Reviews)
		fmt.Fprintf(w, "dead letters: %d\n", dlq)
		return nil
	},
}

func newTable(w io.Writer, header ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	return tw
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid id %q", s)
	}
	return id, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}

func init() {
	addFilterFlags(papersCmd)
	papersCmd.Flags().Bool("json", false, "print JSON")
	paperCmd.Flags().Bool("json", false, "print JSON")
	rootCmd.AddCommand(papersCmd, paperCmd, statsCmd)
}
