package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bibmerge/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export canonical papers as JSON lines, YAML or XLSX",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		formatFlag, _ := cmd.Flags().GetString("format")
		format, err := export.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		if format == export.FormatXLSX && out == "" {
			return eris.New("--out is required for xlsx")
		}

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

		var w io.Writer = cmd.OutOrStdout()
		if out != "" {
			file, err := os.Create(out)
			if err != nil {
				return eris.Wrap(err, "create export file")
			}
			defer file.Close() //nolint:errcheck
			w = file
		}
		if err := export.Write(w, format, papers, env.Engine.Authors()); err != nil {
			return err
		}
		zap.L().Info("export complete", zap.String("format", string(format)), zap.Int("papers", len(papers)), zap.String("out", out))
		return nil
	},
}

func init() {
	addFilterFlags(exportCmd)
	exportCmd.Flags().String("format", "json", "json, yaml or xlsx")
	exportCmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
