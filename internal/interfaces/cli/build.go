package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/occurrence-matrix/internal/application/analyst"
	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
)

// NewBuildCmd returns "build", which turns a stacked record table into a
// dated matrix archive and its two summary archives.
func NewBuildCmd() *cobra.Command {
	var (
		input, date, table, outDir string
		upload                     bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a dated occurrence matrix from a stacked CSV/TSV table",
		Long: "build reads a stacked (species, dataset, count) table, builds the sparse\n" +
			"matrix and writes the matrix and summary archives to the work dir.  With\n" +
			"--upload the archives are also published to the configured object store.\n" +
			"Builds always run locally, even when --server is set.",
		Example: "  occmatrix build --input occurrences.tsv --date 2024_02_01\n" +
			"  occmatrix build --input occurrences.csv --upload",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if table == "" {
				table = cliCtx.Config.Matrix.TableType
			}
			t, err := matrix.ParseTableType(table)
			if err != nil {
				return err
			}
			if date != "" {
				if _, err := matrix.ParseDateStamp(date); err != nil {
					return err
				}
			}
			comps, err := cliCtx.Components()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			cliCtx.Logger.Info("building matrix",
				logging.String(logging.FieldPath, input),
				logging.String(logging.FieldTable, string(t)),
				logging.Bool("upload", upload))

			res, err := comps.Builder.Build(ctx, analyst.BuildRequest{
				InputPath: input,
				Table:     t,
				Date:      date,
				OutDir:    outDir,
				Upload:    upload,
			})
			if err != nil {
				return err
			}
			return PrintResult(cmd, buildView{res})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", "stacked CSV or TSV record table")
	f.StringVarP(&date, "date", "d", "", "snapshot date YYYY_MM_DD (default: today, UTC)")
	f.StringVarP(&table, "table", "t", "", "table type (default: matrix.table_type from config)")
	f.StringVar(&outDir, "out", "", "output directory (default: <work dir>/<date>)")
	f.BoolVar(&upload, "upload", false, "publish the archives to the object store")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
