package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// NewStatsCmd returns "stats rows|columns".
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-label or aggregate statistics of one axis",
	}
	cmd.AddCommand(
		newAxisStatsCmd("rows", "Statistics of species (matrix rows)", matrix.Row),
		newAxisStatsCmd("columns", "Statistics of datasets (matrix columns)", matrix.Column),
	)
	return cmd
}

func newAxisStatsCmd(use, short string, axis matrix.Axis) *cobra.Command {
	var date, label string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Example: "  occmatrix stats " + use + " --date 2024_02_01 --label <key>\n" +
			"  occmatrix stats " + use + " -o table",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			svc, err := cliCtx.QueryService()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			cliCtx.Logger.Debug("querying statistics",
				logging.String(logging.FieldAxis, axis.String()),
				logging.String(logging.FieldLabel, label),
				logging.String(logging.FieldDate, date))

			get := svc.GetRowStats
			if axis == matrix.Column {
				get = svc.GetColumnStats
			}
			res, err := get(ctx, date, label)
			if err != nil {
				return err
			}
			return PrintResult(cmd, statsView{res})
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "", "snapshot date YYYY_MM_DD (default: configured or latest)")
	cmd.Flags().StringVarP(&label, "label", "l", "", "label to describe (default: aggregate over all labels)")
	return cmd
}

// NewRankCmd returns "rank".
func NewRankCmd() *cobra.Command {
	var (
		date, axisName, by, order string
		limit                     int
	)

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank the labels of one axis by occurrence count or total",
		Example: "  occmatrix rank --axis rows --by total --limit 10\n" +
			"  occmatrix rank --axis columns --by count --order asc -o table",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			axis, err := matrix.ParseAxis(axisName)
			if err != nil {
				return err
			}
			if limit < 0 {
				return errors.InvalidParam("--limit must not be negative")
			}
			svc, err := cliCtx.QueryService()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			res, err := svc.Rank(ctx, date, axis, matrix.SortField(by), matrix.SortOrder(order), limit)
			if err != nil {
				return err
			}
			return PrintResult(cmd, rankView{res})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&date, "date", "d", "", "snapshot date YYYY_MM_DD (default: configured or latest)")
	f.StringVarP(&axisName, "axis", "a", "rows", "axis to rank (rows, columns)")
	f.StringVar(&by, "by", "total", "measure to rank by (count, total)")
	f.StringVar(&order, "order", "descending", "ranking order (ascending, descending)")
	f.IntVarP(&limit, "limit", "n", 0, "number of labels (default: configured rank limit)")
	return cmd
}

// NewCompareCmd returns "compare".
func NewCompareCmd() *cobra.Command {
	var date, axisName, label string

	cmd := &cobra.Command{
		Use:     "compare",
		Short:   "Compare one label with the aggregate of its axis",
		Example: "  occmatrix compare --axis columns --label <dataset key>",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			axis, err := matrix.ParseAxis(axisName)
			if err != nil {
				return err
			}
			svc, err := cliCtx.QueryService()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			res, err := svc.Compare(ctx, date, label, axis)
			if err != nil {
				return err
			}
			return PrintResult(cmd, statsView{res})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&date, "date", "d", "", "snapshot date YYYY_MM_DD (default: configured or latest)")
	f.StringVarP(&axisName, "axis", "a", "rows", "axis of the label (rows, columns)")
	f.StringVarP(&label, "label", "l", "", "label to compare")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}
