package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewSMACommand creates the sma command.
func NewSMACommand(rootOpts *RootOptions) *cobra.Command {
	var startYear, endYear, window int

	cmd := &cobra.Command{
		Use:   "sma",
		Short: "Simple moving average of archived rainfall",
		Long: `Average every full trailing window of --window archived values from
--start-year to --end-year inclusive, in archive order. Absent values are
skipped. Each average is labelled with the month that ends its window.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSMA(rootOpts, startYear, endYear, window, cmd)
		},
	}

	cmd.Flags().IntVar(&startYear, "start-year", 0, "First year of the range")
	cmd.Flags().IntVar(&endYear, "end-year", 0, "Last year of the range")
	cmd.Flags().IntVar(&window, "window", 0, "Number of values per average")
	_ = cmd.MarkFlagRequired("start-year")
	_ = cmd.MarkFlagRequired("end-year")
	_ = cmd.MarkFlagRequired("window")

	return cmd
}

func runSMA(opts *RootOptions, startYear, endYear, window int, cmd *cobra.Command) error {
	s := newSession(opts, cmd)
	defer s.close()

	report, err := s.statistics().MovingAverageReport(cmd.Context(), startYear, endYear, window)
	if err != nil {
		return s.out.Failure(err)
	}

	s.out.VerboseLog("%d archived values in %d-%d, window %d", report.Observations, startYear, endYear, window)
	return s.out.Success(report, func(w io.Writer) {
		for _, p := range report.Points {
			fmt.Fprintf(w, "%d-%02d: %s\n", p.Year, p.Month, formatValue(p.Value))
		}
	})
}
