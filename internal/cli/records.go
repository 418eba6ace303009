package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"rainfall-archive/internal/models"
	"rainfall-archive/internal/records"
	"rainfall-archive/internal/services"
)

// TableResult is the data written by list
type TableResult struct {
	Source       string               `json:"source"`
	RowsRejected int                  `json:"rows_rejected"`
	Observations []models.Observation `json:"observations"`
}

// AverageResult is the data written by average
type AverageResult struct {
	Year       int     `json:"year"`
	StartMonth int     `json:"start_month"`
	EndMonth   int     `json:"end_month"`
	Average    float64 `json:"average"`
}

// EditResult is the data written by set, delete and quarter
type EditResult struct {
	Observations []models.Observation    `json:"observations"`
	Archive      *services.ArchiveResult `json:"archive,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <table.csv>",
		Short:         "Print every observation of a table in long format",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, args[0], cmd)
		},
	}
}

func runList(opts *RootOptions, path string, cmd *cobra.Command) error {
	s := newSession(opts, cmd)
	defer s.close()

	result, err := s.load(cmd.Context(), path)
	if err != nil {
		return s.out.Failure(err)
	}

	data := TableResult{
		Source:       result.Source,
		RowsRejected: result.RowsRejected,
		Observations: result.Store.Observations(),
	}
	return s.out.Success(data, func(w io.Writer) {
		fmt.Fprintf(w, "%-4s  %5s  %s\n", "year", "month", "rain")
		for _, obs := range data.Observations {
			fmt.Fprintf(w, "%-4d  %5d  %s\n", obs.Year, obs.Month, formatRain(obs.Rainfall))
		}
	})
}

// NewAverageCommand creates the average command.
func NewAverageCommand(rootOpts *RootOptions) *cobra.Command {
	var year, startMonth, endMonth int

	cmd := &cobra.Command{
		Use:   "average <table.csv>",
		Short: "Mean rainfall of a year over a month range",
		Long: `Print the mean rainfall of --year over months --start-month..--end-month
inclusive. Absent values are left out of the mean.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAverage(rootOpts, args[0], year, startMonth, endMonth, cmd)
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Year to average")
	cmd.Flags().IntVar(&startMonth, "start-month", 1, "First month of the range (1-12)")
	cmd.Flags().IntVar(&endMonth, "end-month", 12, "Last month of the range (1-12)")
	_ = cmd.MarkFlagRequired("year")

	return cmd
}

func runAverage(opts *RootOptions, path string, year, startMonth, endMonth int, cmd *cobra.Command) error {
	s := newSession(opts, cmd)
	defer s.close()

	result, err := s.load(cmd.Context(), path)
	if err != nil {
		return s.out.Failure(err)
	}

	avg, err := result.Store.Average(startMonth, endMonth, year)
	if err != nil {
		return s.out.Failure(err)
	}

	data := AverageResult{Year: year, StartMonth: startMonth, EndMonth: endMonth, Average: avg}
	return s.out.Success(data, func(w io.Writer) {
		fmt.Fprintf(w, "%d months %d-%d: %s\n", year, startMonth, endMonth, formatValue(avg))
	})
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var year, month int

	cmd := &cobra.Command{
		Use:           "get <table.csv>",
		Short:         "Print the rainfall of one month",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args[0], year, month, cmd)
		},
	}

	addKeyFlags(cmd, &year, &month)
	return cmd
}

func runGet(opts *RootOptions, path string, year, month int, cmd *cobra.Command) error {
	s := newSession(opts, cmd)
	defer s.close()

	result, err := s.load(cmd.Context(), path)
	if err != nil {
		return s.out.Failure(err)
	}

	rain, err := result.Store.Rainfall(month, year)
	if err != nil {
		return s.out.Failure(err)
	}

	obs := models.Observation{Year: year, Month: month, Rainfall: models.Float64(rain)}
	return s.out.Success(obs, func(w io.Writer) {
		writeObservations(w, []models.Observation{obs})
	})
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		year, month int
		rainfall    float64
		save        bool
	)

	cmd := &cobra.Command{
		Use:   "set <table.csv>",
		Short: "Set the rainfall of one month",
		Long: `Overwrite the rainfall of --year/--month, or add it when the table has no
such month. With --save the table's years are then replaced in the archive.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(rootOpts, args[0], save, cmd, func(store *records.Store) ([]models.Observation, error) {
				if err := store.Insert(month, year, rainfall); err != nil {
					return nil, err
				}
				obs, _ := store.Lookup(month, year)
				return []models.Observation{obs}, nil
			})
		},
	}

	addKeyFlags(cmd, &year, &month)
	cmd.Flags().Float64Var(&rainfall, "rainfall", 0, "Rainfall value")
	cmd.Flags().BoolVar(&save, "save", false, "Replace the table's years in the archive afterwards")
	_ = cmd.MarkFlagRequired("rainfall")

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		year, month int
		save        bool
	)

	cmd := &cobra.Command{
		Use:   "delete <table.csv>",
		Short: "Mark the rainfall of one month as absent",
		Long: `Clear the rainfall of --year/--month. The month stays in the table with no
value and is left out of averages. With --save the table's years are then
replaced in the archive.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(rootOpts, args[0], save, cmd, func(store *records.Store) ([]models.Observation, error) {
				if err := store.Delete(month, year); err != nil {
					return nil, err
				}
				obs, _ := store.Lookup(month, year)
				return []models.Observation{obs}, nil
			})
		},
	}

	addKeyFlags(cmd, &year, &month)
	cmd.Flags().BoolVar(&save, "save", false, "Replace the table's years in the archive afterwards")

	return cmd
}

// NewQuarterCommand creates the quarter command.
func NewQuarterCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		year     int
		rainfall []float64
		save     bool
	)

	cmd := &cobra.Command{
		Use:   "quarter <table.csv> <winter|spring|summer|autumn>",
		Short: "Set the rainfall of the three months of a quarter",
		Long: `Set the rainfall of a quarter of --year from three comma-separated values.
winter is Jan-Mar, spring Apr-Jun, summer Jul-Sep and autumn Oct-Dec.`,
		Example:       "  rainfall quarter oxford.csv spring --year 1941 --rainfall 40.1,38.5,51.0",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			quarterName := args[1]
			return runEdit(rootOpts, args[0], save, cmd, func(store *records.Store) ([]models.Observation, error) {
				if err := store.InsertQuarter(quarterName, year, rainfall); err != nil {
					return nil, err
				}
				quarter, _ := models.ParseQuarter(quarterName)
				changed := make([]models.Observation, 0, 3)
				for _, month := range quarter.Months() {
					obs, _ := store.Lookup(month, year)
					changed = append(changed, obs)
				}
				return changed, nil
			})
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Year")
	cmd.Flags().Float64SliceVar(&rainfall, "rainfall", nil, "Rainfall of the quarter's three months")
	cmd.Flags().BoolVar(&save, "save", false, "Replace the table's years in the archive afterwards")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("rainfall")

	return cmd
}

// runEdit loads a table, applies edit and optionally replaces the table's
// years in the archive
func runEdit(opts *RootOptions, path string, save bool, cmd *cobra.Command, edit func(store *records.Store) ([]models.Observation, error)) error {
	s := newSession(opts, cmd)
	defer s.close()

	result, err := s.load(cmd.Context(), path)
	if err != nil {
		return s.out.Failure(err)
	}

	changed, err := edit(result.Store)
	if err != nil {
		return s.out.Failure(err)
	}
	data := EditResult{Observations: changed}

	if save {
		if data.Archive, err = s.archive().Replace(cmd.Context(), result.Store); err != nil {
			return s.out.Failure(err)
		}
	}

	return s.out.Success(data, func(w io.Writer) {
		writeObservations(w, data.Observations)
		if data.Archive != nil {
			writeArchiveResult(w, "replaced", data.Archive)
		}
	})
}

func addKeyFlags(cmd *cobra.Command, year, month *int) {
	cmd.Flags().IntVar(year, "year", 0, "Year")
	cmd.Flags().IntVar(month, "month", 0, "Month (1-12)")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("month")
}

func writeObservations(w io.Writer, observations []models.Observation) {
	for _, obs := range observations {
		fmt.Fprintf(w, "%d-%02d: %s\n", obs.Year, obs.Month, formatRain(obs.Rainfall))
	}
}

func formatRain(rain *float64) string {
	if rain == nil {
		return "-"
	}
	return formatValue(*rain)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
