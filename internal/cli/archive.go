package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rainfall-archive/internal/records"
	"rainfall-archive/internal/services"
)

// archiveOp is one of the ArchiveService export methods
type archiveOp func(archive *services.ArchiveService, ctx context.Context, store *records.Store) (*services.ArchiveResult, error)

// NewArchiveCommand creates the archive command group.
func NewArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Export tables into the archive",
		Long: `Export a table's observations into the archive file named by --archive.

insert appends every observation, so inserting the same table twice stores
it twice. delete removes every archive row whose year appears in the table,
whatever its month. replace runs delete then insert.`,
	}

	cmd.AddCommand(newArchiveSubcommand(rootOpts, "insert", "inserted", "Append a table's observations to the archive",
		(*services.ArchiveService).Insert))
	cmd.AddCommand(newArchiveSubcommand(rootOpts, "delete", "deleted", "Remove the archive rows of a table's years",
		(*services.ArchiveService).Delete))
	cmd.AddCommand(newArchiveSubcommand(rootOpts, "replace", "replaced", "Replace a table's years in the archive",
		(*services.ArchiveService).Replace))

	return cmd
}

func newArchiveSubcommand(rootOpts *RootOptions, name, done, short string, op archiveOp) *cobra.Command {
	return &cobra.Command{
		Use:           name + " <table.csv>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(rootOpts, args[0], done, cmd, op)
		},
	}
}

func runArchive(opts *RootOptions, path, verb string, cmd *cobra.Command, op archiveOp) error {
	s := newSession(opts, cmd)
	defer s.close()

	result, err := s.load(cmd.Context(), path)
	if err != nil {
		return s.out.Failure(err)
	}

	archived, err := op(s.archive(), cmd.Context(), result.Store)
	if err != nil {
		return s.out.Failure(err)
	}

	return s.out.Success(archived, func(w io.Writer) {
		writeArchiveResult(w, verb, archived)
	})
}

func writeArchiveResult(w io.Writer, verb string, result *services.ArchiveResult) {
	fmt.Fprintf(w, "archive %s: %s years %s, removed %d, wrote %d\n",
		result.Archive, verb, formatYears(result.Years), result.Removed, result.Written)
}

func formatYears(years []int) string {
	if len(years) == 0 {
		return "none"
	}
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ",")
}
