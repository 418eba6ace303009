package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"rainfall-archive/internal/models"
)

// Version is reported in verbose logs and by --version
var Version = "1.0.0"

// RootOptions holds global flags shared across all commands.
type RootOptions struct {
	Verbose bool
	Format  string
	Layout  string
	Archive string
}

// ValidFormats lists the accepted values for the --format flag.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rainfall CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rainfall",
		Short: "Query, edit and archive monthly rainfall records",
		Long: `rainfall loads wide-format rainfall tables (one row per year, one column
per month) and works on them in long format.

Edits made by set, delete and quarter apply to the loaded table only; pass
--save to replace the table's years in the archive afterwards. The sma
command reads the archive directly.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return &models.ValidationError{
					Field:   "format",
					Value:   opts.Format,
					Message: fmt.Sprintf("invalid format %q: must be one of %s", opts.Format, strings.Join(ValidFormats, ", ")),
				}
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Write structured logs to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "Output format (text|json)")
	cmd.PersistentFlags().StringVar(&opts.Layout, "layout", "", "YAML file describing the table's column layout")
	cmd.PersistentFlags().StringVar(&opts.Archive, "archive", "archive.csv", "Archive file path")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewAverageCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewQuarterCommand(opts))
	cmd.AddCommand(NewArchiveCommand(opts))
	cmd.AddCommand(NewSMACommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
