package cli

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"rainfall-archive/internal/config"
	"rainfall-archive/internal/models"
	"rainfall-archive/internal/repository"
	"rainfall-archive/internal/services"
	"rainfall-archive/pkg/logging"
	"rainfall-archive/pkg/metrics"
)

// session bundles what a single command invocation needs
type session struct {
	opts    *RootOptions
	out     *OutputFormatter
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

func newSession(opts *RootOptions, cmd *cobra.Command) *session {
	logger := logging.NewNopLogger()
	if opts.Verbose {
		logger = logging.NewStructuredLogger("rainfall-cli", Version, logging.DebugLevel)
		logger.SetOutput(cmd.ErrOrStderr())
	}

	return &session{
		opts: opts,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
		logger:  logger,
		metrics: metrics.NewCollectorWithRegistry("rainfall_cli", prometheus.NewRegistry()),
	}
}

// load reads the table at path with the configured layout
func (s *session) load(ctx context.Context, path string) (*services.LoadResult, error) {
	layout := models.DefaultLayout()
	if s.opts.Layout != "" {
		var err error
		if layout, err = config.LoadLayout(s.opts.Layout); err != nil {
			return nil, err
		}
	}

	result, err := services.NewIngestionService(layout, s.logger, s.metrics).Load(ctx, path)
	if err != nil {
		return nil, err
	}

	s.out.VerboseLog("Loaded %s: %d rows read, %d accepted, %d rejected",
		result.Source, result.RowsRead, result.RowsAccepted, result.RowsRejected)
	for _, reason := range result.Rejections {
		s.out.VerboseLog("  rejected: %s", reason)
	}
	return result, nil
}

func (s *session) archive() *services.ArchiveService {
	repo := repository.NewFileArchive(s.opts.Archive, s.logger, s.metrics)
	return services.NewArchiveService(repo, s.logger, s.metrics)
}

func (s *session) statistics() *services.StatisticsService {
	repo := repository.NewFileArchive(s.opts.Archive, s.logger, s.metrics)
	return services.NewStatisticsService(repo, s.logger, s.metrics)
}

func (s *session) close() {
	_ = s.logger.Sync()
}
