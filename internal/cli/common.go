package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/juju/clock"
	"github.com/juju/loggo/v2"
	"github.com/spf13/cobra"

	"github.com/danieljhkim/docsnap/internal/config"
	"github.com/danieljhkim/docsnap/internal/docstore"
	"github.com/danieljhkim/docsnap/internal/docstore/dynamo"
	"github.com/danieljhkim/docsnap/internal/docstore/firestore"
	"github.com/danieljhkim/docsnap/internal/engine"
	"github.com/danieljhkim/docsnap/internal/fsops"
)

var logger = loggo.GetLogger("docsnap.cli")

// openStore connects to the configured backend. The returned function
// releases the connection. Tests replace it with an in-memory store.
var openStore = openBackend

// bindRunFlags registers the flags shared by backup and restore.
func bindRunFlags(cmd *cobra.Command, opts *config.Options) {
	f := cmd.Flags()
	f.StringVarP(&opts.CredentialsFile, config.FlagAccountCredentials, "a", "", "Path to the JSON account credentials")
	f.StringVarP(&opts.BackupPath, config.FlagBackupPath, "B", "", "Root directory of the backup tree")
	f.StringVarP(&opts.StartPath, config.FlagStartPath, "S", "", "Store path to start at (default: the database root)")
	f.IntVarP(&opts.RequestCountLimit, config.FlagRequestCountLimit, "L", opts.RequestCountLimit, "Documents in flight at once (capped at 3)")
	f.StringArrayVarP(&opts.ExcludeCollections, config.FlagExcludeCollections, "E", nil, "Collection id to skip at every depth (repeatable)")
	f.StringVar(&opts.Backend, config.FlagBackend, opts.Backend, "Store backend: firestore or dynamodb")
	f.StringVar(&opts.DynamoTable, config.FlagDynamoTable, "", "DynamoDB table holding the documents")
	f.Float64Var(&opts.RequestsPerSecond, config.FlagRequestsPerSecond, 0, "Maximum store requests per second (0: unlimited)")
	f.StringVar(&opts.MetricsFile, config.FlagMetricsFile, "", "Write run metrics in Prometheus text format to this file")
	f.BoolVar(&opts.DryRun, config.FlagDryRun, false, "List the documents without writing anything")
	f.StringVar(&opts.LogLevel, config.FlagLogLevel, opts.LogLevel, "Logging configuration, e.g. \"<root>=DEBUG\"")
}

// prepareRun merges the defaults file into opts, configures logging and
// validates the invocation. Nothing is contacted before it succeeds.
func prepareRun(cmd *cobra.Command, opts *config.Options) error {
	paths, err := config.DefaultPaths()
	if err != nil {
		return fmt.Errorf("failed to get config paths: %w", err)
	}
	file, err := config.LoadFile(paths.Config)
	if err != nil {
		return err
	}
	file.Apply(opts, cmd.Flags().Changed)

	if err := loggo.ConfigureLoggers(opts.LogLevel); err != nil {
		return fmt.Errorf("%w: --%s: %v", config.ErrConfiguration, config.FlagLogLevel, err)
	}
	return opts.Validate()
}

// openBackend connects to the backend named in opts and applies the
// request rate limit.
func openBackend(ctx context.Context, opts *config.Options) (docstore.Store, func() error, error) {
	creds, err := opts.LoadCredentials()
	if err != nil {
		return nil, nil, err
	}

	var (
		store   docstore.Store
		release = func() error { return nil }
	)
	switch opts.Backend {
	case config.BackendDynamoDB:
		s, err := dynamo.Open(ctx, creds, opts.DynamoTable)
		if err != nil {
			return nil, nil, err
		}
		store = s
	default:
		s, err := firestore.Open(ctx, creds)
		if err != nil {
			return nil, nil, err
		}
		store, release = s, s.Close
	}
	logger.Debugf("connected to %s backend", opts.Backend)

	return docstore.WithRateLimit(store, docstore.NewLimiter(opts.RequestsPerSecond)), release, nil
}

// newEngine creates an engine over store with the real filesystem and clock.
func newEngine(store docstore.Store) *engine.Engine {
	return engine.New(store, fsops.NewRealFS(), clock.WallClock, nil)
}

// writeMetrics exports the run metrics when a metrics file is configured.
func writeMetrics(w io.Writer, eng *engine.Engine, opts *config.Options) {
	if opts.MetricsFile == "" {
		return
	}
	if err := eng.Metrics().WriteTextfile(opts.MetricsFile); err != nil {
		PrintWarning(w, fmt.Sprintf("Failed to write metrics to %s: %v", opts.MetricsFile, err))
	}
}

// outputJSON writes a value as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
