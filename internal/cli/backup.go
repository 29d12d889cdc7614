package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/docsnap/internal/config"
	"github.com/danieljhkim/docsnap/internal/engine"
)

func newBackupCmd() *cobra.Command {
	opts := config.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Copy the database into a file tree",
		Long: `Walk the database from the start path and write every document to
<backupPath>/<collection>/<document>/.../<document>.json as typed JSON.

Collections named with -E are skipped at every depth. Existing files are
overwritten; nothing is deleted.

--dry-run only lists the documents. Listed documents that have no data of
their own are included in its count.`,
		Example: `  docsnap backup -a credentials.json -B ./backup
  docsnap backup -a credentials.json -B ./backup -S users/jon -E audit -L 3 -P`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(cmd, &opts)
		},
	}
	bindRunFlags(cmd, &opts)
	cmd.Flags().BoolVarP(&opts.PrettyPrint, config.FlagPrettyPrint, "P", false, "Indent the written JSON")
	return cmd
}

func runBackup(cmd *cobra.Command, opts *config.Options) error {
	if err := prepareRun(cmd, opts); err != nil {
		return err
	}

	ctx := cmd.Context()
	store, release, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	eng := newEngine(store)
	result, err := eng.Backup(ctx, &engine.BackupRequest{
		BackupPath:         opts.BackupPath,
		StartPath:          opts.StartPath,
		ExcludeCollections: opts.ExcludeCollections,
		RequestCountLimit:  opts.RequestCountLimit,
		PrettyPrint:        opts.PrettyPrint,
		DryRun:             opts.DryRun,
	})
	writeMetrics(cmd.ErrOrStderr(), eng, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return outputJSON(out, result)
	}

	docs := PrintCount(result.Documents, "document", "documents")
	if result.DryRun {
		PrintInfo(out, fmt.Sprintf("Dry run - would back up %s to %s", docs, opts.BackupPath))
		PrintList(out, result.Paths, 1)
	} else {
		PrintSuccess(out, fmt.Sprintf("Backed up %s to %s", docs, opts.BackupPath))
	}
	if result.Missing > 0 {
		PrintWarning(out, fmt.Sprintf("%s listed without data (sub-collections still walked)", PrintCount(result.Missing, "document", "documents")))
	}
	printCommon(cmd, result.Skipped, result.DroppedFields, result.RunID, result.Duration)
	return nil
}

// printCommon prints the summary lines shared by backup and restore.
func printCommon(cmd *cobra.Command, skipped, dropped int, runID string, took time.Duration) {
	out := cmd.OutOrStdout()
	if skipped > 0 {
		PrintWarning(out, fmt.Sprintf("Skipped %s (see log)", PrintCount(skipped, "entry", "entries")))
	}
	if dropped > 0 {
		PrintWarning(out, fmt.Sprintf("Dropped %s (see log)", PrintCount(dropped, "unsupported field", "unsupported fields")))
	}
	PrintLabelValue(out, "Run", runID)
	PrintLabelValue(out, "Took", took.Round(time.Millisecond).String())
}
