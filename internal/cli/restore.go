package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/docsnap/internal/config"
	"github.com/danieljhkim/docsnap/internal/engine"
)

func newRestoreCmd() *cobra.Command {
	opts := config.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Write a file tree back into the database",
		Long: `Read every document file under the backup path and set it in the
database at the path given by its location in the tree.

Only documents at or below the start path are restored, and collections
named with -E are skipped at every depth. References are re-created in
the destination database.`,
		Example: `  docsnap restore -a credentials.json -B ./backup
  docsnap restore -a other-project.json -B ./backup -S users -E audit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(cmd, &opts)
		},
	}
	bindRunFlags(cmd, &opts)
	return cmd
}

func runRestore(cmd *cobra.Command, opts *config.Options) error {
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
	result, err := eng.Restore(ctx, &engine.RestoreRequest{
		BackupPath:         opts.BackupPath,
		StartPath:          opts.StartPath,
		ExcludeCollections: opts.ExcludeCollections,
		RequestCountLimit:  opts.RequestCountLimit,
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
		PrintInfo(out, fmt.Sprintf("Dry run - would restore %s from %s", docs, opts.BackupPath))
		PrintList(out, result.Paths, 1)
	} else {
		PrintSuccess(out, fmt.Sprintf("Restored %s from %s", docs, opts.BackupPath))
	}
	printCommon(cmd, result.Skipped, result.DroppedFields, result.RunID, result.Duration)
	return nil
}
