package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/unicahq/unica-go/internal/client"
	"github.com/unicahq/unica-go/internal/models"
)

var (
	indexMode string
	indexNoUI bool
)

var indexCmd = &cobra.Command{
	Use:   "index <workspace-id> <base-id>",
	Short: "Start an indexing run for a knowledge base",
	Long: `Start an indexing run and watch its progress.

Modes:
  full      reindex every document (default)
  changed   skip documents whose content is already indexed

Examples:
  unica index ws-1 base-1
  unica index ws-1 base-1 --mode changed
  unica index ws-1 base-1 --no-ui   # plain line output`,
	Args: cobra.ExactArgs(2),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexMode, "mode", "full", "indexing mode (full or changed)")
	indexCmd.Flags().BoolVar(&indexNoUI, "no-ui", false, "disable the progress UI")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	workspaceID, baseID := args[0], args[1]

	mode := models.IndexMode(indexMode)
	if mode != models.IndexModeFull && mode != models.IndexModeChanged {
		return fmt.Errorf("invalid mode %q: must be full or changed", indexMode)
	}

	ctx := context.Background()
	job, err := apiClient.StartIndexing(ctx, workspaceID, baseID, mode)
	if err != nil {
		return fmt.Errorf("start indexing: %w", err)
	}

	fmt.Printf("Started indexing run %s (%s)\n", job.ActionID(), mode)

	if indexNoUI || !term.IsTerminal(int(os.Stdout.Fd())) {
		return watchPlain(ctx, job.ActionID())
	}
	return RunJobProgress(apiClient, job)
}

// watchPlain polls the job and prints one line per update. Used for
// non-interactive output (pipes, CI).
func watchPlain(ctx context.Context, actionID string) error {
	var lastLine string
	poller := client.NewPoller(apiClient, 0, func(job *models.IndexingJob) {
		line := fmt.Sprintf("[%s] %s %.0f%% (%d/%d documents, %d/%d chunks)",
			job.Status, job.Stage, job.Progress.ProgressPercent,
			job.Progress.ProcessedDocuments, job.Progress.TotalDocuments,
			job.Progress.ProcessedChunks, job.Progress.TotalChunks)
		if line != lastLine {
			fmt.Println(line)
			lastLine = line
		}
	})

	snapshots, err := poller.Watch(ctx, actionID)
	if err != nil {
		return fmt.Errorf("watch job: %w", err)
	}

	final := snapshots[actionID]
	if final != nil && final.Status == models.StatusError {
		if final.Error != nil {
			return fmt.Errorf("indexing failed: %s", *final.Error)
		}
		return fmt.Errorf("indexing failed")
	}
	return nil
}
