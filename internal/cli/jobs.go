package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/unicahq/unica-go/internal/models"
)

var historyLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and control indexing runs",
}

var jobsActiveCmd = &cobra.Command{
	Use:   "active <workspace-id>",
	Short: "List a workspace's active runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := apiClient.ActiveJobs(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("list active runs: %w", err)
		}
		if len(jobs) == 0 {
			fmt.Println("No active runs")
			return nil
		}
		printJobTable(jobs)
		return nil
	},
}

var jobsHistoryCmd = &cobra.Command{
	Use:   "history <base-id>",
	Short: "List a knowledge base's past runs, most recent first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := apiClient.JobHistory(context.Background(), args[0], historyLimit)
		if err != nil {
			return fmt.Errorf("list run history: %w", err)
		}
		if len(jobs) == 0 {
			fmt.Println("No runs found")
			return nil
		}
		printJobTable(jobs)
		return nil
	},
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <action-id>",
	Short: "Show one run's details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := apiClient.GetJob(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get run: %w", err)
		}

		fmt.Printf("Run: %s\n", job.ActionID())
		fmt.Printf("  Base: %s\n", job.BaseID)
		fmt.Printf("  Workspace: %s\n", job.WorkspaceID)
		fmt.Printf("  Mode: %s\n", job.Mode)
		fmt.Printf("  Status: %s\n", job.Status)
		fmt.Printf("  Stage: %s\n", job.Stage)
		fmt.Printf("  Progress: %.0f%% (%d/%d documents, %d/%d chunks)\n",
			job.Progress.ProgressPercent,
			job.Progress.ProcessedDocuments, job.Progress.TotalDocuments,
			job.Progress.ProcessedChunks, job.Progress.TotalChunks)
		fmt.Printf("  Started: %s\n", job.CreatedAt.Format(time.RFC3339))
		fmt.Printf("  Updated: %s\n", job.UpdatedAt.Format(time.RFC3339))
		if job.Error != nil && *job.Error != "" {
			fmt.Printf("  Error: %s\n", *job.Error)
		}
		return nil
	},
}

var jobsPauseCmd = &cobra.Command{
	Use:   "pause <action-id>",
	Short: "Pause a run at its next checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := apiClient.PauseIndexing(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("pause run: %w", err)
		}
		fmt.Printf("Pause requested for %s (status: %s)\n", job.ActionID(), job.Status)
		return nil
	},
}

var jobsResumeCmd = &cobra.Command{
	Use:   "resume <action-id>",
	Short: "Resume a paused run from its checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := apiClient.ResumeIndexing(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("resume run: %w", err)
		}
		fmt.Printf("Resumed %s from document %d\n", job.ActionID(), job.DocumentCursor)
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <action-id>",
	Short: "Cancel a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := apiClient.CancelIndexing(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("cancel run: %w", err)
		}
		fmt.Printf("Cancel requested for %s (status: %s)\n", job.ActionID(), job.Status)
		return nil
	},
}

func init() {
	jobsHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to list")
	jobsCmd.AddCommand(jobsActiveCmd)
	jobsCmd.AddCommand(jobsHistoryCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsPauseCmd)
	jobsCmd.AddCommand(jobsResumeCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	rootCmd.AddCommand(jobsCmd)
}

func printJobTable(jobs []models.IndexingJob) {
	fmt.Printf("%-24s %-12s %-12s %-20s %-10s %s\n",
		"ID", "STATUS", "STAGE", "BASE", "PROGRESS", "UPDATED")
	fmt.Println("--------------------------------------------------------------------------------------------")
	for _, job := range jobs {
		progress := fmt.Sprintf("%.0f%%", job.Progress.ProgressPercent)
		fmt.Printf("%-24s %-12s %-12s %-20s %-10s %s\n",
			job.ActionID(), job.Status, job.Stage, job.BaseID,
			progress, job.UpdatedAt.Format("15:04:05"))
	}
}
