package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show gateway bus and operation statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := apiClient.Health(ctx); err != nil {
			return fmt.Errorf("server unreachable: %w", err)
		}

		stats, err := apiClient.Stats(ctx)
		if err != nil {
			return fmt.Errorf("fetch stats: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
