// Package cli provides the command-line interface for unica.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/unicahq/unica-go/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool

	// apiClient talks to the gateway; created before every command runs.
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "unica",
	Short: "Operate Unica workspace indexing and chat",
	Long: `Unica is a multi-tenant workspace assistant with knowledge-base indexing.

This CLI talks to a running unica-server: start and watch indexing runs,
pause/resume/cancel them, stream their logs and inspect gateway stats.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $UNICA_SERVER_URL or http://localhost:8585)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
