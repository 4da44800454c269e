package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/unicahq/unica-go/internal/client"
	"github.com/unicahq/unica-go/internal/events"
)

var logScope string

var logsCmd = &cobra.Command{
	Use:   "logs <resource-id>",
	Short: "Stream a resource's events",
	Long: `Stream events for a resource over WebSocket until interrupted.

The scope selects the channel family: job (default), workspace or chat.

Examples:
  unica logs job-123
  unica logs ws-1 --scope workspace`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().StringVar(&logScope, "scope", "job", "channel scope (job, workspace or chat)")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := client.NewLogStream(apiClient.Endpoint(), args[0], logScope, func(ev events.Event) {
		switch ev.Kind {
		case events.KindLogLine:
			fmt.Printf("%s %v\n", ev.At.Format("15:04:05"), ev.Payload)
		default:
			fmt.Printf("%s [%s] %v\n", ev.At.Format("15:04:05"), ev.Kind, ev.Payload)
		}
	})
	defer stream.Close()

	// Stop on Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "Streaming %s events for %s (Ctrl+C to stop)\n", logScope, args[0])
	stream.Run(ctx)
	return nil
}
