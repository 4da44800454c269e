package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <chat-id> <question...>",
	Short: "Send a message to a chat and print the assistant reply",
	Long: `Send a message to a workspace chat. The server builds a context pack from
the chat history, retrieves matching passages from the workspace's knowledge
bases and generates a reply.

Examples:
  unica ask chat-1 "How do I rotate the API key?"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	chatID := args[0]
	question := strings.Join(args[1:], " ")

	exchange, err := apiClient.SendMessage(context.Background(), chatID, question)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	if verbose && exchange.Pack.WasTruncated {
		fmt.Printf("(context truncated: %d of %d chars kept)\n\n",
			exchange.Pack.FinalSize, exchange.Pack.OriginalSize)
	}
	fmt.Println(exchange.AssistantMessage.Content)
	return nil
}
