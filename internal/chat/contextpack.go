// Package chat appends messages, builds context packs and generates assistant
// replies for workspace conversations.
package chat

import (
	"fmt"

	"github.com/unicahq/unica-go/internal/models"
)

// Pack is a recency suffix of a chat history that fits a character budget.
type Pack struct {
	Messages     []models.Message `json:"messages"`
	Budget       int              `json:"budget"`
	OriginalSize int              `json:"original_size"`
	FinalSize    int              `json:"final_size"`
	WasTruncated bool             `json:"was_truncated"`
}

// messageSize is the serialized footprint of a message: "role: content\n".
func messageSize(m models.Message) int {
	return len(m.Role) + 2 + len(m.Content) + 1
}

// BuildPack selects the newest messages whose cumulative size stays within
// budget. Messages are kept whole, dropped oldest-first; the newest message is
// always included even when it alone exceeds the budget. The input must be in
// chronological order and the returned slice preserves it.
func BuildPack(messages []models.Message, budget int) Pack {
	pack := Pack{Budget: budget}
	for _, m := range messages {
		pack.OriginalSize += messageSize(m)
	}
	if len(messages) == 0 {
		return pack
	}

	cut := len(messages) - 1
	size := messageSize(messages[cut])
	for cut > 0 {
		next := messageSize(messages[cut-1])
		if size+next > budget {
			break
		}
		size += next
		cut--
	}

	pack.Messages = messages[cut:]
	pack.FinalSize = size
	pack.WasTruncated = cut > 0
	return pack
}

// PromptHistory renders the pack as "role: content" lines for the model.
func (p Pack) PromptHistory() []string {
	out := make([]string, 0, len(p.Messages))
	for _, m := range p.Messages {
		out = append(out, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return out
}
