package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Chat represents a persistent conversation inside a workspace.
type Chat struct {
	ID          surrealmodels.RecordID `json:"id"`
	WorkspaceID string                 `json:"workspace_id"`
	Title       string                 `json:"title"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Message represents a single chat message within a chat.
type Message struct {
	ID        surrealmodels.RecordID `json:"id"`
	ChatID    string                 `json:"chat_id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	CreatedAt time.Time              `json:"created_at"`
}

// ChatEventType discriminates the payload of a chat channel event.
type ChatEventType string

const (
	ChatEventMessage   ChatEventType = "message"
	ChatEventBotAction ChatEventType = "bot_action"
)

// BotActionStatus is the visible state of a long-running bot action.
type BotActionStatus string

const (
	BotActionProcessing BotActionStatus = "processing"
	BotActionDone       BotActionStatus = "done"
	BotActionError      BotActionStatus = "error"
)

// BotAction describes a background operation surfaced in the chat UI.
// Exactly one terminal (done/error) event is emitted per action.
type BotAction struct {
	WorkspaceID string          `json:"workspace_id"`
	ChatID      string          `json:"chat_id"`
	ActionID    string          `json:"action_id"`
	ActionType  string          `json:"action_type"`
	Status      BotActionStatus `json:"status"`
	DisplayText string          `json:"display_text,omitempty"`
	Payload     map[string]any  `json:"payload,omitempty"`
}

// ChatEvent is the wire payload delivered on a per-chat event channel.
// Exactly one of Message/Action is set, matching Type.
type ChatEvent struct {
	Type    ChatEventType `json:"type"`
	Message *Message      `json:"message,omitempty"`
	Action  *BotAction    `json:"action,omitempty"`
}
