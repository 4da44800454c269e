package db

import (
	"context"
	"fmt"

	"github.com/unicahq/unica-go/internal/models"

	"github.com/surrealdb/surrealdb.go"
)

// CreateChat creates a conversation in a workspace.
func (c *Client) CreateChat(ctx context.Context, workspaceID, title string) (*models.Chat, error) {
	results, err := surrealdb.Query[[]models.Chat](ctx, c.db, `
		CREATE chat SET
			workspace_id = $workspace_id,
			title = $title
		RETURN AFTER
	`, map[string]any{
		"workspace_id": workspaceID,
		"title":        title,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", wrapQueryError(err))
	}

	chat := lastRow(results)
	if chat == nil {
		return nil, fmt.Errorf("create chat: no result returned")
	}
	return chat, nil
}

// GetChat retrieves a chat by ID. Returns ErrNotFound if it does not exist.
func (c *Client) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	results, err := surrealdb.Query[[]models.Chat](ctx, c.db, `
		SELECT * FROM type::record("chat", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}

	chat := lastRow(results)
	if chat == nil {
		return nil, fmt.Errorf("get chat %s: %w", id, ErrNotFound)
	}
	return chat, nil
}

// AppendMessage appends a message to a chat and bumps the chat's updated_at.
func (c *Client) AppendMessage(ctx context.Context, chatID, role, content string) (*models.Message, error) {
	sql := `
		BEGIN TRANSACTION;
		LET $chat = (SELECT VALUE id FROM type::record("chat", $chat_id))[0];
		IF $chat == NONE {
			THROW "chat not found: " + $chat_id
		};
		UPDATE type::record("chat", $chat_id) SET updated_at = time::now();
		CREATE message SET
			chat_id = $chat_id,
			role = $role,
			content = $content
		RETURN AFTER;
		COMMIT TRANSACTION;
	`

	results, err := surrealdb.Query[[]models.Message](ctx, c.db, sql, map[string]any{
		"chat_id": chatID,
		"role":    role,
		"content": content,
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", wrapQueryError(err))
	}

	msg := lastRow(results)
	if msg == nil {
		return nil, fmt.Errorf("append message: no result returned")
	}
	return msg, nil
}

// ListMessages returns a chat's messages oldest first. A limit of 0 returns
// the full history.
func (c *Client) ListMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	sql := `
		SELECT * FROM message
		WHERE chat_id = $chat_id
		ORDER BY created_at ASC, id ASC
	`
	vars := map[string]any{"chat_id": chatID}
	if limit > 0 {
		sql += " LIMIT $limit"
		vars["limit"] = limit
	}

	results, err := surrealdb.Query[[]models.Message](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Message{}, nil
	}
	return (*results)[0].Result, nil
}
