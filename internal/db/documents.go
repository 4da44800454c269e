package db

import (
	"context"
	"fmt"

	"github.com/unicahq/unica-go/internal/models"

	"github.com/surrealdb/surrealdb.go"
)

// CreateKnowledgeBase creates a knowledge base with a derived collection name.
func (c *Client) CreateKnowledgeBase(ctx context.Context, workspaceID, name string) (*models.KnowledgeBase, error) {
	collection := "kb_" + models.Slugify(name)

	results, err := surrealdb.Query[[]models.KnowledgeBase](ctx, c.db, `
		CREATE knowledge_base SET
			workspace_id = $workspace_id,
			name = $name,
			collection = $collection
		RETURN AFTER
	`, map[string]any{
		"workspace_id": workspaceID,
		"name":         name,
		"collection":   collection,
	})
	if err != nil {
		return nil, fmt.Errorf("create knowledge base: %w", wrapQueryError(err))
	}

	base := lastRow(results)
	if base == nil {
		return nil, fmt.Errorf("create knowledge base: no result returned")
	}
	return base, nil
}

// GetKnowledgeBase retrieves a knowledge base by ID.
// Returns ErrNotFound if it does not exist.
func (c *Client) GetKnowledgeBase(ctx context.Context, id string) (*models.KnowledgeBase, error) {
	results, err := surrealdb.Query[[]models.KnowledgeBase](ctx, c.db, `
		SELECT * FROM type::record("knowledge_base", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get knowledge base: %w", err)
	}

	base := lastRow(results)
	if base == nil {
		return nil, fmt.Errorf("get knowledge base %s: %w", id, ErrNotFound)
	}
	return base, nil
}

// ListKnowledgeBases returns the knowledge bases of a workspace.
func (c *Client) ListKnowledgeBases(ctx context.Context, workspaceID string) ([]models.KnowledgeBase, error) {
	results, err := surrealdb.Query[[]models.KnowledgeBase](ctx, c.db, `
		SELECT * FROM knowledge_base
		WHERE workspace_id = $workspace_id
		ORDER BY created_at DESC
	`, map[string]any{"workspace_id": workspaceID})
	if err != nil {
		return nil, fmt.Errorf("list knowledge bases: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.KnowledgeBase{}, nil
	}
	return (*results)[0].Result, nil
}

// CreateDocument stores a raw document under a knowledge base.
// The content hash is computed by the caller over the raw bytes.
func (c *Client) CreateDocument(ctx context.Context, doc models.Document) (*models.Document, error) {
	results, err := surrealdb.Query[[]models.Document](ctx, c.db, `
		CREATE document SET
			base_id = $base_id,
			name = $name,
			mime_type = $mime_type,
			content = $content,
			content_hash = $content_hash
		RETURN AFTER
	`, map[string]any{
		"base_id":      doc.BaseID,
		"name":         doc.Name,
		"mime_type":    doc.MimeType,
		"content":      doc.Content,
		"content_hash": doc.ContentHash,
	})
	if err != nil {
		return nil, fmt.Errorf("create document: %w", wrapQueryError(err))
	}

	created := lastRow(results)
	if created == nil {
		return nil, fmt.Errorf("create document: no result returned")
	}
	return created, nil
}

// ListDocuments returns all documents of a knowledge base in stable creation
// order. The indexing pipeline relies on this ordering for its resume cursor.
func (c *Client) ListDocuments(ctx context.Context, baseID string) ([]models.Document, error) {
	results, err := surrealdb.Query[[]models.Document](ctx, c.db, `
		SELECT * FROM document
		WHERE base_id = $base_id
		ORDER BY created_at ASC, id ASC
	`, map[string]any{"base_id": baseID})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Document{}, nil
	}
	return (*results)[0].Result, nil
}

// DeleteDocument removes a document by ID. Idempotent.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE type::record("document", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
