package db

import (
	"context"
	"fmt"

	"github.com/unicahq/unica-go/internal/models"

	"github.com/surrealdb/surrealdb.go"
)

// pointID builds the deterministic point id for a document chunk.
func pointID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%d", documentID, chunkIndex)
}

// ResetCollection removes every point of a collection. Used by full reindex
// runs before chunking starts.
func (c *Client) ResetCollection(ctx context.Context, collection string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE point WHERE collection = $collection
	`, map[string]any{"collection": collection})
	if err != nil {
		return fmt.Errorf("reset collection: %w", err)
	}
	return nil
}

// UpsertChunk writes one un-embedded chunk row with a deterministic id.
// Re-running the chunking stage after a pause or crash overwrites the same
// row instead of duplicating it. A row that was already embedded for the
// same document hash keeps its embedding; a changed hash resets it.
func (c *Client) UpsertChunk(
	ctx context.Context,
	collection string,
	documentID string,
	documentHash string,
	chunkIndex int,
	content string,
) error {
	sql := `
		UPSERT type::record("point", $id) SET
			collection = $collection,
			document_id = $document_id,
			chunk_index = $chunk_index,
			content = $content,
			embedded = IF embedded == true AND document_hash == $document_hash THEN true ELSE false END,
			embedding = IF embedded == true AND document_hash == $document_hash THEN embedding ELSE [] END,
			document_hash = $document_hash
	`

	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"id":            pointID(documentID, chunkIndex),
		"collection":    collection,
		"document_id":   documentID,
		"document_hash": documentHash,
		"chunk_index":   chunkIndex,
		"content":       content,
	})
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", wrapQueryError(err))
	}
	return nil
}

// PendingPoints returns up to limit points of a collection that still lack an
// embedding, in stable order. The vectorize and upload stages drain this set;
// after a resume it naturally contains only the remaining work.
func (c *Client) PendingPoints(ctx context.Context, collection string, limit int) ([]models.Point, error) {
	results, err := surrealdb.Query[[]models.Point](ctx, c.db, `
		SELECT * FROM point
		WHERE collection = $collection AND embedded = false
		ORDER BY document_id ASC, chunk_index ASC
		LIMIT $limit
	`, map[string]any{"collection": collection, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("pending points: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Point{}, nil
	}
	return (*results)[0].Result, nil
}

// StoreEmbedding marks a point as embedded with its vector.
func (c *Client) StoreEmbedding(ctx context.Context, documentID string, chunkIndex int, embedding []float32) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("point", $id) SET
			embedding = $embedding,
			embedded = true
	`, map[string]any{
		"id":        pointID(documentID, chunkIndex),
		"embedding": embedding,
	})
	if err != nil {
		return fmt.Errorf("store embedding: %w", wrapQueryError(err))
	}
	return nil
}

// CollectionCounts reports total and embedded point counts for a collection.
// The verify stage compares these against the run's expected chunk count.
func (c *Client) CollectionCounts(ctx context.Context, collection string) (total int, embedded int, err error) {
	type counts struct {
		Total    int `json:"total"`
		Embedded int `json:"embedded"`
	}

	results, qErr := surrealdb.Query[[]counts](ctx, c.db, `
		SELECT
			count() AS total,
			count(embedded = true) AS embedded
		FROM point
		WHERE collection = $collection
		GROUP ALL
	`, map[string]any{"collection": collection})
	if qErr != nil {
		return 0, 0, fmt.Errorf("collection counts: %w", qErr)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, 0, nil
	}
	row := (*results)[0].Result[0]
	return row.Total, row.Embedded, nil
}

// DocumentHashState is a document's indexed content hash within a collection,
// used by changed-mode runs to skip unmodified documents.
type DocumentHashState struct {
	DocumentID   string `json:"document_id"`
	DocumentHash string `json:"document_hash"`
}

// IndexedDocumentHashes returns, per document of a collection, the content
// hash its fully embedded points were built from. Documents with any
// un-embedded point are omitted so interrupted work is redone.
func (c *Client) IndexedDocumentHashes(ctx context.Context, collection string) (map[string]string, error) {
	results, err := surrealdb.Query[[]DocumentHashState](ctx, c.db, `
		SELECT document_id, document_hash FROM (
			SELECT
				document_id,
				document_hash,
				count(embedded = false) AS pending
			FROM point
			WHERE collection = $collection
			GROUP BY document_id, document_hash
		) WHERE pending = 0
	`, map[string]any{"collection": collection})
	if err != nil {
		return nil, fmt.Errorf("indexed document hashes: %w", err)
	}

	hashes := map[string]string{}
	if results != nil && len(*results) > 0 {
		for _, row := range (*results)[0].Result {
			hashes[row.DocumentID] = row.DocumentHash
		}
	}
	return hashes, nil
}

// SearchPoints performs KNN vector search over a collection's embedded points.
func (c *Client) SearchPoints(ctx context.Context, collection string, embedding []float32, limit int) ([]models.Point, error) {
	// HNSW operator with ef=40 for better recall; depth must be literal
	sql := fmt.Sprintf(`
		SELECT * FROM point
		WHERE collection = $collection
			AND embedded = true
			AND embedding <|%d,40|> $emb
	`, limit)

	results, err := surrealdb.Query[[]models.Point](ctx, c.db, sql, map[string]any{
		"collection": collection,
		"emb":        embedding,
	})
	if err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Point{}, nil
	}
	return (*results)[0].Result, nil
}
