package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// KnowledgeBase groups documents that are indexed into one vector collection.
type KnowledgeBase struct {
	ID          surrealmodels.RecordID `json:"id"`
	WorkspaceID string                 `json:"workspace_id"`
	Name        string                 `json:"name"`
	Collection  string                 `json:"collection"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Document is a source file attached to a knowledge base. Content is stored
// raw; text extraction happens during indexing.
type Document struct {
	ID          surrealmodels.RecordID `json:"id"`
	BaseID      string                 `json:"base_id"`
	Name        string                 `json:"name"`
	MimeType    string                 `json:"mime_type"`
	Content     []byte                 `json:"content"`
	ContentHash string                 `json:"content_hash"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Point is one chunk of an indexed document stored in a vector collection.
// Its id is deterministic (<documentID>:<chunkIndex>) so re-uploads after a
// pause or crash overwrite instead of duplicating.
type Point struct {
	ID           surrealmodels.RecordID `json:"id"`
	Collection   string                 `json:"collection"`
	DocumentID   string                 `json:"document_id"`
	DocumentHash string                 `json:"document_hash"`
	ChunkIndex   int                    `json:"chunk_index"`
	Content      string                 `json:"content"`
	Embedding    []float32              `json:"embedding,omitempty"`
	Embedded     bool                   `json:"embedded"`
	CreatedAt    time.Time              `json:"created_at"`
}
