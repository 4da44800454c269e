package db

import "fmt"

// schemaSQL returns the database schema initialization SQL. The embedding
// dimension parameterizes the HNSW index on the point table and must match
// the configured embedder.
func schemaSQL(dimension int) string {
	return fmt.Sprintf(`
    -- ==========================================================================
    -- KNOWLEDGE BASE / DOCUMENT TABLES
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS knowledge_base SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workspace_id ON knowledge_base TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON knowledge_base TYPE string;
    DEFINE FIELD IF NOT EXISTS collection ON knowledge_base TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON knowledge_base TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS base_workspace ON knowledge_base FIELDS workspace_id;

    DEFINE TABLE IF NOT EXISTS document SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS base_id ON document TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON document TYPE string;
    DEFINE FIELD IF NOT EXISTS mime_type ON document TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON document TYPE bytes;
    DEFINE FIELD IF NOT EXISTS content_hash ON document TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON document TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS document_base ON document FIELDS base_id;

    -- ==========================================================================
    -- INDEXING JOB TABLE
    -- ==========================================================================
    -- One row per pipeline run. The pipeline is the single writer; control
    -- flags are set by the gateway and observed at stage checkpoints.
    DEFINE TABLE IF NOT EXISTS indexing_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS base_id ON indexing_job TYPE string;
    DEFINE FIELD IF NOT EXISTS workspace_id ON indexing_job TYPE string;
    DEFINE FIELD IF NOT EXISTS mode ON indexing_job TYPE string;
    DEFINE FIELD IF NOT EXISTS stage ON indexing_job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON indexing_job TYPE string;
    DEFINE FIELD IF NOT EXISTS progress ON indexing_job TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS display_text ON indexing_job TYPE string;
    DEFINE FIELD IF NOT EXISTS payload ON indexing_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS error ON indexing_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS pause_requested ON indexing_job TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS cancel_requested ON indexing_job TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS document_cursor ON indexing_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created_at ON indexing_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON indexing_job TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS job_base ON indexing_job FIELDS base_id;
    DEFINE INDEX IF NOT EXISTS job_workspace ON indexing_job FIELDS workspace_id;
    DEFINE INDEX IF NOT EXISTS job_status ON indexing_job FIELDS status;

    -- ==========================================================================
    -- VECTOR POINT TABLE
    -- ==========================================================================
    -- Point ids are deterministic (<documentID>:<chunkIndex>) so UPSERT by id
    -- is idempotent across resumed runs.
    DEFINE TABLE IF NOT EXISTS point SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS collection ON point TYPE string;
    DEFINE FIELD IF NOT EXISTS document_id ON point TYPE string;
    DEFINE FIELD IF NOT EXISTS document_hash ON point TYPE string;
    DEFINE FIELD IF NOT EXISTS chunk_index ON point TYPE int;
    DEFINE FIELD IF NOT EXISTS content ON point TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON point TYPE array<float> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS embedded ON point TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS created_at ON point TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS point_collection ON point FIELDS collection;
    DEFINE INDEX IF NOT EXISTS point_document ON point FIELDS document_id;
    DEFINE INDEX IF NOT EXISTS point_embedding ON point FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- CHAT TABLES
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS chat SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS workspace_id ON chat TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON chat TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON chat TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON chat TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS chat_workspace ON chat FIELDS workspace_id;

    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS chat_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS message_chat ON message FIELDS chat_id;
`, dimension)
}
