// Package models defines data structures for the Unica workspace platform.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// JobStage names the phase an indexing job is currently executing.
type JobStage string

const (
	StageInitializing       JobStage = "initializing"
	StageCreatingCollection JobStage = "creating_collection"
	StageChunking           JobStage = "chunking"
	StageVectorizing        JobStage = "vectorizing"
	StageUploading          JobStage = "uploading"
	StageVerifying          JobStage = "verifying"
	StageCompleted          JobStage = "completed"
	StageError              JobStage = "error"
)

// JobStatus is the lifecycle state of an indexing job.
type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusPaused     JobStatus = "paused"
	StatusDone       JobStatus = "done"
	StatusError      JobStatus = "error"
	StatusCanceled   JobStatus = "canceled"
)

// Terminal reports whether a status permits no further mutation.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCanceled
}

// Active reports whether the job should be shown as in-flight.
func (s JobStatus) Active() bool {
	return s == StatusProcessing || s == StatusPaused
}

// IndexMode selects which documents an indexing run covers.
type IndexMode string

const (
	// IndexModeFull reindexes every document of the knowledge base.
	IndexModeFull IndexMode = "full"
	// IndexModeChanged skips documents whose content hash is already indexed.
	IndexModeChanged IndexMode = "changed"
)

// JobProgress holds the monotonic progress counters of a run.
type JobProgress struct {
	ProcessedDocuments int     `json:"processed_documents"`
	TotalDocuments     int     `json:"total_documents"`
	ProcessedChunks    int     `json:"processed_chunks"`
	TotalChunks        int     `json:"total_chunks"`
	ProgressPercent    float64 `json:"progress_percent"`
}

// IndexingJob represents one persisted run of the indexing pipeline for a
// knowledge base. The pipeline is the only writer; gateway and UI are readers.
type IndexingJob struct {
	ID          surrealmodels.RecordID `json:"id"`
	BaseID      string                 `json:"base_id"`
	WorkspaceID string                 `json:"workspace_id"`
	Mode        IndexMode              `json:"mode"`
	Stage       JobStage               `json:"stage"`
	Status      JobStatus              `json:"status"`
	Progress    JobProgress            `json:"progress"`
	DisplayText string                 `json:"display_text"`
	Payload     map[string]any         `json:"payload,omitempty"`
	Error       *string                `json:"error,omitempty"`

	// Cooperative-control flags, re-read from storage at checkpoints.
	PauseRequested  bool `json:"pause_requested"`
	CancelRequested bool `json:"cancel_requested"`

	// Resume checkpoint: number of documents fully chunked so far.
	DocumentCursor int `json:"document_cursor"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActionID returns the job's action id as a plain string.
func (j *IndexingJob) ActionID() string {
	return MustRecordIDString(j.ID)
}

// ProgressDelta is an atomic increment applied to a job's counters.
// Total fields replace the stored totals when non-nil; they are set once
// while the run discovers its workload and left alone afterwards.
type ProgressDelta struct {
	Documents      int
	Chunks         int
	TotalDocuments *int
	TotalChunks    *int
}
