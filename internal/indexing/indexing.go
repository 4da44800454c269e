// Package indexing runs the resumable knowledge-base indexing pipeline and
// owns the lifecycle of indexing jobs.
package indexing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/unicahq/unica-go/internal/events"
	"github.com/unicahq/unica-go/internal/metrics"
	"github.com/unicahq/unica-go/internal/models"
	"github.com/unicahq/unica-go/internal/parser"
)

// JobStore persists job state. The pipeline is the single writer of stage,
// status and progress; the gateway only flips control flags through it.
type JobStore interface {
	CreateJob(ctx context.Context, baseID, workspaceID string, mode models.IndexMode) (*models.IndexingJob, error)
	GetJob(ctx context.Context, id string) (*models.IndexingJob, error)
	SetStage(ctx context.Context, id string, stage models.JobStage, displayText string) (*models.IndexingJob, error)
	SetStatus(ctx context.Context, id string, status models.JobStatus, errMsg *string) (*models.IndexingJob, error)
	UpdateProgress(ctx context.Context, id string, delta models.ProgressDelta) (*models.IndexingJob, error)
	RequestPause(ctx context.Context, id string) (*models.IndexingJob, error)
	ClearPauseAndResume(ctx context.Context, id string) (*models.IndexingJob, error)
	RequestCancel(ctx context.Context, id string) (*models.IndexingJob, bool, error)
	ControlFlags(ctx context.Context, id string) (pause, cancel bool, err error)
	SetCursor(ctx context.Context, id string, cursor int) error
	ExpireStale(ctx context.Context, staleAfter time.Duration, errMsg string) ([]models.IndexingJob, error)
}

// DocumentSource supplies the knowledge base and its documents.
type DocumentSource interface {
	GetKnowledgeBase(ctx context.Context, id string) (*models.KnowledgeBase, error)
	ListDocuments(ctx context.Context, baseID string) ([]models.Document, error)
}

// VectorStore holds chunk rows and their embeddings.
type VectorStore interface {
	ResetCollection(ctx context.Context, collection string) error
	UpsertChunk(ctx context.Context, collection, documentID, documentHash string, chunkIndex int, content string) error
	PendingPoints(ctx context.Context, collection string, limit int) ([]models.Point, error)
	StoreEmbedding(ctx context.Context, documentID string, chunkIndex int, embedding []float32) error
	CollectionCounts(ctx context.Context, collection string) (total, embedded int, err error)
	IndexedDocumentHashes(ctx context.Context, collection string) (map[string]string, error)
}

// Embedder turns chunk text into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config tunes the pipeline.
type Config struct {
	Workers        int
	EmbedBatchSize int
	Chunk          parser.ChunkConfig
	Retry          RetryConfig
}

// DefaultConfig returns pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		EmbedBatchSize: 16,
		Chunk:          parser.DefaultChunkConfig(),
		Retry:          DefaultRetryConfig(),
	}
}

// Manager starts, controls and observes indexing runs. One Manager instance
// runs per process; each active job has at most one pipeline goroutine.
type Manager struct {
	store    JobStore
	docs     DocumentSource
	vectors  VectorStore
	embedder Embedder
	bus      *events.Bus
	metrics  *metrics.Collector
	logger   *slog.Logger
	cfg      Config

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager wires a manager. A nil metrics collector disables recording.
func NewManager(
	store JobStore,
	docs DocumentSource,
	vectors VectorStore,
	embedder Embedder,
	bus *events.Bus,
	collector *metrics.Collector,
	logger *slog.Logger,
	cfg Config,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultConfig().EmbedBatchSize
	}
	if cfg.Chunk.Size <= 0 {
		cfg.Chunk = parser.DefaultChunkConfig()
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Manager{
		store:    store,
		docs:     docs,
		vectors:  vectors,
		embedder: embedder,
		bus:      bus,
		metrics:  collector,
		logger:   logger,
		cfg:      cfg,
		running:  map[string]context.CancelFunc{},
	}
}

// Start creates a job for the base and launches its pipeline. Only one active
// run per base is allowed; a second start fails with the store's conflict
// error.
func (m *Manager) Start(ctx context.Context, baseID, workspaceID string, mode models.IndexMode) (*models.IndexingJob, error) {
	job, err := m.store.CreateJob(ctx, baseID, workspaceID, mode)
	if err != nil {
		return nil, err
	}

	m.logger.Info("indexing run started",
		"job", job.ActionID(), "base", baseID, "mode", mode)
	m.publishJob(ctx, job)
	m.launch(job.ActionID())
	return job, nil
}

// Pause requests a cooperative pause. The pipeline parks the run at its next
// checkpoint; until then the job stays in processing with the flag set.
func (m *Manager) Pause(ctx context.Context, jobID string) (*models.IndexingJob, error) {
	job, err := m.store.RequestPause(ctx, jobID)
	if err != nil {
		return nil, err
	}
	m.logger.Info("pause requested", "job", jobID)
	m.publishJob(ctx, job)
	return job, nil
}

// Resume reactivates a paused run and relaunches its pipeline from the
// persisted checkpoint. Resuming a run that is still processing is a no-op.
func (m *Manager) Resume(ctx context.Context, jobID string) (*models.IndexingJob, error) {
	job, err := m.store.ClearPauseAndResume(ctx, jobID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	_, alreadyRunning := m.running[jobID]
	m.mu.Unlock()
	if !alreadyRunning {
		m.logger.Info("resuming run", "job", jobID, "cursor", job.DocumentCursor)
		m.launch(jobID)
	}

	m.publishJob(ctx, job)
	return job, nil
}

// Cancel requests cancellation. A processing run stops cooperatively at its
// next checkpoint; a paused run is finalized immediately.
func (m *Manager) Cancel(ctx context.Context, jobID string) (*models.IndexingJob, error) {
	job, inline, err := m.store.RequestCancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	m.logger.Info("cancel requested", "job", jobID, "inline", inline)
	m.publishJob(ctx, job)
	if inline {
		m.publishTerminalAction(ctx, job)
	}
	return job, nil
}

// Shutdown stops all running pipelines and waits for them to park. Interrupted
// runs stay in processing and are either resumed on restart or expired by the
// watchdog.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, cancel := range m.running {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// launch spawns the pipeline goroutine for a job, detached from the caller's
// request context.
func (m *Manager) launch(jobID string) {
	runCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if _, exists := m.running[jobID]; exists {
		m.mu.Unlock()
		cancel()
		return
	}
	m.running[jobID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.running, jobID)
			m.mu.Unlock()
			cancel()
		}()
		m.run(runCtx, jobID)
	}()
}

// publishJob emits a job snapshot on the job and workspace channels. Callers
// persist the change first so pollers never observe state older than events.
func (m *Manager) publishJob(ctx context.Context, job *models.IndexingJob) {
	if m.bus == nil || job == nil {
		return
	}
	ev := events.Event{
		Kind:    events.KindJobUpdate,
		Payload: job,
	}
	ev.Channel = events.JobChannel(job.ActionID())
	m.bus.Publish(ctx, ev)
	ev.Channel = events.WorkspaceChannel(job.WorkspaceID)
	m.bus.Publish(ctx, ev)
}

// publishLog mirrors a job's display text as a log line on the job channel,
// feeding the gateway's log stream.
func (m *Manager) publishLog(ctx context.Context, job *models.IndexingJob) {
	if m.bus == nil || job == nil || job.DisplayText == "" {
		return
	}
	m.bus.Publish(ctx, events.Event{
		Channel: events.JobChannel(job.ActionID()),
		Kind:    events.KindLogLine,
		Payload: job.DisplayText,
	})
}

// publishTerminalAction surfaces the run's final state as a bot action on the
// workspace channel. Exactly one terminal action is emitted per run.
func (m *Manager) publishTerminalAction(ctx context.Context, job *models.IndexingJob) {
	if m.bus == nil || job == nil || !job.Status.Terminal() {
		return
	}

	status := models.BotActionDone
	text := "Indexing finished"
	switch job.Status {
	case models.StatusError:
		status = models.BotActionError
		text = "Indexing failed"
		if job.Error != nil {
			text = "Indexing failed: " + *job.Error
		}
	case models.StatusCanceled:
		status = models.BotActionDone
		text = "Indexing canceled"
	}

	m.bus.Publish(ctx, events.Event{
		Channel: events.WorkspaceChannel(job.WorkspaceID),
		Kind:    events.KindChatEvent,
		Payload: models.ChatEvent{
			Type: models.ChatEventBotAction,
			Action: &models.BotAction{
				WorkspaceID: job.WorkspaceID,
				ActionID:    job.ActionID(),
				ActionType:  "indexing",
				Status:      status,
				DisplayText: text,
				Payload: map[string]any{
					"base_id":  job.BaseID,
					"progress": job.Progress,
				},
			},
		},
	})
}

// errPaused and errCanceled stop the pipeline after the corresponding status
// has already been persisted and published.
var (
	errPaused   = errors.New("run paused")
	errCanceled = errors.New("run canceled")
)
