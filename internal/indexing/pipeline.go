package indexing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unicahq/unica-go/internal/extract"
	"github.com/unicahq/unica-go/internal/metrics"
	"github.com/unicahq/unica-go/internal/models"
	"github.com/unicahq/unica-go/internal/parser"
)

// run drives one pipeline execution for a job and finalizes its outcome.
func (m *Manager) run(ctx context.Context, jobID string) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		m.logger.Error("pipeline could not load job", "job", jobID, "error", err)
		return
	}
	if job.Status.Terminal() {
		return
	}

	err = m.execute(ctx, job)
	switch {
	case err == nil:
		m.logger.Info("indexing run completed", "job", jobID)
	case errors.Is(err, errPaused):
		m.logger.Info("indexing run paused", "job", jobID)
	case errors.Is(err, errCanceled):
		m.logger.Info("indexing run canceled", "job", jobID)
	case errors.Is(err, context.Canceled):
		// Process shutdown: leave the job in processing. It is resumed on
		// restart or expired by the watchdog.
		m.logger.Warn("indexing run interrupted by shutdown", "job", jobID)
	default:
		m.failJob(jobID, err)
	}
}

// failJob moves a job to status=error and emits its terminal event. Uses a
// fresh context so finalization survives pipeline cancellation.
func (m *Manager) failJob(jobID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m.logger.Error("indexing run failed", "job", jobID, "error", cause)
	msg := cause.Error()
	job, err := m.store.SetStatus(ctx, jobID, models.StatusError, &msg)
	if err != nil {
		m.logger.Error("could not persist job failure", "job", jobID, "error", err)
		return
	}
	m.publishJob(ctx, job)
	m.publishTerminalAction(ctx, job)
}

// execute walks the job through its stages. Every stage boundary and batch is
// a checkpoint: state is persisted first, control flags are re-read after.
func (m *Manager) execute(ctx context.Context, job *models.IndexingJob) error {
	jobID := job.ActionID()

	base, err := m.docs.GetKnowledgeBase(ctx, job.BaseID)
	if err != nil {
		return fmt.Errorf("load knowledge base: %w", err)
	}

	documents, err := m.docs.ListDocuments(ctx, job.BaseID)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	// Changed mode skips documents whose indexed hash matches current content
	skip := map[string]bool{}
	if job.Mode == models.IndexModeChanged {
		indexed, err := m.vectors.IndexedDocumentHashes(ctx, base.Collection)
		if err != nil {
			return fmt.Errorf("load indexed hashes: %w", err)
		}
		for _, doc := range documents {
			id := models.MustRecordIDString(doc.ID)
			if indexed[id] == doc.ContentHash && doc.ContentHash != "" {
				skip[id] = true
			}
		}
	}

	totalDocs := len(documents)
	job, err = m.store.UpdateProgress(ctx, jobID, models.ProgressDelta{TotalDocuments: &totalDocs})
	if err != nil {
		return err
	}
	m.publishJob(ctx, job)
	if err := m.checkpoint(ctx, jobID); err != nil {
		return err
	}

	if err := m.prepareCollection(ctx, job, base.Collection); err != nil {
		return err
	}
	if err := m.chunkDocuments(ctx, job, base.Collection, documents, skip); err != nil {
		return err
	}
	if err := m.drainPending(ctx, jobID, base.Collection); err != nil {
		return err
	}
	if err := m.verify(ctx, job, base.Collection); err != nil {
		return err
	}

	done, err := m.store.SetStatus(ctx, jobID, models.StatusDone, nil)
	if err != nil {
		return err
	}
	m.publishJob(ctx, done)
	m.publishTerminalAction(ctx, done)
	return nil
}

// prepareCollection resets the collection for full runs starting from scratch.
// A resumed run keeps its partial work.
func (m *Manager) prepareCollection(ctx context.Context, job *models.IndexingJob, collection string) error {
	jobID := job.ActionID()

	updated, err := m.store.SetStage(ctx, jobID, models.StageCreatingCollection,
		"Preparing collection "+collection)
	if err != nil {
		return err
	}
	m.publishJob(ctx, updated)
	m.publishLog(ctx, updated)

	if job.Mode == models.IndexModeFull && job.DocumentCursor == 0 && job.Progress.ProcessedChunks == 0 {
		if err := m.vectors.ResetCollection(ctx, collection); err != nil {
			return fmt.Errorf("reset collection: %w", err)
		}
	}
	return m.checkpoint(ctx, jobID)
}

// chunkDocuments extracts and chunks every document past the resume cursor,
// persisting un-embedded chunk rows. The cursor advances only after a
// document's chunks are fully written, so a resume re-does at most one
// document and deterministic point ids make that overwrite idempotent.
func (m *Manager) chunkDocuments(
	ctx context.Context,
	job *models.IndexingJob,
	collection string,
	documents []models.Document,
	skip map[string]bool,
) error {
	jobID := job.ActionID()

	updated, err := m.store.SetStage(ctx, jobID, models.StageChunking, "Chunking documents")
	if err != nil {
		return err
	}
	m.publishJob(ctx, updated)
	m.publishLog(ctx, updated)

	totalChunks := job.Progress.TotalChunks

	for i := job.DocumentCursor; i < len(documents); i++ {
		doc := documents[i]
		docID := models.MustRecordIDString(doc.ID)

		if skip[docID] {
			if err := m.recordDocumentDone(ctx, jobID, i, nil); err != nil {
				return err
			}
			continue
		}

		start := time.Now()
		chunks, chunkErr := chunksForDocument(doc, m.cfg.Chunk)
		m.metrics.RecordTiming(metrics.OpChunking, time.Since(start))
		if chunkErr != nil {
			// Unreadable documents don't fail the run; they are skipped
			m.logger.Warn("skipping document",
				"job", jobID, "document", docID, "name", doc.Name, "error", chunkErr)
			if err := m.recordDocumentDone(ctx, jobID, i, nil); err != nil {
				return err
			}
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.cfg.Workers)
		for _, c := range chunks {
			g.Go(func() error {
				return m.vectors.UpsertChunk(gctx, collection, docID, doc.ContentHash, c.Position, c.Content)
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("persist chunks for %s: %w", doc.Name, err)
		}

		totalChunks += len(chunks)
		if err := m.recordDocumentDone(ctx, jobID, i, &totalChunks); err != nil {
			return err
		}
	}
	return nil
}

// recordDocumentDone advances progress and cursor after one document and runs
// the checkpoint.
func (m *Manager) recordDocumentDone(ctx context.Context, jobID string, index int, totalChunks *int) error {
	job, err := m.store.UpdateProgress(ctx, jobID, models.ProgressDelta{
		Documents:   1,
		TotalChunks: totalChunks,
	})
	if err != nil {
		return err
	}
	if err := m.store.SetCursor(ctx, jobID, index+1); err != nil {
		return err
	}
	m.publishJob(ctx, job)
	return m.checkpoint(ctx, jobID)
}

// drainPending embeds and uploads chunk rows that still lack vectors, batch by
// batch. Pending rows are exactly the remaining work, so a resumed run picks
// up where it stopped without recomputing finished chunks.
func (m *Manager) drainPending(ctx context.Context, jobID, collection string) error {
	for {
		if err := m.checkpoint(ctx, jobID); err != nil {
			return err
		}

		batch, err := m.vectors.PendingPoints(ctx, collection, m.cfg.EmbedBatchSize)
		if err != nil {
			return fmt.Errorf("list pending points: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		job, err := m.store.SetStage(ctx, jobID, models.StageVectorizing,
			fmt.Sprintf("Embedding %d chunks", len(batch)))
		if err != nil {
			return err
		}
		m.publishJob(ctx, job)
		m.publishLog(ctx, job)

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.Content
		}

		var vectors [][]float32
		start := time.Now()
		err = retryWithBackoff(ctx, m.cfg.Retry, func() error {
			var embedErr error
			vectors, embedErr = m.embedder.EmbedBatch(ctx, texts)
			return embedErr
		})
		if err != nil {
			m.metrics.RecordFailure(metrics.OpEmbedding)
			return fmt.Errorf("embed batch: %w", err)
		}
		m.metrics.RecordTiming(metrics.OpEmbedding, time.Since(start))

		job, err = m.store.SetStage(ctx, jobID, models.StageUploading,
			fmt.Sprintf("Uploading %d vectors", len(batch)))
		if err != nil {
			return err
		}
		m.publishJob(ctx, job)
		m.publishLog(ctx, job)

		start = time.Now()
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.cfg.Workers)
		for i, p := range batch {
			g.Go(func() error {
				return m.vectors.StoreEmbedding(gctx, p.DocumentID, p.ChunkIndex, vectors[i])
			})
		}
		if err := g.Wait(); err != nil {
			m.metrics.RecordFailure(metrics.OpUpload)
			return fmt.Errorf("store embeddings: %w", err)
		}
		m.metrics.RecordTiming(metrics.OpUpload, time.Since(start))

		job, err = m.store.UpdateProgress(ctx, jobID, models.ProgressDelta{Chunks: len(batch)})
		if err != nil {
			return err
		}
		m.publishJob(ctx, job)
	}
}

// verify recounts the collection and re-drains once if vectors are missing.
// A gap that survives the second pass fails the run.
func (m *Manager) verify(ctx context.Context, job *models.IndexingJob, collection string) error {
	jobID := job.ActionID()

	updated, err := m.store.SetStage(ctx, jobID, models.StageVerifying, "Verifying collection")
	if err != nil {
		return err
	}
	m.publishJob(ctx, updated)
	m.publishLog(ctx, updated)

	total, embedded, err := m.vectors.CollectionCounts(ctx, collection)
	if err != nil {
		return fmt.Errorf("count collection: %w", err)
	}
	if embedded < total {
		m.logger.Warn("verification found missing vectors, re-draining",
			"job", jobID, "total", total, "embedded", embedded)
		if err := m.drainPending(ctx, jobID, collection); err != nil {
			return err
		}
		total, embedded, err = m.vectors.CollectionCounts(ctx, collection)
		if err != nil {
			return fmt.Errorf("count collection: %w", err)
		}
	}
	if embedded < total {
		return fmt.Errorf("verification failed: %d of %d points missing vectors", total-embedded, total)
	}
	return m.checkpoint(ctx, jobID)
}

// checkpoint re-reads control flags and parks or stops the run as requested.
// Status writes precede event emission.
func (m *Manager) checkpoint(ctx context.Context, jobID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	pause, cancel, err := m.store.ControlFlags(ctx, jobID)
	if err != nil {
		return fmt.Errorf("read control flags: %w", err)
	}

	if cancel {
		job, err := m.store.SetStatus(ctx, jobID, models.StatusCanceled, nil)
		if err != nil {
			return err
		}
		m.publishJob(ctx, job)
		m.publishTerminalAction(ctx, job)
		return errCanceled
	}
	if pause {
		job, err := m.store.SetStatus(ctx, jobID, models.StatusPaused, nil)
		if err != nil {
			return err
		}
		m.publishJob(ctx, job)
		return errPaused
	}
	return nil
}

// chunksForDocument extracts a document's text and splits it into chunks.
// Markdown keeps its section structure; everything else goes through plain
// extraction first.
func chunksForDocument(doc models.Document, cfg parser.ChunkConfig) ([]parser.ChunkResult, error) {
	mime := strings.ToLower(doc.MimeType)
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}

	if mime == "text/markdown" {
		text, err := extract.Text(doc.MimeType, doc.Content)
		if err != nil {
			return nil, err
		}
		md, err := parser.ParseMarkdown(text)
		if err != nil {
			return nil, err
		}
		chunks := parser.ChunkMarkdown(md, cfg)
		if len(chunks) == 0 {
			return nil, extract.ErrEmptyContent
		}
		return chunks, nil
	}

	text, err := extract.Text(doc.MimeType, doc.Content)
	if err != nil {
		return nil, err
	}
	chunks := parser.Chunk(text, cfg)
	if len(chunks) == 0 {
		return nil, extract.ErrEmptyContent
	}
	return chunks, nil
}
