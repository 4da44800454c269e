// Package db provides SurrealDB query functions for indexing job state.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/unicahq/unica-go/internal/models"
)

// CreateJob creates a new indexing job in status=processing.
// Fails with ErrConflict when the base already has an active (processing or
// paused) run; the check and the insert run in one transaction.
func (c *Client) CreateJob(
	ctx context.Context,
	baseID string,
	workspaceID string,
	mode models.IndexMode,
) (*models.IndexingJob, error) {
	sql := `
		BEGIN TRANSACTION;
		LET $active = (SELECT count() AS c FROM indexing_job
			WHERE base_id = $base_id AND status IN ['processing', 'paused']
			GROUP ALL)[0].c ?? 0;
		IF $active > 0 {
			THROW "active run exists for base " + $base_id
		};
		CREATE indexing_job SET
			base_id = $base_id,
			workspace_id = $workspace_id,
			mode = $mode,
			stage = 'initializing',
			status = 'processing',
			progress = {
				processed_documents: 0,
				total_documents: 0,
				processed_chunks: 0,
				total_chunks: 0,
				progress_percent: 0.0
			},
			display_text = 'Preparing index run',
			pause_requested = false,
			cancel_requested = false,
			document_cursor = 0
		RETURN AFTER;
		COMMIT TRANSACTION;
	`

	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, sql, map[string]any{
		"base_id":      baseID,
		"workspace_id": workspaceID,
		"mode":         string(mode),
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", wrapQueryError(err))
	}

	job := lastRow(results)
	if job == nil {
		return nil, fmt.Errorf("create job: no result returned")
	}
	return job, nil
}

// GetJob retrieves a job by ID. Returns ErrNotFound if it does not exist.
func (c *Client) GetJob(ctx context.Context, id string) (*models.IndexingJob, error) {
	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, `
		SELECT * FROM type::record("indexing_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	job := lastRow(results)
	if job == nil {
		return nil, fmt.Errorf("get job %s: %w", id, ErrNotFound)
	}
	return job, nil
}

// GetActiveJobs returns all processing or paused jobs in a workspace,
// newest first.
func (c *Client) GetActiveJobs(ctx context.Context, workspaceID string) ([]models.IndexingJob, error) {
	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, `
		SELECT * FROM indexing_job
		WHERE workspace_id = $workspace_id AND status IN ['processing', 'paused']
		ORDER BY created_at DESC
	`, map[string]any{"workspace_id": workspaceID})
	if err != nil {
		return nil, fmt.Errorf("get active jobs: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.IndexingJob{}, nil
	}
	return (*results)[0].Result, nil
}

// GetJobHistory returns past and present runs for a knowledge base,
// newest first, limited to the given count.
func (c *Client) GetJobHistory(ctx context.Context, baseID string, limit int) ([]models.IndexingJob, error) {
	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, `
		SELECT * FROM indexing_job
		WHERE base_id = $base_id
		ORDER BY created_at DESC
		LIMIT $limit
	`, map[string]any{"base_id": baseID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("get job history: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.IndexingJob{}, nil
	}
	return (*results)[0].Result, nil
}

// UpdateProgress atomically applies a counter delta to a non-terminal job.
// The percent is recomputed from chunk counters and clamped with math::max so
// it never moves backwards even under out-of-order worker updates.
func (c *Client) UpdateProgress(ctx context.Context, id string, delta models.ProgressDelta) (*models.IndexingJob, error) {
	sql := `
		UPDATE type::record("indexing_job", $id) SET
			progress.processed_documents += $docs,
			progress.processed_chunks += $chunks,
			progress.total_documents = IF $total_docs != NONE THEN $total_docs ELSE progress.total_documents END,
			progress.total_chunks = IF $total_chunks != NONE THEN $total_chunks ELSE progress.total_chunks END,
			progress.progress_percent = math::max([
				progress.progress_percent,
				IF progress.total_chunks > 0
					THEN math::min([progress.processed_chunks * 100.0 / progress.total_chunks, 100.0])
					ELSE progress.progress_percent
				END
			]),
			updated_at = time::now()
		WHERE status IN ['processing', 'paused']
		RETURN AFTER
	`

	vars := map[string]any{
		"id":     id,
		"docs":   delta.Documents,
		"chunks": delta.Chunks,
	}
	if delta.TotalDocuments != nil {
		vars["total_docs"] = *delta.TotalDocuments
	} else {
		vars["total_docs"] = nil
	}
	if delta.TotalChunks != nil {
		vars["total_chunks"] = *delta.TotalChunks
	} else {
		vars["total_chunks"] = nil
	}

	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("update progress: %w", wrapQueryError(err))
	}

	job := lastRow(results)
	if job == nil {
		return nil, c.nonTerminalUpdateFailed(ctx, id, "update progress")
	}
	return job, nil
}

// SetStage moves a non-terminal job to a new pipeline stage.
func (c *Client) SetStage(ctx context.Context, id string, stage models.JobStage, displayText string) (*models.IndexingJob, error) {
	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, `
		UPDATE type::record("indexing_job", $id) SET
			stage = $stage,
			display_text = $display_text,
			updated_at = time::now()
		WHERE status IN ['processing', 'paused']
		RETURN AFTER
	`, map[string]any{
		"id":           id,
		"stage":        string(stage),
		"display_text": displayText,
	})
	if err != nil {
		return nil, fmt.Errorf("set stage: %w", wrapQueryError(err))
	}

	job := lastRow(results)
	if job == nil {
		return nil, c.nonTerminalUpdateFailed(ctx, id, "set stage")
	}
	return job, nil
}

// SetStatus transitions a job to a new lifecycle status. Terminal jobs are
// immutable; attempting to change one fails with ErrInvalidTransition.
// errMsg populates the error field and is required for status=error.
func (c *Client) SetStatus(ctx context.Context, id string, status models.JobStatus, errMsg *string) (*models.IndexingJob, error) {
	sql := `
		BEGIN TRANSACTION;
		LET $current = (SELECT VALUE status FROM type::record("indexing_job", $id))[0];
		IF $current == NONE {
			THROW "job not found: " + $id
		};
		IF $current IN ['done', 'error', 'canceled'] {
			THROW "job " + $id + " has terminal status " + $current
		};
		UPDATE type::record("indexing_job", $id) SET
			status = $status,
			stage = IF $status == 'done' THEN 'completed'
				ELSE IF $status == 'error' THEN 'error'
				ELSE stage END,
			error = $error,
			updated_at = time::now()
		RETURN AFTER;
		COMMIT TRANSACTION;
	`

	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, sql, map[string]any{
		"id":     id,
		"status": string(status),
		"error":  errMsg,
	})
	if err != nil {
		return nil, fmt.Errorf("set status: %w", wrapQueryError(err))
	}

	job := lastRow(results)
	if job == nil {
		return nil, fmt.Errorf("set status: no result returned")
	}
	return job, nil
}

// RequestPause flags a processing job for cooperative pause. The pipeline
// observes the flag at its next checkpoint and persists status=paused itself.
// Pausing an already-flagged job is a no-op.
func (c *Client) RequestPause(ctx context.Context, id string) (*models.IndexingJob, error) {
	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, `
		UPDATE type::record("indexing_job", $id) SET
			pause_requested = true,
			updated_at = time::now()
		WHERE status = 'processing'
		RETURN AFTER
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("request pause: %w", wrapQueryError(err))
	}

	job := lastRow(results)
	if job == nil {
		return nil, c.nonTerminalUpdateFailed(ctx, id, "request pause")
	}
	return job, nil
}

// ClearPauseAndResume clears the pause flag and moves a paused job back to
// processing. Resuming a job that is already processing is a no-op.
func (c *Client) ClearPauseAndResume(ctx context.Context, id string) (*models.IndexingJob, error) {
	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, `
		UPDATE type::record("indexing_job", $id) SET
			pause_requested = false,
			status = 'processing',
			updated_at = time::now()
		WHERE status IN ['processing', 'paused']
		RETURN AFTER
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("resume: %w", wrapQueryError(err))
	}

	job := lastRow(results)
	if job == nil {
		return nil, c.nonTerminalUpdateFailed(ctx, id, "resume")
	}
	return job, nil
}

// RequestCancel flags an active job for cancellation. A processing job is
// canceled cooperatively by the pipeline at its next checkpoint; a paused job
// has no running pipeline, so it is moved to canceled immediately.
// Returns the job and whether the cancel completed inline (paused path).
func (c *Client) RequestCancel(ctx context.Context, id string) (*models.IndexingJob, bool, error) {
	sql := `
		BEGIN TRANSACTION;
		LET $current = (SELECT VALUE status FROM type::record("indexing_job", $id))[0];
		IF $current == NONE {
			THROW "job not found: " + $id
		};
		IF $current IN ['done', 'error', 'canceled'] {
			THROW "job " + $id + " has terminal status " + $current
		};
		IF $current == 'paused' {
			UPDATE type::record("indexing_job", $id) SET
				cancel_requested = true,
				status = 'canceled',
				updated_at = time::now()
			RETURN AFTER
		} ELSE {
			UPDATE type::record("indexing_job", $id) SET
				cancel_requested = true,
				updated_at = time::now()
			RETURN AFTER
		};
		COMMIT TRANSACTION;
	`

	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, sql, map[string]any{"id": id})
	if err != nil {
		return nil, false, fmt.Errorf("request cancel: %w", wrapQueryError(err))
	}

	job := lastRow(results)
	if job == nil {
		return nil, false, fmt.Errorf("request cancel: no result returned")
	}
	return job, job.Status == models.StatusCanceled, nil
}

// ControlFlags re-reads the cooperative-control flags for a job. The pipeline
// calls this at stage checkpoints.
func (c *Client) ControlFlags(ctx context.Context, id string) (pause bool, cancel bool, err error) {
	type flags struct {
		PauseRequested  bool `json:"pause_requested"`
		CancelRequested bool `json:"cancel_requested"`
	}

	results, qErr := surrealdb.Query[[]flags](ctx, c.db, `
		SELECT pause_requested, cancel_requested FROM type::record("indexing_job", $id)
	`, map[string]any{"id": id})
	if qErr != nil {
		return false, false, fmt.Errorf("control flags: %w", qErr)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return false, false, fmt.Errorf("control flags for %s: %w", id, ErrNotFound)
	}
	f := (*results)[0].Result[0]
	return f.PauseRequested, f.CancelRequested, nil
}

// SetCursor persists the resume checkpoint (documents fully chunked so far).
func (c *Client) SetCursor(ctx context.Context, id string, cursor int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("indexing_job", $id) SET
			document_cursor = $cursor,
			updated_at = time::now()
		WHERE status IN ['processing', 'paused']
	`, map[string]any{"id": id, "cursor": cursor})
	if err != nil {
		return fmt.Errorf("set cursor: %w", wrapQueryError(err))
	}
	return nil
}

// ExpireStale fails every processing job whose last update is older than the
// given age. Returns the jobs that were expired so the caller can emit their
// terminal events.
func (c *Client) ExpireStale(ctx context.Context, staleAfter time.Duration, errMsg string) ([]models.IndexingJob, error) {
	results, err := surrealdb.Query[[]models.IndexingJob](ctx, c.db, `
		UPDATE indexing_job SET
			status = 'error',
			stage = 'error',
			error = $error,
			updated_at = time::now()
		WHERE status = 'processing'
			AND updated_at < time::now() - duration::from::secs($secs)
		RETURN AFTER
	`, map[string]any{
		"secs":  int64(staleAfter.Seconds()),
		"error": errMsg,
	})
	if err != nil {
		return nil, fmt.Errorf("expire stale: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.IndexingJob{}, nil
	}
	return (*results)[0].Result, nil
}

// nonTerminalUpdateFailed classifies a guarded update that matched no rows:
// either the job is gone (ErrNotFound) or it sits in a state the update's
// WHERE clause excludes (ErrInvalidTransition).
func (c *Client) nonTerminalUpdateFailed(ctx context.Context, id, op string) error {
	job, err := c.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("%s for %s: %w", op, id, ErrNotFound)
	}
	return fmt.Errorf("%s for %s in status %s: %w", op, id, job.Status, ErrInvalidTransition)
}

// lastRow extracts the single row of the final statement in a query result.
// Multi-statement transactions report one QueryResult per statement; the
// mutation of interest is always last.
func lastRow[T any](results *[]surrealdb.QueryResult[[]T]) *T {
	if results == nil || len(*results) == 0 {
		return nil
	}
	last := (*results)[len(*results)-1].Result
	if len(last) == 0 {
		return nil
	}
	return &last[0]
}
