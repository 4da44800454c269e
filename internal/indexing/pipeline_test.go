package indexing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/unicahq/unica-go/internal/events"
	"github.com/unicahq/unica-go/internal/llm"
	"github.com/unicahq/unica-go/internal/models"
	"github.com/unicahq/unica-go/internal/parser"
)

// ----------------------------------------------------------------------------
// In-memory fakes
// ----------------------------------------------------------------------------

var errFakeNotFound = errors.New("not found")
var errFakeTerminal = errors.New("job is terminal")

type fakeStore struct {
	mu     sync.Mutex
	jobs   map[string]*models.IndexingJob
	nextID int

	// onControlFlags runs under the lock each time flags are read, letting
	// tests flip flags at a precise point in the run.
	onControlFlags func(job *models.IndexingJob)
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[string]*models.IndexingJob{}}
}

func (s *fakeStore) CreateJob(_ context.Context, baseID, workspaceID string, mode models.IndexMode) (*models.IndexingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.BaseID == baseID && j.Status.Active() {
			return nil, fmt.Errorf("active run exists for base %s", baseID)
		}
	}
	s.nextID++
	id := fmt.Sprintf("job-%d", s.nextID)
	job := &models.IndexingJob{
		ID:          surrealmodels.RecordID{Table: "indexing_job", ID: id},
		BaseID:      baseID,
		WorkspaceID: workspaceID,
		Mode:        mode,
		Stage:       models.StageInitializing,
		Status:      models.StatusProcessing,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	s.jobs[id] = job
	return s.snapshot(job), nil
}

func (s *fakeStore) snapshot(j *models.IndexingJob) *models.IndexingJob {
	c := *j
	return &c
}

func (s *fakeStore) get(id string) (*models.IndexingJob, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, errFakeNotFound
	}
	return j, nil
}

func (s *fakeStore) GetJob(_ context.Context, id string) (*models.IndexingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return s.snapshot(j), nil
}

func (s *fakeStore) SetStage(_ context.Context, id string, stage models.JobStage, text string) (*models.IndexingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if j.Status.Terminal() {
		return nil, errFakeTerminal
	}
	j.Stage = stage
	j.DisplayText = text
	j.UpdatedAt = time.Now()
	return s.snapshot(j), nil
}

func (s *fakeStore) SetStatus(_ context.Context, id string, status models.JobStatus, errMsg *string) (*models.IndexingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if j.Status.Terminal() {
		return nil, errFakeTerminal
	}
	j.Status = status
	j.Error = errMsg
	switch status {
	case models.StatusDone:
		j.Stage = models.StageCompleted
	case models.StatusError:
		j.Stage = models.StageError
	}
	j.UpdatedAt = time.Now()
	return s.snapshot(j), nil
}

func (s *fakeStore) UpdateProgress(_ context.Context, id string, delta models.ProgressDelta) (*models.IndexingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if j.Status.Terminal() {
		return nil, errFakeTerminal
	}
	p := &j.Progress
	p.ProcessedDocuments += delta.Documents
	p.ProcessedChunks += delta.Chunks
	if delta.TotalDocuments != nil {
		p.TotalDocuments = *delta.TotalDocuments
	}
	if delta.TotalChunks != nil {
		p.TotalChunks = *delta.TotalChunks
	}
	if p.TotalChunks > 0 {
		pct := float64(p.ProcessedChunks) * 100 / float64(p.TotalChunks)
		if pct > 100 {
			pct = 100
		}
		if pct > p.ProgressPercent {
			p.ProgressPercent = pct
		}
	}
	j.UpdatedAt = time.Now()
	return s.snapshot(j), nil
}

func (s *fakeStore) RequestPause(_ context.Context, id string) (*models.IndexingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if j.Status != models.StatusProcessing {
		return nil, errFakeTerminal
	}
	j.PauseRequested = true
	return s.snapshot(j), nil
}

func (s *fakeStore) ClearPauseAndResume(_ context.Context, id string) (*models.IndexingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if j.Status.Terminal() {
		return nil, errFakeTerminal
	}
	j.PauseRequested = false
	j.Status = models.StatusProcessing
	return s.snapshot(j), nil
}

func (s *fakeStore) RequestCancel(_ context.Context, id string) (*models.IndexingJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.get(id)
	if err != nil {
		return nil, false, err
	}
	if j.Status.Terminal() {
		return nil, false, errFakeTerminal
	}
	j.CancelRequested = true
	if j.Status == models.StatusPaused {
		j.Status = models.StatusCanceled
		return s.snapshot(j), true, nil
	}
	return s.snapshot(j), false, nil
}

func (s *fakeStore) ControlFlags(_ context.Context, id string) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.get(id)
	if err != nil {
		return false, false, err
	}
	if s.onControlFlags != nil {
		s.onControlFlags(j)
	}
	return j.PauseRequested, j.CancelRequested, nil
}

func (s *fakeStore) SetCursor(_ context.Context, id string, cursor int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.get(id)
	if err != nil {
		return err
	}
	j.DocumentCursor = cursor
	return nil
}

func (s *fakeStore) ExpireStale(_ context.Context, staleAfter time.Duration, errMsg string) ([]models.IndexingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-staleAfter)
	var expired []models.IndexingJob
	for _, j := range s.jobs {
		if j.Status == models.StatusProcessing && j.UpdatedAt.Before(cutoff) {
			j.Status = models.StatusError
			j.Stage = models.StageError
			msg := errMsg
			j.Error = &msg
			j.UpdatedAt = time.Now()
			expired = append(expired, *s.snapshot(j))
		}
	}
	return expired, nil
}

type fakeDocs struct {
	base      models.KnowledgeBase
	documents []models.Document
}

func (d *fakeDocs) GetKnowledgeBase(context.Context, string) (*models.KnowledgeBase, error) {
	b := d.base
	return &b, nil
}

func (d *fakeDocs) ListDocuments(context.Context, string) ([]models.Document, error) {
	return append([]models.Document(nil), d.documents...), nil
}

type fakePoint struct {
	documentID   string
	documentHash string
	chunkIndex   int
	content      string
	embedded     bool
}

type fakeVectors struct {
	mu     sync.Mutex
	points map[string]*fakePoint
	resets int
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{points: map[string]*fakePoint{}}
}

func (v *fakeVectors) key(docID string, idx int) string {
	return fmt.Sprintf("%s:%d", docID, idx)
}

func (v *fakeVectors) ResetCollection(context.Context, string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.points = map[string]*fakePoint{}
	v.resets++
	return nil
}

func (v *fakeVectors) UpsertChunk(_ context.Context, _, documentID, documentHash string, chunkIndex int, content string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := v.key(documentID, chunkIndex)
	if existing, ok := v.points[key]; ok && existing.embedded && existing.documentHash == documentHash {
		existing.content = content
		return nil
	}
	v.points[key] = &fakePoint{
		documentID:   documentID,
		documentHash: documentHash,
		chunkIndex:   chunkIndex,
		content:      content,
	}
	return nil
}

func (v *fakeVectors) PendingPoints(_ context.Context, _ string, limit int) ([]models.Point, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []models.Point
	for _, p := range v.points {
		if p.embedded {
			continue
		}
		out = append(out, models.Point{
			DocumentID: p.documentID,
			ChunkIndex: p.chunkIndex,
			Content:    p.content,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (v *fakeVectors) StoreEmbedding(_ context.Context, documentID string, chunkIndex int, _ []float32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.points[v.key(documentID, chunkIndex)]
	if !ok {
		return fmt.Errorf("no point %s:%d", documentID, chunkIndex)
	}
	p.embedded = true
	return nil
}

func (v *fakeVectors) CollectionCounts(context.Context, string) (int, int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	total, embedded := 0, 0
	for _, p := range v.points {
		total++
		if p.embedded {
			embedded++
		}
	}
	return total, embedded, nil
}

func (v *fakeVectors) IndexedDocumentHashes(context.Context, string) (map[string]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pending := map[string]bool{}
	hashes := map[string]string{}
	for _, p := range v.points {
		if p.embedded {
			hashes[p.documentID] = p.documentHash
		} else {
			pending[p.documentID] = true
		}
	}
	for docID := range pending {
		delete(hashes, docID)
	}
	return hashes, nil
}

func (v *fakeVectors) embeddedCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, p := range v.points {
		if p.embedded {
			n++
		}
	}
	return n
}

type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	failFirst int   // fail this many calls before succeeding
	failWith  error // error used for injected failures
	onCall    func(call int)
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	call := e.calls
	e.mu.Unlock()

	if e.onCall != nil {
		e.onCall(call)
	}
	if call <= e.failFirst {
		return nil, e.failWith
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func testDocuments() []models.Document {
	return []models.Document{
		{
			ID:          surrealmodels.RecordID{Table: "document", ID: "doc-1"},
			Name:        "guide.md",
			MimeType:    "text/markdown",
			Content:     []byte("---\ntitle: Guide\n---\n\n# Guide\n\n" + strings.Repeat("Useful sentence here. ", 40)),
			ContentHash: "hash-1",
		},
		{
			ID:          surrealmodels.RecordID{Table: "document", ID: "doc-2"},
			Name:        "notes.txt",
			MimeType:    "text/plain",
			Content:     []byte(strings.Repeat("Plain note content. ", 40)),
			ContentHash: "hash-2",
		},
	}
}

type testRig struct {
	manager  *Manager
	store    *fakeStore
	vectors  *fakeVectors
	embedder *fakeEmbedder
	bus      *events.Bus
}

func newTestRig(t *testing.T, docs []models.Document) *testRig {
	t.Helper()
	store := newFakeStore()
	vectors := newFakeVectors()
	embedder := &fakeEmbedder{}
	bus := events.NewBus(nil, nil)
	t.Cleanup(func() { bus.Close() })

	source := &fakeDocs{
		base: models.KnowledgeBase{
			ID:          surrealmodels.RecordID{Table: "knowledge_base", ID: "base-1"},
			WorkspaceID: "ws-1",
			Name:        "Base",
			Collection:  "kb_base",
		},
		documents: docs,
	}

	cfg := DefaultConfig()
	cfg.Chunk = parser.ChunkConfig{Size: 300, Overlap: 0}
	cfg.EmbedBatchSize = 4
	cfg.Retry = RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
		JitterFraction:    0,
	}

	return &testRig{
		manager:  NewManager(store, source, vectors, embedder, bus, nil, nil, cfg),
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		bus:      bus,
	}
}

// drainEvents collects everything published on a channel without blocking.
func drainEvents(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func terminalActions(evts []events.Event) []models.ChatEvent {
	var out []models.ChatEvent
	for _, ev := range evts {
		if ev.Kind != events.KindChatEvent {
			continue
		}
		if ce, ok := ev.Payload.(models.ChatEvent); ok && ce.Type == models.ChatEventBotAction {
			out = append(out, ce)
		}
	}
	return out
}

// ----------------------------------------------------------------------------
// Tests
// ----------------------------------------------------------------------------

func TestRunCompletesAllStages(t *testing.T) {
	rig := newTestRig(t, testDocuments())
	ctx := context.Background()

	wsCh, unsub := rig.bus.Subscribe(events.WorkspaceChannel("ws-1"))
	defer unsub()

	job, err := rig.store.CreateJob(ctx, "base-1", "ws-1", models.IndexModeFull)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	rig.manager.run(ctx, job.ActionID())

	final, err := rig.store.GetJob(ctx, job.ActionID())
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if final.Status != models.StatusDone {
		t.Fatalf("Expected status done, got %q (error: %v)", final.Status, final.Error)
	}
	if final.Stage != models.StageCompleted {
		t.Errorf("Expected stage completed, got %q", final.Stage)
	}
	if final.Progress.ProcessedDocuments != 2 || final.Progress.TotalDocuments != 2 {
		t.Errorf("Expected 2/2 documents, got %d/%d",
			final.Progress.ProcessedDocuments, final.Progress.TotalDocuments)
	}
	if final.Progress.ProcessedChunks != final.Progress.TotalChunks || final.Progress.TotalChunks == 0 {
		t.Errorf("Expected all chunks processed, got %d/%d",
			final.Progress.ProcessedChunks, final.Progress.TotalChunks)
	}
	if final.Progress.ProgressPercent != 100 {
		t.Errorf("Expected 100%%, got %f", final.Progress.ProgressPercent)
	}

	total, embedded, _ := rig.vectors.CollectionCounts(ctx, "kb_base")
	if total == 0 || embedded != total {
		t.Errorf("Expected fully embedded collection, got %d/%d", embedded, total)
	}

	evts := drainEvents(wsCh)
	actions := terminalActions(evts)
	if len(actions) != 1 {
		t.Fatalf("Expected exactly one terminal action, got %d", len(actions))
	}
	if actions[0].Action.Status != models.BotActionDone {
		t.Errorf("Expected done action, got %q", actions[0].Action.Status)
	}

	// Progress in published snapshots never moves backwards
	lastPct := -1.0
	for _, ev := range evts {
		if ev.Kind != events.KindJobUpdate {
			continue
		}
		snap, ok := ev.Payload.(*models.IndexingJob)
		if !ok {
			continue
		}
		if snap.Progress.ProgressPercent < lastPct {
			t.Errorf("Progress regressed in event stream: %f -> %f",
				lastPct, snap.Progress.ProgressPercent)
		}
		lastPct = snap.Progress.ProgressPercent
	}
}

func TestPauseParksRunAndResumeFinishes(t *testing.T) {
	rig := newTestRig(t, testDocuments())
	ctx := context.Background()

	job, err := rig.store.CreateJob(ctx, "base-1", "ws-1", models.IndexModeFull)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	id := job.ActionID()

	// Flag pause once the first document has been chunked
	rig.store.onControlFlags = func(j *models.IndexingJob) {
		if j.DocumentCursor >= 1 && j.Status == models.StatusProcessing {
			j.PauseRequested = true
		}
	}

	rig.manager.run(ctx, id)

	paused, _ := rig.store.GetJob(ctx, id)
	if paused.Status != models.StatusPaused {
		t.Fatalf("Expected paused, got %q", paused.Status)
	}
	if paused.DocumentCursor == 0 {
		t.Error("Cursor should have advanced before pausing")
	}
	chunksBeforeResume := len(rig.vectors.points)

	// Resume from the checkpoint
	rig.store.onControlFlags = nil
	if _, err := rig.store.ClearPauseAndResume(ctx, id); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	rig.manager.run(ctx, id)

	final, _ := rig.store.GetJob(ctx, id)
	if final.Status != models.StatusDone {
		t.Fatalf("Expected done after resume, got %q (error: %v)", final.Status, final.Error)
	}
	if final.Progress.ProcessedDocuments != 2 {
		t.Errorf("Expected 2 processed documents, got %d", final.Progress.ProcessedDocuments)
	}
	if len(rig.vectors.points) < chunksBeforeResume {
		t.Error("Resume must not lose persisted chunks")
	}
	if rig.vectors.embeddedCount() != len(rig.vectors.points) {
		t.Error("All chunks should be embedded after resumed run")
	}
}

func TestCancelStopsRunWithSingleTerminalEvent(t *testing.T) {
	rig := newTestRig(t, testDocuments())
	ctx := context.Background()

	wsCh, unsub := rig.bus.Subscribe(events.WorkspaceChannel("ws-1"))
	defer unsub()

	job, _ := rig.store.CreateJob(ctx, "base-1", "ws-1", models.IndexModeFull)
	id := job.ActionID()

	rig.store.onControlFlags = func(j *models.IndexingJob) {
		if j.DocumentCursor >= 1 {
			j.CancelRequested = true
		}
	}
	rig.manager.run(ctx, id)

	final, _ := rig.store.GetJob(ctx, id)
	if final.Status != models.StatusCanceled {
		t.Fatalf("Expected canceled, got %q", final.Status)
	}

	actions := terminalActions(drainEvents(wsCh))
	if len(actions) != 1 {
		t.Fatalf("Expected exactly one terminal action, got %d", len(actions))
	}

	// A canceled run cannot be mutated afterwards
	if _, err := rig.store.SetStatus(ctx, id, models.StatusDone, nil); err == nil {
		t.Error("Terminal job should reject further status changes")
	}
}

func TestTransientEmbedErrorRetries(t *testing.T) {
	rig := newTestRig(t, testDocuments())
	ctx := context.Background()

	rig.embedder.failFirst = 2
	rig.embedder.failWith = &llm.ProviderError{
		Kind: llm.KindRateLimited,
		Err:  errors.New("429 too many requests"),
	}

	job, _ := rig.store.CreateJob(ctx, "base-1", "ws-1", models.IndexModeFull)
	rig.manager.run(ctx, job.ActionID())

	final, _ := rig.store.GetJob(ctx, job.ActionID())
	if final.Status != models.StatusDone {
		t.Fatalf("Expected done after transient retries, got %q (error: %v)", final.Status, final.Error)
	}
	if rig.embedder.callCount() <= 2 {
		t.Errorf("Expected retries beyond the failures, got %d calls", rig.embedder.callCount())
	}
}

func TestFatalEmbedErrorFailsJob(t *testing.T) {
	rig := newTestRig(t, testDocuments())
	ctx := context.Background()

	wsCh, unsub := rig.bus.Subscribe(events.WorkspaceChannel("ws-1"))
	defer unsub()

	rig.embedder.failFirst = 1000
	rig.embedder.failWith = &llm.ProviderError{
		Kind: llm.KindAuth,
		Err:  errors.New("401 unauthorized"),
	}

	job, _ := rig.store.CreateJob(ctx, "base-1", "ws-1", models.IndexModeFull)
	rig.manager.run(ctx, job.ActionID())

	final, _ := rig.store.GetJob(ctx, job.ActionID())
	if final.Status != models.StatusError {
		t.Fatalf("Expected error status, got %q", final.Status)
	}
	if final.Stage != models.StageError {
		t.Errorf("Expected error stage, got %q", final.Stage)
	}
	if final.Error == nil || !strings.Contains(*final.Error, "401") {
		t.Errorf("Expected provider error message, got %v", final.Error)
	}
	// Fatal errors fail fast, no retry loop
	if rig.embedder.callCount() != 1 {
		t.Errorf("Fatal error should not be retried, got %d calls", rig.embedder.callCount())
	}

	actions := terminalActions(drainEvents(wsCh))
	if len(actions) != 1 || actions[0].Action.Status != models.BotActionError {
		t.Fatalf("Expected one error action, got %+v", actions)
	}
}

func TestChangedModeSkipsUnmodifiedDocuments(t *testing.T) {
	docs := testDocuments()
	rig := newTestRig(t, docs)
	ctx := context.Background()

	// First run indexes everything
	job, _ := rig.store.CreateJob(ctx, "base-1", "ws-1", models.IndexModeFull)
	rig.manager.run(ctx, job.ActionID())
	firstCalls := rig.embedder.callCount()
	if firstCalls == 0 {
		t.Fatal("First run should embed")
	}

	// Second run in changed mode with identical content embeds nothing
	job2, err := rig.store.CreateJob(ctx, "base-1", "ws-1", models.IndexModeChanged)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	rig.manager.run(ctx, job2.ActionID())

	final, _ := rig.store.GetJob(ctx, job2.ActionID())
	if final.Status != models.StatusDone {
		t.Fatalf("Expected done, got %q (error: %v)", final.Status, final.Error)
	}
	if rig.embedder.callCount() != firstCalls {
		t.Errorf("Changed mode re-embedded unmodified documents: %d -> %d calls",
			firstCalls, rig.embedder.callCount())
	}
	if final.Progress.ProcessedDocuments != 2 {
		t.Errorf("Skipped documents still count as processed, got %d",
			final.Progress.ProcessedDocuments)
	}
}

func TestUnreadableDocumentIsSkipped(t *testing.T) {
	docs := testDocuments()
	docs = append(docs, models.Document{
		ID:          surrealmodels.RecordID{Table: "document", ID: "doc-3"},
		Name:        "image.png",
		MimeType:    "image/png",
		Content:     []byte{0x89, 0x50, 0x4e, 0x47},
		ContentHash: "hash-3",
	})
	rig := newTestRig(t, docs)
	ctx := context.Background()

	job, _ := rig.store.CreateJob(ctx, "base-1", "ws-1", models.IndexModeFull)
	rig.manager.run(ctx, job.ActionID())

	final, _ := rig.store.GetJob(ctx, job.ActionID())
	if final.Status != models.StatusDone {
		t.Fatalf("Unreadable document should not fail the run, got %q (error: %v)",
			final.Status, final.Error)
	}
	if final.Progress.ProcessedDocuments != 3 {
		t.Errorf("Expected all 3 documents counted, got %d", final.Progress.ProcessedDocuments)
	}
}

func TestManagerStartConflict(t *testing.T) {
	rig := newTestRig(t, testDocuments())
	ctx := context.Background()

	// Hold the first run open by pausing it immediately
	job, err := rig.store.CreateJob(ctx, "base-1", "ws-1", models.IndexModeFull)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if _, err := rig.store.CreateJob(ctx, "base-1", "ws-1", models.IndexModeFull); err == nil {
		t.Error("Second concurrent run for the same base should fail")
	}
	_, _ = rig.store.SetStatus(ctx, job.ActionID(), models.StatusCanceled, nil)
}

func TestWatchdogExpiresStaleRuns(t *testing.T) {
	rig := newTestRig(t, testDocuments())
	ctx := context.Background()

	wsCh, unsub := rig.bus.Subscribe(events.WorkspaceChannel("ws-1"))
	defer unsub()

	job, _ := rig.store.CreateJob(ctx, "base-1", "ws-1", models.IndexModeFull)
	rig.store.mu.Lock()
	rig.store.jobs[job.ActionID()].UpdatedAt = time.Now().Add(-3 * time.Hour)
	rig.store.mu.Unlock()

	w := NewWatchdog(rig.manager, 2*time.Hour, time.Minute, nil)
	if err := w.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	final, _ := rig.store.GetJob(ctx, job.ActionID())
	if final.Status != models.StatusError {
		t.Fatalf("Expected stale run expired to error, got %q", final.Status)
	}
	if final.Error == nil || !strings.Contains(*final.Error, "abandoned") {
		t.Errorf("Expected abandonment message, got %v", final.Error)
	}

	actions := terminalActions(drainEvents(wsCh))
	if len(actions) != 1 {
		t.Fatalf("Expected exactly one terminal action from watchdog, got %d", len(actions))
	}

	// A second sweep finds nothing new
	if err := w.Sweep(ctx); err != nil {
		t.Fatalf("Second sweep failed: %v", err)
	}
	if extra := terminalActions(drainEvents(wsCh)); len(extra) != 0 {
		t.Errorf("Second sweep emitted %d extra terminal actions", len(extra))
	}
}
