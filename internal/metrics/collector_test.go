package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpEmbedding, 10*time.Millisecond)
	c.RecordTiming(OpEmbedding, 30*time.Millisecond)

	snap := c.Snapshot()
	if snap.Embedding == nil {
		t.Fatal("Expected embedding snapshot")
	}
	if snap.Embedding.Count != 2 {
		t.Errorf("Expected count 2, got %d", snap.Embedding.Count)
	}
	if snap.Embedding.MinTimeMs != 10 || snap.Embedding.MaxTimeMs != 30 {
		t.Errorf("Expected min/max 10/30, got %d/%d",
			snap.Embedding.MinTimeMs, snap.Embedding.MaxTimeMs)
	}
	if snap.Embedding.AvgTimeMs != 20 {
		t.Errorf("Expected avg 20, got %f", snap.Embedding.AvgTimeMs)
	}
}

func TestRecordFailure(t *testing.T) {
	c := NewCollector()

	c.RecordFailure(OpUpload)
	c.RecordFailure(OpUpload)

	snap := c.Snapshot()
	if snap.Upload == nil {
		t.Fatal("Expected upload snapshot for failure-only operation")
	}
	if snap.Upload.Failures != 2 {
		t.Errorf("Expected 2 failures, got %d", snap.Upload.Failures)
	}
	if snap.Upload.Count != 0 {
		t.Errorf("Failures should not count as completions, got %d", snap.Upload.Count)
	}
}

func TestSnapshotOmitsIdleOperations(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpChunking, time.Millisecond)

	snap := c.Snapshot()
	if snap.Chunking == nil {
		t.Error("Expected chunking snapshot")
	}
	if snap.DBQuery != nil || snap.LLMGenerate != nil {
		t.Error("Idle operations should snapshot as nil")
	}
	if snap.UptimeSeconds < 0 {
		t.Errorf("Uptime should be non-negative, got %f", snap.UptimeSeconds)
	}
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordTiming(OpDBQuery, time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if got := c.Snapshot().DBQuery.Count; got != 1000 {
		t.Errorf("Expected 1000 recordings, got %d", got)
	}
}
