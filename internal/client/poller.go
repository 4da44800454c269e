package client

import (
	"context"
	"time"

	"github.com/unicahq/unica-go/internal/models"
)

// defaultPollInterval is how often tracked jobs are refreshed.
const defaultPollInterval = 2 * time.Second

// Poller periodically refreshes tracked jobs and stops on its own once none
// of them is active anymore. Polling is authoritative: missed events never
// leave the caller with stale state.
type Poller struct {
	client   *Client
	interval time.Duration
	onUpdate func(*models.IndexingJob)
}

// NewPoller creates a poller. interval 0 uses the 2s default; onUpdate may be
// nil and is called with every fresh snapshot.
func NewPoller(c *Client, interval time.Duration, onUpdate func(*models.IndexingJob)) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{
		client:   c,
		interval: interval,
		onUpdate: onUpdate,
	}
}

// Watch polls the given jobs until every one of them has left
// processing/paused, then returns the final snapshots keyed by action id.
// Transient fetch errors keep the job tracked; the next tick retries.
func (p *Poller) Watch(ctx context.Context, jobIDs ...string) (map[string]*models.IndexingJob, error) {
	snapshots := make(map[string]*models.IndexingJob, len(jobIDs))

	for {
		anyActive := false
		for _, id := range jobIDs {
			job, err := p.client.GetJob(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return snapshots, ctx.Err()
				}
				// Keep polling through transient server errors
				anyActive = true
				continue
			}
			snapshots[id] = job
			if p.onUpdate != nil {
				p.onUpdate(job)
			}
			if job.Status.Active() {
				anyActive = true
			}
		}

		if !anyActive {
			return snapshots, nil
		}

		select {
		case <-ctx.Done():
			return snapshots, ctx.Err()
		case <-time.After(p.interval):
		}
	}
}
