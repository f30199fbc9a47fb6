package worker

import (
	"context"
	"errors"
	"time"

	"github.com/quorumlabs/pollhub/internal/domain/job"
)

// ProcessOne claims and runs a single job. Returns false when the queue is
// empty.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)

	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}

		return false, err
	}

	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	start := time.Now()
	err = w.execute(ctx, j)

	if err != nil {
		if w.prom != nil {
			w.prom.JobDuration.WithLabelValues(j.Type, "retry").Observe(time.Since(start).Seconds())
		}
		w.handleFailure(ctx, j, err)
		return true, nil
	}

	if w.prom != nil {
		w.prom.JobDuration.WithLabelValues(j.Type, "done").Observe(time.Since(start).Seconds())
		w.prom.JobResults.WithLabelValues(j.Type, "done").Inc()
	}

	err = w.repo.MarkDone(ctx, j.ID)

	if err != nil {
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_done_failed: "+err.Error())
		return true, err
	}

	return true, nil
}
