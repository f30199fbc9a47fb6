package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quorumlabs/pollhub/internal/domain/job"
	"github.com/quorumlabs/pollhub/internal/jobs"
	"github.com/quorumlabs/pollhub/internal/notifications"
	"github.com/quorumlabs/pollhub/internal/observability"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
}

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	ShutdownGrace time.Duration
}

// Worker drains the jobs table and hands invite emails to the notifier.
// Retries ride the jobs table itself (reschedule with backoff), so a restart
// never loses work.
type Worker struct {
	cfg      Config
	repo     JobsRepository
	notifier notifications.Notifier
	prom     *observability.Prom
	log      *slog.Logger

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, notifier notifications.Notifier, prom *observability.Prom, log *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}

	return &Worker{
		cfg:      cfg,
		repo:     repo,
		notifier: notifier,
		prom:     prom,
		log:      log,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker received shutdown signal")
			return nil

		case <-ticker.C:
			// Drain everything runnable before sleeping again.
			for {
				processed, err := w.ProcessOne(ctx)

				if err != nil {
					w.log.Error("process job", "err", err)
					break
				}

				if !processed {
					break
				}
			}
		}
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	switch j.Type {
	case jobs.TypeInviteEmail:
		p, err := jobs.DecodeInviteEmail(j.Payload)

		if err != nil {
			return err
		}

		return w.notifier.SendInvite(ctx, notifications.SendInviteInput{
			Email:     p.Email,
			Name:      p.Name,
			UserID:    p.UserID,
			Role:      p.Role,
			SetupLink: p.SetupLink,
		})

	default:
		return jobs.ErrInvalidJobType
	}
}

func (w *Worker) handleFailure(ctx context.Context, j job.Job, cause error) {
	// Attempts counts completed tries; this one failed.
	if j.Attempts+1 >= j.MaxAttempts {
		w.log.Error("job failed permanently", "job_id", j.ID, "type", j.Type, "err", cause)

		if w.prom != nil {
			w.prom.JobResults.WithLabelValues(j.Type, "failed").Inc()
		}

		if err := w.repo.MarkFailed(ctx, j.ID, cause.Error()); err != nil {
			w.log.Error("mark failed", "job_id", j.ID, "err", err)
		}
		return
	}

	delay := ExponentialBackoff(j.Attempts)
	w.log.Warn("job retry scheduled", "job_id", j.ID, "type", j.Type, "attempt", j.Attempts+1, "delay", delay.String(), "err", cause)

	if w.prom != nil {
		w.prom.JobResults.WithLabelValues(j.Type, "retry").Inc()
	}

	if err := w.repo.Reschedule(ctx, j.ID, time.Now().UTC().Add(delay), cause.Error()); err != nil {
		w.log.Error("reschedule", "job_id", j.ID, "err", err)
	}
}
