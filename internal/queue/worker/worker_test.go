package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/quorumlabs/pollhub/internal/domain/job"
	"github.com/quorumlabs/pollhub/internal/jobs"
	"github.com/quorumlabs/pollhub/internal/notifications"
)

type fakeJobsRepo struct {
	queue       []job.Job
	done        []string
	failed      map[string]string
	rescheduled map[string]time.Time
}

func newFakeJobsRepo(js ...job.Job) *fakeJobsRepo {
	return &fakeJobsRepo{
		queue:       js,
		failed:      make(map[string]string),
		rescheduled: make(map[string]time.Time),
	}
}

func (f *fakeJobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	if len(f.queue) == 0 {
		return job.Job{}, job.ErrJobNotFound
	}

	j := f.queue[0]
	f.queue = f.queue[1:]
	return j, nil
}

func (f *fakeJobsRepo) MarkDone(ctx context.Context, id string) error {
	f.done = append(f.done, id)
	return nil
}

func (f *fakeJobsRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	f.failed[id] = errMsg
	return nil
}

func (f *fakeJobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	f.rescheduled[id] = runAt
	return nil
}

type recordingNotifier struct {
	sent []notifications.SendInviteInput
	err  error
}

func (n *recordingNotifier) SendInvite(ctx context.Context, input notifications.SendInviteInput) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, input)
	return nil
}

func inviteJob(t *testing.T, attempts, maxAttempts int) job.Job {
	t.Helper()

	raw, err := jobs.InviteEmailPayload{
		UserID:    "user-1",
		Email:     "robin@example.com",
		Name:      "Robin",
		Role:      "user",
		SetupLink: "http://localhost:5173/role-setup/user-1",
	}.JSON()
	if err != nil {
		t.Fatal(err)
	}

	j := job.New(job.CreateRequest{Type: jobs.TypeInviteEmail, Payload: raw, MaxAttempts: maxAttempts})
	j.Attempts = attempts
	return j
}

func testWorker(repo JobsRepository, notifier notifications.Notifier) *Worker {
	return New(Config{WorkerID: "test-worker"}, repo, notifier, nil, slog.Default())
}

func TestProcessOneDelivers(t *testing.T) {
	j := inviteJob(t, 0, 5)
	repo := newFakeJobsRepo(j)
	notifier := &recordingNotifier{}

	w := testWorker(repo, notifier)

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !processed {
		t.Fatal("expected a job to be processed")
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("want 1 delivery, got %d", len(notifier.sent))
	}
	if notifier.sent[0].Email != "robin@example.com" {
		t.Fatalf("delivered to wrong address: %+v", notifier.sent[0])
	}

	if len(repo.done) != 1 || repo.done[0] != j.ID {
		t.Fatalf("job not marked done: %+v", repo.done)
	}
}

func TestProcessOneEmptyQueue(t *testing.T) {
	w := testWorker(newFakeJobsRepo(), &recordingNotifier{})

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Fatal("nothing to process, but ProcessOne reported work")
	}
}

func TestProcessOneReschedulesOnFailure(t *testing.T) {
	j := inviteJob(t, 0, 5)
	repo := newFakeJobsRepo(j)

	w := testWorker(repo, &recordingNotifier{err: errors.New("smtp down")})

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !processed {
		t.Fatal("expected the job to be claimed")
	}

	runAt, ok := repo.rescheduled[j.ID]
	if !ok {
		t.Fatal("job was not rescheduled")
	}
	if !runAt.After(time.Now().UTC()) {
		t.Fatalf("retry must be in the future, got %v", runAt)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("job must not be failed yet: %+v", repo.failed)
	}
}

func TestProcessOneFailsPermanentlyAtMaxAttempts(t *testing.T) {
	j := inviteJob(t, 4, 5) // this try is the last one
	repo := newFakeJobsRepo(j)

	w := testWorker(repo, &recordingNotifier{err: errors.New("smtp down")})

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := repo.failed[j.ID]; !ok {
		t.Fatal("job should be failed permanently")
	}
	if _, ok := repo.rescheduled[j.ID]; ok {
		t.Fatal("exhausted job must not be rescheduled")
	}
}

func TestProcessOneRejectsUnknownType(t *testing.T) {
	j := job.New(job.CreateRequest{Type: "bogus.type", MaxAttempts: 1})
	repo := newFakeJobsRepo(j)

	w := testWorker(repo, &recordingNotifier{})

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := repo.failed[j.ID]; !ok {
		t.Fatal("unknown job type should fail permanently")
	}
}

func TestExponentialBackoffGrowsAndCaps(t *testing.T) {
	prev := time.Duration(0)

	for attempt := 0; attempt < 5; attempt++ {
		d := ExponentialBackoff(attempt)

		if d < prev {
			t.Fatalf("backoff shrank at attempt %d: %v < %v", attempt, d, prev)
		}
		prev = d
	}

	if d := ExponentialBackoff(30); d > 5*time.Minute+time.Second {
		t.Fatalf("backoff exceeds cap: %v", d)
	}
}
