package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/quorumlabs/pollhub/internal/domain/job"
	"github.com/quorumlabs/pollhub/internal/domain/user"
	"github.com/quorumlabs/pollhub/internal/http/handlers"
	"github.com/quorumlabs/pollhub/internal/jobs"
)

// stubTx embeds pgx.Tx for interface satisfaction; only the methods the
// handler touches are implemented.
type stubTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *stubTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *stubTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeInviteUsers struct {
	tx       *stubTx
	createFn func(ctx context.Context, u user.User) (user.User, error)
}

func (f *fakeInviteUsers) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return f.tx, nil
}

func (f *fakeInviteUsers) CreateTx(ctx context.Context, tx pgx.Tx, u user.User) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, u)
	}
	return u, nil
}

type fakeInviteJobs struct {
	created []job.CreateRequest
}

func (f *fakeInviteJobs) CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error) {
	f.created = append(f.created, req)
	return job.New(req), nil
}

func TestCreateUserInvite(t *testing.T) {
	tx := &stubTx{}

	var stored *user.User

	users := &fakeInviteUsers{
		tx: tx,
		createFn: func(ctx context.Context, u user.User) (user.User, error) {
			stored = &u
			return u, nil
		},
	}
	jobStore := &fakeInviteJobs{}

	h := handlers.NewAdminHandler(users, jobStore, testConfig())

	r := gin.New()
	r.POST("/admin/create-user", asUser(adminUser()), h.CreateUser)

	w := postJSON(r, "/admin/create-user", `{"name": "Robin", "email": "robin@example.com"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	if stored == nil {
		t.Fatal("user was not stored")
	}

	// invited accounts start without a credential and unaccepted
	if stored.PasswordHash != nil {
		t.Fatal("invited user must not have a credential")
	}
	if stored.RoleAccepted {
		t.Fatal("invited user must not be role-accepted")
	}
	if stored.Role != user.RoleUser {
		t.Fatalf("default role should be user, got %q", stored.Role)
	}

	// the invite email is queued in the same transaction
	if len(jobStore.created) != 1 {
		t.Fatalf("want 1 queued job, got %d", len(jobStore.created))
	}

	queued := jobStore.created[0]

	if queued.Type != jobs.TypeInviteEmail {
		t.Fatalf("unexpected job type %q", queued.Type)
	}
	if queued.IdempotencyKey == nil || *queued.IdempotencyKey != "invite:email:"+stored.ID {
		t.Fatalf("unexpected idempotency key %v", queued.IdempotencyKey)
	}

	payload, err := jobs.DecodeInviteEmail(queued.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	if payload.UserID != stored.ID || payload.Email != "robin@example.com" {
		t.Fatalf("payload mismatch: %+v", payload)
	}
	if !strings.HasSuffix(payload.SetupLink, "/role-setup/"+stored.ID) {
		t.Fatalf("setup link does not target the invite: %s", payload.SetupLink)
	}

	if !tx.committed {
		t.Fatal("transaction was not committed")
	}

	var body struct {
		Success bool `json:"success"`
		User    struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !body.Success || body.User.ID != stored.ID {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	tx := &stubTx{}

	users := &fakeInviteUsers{
		tx: tx,
		createFn: func(ctx context.Context, u user.User) (user.User, error) {
			return user.User{}, user.ErrEmailTaken
		},
	}

	h := handlers.NewAdminHandler(users, &fakeInviteJobs{}, testConfig())

	r := gin.New()
	r.POST("/admin/create-user", asUser(adminUser()), h.CreateUser)

	w := postJSON(r, "/admin/create-user", `{"name": "Robin", "email": "robin@example.com"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400, body=%s", w.Code, w.Body.String())
	}

	if tx.committed {
		t.Fatal("transaction must not commit on duplicate email")
	}
	if !tx.rolledBack {
		t.Fatal("transaction was not rolled back")
	}
}

func TestCreateUserValidation(t *testing.T) {
	h := handlers.NewAdminHandler(&fakeInviteUsers{tx: &stubTx{}}, &fakeInviteJobs{}, testConfig())

	r := gin.New()
	r.POST("/admin/create-user", asUser(adminUser()), h.CreateUser)

	for _, body := range []string{
		`{"email": "robin@example.com"}`,
		`{"name": "Robin"}`,
		`{"name": "Robin", "email": "nope"}`,
		`{"name": "Robin", "email": "robin@example.com", "role": "superuser"}`,
	} {
		w := postJSON(r, "/admin/create-user", body)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: got status %d, want 400", body, w.Code)
		}
	}
}
