package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quorumlabs/pollhub/internal/config"
	"github.com/quorumlabs/pollhub/internal/domain/job"
	"github.com/quorumlabs/pollhub/internal/domain/user"
	"github.com/quorumlabs/pollhub/internal/jobs"
)

type InviteUserStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, u user.User) (user.User, error)
}

type InviteJobStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error)
}

// AdminHandler owns the invite flow: an admin creates a credential-less
// account and the invitation email is enqueued in the same transaction, so an
// invited user always has a pending (or delivered) email and never the
// reverse.
type AdminHandler struct {
	users InviteUserStore
	jobs  InviteJobStore
	cfg   config.Config
}

func NewAdminHandler(users InviteUserStore, jobStore InviteJobStore, cfg config.Config) *AdminHandler {
	return &AdminHandler{
		users: users,
		jobs:  jobStore,
		cfg:   cfg,
	}
}

type CreateUserRequest struct {
	Name  string `json:"name" binding:"required,min=2,max=100"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone" binding:"omitempty,max=30"`
	Role  string `json:"role" binding:"omitempty,oneof=user admin"`
}

func (h *AdminHandler) CreateUser(ctx *gin.Context) {
	var req CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	role := req.Role

	if role == "" {
		role = user.RoleUser
	}

	now := time.Now().UTC()

	invited := user.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: nil, // set once, at role acceptance
		Phone:        req.Phone,
		Role:         role,
		RoleAccepted: false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)

	defer cancel()

	tx, err := h.users.BeginTx(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	defer func() { _ = tx.Rollback(cctx) }()

	created, err := h.users.CreateTx(cctx, tx, invited)

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondError(ctx, http.StatusBadRequest, "email_taken", "Email is already in use.", nil)
			return
		}

		RespondInternal(ctx, "Could not create user")
		return
	}

	payload := jobs.InviteEmailPayload{
		UserID:      created.ID,
		Email:       created.Email,
		Name:        created.Name,
		Role:        created.Role,
		SetupLink:   h.setupLink(created.ID),
		RequestedAt: now,
	}

	raw, err := payload.JSON()

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	idemKey := "invite:email:" + created.ID

	_, err = h.jobs.CreateTx(cctx, tx, job.CreateRequest{
		Type:           jobs.TypeInviteEmail,
		Payload:        raw,
		IdempotencyKey: &idemKey,
	})

	if err != nil {
		// enqueue shares the tx with the user insert, so a failure here rolls
		// both back; delivery itself is the worker's problem and best-effort
		slog.Default().ErrorContext(ctx.Request.Context(), "invite_email_enqueue_failed",
			"user_id", created.ID,
			"error", err.Error(),
		)
		RespondInternal(ctx, "Could not create user")
		return
	}

	err = tx.Commit(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "User created. An invitation email is on its way.",
		"user":    created,
	})
}

func (h *AdminHandler) setupLink(userID string) string {
	base := strings.TrimSuffix(h.cfg.FrontendURL, "/")

	return base + "/role-setup/" + userID
}
