package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quorumlabs/pollhub/internal/auth"
	"github.com/quorumlabs/pollhub/internal/config"
	"github.com/quorumlabs/pollhub/internal/domain/user"
	"github.com/quorumlabs/pollhub/internal/http/middlewares"
	"github.com/quorumlabs/pollhub/internal/security"
)

type UsersStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	ListByRole(ctx context.Context, role string) ([]user.User, error)
	UpdateRole(ctx context.Context, id, role string) (user.User, error)
	AcceptRole(ctx context.Context, id string, passwordHash *string) (user.User, error)
	Delete(ctx context.Context, id string) error
}

type AuthHandler struct {
	users UsersStore
	jwt   *auth.Manager
	cfg   config.Config
}

func NewAuthHandler(users UsersStore, jwtManager *auth.Manager, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		users: users,
		jwt:   jwtManager,
		cfg:   cfg,
	}
}

type RegisterRequest struct {
	Name      string `json:"name" binding:"required,min=2,max=100"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	Phone     string `json:"phone" binding:"omitempty,max=30"`
	AdminCode string `json:"adminCode"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=user admin"`
}

type SetupRoleRequest struct {
	Password string `json:"password" binding:"omitempty,min=8"`
}

// Register is the self-service path. Supplying the correct admin code promotes
// the account to admin; a wrong code silently yields a plain user, so the code
// cannot be probed through this endpoint.
func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	role := user.RoleUser

	if req.AdminCode != "" && h.cfg.AdminCode != "" && req.AdminCode == h.cfg.AdminCode {
		role = user.RoleAdmin
	}

	h.createAccount(ctx, req, role)
}

// RegisterAdmin requires the admin code and rejects loudly when it is wrong.
func (h *AuthHandler) RegisterAdmin(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if h.cfg.AdminCode == "" || req.AdminCode != h.cfg.AdminCode {
		RespondForbidden(ctx, "invalid_admin_code", "Invalid admin code.")
		return
	}

	h.createAccount(ctx, req, user.RoleAdmin)
}

func (h *AuthHandler) createAccount(ctx *gin.Context, req RegisterRequest, role string) {
	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: &hash,
		Phone:        req.Phone,
		Role:         role,
		RoleAccepted: true, // self-registered accounts skip the invite flow
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	created, err := h.users.Create(cctx, u)

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondError(ctx, http.StatusBadRequest, "email_taken", "Email is already in use.", nil)
			return
		}

		RespondInternal(ctx, "Could not create user")
		return
	}

	token, err := h.jwt.GenerateAccessToken(created.ID, created.Email, created.Role)

	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	h.setTokenCookie(ctx, token)

	ctx.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user":    created,
		"token":   token,
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)

	defer cancel()

	found, err := h.users.GetByEmail(cctx, req.Email)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	// invited accounts have no credential until they accept their role
	if found.PasswordHash == nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	err = security.CheckPassword(*found.PasswordHash, req.Password)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	token, err := h.jwt.GenerateAccessToken(found.ID, found.Email, found.Role)

	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	h.setTokenCookie(ctx, token)

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    found,
		"token":   token,
	})
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	h.clearTokenCookie(ctx)

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	u, ok := middlewares.CurrentUser(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthenticated", "Not authorized")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    u,
	})
}

func (h *AuthHandler) AllUsers(ctx *gin.Context) {
	h.listByRole(ctx, user.RoleUser)
}

func (h *AuthHandler) AllAdmins(ctx *gin.Context) {
	h.listByRole(ctx, user.RoleAdmin)
}

func (h *AuthHandler) listByRole(ctx *gin.Context, role string) {
	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	users, err := h.users.ListByRole(cctx, role)

	if err != nil {
		RespondInternal(ctx, "Could not list users")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(users),
		"users":   users,
	})
}

func (h *AuthHandler) GetUser(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(2 * time.Second)

	defer cancel()

	u, err := h.users.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not fetch user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    u,
	})
}

func (h *AuthHandler) UpdateRole(ctx *gin.Context) {
	id := ctx.Param("id")

	var req UpdateRoleRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)

	defer cancel()

	u, err := h.users.UpdateRole(cctx, id, req.Role)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not update role")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    u,
	})
}

// DeleteUser removes the account only. Vote history stays: tallies must not
// rewrite themselves when a voter leaves.
func (h *AuthHandler) DeleteUser(ctx *gin.Context) {
	id := ctx.Param("id")

	if caller, ok := middlewares.CurrentUser(ctx); ok && caller.ID == id {
		RespondBadRequest(ctx, "You cannot delete your own account", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)

	defer cancel()

	err := h.users.Delete(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not delete user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User deleted successfully",
	})
}

// RoleSetup is the unauthenticated invite lookup behind the emailed deep link;
// the account id doubles as the invite token.
func (h *AuthHandler) RoleSetup(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(2 * time.Second)

	defer cancel()

	u, err := h.users.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "Invite not found")
			return
		}

		RespondInternal(ctx, "Could not fetch invite")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"user": gin.H{
			"id":           u.ID,
			"name":         u.Name,
			"email":        u.Email,
			"role":         u.Role,
			"roleAccepted": u.RoleAccepted,
		},
	})
}

// SetupRole completes the invite: it flips roleAccepted and sets the
// credential exactly once. Re-running it never downgrades or overwrites.
func (h *AuthHandler) SetupRole(ctx *gin.Context) {
	id := ctx.Param("id")

	caller, ok := middlewares.CurrentUser(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthenticated", "Not authorized")
		return
	}

	if caller.ID != id && caller.Role != user.RoleAdmin {
		RespondForbidden(ctx, "forbidden", "You can only complete your own role setup.")
		return
	}

	var req SetupRoleRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	target, err := h.users.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not complete role setup")
		return
	}

	if target.PasswordHash == nil && req.Password == "" {
		RespondBadRequest(ctx, "A password is required to complete setup", nil)
		return
	}

	var hashPtr *string

	if req.Password != "" {
		hash, err := security.HashPassword(req.Password)

		if err != nil {
			RespondInternal(ctx, "Could not complete role setup")
			return
		}

		hashPtr = &hash
	}

	updated, err := h.users.AcceptRole(cctx, id, hashPtr)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not complete role setup")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Role accepted. You now have full access.",
		"user":    updated,
	})
}

// Cookie helpers. The access token rides an HttpOnly cookie so browser
// clients never touch it; API clients can use the Authorization header.

func (h *AuthHandler) setTokenCookie(ctx *gin.Context, token string) {
	secure := h.cfg.Env == "prod"

	maxAge := h.cfg.JWTAccessTTLMinutes * 60

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		middlewares.TokenCookieName,
		token,
		maxAge,
		"/",
		"",
		secure,
		true, // HttpOnly
	)
}

func (h *AuthHandler) clearTokenCookie(ctx *gin.Context) {
	secure := h.cfg.Env == "prod"

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		middlewares.TokenCookieName,
		"",
		-1,
		"/",
		"",
		secure,
		true,
	)
}
