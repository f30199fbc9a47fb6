package middlewares_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quorumlabs/pollhub/internal/auth"
	"github.com/quorumlabs/pollhub/internal/domain/user"
	"github.com/quorumlabs/pollhub/internal/http/middlewares"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeIdentityStore is a mutable in-memory identity source, so tests can flip
// acceptance flags or delete users between requests.
type fakeIdentityStore struct {
	mu    sync.Mutex
	users map[string]user.User
}

func newFakeIdentityStore(users ...user.User) *fakeIdentityStore {
	s := &fakeIdentityStore{users: make(map[string]user.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeIdentityStore) GetByID(ctx context.Context, id string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (s *fakeIdentityStore) put(u user.User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}

func (s *fakeIdentityStore) remove(id string) {
	s.mu.Lock()
	delete(s.users, id)
	s.mu.Unlock()
}

func testUser(role string, accepted bool) user.User {
	return user.User{
		ID:           uuid.NewString(),
		Name:         "Sam",
		Email:        "sam@example.com",
		Role:         role,
		RoleAccepted: accepted,
	}
}

// pipelineRouter mounts one admin-gated route behind the full ordered chain.
func pipelineRouter(mw *middlewares.AuthMiddleware) *gin.Engine {
	r := gin.New()

	ok := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	}

	r.GET("/accepted-only", mw.RequireAuth(), mw.RequireRoleAccepted(), ok)
	r.GET("/admin-only", mw.RequireAuth(), mw.RequireRoleAccepted(), mw.RequireRole("admin"), ok)

	return r
}

func get(r *gin.Engine, path string, decorate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)

	if decorate != nil {
		decorate(req)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestRequireAuth(t *testing.T) {
	jwtManager := auth.NewManager("test-secret", time.Hour)

	accepted := testUser(user.RoleUser, true)
	store := newFakeIdentityStore(accepted)

	mw := middlewares.NewAuthMiddleware(jwtManager, store)
	r := pipelineRouter(mw)

	validToken, err := jwtManager.GenerateAccessToken(accepted.ID, accepted.Email, accepted.Role)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("no_token", func(t *testing.T) {
		w := get(r, "/accepted-only", nil)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got status %d, want 401", w.Code)
		}
	})

	t.Run("garbage_token", func(t *testing.T) {
		w := get(r, "/accepted-only", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer not.a.jwt")
		})

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got status %d, want 401", w.Code)
		}
	})

	t.Run("bearer_header", func(t *testing.T) {
		w := get(r, "/accepted-only", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+validToken)
		})

		if w.Code != http.StatusOK {
			t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("cookie", func(t *testing.T) {
		w := get(r, "/accepted-only", func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: middlewares.TokenCookieName, Value: validToken})
		})

		if w.Code != http.StatusOK {
			t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("cookie_wins_over_header", func(t *testing.T) {
		// a stale cookie must not be shadowed by a fresh header token
		w := get(r, "/accepted-only", func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: middlewares.TokenCookieName, Value: "stale-garbage"})
			req.Header.Set("Authorization", "Bearer "+validToken)
		})

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got status %d, want 401 (cookie takes priority)", w.Code)
		}
	})

	t.Run("deleted_user_token_is_dead", func(t *testing.T) {
		ghost := testUser(user.RoleUser, true)
		store.put(ghost)

		token, err := jwtManager.GenerateAccessToken(ghost.ID, ghost.Email, ghost.Role)
		if err != nil {
			t.Fatal(err)
		}

		store.remove(ghost.ID)

		w := get(r, "/accepted-only", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+token)
		})

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got status %d, want 401", w.Code)
		}
	})

	t.Run("expired_token", func(t *testing.T) {
		shortLived := auth.NewManager("test-secret", -time.Minute)

		token, err := shortLived.GenerateAccessToken(accepted.ID, accepted.Email, accepted.Role)
		if err != nil {
			t.Fatal(err)
		}

		w := get(r, "/accepted-only", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+token)
		})

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got status %d, want 401", w.Code)
		}
	})
}

func TestRoleAcceptanceGate(t *testing.T) {
	jwtManager := auth.NewManager("test-secret", time.Hour)

	// an unaccepted ADMIN: the acceptance gate must fire before the role gate
	unacceptedAdmin := testUser(user.RoleAdmin, false)
	store := newFakeIdentityStore(unacceptedAdmin)

	mw := middlewares.NewAuthMiddleware(jwtManager, store)
	r := pipelineRouter(mw)

	token, err := jwtManager.GenerateAccessToken(unacceptedAdmin.ID, unacceptedAdmin.Email, unacceptedAdmin.Role)
	if err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"/accepted-only", "/admin-only"} {
		w := get(r, path, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+token)
		})

		if w.Code != http.StatusForbidden {
			t.Fatalf("%s: got status %d, want 403", path, w.Code)
		}

		var body struct {
			Code                   string `json:"code"`
			RequiresRoleAcceptance bool   `json:"requiresRoleAcceptance"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}

		if body.Code != "role_not_accepted" || !body.RequiresRoleAcceptance {
			t.Fatalf("%s: missing acceptance flag, body=%s", path, w.Body.String())
		}
	}
}

func TestRequireRole(t *testing.T) {
	jwtManager := auth.NewManager("test-secret", time.Hour)

	plain := testUser(user.RoleUser, true)
	store := newFakeIdentityStore(plain)

	mw := middlewares.NewAuthMiddleware(jwtManager, store)
	r := pipelineRouter(mw)

	token, err := jwtManager.GenerateAccessToken(plain.ID, plain.Email, plain.Role)
	if err != nil {
		t.Fatal(err)
	}

	w := get(r, "/admin-only", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	})

	if w.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want 403", w.Code)
	}
}

// TestInviteAcceptanceLifecycle walks the whole gate sequence: an invited user
// is blocked with the acceptance flag, accepts their role, and the very same
// request then succeeds.
func TestInviteAcceptanceLifecycle(t *testing.T) {
	jwtManager := auth.NewManager("test-secret", time.Hour)

	invited := testUser(user.RoleUser, false)
	store := newFakeIdentityStore(invited)

	mw := middlewares.NewAuthMiddleware(jwtManager, store)
	r := pipelineRouter(mw)

	token, err := jwtManager.GenerateAccessToken(invited.ID, invited.Email, invited.Role)
	if err != nil {
		t.Fatal(err)
	}

	withToken := func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := get(r, "/accepted-only", withToken)

	if w.Code != http.StatusForbidden {
		t.Fatalf("before acceptance: got status %d, want 403", w.Code)
	}

	// accept the role (what PUT /auth/setup-role/:id does underneath)
	invited.RoleAccepted = true
	store.put(invited)

	w = get(r, "/accepted-only", withToken)

	if w.Code != http.StatusOK {
		t.Fatalf("after acceptance: got status %d, body=%s", w.Code, w.Body.String())
	}
}
