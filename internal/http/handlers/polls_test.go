package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/quorumlabs/pollhub/internal/domain/poll"
	"github.com/quorumlabs/pollhub/internal/domain/user"
	"github.com/quorumlabs/pollhub/internal/domain/vote"
	"github.com/quorumlabs/pollhub/internal/http/handlers"
)

func adminUser() user.User {
	return user.User{
		ID:           newUUID(),
		Name:         "Avery",
		Email:        "avery@example.com",
		Role:         user.RoleAdmin,
		RoleAccepted: true,
	}
}

func newPollsRouter(u user.User, polls *fakePollsRepo, votes *fakeVotesRepo) *gin.Engine {
	h := handlers.NewPollsHandler(polls, votes, nil, nil)

	r := gin.New()
	r.POST("/polls", asUser(u), h.Create)
	r.GET("/polls/:id", asUser(u), h.GetByID)
	r.GET("/polls/:id/results", asUser(u), h.Results)
	r.PUT("/polls/:id", asUser(u), h.Update)
	r.DELETE("/polls/:id", asUser(u), h.Delete)
	r.PATCH("/polls/:id/toggle", asUser(u), h.ToggleActive)

	return r
}

func TestCreatePoll(t *testing.T) {
	admin := adminUser()

	tests := []struct {
		name       string
		body       string
		setup      func(*fakePollsRepo)
		wantStatus int
	}{
		{
			name: "success_string_options",
			body: `{"title": "Team lunch", "description": "Friday", "options": ["Pizza", "Sushi"]}`,
			setup: func(f *fakePollsRepo) {
				f.createFn = func(ctx context.Context, p poll.Poll) (poll.Poll, error) {
					if len(p.Options) != 2 {
						t.Fatalf("want 2 options, got %d", len(p.Options))
					}
					if p.CreatedBy != admin.ID {
						t.Fatalf("creator not stamped, got %q", p.CreatedBy)
					}
					if !p.IsActive {
						t.Fatal("new polls must start active")
					}
					return p, nil
				}
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "success_object_options",
			body: `{"title": "Team lunch", "options": [{"text": "Pizza"}, {"text": "Sushi"}]}`,
			setup: func(f *fakePollsRepo) {
				f.createFn = func(ctx context.Context, p poll.Poll) (poll.Poll, error) { return p, nil }
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "too_few_options",
			body:       `{"title": "Team lunch", "options": ["Pizza"]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			// blank texts are dropped before the minimum is enforced
			name:       "blank_options_do_not_count",
			body:       `{"title": "Team lunch", "options": ["Pizza", "", "  "]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "title_too_short",
			body:       `{"title": "ab", "options": ["Pizza", "Sushi"]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing_title",
			body:       `{"options": ["Pizza", "Sushi"]}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			polls := &fakePollsRepo{}

			if tt.setup != nil {
				tt.setup(polls)
			}

			r := newPollsRouter(admin, polls, &fakeVotesRepo{})

			w := postJSON(r, "/polls", tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestPollResults(t *testing.T) {
	admin := adminUser()
	p := activePoll()

	// two votes for option 0, one for option 1, option 2 untouched, plus one
	// vote for an option that was later edited out of the poll
	counts := map[string]int{
		p.Options[0].ID: 2,
		p.Options[1].ID: 1,
		newUUID():       1,
	}

	polls := &fakePollsRepo{
		getFn: func(ctx context.Context, id string) (poll.Poll, error) { return p, nil },
	}
	votes := &fakeVotesRepo{
		countFn: func(ctx context.Context, pollID string) (map[string]int, int, error) {
			return counts, 4, nil
		},
	}

	r := newPollsRouter(admin, polls, votes)

	req := httptest.NewRequest(http.MethodGet, "/polls/"+p.ID+"/results", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	var body struct {
		Results vote.Results `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	res := body.Results

	// every current option shows up, zero-vote ones included
	if len(res.Options) != len(p.Options) {
		t.Fatalf("want %d option rows, got %d", len(p.Options), len(res.Options))
	}

	byID := make(map[string]vote.OptionResult, len(res.Options))
	sum := 0

	for _, row := range res.Options {
		byID[row.OptionID] = row
		sum += row.Votes
	}

	if byID[p.Options[0].ID].Votes != 2 || byID[p.Options[1].ID].Votes != 1 || byID[p.Options[2].ID].Votes != 0 {
		t.Fatalf("unexpected per-option counts: %+v", res.Options)
	}

	// the edited-away option's vote is visible in the total but not the rows
	if res.TotalVotes != 4 {
		t.Fatalf("want total 4, got %d", res.TotalVotes)
	}

	if sum != 3 {
		t.Fatalf("want per-option sum 3, got %d", sum)
	}
}

func TestPollResultsNotFound(t *testing.T) {
	r := newPollsRouter(adminUser(), &fakePollsRepo{}, &fakeVotesRepo{})

	req := httptest.NewRequest(http.MethodGet, "/polls/"+newUUID()+"/results", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}
}

func TestDeletePollCascades(t *testing.T) {
	admin := adminUser()
	p := activePoll()

	deleted := false

	polls := &fakePollsRepo{
		deleteFn: func(ctx context.Context, id string) error {
			if id != p.ID {
				t.Fatalf("delete called with %q, want %q", id, p.ID)
			}
			deleted = true
			return nil
		},
	}

	r := newPollsRouter(admin, polls, &fakeVotesRepo{})

	req := httptest.NewRequest(http.MethodDelete, "/polls/"+p.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	if !deleted {
		t.Fatal("DeleteWithVotes was not called")
	}

	// the poll is gone, so results now 404
	req = httptest.NewRequest(http.MethodGet, "/polls/"+p.ID+"/results", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("results after delete: got status %d, want 404", w.Code)
	}
}

func TestTogglePoll(t *testing.T) {
	admin := adminUser()
	p := activePoll()

	polls := &fakePollsRepo{
		toggleFn: func(ctx context.Context, id string) (poll.Poll, error) {
			toggled := p
			toggled.IsActive = !p.IsActive
			return toggled, nil
		},
	}

	r := newPollsRouter(admin, polls, &fakeVotesRepo{})

	req := httptest.NewRequest(http.MethodPatch, "/polls/"+p.ID+"/toggle", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	var body struct {
		Poll poll.Poll `json:"poll"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if body.Poll.IsActive {
		t.Fatal("expected poll to be inactive after toggle")
	}
}

func TestGetPollIncludesCallerVote(t *testing.T) {
	voter := acceptedUser()
	p := activePoll()

	votes := &fakeVotesRepo{
		getFn: func(ctx context.Context, pollID, userID string) (vote.Vote, error) {
			return vote.Vote{ID: newUUID(), PollID: pollID, UserID: userID, OptionID: p.Options[1].ID}, nil
		},
	}
	polls := &fakePollsRepo{
		getFn: func(ctx context.Context, id string) (poll.Poll, error) { return p, nil },
	}

	r := newPollsRouter(voter, polls, votes)

	req := httptest.NewRequest(http.MethodGet, "/polls/"+p.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	var body struct {
		HasVoted bool `json:"hasVoted"`
		UserVote struct {
			OptionID string `json:"optionId"`
		} `json:"userVote"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !body.HasVoted || body.UserVote.OptionID != p.Options[1].ID {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}
