package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quorumlabs/pollhub/internal/cache"
	"github.com/quorumlabs/pollhub/internal/config"
	"github.com/quorumlabs/pollhub/internal/domain/poll"
	"github.com/quorumlabs/pollhub/internal/domain/vote"
	"github.com/quorumlabs/pollhub/internal/http/middlewares"
)

type PollsStore interface {
	Create(ctx context.Context, p poll.Poll) (poll.Poll, error)
	GetByID(ctx context.Context, id string) (poll.Poll, error)
	List(ctx context.Context, activeOnly bool) ([]poll.Poll, error)
	Update(ctx context.Context, id string, req poll.UpdatePollRequest) (poll.Poll, error)
	ToggleActive(ctx context.Context, id string) (poll.Poll, error)
	DeleteWithVotes(ctx context.Context, id string) error
}

type PollVotesReader interface {
	GetByPollAndUser(ctx context.Context, pollID, userID string) (vote.Vote, error)
	CountByOption(ctx context.Context, pollID string) (map[string]int, int, error)
	ListByPoll(ctx context.Context, pollID string) ([]vote.Vote, error)
}

const activePollsCacheKey = "polls:active"

type PollsHandler struct {
	polls   PollsStore
	votes   PollVotesReader
	listing *cache.Cache
	results *cache.ResultsCache
}

func NewPollsHandler(polls PollsStore, votes PollVotesReader, listing *cache.Cache, results *cache.ResultsCache) *PollsHandler {
	return &PollsHandler{
		polls:   polls,
		votes:   votes,
		listing: listing,
		results: results,
	}
}

func (h *PollsHandler) Create(ctx *gin.Context) {
	var req poll.CreatePollRequest

	if !BindJSON(ctx, &req) {
		return
	}

	caller, ok := middlewares.CurrentUser(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthenticated", "Not authorized")
		return
	}

	req.CreatedBy = caller.ID

	p, err := poll.NewFromCreateRequest(req)

	if err != nil {
		RespondBadRequest(ctx, "A poll needs at least 2 non-empty options", nil)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	created, err := h.polls.Create(cctx, p)

	if err != nil {
		RespondInternal(ctx, "Could not create poll")
		return
	}

	h.invalidateListing()

	ctx.JSON(http.StatusCreated, gin.H{
		"success": true,
		"poll":    created,
	})
}

// ListActive serves voters; the listing is hot and read-mostly, so it sits in
// the in-process cache between poll mutations.
func (h *PollsHandler) ListActive(ctx *gin.Context) {
	if h.listing != nil {
		if v, ok := h.listing.Get(activePollsCacheKey); ok {
			if polls, ok := v.([]poll.Poll); ok {
				ctx.JSON(http.StatusOK, gin.H{
					"success": true,
					"count":   len(polls),
					"polls":   polls,
				})
				return
			}
		}
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	polls, err := h.polls.List(cctx, true)

	if err != nil {
		RespondInternal(ctx, "Could not list polls")
		return
	}

	if h.listing != nil {
		h.listing.Set(activePollsCacheKey, polls)
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(polls),
		"polls":   polls,
	})
}

func (h *PollsHandler) ListAll(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	polls, err := h.polls.List(cctx, false)

	if err != nil {
		RespondInternal(ctx, "Could not list polls")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(polls),
		"polls":   polls,
	})
}

// GetByID also tells the caller whether they already voted, so clients can
// render the ballot or the receipt without a second round trip.
func (h *PollsHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	p, err := h.polls.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, poll.ErrNotFound) {
			RespondNotFound(ctx, "Poll not found")
			return
		}

		RespondInternal(ctx, "Could not fetch poll")
		return
	}

	body := gin.H{
		"success":  true,
		"poll":     p,
		"hasVoted": false,
	}

	if caller, ok := middlewares.CurrentUser(ctx); ok {
		v, err := h.votes.GetByPollAndUser(cctx, p.ID, caller.ID)

		if err == nil {
			body["hasVoted"] = true
			body["userVote"] = gin.H{
				"optionId": v.OptionID,
				"votedAt":  v.CreatedAt,
			}
		}
	}

	ctx.JSON(http.StatusOK, body)
}

func (h *PollsHandler) Update(ctx *gin.Context) {
	id := ctx.Param("id")

	var req poll.UpdatePollRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	p, err := h.polls.Update(cctx, id, req)

	if err != nil {
		if errors.Is(err, poll.ErrNotFound) {
			RespondNotFound(ctx, "Poll not found")
			return
		}

		RespondInternal(ctx, "Could not update poll")
		return
	}

	h.invalidateListing()
	h.results.Invalidate(ctx.Request.Context(), id)

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"poll":    p,
	})
}

func (h *PollsHandler) ToggleActive(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	p, err := h.polls.ToggleActive(cctx, id)

	if err != nil {
		if errors.Is(err, poll.ErrNotFound) {
			RespondNotFound(ctx, "Poll not found")
			return
		}

		RespondInternal(ctx, "Could not toggle poll")
		return
	}

	h.invalidateListing()

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"poll":    p,
	})
}

// Delete removes the poll and its votes in one transaction.
func (h *PollsHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(5 * time.Second)

	defer cancel()

	err := h.polls.DeleteWithVotes(cctx, id)

	if err != nil {
		if errors.Is(err, poll.ErrNotFound) {
			RespondNotFound(ctx, "Poll not found")
			return
		}

		RespondInternal(ctx, "Could not delete poll")
		return
	}

	h.invalidateListing()
	h.results.Invalidate(ctx.Request.Context(), id)

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Poll and its votes deleted",
	})
}

// Results computes the live tally, preferring the short-TTL Redis entry. Every
// current option appears in the breakdown even at zero votes; votes cast for
// options that were later edited away still count toward the total.
func (h *PollsHandler) Results(ctx *gin.Context) {
	id := ctx.Param("id")

	if res, ok := h.results.Get(ctx.Request.Context(), id); ok {
		ctx.JSON(http.StatusOK, gin.H{
			"success": true,
			"results": res,
		})
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	p, err := h.polls.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, poll.ErrNotFound) {
			RespondNotFound(ctx, "Poll not found")
			return
		}

		RespondInternal(ctx, "Could not compute results")
		return
	}

	counts, total, err := h.votes.CountByOption(cctx, p.ID)

	if err != nil {
		RespondInternal(ctx, "Could not compute results")
		return
	}

	options := make([]vote.OptionResult, 0, len(p.Options))

	for _, opt := range p.Options {
		options = append(options, vote.OptionResult{
			OptionID:   opt.ID,
			OptionText: opt.Text,
			Votes:      counts[opt.ID],
		})
	}

	res := vote.Results{
		PollID:     p.ID,
		Title:      p.Title,
		Options:    options,
		TotalVotes: total,
	}

	h.results.Set(ctx.Request.Context(), res)

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": res,
	})
}

func (h *PollsHandler) invalidateListing() {
	if h.listing != nil {
		h.listing.Delete(activePollsCacheKey)
	}
}
