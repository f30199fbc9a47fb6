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
	"github.com/quorumlabs/pollhub/internal/observability"
)

type VotesStore interface {
	Create(ctx context.Context, v vote.Vote) (vote.Vote, error)
	GetByPollAndUser(ctx context.Context, pollID, userID string) (vote.Vote, error)
	ListByPoll(ctx context.Context, pollID string) ([]vote.Vote, error)
	ListHistoryByUser(ctx context.Context, userID string) ([]vote.HistoryEntry, error)
}

type VotePollReader interface {
	GetByID(ctx context.Context, id string) (poll.Poll, error)
}

type VotesHandler struct {
	votes   VotesStore
	polls   VotePollReader
	results *cache.ResultsCache
	prom    *observability.Prom
}

func NewVotesHandler(votes VotesStore, polls VotePollReader, results *cache.ResultsCache, prom *observability.Prom) *VotesHandler {
	return &VotesHandler{
		votes:   votes,
		polls:   polls,
		results: results,
		prom:    prom,
	}
}

func (h *VotesHandler) countOutcome(outcome string) {
	if h.prom != nil {
		h.prom.VotesTotal.WithLabelValues(outcome).Inc()
	}
}

// Cast validates in a fixed order: poll exists, poll is active, option belongs
// to the poll, then no prior vote. The duplicate pre-check only makes the
// common case friendly; under a race the unique constraint in the votes table
// decides, and its violation comes back as the same duplicate error.
func (h *VotesHandler) Cast(ctx *gin.Context) {
	var req vote.CastVoteRequest

	if !BindJSON(ctx, &req) {
		h.countOutcome("rejected")
		return
	}

	caller, ok := middlewares.CurrentUser(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthenticated", "Not authorized")
		return
	}

	req.UserID = caller.ID

	cctx, cancel := config.WithTimeout(5 * time.Second)

	defer cancel()

	p, err := h.polls.GetByID(cctx, req.PollID)

	if err != nil {
		if errors.Is(err, poll.ErrNotFound) {
			h.countOutcome("rejected")
			RespondNotFound(ctx, "Poll not found")
			return
		}

		RespondInternal(ctx, "Could not cast vote")
		return
	}

	if err := vote.ValidateBallot(p, req.OptionID); err != nil {
		h.countOutcome("rejected")

		if errors.Is(err, vote.ErrPollInactive) {
			RespondError(ctx, http.StatusBadRequest, "poll_inactive", "This poll is not accepting votes.", nil)
			return
		}

		RespondError(ctx, http.StatusBadRequest, "invalid_option", "Option does not belong to this poll.", nil)
		return
	}

	_, err = h.votes.GetByPollAndUser(cctx, req.PollID, req.UserID)

	if err == nil {
		h.countOutcome("duplicate")
		RespondError(ctx, http.StatusBadRequest, "duplicate_vote", "You have already voted in this poll.", nil)
		return
	}

	if !errors.Is(err, vote.ErrNotFound) {
		RespondInternal(ctx, "Could not cast vote")
		return
	}

	created, err := h.votes.Create(cctx, vote.New(req.PollID, req.UserID, req.OptionID))

	if err != nil {
		if errors.Is(err, vote.ErrDuplicate) {
			// lost the race; same answer as the pre-check
			h.countOutcome("duplicate")
			RespondError(ctx, http.StatusBadRequest, "duplicate_vote", "You have already voted in this poll.", nil)
			return
		}

		RespondInternal(ctx, "Could not cast vote")
		return
	}

	h.countOutcome("accepted")
	h.results.Invalidate(ctx.Request.Context(), req.PollID)

	ctx.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Vote recorded",
		"vote":    created,
	})
}

// MyVotes returns the caller's voting history with poll titles and the text
// of the chosen option.
func (h *VotesHandler) MyVotes(ctx *gin.Context) {
	caller, ok := middlewares.CurrentUser(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthenticated", "Not authorized")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	history, err := h.votes.ListHistoryByUser(cctx, caller.ID)

	if err != nil {
		RespondInternal(ctx, "Could not fetch votes")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(history),
		"votes":   history,
	})
}

// Status reports whether the caller voted in a poll. Not having voted is a
// normal answer, not an error.
func (h *VotesHandler) Status(ctx *gin.Context) {
	pollID := ctx.Param("pollId")

	caller, ok := middlewares.CurrentUser(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthenticated", "Not authorized")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)

	defer cancel()

	v, err := h.votes.GetByPollAndUser(cctx, pollID, caller.ID)

	if err != nil {
		if errors.Is(err, vote.ErrNotFound) {
			ctx.JSON(http.StatusOK, gin.H{
				"success":  true,
				"hasVoted": false,
			})
			return
		}

		RespondInternal(ctx, "Could not fetch vote status")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success":  true,
		"hasVoted": true,
		"optionId": v.OptionID,
		"votedAt":  v.CreatedAt,
	})
}

// ListForPoll is the admin view of raw ballots for one poll.
func (h *VotesHandler) ListForPoll(ctx *gin.Context) {
	pollID := ctx.Param("pollId")

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	if _, err := h.polls.GetByID(cctx, pollID); err != nil {
		if errors.Is(err, poll.ErrNotFound) {
			RespondNotFound(ctx, "Poll not found")
			return
		}

		RespondInternal(ctx, "Could not fetch votes")
		return
	}

	votes, err := h.votes.ListByPoll(cctx, pollID)

	if err != nil {
		RespondInternal(ctx, "Could not fetch votes")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(votes),
		"votes":   votes,
	})
}
