package vote

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/quorumlabs/pollhub/internal/domain/poll"
)

var (
	// ErrDuplicate means a vote already exists for this (poll, user) pair.
	// The votes table's uniqueness constraint is the authoritative source of
	// this error; the application pre-check only makes the common case fast.
	ErrDuplicate     = errors.New("vote already cast for this poll")
	ErrNotFound      = errors.New("vote not found")
	ErrPollInactive  = errors.New("poll is not active")
	ErrInvalidOption = errors.New("option does not belong to this poll")
)

type Vote struct {
	ID        string    `json:"id"`
	PollID    string    `json:"pollId"`
	UserID    string    `json:"userId"`
	OptionID  string    `json:"optionId"`
	CreatedAt time.Time `json:"createdAt"`
}

func New(pollID, userID, optionID string) Vote {
	return Vote{
		ID:        uuid.NewString(),
		PollID:    pollID,
		UserID:    userID,
		OptionID:  optionID,
		CreatedAt: time.Now().UTC(),
	}
}

// ValidateBallot enforces the cast preconditions in order: an inactive poll
// is reported before option validity, whatever the option.
func ValidateBallot(p poll.Poll, optionID string) error {
	if !p.IsActive {
		return ErrPollInactive
	}

	if !p.HasOption(optionID) {
		return ErrInvalidOption
	}

	return nil
}

type CastVoteRequest struct {
	PollID   string `json:"pollId" binding:"required,uuid"`
	OptionID string `json:"optionId" binding:"required,uuid"`
	UserID   string `json:"-"`
}

// OptionResult is one row of a live tally.
type OptionResult struct {
	OptionID   string `json:"optionId"`
	OptionText string `json:"optionText"`
	Votes      int    `json:"votes"`
}

type Results struct {
	PollID     string         `json:"pollId"`
	Title      string         `json:"title"`
	Options    []OptionResult `json:"results"`
	TotalVotes int            `json:"totalVotes"`
}

// HistoryEntry is a user's vote joined with the poll it was cast in. The poll
// or the option may have been edited since; missing option text is surfaced
// as-is rather than hidden.
type HistoryEntry struct {
	VoteID     string    `json:"voteId"`
	PollID     string    `json:"pollId"`
	PollTitle  string    `json:"pollTitle"`
	OptionID   string    `json:"optionId"`
	OptionText string    `json:"optionText"`
	VotedAt    time.Time `json:"votedAt"`
}
