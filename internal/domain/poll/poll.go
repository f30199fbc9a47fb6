package poll

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("poll not found")

// Option belongs exclusively to its poll; it has no identity outside it.
// Tallies are always derived from vote records, never stored here.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Poll struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Options     []Option  `json:"options"`
	IsActive    bool      `json:"isActive"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasOption reports whether optionID is among the poll's current options.
func (p Poll) HasOption(optionID string) bool {
	for _, opt := range p.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// OptionInput accepts either a plain string or an object with a text field,
// so clients can post options as ["Pizza","Salad"] or [{"text":"Pizza"}].
type OptionInput struct {
	Text string
}

func (o *OptionInput) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.Text = s
		return nil
	}

	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	o.Text = obj.Text
	return nil
}

type CreatePollRequest struct {
	Title       string        `json:"title" binding:"required,min=3,max=200"`
	Description string        `json:"description" binding:"omitempty,max=1000"`
	Options     []OptionInput `json:"options" binding:"required,min=2"`
	CreatedBy   string        `json:"-"`
}

// UpdatePollRequest is a partial update; nil fields are left untouched.
// Only title, description and the active flag are mutable.
type UpdatePollRequest struct {
	Title       *string `json:"title" binding:"omitempty,min=3,max=200"`
	Description *string `json:"description" binding:"omitempty,max=1000"`
	IsActive    *bool   `json:"isActive"`
}

var ErrTooFewOptions = errors.New("a poll needs at least 2 options")

// NewFromCreateRequest builds a Poll from the incoming DTO, assigning each
// option its embedded identity. Blank option texts are rejected.
func NewFromCreateRequest(req CreatePollRequest) (Poll, error) {
	opts := make([]Option, 0, len(req.Options))

	for _, in := range req.Options {
		text := strings.TrimSpace(in.Text)
		if text == "" {
			continue
		}
		opts = append(opts, Option{
			ID:   uuid.NewString(),
			Text: text,
		})
	}

	if len(opts) < 2 {
		return Poll{}, ErrTooFewOptions
	}

	now := time.Now().UTC()

	return Poll{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Options:     opts,
		IsActive:    true,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
