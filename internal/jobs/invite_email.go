package jobs

import (
	"encoding/json"
	"time"
)

const TypeInviteEmail = "user.invite_email"

// InviteEmailPayload is everything the worker needs to deliver an invitation.
// Kept small and ID-based; the deep link is computed at enqueue time so the
// worker does not depend on frontend config.
type InviteEmailPayload struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	SetupLink   string    `json:"setupLink"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (p InviteEmailPayload) JSON() (json.RawMessage, error) {
	b, err := json.Marshal(p)

	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func DecodeInviteEmail(raw json.RawMessage) (InviteEmailPayload, error) {
	var p InviteEmailPayload

	if len(raw) == 0 {
		return p, ErrInvalidJobPayload
	}

	if err := json.Unmarshal(raw, &p); err != nil {
		return p, ErrInvalidJobPayload
	}

	if p.UserID == "" || p.Email == "" {
		return p, ErrInvalidJobPayload
	}

	return p, nil
}
