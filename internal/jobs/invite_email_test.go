package jobs

import (
	"encoding/json"
	"testing"
	"time"
)

func TestInviteEmailRoundTrip(t *testing.T) {
	payload := InviteEmailPayload{
		UserID:      "user-123",
		Email:       "robin@example.com",
		Name:        "Robin",
		Role:        "user",
		SetupLink:   "http://localhost:5173/role-setup/user-123",
		RequestedAt: time.Now().UTC().Truncate(time.Second),
	}

	raw, err := payload.JSON()
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}

	decoded, err := DecodeInviteEmail(raw)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if decoded.UserID != payload.UserID || decoded.Email != payload.Email {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}

	if decoded.SetupLink != payload.SetupLink {
		t.Fatalf("expected setup link %s, got %s", payload.SetupLink, decoded.SetupLink)
	}
}

func TestDecodeInviteEmail_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  json.RawMessage
	}{
		{"empty", nil},
		{"garbage", json.RawMessage(`{`)},
		{"missing_user_id", json.RawMessage(`{"email": "robin@example.com"}`)},
		{"missing_email", json.RawMessage(`{"userId": "user-123"}`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeInviteEmail(tc.raw)

			if err != ErrInvalidJobPayload {
				t.Fatalf("expected ErrInvalidJobPayload, got %v", err)
			}
		})
	}
}
