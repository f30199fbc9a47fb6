package notifications

import "context"

type SendInviteInput struct {
	Email     string
	Name      string
	UserID    string
	Role      string
	SetupLink string
}

// Notifier delivers invitation emails. Delivery is best-effort from the API's
// point of view: a failed send never fails the request that created the
// invite, it only delays delivery until the worker retries.
type Notifier interface {
	SendInvite(ctx context.Context, input SendInviteInput) error
}
