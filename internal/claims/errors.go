package claims

import "errors"

var (
	// ErrTaskAlreadyClaimed is returned by Claim when an active, non-expired
	// claim already exists for the task.
	ErrTaskAlreadyClaimed = errors.New("TASK_ALREADY_CLAIMED")

	// ErrNotClaimOwner is returned by Refresh/Release when the caller's
	// sessionId does not match the claim's owner.
	ErrNotClaimOwner = errors.New("NOT_CLAIM_OWNER")

	// ErrClaimNotFound is returned when no row exists for the task.
	ErrClaimNotFound = errors.New("CLAIM_NOT_FOUND")
)
