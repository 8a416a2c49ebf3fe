package calendarsync

import (
	"context"
	"errors"
)

// ErrCursorExpired is returned by a Fetcher when the remote API reports
// that the stored sync cursor is no longer valid. Callers recover in the
// same cycle: clear the stored cursor and retry once as a full fetch.
// Every other fetch error is retryable on the next scheduled cycle.
var ErrCursorExpired = errors.New("calendar sync cursor expired")

// ErrNotConnected is returned when a clinician has no calendar credential.
var ErrNotConnected = errors.New("clinician has no calendar connected")

// FetchResult is the outcome of one calendar read.
type FetchResult struct {
	Events     []ExternalEvent
	NextCursor string
	// Incremental is true when the fetch was scoped by a cursor rather
	// than by the forward-looking window.
	Incremental bool
	// Credential carries refreshed token material when TokenRefreshed is
	// true; the caller persists it. Refresh is surfaced as a return value
	// rather than a callback so persistence stays with the orchestrator.
	Credential     Credential
	TokenRefreshed bool
}

// Fetcher reads the external calendar. With an empty cursor it performs a
// full fetch bounded by windowDays from today; with a cursor it returns
// only events changed since that cursor (windowDays is ignored by the
// remote in that mode).
type Fetcher interface {
	Fetch(ctx context.Context, cred Credential, windowDays int, cursor string) (*FetchResult, error)
}
