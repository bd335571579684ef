package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves a document without JavaScript execution. Used for
// search-results pages, which render server-side.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Browser opens listing pages in a rendering engine that can perform
// interactive reveal steps.
type Browser interface {
	Open(ctx context.Context, url string) (Session, error)
}

// Session is a live rendered page. Callers must Close it when done.
type Session interface {
	// HTML returns the current DOM serialized as HTML.
	HTML(ctx context.Context) (string, error)
	// Click triggers the first element matching selector.
	Click(ctx context.Context, selector string) error
	// WaitVisible blocks until selector is visible or the timeout expires,
	// in which case it returns ErrWaitTimeout.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Text returns the text content of the first element matching selector.
	// The element must already be present; callers gate on WaitVisible.
	Text(ctx context.Context, selector string) (string, error)
	Close()
}

// Store persists listings keyed by URL.
type Store interface {
	Upsert(ctx context.Context, listing Listing) (UpsertOutcome, error)
	FetchAll(ctx context.Context) ([]Listing, error)
	CountAll(ctx context.Context) (int64, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
