package documents

import "errors"

var (
	// ErrUnauthenticated means no valid principal was supplied.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrNotFound is returned both for documents that do not exist and for
	// documents the principal may not act on. The two cases are deliberately
	// indistinguishable so callers cannot probe which ids exist.
	ErrNotFound = errors.New("document not found")

	// ErrRateLimited means the principal exhausted its window for the
	// operation class.
	ErrRateLimited = errors.New("rate limit exceeded")
)
