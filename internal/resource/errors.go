package resource

import "errors"

var (
	// ErrUnavailable rejects Get/Acquire while the registry is draining or
	// after it closed.
	ErrUnavailable = errors.New("resource: unavailable")
	// ErrStaleHandle reports a lease release that arrived after the store
	// was already closed.
	ErrStaleHandle = errors.New("resource: stale handle")
)
