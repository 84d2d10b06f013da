package catalog

import (
	"errors"
	"fmt"
)

// ErrNoPages is returned by a walk that could not fetch a single page.
var ErrNoPages = errors.New("catalog walk fetched no pages")

// UpstreamError is a non-2xx answer from the upstream catalog. It is a
// business outcome: callers decide whether it means "no more data" or a
// hard failure.
type UpstreamError struct {
	Path   string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned %d: %s", e.Path, e.Status, e.Body)
}

// TransportError wraps a network-level failure or timeout of a single call.
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
