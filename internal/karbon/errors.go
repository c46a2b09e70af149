package karbon

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned before any network call when either
	// credential header is unconfigured. Never retried.
	ErrMissingCredentials = errors.New("karbon: access key and bearer token are required")

	// ErrUnauthorized covers HTTP 401/403: a configuration problem, not a
	// transient failure. Aborts the entity kind being synced.
	ErrUnauthorized = errors.New("karbon: credentials rejected by source API")

	// ErrNotFound covers HTTP 404. List calls translate it into an empty
	// result set; single-resource fetches surface it to the caller.
	ErrNotFound = errors.New("karbon: resource not found")
)

// StatusError is returned for HTTP statuses outside the classified set.
// Treated as an entity-kind-level transient failure.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("karbon: unexpected status %d: %s", e.StatusCode, e.Body)
}

// PartialError reports a page sequence that failed mid-stream after at least
// one page succeeded. The pages already fetched are returned alongside it
// rather than discarded.
type PartialError struct {
	Pages int
	Err   error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("karbon: pagination stopped after %d pages: %v", e.Pages, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}
