package gist

import (
	"errors"
	"fmt"
)

// ErrNotFound means the requested gist does not exist on the remote store
// (or the token cannot see it, which GitHub reports the same way).
var ErrNotFound = errors.New("gist not found")

// ErrFileNotFound means a named file is absent from an existing gist.
var ErrFileNotFound = errors.New("file not found in gist")

// AuthError reports a missing, malformed or rejected bearer token.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// APIError carries a GitHub API failure verbatim so callers can forward the
// upstream status code.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("GitHub API error: %d - %s", e.Status, e.Message)
}
