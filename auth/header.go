package auth

import (
	"net/http"
	"strings"
)

// DefaultUserHeader carries the user id for HeaderVerifier.
const DefaultUserHeader = "X-User-ID"

// HeaderVerifier trusts a request header for the user id. It is meant for
// local development or for running behind a gateway that already
// authenticated the caller.
type HeaderVerifier struct {
	Header string
}

// Verify returns the header value.
func (h HeaderVerifier) Verify(r *http.Request) (string, error) {
	name := h.Header
	if name == "" {
		name = DefaultUserHeader
	}
	userID := strings.TrimSpace(r.Header.Get(name))
	if userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}
