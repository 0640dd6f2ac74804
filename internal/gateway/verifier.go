package gateway

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// HeaderVerifier trusts a user id header set by an authenticating
// reverse proxy. Token validation happens upstream; the gateway only
// needs the verified identity.
type HeaderVerifier struct {
	// Header is the header carrying the user id. Defaults to X-User-ID.
	Header string
}

func (v HeaderVerifier) Verify(r *http.Request) (uuid.UUID, error) {
	header := v.Header
	if header == "" {
		header = "X-User-ID"
	}
	raw := r.Header.Get(header)
	if raw == "" {
		// Browsers cannot set headers on WebSocket upgrades; accept the
		// query parameter as a fallback.
		raw = r.URL.Query().Get("user")
	}
	if raw == "" {
		return uuid.Nil, errors.New("missing user identity")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.New("invalid user identity")
	}
	return id, nil
}
