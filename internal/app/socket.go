package app

import (
	"net/http"

	"github.com/civic-tally/tally/internal/shared"
)

// SocketTokenParam carries the bearer token on websocket upgrades, where
// browsers cannot set an Authorization header.
const SocketTokenParam = "access_token"

// SocketToken prefers the Authorization header and falls back to the query parameter.
func SocketToken(r *http.Request) string {
	if raw := shared.BearerToken(r); raw != "" {
		return raw
	}
	return r.URL.Query().Get(SocketTokenParam)
}
