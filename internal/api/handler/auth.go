package handler

import (
	"errors"
	"net/http"
	"strings"
)

var errMissingToken = errors.New("authorization token missing")

// tokenFromRequest reads a bearer token from the Authorization header or,
// for browsers that can not set headers on a WebSocket, the token query
// parameter.
func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return r.URL.Query().Get("token")
}

// authenticate returns the user id bound to the request's token.
func (h *Handler) authenticate(r *http.Request) (string, error) {
	token := tokenFromRequest(r)
	if token == "" {
		return "", errMissingToken
	}
	return h.opts.Issuer.Parse(token)
}
