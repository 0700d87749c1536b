package server

import (
	"net/http"
	"strings"

	"github.com/playperu/storyline/internal/storyline"
)

const deviceKeyHeader = "X-Device-Key"

// deviceKey reads the device key from the X-Device-Key header, falling back
// to the key query parameter for EventSource and WebSocket clients.
func deviceKey(r *http.Request) string {
	if k := r.Header.Get(deviceKeyHeader); k != "" {
		return k
	}
	return r.URL.Query().Get("key")
}

func bearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found || token == "" {
		return "", storyline.New(storyline.CodeNotAuthenticated, "bearer token required")
	}
	return token, nil
}
