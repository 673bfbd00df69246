package web

import (
	"net"
	"net/http"
	"strings"

	"github.com/JonMunkholm/medimport/internal/core"
)

// ActorHeader carries the operator identity forwarded by the front end.
const ActorHeader = "X-Actor"

// requestMetadata records the client address and actor in the request
// context so import sessions can attribute their audit entries.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithClientIP(r.Context(), clientIP(r))
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			if len(actor) > 200 {
				actor = actor[:200]
			}
			ctx = core.ContextWithActor(ctx, actor)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP strips the port from RemoteAddr, which TrustedRealIP has already
// rewritten for requests from trusted proxies.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
