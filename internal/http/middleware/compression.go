package middleware

import (
	"net/http"
	"strings"
)

// SkipCompressionForUpgrades wraps a compression middleware so WebSocket
// upgrade requests bypass it. The compressor's response writer cannot be
// hijacked, which the upgrade handshake requires.
func SkipCompressionForUpgrades(compressionHandler func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressedHandler := compressionHandler(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			compressedHandler.ServeHTTP(w, r)
		})
	}
}
