// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"strings"
)

// DefaultCSP allows the watch page to embed its own streams and nothing else.
const DefaultCSP = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; media-src 'self' blob:; frame-ancestors 'none'"

// DefaultMediaPrefixes are the raw stream routes.
var DefaultMediaPrefixes = []string{"/stream/", "/audio/"}

// SecurityHeaders hardens browser-facing responses. Paths under one of
// mediaPrefixes are raw byte streams consumed by external players: they get
// nosniff and a cross-origin resource policy instead of the page headers.
func SecurityHeaders(csp string, mediaPrefixes ...string) func(http.Handler) http.Handler {
	if csp == "" {
		csp = DefaultCSP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")

			if isMedia(r.URL.Path, mediaPrefixes) {
				h.Set("Cross-Origin-Resource-Policy", "cross-origin")
				next.ServeHTTP(w, r)
				return
			}

			if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
				h.Set("Strict-Transport-Security", "max-age=15552000")
			}
			h.Set("Content-Security-Policy", csp)
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "same-origin")
			next.ServeHTTP(w, r)
		})
	}
}

func isMedia(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
