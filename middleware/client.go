package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/internal"
)

// ClientContext attaches the client IP and client tag to each request. With
// trustForwarded set the first X-Forwarded-For entry is used as the IP; only
// enable it behind a proxy that overwrites the header.
func ClientContext(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustForwarded)
			ctx := authflow.WithClientIP(r.Context(), ip)
			ctx = authflow.WithClientTag(ctx, internal.ClientTag(ip, r.UserAgent()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
