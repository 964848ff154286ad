package middleware

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"formflow/pkg/requestcontext"
)

// ClientMetadata extracts the client IP and a normalized browser/platform
// description from the request and adds them to the context. Audit events
// attached to answer updates and submissions carry these fields.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(),
			clientIPFromRequest(r),
			describeUserAgent(r.Header.Get("User-Agent")),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIPFromRequest prefers the first X-Forwarded-For hop; the service
// runs behind the government API gateway which sets it.
func clientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

// describeUserAgent reduces a raw User-Agent header to "browser/version (os)".
func describeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	return name + "/" + version + " (" + ua.OS() + ")"
}
