package server

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginChecker allows requests without an Origin header and requests whose
// origin is listed. An empty list or "*" allows every origin.
func OriginChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		if origin != "" {
			allowed[strings.ToLower(origin)] = struct{}{}
		}
	}

	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}

		_, ok := allowed[strings.ToLower(u.Scheme+"://"+u.Host)]

		return ok
	}
}
