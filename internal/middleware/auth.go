package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyAuth validates the admin API key from the Authorization header. With
// no keys configured every request is rejected.
func APIKeyAuth(validKeys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				WriteError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			// Support both "Bearer <key>" and "<key>" formats
			apiKey := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if apiKey == "" {
				WriteError(w, http.StatusUnauthorized, "invalid Authorization header format")
				return
			}

			valid := false
			for _, key := range validKeys {
				if key != "" && subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
					valid = true
				}
			}
			if !valid {
				WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SentryKey returns the public ingest key of an SDK request. It is read from
// X-Sentry-Auth, then a "Sentry ..." Authorization header, then the
// sentry_key query parameter.
func SentryKey(r *http.Request) string {
	for _, h := range []string{r.Header.Get("X-Sentry-Auth"), r.Header.Get("Authorization")} {
		if k := parseSentryAuth(h); k != "" {
			return k
		}
	}
	return r.URL.Query().Get("sentry_key")
}

// parseSentryAuth reads sentry_key from a header such as
// "Sentry sentry_key=abc, sentry_version=7, sentry_client=x/1.0".
func parseSentryAuth(h string) string {
	h = strings.TrimSpace(h)
	if len(h) < len("Sentry ") || !strings.EqualFold(h[:len("Sentry ")], "Sentry ") {
		return ""
	}
	for _, part := range strings.Split(h[len("Sentry "):], ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.TrimSpace(k) == "sentry_key" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
