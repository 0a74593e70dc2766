// Package shield holds the HTTP middleware sidekickd puts in front of its
// API: security headers, HEAD handling, a body cap and per-IP rate
// limiting.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack(limiter) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// APIStack returns the standard stack for a JSON API: HeadToGet,
// SecurityHeaders(APIHeaders()), then rl when it is not nil.
func APIStack(rl *RateLimiter) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders()),
	}
	if rl != nil {
		stack = append(stack, rl.Middleware)
	}
	return stack
}
