package http

import (
	"net/http"
	"strings"

	"mealtracker/internal/log"
)

// sanitizeInput drops control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// logger returns the request scoped logger set by the trace middleware.
func logger(r *http.Request) *log.Logger {
	return log.FromContext(r.Context()).WithComponent(log.ComponentHTTP)
}
