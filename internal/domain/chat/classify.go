package chat

import (
	"strings"

	"github.com/helmsman-ai/helmsman/internal/domain/event"
)

// Substring groups for error classification. Matching on provider error
// wording is fragile but it is the only signal available: no structured
// error-code channel exists upstream.
var (
	quotaPhrases = []string{
		"credit balance",
		"insufficient credits",
		"quota exceeded",
		"billing",
	}
	transientPhrases = []string{
		"rate limit",
		"overloaded",
		"timeout",
		"timed out",
		"connection refused",
		"connection reset",
		"temporarily unavailable",
		"service unavailable",
		"internal server error",
		"bad gateway",
		"network",
		"502",
		"503",
		"529",
	}
)

// Classify maps provider error text to a failure category and whether a
// retry is worthwhile. Quota/credit exhaustion needs user action before any
// retry can help; rate limits and network blips are transient; everything
// unmatched is persistent and not auto-retried.
func Classify(message string) (event.Category, bool) {
	m := strings.ToLower(message)

	for _, p := range quotaPhrases {
		if strings.Contains(m, p) {
			return event.CategoryUserAction, false
		}
	}
	for _, p := range transientPhrases {
		if strings.Contains(m, p) {
			return event.CategoryTransient, true
		}
	}
	return event.CategoryPersistent, false
}
