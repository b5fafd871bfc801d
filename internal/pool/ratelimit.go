package pool

import (
	"strings"

	"github.com/claude-swarm/orchestrator/internal/stream"
	"github.com/claude-swarm/orchestrator/models"
)

// rateLimitPatterns are matched case-insensitively against a worker's
// stderr and error-type events to distinguish a rate-limit pause from
// an ordinary failure. Exhaustive, not a heuristic guess — this is the
// exact substring list the assistant CLI is known to emit across its
// various rate-limit and overload error shapes.
var rateLimitPatterns = []string{
	"rate limit",
	"usage limit",
	"too many requests",
	"429",
	"token limit exceeded",
	"exceeded your",
	"capacity",
	"overloaded",
	"try again later",
	"rate_limit",
	"throttl",
}

func isRateLimitOutput(s string) bool {
	lower := strings.ToLower(s)
	for _, pat := range rateLimitPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// isRateLimitedExit checks both the process's stderr and any
// error-type events emitted on the stream for a rate-limit signature.
func isRateLimitedExit(stderrOut string, events []*stream.Event) bool {
	if isRateLimitOutput(stderrOut) {
		return true
	}
	for _, e := range events {
		if e.Type == models.EventTypeError && isRateLimitOutput(e.Summary) {
			return true
		}
	}
	return false
}
