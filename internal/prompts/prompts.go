// Package prompts builds the prompt text handed to the assistant
// subprocess. The wording itself is out of scope for the orchestration
// engine's spec; this package exists so the Worker Pool has a stable
// seam to build against, and fills in reasonable, swappable templates.
package prompts

import (
	"fmt"
	"strings"

	"github.com/claude-swarm/orchestrator/internal/forge"
)

// Implement builds the initial prompt for an implement worker tackling
// an issue from scratch. maxTurns is stated as a budget in the prompt
// text, not passed to the assistant process as a flag.
func Implement(issueNumber int64, title, body string, maxTurns int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are working on issue #%d: %s\n\n", issueNumber, title)
	if body != "" {
		fmt.Fprintf(&b, "%s\n\n", body)
	}
	b.WriteString("Implement a complete fix, commit your changes, and push a branch " +
		"or open a pull request when done. Work only within the current checkout.\n\n")
	fmt.Fprintf(&b, "You have a budget of roughly %d turns. If you're not done by then, "+
		"commit and push your best partial progress rather than leaving the checkout dirty.", maxTurns)
	return b.String()
}

// FixReview builds the prompt for a fix-review worker addressing
// unresolved review threads on an open PR. maxTurns is stated as a
// budget in the prompt text, not passed to the assistant process.
func FixReview(prNumber, issueNumber int64, threads []forge.ReviewComment, maxTurns int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are addressing review feedback on PR #%d (issue #%d).\n\n", prNumber, issueNumber)
	if len(threads) == 0 {
		b.WriteString("CI has failed on this PR. Inspect the failure and push a fix.\n\n")
	} else {
		b.WriteString("Unresolved review comments:\n")
		for _, t := range threads {
			fmt.Fprintf(&b, "- %s: %s\n", t.Path, t.Body)
		}
		b.WriteString("\nAddress each comment, commit, and push to the same branch.\n\n")
	}
	fmt.Fprintf(&b, "You have a budget of roughly %d turns for this fix.", maxTurns)
	return b.String()
}

// Resume builds the continuation prompt for a worker resuming after a
// rate-limit pause. It deliberately differs from the initial prompt: it
// tells the assistant to inspect current state rather than start over.
// maxTurns is the remaining budget for the resumed attempt.
func Resume(issueNumber int64, maxTurns int) string {
	return fmt.Sprintf(
		"You were interrupted by a rate limit while working on issue #%d. "+
			"Inspect the current state of this checkout (git status, git diff, git log) "+
			"before continuing — do not restart from scratch. Finish the task and push your work. "+
			"You have a budget of roughly %d more turns.",
		issueNumber, maxTurns)
}
