package forge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var prURLPattern = regexp.MustCompile(`https://github\.com/[^/]+/[^/]+/pull/(\d+)`)

// prNumberFromURL extracts the PR number from gh pr create's stdout,
// which is the new PR's URL (possibly with trailing whitespace/notes).
func prNumberFromURL(output string) (int64, error) {
	output = strings.TrimSpace(output)
	if m := prURLPattern.FindStringSubmatch(output); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing PR number from URL %q: %w", output, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("could not find PR URL in gh pr create output: %q", output)
}
