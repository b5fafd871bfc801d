package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// reviewThreadsQuery mirrors the exact structured query shape spec'd
// for the Forge Gateway: per-thread resolution, file path, and the
// comments within each thread.
const reviewThreadsQuery = `
query($owner: String!, $repo: String!, $pr: Int!, $cursor: String) {
  repository(owner: $owner, name: $repo) {
    pullRequest(number: $pr) {
      reviewThreads(first: 100, after: $cursor) {
        pageInfo { hasNextPage endCursor }
        nodes {
          isResolved
          path
          line
          comments(first: 50) {
            nodes { body author { login } }
          }
        }
      }
    }
  }
}`

type reviewThreadsResponse struct {
	Data struct {
		Repository struct {
			PullRequest struct {
				ReviewThreads struct {
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
					Nodes []struct {
						IsResolved bool   `json:"isResolved"`
						Path       string `json:"path"`
						Line       int    `json:"line"`
						Comments   struct {
							Nodes []struct {
								Body   string `json:"body"`
								Author struct {
									Login string `json:"login"`
								} `json:"author"`
							} `json:"nodes"`
						} `json:"comments"`
					} `json:"nodes"`
				} `json:"reviewThreads"`
			} `json:"pullRequest"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// PRReviewThreads runs the structured GraphQL review-thread query via
// `gh api graphql`, paginating until all threads are collected. Any gh
// failure, GraphQL error, or unparseable response is returned as an
// error so the PR Reviewer falls back to the REST heuristic.
func (c *CLI) PRReviewThreads(ctx context.Context, prNumber int64) ([]ReviewThread, error) {
	owner, repo, err := c.ownerRepo()
	if err != nil {
		return nil, err
	}

	var threads []ReviewThread
	cursor := ""
	for {
		args := []string{
			"api", "graphql",
			"-f", "query=" + reviewThreadsQuery,
			"-F", "owner=" + owner,
			"-F", "repo=" + repo,
			"-F", fmt.Sprintf("pr=%d", prNumber),
		}
		if cursor != "" {
			args = append(args, "-F", "cursor="+cursor)
		} else {
			args = append(args, "-f", "cursor=")
		}

		out, err := c.gh(ctx, 30*time.Second, args...)
		if err != nil {
			return nil, fmt.Errorf("querying review threads for PR #%d: %w", prNumber, err)
		}

		var resp reviewThreadsResponse
		if err := json.Unmarshal(out, &resp); err != nil {
			return nil, fmt.Errorf("parsing review threads response for PR #%d: %w", prNumber, err)
		}
		if len(resp.Errors) > 0 {
			return nil, fmt.Errorf("graphql error querying PR #%d review threads: %s", prNumber, resp.Errors[0].Message)
		}

		rt := resp.Data.Repository.PullRequest.ReviewThreads
		for _, n := range rt.Nodes {
			comments := make([]ThreadComment, 0, len(n.Comments.Nodes))
			for _, cm := range n.Comments.Nodes {
				comments = append(comments, ThreadComment{Body: cm.Body, Author: cm.Author.Login})
			}
			threads = append(threads, ReviewThread{
				IsResolved: n.IsResolved,
				Path:       n.Path,
				Line:       n.Line,
				Comments:   comments,
			})
		}

		if !rt.PageInfo.HasNextPage {
			break
		}
		cursor = rt.PageInfo.EndCursor
	}

	return threads, nil
}

// UpdateRepo fetches and fast-forwards the base branch in the target
// repo checkout, run before every worktree creation so new worktrees
// branch from up-to-date history.
func (c *CLI) UpdateRepo(ctx context.Context, repoPath, baseBranch string) error {
	if _, err := c.git(ctx, repoPath, 30*time.Second, "fetch", "origin"); err != nil {
		return err
	}
	_, err := c.git(ctx, repoPath, 30*time.Second, "pull", "origin", baseBranch)
	return err
}

func (c *CLI) ownerRepo() (string, string, error) {
	parts := strings.SplitN(c.Repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("forge: repo %q is not in owner/repo form", c.Repo)
	}
	return parts[0], parts[1], nil
}
