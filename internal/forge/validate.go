package forge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ValidateToken checks that token authenticates against the forge's
// user-info endpoint. Used once at startup so a bad token fails fast
// with a clear error instead of surfacing as a string of "gh" failures
// once pollers are already running.
func ValidateToken(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := oauth2.NewClient(ctx, src)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/user", nil)
	if err != nil {
		return fmt.Errorf("building token validation request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("validating forge token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("forge token rejected by api.github.com/user (status %d)", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		slog.Warn("Forge token validation skipped, api.github.com/user unavailable", "status", resp.StatusCode)
		return nil
	}
	return nil
}
