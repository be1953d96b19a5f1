package sdk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lookout-sh/lookout/internal/crypto"
	"github.com/lookout-sh/lookout/pkg/logger"
)

// tokenRefreshWindow is how soon before expiry a cached token is refreshed.
const tokenRefreshWindow = 10 * time.Minute

// EnsureAuth authenticates with the server, reusing the cached token when it
// is still valid.
func (c *Client) EnsureAuth(ctx context.Context) error {
	return c.ensureToken(ctx)
}

// ensureToken installs a bearer token on the API client, reusing the cached
// one when it is still comfortably valid and re-authenticating otherwise.
func (c *Client) ensureToken(ctx context.Context) error {
	path := c.tokenPath()

	if data, err := os.ReadFile(path); err == nil {
		token := strings.TrimSpace(string(data))
		if token != "" && !crypto.TokenExpiringSoon(token, tokenRefreshWindow) {
			c.apiCli.SetToken(token)
			return nil
		}
	}

	if err := c.apiCli.Authenticate(ctx, c.identity); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if err := os.WriteFile(path, []byte(c.apiCli.Token()), 0o600); err != nil {
		logger.Warnf("sdk: failed to cache token: %v", err)
	}
	return nil
}

func (c *Client) tokenPath() string {
	return filepath.Join(c.cfg.LookoutHome, "access.token")
}
