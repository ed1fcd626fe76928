package portal

import (
	"context"
	"fmt"
	"strings"
)

// ProbeDashboard checks whether the current session tokens grant access to
// the authenticated dashboard. Authenticated means HTTP success plus the
// configured marker text in the body; anything else, including a redirect
// back to the login page that itself returns 200, is "not authenticated".
// The returned error is reserved for transport failures.
func (c *Client) ProbeDashboard(ctx context.Context, dashboardPath, marker string) (bool, error) {
	_, body, status, err := c.Get(ctx, c.Resolve(dashboardPath))
	if err != nil {
		return false, fmt.Errorf("dashboard probe failed: %w", err)
	}

	if status < 200 || status >= 300 {
		return false, nil
	}
	return strings.Contains(string(body), marker), nil
}

// FetchDashboard retrieves the dashboard document for identity resolution.
// Callers must hold an authenticated session.
func (c *Client) FetchDashboard(ctx context.Context, dashboardPath string) ([]byte, error) {
	_, body, status, err := c.Get(ctx, c.Resolve(dashboardPath))
	if err != nil {
		return nil, fmt.Errorf("dashboard fetch failed: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("dashboard fetch returned status %d", status)
	}
	return body, nil
}
