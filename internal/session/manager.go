// Package session manages the authenticated portal session across
// invocations: reuse a persisted session when it still works, fall back to a
// fresh authentication flow when it does not, and persist the result.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rgaerlan/attendctl/internal/config"
	"github.com/rgaerlan/attendctl/internal/logsanitize"
	"github.com/rgaerlan/attendctl/internal/portal"
	"github.com/rgaerlan/attendctl/internal/sessionstore"
)

// Manager wraps the authentication flow with reuse and expiry logic. It owns
// the portal client's session state: concurrent callers are serialized so at
// most one flow is in flight per credential identity.
type Manager struct {
	mu     sync.Mutex
	client *portal.Client
	cfg    *config.Config
	creds  portal.Credentials
}

// NewManager creates a lifecycle manager. Credentials are held for the
// manager's lifetime but never persisted.
func NewManager(client *portal.Client, cfg *config.Config, creds portal.Credentials) *Manager {
	return &Manager{
		client: client,
		cfg:    cfg,
		creds:  creds,
	}
}

// Client returns the portal client whose session this manager guarantees.
func (m *Manager) Client() *portal.Client {
	return m.client
}

// EnsureAuthenticated guarantees an authenticated session on the client:
//
//  1. Load the persisted session and probe the dashboard with it. A passing
//     probe is the reuse fast path; no credential exchange happens.
//  2. Otherwise run the full authentication flow with the configured
//     credentials.
//  3. Persist the fresh tokens, best-effort: a failed save is logged, never
//     surfaced as an authentication failure.
//
// Callers must invoke this before every action-performing operation; the
// portal may expire the session between calls, so "authenticated" must not
// be cached across top-level operations.
func (m *Manager) EnsureAuthenticated(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reuseSaved(ctx) {
		return nil
	}

	return m.authenticate(ctx)
}

// Login always runs a fresh authentication flow, replacing any persisted
// session regardless of whether it still works.
func (m *Manager) Login(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.authenticate(ctx)
}

// authenticate runs the flow and persists the result. Callers hold mu.
func (m *Manager) authenticate(ctx context.Context) error {
	slog.Info("performing fresh authentication", "username", m.creds.Username)

	flow := portal.NewAuthFlow(m.client, m.cfg)
	if err := flow.Run(ctx, m.creds); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	// Storage trouble never fails an otherwise successful authentication.
	sess := &sessionstore.PersistedSession{
		Cookies: m.client.Cookies(),
		Headers: map[string]string{"User-Agent": m.cfg.Portal.UserAgent},
	}
	if err := sessionstore.Save(sess, m.cfg.Session.File); err != nil {
		slog.Warn("failed to persist session", "path", m.cfg.Session.File, "error", err)
	} else {
		slog.Debug("session persisted", "path", m.cfg.Session.File, "tokens", len(sess.Cookies))
	}

	return nil
}

// reuseSaved loads the persisted session and reports whether it still passes
// the dashboard probe. All storage errors are recovered here: a missing or
// corrupt file just means "no usable session".
func (m *Manager) reuseSaved(ctx context.Context) bool {
	sess, err := sessionstore.Load(m.cfg.Session.File)
	if err != nil {
		switch {
		case errors.Is(err, sessionstore.ErrNotFound):
			slog.Debug("no persisted session", "path", m.cfg.Session.File)
		case errors.Is(err, sessionstore.ErrCorrupt):
			slog.Warn("persisted session is corrupt, ignoring", "path", m.cfg.Session.File)
		default:
			slog.Warn("failed to load persisted session", "path", m.cfg.Session.File, "error", err)
		}
		return false
	}

	for name, value := range sess.Cookies {
		slog.Debug("restoring session token", "name", name, "value", logsanitize.RedactToken(value))
	}
	m.client.SetCookies(sess.Cookies)

	ok, err := m.client.ProbeDashboard(ctx, m.cfg.Portal.DashboardPath, m.cfg.Portal.DashboardMarker)
	if err != nil {
		slog.Warn("session probe failed", "error", err)
		return false
	}
	if !ok {
		slog.Info("persisted session expired")
		return false
	}

	slog.Debug("reusing persisted session", "tokens", len(sess.Cookies))
	return true
}
