// Package portal implements the HTTP client side of the HR portal: a
// cookie-backed session, the identity-provider authentication flow, and the
// authenticated-dashboard probe.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rgaerlan/attendctl/internal/config"
)

// Credentials is the portal principal used for authentication. It is owned
// by the caller and never persisted alongside session tokens.
type Credentials struct {
	Username string
	Password string
}

// Client is an HTTP client bound to one portal session. All cookies
// accumulated across requests live in its jar; snapshot and restore them
// with Cookies and SetCookies.
//
// A Client is not safe for concurrent use: the jar is a single shared
// mutable resource and the portal protocol is strictly sequential. Callers
// that share a Client must serialize access (session.Manager does).
type Client struct {
	http        *http.Client // follows redirects
	httpNoRedir *http.Client // redirects disabled, same jar
	jar         *cookiejar.Jar
	baseURL     *url.URL
	ssoHost     string
	userAgent   string
	limiter     *rate.Limiter

	// requestCount is incremented on every outbound request; used by the
	// action submitter's precondition tests to assert no network use.
	requestCount int
}

// NewClient creates a portal client from configuration.
func NewClient(cfg *config.Config) (*Client, error) {
	base, err := url.Parse(cfg.Portal.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse portal base URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	timeout := time.Duration(cfg.Portal.TimeoutSeconds) * time.Second

	return &Client{
		http: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		httpNoRedir: &http.Client{
			Jar:     jar,
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		jar:       jar,
		baseURL:   base,
		ssoHost:   cfg.Portal.SSOHost,
		userAgent: cfg.Portal.UserAgent,
		// Burst of a few requests, then pace: the auth flow alone is four
		// round trips and the portal throttles aggressive clients.
		limiter: rate.NewLimiter(rate.Limit(cfg.Portal.RequestsPerSec), 4),
	}, nil
}

// BaseURL returns the portal entry URL.
func (c *Client) BaseURL() *url.URL {
	return c.baseURL
}

// Resolve joins a portal-relative path onto the base URL.
func (c *Client) Resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.baseURL.String() + path
	}
	return c.baseURL.ResolveReference(ref).String()
}

// RequestCount returns the number of requests issued so far.
func (c *Client) RequestCount() int {
	return c.requestCount
}

// do paces and sends a request through the given underlying client.
func (c *Client) do(ctx context.Context, hc *http.Client, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	c.requestCount++

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Get issues a GET following redirects and returns the final URL, the
// response body, and the final status code.
func (c *Client) Get(ctx context.Context, rawURL string) (finalURL *url.URL, body []byte, status int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.do(ctx, c.http, req)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.Request.URL, body, resp.StatusCode, nil
}

// PostForm issues an application/x-www-form-urlencoded POST. When
// followRedirects is false the raw response (including 3xx) is returned so
// the caller can inspect it.
func (c *Client) PostForm(ctx context.Context, action string, data url.Values, followRedirects bool, extraHeaders map[string]string) (finalURL *url.URL, body []byte, status int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	hc := c.http
	if !followRedirects {
		hc = c.httpNoRedir
	}

	resp, err := c.do(ctx, hc, req)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("POST %s: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.Request.URL, body, resp.StatusCode, nil
}

// PostJSON issues a JSON POST to a portal-relative path the way the portal's
// web methods expect (XMLHttpRequest headers, page referer).
func (c *Client) PostJSON(ctx context.Context, path string, payload any, referer string) (body []byte, status int, err error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Resolve(path), bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := c.do(ctx, c.http, req)
	if err != nil {
		return nil, 0, fmt.Errorf("POST %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp.StatusCode, nil
}

// Cookies snapshots every session token currently held for the portal and
// identity-provider hosts as a name/value map.
func (c *Client) Cookies() map[string]string {
	tokens := make(map[string]string)
	for _, u := range c.tokenURLs() {
		for _, ck := range c.jar.Cookies(u) {
			tokens[ck.Name] = ck.Value
		}
	}
	return tokens
}

// SetCookies installs persisted session tokens against the portal host.
// The dashboard probe is the only consumer before re-authentication, so the
// identity-provider host is left untouched; an expired portal session falls
// back to a fresh flow regardless.
func (c *Client) SetCookies(tokens map[string]string) {
	cookies := make([]*http.Cookie, 0, len(tokens))
	for name, value := range tokens {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	c.jar.SetCookies(c.baseURL, cookies)
}

// tokenURLs returns the URLs whose cookies constitute the session.
func (c *Client) tokenURLs() []*url.URL {
	urls := []*url.URL{c.baseURL}
	if c.ssoHost != "" && c.ssoHost != c.baseURL.Host {
		urls = append(urls, &url.URL{Scheme: c.baseURL.Scheme, Host: c.ssoHost, Path: "/"})
	}
	return urls
}
