package portal

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/rgaerlan/attendctl/internal/config"
	"github.com/rgaerlan/attendctl/internal/htmldoc"
	"github.com/rgaerlan/attendctl/internal/logsanitize"
)

// FlowState is a step of the authentication state machine. The flow is
// strictly linear; FlowFailed is the single absorbing failure state,
// reachable from every step.
type FlowState int

const (
	FlowStart FlowState = iota
	FlowParamsAcquired
	FlowCredentialsSubmitted
	FlowAuthenticated
	FlowFailed
)

// String returns the state name for logging.
func (s FlowState) String() string {
	switch s {
	case FlowStart:
		return "start"
	case FlowParamsAcquired:
		return "params-acquired"
	case FlowCredentialsSubmitted:
		return "credentials-submitted"
	case FlowAuthenticated:
		return "authenticated"
	case FlowFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// FailReason identifies why an authentication flow run terminated. Each exit
// path of the state machine surfaces exactly one of these.
type FailReason string

const (
	// ReasonUnexpectedHost: the entry redirect chain did not land on the
	// known identity-provider host.
	ReasonUnexpectedHost FailReason = "unexpected-host"
	// ReasonNoLoginForm: the provider page has no login form with the
	// configured element id.
	ReasonNoLoginForm FailReason = "no-login-form"
	// ReasonNoFormAction: the login form lacks a submission target.
	ReasonNoFormAction FailReason = "no-form-action"
	// ReasonLoginHTTPError: the credential POST returned a non-success status.
	ReasonLoginHTTPError FailReason = "login-http-error"
	// ReasonInvalidCredentials: the provider rejected the credentials and
	// rendered its feedback element.
	ReasonInvalidCredentials FailReason = "invalid-credentials"
	// ReasonNoPostBack: the credential POST succeeded but the response
	// carried neither a form_post payload nor a feedback element.
	ReasonNoPostBack FailReason = "no-post-back"
	// ReasonUnexpectedLanding: the post-back completed but did not land on
	// the authenticated dashboard.
	ReasonUnexpectedLanding FailReason = "unexpected-landing"
)

// FlowError is the terminal failure of one authentication flow run.
type FlowError struct {
	Reason FailReason
	Detail string
}

func (e *FlowError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("authentication flow failed: %s", e.Reason)
	}
	return fmt.Sprintf("authentication flow failed: %s: %s", e.Reason, e.Detail)
}

// AuthParams is the transient state captured from the initial redirect: the
// identity provider's query parameters and its login form's action URL. It
// lives for one flow run only.
type AuthParams struct {
	// Query holds the provider URL's query parameters, scalar-collapsed:
	// a parameter present exactly once is stored as its single value;
	// repeats are comma-joined.
	Query map[string]string

	// FormAction is the login form's submission target.
	FormAction string

	// ProviderURL is the final URL of the redirect chain, used as the
	// Referer for the credential POST.
	ProviderURL string
}

// AuthFlow walks the portal's login redirect chain:
//
//	start -> params-acquired -> credentials-submitted -> authenticated
//
// with one terminal failure state. A flow value is good for one run.
type AuthFlow struct {
	client *Client
	cfg    *config.Config
	state  FlowState
}

// NewAuthFlow creates an authentication flow over the given client.
func NewAuthFlow(client *Client, cfg *config.Config) *AuthFlow {
	return &AuthFlow{
		client: client,
		cfg:    cfg,
		state:  FlowStart,
	}
}

// State reports the flow's current state.
func (f *AuthFlow) State() FlowState {
	return f.state
}

// Run executes the full flow with the given credentials. On success the
// client's jar holds the authenticated session tokens. Any failure is
// terminal for this run: protocol failures return a *FlowError with a
// distinct reason; transport failures return the underlying error.
func (f *AuthFlow) Run(ctx context.Context, creds Credentials) error {
	params, err := f.acquireParams(ctx)
	if err != nil {
		return err
	}
	f.state = FlowParamsAcquired

	slog.Debug("auth parameters acquired",
		"form_action", params.FormAction,
		"query_params", len(params.Query),
	)

	finalURL, err := f.submitCredentials(ctx, params, creds)
	if err != nil {
		return err
	}
	f.state = FlowCredentialsSubmitted

	if err := f.confirmLanding(finalURL); err != nil {
		return err
	}
	f.state = FlowAuthenticated

	slog.Info("authentication flow completed",
		"username", logsanitize.Sanitize(creds.Username),
		"landing", finalURL.String(),
	)
	return nil
}

// acquireParams follows the portal entry redirect chain to the identity
// provider and captures the login form target and query parameters.
func (f *AuthFlow) acquireParams(ctx context.Context) (*AuthParams, error) {
	finalURL, body, status, err := f.client.Get(ctx, f.cfg.Portal.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("portal entry request failed: %w", err)
	}

	if finalURL.Host != f.cfg.Portal.SSOHost {
		return nil, f.fail(ReasonUnexpectedHost,
			fmt.Sprintf("redirect chain ended at %q, want host %q (status %d)", finalURL, f.cfg.Portal.SSOHost, status))
	}

	doc, err := htmldoc.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse provider page: %w", err)
	}

	form := doc.FormByID(f.cfg.Portal.LoginFormID)
	if form == nil {
		return nil, f.fail(ReasonNoLoginForm,
			fmt.Sprintf("no form with id %q on provider page", f.cfg.Portal.LoginFormID))
	}

	action := form.Action()
	if action == "" {
		return nil, f.fail(ReasonNoFormAction, "login form has no action attribute")
	}
	// Relative actions resolve against the provider URL.
	if ref, perr := url.Parse(action); perr == nil {
		action = finalURL.ResolveReference(ref).String()
	}

	return &AuthParams{
		Query:       collapseQuery(finalURL.Query()),
		FormAction:  action,
		ProviderURL: finalURL.String(),
	}, nil
}

// submitCredentials POSTs the credential pair to the login form and, when
// the provider answers with a form_post payload, completes the post-back.
// Returns the final URL of the post-back response.
func (f *AuthFlow) submitCredentials(ctx context.Context, params *AuthParams, creds Credentials) (*url.URL, error) {
	form := url.Values{
		"username": {creds.Username},
		"password": {creds.Password},
		// Empty placeholder for the provider's alternate credential
		// selection mechanism (WebAuthn etc.); always blank for passwords.
		"credentialId": {""},
	}

	ssoOrigin := (&url.URL{Scheme: "https", Host: f.cfg.Portal.SSOHost}).String()
	if u, err := url.Parse(params.ProviderURL); err == nil {
		ssoOrigin = (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
	}

	// Redirects disabled so the raw form_post response can be inspected.
	_, body, status, err := f.client.PostForm(ctx, params.FormAction, form, false, map[string]string{
		"Referer": params.ProviderURL,
		"Origin":  ssoOrigin,
	})
	if err != nil {
		return nil, fmt.Errorf("credential submission failed: %w", err)
	}

	if status < 200 || status >= 300 {
		return nil, f.fail(ReasonLoginHTTPError, fmt.Sprintf("credential POST returned status %d", status))
	}

	doc, err := htmldoc.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse login response: %w", err)
	}

	postBack := doc.FirstForm()
	if postBack == nil || postBack.Action() == "" {
		// No form_post payload. An explicit feedback element means the
		// provider rejected the credentials; anything else is a protocol
		// surprise.
		if feedback, ok := doc.TextByClass(f.cfg.Portal.FeedbackClass); ok {
			return nil, f.fail(ReasonInvalidCredentials, logsanitize.Sanitize(feedback))
		}
		return nil, f.fail(ReasonNoPostBack, "login response carried no post-back form")
	}

	// Replay every field of the form_post payload to its action.
	fields := url.Values{}
	for name, value := range postBack.Inputs() {
		fields.Set(name, value)
	}

	finalURL, _, status, err := f.client.PostForm(ctx, postBack.Action(), fields, true, nil)
	if err != nil {
		return nil, fmt.Errorf("post-back submission failed: %w", err)
	}
	// Status is not load-bearing here: the landing check decides. Keep it
	// in the debug log for protocol archaeology.
	slog.Debug("post-back completed", "status", status, "final_url", finalURL.String())

	return finalURL, nil
}

// confirmLanding checks that the post-back ended on the authenticated
// dashboard: the portal host plus the dashboard path.
func (f *AuthFlow) confirmLanding(finalURL *url.URL) error {
	portalHost := f.cfg.PortalHost()
	if finalURL.Host != portalHost || !strings.Contains(finalURL.Path, f.cfg.Portal.DashboardPath) {
		return f.fail(ReasonUnexpectedLanding,
			fmt.Sprintf("post-back landed on %q, want host %q path containing %q",
				finalURL, portalHost, f.cfg.Portal.DashboardPath))
	}
	return nil
}

// fail moves the flow to its terminal failure state.
func (f *AuthFlow) fail(reason FailReason, detail string) error {
	f.state = FlowFailed
	slog.Warn("authentication flow failed", "reason", string(reason), "detail", detail)
	return &FlowError{Reason: reason, Detail: detail}
}

// collapseQuery scalar-collapses url.Values: single-valued parameters store
// their one value, repeats are comma-joined.
func collapseQuery(values url.Values) map[string]string {
	q := make(map[string]string, len(values))
	for key, vals := range values {
		q[key] = strings.Join(vals, ",")
	}
	return q
}
