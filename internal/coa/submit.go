package coa

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rgaerlan/attendctl/internal/config"
	"github.com/rgaerlan/attendctl/internal/identity"
	"github.com/rgaerlan/attendctl/internal/logsanitize"
	"github.com/rgaerlan/attendctl/internal/session"
)

// Submitter performs validate-then-commit submissions over a session that
// the lifecycle manager guarantees.
type Submitter struct {
	mgr *session.Manager
	cfg *config.Config
}

// NewSubmitter creates a submitter bound to a session manager.
func NewSubmitter(mgr *session.Manager, cfg *config.Config) *Submitter {
	return &Submitter{mgr: mgr, cfg: cfg}
}

// Submit runs the full protocol for one correction:
//
//  1. Precondition checks; no network on violation.
//  2. EnsureAuthenticated.
//  3. Resolve the employee id from the dashboard.
//  4. Validation POST; a non-success status rejects and the commit is never
//     attempted.
//  5. Commit POST with the identical payload; the response envelope decides
//     acceptance, with HTTP success as the ground truth when the body is
//     unparsable.
func (s *Submitter) Submit(ctx context.Context, req *Request) Outcome {
	if err := req.Validate(); err != nil {
		return Outcome{Status: TransportFailed, Reason: "precondition: " + err.Error()}
	}

	if err := s.mgr.EnsureAuthenticated(ctx); err != nil {
		return Outcome{Status: TransportFailed, Reason: "authentication: " + err.Error()}
	}

	client := s.mgr.Client()

	dashboard, err := client.FetchDashboard(ctx, s.cfg.Portal.DashboardPath)
	if err != nil {
		return Outcome{Status: TransportFailed, Reason: "dashboard fetch: " + err.Error()}
	}

	employeeID, ok := identity.Resolve(dashboard)
	if !ok {
		return Outcome{Status: TransportFailed, Reason: "precondition: employee id could not be resolved from the dashboard"}
	}

	body := buildPayload(req, employeeID)
	referer := client.Resolve(refererPage(s.cfg.COA.SavePath))

	slog.Info("submitting attendance correction",
		"date", req.Date,
		"time_in", req.TimeIn,
		"time_out", req.TimeOut,
		"employee_id", employeeID,
		"reason", logsanitize.Sanitize(req.Reason),
	)

	// Phase 1: validation (duplicate check). Side-effect free on the portal.
	respBody, status, err := client.PostJSON(ctx, s.cfg.COA.ValidatePath, body, referer)
	if err != nil {
		return Outcome{Status: TransportFailed, Reason: "validate call: " + err.Error()}
	}
	if status < 200 || status >= 300 {
		slog.Warn("validation rejected", "status", status)
		return Outcome{Status: Rejected, Reason: rejectionReason("validation", status, respBody)}
	}

	// Phase 2: commit with the identical payload.
	respBody, status, err = client.PostJSON(ctx, s.cfg.COA.SavePath, body, referer)
	if err != nil {
		return Outcome{Status: TransportFailed, Reason: "commit call: " + err.Error()}
	}
	if status < 200 || status >= 300 {
		slog.Warn("commit rejected", "status", status)
		return Outcome{Status: Rejected, Reason: rejectionReason("commit", status, respBody)}
	}

	return interpretCommitEnvelope(respBody)
}

// interpretCommitEnvelope decides acceptance from a committed response body.
// The portal's web methods wrap results in a top-level "d" field; acceptance
// is its presence and truthiness. An unparsable body on an HTTP success is
// accepted: the status code is the ground truth when content is ambiguous.
func interpretCommitEnvelope(body []byte) Outcome {
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		slog.Debug("commit response unparsable, trusting HTTP status", "error", err)
		return Outcome{Status: Accepted}
	}

	wrapper, present := envelope["d"]
	if !present || !truthy(wrapper) {
		return Outcome{Status: Rejected, Reason: "unexpected-response: commit envelope missing or falsy wrapper"}
	}
	return Outcome{Status: Accepted}
}

// truthy mirrors the portal's loose envelope semantics: null, false, zero,
// empty string, and empty containers are all falsy.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// rejectionReason summarizes a non-success phase response for the outcome.
func rejectionReason(phase string, status int, body []byte) string {
	detail := strings.TrimSpace(string(body))
	if len(detail) > 200 {
		detail = detail[:200] + "..."
	}
	if detail == "" {
		return fmt.Sprintf("%s returned status %d", phase, status)
	}
	return fmt.Sprintf("%s returned status %d: %s", phase, status, logsanitize.Sanitize(detail))
}

// refererPage derives the page URL the portal expects as Referer from a web
// method path, e.g. "CertificateOfAttendance.aspx/Save" ->
// "CertificateOfAttendance.aspx".
func refererPage(methodPath string) string {
	if i := strings.Index(methodPath, ".aspx"); i >= 0 {
		return methodPath[:i+len(".aspx")]
	}
	return methodPath
}
