// Package daemon orchestrates the long-running serve mode: a warm portal
// session, the Unix-socket tool dispatcher, and an optional HTTP status
// endpoint.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rgaerlan/attendctl/internal/coa"
	"github.com/rgaerlan/attendctl/internal/config"
	"github.com/rgaerlan/attendctl/internal/ipc"
	"github.com/rgaerlan/attendctl/internal/portal"
	"github.com/rgaerlan/attendctl/internal/session"
)

// Daemon coordinates the portal client, the session lifecycle manager, the
// submitter, and the listeners.
type Daemon struct {
	cfg        *config.Config
	client     *portal.Client
	sessionMgr *session.Manager
	submitter  *coa.Submitter
	ipcServer  *ipc.Server
	statusSrv  *statusServer
	started    time.Time
	now        func() time.Time

	// mu serializes tool handling: the portal client assumes one caller
	// at a time, and the portal itself has no use for parallel filings
	// from a single account.
	mu sync.Mutex
}

// New creates a daemon with all components initialized.
func New(cfg *config.Config) (*Daemon, error) {
	client, err := portal.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize portal client: %w", err)
	}

	creds := portal.Credentials{
		Username: cfg.Credentials.Username,
		Password: cfg.Credentials.Password,
	}
	sessionMgr := session.NewManager(client, cfg, creds)

	slog.Info("session manager initialized",
		"portal", cfg.Portal.BaseURL,
		"session_file", cfg.Session.File,
	)

	d := &Daemon{
		cfg:        cfg,
		client:     client,
		sessionMgr: sessionMgr,
		submitter:  coa.NewSubmitter(sessionMgr, cfg),
		now:        time.Now,
	}

	d.ipcServer = ipc.NewServer(cfg.Listen.Socket, d.handleToolRequest)

	slog.Info("IPC server initialized", "socket", cfg.Listen.Socket)

	if cfg.Listen.HTTP != "" {
		d.statusSrv = newStatusServer(cfg.Listen.HTTP, d)
		slog.Info("status endpoint initialized", "listen", cfg.Listen.HTTP)
	}

	return d, nil
}

// Run starts all daemon components and blocks until a shutdown signal is
// received.
func (d *Daemon) Run() error {
	slog.Info("starting attendance portal daemon")
	d.started = d.now()

	// Warm the session eagerly so the first tool request does not pay for
	// the full login flow. Failure here is logged but not fatal: the
	// portal may be briefly unreachable, and each request retries.
	warmCtx, cancel := context.WithTimeout(context.Background(), d.requestTimeout())
	if err := d.sessionMgr.EnsureAuthenticated(warmCtx); err != nil {
		slog.Warn("initial session warm-up failed", "error", err)
	}
	cancel()

	// Start IPC server synchronously to catch startup errors
	ctx := context.Background()
	if err := d.ipcServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start IPC server: %w", err)
	}

	// Start the status server in a goroutine (it blocks on ListenAndServe)
	httpErrCh := make(chan error, 1)
	if d.statusSrv != nil {
		go func() {
			if err := d.statusSrv.Start(); err != nil {
				httpErrCh <- err
			}
			close(httpErrCh)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-httpErrCh:
		if err != nil {
			slog.Error("status server failed to start", "error", err)
			if stopErr := d.ipcServer.Stop(); stopErr != nil {
				slog.Error("error stopping IPC server after status server failure", "error", stopErr)
			}
			return fmt.Errorf("status server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.ipcServer.Stop(); err != nil {
		slog.Error("error stopping IPC server", "error", err)
	}

	if d.statusSrv != nil {
		if err := d.statusSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("error stopping status server", "error", err)
		}
	}

	slog.Info("daemon shutdown complete")
	return nil
}

// handleToolRequest maps one IPC tool request onto a submission.
func (d *Daemon) handleToolRequest(ctx context.Context, req *ipc.ToolRequest) (*ipc.ToolResponse, error) {
	coaReq, err := requestFromTool(req, d.cfg, d.now())
	if err != nil {
		return &ipc.ToolResponse{
			Status:  ipc.StatusError,
			Message: err.Error(),
		}, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	submitCtx, cancel := context.WithTimeout(ctx, d.requestTimeout())
	defer cancel()

	outcome := d.submitter.Submit(submitCtx, coaReq)
	return responseFromOutcome(outcome), nil
}

// requestTimeout bounds one tool request end to end: a fresh login plus the
// two-phase submit is several round trips.
func (d *Daemon) requestTimeout() time.Duration {
	perCall := time.Duration(d.cfg.Portal.TimeoutSeconds) * time.Second
	return 6 * perCall
}

// requestFromTool builds the submission for a tool invocation. clock_in and
// clock_out default the date and time to "now"; apply_coa requires explicit
// arguments.
func requestFromTool(req *ipc.ToolRequest, cfg *config.Config, now time.Time) (*coa.Request, error) {
	reason := req.Reason
	if reason == "" {
		reason = cfg.COA.DefaultReason
	}
	category := req.Category
	if category == "" {
		category = cfg.COA.DefaultCategory
	}

	date := req.Date
	if date == "" {
		date = now.Format("2006-01-02")
	}

	switch req.Tool {
	case ipc.ToolApplyCOA:
		if req.Date == "" {
			return nil, fmt.Errorf("apply_coa requires a date")
		}
		return &coa.Request{
			Date:     req.Date,
			TimeIn:   req.TimeIn,
			TimeOut:  req.TimeOut,
			Reason:   reason,
			Category: category,
		}, nil

	case ipc.ToolClockIn:
		t := req.TimeIn
		if t == "" {
			t = now.Format("15:04")
		}
		return &coa.Request{
			Date:     date,
			TimeIn:   t,
			Reason:   reason,
			Category: category,
		}, nil

	case ipc.ToolClockOut:
		t := req.TimeOut
		if t == "" {
			t = now.Format("15:04")
		}
		return &coa.Request{
			Date:     date,
			TimeOut:  t,
			Reason:   reason,
			Category: category,
		}, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", req.Tool)
	}
}

// responseFromOutcome translates a submission outcome into the wire response.
func responseFromOutcome(o coa.Outcome) *ipc.ToolResponse {
	switch o.Status {
	case coa.Accepted:
		return &ipc.ToolResponse{Status: ipc.StatusOK, Message: "accepted"}
	case coa.Rejected:
		return &ipc.ToolResponse{Status: ipc.StatusRejected, Message: o.Reason}
	default:
		return &ipc.ToolResponse{Status: ipc.StatusError, Message: o.Reason}
	}
}
