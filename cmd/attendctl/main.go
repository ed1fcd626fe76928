package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/rgaerlan/attendctl/internal/coa"
	"github.com/rgaerlan/attendctl/internal/config"
	"github.com/rgaerlan/attendctl/internal/daemon"
	"github.com/rgaerlan/attendctl/internal/ipc"
	"github.com/rgaerlan/attendctl/internal/portal"
	"github.com/rgaerlan/attendctl/internal/session"
)

// Version information (set via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
)

// Submission flags (apply, clock-in, clock-out, call)
var (
	flagDate     string
	flagTimeIn   string
	flagTimeOut  string
	flagTime     string
	flagReason   string
	flagCategory string
)

// Exit codes
const (
	ExitSuccess  = 0
	ExitError    = 1
	ExitRejected = 2 // the portal refused the submission
	ExitConfig   = 3
)

var rootCmd = &cobra.Command{
	Use:   "attendctl",
	Short: "HR portal attendance automation",
	Long: `Automates certificate-of-attendance filings against the Sprout HR portal.

The portal authenticates through a Keycloak SSO provider; attendctl drives
that flow headlessly, persists the session cookies between runs, and submits
corrections through the portal's two-phase validate-then-save web methods.

Submissions run either directly (apply, clock-in, clock-out) or through a
long-running daemon that keeps the session warm (serve + call).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate and persist a fresh session",
	Long: `Run the full SSO authentication flow and persist the resulting session
cookies, replacing any saved session. Credentials come from the config file
or the ATTENDCTL_USERNAME / ATTENDCTL_PASSWORD environment variables.`,
	RunE: runLogin,
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "File a certificate of attendance",
	Long: `File a certificate of attendance for a date with an in time, an out
time, or both.

The filing is validated against existing records first; the commit only
happens when validation passes, and the same payload is sent to both phases.

Exit codes:
  0 = accepted
  1 = error (connectivity, authentication, bad arguments)
  2 = rejected by the portal`,
	RunE: runApply,
}

var clockInCmd = &cobra.Command{
	Use:   "clock-in",
	Short: "File a clock-in for today",
	Long: `File a certificate of attendance with a single In entry. The date and
time default to now.`,
	RunE: runClockIn,
}

var clockOutCmd = &cobra.Command{
	Use:   "clock-out",
	Short: "File a clock-out for today",
	Long: `File a certificate of attendance with a single Out entry. The date and
time default to now.`,
	RunE: runClockOut,
}

var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Dispatch a tool through a running daemon",
	Long: `Send one tool request to a running serve-mode daemon over its Unix
socket. Tools: apply_coa, clock_in, clock_out.

The daemon holds the credentials and the warm session; this command carries
only the submission arguments.`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the attendance daemon",
	Long: `Start the daemon that keeps an authenticated portal session warm and
dispatches tool requests received over a Unix socket. An optional HTTP
status endpoint is enabled via listen.http in the configuration.

This mode is typically run as a systemd service.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display version, commit hash, and build date.`,
	Run:   runVersion,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration file",
	Long: `Load and validate the configuration file without contacting the portal.

Exit codes:
  0 = Configuration is valid
  3 = Configuration error`,
	RunE: runCheckConfig,
}

// overrideExitCode is set by subcommands so main() can call os.Exit() after
// cobra finishes. This avoids calling os.Exit() inside RunE which would
// bypass deferred functions. -1 means "use default".
var overrideExitCode = -1

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "/etc/attendctl/config.yaml",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error) - overrides config file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (json, text) - overrides config file")

	applyCmd.Flags().StringVarP(&flagDate, "date", "d", "", "Date of the filing (YYYY-MM-DD)")
	applyCmd.Flags().StringVarP(&flagTimeIn, "in", "i", "", "Time in (HH:MM)")
	applyCmd.Flags().StringVarP(&flagTimeOut, "out", "o", "", "Time out (HH:MM)")
	applyCmd.Flags().StringVarP(&flagReason, "reason", "r", "", "Remarks (defaults to coa.default_reason)")
	applyCmd.Flags().StringVarP(&flagCategory, "type", "t", "", "Category label (defaults to coa.default_category)")
	_ = applyCmd.MarkFlagRequired("date")

	for _, c := range []*cobra.Command{clockInCmd, clockOutCmd} {
		c.Flags().StringVarP(&flagDate, "date", "d", "", "Date of the filing (defaults to today)")
		c.Flags().StringVar(&flagTime, "time", "", "Time of the entry (defaults to now)")
		c.Flags().StringVarP(&flagReason, "reason", "r", "", "Remarks (defaults to coa.default_reason)")
		c.Flags().StringVarP(&flagCategory, "type", "t", "", "Category label (defaults to coa.default_category)")
	}

	callCmd.Flags().StringVarP(&flagDate, "date", "d", "", "Date of the filing")
	callCmd.Flags().StringVarP(&flagTimeIn, "in", "i", "", "Time in (HH:MM)")
	callCmd.Flags().StringVarP(&flagTimeOut, "out", "o", "", "Time out (HH:MM)")
	callCmd.Flags().StringVarP(&flagReason, "reason", "r", "", "Remarks")
	callCmd.Flags().StringVarP(&flagCategory, "type", "t", "", "Category label")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(clockInCmd)
	rootCmd.AddCommand(clockOutCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	// If a subcommand set a specific exit code, use it.
	// This is done outside RunE so deferred functions run properly.
	if overrideExitCode >= 0 {
		os.Exit(overrideExitCode)
	}
}

// loadConfig loads the configuration and sets up logging. Commands other
// than check-config share this path.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	config.SetupLogging(&cfg.Log)

	return cfg, nil
}

// requireCredentials rejects direct portal commands without a principal.
func requireCredentials(cfg *config.Config) error {
	if cfg.Credentials.Username == "" || cfg.Credentials.Password == "" {
		return fmt.Errorf("credentials are required: set credentials in the config file or the ATTENDCTL_USERNAME and ATTENDCTL_PASSWORD environment variables")
	}
	return nil
}

// newManager builds the portal client and session manager for direct commands.
func newManager(cfg *config.Config) (*session.Manager, error) {
	client, err := portal.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize portal client: %w", err)
	}

	creds := portal.Credentials{
		Username: cfg.Credentials.Username,
		Password: cfg.Credentials.Password,
	}
	return session.NewManager(client, cfg, creds), nil
}

// commandTimeout bounds a direct command end to end.
func commandTimeout(cfg *config.Config) time.Duration {
	return 6 * time.Duration(cfg.Portal.TimeoutSeconds) * time.Second
}

// runLogin authenticates from scratch and persists the session
func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireCredentials(cfg); err != nil {
		return err
	}

	mgr, err := newManager(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout(cfg))
	defer cancel()

	if err := mgr.Login(ctx); err != nil {
		return err
	}

	fmt.Printf("Authenticated as %s; session saved to %s\n", cfg.Credentials.Username, cfg.Session.File)
	return nil
}

// runApply files one certificate of attendance directly
func runApply(cmd *cobra.Command, args []string) error {
	req := &coa.Request{
		Date:    flagDate,
		TimeIn:  flagTimeIn,
		TimeOut: flagTimeOut,
	}
	return submitDirect(req)
}

// runClockIn files a single In entry, defaulting to now
func runClockIn(cmd *cobra.Command, args []string) error {
	now := time.Now()
	req := &coa.Request{
		Date:   flagDate,
		TimeIn: flagTime,
	}
	if req.Date == "" {
		req.Date = now.Format("2006-01-02")
	}
	if req.TimeIn == "" {
		req.TimeIn = now.Format("15:04")
	}
	return submitDirect(req)
}

// runClockOut files a single Out entry, defaulting to now
func runClockOut(cmd *cobra.Command, args []string) error {
	now := time.Now()
	req := &coa.Request{
		Date:    flagDate,
		TimeOut: flagTime,
	}
	if req.Date == "" {
		req.Date = now.Format("2006-01-02")
	}
	if req.TimeOut == "" {
		req.TimeOut = now.Format("15:04")
	}
	return submitDirect(req)
}

// submitDirect runs one submission end to end without a daemon.
func submitDirect(req *coa.Request) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireCredentials(cfg); err != nil {
		return err
	}

	if req.Reason == "" {
		req.Reason = flagReason
	}
	if req.Reason == "" {
		req.Reason = cfg.COA.DefaultReason
	}
	if req.Category == "" {
		req.Category = flagCategory
	}
	if req.Category == "" {
		req.Category = cfg.COA.DefaultCategory
	}

	mgr, err := newManager(cfg)
	if err != nil {
		return err
	}
	submitter := coa.NewSubmitter(mgr, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout(cfg))
	defer cancel()

	outcome := submitter.Submit(ctx, req)
	return reportOutcome(outcome)
}

// reportOutcome prints a submission outcome and sets the exit code
func reportOutcome(o coa.Outcome) error {
	switch o.Status {
	case coa.Accepted:
		fmt.Println("accepted")
		return nil
	case coa.Rejected:
		fmt.Fprintf(os.Stderr, "rejected: %s\n", o.Reason)
		overrideExitCode = ExitRejected
		return nil
	default:
		return fmt.Errorf("%s", o.Reason)
	}
}

// runCall dispatches one tool request to a running daemon
func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tool := ipc.Tool(args[0])
	if !ipc.KnownTool(tool) {
		return fmt.Errorf("unknown tool %q (expected apply_coa, clock_in, or clock_out)", args[0])
	}

	client := ipc.NewClient(cfg.Listen.Socket)

	req := &ipc.ToolRequest{
		Tool:     tool,
		Date:     flagDate,
		TimeIn:   flagTimeIn,
		TimeOut:  flagTimeOut,
		Reason:   flagReason,
		Category: flagCategory,
	}

	resp, err := client.Call(context.Background(), req)
	if err != nil {
		return err
	}

	switch resp.Status {
	case ipc.StatusOK:
		fmt.Println("accepted")
		return nil
	case ipc.StatusRejected:
		fmt.Fprintf(os.Stderr, "rejected: %s\n", resp.Message)
		overrideExitCode = ExitRejected
		return nil
	default:
		return fmt.Errorf("%s", resp.Message)
	}
}

// runServe starts the daemon
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireCredentials(cfg); err != nil {
		return err
	}

	slog.Info("starting attendctl daemon",
		"version", version,
		"commit", commit,
		"build_date", buildDate,
		"config", configFile,
	)

	d, err := daemon.New(cfg)
	if err != nil {
		slog.Error("failed to create daemon", "error", err)
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	return d.Run()
}

// runVersion displays version information
func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("attendctl version %s\n", version)
	fmt.Printf("  Commit:     %s\n", commit)
	fmt.Printf("  Build date: %s\n", buildDate)
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

// runCheckConfig validates the configuration
func runCheckConfig(cmd *cobra.Command, args []string) error {
	fmt.Printf("Checking configuration: %s\n\n", configFile)

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed:\n")
		fmt.Fprintf(os.Stderr, "   %v\n", err)
		overrideExitCode = ExitConfig
		return nil // exit code handled via overrideExitCode
	}

	fmt.Println("Configuration is valid")
	fmt.Println()
	fmt.Println("Configuration summary:")
	fmt.Printf("  Portal:          %s\n", cfg.Portal.BaseURL)
	fmt.Printf("  SSO host:        %s\n", cfg.Portal.SSOHost)
	fmt.Printf("  Dashboard:       %s\n", cfg.Portal.DashboardPath)
	fmt.Printf("  Session file:    %s\n", cfg.Session.File)
	fmt.Printf("  Validate path:   %s\n", cfg.COA.ValidatePath)
	fmt.Printf("  Save path:       %s\n", cfg.COA.SavePath)
	fmt.Printf("  Unix socket:     %s\n", cfg.Listen.Socket)
	fmt.Printf("  HTTP status:     %s\n", orDisabled(cfg.Listen.HTTP))
	fmt.Printf("  Log level:       %s\n", cfg.Log.Level)
	fmt.Printf("  Log format:      %s\n", cfg.Log.Format)

	if cfg.Credentials.Username != "" {
		fmt.Printf("\n  Username:        %s\n", cfg.Credentials.Username)
	} else {
		fmt.Println("\n  Username:        [NOT SET] (set ATTENDCTL_USERNAME)")
	}
	if cfg.Credentials.Password != "" {
		fmt.Println("  Password:        [SET]")
	} else {
		fmt.Println("  Password:        [NOT SET] (set ATTENDCTL_PASSWORD)")
	}

	return nil
}

func orDisabled(addr string) string {
	if addr == "" {
		return "disabled"
	}
	return addr
}
