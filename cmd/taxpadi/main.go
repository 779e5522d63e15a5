package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"taxpadi-client/internal/auth"
	"taxpadi-client/internal/client"
	"taxpadi-client/internal/config"
	"taxpadi-client/internal/db"
)

const usage = `Usage: taxpadi [flags] <command>

Commands:
  chat      talk to the TaxPadi assistant
  onboard   create an account
  login     sign in with email and password
  logout    sign out and forget stored tokens
  whoami    show the signed-in user

Flags:
`

// options are the global command-line flags; empty values fall back to config
type options struct {
	APIURL  string
	DBPath  string
	LogFile string
	Timeout time.Duration
	Command string
	Args    []string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("taxpadi", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.APIURL, "api", "", "API base URL (env TAXPADI_API_URL)")
	fs.StringVar(&opts.DBPath, "db", "", "local database path (env DB_PATH)")
	fs.StringVar(&opts.LogFile, "log", "", `log file, "-" for stderr (env LOG_FILE)`)
	fs.DurationVar(&opts.Timeout, "timeout", 0, "request timeout (env TAXPADI_API_TIMEOUT)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return options{}, errors.New("command required")
	}
	opts.Command = fs.Arg(0)
	opts.Args = fs.Args()[1:]

	switch opts.Command {
	case "chat", "onboard", "login", "logout", "whoami":
	default:
		fs.Usage()
		return options{}, fmt.Errorf("unknown command %q", opts.Command)
	}

	return opts, nil
}

// applyFlags overrides config values with explicitly set flags
func applyFlags(cfg *config.Config, opts options) {
	if opts.APIURL != "" {
		cfg.APIURL = opts.APIURL
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	if opts.LogFile != "" {
		cfg.LogFile = opts.LogFile
	}
	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
	}
}

// setupLogging sends the standard logger to the log file so it never
// interleaves with the interactive terminal
func setupLogging(path string) (io.Closer, error) {
	if path == "-" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(f)
	return f, nil
}

// app holds the wired dependencies shared by every command
type app struct {
	cfg    *config.Config
	db     *db.DB
	tokens *auth.Tokens
	api    *client.Client
	auth   *auth.Manager
	term   *terminal
}

func newApp(cfg *config.Config, in io.Reader, out io.Writer) (*app, error) {
	database, err := db.NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	tokens := auth.NewTokens(database)
	api := client.NewClient(cfg.APIURL, tokens, client.WithTimeout(cfg.Timeout))

	return &app{
		cfg:    cfg,
		db:     database,
		tokens: tokens,
		api:    api,
		auth:   auth.NewManager(api, tokens),
		term:   newTerminal(in, out),
	}, nil
}

func (a *app) Close() error {
	a.auth.StopRefresh()
	return a.db.Close()
}

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	if err := a.auth.Initialize(ctx); err != nil {
		log.Printf("[CLI] Stored session could not be restored err=%v", err)
	}
	if a.auth.State().IsAuthenticated {
		a.auth.StartRefresh(ctx, a.cfg.RefreshInterval)
	}

	switch command {
	case "chat":
		return a.runChat(ctx)
	case "onboard":
		return a.runOnboard(ctx)
	case "login":
		return a.runLogin(ctx, args)
	case "logout":
		return a.runLogout(ctx)
	case "whoami":
		return a.runWhoami()
	}
	return fmt.Errorf("unknown command %q", command)
}

func run(args []string, in io.Reader, out, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "taxpadi:", err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "taxpadi: failed to load config:", err)
		return 1
	}
	applyFlags(cfg, opts)

	logCloser, err := setupLogging(cfg.LogFile)
	if err != nil {
		fmt.Fprintln(stderr, "taxpadi:", err)
		return 1
	}
	defer logCloser.Close()

	log.Printf("[CLI] Starting command=%s api=%s db=%s", opts.Command, cfg.APIURL, cfg.DBPath)

	a, err := newApp(cfg, in, out)
	if err != nil {
		fmt.Fprintln(stderr, "taxpadi:", err)
		return 1
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.dispatch(ctx, opts.Command, opts.Args); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return 0
		}
		log.Printf("[CLI] Command failed command=%s err=%v", opts.Command, err)
		fmt.Fprintln(stderr, "taxpadi:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
