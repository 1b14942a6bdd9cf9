// Package cli is the tasksparkle command-line front end.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/dukerupert/tasksparkle/internal/api"
	"github.com/dukerupert/tasksparkle/internal/backup"
	"github.com/dukerupert/tasksparkle/internal/config"
	"github.com/dukerupert/tasksparkle/internal/database"
	"github.com/dukerupert/tasksparkle/internal/logging"
	"github.com/dukerupert/tasksparkle/internal/session"
	"github.com/dukerupert/tasksparkle/internal/store"
	"github.com/dukerupert/tasksparkle/internal/taskstatus"
	"github.com/dukerupert/tasksparkle/internal/tracker"
)

// ErrNotLoggedIn is returned by commands that need a session when there
// is none.
var ErrNotLoggedIn = errors.New("not logged in; run 'tasksparkle login' first")

// App holds the wired components for one invocation.
type App struct {
	out    io.Writer
	in     *bufio.Reader
	stdin  io.Reader
	logger *slog.Logger

	db       *sql.DB
	sessions *session.Store
	tracker  *tracker.Service
	statuses *taskstatus.Cache
	backups  *backup.Manager
	apiURL   string
}

// Streams are the process's standard streams.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Main parses global flags, wires the application and runs one command.
// It returns the process exit code.
func Main(ctx context.Context, args []string, streams Streams) int {
	app, rest, err := setup(args, streams)
	if err != nil {
		fmt.Fprintf(streams.Err, "error: %s\n", describeError(err))
		return 2
	}
	if app == nil {
		return 0
	}
	defer app.db.Close()

	if err := app.Root().Execute(ctx, streams.Out, rest); err != nil {
		fmt.Fprintf(streams.Err, "error: %s\n", describeError(err))
		return 1
	}
	return 0
}

type globalFlags struct {
	configPath string
	apiURL     string
	dbPath     string
	logLevel   string
	logFormat  string
}

func parseGlobalFlags(args []string) (*globalFlags, *pflag.FlagSet, error) {
	g := &globalFlags{}
	fs := pflag.NewFlagSet("tasksparkle", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)
	fs.StringVar(&g.configPath, "config", "", "YAML config file")
	fs.StringVar(&g.apiURL, "api-url", "", "backend base URL")
	fs.StringVar(&g.dbPath, "db", "", "local state database path")
	fs.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&g.logFormat, "log-format", "", "log format: text or json")
	err := fs.Parse(args)
	return g, fs, err
}

func setup(args []string, streams Streams) (*App, []string, error) {
	g, fs, err := parseGlobalFlags(args)
	if err == pflag.ErrHelp || (err == nil && len(fs.Args()) == 0) {
		fmt.Fprintf(streams.Out, "Global flags:\n%s\n", fs.FlagUsages())
		(&App{}).Root().PrintHelp(streams.Out)
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.apiURL != "" {
		cfg.APIURL = g.apiURL
	}
	if g.dbPath != "" {
		cfg.DBPath = g.dbPath
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.logFormat != "" {
		cfg.LogFormat = g.logFormat
	}

	app, err := New(cfg, streams)
	if err != nil {
		return nil, nil, err
	}
	return app, fs.Args(), nil
}

// New opens the state database and wires every component from cfg. The
// persisted session is restored before returning.
func New(cfg *config.Config, streams Streams) (*App, error) {
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat, streams.Err)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	var kv store.KV = store.NewSQLiteKV(db)
	if cfg.Passphrase != "" {
		sealed, err := store.NewSealedKV(kv, cfg.Passphrase)
		if err != nil {
			db.Close()
			return nil, err
		}
		kv = sealed
	}

	sess := session.New()
	client := api.New(cfg.APIURL, sess, api.WithLogger(logger.With("component", "api")))
	sessions := session.NewStore(kv, client, sess, logger.With("component", "session"))
	sessions.Restore()

	statuses := taskstatus.NewCache(kv, logger.With("component", "taskstatus"))
	svc := tracker.New(client, statuses, tracker.Config{
		DonePoints:   cfg.Points.Done,
		MissedPoints: cfg.Points.Missed,
		IdlePenalty:  cfg.Points.Idle,
	}, logger.With("component", "tracker"))

	backups := backup.NewManager(cfg.Backup, cfg.DBPath, db, store.NewBackupStore(db), logger.With("component", "backup"))

	in := streams.In
	if in == nil {
		in = strings.NewReader("")
	}
	return &App{
		out:      streams.Out,
		in:       bufio.NewReader(in),
		stdin:    in,
		logger:   logger,
		db:       db,
		sessions: sessions,
		tracker:  svc,
		statuses: statuses,
		backups:  backups,
		apiURL:   cfg.APIURL,
	}, nil
}

// authed wraps a Run function so it fails with ErrNotLoggedIn when there
// is no session.
func (a *App) authed(run func(ctx context.Context, args []string) error) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		if !a.sessions.Session().Authenticated() {
			return ErrNotLoggedIn
		}
		return run(ctx, args)
	}
}

// confirm asks a yes/no question on the output stream. Only y, yes, s and
// sim accept.
func (a *App) confirm(question string) bool {
	fmt.Fprintf(a.out, "%s [y/N] ", question)
	line, _ := a.in.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes" || answer == "s" || answer == "sim"
}

func (a *App) prompt(label string) string {
	fmt.Fprintf(a.out, "%s: ", label)
	line, _ := a.in.ReadString('\n')
	return strings.TrimSpace(line)
}

// readSecret prompts for a secret. On a terminal echo is disabled; any
// other input is read as a plain line.
func (a *App) readSecret(label string) (string, error) {
	f, ok := a.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return a.prompt(label), nil
	}

	fmt.Fprintf(a.out, "%s: ", label)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(a.out)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return string(b), nil
}

// secretInput resolves a secret from, in order: an explicit value, a file
// (where "-" means prompt), and an interactive prompt.
func (a *App) secretInput(value, file, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	if file != "" && file != "-" {
		return readSecretFile(file)
	}
	return a.readSecret(label)
}

// readSecretFile reads a secret from path, stripping trailing newlines.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

func parseID(what, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

func parseDay(s string) (taskstatus.Day, error) {
	if s == "" {
		return taskstatus.Today(), nil
	}
	return taskstatus.ParseDay(s)
}

func wantArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

// describeError renders err for the terminal. Connectivity problems print
// their remediation text.
func describeError(err error) string {
	var ce *api.ConnectivityError
	if errors.As(err, &ce) {
		return ce.Diagnostic
	}
	var me *api.MalformedResponseError
	if errors.As(err, &me) {
		return "the server sent a response that could not be read; check that the API URL points at the TaskSparkle backend"
	}
	return err.Error()
}
