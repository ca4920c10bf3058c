// cargamon is a terminal companion for the loading-plant backend: it logs in,
// lists orders and alarms, and watches the live temperature, density and
// flow-rate telemetry of a loading, optionally mirroring it to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/farouk15160/cargamon/internal/api"
	"github.com/farouk15160/cargamon/internal/auth"
	"github.com/farouk15160/cargamon/internal/config"
)

const usage = `Usage: cargamon [global flags] <command> [command flags]

Commands:
  login    store a session token obtained with username and password
  logout   forget the stored session token
  whoami   show who the stored token belongs to
  orders   list orders, show one with --number or --id, or submit one with --create
  alarms   list alarms, or acknowledge one with --accept
  watch    stream live telemetry until interrupted

Global flags:
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *auth.TokenStore
	stdin  io.Reader
	stdout io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	configPath := configPathFromArgs(args)
	if configPath == "" {
		configPath = os.Getenv("CARGAMON_CONFIG")
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet("cargamon", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringP("config", "c", configPath, "YAML configuration file")
	config.BindFlags(flagSet, cfg)
	flagSet.Usage = func() {
		fmt.Fprint(stderr, usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  auth.NewTokenStore(config.ExpandPath(cfg.Auth.TokenFile)),
		stdin:  stdin,
		stdout: stdout,
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		flagSet.Usage()
		return errors.New("no command given")
	}
	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "login":
		return a.login(ctx, cmdArgs)
	case "logout":
		return a.logout()
	case "whoami":
		return a.whoami(ctx)
	case "orders":
		return a.orders(ctx, cmdArgs)
	case "alarms":
		return a.alarms(ctx, cmdArgs)
	case "watch":
		return a.watch(ctx, cmdArgs)
	default:
		flagSet.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// configPathFromArgs finds --config/-c ahead of full flag parsing, since
// the file supplies the defaults the other flags override.
func configPathFromArgs(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--":
			return ""
		case arg == "--config" || arg == "-c":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		case !strings.HasPrefix(arg, "-"):
			// Global flags end at the command name.
			if i == 0 || !flagTakesValue(args[i-1]) {
				return ""
			}
		}
	}
	return ""
}

// flagTakesValue reports whether a global flag consumes the next argument.
func flagTakesValue(arg string) bool {
	if strings.Contains(arg, "=") || !strings.HasPrefix(arg, "-") {
		return false
	}
	switch strings.TrimLeft(arg, "-") {
	case "debug", "v", "help", "h":
		return false
	}
	return true
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
}

// token returns the explicit token if one was given, else the stored one.
func (a *app) token() (string, error) {
	if a.cfg.Auth.Token != "" {
		return a.cfg.Auth.Token, nil
	}
	return a.store.Load()
}

// apiClient returns a client using the current token. When requireToken
// is set a missing or expired token is an error.
func (a *app) apiClient(requireToken bool) (*api.Client, error) {
	token, err := a.token()
	if err != nil {
		return nil, err
	}
	if requireToken {
		if token == "" {
			return nil, errors.New("not logged in: run 'cargamon login' or pass --token")
		}
		if claims, err := auth.Inspect(token); err == nil && claims.Expired(time.Now()) {
			return nil, fmt.Errorf("session token expired at %s: run 'cargamon login'", claims.ExpiresAt.Format(time.RFC3339))
		}
	}
	return api.NewClient(api.ClientConfig{
		BaseURL: a.cfg.API.BaseURL,
		Token:   token,
		Timeout: a.cfg.API.Timeout,
		Logger:  a.logger,
	})
}
