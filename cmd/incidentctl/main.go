// Command incidentctl is the command line console for the incident API.
//
// Usage:
//
//	incidentctl [-config file] <command> [flags] [args]
//
// Commands: list, show, create, advance, update, postmortem, catalog, token, version.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bissquit/incident-console/internal/config"
	"github.com/bissquit/incident-console/internal/console"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

// env bundles what every command needs.
type env struct {
	cfg    *config.Config
	client *console.Client
	drafts console.DraftStore
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"list":       {"list incidents matching filters", runList},
	"show":       {"show one incident", runShow},
	"create":     {"create an incident from a YAML form", runCreate},
	"advance":    {"move an incident to its next status", runAdvance},
	"update":     {"post an update to an incident", runUpdate},
	"postmortem": {"save a postmortem draft from a YAML file", runPostmortem},
	"catalog":    {"export the field catalog", runCatalog},
	"token":      {"issue a bearer token for an actor", runToken},
	"version":    {"print the version", runVersion},
}

var commandOrder = []string{"list", "show", "create", "advance", "update", "postmortem", "catalog", "token", "version"}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("incidentctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("INCIDENT_CONFIG"), "path to YAML config file")
	logLevel := fs.String("log-level", "warn", "log level: debug, info, warn, error")
	fs.Usage = func() { usage(stderr) }

	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		usage(stderr)
		return errUsage
	}

	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", fs.Arg(0))
		usage(stderr)
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	drafts, closeDrafts := newDraftStore(cfg.Console)
	defer closeDrafts()

	e := &env{
		cfg: cfg,
		client: console.NewClient(console.ClientConfig{
			BaseURL:   cfg.Console.APIURL,
			Token:     cfg.Console.Token,
			Timeout:   cfg.Console.Timeout,
			RateLimit: cfg.Console.RateLimit,
			Burst:     cfg.Console.Burst,
		}),
		drafts: drafts,
		stdout: stdout,
		stderr: stderr,
	}
	return cmd.run(ctx, e, fs.Args()[1:])
}

func newDraftStore(cfg config.ConsoleConfig) (console.DraftStore, func()) {
	if cfg.DraftStore != config.DraftStoreRedis {
		return console.NewMemoryDraftStore(), func() {}
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := console.NewRedisDraftStore(client, console.RedisDraftConfig{
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       cfg.Redis.TTL,
	})
	return store, func() {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: incidentctl [-config file] [-log-level level] <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-11s %s\n", name, commands[name].summary)
	}
}
