// Command sentinel manages user accounts stored in a SQLite or PostgreSQL
// database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-sentinel"
	"github.com/goliatone/go-sentinel/eventmap"
)

type cliConfig struct {
	DSN     string `env:"SENTINEL_DSN" envDefault:"file:sentinel.db"`
	Verbose bool   `env:"SENTINEL_VERBOSE" envDefault:"false"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := cliConfig{}
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *glog.BaseLogger {
	if verbose {
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("sentinel"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
		)
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName("sentinel"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
}

func run(ctx context.Context, cfg cliConfig, name string, args []string) error {
	cmd, ok := commands[name]
	if !ok {
		usage()
		return fmt.Errorf("unknown command %q", name)
	}

	lgr := newLogger(cfg.Verbose)
	logger := lgr.GetLogger("sentinel")

	client, err := openClient(cfg, lgr.GetLogger("persistence"))
	if err != nil {
		return err
	}
	db := client.DB()
	defer db.Close()

	opts, err := sentinel.LoadOptions()
	if err != nil {
		return err
	}

	a := &app{
		client: client,
		db:     db,
		opts:   opts,
		logger: logger,
		store:  sentinel.NewRepositoryManager(db),
	}

	sink := eventmap.Sink(func(ctx context.Context, n eventmap.Normalized) error {
		lgr.GetLogger("events").Info(n.Verb, "object_id", n.ObjectID, "actor_id", n.ActorID)
		return nil
	}, eventmap.WithActorFallback("cli"))

	a.service, err = sentinel.NewService(a.store, opts,
		sentinel.WithLogger(logger),
		sentinel.WithEventSink(sink),
	)
	if err != nil {
		return err
	}

	ctx = sentinel.WithActor(ctx, sentinel.ActorRef{ID: "cli", Type: "system"})
	return cmd.run(ctx, a, args)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sentinel <command> [flags]")
	fmt.Fprintln(os.Stderr, "\ncommands:")
	for _, name := range commandNames() {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", name, commands[name].help)
	}
	fmt.Fprintln(os.Stderr, "\nenvironment: SENTINEL_DSN, SENTINEL_VERBOSE and the SENTINEL_* account options")
}
