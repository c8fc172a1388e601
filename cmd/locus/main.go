// Command locus inspects and reads local files, HTTP(S) resources and S3
// objects through the locus Location layer.
//
// Usage:
//
//	locus [-config file] [-v] <command> [flags] <location>...
//
// Commands:
//
//	stat  print metadata for each location as JSON lines
//	ls    list the entries of a local directory
//	read  copy a byte range of a resource to stdout
//	cat   copy a resource to stdout, decompressing .gz/.zst/.lz4
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pithecene-io/locus/internal/config"
	"github.com/pithecene-io/locus/internal/logger"
	"github.com/pithecene-io/locus/locus"
	"github.com/pithecene-io/locus/locus/location"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// env is what every command needs to resolve and open Locations.
type env struct {
	log    *logger.Logger
	opts   []location.Option
	stdout io.Writer
	stderr io.Writer
}

func (e *env) location(path string) (*location.Location, error) {
	return location.New(path, e.opts...)
}

type command func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{
	"stat": runStat,
	"ls":   runList,
	"read": runRead,
	"cat":  runCat,
}

var errUsage = errors.New("usage")

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("locus", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/locus/config.yaml)")
	verbose := fs.Bool("v", false, "Log at debug level")
	fs.Usage = func() {
		_, _ = fmt.Fprintln(stderr, "usage: locus [-config file] [-v] <stat|ls|read|cat> [flags] <location>...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "locus: unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "locus: %v\n", err)
		return 1
	}
	if *verbose {
		cfg.Logging.Level = "DEBUG"
	}

	e, err := newEnv(cfg, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "locus: %v\n", err)
		return 1
	}
	defer func() { _ = e.log.Close() }()

	if err := cmd(ctx, e, fs.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		e.log.Error("command failed", "command", fs.Arg(0), "error", err)
		_, _ = fmt.Fprintf(stderr, "locus %s: %v\n", fs.Arg(0), err)
		return 1
	}
	return 0
}

func newEnv(cfg *config.Config, stdout, stderr io.Writer) (*env, error) {
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	doer := config.NewDoer(cfg, log.Logger)
	s3cfg, err := config.NewS3Config(cfg, doer, log.Logger)
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	return &env{
		log: log,
		opts: []location.Option{
			location.WithRegistry(config.NewRegistry(cfg)),
			location.WithDoer(doer),
			location.WithS3Config(s3cfg),
			location.WithHandleOptions(
				locus.WithBufferSize(cfg.Handle.BufferSize),
				locus.WithLogger(log.Logger),
			),
		},
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// newFlags returns a flag set for a subcommand that writes to stderr.
func newFlags(e *env, name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(e.stderr, "usage: locus %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}
