// Package main is the entry point for the sketchlink command.
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

	"github.com/dshills/sketchlink/internal/config"
	"github.com/dshills/sketchlink/internal/logging"
	"github.com/dshills/sketchlink/internal/share"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitCorrupt = 2
)

// errUsage marks errors caused by bad command-line input.
var errUsage = errors.New("usage")

// env is the process surface a command runs against.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	settings config.Settings
	logger   *logging.Logger
}

func (e *env) codec() *share.Codec {
	return share.NewCodec(
		share.WithMaxFragmentLength(e.settings.Share.MaxFragmentLength),
		share.WithMaxDecodedSize(e.settings.Share.MaxDecodedSize),
		share.WithLogger(e.logger),
	)
}

type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = []command{
	{"encode", "[file]", "print the share token for a file or stdin", runEncode},
	{"decode", "<token|link>", "print the text a token or link carries", runDecode},
	{"link", "[file]", "print a share link for a file or stdin", runLink},
	{"serve", "", "run the HTTP and WebSocket API", runServe},
	{"watch", "<file>", "print a fresh share link whenever a file changes", runWatch},
	{"edit", "<file>", "edit a file in the terminal studio", runEdit},
	{"script", "<file.lua>", "run a Lua script against a document", runScript},
	{"version", "", "print version information", runVersion},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sketchlink", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to configuration file (.toml or .yaml)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitError
	}

	name := fs.Arg(0)
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", name)
		fs.Usage()
		return exitError
	}

	opts := []config.Option{config.WithFile(*configPath)}
	if *logLevel != "" {
		opts = append(opts, config.WithOverride("logging.level", *logLevel))
	}
	settings, err := config.Load(opts...)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	e := &env{
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		settings: settings,
		logger: logging.New(logging.Config{
			Level:  settings.Logging.Level,
			Output: stderr,
			Prefix: "sketchlink",
		}),
	}

	err = cmd.run(ctx, e, fs.Args()[1:])
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "Usage: sketchlink %s %s\n", cmd.name, cmd.args)
		return exitError
	case name == "decode" && errors.Is(err, share.ErrCorruptFragment):
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCorrupt
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintf(w, "sketchlink - shareable diagram sources with undo history\n\n")
	fmt.Fprintf(w, "Usage: sketchlink [options] <command> [args]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %-14s %s\n", c.name, c.args, c.summary)
	}
	fmt.Fprintf(w, "\nOptions:\n")
	fs.PrintDefaults()
}

func runVersion(_ context.Context, e *env, args []string) error {
	if len(args) > 0 {
		return errUsage
	}
	fmt.Fprintf(e.stdout, "sketchlink %s\n", version)
	fmt.Fprintf(e.stdout, "Commit: %s\n", commit)
	fmt.Fprintf(e.stdout, "Built: %s\n", date)
	return nil
}
