package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-isatty"

	"github.com/dshills/sketchlink/internal/engine/history"
	"github.com/dshills/sketchlink/internal/httpapi"
	"github.com/dshills/sketchlink/internal/plugin/lua"
	"github.com/dshills/sketchlink/internal/session"
	"github.com/dshills/sketchlink/internal/studio"
	"github.com/dshills/sketchlink/internal/watcher"
)

// isTerminal reports whether v is an interactive terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// readInput returns the named file, or stdin when no file is given.
func readInput(e *env, args []string) (string, error) {
	switch len(args) {
	case 0:
		if isTerminal(e.stdin) {
			return "", fmt.Errorf("%w: no input file and stdin is a terminal", errUsage)
		}
		data, err := io.ReadAll(e.stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	case 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", errUsage
	}
}

// writeText writes s, adding a newline when s lacks one.
func writeText(w io.Writer, s string) {
	if strings.HasSuffix(s, "\n") {
		fmt.Fprint(w, s)
		return
	}
	fmt.Fprintln(w, s)
}

func newFlagSet(e *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet("sketchlink "+name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func newHistory(e *env, seed string) *history.History {
	return history.New(seed,
		history.WithQuietWindow(e.settings.History.QuietWindow),
		history.WithMaxEntries(e.settings.History.MaxEntries),
	)
}

func runEncode(_ context.Context, e *env, args []string) error {
	flags := newFlagSet(e, "encode")
	stats := flags.Bool("stats", false, "Report raw and token sizes on stderr")
	if err := flags.Parse(args); err != nil {
		return err
	}

	text, err := readInput(e, flags.Args())
	if err != nil {
		return err
	}
	codec := e.codec()
	fmt.Fprintln(e.stdout, codec.Encode(text))
	if *stats {
		st := codec.Stats(text)
		fmt.Fprintf(e.stderr, "raw %d bytes, token %d bytes (%.2fx)\n", st.RawBytes, st.TokenBytes, st.Ratio())
	}
	return nil
}

func runDecode(_ context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	codec := e.codec()

	var (
		text string
		err  error
	)
	if strings.Contains(args[0], "#") {
		text, err = codec.ParseLink(args[0])
	} else {
		text, err = codec.Decode(args[0])
	}
	if err != nil {
		return err
	}
	writeText(e.stdout, text)
	return nil
}

func runLink(_ context.Context, e *env, args []string) error {
	flags := newFlagSet(e, "link")
	base := flags.String("base", e.settings.Share.BaseURL, "Page the link points at")
	if err := flags.Parse(args); err != nil {
		return err
	}

	text, err := readInput(e, flags.Args())
	if err != nil {
		return err
	}
	link, err := e.codec().Link(*base, text)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, link)
	return nil
}

func runServe(ctx context.Context, e *env, args []string) error {
	flags := newFlagSet(e, "serve")
	addr := flags.String("addr", e.settings.Server.Addr, "Listen address")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		return errUsage
	}

	sessions := session.NewManager(session.Options{
		QuietWindow: e.settings.History.QuietWindow,
		MaxEntries:  e.settings.History.MaxEntries,
		MaxSessions: e.settings.Server.MaxSessions,
		Logger:      e.logger,
	})
	defer sessions.CloseAll()

	srv := httpapi.New(httpapi.Options{
		Sessions:     sessions,
		Codec:        e.codec(),
		BaseURL:      e.settings.Share.BaseURL,
		Logger:       e.logger,
		ReadTimeout:  e.settings.Server.ReadTimeout,
		WriteTimeout: e.settings.Server.WriteTimeout,
	})
	return srv.Run(ctx, *addr)
}

func runWatch(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	codec := e.codec()
	base := e.settings.Share.BaseURL
	printLink := func(text string) {
		link, err := codec.Link(base, text)
		if err != nil {
			e.logger.Error("link: %v", err)
			return
		}
		fmt.Fprintln(e.stdout, link)
	}

	doc := newHistory(e, string(data))
	defer doc.Close()

	w, err := watcher.New(path, doc,
		watcher.WithDebounce(e.settings.Watch.Debounce),
		watcher.WithLogger(e.logger),
		watcher.OnReload(func(r watcher.Reload) {
			if r.Err == nil && r.Changed {
				printLink(r.Text)
			}
		}),
	)
	if err != nil {
		return err
	}

	printLink(doc.Current())
	return w.Run(ctx)
}

func runEdit(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	path := args[0]

	seed := ""
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		seed = string(data)
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	doc := newHistory(e, seed)
	defer doc.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Follow changes made by other programs while the file exists.
	if err == nil {
		w, werr := watcher.New(path, doc,
			watcher.WithDebounce(e.settings.Watch.Debounce),
			watcher.WithLogger(e.logger),
		)
		if werr != nil {
			return werr
		}
		go w.Run(ctx)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("create terminal: %w", err)
	}

	// The screen owns the terminal; keep log lines off it.
	e.logger.Disable()
	defer e.logger.Enable()

	return studio.New(screen, doc, studio.Options{
		Path:    path,
		Codec:   e.codec(),
		BaseURL: e.settings.Share.BaseURL,
		Logger:  e.logger,
	}).Run(ctx)
}

func runScript(ctx context.Context, e *env, args []string) error {
	flags := newFlagSet(e, "script")
	docPath := flags.String("doc", "", "Document the script edits")
	write := flags.Bool("write", false, "Write the final text back to -doc")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() < 1 {
		return errUsage
	}
	script := flags.Arg(0)
	// Flags may follow the script path.
	if err := flags.Parse(flags.Args()[1:]); err != nil {
		return err
	}
	if flags.NArg() > 0 || (*write && *docPath == "") {
		return errUsage
	}

	seed := ""
	if *docPath != "" {
		data, err := os.ReadFile(*docPath)
		if err != nil {
			return err
		}
		seed = string(data)
	}

	doc := newHistory(e, seed)
	defer doc.Close()

	state := lua.NewState(
		lua.WithExecutionTimeout(e.settings.Script.Timeout),
		lua.WithOutput(e.stdout),
		lua.WithLogger(e.logger),
	)
	defer state.Close()
	lua.NewSketchModule(doc, e.codec(), e.settings.Share.BaseURL).Register(state)

	if err := state.DoFile(ctx, script); err != nil {
		return err
	}

	doc.Flush()
	if *write && doc.Current() != seed {
		return os.WriteFile(*docPath, []byte(doc.Current()), 0o644)
	}
	return nil
}
