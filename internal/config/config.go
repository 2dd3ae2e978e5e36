// Package config loads sketchlink settings.
//
// Settings are layered: built-in defaults, then an optional TOML or YAML
// file, then SKETCHLINK_* environment variables. The merged map is read
// into a typed Settings value.
//
//	s, err := config.Load(config.WithFile("sketchlink.toml"))
//	if err != nil {
//	    return err
//	}
//	h := history.New(seed, history.WithQuietWindow(s.History.QuietWindow))
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dshills/sketchlink/internal/config/loader"
	"github.com/dshills/sketchlink/internal/engine/history"
	"github.com/dshills/sketchlink/internal/logging"
	"github.com/dshills/sketchlink/internal/share"
)

// Settings is the typed view of the merged configuration.
type Settings struct {
	History HistorySettings
	Share   ShareSettings
	Server  ServerSettings
	Watch   WatchSettings
	Script  ScriptSettings
	Logging LoggingSettings
}

// HistorySettings configures undo histories.
type HistorySettings struct {
	QuietWindow time.Duration
	MaxEntries  int
}

// ShareSettings configures share links.
type ShareSettings struct {
	BaseURL           string
	MaxFragmentLength int
	MaxDecodedSize    int64
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Addr         string
	MaxSessions  int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WatchSettings configures the file watcher.
type WatchSettings struct {
	Debounce time.Duration
}

// ScriptSettings configures Lua scripts.
type ScriptSettings struct {
	Timeout time.Duration
}

// LoggingSettings configures the logger.
type LoggingSettings struct {
	Level logging.Level
}

// Defaults returns the built-in configuration as a nested map.
func Defaults() map[string]any {
	return map[string]any{
		"history": map[string]any{
			"quietWindow": history.DefaultQuietWindow.String(),
			"maxEntries":  int64(history.DefaultMaxEntries),
		},
		"share": map[string]any{
			"baseURL":           "http://localhost:8080/",
			"maxFragmentLength": int64(share.DefaultMaxFragmentLength),
			"maxDecodedSize":    int64(share.DefaultMaxDecodedSize),
		},
		"server": map[string]any{
			"addr":         ":8080",
			"maxSessions":  int64(256),
			"readTimeout":  "15s",
			"writeTimeout": "15s",
		},
		"watch": map[string]any{
			"debounce": "100ms",
		},
		"script": map[string]any{
			"timeout": "5s",
		},
		"logging": map[string]any{
			"level": "info",
		},
	}
}

// Default returns the built-in settings.
func Default() Settings {
	s, err := FromMap(Defaults())
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return s
}

type options struct {
	path      string
	fs        loader.FileSystem
	env       bool
	envPrefix string
	overrides map[string]any
}

// Option configures Load.
type Option func(*options)

// WithFile adds a configuration file. Missing files are ignored.
func WithFile(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithFileSystem sets the file system used to read the configuration file.
func WithFileSystem(fsys loader.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// WithEnv enables or disables the environment layer.
func WithEnv(enable bool) Option {
	return func(o *options) {
		o.env = enable
	}
}

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}

// WithOverride sets a value above every other layer, as command-line flags do.
func WithOverride(path string, value any) Option {
	return func(o *options) {
		if o.overrides == nil {
			o.overrides = make(map[string]any)
		}
		loader.SetByPath(o.overrides, path, value)
	}
}

// Load merges defaults, the file, the environment and overrides, then
// validates the result.
func Load(opts ...Option) (Settings, error) {
	o := options{
		fs:        loader.DefaultFS(),
		env:       true,
		envPrefix: loader.DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(&o)
	}

	merged := Defaults()

	if o.path != "" {
		fileConfig, err := loader.ForPath(o.fs, o.path).Load()
		if err != nil {
			return Settings{}, err
		}
		merged = loader.DeepMerge(merged, fileConfig)
	}

	if o.env {
		envConfig, err := loader.NewEnvLoader(o.envPrefix).Load()
		if err != nil {
			return Settings{}, fmt.Errorf("loading environment: %w", err)
		}
		merged = loader.DeepMerge(merged, envConfig)
	}

	merged = loader.DeepMerge(merged, o.overrides)

	s, err := FromMap(merged)
	if err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// FromMap reads settings from a merged configuration map. Paths missing
// from m keep their defaults.
func FromMap(m map[string]any) (Settings, error) {
	r := reader{data: m}
	var s Settings

	s.History.QuietWindow = r.duration("history.quietWindow", history.DefaultQuietWindow)
	s.History.MaxEntries = r.int("history.maxEntries", history.DefaultMaxEntries)

	s.Share.BaseURL = r.string("share.baseURL", "http://localhost:8080/")
	s.Share.MaxFragmentLength = r.int("share.maxFragmentLength", share.DefaultMaxFragmentLength)
	s.Share.MaxDecodedSize = int64(r.int("share.maxDecodedSize", share.DefaultMaxDecodedSize))

	s.Server.Addr = r.string("server.addr", ":8080")
	s.Server.MaxSessions = r.int("server.maxSessions", 256)
	s.Server.ReadTimeout = r.duration("server.readTimeout", 15*time.Second)
	s.Server.WriteTimeout = r.duration("server.writeTimeout", 15*time.Second)

	s.Watch.Debounce = r.duration("watch.debounce", 100*time.Millisecond)
	s.Script.Timeout = r.duration("script.timeout", 5*time.Second)

	level := r.string("logging.level", "info")
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "warning", "error":
		s.Logging.Level = logging.ParseLevel(level)
	default:
		r.fail(&ValidationError{Path: "logging.level", Message: "unknown level", Value: level})
		s.Logging.Level = logging.LevelInfo
	}

	return s, errors.Join(r.errs...)
}

// Validate rejects settings that cannot work.
func (s Settings) Validate() error {
	var errs []error
	positive := func(path string, ok bool, value any) {
		if !ok {
			errs = append(errs, &ValidationError{Path: path, Message: "must be positive", Value: value})
		}
	}

	positive("history.quietWindow", s.History.QuietWindow > 0, s.History.QuietWindow)
	positive("history.maxEntries", s.History.MaxEntries > 0, s.History.MaxEntries)
	positive("share.maxFragmentLength", s.Share.MaxFragmentLength > 0, s.Share.MaxFragmentLength)
	positive("share.maxDecodedSize", s.Share.MaxDecodedSize > 0, s.Share.MaxDecodedSize)
	positive("server.maxSessions", s.Server.MaxSessions > 0, s.Server.MaxSessions)
	positive("watch.debounce", s.Watch.Debounce > 0, s.Watch.Debounce)
	positive("script.timeout", s.Script.Timeout > 0, s.Script.Timeout)

	if u, err := url.Parse(s.Share.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, &ValidationError{
			Path:    "share.baseURL",
			Message: "must be an absolute URL",
			Value:   s.Share.BaseURL,
		})
	}
	if s.Server.Addr == "" {
		errs = append(errs, &ValidationError{Path: "server.addr", Message: "must not be empty", Value: s.Server.Addr})
	}

	return errors.Join(errs...)
}

// reader pulls typed values out of a merged map and collects type errors.
type reader struct {
	data map[string]any
	errs []error
}

func (r *reader) fail(err error) {
	r.errs = append(r.errs, err)
}

func (r *reader) string(path, def string) string {
	v, ok := loader.GetByPath(r.data, path)
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok {
		r.fail(&TypeError{Path: path, Expected: "string", Actual: fmt.Sprintf("%T", v)})
		return def
	}
	return s
}

func (r *reader) int(path string, def int) int {
	v, ok := loader.GetByPath(r.data, path)
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		if n == float64(int(n)) {
			return int(n)
		}
	}
	r.fail(&TypeError{Path: path, Expected: "integer", Actual: fmt.Sprintf("%T", v)})
	return def
}

// duration accepts duration strings ("500ms") and integers as milliseconds.
func (r *reader) duration(path string, def time.Duration) time.Duration {
	v, ok := loader.GetByPath(r.data, path)
	if !ok || v == nil {
		return def
	}
	switch d := v.(type) {
	case time.Duration:
		return d
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			r.fail(&ValidationError{Path: path, Message: "invalid duration", Value: d})
			return def
		}
		return parsed
	case int:
		return time.Duration(d) * time.Millisecond
	case int64:
		return time.Duration(d) * time.Millisecond
	case float64:
		return time.Duration(d * float64(time.Millisecond))
	}
	r.fail(&TypeError{Path: path, Expected: "duration", Actual: fmt.Sprintf("%T", v)})
	return def
}
