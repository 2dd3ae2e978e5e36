package loader

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultEnvPrefix is the prefix for sketchlink environment variables.
const DefaultEnvPrefix = "SKETCHLINK_"

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	prefix  string            // e.g. "SKETCHLINK_"
	mapping map[string]string // env var -> config path
	environ func() []string
}

// NewEnvLoader creates an environment loader. The prefix includes the
// trailing underscore.
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: defaultEnvMapping(prefix),
		environ: os.Environ,
	}
}

// defaultEnvMapping covers settings whose camelCase name cannot be
// recovered from the variable name alone.
func defaultEnvMapping(prefix string) map[string]string {
	return map[string]string{
		prefix + "LOG_LEVEL":                 "logging.level",
		prefix + "ADDR":                      "server.addr",
		prefix + "BASE_URL":                  "share.baseURL",
		prefix + "SHARE_BASE_URL":            "share.baseURL",
		prefix + "HISTORY_QUIET_WINDOW":      "history.quietWindow",
		prefix + "HISTORY_MAX_ENTRIES":       "history.maxEntries",
		prefix + "SHARE_MAX_FRAGMENT_LENGTH": "share.maxFragmentLength",
		prefix + "SHARE_MAX_DECODED_SIZE":    "share.maxDecodedSize",
		prefix + "SERVER_MAX_SESSIONS":       "server.maxSessions",
	}
}

// AddMapping adds an explicit environment variable mapping.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	if l.mapping == nil {
		l.mapping = make(map[string]string)
	}
	l.mapping[envVar] = configPath
}

// Load reads prefixed variables into a configuration map. Mapped
// variables use their configured path; others are converted by name, so
// SKETCHLINK_WATCH_DEBOUNCE becomes watch.debounce.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)

	for _, env := range l.environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}

		path, mapped := l.mapping[name]
		if !mapped {
			path = l.envToPath(name)
		}
		if path == "" {
			continue
		}
		SetByPath(config, path, parseValue(value))
	}

	return config, nil
}

// envToPath converts SKETCHLINK_SCRIPT_TIMEOUT to script.timeout and
// SKETCHLINK_SERVER_READ_TIMEOUT to server.readTimeout.
func (l *EnvLoader) envToPath(env string) string {
	name := strings.TrimPrefix(env, l.prefix)
	parts := strings.Split(name, "_")
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}

	section := strings.ToLower(parts[0])
	if len(parts) == 1 {
		return section
	}

	setting := strings.ToLower(parts[1])
	for _, part := range parts[2:] {
		if part != "" {
			setting += strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
		}
	}
	return section + "." + setting
}

// parseValue converts an environment string to the most specific type.
func parseValue(s string) any {
	if s == "" {
		return s
	}

	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}

	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d
	}

	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}

	return s
}
