package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const historySize = 1000

// Config selects the global level, the stdout format ("text" or "json")
// and per-module level overrides.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mu       sync.RWMutex
	current  Config
	levels   = map[string]*slog.LevelVar{}
	loggers  = map[string]*slog.Logger{}
	rootVar  = &slog.LevelVar{}
	history  = NewHistory(historySize)
	listener func(Entry)
)

// Initialize applies cfg. Loggers handed out earlier keep working and pick
// up the new levels and format.
func Initialize(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	current = cfg
	rootVar.Set(levelOr(cfg.Level, slog.LevelInfo))
	for module, lv := range levels {
		lv.Set(moduleLevel(cfg, module))
		loggers[module] = slog.New(newHandler(cfg.Format, lv)).With("module", module)
	}
	slog.SetDefault(slog.New(newHandler(cfg.Format, rootVar)))
}

// GetLogger returns the logger of module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	l, ok := loggers[module]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[module]; ok {
		return l
	}
	lv := &slog.LevelVar{}
	lv.Set(moduleLevel(current, module))
	l = slog.New(newHandler(current.Format, lv)).With("module", module)
	levels[module] = lv
	loggers[module] = l
	return l
}

// SetLevel changes the level of one module at runtime. An empty module
// changes the global level and every module without an override.
func SetLevel(module, level string) error {
	lvl, ok := parseLevel(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	mu.Lock()
	defer mu.Unlock()
	if module == "" {
		current.Level = level
		rootVar.Set(lvl)
		for m, lv := range levels {
			if _, pinned := current.Modules[m]; !pinned {
				lv.Set(lvl)
			}
		}
		return nil
	}
	if current.Modules == nil {
		current.Modules = map[string]string{}
	}
	current.Modules[module] = level
	if lv, ok := levels[module]; ok {
		lv.Set(lvl)
	}
	return nil
}

// GetHistory returns the in-memory record history.
func GetHistory() *History {
	return history
}

// OnEntry registers fn to be called with every record written to the
// history. A nil fn removes the listener.
func OnEntry(fn func(Entry)) {
	mu.Lock()
	defer mu.Unlock()
	listener = fn
}

func entryListener() func(Entry) {
	mu.RLock()
	defer mu.RUnlock()
	return listener
}

func moduleLevel(cfg Config, module string) slog.Level {
	if s, ok := cfg.Modules[module]; ok {
		if lvl, ok := parseLevel(s); ok {
			return lvl
		}
	}
	return levelOr(cfg.Level, slog.LevelInfo)
}

func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var handlers []slog.Handler
	if stdoutUsable() {
		if format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stdout, opts))
		}
	}
	if JournalAvailable() {
		handlers = append(handlers, newJournalHandler(level))
	}
	handlers = append(handlers, newHistoryHandler(level))
	if len(handlers) == 1 {
		return handlers[0]
	}
	return fanout(handlers)
}

// stdoutUsable is false when stdout is /dev/null, as under systemd with
// StandardOutput=null.
func stdoutUsable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	m := fi.Mode()
	return m&os.ModeCharDevice != 0 || m&os.ModeNamedPipe != 0 || m&os.ModeSocket != 0 || m.IsRegular()
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}

func levelOr(s string, def slog.Level) slog.Level {
	if lvl, ok := parseLevel(s); ok {
		return lvl
	}
	return def
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
