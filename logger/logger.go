package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

type LoggingLevel int

var Levels levelsStruct = levelsStruct{
	Err:     err,
	Warn:    warn,
	Info:    info,
	Verbose: verbose,
	Debug:   debug,
}

const (
	err     LoggingLevel = 1
	warn    LoggingLevel = 2
	info    LoggingLevel = 3
	verbose LoggingLevel = 4
	debug   LoggingLevel = 5
)

type levelsStruct struct {
	Err     LoggingLevel
	Warn    LoggingLevel
	Info    LoggingLevel
	Verbose LoggingLevel
	Debug   LoggingLevel
}

// slog has no level between debug and info
const slogLevelVerbose = slog.LevelDebug + 2

var levelNames = map[LoggingLevel]string{
	err:     "error",
	warn:    "warn",
	info:    "info",
	verbose: "verbose",
	debug:   "debug",
}

var slogLevels = map[LoggingLevel]slog.Level{
	err:     slog.LevelError,
	warn:    slog.LevelWarn,
	info:    slog.LevelInfo,
	verbose: slogLevelVerbose,
	debug:   slog.LevelDebug,
}

var (
	mu         sync.RWMutex
	maxLevel   = info
	slogLevel  = new(slog.LevelVar)
	rootLogger = slog.New(NewTerminalHandler(os.Stderr, slogLevel))
)

func (l LoggingLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel accepts the names printed by LoggingLevel.String.
func ParseLevel(s string) (LoggingLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for level, name := range levelNames {
		if name == s {
			return level, nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func SetMaxLogLevel(level LoggingLevel) {
	mu.Lock()
	defer mu.Unlock()

	maxLevel = level
	if l, ok := slogLevels[level]; ok {
		slogLevel.Set(l)
	}
}

func MaxLogLevel() LoggingLevel {
	mu.RLock()
	defer mu.RUnlock()
	return maxLevel
}

// SetOutput redirects local log rows to w. Colour is used only when w is a terminal.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	rootLogger = slog.New(NewTerminalHandler(w, slogLevel))
}

// NewTerminalHandler returns a tint handler writing to w.
func NewTerminalHandler(w io.Writer, level slog.Leveler) slog.Handler {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}

	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if l, ok := a.Value.Any().(slog.Level); ok && l == slogLevelVerbose {
					return slog.String(slog.LevelKey, "VRB")
				}
			}
			return a
		},
	})
}

func Error(str string, args ...interface{}) {
	logRow(err, str, args...)
}

func Warn(str string, args ...interface{}) {
	logRow(warn, str, args...)
}

func Info(str string, args ...interface{}) {
	logRow(info, str, args...)
}

func Verbose(str string, args ...interface{}) {
	logRow(verbose, str, args...)
}

func Debug(str string, args ...interface{}) {
	logRow(debug, str, args...)
}

func logRow(level LoggingLevel, str string, args ...interface{}) {
	if level > MaxLogLevel() {
		return
	}

	message := fmt.Sprintf(str, args...)

	if logRemotely(level, message) {
		return
	}

	writeRow(level, message)
}

func writeRow(level LoggingLevel, message string, attrs ...slog.Attr) {
	mu.RLock()
	l := rootLogger
	mu.RUnlock()

	l.LogAttrs(context.Background(), slogLevels[level], message, attrs...)
}
