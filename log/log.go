package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Logger is the interface for logging.
type Logger interface {
	// Printf prints a formated message to the log.
	Printf(format string, v ...interface{})

	// Print prints a message to the log.
	Print(v ...interface{})

	// Fatalf
	Fatalf(format string, v ...interface{})

	// Fatal
	Fatal(v ...interface{})

	// Level returns the logging level.
	Level() Level
}

// Level represents the log level.
type Level int

const (
	// DebugLevel represents the debug-level.
	DebugLevel Level = iota
	// InfoLevel represents the info-level.
	InfoLevel
	// WarnLevel represents the warning-level.
	WarnLevel
	// ErrorLevel represents the error-level.
	ErrorLevel
	// DisabledLevel represents that the logger is disabled.
	DisabledLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case DisabledLevel:
		return "DISABLED"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

var (
	// Debug is a debug-level logger.
	Debug = &logger{level: DebugLevel}
	// Info is an info-level logger.
	Info = &logger{level: InfoLevel}
	// Warn is a warning-level logger.
	Warn = &logger{level: WarnLevel}
	// Error is an error-level logger.
	Error = &logger{level: ErrorLevel}
)

var mu sync.RWMutex

var currentLogger = &defaultLogger{
	level:  InfoLevel,
	Logger: log.New(os.Stderr, "", log.Ldate|log.Ltime|log.LUTC),
}

type logger struct {
	level  Level
	fields []field
}

type field struct {
	key   string
	value interface{}
}

func getCurrentLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return currentLogger
}

// With returns a logger at the same level that appends key=value pairs to every message.
// kv is a list of alternating keys and values; a trailing key without a value is dropped.
func (l *logger) With(kv ...interface{}) *logger {
	fields := make([]field, len(l.fields), len(l.fields)+len(kv)/2)
	copy(fields, l.fields)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, field{key: fmt.Sprint(kv[i]), value: kv[i+1]})
	}
	return &logger{level: l.level, fields: fields}
}

func (l *logger) format(msg string) string {
	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(l.level.String())
	sb.WriteString("] ")
	sb.WriteString(msg)
	fields := make([]field, len(l.fields))
	copy(fields, l.fields)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].key < fields[j].key })
	for _, f := range fields {
		sb.WriteByte(' ')
		sb.WriteString(f.key)
		sb.WriteByte('=')
		sb.WriteString(sprintValue(f.value))
	}
	return sb.String()
}

func sprintValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		if strings.IndexFunc(t, func(r rune) bool { return r <= ' ' }) >= 0 {
			return fmt.Sprintf("%q", t)
		}
		return t
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

func (l *logger) enabled(cLogger Logger) bool {
	return l.level >= cLogger.Level()
}

func (l *logger) Printf(format string, v ...interface{}) {
	cLogger := getCurrentLogger()
	if l.enabled(cLogger) {
		cLogger.Print(l.format(fmt.Sprintf(format, v...)))
	}
}

func (l *logger) Print(v ...interface{}) {
	cLogger := getCurrentLogger()
	if l.enabled(cLogger) {
		cLogger.Print(l.format(fmt.Sprint(v...)))
	}
}

func (l *logger) Fatalf(format string, v ...interface{}) {
	cLogger := getCurrentLogger()
	if l.enabled(cLogger) {
		cLogger.Fatal(l.format(fmt.Sprintf(format, v...)))
	}
}

func (l *logger) Fatal(v ...interface{}) {
	cLogger := getCurrentLogger()
	if l.enabled(cLogger) {
		cLogger.Fatal(l.format(fmt.Sprint(v...)))
	}
}

func (l *logger) Level() Level {
	return l.level
}

type defaultLogger struct {
	level Level
	*log.Logger
}

func (l *defaultLogger) Level() Level {
	return l.level
}

// SetLevel sets the current logging level.
func SetLevel(level Level) {
	mu.Lock()
	currentLogger.level = level
	mu.Unlock()
}

// CurrentLevel returns the current logging level.
func CurrentLevel() Level {
	return getCurrentLogger().Level()
}

// SetOutput sets the destination of the log. Timestamps are omitted when withTime is false.
func SetOutput(w io.Writer, withTime bool) {
	flags := 0
	if withTime {
		flags = log.Ldate | log.Ltime | log.LUTC
	}
	mu.Lock()
	currentLogger.Logger = log.New(w, "", flags)
	mu.Unlock()
}

// ParseLevel returns the level with a name.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "disabled", "off":
		return DisabledLevel, nil
	}
	return DisabledLevel, errors.Errorf("unknown log level %q", name)
}

// SetLevelByName sets the current logging level with a name.
// Unknown names leave the level unchanged.
func SetLevelByName(level string) {
	if l, err := ParseLevel(level); err == nil {
		SetLevel(l)
	}
}
