package logx

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "debug"
	}
}

func (l Level) zap() zapcore.Level {
	switch l {
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.DebugLevel
	}
}

// ParseLevel maps a level name to a Level. Unknown names yield LevelWarn.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "error":
		return LevelError
	default:
		return LevelWarn
	}
}

// Standard field names for structured calls (Infow/Warnw/Errorw).
const (
	FieldRunID    = "run_id"
	FieldItem     = "item"
	FieldAttempt  = "attempt"
	FieldStatus   = "status"
	FieldBatch    = "batch"
	FieldCount    = "count"
	FieldPath     = "path"
	FieldMediaID  = "media_id"
	FieldEntryURL = "entry_url"
	FieldError    = "error"
)

// messageLimit is the non-verbose cap for messages and string fields.
const messageLimit = 2 * 1024

var (
	mu       sync.RWMutex
	minLevel           = LevelWarn
	out      io.Writer = io.Discard
	logger             = newZap(io.Discard)
	secrets            = make([]string, 0)
	verbose  bool
)

func newZap(w io.Writer) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.LevelKey = "level"
	enc.MessageKey = "msg"
	enc.CallerKey = ""
	enc.StacktraceKey = ""
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), zapcore.DebugLevel)
	return zap.New(core)
}

// SetOutput sets the destination for logs.
func SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	l := newZap(w)
	mu.Lock()
	out = w
	logger = l
	mu.Unlock()
}

// Output returns the current destination.
func Output() io.Writer { mu.RLock(); defer mu.RUnlock(); return out }

// SetMinLevel sets the minimum level to emit.
func SetMinLevel(l Level) { mu.Lock(); minLevel = l; mu.Unlock() }

// SetVerbose toggles verbose output (no truncation of large fields/messages).
func SetVerbose(v bool) { mu.Lock(); verbose = v; mu.Unlock() }

// Verbose returns whether verbose output is enabled.
func Verbose() bool { mu.RLock(); defer mu.RUnlock(); return verbose }

// Sync flushes buffered entries.
func Sync() error {
	mu.RLock()
	l := logger
	mu.RUnlock()
	return l.Sync()
}

// RegisterSecret adds a string to be redacted in outputs.
func RegisterSecret(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	mu.Lock()
	secrets = append(secrets, s)
	mu.Unlock()
}

// RegisterSecrets adds multiple secrets for redaction.
func RegisterSecrets(list []string) {
	for _, s := range list {
		RegisterSecret(s)
	}
}

// StdlogWriter wraps writes as structured JSON lines at a fixed level.
// It applies redaction and optional truncation when verbose is disabled.
func StdlogWriter(level Level, w io.Writer) io.Writer {
	if w == nil {
		w = os.Stderr
	}
	return &stdlogWriter{level: level, l: newZap(w)}
}

type stdlogWriter struct {
	level Level
	l     *zap.Logger
}

func (sw *stdlogWriter) Write(p []byte) (int, error) {
	lines := bytes.Split(p, []byte("\n"))
	written := 0
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		emit(sw.l, sw.level, string(line), nil)
		written += len(line) + 1 // account for newline
	}
	return written, nil
}

// Debugf logs a debug message.
func Debugf(format string, args ...any) { emit(current(), LevelDebug, fmt.Sprintf(format, args...), nil) }

// Infof logs an info message.
func Infof(format string, args ...any) { emit(current(), LevelInfo, fmt.Sprintf(format, args...), nil) }

// Warnf logs a warning message.
func Warnf(format string, args ...any) { emit(current(), LevelWarn, fmt.Sprintf(format, args...), nil) }

// Errorf logs an error message.
func Errorf(format string, args ...any) { emit(current(), LevelError, fmt.Sprintf(format, args...), nil) }

// Infow logs a message with alternating key/value pairs.
func Infow(msg string, kv ...any) { emit(current(), LevelInfo, msg, kv) }

// Warnw logs a warning with alternating key/value pairs.
func Warnw(msg string, kv ...any) { emit(current(), LevelWarn, msg, kv) }

// Errorw logs an error with alternating key/value pairs.
func Errorw(msg string, kv ...any) { emit(current(), LevelError, msg, kv) }

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func emit(l *zap.Logger, lvl Level, msg string, kv []any) {
	mu.RLock()
	ml := minLevel
	v := verbose
	mu.RUnlock()
	if lvl < ml {
		return
	}
	msg = redact(msg)
	if !v {
		msg = truncate(msg, messageLimit)
	}
	ce := l.Check(lvl.zap(), msg)
	if ce == nil {
		return
	}
	ce.Write(fields(kv, v)...)
}

// fields converts key/value pairs into zap fields nested under "fields".
// String values and errors go through redaction like the message does.
func fields(kv []any, verbose bool) []zap.Field {
	if len(kv) == 0 {
		return nil
	}
	zf := make([]zap.Field, 0, len(kv)/2+1)
	zf = append(zf, zap.Namespace("fields"))
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if i+1 >= len(kv) {
			zf = append(zf, zap.String(key, "<missing>"))
			break
		}
		switch val := kv[i+1].(type) {
		case string:
			zf = append(zf, zap.String(key, clean(val, verbose)))
		case error:
			s := "<nil>"
			if val != nil {
				s = val.Error()
			}
			zf = append(zf, zap.String(key, clean(s, verbose)))
		default:
			zf = append(zf, zap.Any(key, val))
		}
	}
	return zf
}

func clean(s string, verbose bool) string {
	s = redact(s)
	if !verbose {
		s = truncate(s, messageLimit)
	}
	return s
}

func redact(s string) string {
	mu.RLock()
	defer mu.RUnlock()
	if len(secrets) == 0 {
		return s
	}
	out := s
	for _, sec := range secrets {
		if sec == "" {
			continue
		}
		out = strings.ReplaceAll(out, sec, "[REDACTED]")
	}
	return out
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	// keep last 10 chars to aid context
	suffix := "… [truncated]"
	if limit > len(suffix)+10 {
		head := s[:limit-len(suffix)-10]
		tail := s[len(s)-10:]
		return head + suffix + tail
	}
	return s[:limit]
}
