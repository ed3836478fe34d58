package logging

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

// FieldKey names a structured log field.
type FieldKey string

const (
	FieldError    FieldKey = "error"
	FieldAddr     FieldKey = "addr"
	FieldPort     FieldKey = "port"
	FieldProtocol FieldKey = "protocol"
	FieldPeer     FieldKey = "peer"
	FieldFrames   FieldKey = "frames"
	FieldBytes    FieldKey = "bytes"
	FieldQuality  FieldKey = "quality"
	FieldFPS      FieldKey = "fps"
	FieldSize     FieldKey = "size"
)

// Fields carries per-call structured context.
type Fields map[FieldKey]any

type Level = pterm.LogLevel

const (
	LevelTrace Level = pterm.LogLevelTrace
	LevelDebug Level = pterm.LogLevelDebug
	LevelInfo  Level = pterm.LogLevelInfo
	LevelWarn  Level = pterm.LogLevelWarn
	LevelError Level = pterm.LogLevelError
	LevelFatal Level = pterm.LogLevelFatal
)

var levelNames = map[string]Level{
	"trace":   LevelTrace,
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

var (
	loggerMu     sync.RWMutex
	currentLevel = LevelInfo

	baseLogger = func() *pterm.Logger {
		template := pterm.DefaultLogger.WithTime(true).
			WithTimeFormat(time.RFC3339).
			WithMaxWidth(120).
			WithCaller(false)
		return template.AppendKeyStyles(map[string]pterm.Style{
			string(FieldError): *pterm.NewStyle(pterm.FgRed, pterm.Bold),
		})
	}()
)

// Configure sets the global level from a name; unknown names fall back to
// info and return an error so callers can warn.
func Configure(level string) error {
	level = strings.TrimSpace(strings.ToLower(level))
	if level == "" {
		SetLevel(LevelInfo)
		return nil
	}
	lvl, ok := levelNames[level]
	if !ok {
		SetLevel(LevelInfo)
		return fmt.Errorf("unknown log level %q", level)
	}
	SetLevel(lvl)
	return nil
}

func SetLevel(level Level) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	currentLevel = level
	baseLogger.Level = level
}

func emit(level Level, msg string, fields Fields) {
	loggerMu.RLock()
	enabled := level >= currentLevel
	logger := baseLogger
	loggerMu.RUnlock()
	if !enabled {
		return
	}

	args := loggerArgs(fields)
	switch level {
	case LevelTrace:
		logger.Trace(msg, args)
	case LevelDebug:
		logger.Debug(msg, args)
	case LevelWarn:
		logger.Warn(msg, args)
	case LevelError:
		logger.Error(msg, args)
	case LevelFatal:
		logger.Fatal(msg, args)
	default:
		logger.Info(msg, args)
	}
}

func loggerArgs(fields Fields) []pterm.LoggerArgument {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	args := make([]pterm.LoggerArgument, 0, len(keys))
	for _, key := range keys {
		args = append(args, pterm.LoggerArgument{Key: key, Value: fields[FieldKey(key)]})
	}
	return args
}

func Debug(msg string, fields Fields) { emit(LevelDebug, msg, fields) }
func Info(msg string, fields Fields)  { emit(LevelInfo, msg, fields) }
func Warn(msg string, fields Fields)  { emit(LevelWarn, msg, fields) }
func Error(msg string, fields Fields) { emit(LevelError, msg, fields) }
func Fatal(msg string, fields Fields) { emit(LevelFatal, msg, fields) }
