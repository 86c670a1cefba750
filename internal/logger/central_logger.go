package logger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	// Embedded zone data for report timezones on minimal container images
	_ "time/tzdata"

	"github.com/tphakala/reviewdash/internal/errors"
)

const (
	// traceLevelValue sits below slog.LevelDebug (-4)
	traceLevelValue = slog.Level(-8)

	// maxLevelWidth pads text levels so messages line up
	maxLevelWidth = 5

	logDirPermissions = 0o700
)

var (
	globalLogger   *CentralLogger
	globalLoggerMu sync.Mutex
)

// SetGlobal installs cl as the process logger. Call it once after the
// configuration is loaded.
func SetGlobal(cl *CentralLogger) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = cl
}

// Global returns the process logger. Before SetGlobal it is a console-only
// logger at info level, so package level loggers work in tests and tools.
func Global() *CentralLogger {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()

	if globalLogger == nil {
		globalLogger = &CentralLogger{
			base:  newTextHandler(os.Stdout, slog.LevelInfo, time.Local),
			level: slog.LevelInfo,
		}
	}
	return globalLogger
}

type loggerContextKey struct{ name string }

// TraceIDKey is the context key read by WithContext. Set it with WithTraceID.
var TraceIDKey = loggerContextKey{"trace_id"}

// WithTraceID returns a context carrying a trace id, typically a sync run id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// CentralLogger owns the process log outputs. Modules log to the console and
// the main JSON file, except the pipeline modules, which log to the run log
// when it is enabled.
type CentralLogger struct {
	base          slog.Handler
	level         slog.Level
	pipeline      slog.Handler // nil when the run log is disabled
	pipelineLevel slog.Level

	mu      sync.Mutex
	writers []*BufferedFileWriter
}

// NewCentralLogger opens the configured outputs. Missing sections get the
// defaults from applyConfigDefaults.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{level: parseLogLevel(cfg.DefaultLevel)}
	if err := cl.open(cfg, tz); err != nil {
		_ = cl.Close()
		return nil, err
	}
	return cl, nil
}

func (cl *CentralLogger) open(cfg *LoggingConfig, tz *time.Location) error {
	var console slog.Handler
	if cfg.Console.Enabled {
		console = consoleHandler(cfg.Console.Format, parseLogLevel(cfg.Console.Level), tz)
	}

	var base []slog.Handler
	if console != nil {
		base = append(base, console)
	}
	if cfg.FileOutput.Enabled {
		h, err := cl.jsonFile(cfg.FileOutput.Path, parseLogLevel(cfg.FileOutput.Level))
		if err != nil {
			return fmt.Errorf("failed to open main log: %w", err)
		}
		base = append(base, h)
	}
	if len(base) == 0 {
		base = append(base, newTextHandler(os.Stdout, cl.level, tz))
	}
	cl.base = fanOut(base)

	if !cfg.Pipeline.Enabled {
		return nil
	}
	cl.pipelineLevel = parseLogLevel(cfg.Pipeline.Level)
	h, err := cl.jsonFile(cfg.Pipeline.Path, cl.pipelineLevel)
	if err != nil {
		return fmt.Errorf("failed to open pipeline log: %w", err)
	}
	pipeline := []slog.Handler{h}
	if cfg.Pipeline.ConsoleAlso && console != nil {
		pipeline = append(pipeline, console)
	}
	cl.pipeline = fanOut(pipeline)
	return nil
}

// jsonFile opens a buffered JSON handler on path and keeps the writer for Close.
func (cl *CentralLogger) jsonFile(path string, level slog.Level) (slog.Handler, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, logDirPermissions); err != nil {
			return nil, err
		}
	}
	w, err := NewBufferedFileWriter(path)
	if err != nil {
		return nil, err
	}
	cl.writers = append(cl.writers, w)
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), nil
}

// Module returns a logger tagged with name. Pipeline modules go to the run
// log; see IsPipelineModule.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	handler, level := cl.base, cl.level
	if cl.pipeline != nil && IsPipelineModule(name) {
		handler, level = cl.pipeline, cl.pipelineLevel
	}
	return &scopedLogger{module: name, logger: slog.New(handler), level: level}
}

// Close flushes and closes the log files. Loggers handed out earlier must not
// be used afterwards.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()

	var errs []error
	for _, w := range cl.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", w.FilePath(), err))
		}
	}
	cl.writers = nil
	return errors.Join(errs...)
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

func consoleHandler(format string, level slog.Level, tz *time.Location) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return newTextHandler(os.Stdout, level, tz)
}

func fanOut(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return newMultiWriterHandler(handlers...)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "trace":
		return traceLevelValue
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// scopedLogger is the Logger handed to components. Fields added with With are
// copied so siblings never see each other's fields.
type scopedLogger struct {
	module string
	logger *slog.Logger
	level  slog.Level
	fields []Field
}

func (l *scopedLogger) Module(name string) Logger {
	if l == nil {
		return nil
	}
	module := name
	if l.module != "" {
		module = l.module + "." + name
	}
	return &scopedLogger{module: module, logger: l.logger, level: l.level, fields: slices.Clone(l.fields)}
}

func (l *scopedLogger) Trace(msg string, fields ...Field) { l.log(traceLevelValue, msg, fields) }
func (l *scopedLogger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields) }
func (l *scopedLogger) Info(msg string, fields ...Field)  { l.log(slog.LevelInfo, msg, fields) }
func (l *scopedLogger) Warn(msg string, fields ...Field)  { l.log(slog.LevelWarn, msg, fields) }
func (l *scopedLogger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields) }

func (l *scopedLogger) Log(level LogLevel, msg string, fields ...Field) {
	l.log(parseSlogLevel(level), msg, fields)
}

func (l *scopedLogger) With(fields ...Field) Logger {
	if l == nil {
		return nil
	}
	return &scopedLogger{module: l.module, logger: l.logger, level: l.level, fields: slices.Concat(l.fields, fields)}
}

// WithContext attaches the trace id stored by WithTraceID, if any.
func (l *scopedLogger) WithContext(ctx context.Context) Logger {
	if l == nil {
		return nil
	}
	if ctx == nil {
		return l
	}
	traceID, _ := ctx.Value(TraceIDKey).(string)
	if traceID == "" {
		return l
	}
	return l.With(String(traceIDKey, traceID))
}

// Flush is a no-op; CentralLogger.Close flushes the files.
func (l *scopedLogger) Flush() error { return nil }

func (l *scopedLogger) log(level slog.Level, msg string, fields []Field) {
	if l == nil || level < l.level {
		return
	}
	attrs := make([]slog.Attr, 0, 1+len(l.fields)+len(fields))
	if l.module != "" {
		attrs = append(attrs, slog.String(moduleKey, l.module))
	}
	for _, f := range l.fields {
		attrs = append(attrs, fieldToAttr(f))
	}
	for _, f := range fields {
		attrs = append(attrs, fieldToAttr(f))
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// fieldToAttr renders floats with three decimals and durations as text.
func fieldToAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case float32:
		return slog.Float64(f.Key, math.Round(float64(v)*1000)/1000)
	case float64:
		return slog.Float64(f.Key, math.Round(v*1000)/1000)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	default:
		return slog.Any(f.Key, v)
	}
}
