package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/reviewdash/internal/logger"
)

func TestSlogLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     logger.LogLevel
		wantDebug bool
		wantInfo  bool
	}{
		{"trace shows everything", logger.LogLevelTrace, true, true},
		{"debug shows debug", logger.LogLevelDebug, true, true},
		{"info hides debug", logger.LogLevelInfo, false, true},
		{"error hides info", logger.LogLevelError, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			log := logger.NewSlogLogger(&buf, tt.level, time.UTC)

			log.Debug("debug message")
			log.Info("info message")
			log.Error("error message")

			out := buf.String()
			assert.Equal(t, tt.wantDebug, strings.Contains(out, "debug message"))
			assert.Equal(t, tt.wantInfo, strings.Contains(out, "info message"))
			assert.Contains(t, out, "error message")
		})
	}
}

func TestModuleAndFieldsAreAttached(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.NewSlogLogger(&buf, logger.LogLevelDebug, time.UTC).
		Module("datasync").
		Module("task")

	log.With(logger.String("table", "task")).Info("table synced",
		logger.Int("rows", 42),
		logger.Float64("ratio", 0.123456),
		logger.Duration("elapsed", 1500*time.Millisecond))

	out := buf.String()
	assert.Contains(t, out, "module=datasync.task")
	assert.Contains(t, out, "table=task")
	assert.Contains(t, out, "rows=42")
	assert.Contains(t, out, "ratio=0.123")
	assert.Contains(t, out, "elapsed=1.5s")
	assert.NotContains(t, out, "time=")
}

func TestWithFieldsDoesNotLeakToParent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	parent := logger.NewSlogLogger(&buf, logger.LogLevelInfo, time.UTC)
	_ = parent.With(logger.String("child_only", "x"))

	parent.Info("parent message")
	assert.NotContains(t, buf.String(), "child_only")
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.NewSlogLogger(&buf, logger.LogLevelInfo, time.UTC)

	ctx := logger.WithTraceID(context.Background(), "run-123")
	log.WithContext(ctx).Info("with trace")
	log.WithContext(context.Background()).Info("without trace")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "trace_id=run-123")
	assert.NotContains(t, lines[1], "trace_id")
}

func TestErrorFieldHandlesNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, logger.Error(nil).Value)
	assert.Equal(t, "error", logger.Error(nil).Key)
	assert.Equal(t, assert.AnError.Error(), logger.Error(assert.AnError).Value)
}

func TestCentralLoggerRoutesPipelineModulesToRunLog(t *testing.T) {
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "main.log")
	syncPath := filepath.Join(dir, "nested", "sync.log")

	cfg := &logger.LoggingConfig{
		Timezone:     "UTC",
		DefaultLevel: "info",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: mainPath, Level: "info"},
		Pipeline:     &logger.PipelineOutput{Enabled: true, Path: syncPath, Level: "debug"},
	}

	central, err := logger.NewCentralLogger(cfg)
	require.NoError(t, err)

	central.Module("datasync").Debug("sync detail", logger.String("table", "task"))
	central.Module("ingest").Module("local").Info("manifest read")
	central.Module("feedback").Info("feedback applied", logger.Int("rows", 3))
	central.Module("api").Debug("hidden at info")
	central.Module("api").Info("request served")

	require.NoError(t, central.Close())

	syncData, err := os.ReadFile(syncPath)
	require.NoError(t, err)
	syncLines := strings.Split(strings.TrimSpace(string(syncData)), "\n")
	require.Len(t, syncLines, 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(syncLines[0]), &entry))
	assert.Equal(t, "sync detail", entry["msg"])
	assert.Equal(t, "datasync", entry["module"])
	assert.Equal(t, "task", entry["table"])
	assert.Contains(t, syncLines[1], `"module":"ingest.local"`)

	mainData, err := os.ReadFile(mainPath)
	require.NoError(t, err)
	assert.Contains(t, string(mainData), "request served")
	assert.NotContains(t, string(mainData), "hidden at info")
	assert.NotContains(t, string(mainData), "sync detail")
}

func TestCentralLoggerWithoutRunLogUsesMainFile(t *testing.T) {
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "main.log")

	central, err := logger.NewCentralLogger(&logger.LoggingConfig{
		Console:    &logger.ConsoleOutput{Enabled: false},
		FileOutput: &logger.FileOutput{Enabled: true, Path: mainPath, Level: "info"},
		Pipeline:   &logger.PipelineOutput{Enabled: false},
	})
	require.NoError(t, err)

	central.Module("aggregate").Info("summary rebuilt")
	require.NoError(t, central.Close())
	require.NoError(t, central.Close())

	data, err := os.ReadFile(mainPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"module":"aggregate"`)
}

func TestIsPipelineModule(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"datasync", "ingest", "reconcile", "aggregate", "feedback", "datasync.task"} {
		assert.True(t, logger.IsPipelineModule(name), name)
	}
	for _, name := range []string{"api", "datastore", "objectstore.gcs", ""} {
		assert.False(t, logger.IsPipelineModule(name), name)
	}
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{
		Timezone: "Mars/Olympus_Mons",
		Console:  &logger.ConsoleOutput{Enabled: true},
		FileOutput: &logger.FileOutput{
			Enabled: false,
		},
	})
	require.Error(t, err)

	_, err = logger.NewCentralLogger(nil)
	require.Error(t, err)
}

func TestBufferedFileWriterFlushAndClose(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "buffered.log")
	w, err := logger.NewBufferedFileWriter(path, logger.WithFlushInterval(0))
	require.NoError(t, err)

	_, err = w.Write([]byte("line one\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data, "data should stay buffered until flush")

	require.NoError(t, w.Flush())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line one\n", string(data))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.Error(t, err)
}
