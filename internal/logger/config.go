package logger

import (
	"slices"
	"strings"
)

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Timezone     string          `yaml:"timezone" json:"timezone" mapstructure:"timezone"`                // "Local", "UTC", or IANA timezone name
	DefaultLevel string          `yaml:"default_level" json:"default_level" mapstructure:"default_level"` // level for modules outside the pipeline
	Console      *ConsoleOutput  `yaml:"console" json:"console" mapstructure:"console"`
	FileOutput   *FileOutput     `yaml:"file_output" json:"file_output" mapstructure:"file_output"`
	Pipeline     *PipelineOutput `yaml:"pipeline" json:"pipeline" mapstructure:"pipeline"`
}

// ConsoleOutput represents console logging configuration.
// Text output omits timestamps; journald and container runtimes add them.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Level   string `yaml:"level" json:"level" mapstructure:"level"`
	Format  string `yaml:"format" json:"format" mapstructure:"format"` // text or json
}

// FileOutput represents file logging configuration. File output is JSON.
type FileOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" json:"path" mapstructure:"path"`
	Level   string `yaml:"level" json:"level" mapstructure:"level"`
}

// PipelineOutput is the JSON run log shared by the pipeline modules. When
// enabled their entries leave the main file and go here instead.
type PipelineOutput struct {
	Enabled     bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Path        string `yaml:"path" json:"path" mapstructure:"path"`
	Level       string `yaml:"level" json:"level" mapstructure:"level"`
	ConsoleAlso bool   `yaml:"console_also" json:"console_also" mapstructure:"console_also"`
}

// Default values for logging configuration.
const (
	DefaultLogLevel       = "info"
	DefaultLogPath        = "logs/reviewdash.log"
	DefaultSyncLogPath    = "logs/sync.log"
	DefaultConsoleEnabled = true
	DefaultFileEnabled    = true
)

// pipelineModules write to the run log: warehouse sync, delivery ingestion,
// reconciliation, aggregation and feedback application.
var pipelineModules = []string{"datasync", "ingest", "reconcile", "aggregate", "feedback"}

// IsPipelineModule reports whether module, or the top level module of a
// dotted name, belongs to the pipeline.
func IsPipelineModule(module string) bool {
	top, _, _ := strings.Cut(module, ".")
	return slices.Contains(pipelineModules, top)
}

// applyConfigDefaults fills nil sections so a config without logging keys
// still logs to console, the main file and the run log.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}
	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{Enabled: DefaultConsoleEnabled, Level: DefaultLogLevel, Format: "text"}
	}
	if cfg.FileOutput == nil {
		cfg.FileOutput = &FileOutput{Enabled: DefaultFileEnabled, Path: DefaultLogPath, Level: DefaultLogLevel}
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = &PipelineOutput{Enabled: true, Path: DefaultSyncLogPath, Level: DefaultLogLevel, ConsoleAlso: true}
	}
}
