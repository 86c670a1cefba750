// config.go: settings struct for reviewdash and functions to load and write it.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/reviewdash/internal/logger"
)

// DatabaseSettings selects and configures the relational store.
type DatabaseSettings struct {
	Type               string        // sqlite, mysql or postgres
	SlowQueryThreshold time.Duration // queries slower than this are logged at warn, 0 disables
	MaxOpenConns       int           // connection pool size, 0 keeps the driver default
	SQLite             struct {
		Path string // database file, ":memory:" for an in-memory store
	}
	MySQL struct {
		Host     string
		Port     string
		Username string
		Password string
		Database string
	}
	Postgres struct {
		Host     string
		Port     string
		Username string
		Password string
		Database string
		SSLMode  string // disable, require, verify-full
		Driver   string // pgx or pq
	}
}

// WarehouseSettings configures the analytical warehouse the derived tables are read from.
type WarehouseSettings struct {
	Type            string // bigquery
	ProjectID       string // GCP project that runs the jobs and hosts the dataset
	Dataset         string // dataset holding the labeling tool tables
	Location        string // job location, empty lets the service pick
	CredentialsFile string // service account JSON, empty uses application default credentials
	Endpoint        string // API endpoint override, used against emulators
	ProjectFilter   int64  // labeling tool project whose tasks are synced
	PageSize        int64  // rows per result page
}

// ObjectStoreSettings configures where delivery manifests are read from.
type ObjectStoreSettings struct {
	Type      string  // gcs, local, sftp or ftp
	Prefix    string  // key prefix under which partitions live
	RateLimit float64 // object fetches per second, 0 disables limiting
	GCS       struct {
		Bucket          string
		CredentialsFile string
		Endpoint        string
	}
	Local struct {
		Path string
	}
	SFTP struct {
		Host           string
		Port           int
		Username       string
		Password       string
		KeyFile        string // private key, preferred over password
		KnownHostsFile string // empty skips host key verification
		Timeout        time.Duration
	}
	FTP struct {
		Host     string
		Port     int
		Username string
		Password string
		Timeout  time.Duration
	}
}

// SyncSettings controls the warehouse to relational store table sync.
type SyncSettings struct {
	BatchSize        int    // rows per insert batch
	ShadowSwap       bool   // load into a shadow table and swap, readers never see an empty table
	ProjectStartDate string // YYYY-MM-DD, week 1 starts here
}

// ReconcileSettings controls delivered status propagation.
type ReconcileSettings struct {
	ChunkSize int // maximum values per IN list
}

// IngestSettings controls delivery manifest ingestion.
type IngestSettings struct {
	CollabLinkTemplate string   // fmt template turning a task id into a collaboration link
	Extensions         []string // manifest file extensions
}

// SchedulerSettings controls periodic runs while serving.
type SchedulerSettings struct {
	Enabled                  bool
	SyncOnStart              bool          // run an initial sync when the server starts
	SyncInterval             time.Duration // 0 disables periodic sync
	IngestInterval           time.Duration // 0 disables periodic ingestion
	DimensionRefreshInterval time.Duration // 0 disables periodic allow-list refresh
}

// WebServerSettings contains settings for the HTTP API.
type WebServerSettings struct {
	Enabled       bool
	Host          string
	Port          string
	Debug         bool
	MaxUploadSize int64    // bytes accepted for feedback uploads
	CORSOrigins   []string // allowed origins, empty disables CORS
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// TelemetrySettings contains settings for metrics and error reporting.
type TelemetrySettings struct {
	Enabled     bool   // true to expose Prometheus metrics on /metrics
	Listen      string // separate metrics listener, empty serves /metrics on the API server
	SentryDSN   string // empty disables error reporting
	Environment string
}

// NotificationSettings configures alerts for failed pipeline runs.
type NotificationSettings struct {
	Enabled bool
	URLs    []string // shoutrrr service URLs
	Title   string
	Timeout time.Duration
}

// MQTTSettings configures pipeline event publishing.
type MQTTSettings struct {
	Enabled  bool
	Broker   string // tcp://host:port
	Topic    string // base topic, events publish under <topic>/<event>
	ClientID string
	Username string
	Password string
	Retain   bool
}

// Settings contains all configuration options for reviewdash.
type Settings struct {
	Debug bool

	Database     DatabaseSettings
	Warehouse    WarehouseSettings
	ObjectStore  ObjectStoreSettings
	Sync         SyncSettings
	Reconcile    ReconcileSettings
	Ingest       IngestSettings
	Scheduler    SchedulerSettings
	WebServer    WebServerSettings
	Telemetry    TelemetrySettings
	Notification NotificationSettings
	MQTT         MQTTSettings
	Logging      logger.LoggingConfig `yaml:"logging"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
// An empty configFile searches the default config paths. A missing config
// file is not an error; defaults and environment variables still apply.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, binds the environment and reads the config file.
func initViper(configFile string) error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		// Invalid env values are reported but do not stop startup
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("fatal error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			GetLogger().Info("no config file found, using defaults and environment",
				logger.Strings("searched", configPaths))
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetSettings returns the most recently loaded settings
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// DefaultSettings returns the settings produced by the defaults alone.
func DefaultSettings() (*Settings, error) {
	v := viper.New()
	applyDefaults(v)

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling defaults: %w", err)
	}
	return settings, nil
}

// WriteDefaultConfig writes a config file populated with defaults to path.
// An existing file is left untouched.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	settings, err := DefaultSettings()
	if err != nil {
		return err
	}

	return SaveYAMLConfig(path, settings)
}

// SaveYAMLConfig writes settings to configPath through a temporary file and rename.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error moving config file into place: %w", err)
	}
	return nil
}
