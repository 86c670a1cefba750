// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by reviewdash
const EnvPrefix = "REVIEWDASH"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the environment variables that are validated before use.
// Every other key is still reachable through REVIEWDASH_<SECTION>_<KEY>.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "REVIEWDASH_DEBUG", validateEnvBool},

		{"database.type", "REVIEWDASH_DATABASE_TYPE", validateEnvDatabaseType},
		{"database.sqlite.path", "REVIEWDASH_DATABASE_SQLITE_PATH", nil},
		{"database.mysql.password", "REVIEWDASH_DATABASE_MYSQL_PASSWORD", nil},
		{"database.postgres.password", "REVIEWDASH_DATABASE_POSTGRES_PASSWORD", nil},

		{"warehouse.projectid", "REVIEWDASH_WAREHOUSE_PROJECTID", nil},
		{"warehouse.dataset", "REVIEWDASH_WAREHOUSE_DATASET", nil},
		{"warehouse.projectfilter", "REVIEWDASH_WAREHOUSE_PROJECTFILTER", validateEnvPositiveInt},
		{"warehouse.credentialsfile", "REVIEWDASH_WAREHOUSE_CREDENTIALSFILE", validateEnvPath},

		{"objectstore.type", "REVIEWDASH_OBJECTSTORE_TYPE", validateEnvObjectStoreType},
		{"objectstore.gcs.bucket", "REVIEWDASH_OBJECTSTORE_GCS_BUCKET", nil},
		{"objectstore.gcs.credentialsfile", "REVIEWDASH_OBJECTSTORE_GCS_CREDENTIALSFILE", validateEnvPath},

		{"sync.projectstartdate", "REVIEWDASH_SYNC_PROJECTSTARTDATE", validateEnvDate},
		{"sync.batchsize", "REVIEWDASH_SYNC_BATCHSIZE", validateEnvPositiveInt},

		{"webserver.port", "REVIEWDASH_WEBSERVER_PORT", validateEnvPort},
		{"telemetry.sentrydsn", "REVIEWDASH_TELEMETRY_SENTRYDSN", validateEnvURL},
		{"mqtt.broker", "REVIEWDASH_MQTT_BROKER", validateEnvURL},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, redactEnvValue(binding.EnvVar, envValue), err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func redactEnvValue(name, value string) string {
	if strings.Contains(name, "PASSWORD") || strings.Contains(name, "DSN") {
		return "[REDACTED]"
	}
	return value
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value: %w", err)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer value: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("value must be positive, got %d", n)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvDate(value string) error {
	if _, err := time.Parse(time.DateOnly, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return nil
}

func validateEnvDatabaseType(value string) error {
	if !slices.Contains(supportedDatabaseTypes, strings.ToLower(strings.TrimSpace(value))) {
		return fmt.Errorf("unsupported database type, must be one of %v", supportedDatabaseTypes)
	}
	return nil
}

func validateEnvObjectStoreType(value string) error {
	if !slices.Contains(supportedObjectStoreTypes, strings.ToLower(strings.TrimSpace(value))) {
		return fmt.Errorf("unsupported object store type, must be one of %v", supportedObjectStoreTypes)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL must include scheme and host")
	}
	return nil
}

func validateEnvPath(value string) error {
	cleanedPath := filepath.Clean(value)

	if !filepath.IsAbs(cleanedPath) {
		return fmt.Errorf("path must be absolute, got relative path: %s", cleanedPath)
	}

	if _, err := os.Stat(cleanedPath); os.IsNotExist(err) {
		return fmt.Errorf("warning: file does not exist: %s", cleanedPath)
	}

	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return bindEnvVars()
}
