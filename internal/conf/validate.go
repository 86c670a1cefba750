// conf/validate.go

package conf

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

var (
	supportedDatabaseTypes    = []string{"sqlite", "mysql", "postgres"}
	supportedObjectStoreTypes = []string{"gcs", "local", "sftp", "ftp"}
	supportedPostgresDrivers  = []string{"pgx", "pq"}

	// Warehouse identifiers end up in table paths, they cannot be query parameters
	warehouseIdentifierPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		func(s *Settings) error { return validateDatabaseSettings(&s.Database) },
		func(s *Settings) error { return validateWarehouseSettings(&s.Warehouse) },
		func(s *Settings) error { return validateObjectStoreSettings(&s.ObjectStore) },
		func(s *Settings) error { return validateSyncSettings(&s.Sync) },
		func(s *Settings) error { return validateReconcileSettings(&s.Reconcile) },
		func(s *Settings) error { return validateIngestSettings(&s.Ingest) },
		func(s *Settings) error { return validateSchedulerSettings(&s.Scheduler) },
		func(s *Settings) error { return validateNotificationSettings(&s.Notification) },
		func(s *Settings) error { return validateMQTTSettings(&s.MQTT) },
	}

	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDatabaseSettings(settings *DatabaseSettings) error {
	settings.Type = strings.ToLower(settings.Type)
	switch settings.Type {
	case "sqlite":
		if settings.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "mysql":
		if settings.MySQL.Host == "" || settings.MySQL.Database == "" {
			return fmt.Errorf("database.mysql host and database are required")
		}
	case "postgres":
		if settings.Postgres.Host == "" || settings.Postgres.Database == "" {
			return fmt.Errorf("database.postgres host and database are required")
		}
		if !slices.Contains(supportedPostgresDrivers, settings.Postgres.Driver) {
			return fmt.Errorf("database.postgres.driver must be one of %v, got %q", supportedPostgresDrivers, settings.Postgres.Driver)
		}
	default:
		return fmt.Errorf("database.type must be one of %v, got %q", supportedDatabaseTypes, settings.Type)
	}
	if settings.MaxOpenConns < 0 {
		return fmt.Errorf("database.maxopenconns must not be negative")
	}
	return nil
}

func validateWarehouseSettings(settings *WarehouseSettings) error {
	if settings.Type != "bigquery" {
		return fmt.Errorf("warehouse.type must be bigquery, got %q", settings.Type)
	}
	if !warehouseIdentifierPattern.MatchString(settings.ProjectID) {
		return fmt.Errorf("warehouse.projectid %q is not a valid identifier", settings.ProjectID)
	}
	if !warehouseIdentifierPattern.MatchString(settings.Dataset) {
		return fmt.Errorf("warehouse.dataset %q is not a valid identifier", settings.Dataset)
	}
	if settings.ProjectFilter <= 0 {
		return fmt.Errorf("warehouse.projectfilter must be positive")
	}
	if settings.PageSize < 0 {
		return fmt.Errorf("warehouse.pagesize must not be negative")
	}
	return nil
}

func validateObjectStoreSettings(settings *ObjectStoreSettings) error {
	settings.Type = strings.ToLower(settings.Type)
	if settings.RateLimit < 0 {
		return fmt.Errorf("objectstore.ratelimit must not be negative")
	}
	switch settings.Type {
	case "gcs":
		// Bucket is checked when the store is opened, sync-only deployments leave it empty
		return nil
	case "local":
		if settings.Local.Path == "" {
			return fmt.Errorf("objectstore.local.path is required")
		}
	case "sftp":
		if settings.SFTP.Host == "" || settings.SFTP.Username == "" {
			return fmt.Errorf("objectstore.sftp host and username are required")
		}
		if settings.SFTP.Password == "" && settings.SFTP.KeyFile == "" {
			return fmt.Errorf("objectstore.sftp needs a password or keyfile")
		}
	case "ftp":
		if settings.FTP.Host == "" {
			return fmt.Errorf("objectstore.ftp.host is required")
		}
	default:
		return fmt.Errorf("objectstore.type must be one of %v, got %q", supportedObjectStoreTypes, settings.Type)
	}
	return nil
}

func validateSyncSettings(settings *SyncSettings) error {
	if settings.BatchSize <= 0 {
		return fmt.Errorf("sync.batchsize must be positive")
	}
	if _, err := time.Parse(time.DateOnly, settings.ProjectStartDate); err != nil {
		return fmt.Errorf("sync.projectstartdate must be YYYY-MM-DD: %w", err)
	}
	return nil
}

func validateReconcileSettings(settings *ReconcileSettings) error {
	if settings.ChunkSize <= 0 {
		return fmt.Errorf("reconcile.chunksize must be positive")
	}
	return nil
}

func validateIngestSettings(settings *IngestSettings) error {
	if strings.Count(settings.CollabLinkTemplate, "%s") != 1 {
		return fmt.Errorf("ingest.collablinktemplate must contain exactly one %%s verb")
	}
	if len(settings.Extensions) == 0 {
		return fmt.Errorf("ingest.extensions must list at least one extension")
	}
	for i, ext := range settings.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		settings.Extensions[i] = ext
	}
	return nil
}

func validateSchedulerSettings(settings *SchedulerSettings) error {
	const minInterval = time.Minute
	for name, interval := range map[string]time.Duration{
		"syncinterval":             settings.SyncInterval,
		"ingestinterval":           settings.IngestInterval,
		"dimensionrefreshinterval": settings.DimensionRefreshInterval,
	} {
		if interval != 0 && interval < minInterval {
			return fmt.Errorf("scheduler.%s must be 0 or at least %s, got %s", name, minInterval, interval)
		}
	}
	return nil
}

func validateNotificationSettings(settings *NotificationSettings) error {
	if settings.Enabled && len(settings.URLs) == 0 {
		return fmt.Errorf("notification.urls is required when notifications are enabled")
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled {
		return nil
	}
	if settings.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if settings.Topic == "" {
		return fmt.Errorf("mqtt.topic is required when mqtt is enabled")
	}
	return nil
}
