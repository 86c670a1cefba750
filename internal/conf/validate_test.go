package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings(t *testing.T) *Settings {
	t.Helper()
	settings, err := DefaultSettings()
	require.NoError(t, err)
	return settings
}

func TestValidateSettingsDefaultsPass(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateSettings(validSettings(t)))
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:    "postgres with unknown driver",
			mutate:  func(s *Settings) { s.Database.Type = "postgres"; s.Database.Postgres.Driver = "odbc" },
			wantErr: "database.postgres.driver",
		},
		{
			name:    "dataset with backtick",
			mutate:  func(s *Settings) { s.Warehouse.Dataset = "prod`; DROP" },
			wantErr: "warehouse.dataset",
		},
		{
			name:    "zero project filter",
			mutate:  func(s *Settings) { s.Warehouse.ProjectFilter = 0 },
			wantErr: "warehouse.projectfilter",
		},
		{
			name:    "sftp without credentials",
			mutate:  func(s *Settings) { s.ObjectStore.Type = "sftp"; s.ObjectStore.SFTP.Host = "h"; s.ObjectStore.SFTP.Username = "u" },
			wantErr: "password or keyfile",
		},
		{
			name:    "unknown object store",
			mutate:  func(s *Settings) { s.ObjectStore.Type = "s3" },
			wantErr: "objectstore.type",
		},
		{
			name:    "template without verb",
			mutate:  func(s *Settings) { s.Ingest.CollabLinkTemplate = "https://example.com/prompt/" },
			wantErr: "collablinktemplate",
		},
		{
			name:    "scheduler interval too short",
			mutate:  func(s *Settings) { s.Scheduler.IngestInterval = 5 * time.Second },
			wantErr: "scheduler.ingestinterval",
		},
		{
			name:    "notifications without urls",
			mutate:  func(s *Settings) { s.Notification.Enabled = true },
			wantErr: "notification.urls",
		},
		{
			name:    "mqtt without topic",
			mutate:  func(s *Settings) { s.MQTT.Enabled = true; s.MQTT.Topic = "" },
			wantErr: "mqtt.topic",
		},
		{
			name:    "non positive chunk size",
			mutate:  func(s *Settings) { s.Reconcile.ChunkSize = 0 },
			wantErr: "reconcile.chunksize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			settings := validSettings(t)
			tt.mutate(settings)

			err := ValidateSettings(settings)
			require.Error(t, err)

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			require.Len(t, ve.Errors, 1)
			assert.Contains(t, ve.Errors[0], tt.wantErr)
		})
	}
}

func TestValidateIngestNormalizesExtensions(t *testing.T) {
	t.Parallel()

	settings := IngestSettings{
		CollabLinkTemplate: DefaultCollabLinkTemplate,
		Extensions:         []string{"JSON", " .Ndjson "},
	}
	require.NoError(t, validateIngestSettings(&settings))
	assert.Equal(t, []string{".json", ".ndjson"}, settings.Extensions)
}

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		validate func(string) error
		value    string
		wantErr  bool
	}{
		{"bool true", validateEnvBool, " true ", false},
		{"bool yes", validateEnvBool, "yes", true},
		{"positive int", validateEnvPositiveInt, "254", false},
		{"zero int", validateEnvPositiveInt, "0", true},
		{"port ok", validateEnvPort, "8000", false},
		{"port too large", validateEnvPort, "70000", true},
		{"date ok", validateEnvDate, "2025-09-26", false},
		{"date wrong layout", validateEnvDate, "09/26/2025", true},
		{"database mysql", validateEnvDatabaseType, "MySQL", false},
		{"database oracle", validateEnvDatabaseType, "oracle", true},
		{"object store sftp", validateEnvObjectStoreType, "sftp", false},
		{"object store s3", validateEnvObjectStoreType, "s3", true},
		{"url ok", validateEnvURL, "tcp://broker:1883", false},
		{"url without host", validateEnvURL, "broker", true},
		{"relative path", validateEnvPath, "creds.json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedactEnvValue(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "[REDACTED]", redactEnvValue("REVIEWDASH_DATABASE_MYSQL_PASSWORD", "hunter2"))
	assert.Equal(t, "8000", redactEnvValue("REVIEWDASH_WEBSERVER_PORT", "8000"))
}
