// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultCollabLinkTemplate turns a task id into its labeling tool URL
const DefaultCollabLinkTemplate = "https://rlhf-v3.turing.com/prompt/%s"

// Sets default values for the configuration.
func setDefaultConfig() {
	applyDefaults(viper.GetViper())
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.slowquerythreshold", 500*time.Millisecond)
	v.SetDefault("database.maxopenconns", 0)
	v.SetDefault("database.sqlite.path", "reviewdash.db")
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", "3306")
	v.SetDefault("database.mysql.username", "")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "reviewdash")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", "5432")
	v.SetDefault("database.postgres.username", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "reviewdash")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.driver", "pgx")

	v.SetDefault("warehouse.type", "bigquery")
	v.SetDefault("warehouse.projectid", "turing-gpt")
	v.SetDefault("warehouse.dataset", "prod_labeling_tool_z")
	v.SetDefault("warehouse.location", "")
	v.SetDefault("warehouse.credentialsfile", "")
	v.SetDefault("warehouse.endpoint", "")
	v.SetDefault("warehouse.projectfilter", 254)
	v.SetDefault("warehouse.pagesize", 10000)

	v.SetDefault("objectstore.type", "gcs")
	v.SetDefault("objectstore.prefix", "")
	v.SetDefault("objectstore.ratelimit", 0.0)
	v.SetDefault("objectstore.gcs.bucket", "")
	v.SetDefault("objectstore.gcs.credentialsfile", "")
	v.SetDefault("objectstore.gcs.endpoint", "")
	v.SetDefault("objectstore.local.path", "deliveries")
	v.SetDefault("objectstore.sftp.host", "")
	v.SetDefault("objectstore.sftp.port", 22)
	v.SetDefault("objectstore.sftp.username", "")
	v.SetDefault("objectstore.sftp.password", "")
	v.SetDefault("objectstore.sftp.keyfile", "")
	v.SetDefault("objectstore.sftp.knownhostsfile", "")
	v.SetDefault("objectstore.sftp.timeout", 30*time.Second)
	v.SetDefault("objectstore.ftp.host", "")
	v.SetDefault("objectstore.ftp.port", 21)
	v.SetDefault("objectstore.ftp.username", "")
	v.SetDefault("objectstore.ftp.password", "")
	v.SetDefault("objectstore.ftp.timeout", 30*time.Second)

	v.SetDefault("sync.batchsize", 5000)
	v.SetDefault("sync.shadowswap", false)
	v.SetDefault("sync.projectstartdate", "2025-09-26")

	v.SetDefault("reconcile.chunksize", 900)

	v.SetDefault("ingest.collablinktemplate", DefaultCollabLinkTemplate)
	v.SetDefault("ingest.extensions", []string{".json"})

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.synconstart", false)
	v.SetDefault("scheduler.syncinterval", 6*time.Hour)
	v.SetDefault("scheduler.ingestinterval", 1*time.Hour)
	v.SetDefault("scheduler.dimensionrefreshinterval", 24*time.Hour)

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.host", "")
	v.SetDefault("webserver.port", "8000")
	v.SetDefault("webserver.debug", false)
	v.SetDefault("webserver.maxuploadsize", 10<<20)
	v.SetDefault("webserver.corsorigins", []string{})
	v.SetDefault("webserver.readtimeout", 30*time.Second)
	v.SetDefault("webserver.writetimeout", 5*time.Minute)

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.listen", "")
	v.SetDefault("telemetry.sentrydsn", "")
	v.SetDefault("telemetry.environment", "production")

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.title", "reviewdash")
	v.SetDefault("notification.timeout", 10*time.Second)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "reviewdash")
	v.SetDefault("mqtt.clientid", "reviewdash")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.console.format", "text")
	v.SetDefault("logging.file_output.enabled", true)
	v.SetDefault("logging.file_output.path", "logs/reviewdash.log")
	v.SetDefault("logging.file_output.level", "info")
	v.SetDefault("logging.pipeline.enabled", true)
	v.SetDefault("logging.pipeline.path", "logs/sync.log")
	v.SetDefault("logging.pipeline.level", "info")
	v.SetDefault("logging.pipeline.console_also", true)
}
