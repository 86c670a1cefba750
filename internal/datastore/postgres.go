package datastore

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tphakala/reviewdash/internal/conf"
)

// postgresDialector builds the Postgres dialector. pgx is the default driver;
// "pq" opens the connection through lib/pq and hands it to gorm.
func postgresDialector(settings *conf.DatabaseSettings) (gorm.Dialector, string, error) {
	pg := settings.Postgres

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(pg.Username, pg.Password),
		Host:   fmt.Sprintf("%s:%s", pg.Host, pg.Port),
		Path:   "/" + pg.Database,
	}
	q := u.Query()
	if pg.SSLMode != "" {
		q.Set("sslmode", pg.SSLMode)
	}
	u.RawQuery = q.Encode()

	location := fmt.Sprintf("%s:%s/%s", pg.Host, pg.Port, pg.Database)

	switch pg.Driver {
	case "", "pgx":
		return postgres.Open(u.String()), location, nil
	case "pq":
		sqlDB, err := sql.Open("postgres", u.String())
		if err != nil {
			return nil, location, fmt.Errorf("failed to open lib/pq connection: %w", err)
		}
		return postgres.New(postgres.Config{Conn: sqlDB}), location, nil
	default:
		return nil, location, fmt.Errorf("unsupported postgres driver %q", pg.Driver)
	}
}
