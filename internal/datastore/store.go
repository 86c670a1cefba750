// Package datastore owns the relational schema of the dashboard and opens the
// gorm connection for the configured dialect.
package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
)

// Supported dialects
const (
	DialectSQLite   = "sqlite"
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
)

// Store wraps the gorm connection together with its dialect.
type Store struct {
	db       *gorm.DB
	dialect  string
	location string // printable location without credentials
	log      logger.Logger
}

// Open connects to the configured database and migrates the schema.
func Open(ctx context.Context, settings *conf.DatabaseSettings, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}

	var (
		dialector gorm.Dialector
		location  string
		err       error
	)

	switch settings.Type {
	case DialectSQLite:
		dialector, location = sqliteDialector(settings)
	case DialectMySQL:
		dialector, location = mysqlDialector(settings)
	case DialectPostgres:
		dialector, location, err = postgresDialector(settings)
	default:
		err = fmt.Errorf("unsupported database type %q", settings.Type)
	}
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Context("database_type", settings.Type).
			Build()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log.Module(settings.Type), settings.SlowQueryThreshold),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			Context("database_type", settings.Type).
			Context("location", location).
			Build()
	}

	store := &Store{db: db, dialect: settings.Type, location: location, log: log}

	if err := store.configurePool(settings); err != nil {
		_ = store.Close()
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	log.Info("database opened",
		logger.String("dialect", settings.Type),
		logger.String("location", location))

	return store, nil
}

// NewStore wraps an existing gorm connection. The schema is not migrated.
func NewStore(db *gorm.DB, dialect string) *Store {
	return &Store{db: db, dialect: dialect, location: dialect, log: logger.Global().Module("datastore")}
}

func (s *Store) configurePool(settings *conf.DatabaseSettings) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_sql_db").
			Build()
	}

	switch {
	case s.dialect == DialectSQLite && isMemoryDSN(settings.SQLite.Path):
		// Every connection to ":memory:" is a separate database
		sqlDB.SetMaxOpenConns(1)
	case s.dialect == DialectSQLite:
		// One writer at a time; WAL lets readers proceed
		sqlDB.SetMaxOpenConns(max(settings.MaxOpenConns, 4))
	case settings.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(settings.MaxOpenConns)
		sqlDB.SetMaxIdleConns(min(settings.MaxOpenConns, 10))
		sqlDB.SetConnMaxLifetime(time.Hour)
	default:
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return nil
}

// Migrate creates or updates all tables owned by the store.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Context("dialect", s.dialect).
			Build()
	}
	return nil
}

// DB returns the underlying gorm connection.
func (s *Store) DB() *gorm.DB { return s.db }

// Dialect returns sqlite, mysql or postgres.
func (s *Store) Dialect() string { return s.dialect }

// Location returns a printable database location without credentials.
func (s *Store) Location() string { return s.location }

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "close").
			Build()
	}
	if err := sqlDB.Close(); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "close").
			Build()
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
