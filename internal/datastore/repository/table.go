package repository

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"gorm.io/gorm"

	"github.com/tphakala/reviewdash/internal/datastore"
	"github.com/tphakala/reviewdash/internal/errors"
)

// ReplaceOptions tunes a full table replace.
type ReplaceOptions struct {
	BatchSize  int  // rows per insert statement
	ShadowSwap bool // load into a shadow table and rename it into place
}

// TableRepository replaces warehouse derived tables.
type TableRepository interface {
	// Replace swaps the whole content of table for rows, a slice of the
	// table's model. It returns the number of rows inserted.
	Replace(ctx context.Context, table string, rows any, opts ReplaceOptions) (int, error)
	// Count returns the number of rows in table.
	Count(ctx context.Context, table string) (int64, error)
}

type tableRepository struct {
	db      *gorm.DB
	dialect string
}

// NewTableRepository creates a new TableRepository for the given dialect.
func NewTableRepository(db *gorm.DB, dialect string) TableRepository {
	return &tableRepository{db: db, dialect: dialect}
}

func (r *tableRepository) Replace(ctx context.Context, table string, rows any, opts ReplaceOptions) (int, error) {
	if !IsReplaceable(table) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	rv := reflect.ValueOf(rows)
	if rv.Kind() != reflect.Slice {
		return 0, ErrInvalidRows
	}
	count := rv.Len()

	batchSize, err := r.batchSize(rv, opts.BatchSize)
	if err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("table", table).
			Context("operation", "parse_model").
			Build()
	}

	if opts.ShadowSwap && r.dialect != datastore.DialectSQLite {
		err = r.replaceViaShadow(ctx, table, rows, count, batchSize)
	} else {
		err = r.replaceInPlace(ctx, table, rows, count, batchSize)
	}
	if err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			TableContext(table, count).
			Context("operation", "replace_table").
			Context("shadow_swap", opts.ShadowSwap).
			Build()
	}
	return count, nil
}

// batchSize caps requested rows per INSERT so the statement stays within
// the dialect's bind variable limit.
func (r *tableRepository) batchSize(rows reflect.Value, requested int) (int, error) {
	if requested <= 0 {
		requested = DefaultBatchSize
	}

	elem := rows.Type().Elem()
	for elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	stmt := &gorm.Statement{DB: r.db}
	if err := stmt.Parse(reflect.New(elem).Interface()); err != nil {
		return 0, err
	}

	columns := max(len(stmt.Schema.DBNames), 1)
	return max(min(requested, maxBindVars(r.dialect)/columns), 1), nil
}

// maxBindVars returns the placeholder limit of one statement.
func maxBindVars(dialect string) int {
	switch dialect {
	case datastore.DialectSQLite:
		return 32766
	default:
		// MySQL and Postgres both count placeholders in a uint16
		return 65535
	}
}

// replaceInPlace deletes and reinserts within one transaction.
func (r *tableRepository) replaceInPlace(ctx context.Context, table string, rows any, count, batchSize int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM " + tx.Statement.Quote(table)).Error; err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
		if count == 0 {
			return nil
		}
		if err := tx.Table(table).CreateInBatches(rows, batchSize).Error; err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
		return nil
	})
}

// replaceViaShadow loads a structural copy of table and renames it into place.
func (r *tableRepository) replaceViaShadow(ctx context.Context, table string, rows any, count, batchSize int) error {
	db := r.db.WithContext(ctx)
	quote := db.Statement.Quote
	shadow := table + shadowSuffix
	retired := table + retiredSuffix

	if err := db.Exec("DROP TABLE IF EXISTS " + quote(shadow)).Error; err != nil {
		return fmt.Errorf("drop stale shadow %s: %w", shadow, err)
	}

	var createShadow string
	switch r.dialect {
	case datastore.DialectMySQL:
		createShadow = fmt.Sprintf("CREATE TABLE %s LIKE %s", quote(shadow), quote(table))
	case datastore.DialectPostgres:
		createShadow = fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL)", quote(shadow), quote(table))
	default:
		return fmt.Errorf("shadow swap not supported for %s", r.dialect)
	}
	if err := db.Exec(createShadow).Error; err != nil {
		return fmt.Errorf("create shadow %s: %w", shadow, err)
	}

	if count > 0 {
		if err := db.Table(shadow).CreateInBatches(rows, batchSize).Error; err != nil {
			_ = db.Exec("DROP TABLE IF EXISTS " + quote(shadow)).Error
			return fmt.Errorf("load shadow %s: %w", shadow, err)
		}
	}

	if r.dialect == datastore.DialectMySQL {
		// A multi-table RENAME is atomic in MySQL
		rename := fmt.Sprintf("RENAME TABLE %s TO %s, %s TO %s",
			quote(table), quote(retired), quote(shadow), quote(table))
		if err := db.Exec(rename).Error; err != nil {
			return fmt.Errorf("swap %s: %w", table, err)
		}
		return db.Exec("DROP TABLE IF EXISTS " + quote(retired)).Error
	}

	return db.Transaction(func(tx *gorm.DB) error {
		// The live table's serial sequence must follow the new table before the old one is dropped
		var seq sql.NullString
		if err := tx.Raw("SELECT pg_get_serial_sequence(?, 'id')", table).Scan(&seq).Error; err != nil {
			return fmt.Errorf("lookup sequence of %s: %w", table, err)
		}
		steps := []string{
			fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quote(table), quote(retired)),
			fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quote(shadow), quote(table)),
		}
		if seq.Valid && seq.String != "" {
			steps = append(steps, fmt.Sprintf("ALTER SEQUENCE %s OWNED BY %s.%s", seq.String, quote(table), quote("id")))
		}
		steps = append(steps, "DROP TABLE "+quote(retired))

		for _, stmt := range steps {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("swap %s: %w", table, err)
			}
		}
		return nil
	})
}

func (r *tableRepository) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Table(table).Count(&n).Error
	return n, err
}
