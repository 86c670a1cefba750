package datastore

import (
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/reviewdash/internal/conf"
)

func isMemoryDSN(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// sqliteDialector builds the SQLite dialector. File databases run in WAL mode
// so dashboard reads are not blocked by a running sync.
func sqliteDialector(settings *conf.DatabaseSettings) (gorm.Dialector, string) {
	path := settings.SQLite.Path
	if isMemoryDSN(path) {
		return sqlite.Open(path), path
	}

	if dir := filepath.Dir(path); dir != "." {
		// Open reports the error if the directory is still missing
		_ = os.MkdirAll(dir, 0o750)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	return sqlite.Open(dsn), path
}
