package datastore

import (
	"fmt"
	"net"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/reviewdash/internal/conf"
)

// mysqlDialector builds the MySQL dialector. Times are stored and read as UTC.
func mysqlDialector(settings *conf.DatabaseSettings) (gorm.Dialector, string) {
	cfg := gomysql.NewConfig()
	cfg.User = settings.MySQL.Username
	cfg.Passwd = settings.MySQL.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(settings.MySQL.Host, settings.MySQL.Port)
	cfg.DBName = settings.MySQL.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}

	location := fmt.Sprintf("%s/%s", cfg.Addr, cfg.DBName)
	return mysql.New(mysql.Config{DSN: cfg.FormatDSN()}), location
}
