package db

import (
	"fmt"

	"github.com/toshiotawa/jazzify-lab-sub004/config"
	dbmysql "github.com/toshiotawa/jazzify-lab-sub004/db/mysql"
	dbpostgres "github.com/toshiotawa/jazzify-lab-sub004/db/postgres"
	dbsqlite "github.com/toshiotawa/jazzify-lab-sub004/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLiteMemory = "sqlite_memory"
	ModeSQLite       = "sqlite"
	ModeMySQL        = "mysql"
	ModePostgres     = "postgres"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLiteMemory:
		return dbsqlite.OpenMemory()
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MaxOpen, cfg.MaxIdle, cfg.MaxLife)
	case ModePostgres:
		return dbpostgres.Open(cfg.PostgresDSN, cfg.MaxOpen, cfg.MaxIdle, cfg.MaxLife)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
