package sqlite

import (
	"fmt"
	"sync/atomic"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open creates a GORM *DB backed by a SQLite file.
func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

var memSeq atomic.Int64

// OpenMemory creates a fresh in-memory SQLite DB. Each call gets its
// own named shared-cache database so parallel tests stay isolated while
// GORM's pooled connections still see the same data.
func OpenMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:mem_%d?mode=memory&cache=shared", memSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	// A shared-cache memory DB disappears when its last connection
	// closes; keep one connection pinned for the DB's lifetime.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(1)
	return db, nil
}
