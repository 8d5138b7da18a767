package db

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to postgres ("postgres://", "postgresql://" or "host=..." DSNs)
// or to a sqlite file ("file:..." or a path ending in .db) for local runs.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		// unique violations surface as gorm.ErrDuplicatedKey on both drivers
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	sqliteDSN := strings.HasPrefix(dsn, "file:") || strings.HasSuffix(dsn, ".db")
	switch {
	case sqliteDSN:
		dialector = sqlite.Open(dsn)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("db: unrecognised dsn %q", redact(dsn))
	}

	gdb, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if sqliteDSN {
		// sqlite has a single writer; one connection turns lock waits into pool waits
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	log.Printf("[db] connected (%s)", gdb.Dialector.Name())
	return gdb, nil
}

func redact(dsn string) string {
	if i := strings.Index(dsn, "@"); i > 0 {
		return "***" + dsn[i:]
	}
	return dsn
}
