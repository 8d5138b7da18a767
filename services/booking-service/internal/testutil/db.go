// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/you/wedding-booking/pkg/db"
	"github.com/you/wedding-booking/services/booking-service/internal/domain"
	"github.com/you/wedding-booking/services/booking-service/internal/repository"
)

// OpenStore returns a migrated store on a fresh sqlite file under t.TempDir.
// The pool holds one connection, so concurrent callers queue on the pool and
// never on row locks; use OpenLockingStore to exercise those.
func OpenStore(t *testing.T) (*repository.Store, *gorm.DB) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "booking.db") + "?_busy_timeout=5000&_foreign_keys=on"
	gdb, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	store := repository.NewStore(gdb)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store, gdb
}

// PostgresDSNEnv names an optional postgres DSN for tests that depend on
// row locks.
const PostgresDSNEnv = "BOOKING_TEST_POSTGRES_DSN"

// OpenLockingStore returns a migrated store on the postgres named by
// PostgresDSNEnv, in a schema of its own that is dropped when the test ends.
// Without it the store falls back to OpenStore, where the single sqlite
// connection serializes writers and FOR UPDATE is never contended.
func OpenLockingStore(t *testing.T) (*repository.Store, *gorm.DB) {
	t.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Logf("%s unset: writers are serialized by the sqlite pool, row locks are not contended", PostgresDSNEnv)
		return OpenStore(t)
	}

	admin, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	schema := "booking_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if err := admin.Exec("CREATE SCHEMA " + schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		if err := admin.Exec("DROP SCHEMA " + schema + " CASCADE").Error; err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		if sqlDB, err := admin.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	gdb, err := db.Open(withSearchPath(dsn, schema))
	if err != nil {
		t.Fatalf("open postgres schema: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	store := repository.NewStore(gdb)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store, gdb
}

func withSearchPath(dsn, schema string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "search_path=" + schema
	}
	return dsn + " search_path=" + schema
}

// SeedTenant stores a tenant with the given commission percent ("12", "7.5").
func SeedTenant(t *testing.T, store *repository.Store, id, percent string, minLeadDays int) *domain.Tenant {
	t.Helper()
	tn := &domain.Tenant{
		ID:                id,
		Name:              "Tenant " + id,
		CommissionPercent: decimal.RequireFromString(percent),
		MinLeadDays:       minLeadDays,
	}
	if err := store.Tenants.Upsert(context.Background(), tn); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	return tn
}
