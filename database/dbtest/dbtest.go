// Package dbtest opens throwaway sqlite databases for package tests.
package dbtest

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anjiri1684/studio_booking/database"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrInjected = errors.New("injected failure")

// Open returns a migrated sqlite database private to t.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	return open(t, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), 1)
}

// OpenFile returns a migrated sqlite database on disk that serves several
// connections at once, for tests that race real writers against each other.
func OpenFile(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	return open(t, fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path), 4)
}

func open(t testing.TB, dsn string, conns int) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// FailCreates makes every insert into table fail until the returned func is called.
func FailCreates(t testing.TB, db *gorm.DB, table string) func() {
	return failOn(t, db, "create", table, 0)
}

// FailUpdates makes every update of table fail until the returned func is called.
func FailUpdates(t testing.TB, db *gorm.DB, table string) func() {
	return failOn(t, db, "update", table, 0)
}

// FailUpdatesAfter lets the first skip updates of table through and fails the rest.
func FailUpdatesAfter(t testing.TB, db *gorm.DB, table string, skip int) func() {
	return failOn(t, db, "update", table, skip)
}

func failOn(t testing.TB, db *gorm.DB, op, table string, skip int) func() {
	t.Helper()
	name := fmt.Sprintf("dbtest:fail_%s_%s_%s", op, table, uuid.NewString())
	var seen atomic.Int64
	hook := func(tx *gorm.DB) {
		if tx.Statement.Table != table {
			return
		}
		if seen.Add(1) > int64(skip) {
			_ = tx.AddError(ErrInjected)
		}
	}
	var err error
	switch op {
	case "create":
		err = db.Callback().Create().Before("gorm:create").Register(name, hook)
	case "update":
		err = db.Callback().Update().Before("gorm:update").Register(name, hook)
	}
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
	return func() {
		switch op {
		case "create":
			_ = db.Callback().Create().Remove(name)
		case "update":
			_ = db.Callback().Update().Remove(name)
		}
	}
}
