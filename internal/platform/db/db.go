package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const sqliteScheme = "sqlite:"

// Database wraps the gorm handle shared by the ledger repository.
type Database struct {
	DB      *gorm.DB
	Dialect string
}

// Connect opens postgres for postgres:// DSNs and sqlite for "sqlite:<path>".
// "sqlite:" alone opens a shared in-memory database.
func Connect(dsn string) (*Database, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}
	if strings.HasPrefix(dsn, sqliteScheme) {
		return connectSqlite(strings.TrimPrefix(dsn, sqliteScheme))
	}
	return connectPostgres(dsn)
}

func connectPostgres(dsn string) (*Database, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	if err := ping(db); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Database{DB: db, Dialect: "postgres"}, nil
}

func connectSqlite(path string) (*Database, error) {
	if strings.TrimSpace(path) == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite sql db handle: %w", err)
	}
	// sqlite serialises writers; one connection also keeps a shared
	// in-memory database alive for the life of the handle.
	sqlDB.SetMaxOpenConns(1)
	if err := ping(db); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Database{DB: db, Dialect: "sqlite"}, nil
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("resolve sql db handle: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return err
	}
	return nil
}

func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
