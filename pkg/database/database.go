// Package database opens the gorm connection and runs schema migrations for
// the admin gateway.
package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cloudcompute/admin-gateway/pkg/adminactions"
	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

// Supported database types.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
)

// Options configures Open.
type Options struct {
	Type string
	DSN  string
	// MaxOpenConns of zero leaves the driver default, except for SQLite
	// which is limited to one connection.
	MaxOpenConns int
}

// Dialector returns the gorm dialector for a database type.
func Dialector(dbType, dsn string) (gorm.Dialector, error) {
	switch dbType {
	case TypeSQLite, "":
		return sqlite.Open(dsn), nil
	case TypePostgres:
		return postgres.Open(dsn), nil
	case TypeMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q (expected sqlite, postgres or mysql)", dbType)
	}
}

// Open connects to the database.
func Open(opts Options) (*gorm.DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	dialector, err := Dialector(opts.Type, opts.DSN)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	switch {
	case opts.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	case dialector.Name() == TypeSQLite:
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate creates or updates every table the gateway uses while holding
// locker.
func Migrate(ctx context.Context, db *gorm.DB, locker MigrationLocker, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if locker == nil {
		locker = &noopMigrationLock{}
	}
	return locker.WithLock(ctx, func() error {
		if err := compute.AutoMigrate(db); err != nil {
			return err
		}
		if err := adminactions.NewHistoryStore(db).AutoMigrate(); err != nil {
			return err
		}
		logger.Info("database schema up to date", "dialect", db.Dialector.Name())
		return nil
	})
}
