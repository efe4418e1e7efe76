package database

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

// MigrationLocker serializes schema migrations across gateway replicas.
type MigrationLocker interface {
	// WithLock runs fn while holding the lock, blocking until it is acquired.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker picks a lock strategy for the dialect. PostgreSQL uses
// an advisory lock; SQLite and MySQL use a lock table, created here.
func NewMigrationLocker(db *gorm.DB) MigrationLocker {
	if db == nil {
		return &noopMigrationLock{}
	}
	if db.Dialector.Name() == TypePostgres {
		return &pgAdvisoryLock{
			db:     db,
			lockID: int64(crc32.ChecksumIEEE([]byte("admin-gateway-migration"))),
		}
	}
	_ = db.AutoMigrate(&migrationLockRecord{})
	return &tableMigrationLock{
		db:            db,
		retries:       30,
		retryInterval: time.Second,
		staleAge:      5 * time.Minute,
	}
}

type noopMigrationLock struct{}

func (noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

type pgAdvisoryLock struct {
	db     *gorm.DB
	lockID int64
}

// WithLock holds one pooled connection for the whole call: advisory locks
// belong to the session that took them.
func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", l.lockID).Error; err != nil {
			return fmt.Errorf("failed to acquire migration advisory lock: %w", err)
		}
		defer func() {
			_ = conn.WithContext(context.Background()).Exec("SELECT pg_advisory_unlock(?)", l.lockID).Error
		}()
		return fn()
	})
}

type migrationLockRecord struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (migrationLockRecord) TableName() string { return "migration_lock" }

// tableMigrationLock holds the lock by owning the single row of
// migration_lock. Rows older than staleAge belong to crashed holders and are
// removed before each attempt.
type tableMigrationLock struct {
	db            *gorm.DB
	retries       int
	retryInterval time.Duration
	staleAge      time.Duration
}

func (l *tableMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	row := migrationLockRecord{ID: "migration", LockedBy: hostname}

	for i := 0; ; i++ {
		l.db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", row.ID, time.Now().Add(-l.staleAge)).
			Delete(&migrationLockRecord{})

		row.LockedAt = time.Now()
		err := l.db.WithContext(ctx).Create(&row).Error
		if err == nil {
			break
		}
		if i == l.retries-1 {
			return fmt.Errorf("failed to acquire migration lock after %d retries: %w", l.retries, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
	defer func() {
		l.db.Where("id = ?", row.ID).Delete(&migrationLockRecord{})
	}()
	return fn()
}
