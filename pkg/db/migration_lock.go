package db

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

// MigrationLocker serializes schema migrations across replicas.
type MigrationLocker interface {
	// WithLock runs fn while holding the migration lock.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker returns a locker for the database dialect. PostgreSQL
// uses an advisory lock; SQLite and MySQL use a lock table.
func NewMigrationLocker(gormDB *gorm.DB) MigrationLocker {
	if gormDB == nil {
		return noopLock{}
	}
	if gormDB.Dialector.Name() == DialectPostgres {
		return &advisoryLock{
			db:     gormDB,
			lockID: int64(crc32.ChecksumIEEE([]byte("qagate-migration"))),
		}
	}
	l := &tableLock{
		db:       gormDB,
		retries:  30,
		interval: time.Second,
		staleAge: 5 * time.Minute,
	}
	// Create the table up front so the first WithLock never races on it.
	_ = gormDB.AutoMigrate(&lockRecord{})
	return l
}

type noopLock struct{}

func (noopLock) WithLock(_ context.Context, fn func() error) error { return fn() }

type advisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *advisoryLock) WithLock(ctx context.Context, fn func() error) error {
	if err := l.db.WithContext(ctx).Exec("SELECT pg_advisory_lock(?)", l.lockID).Error; err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		_ = l.db.Exec("SELECT pg_advisory_unlock(?)", l.lockID).Error
	}()
	return fn()
}

type lockRecord struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (lockRecord) TableName() string { return "qagate_migration_lock" }

const lockRowID = "migration"

// tableLock holds the lock by owning a single row. Rows older than staleAge
// are treated as left behind by a crashed holder.
type tableLock struct {
	db       *gorm.DB
	retries  int
	interval time.Duration
	staleAge time.Duration
}

func (l *tableLock) WithLock(ctx context.Context, fn func() error) error {
	holder, _ := os.Hostname()
	if holder == "" {
		holder = "unknown"
	}
	row := lockRecord{ID: lockRowID, LockedBy: holder}

	for i := 0; ; i++ {
		l.db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", lockRowID, time.Now().Add(-l.staleAge)).
			Delete(&lockRecord{})

		row.LockedAt = time.Now()
		err := l.db.WithContext(ctx).Create(&row).Error
		if err == nil {
			break
		}
		if i >= l.retries-1 {
			return fmt.Errorf("acquire migration lock after %d attempts: %w", l.retries, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.interval):
		}
	}

	defer l.db.Where("id = ?", lockRowID).Delete(&lockRecord{})
	return fn()
}
