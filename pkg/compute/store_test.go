package compute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB creates an in-memory SQLite DB with compute tables migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestInstanceStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	store := NewInstanceStore(newTestDB(t))

	require.NoError(t, store.Create(ctx, &Instance{
		ID:             "vm-1",
		Name:           "web",
		VMState:        VMStateActive,
		Host:           "node-a",
		HypervisorType: "kvm",
	}))

	got, err := store.Get(ctx, "vm-1")
	require.NoError(t, err)
	assert.Equal(t, "web", got.Name)
	assert.Equal(t, VMStateActive, got.VMState)
	assert.Equal(t, TaskNone, got.TaskState)
	assert.Equal(t, "node-a", got.Host)
	assert.False(t, got.Locked)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestInstanceStore_ResetState(t *testing.T) {
	ctx := context.Background()
	store := NewInstanceStore(newTestDB(t))
	require.NoError(t, store.Create(ctx, &Instance{ID: "vm-1", VMState: VMStateError, TaskState: TaskMigrating}))

	require.NoError(t, store.ResetState(ctx, "vm-1", VMStateActive))

	got, err := store.Get(ctx, "vm-1")
	require.NoError(t, err)
	assert.Equal(t, VMStateActive, got.VMState)
	assert.Equal(t, TaskNone, got.TaskState)

	assert.ErrorIs(t, store.ResetState(ctx, "missing", VMStateActive), ErrInstanceNotFound)
}

func TestInstanceStore_BeginTask(t *testing.T) {
	ctx := context.Background()
	store := NewInstanceStore(newTestDB(t))
	require.NoError(t, store.Create(ctx, &Instance{ID: "vm-1", VMState: VMStateActive}))

	require.NoError(t, store.BeginTask(ctx, "vm-1", VMStateActive, TaskPausing, "pause"))

	t.Run("second task is rejected on task_state", func(t *testing.T) {
		err := store.BeginTask(ctx, "vm-1", VMStateActive, TaskSuspending, "suspend")
		var stateErr *InvalidStateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, "task_state", stateErr.Attr)
		assert.Equal(t, string(TaskPausing), stateErr.State)
	})

	t.Run("stale vm_state is rejected", func(t *testing.T) {
		require.NoError(t, store.FinishTask(ctx, "vm-1", VMStatePaused, ""))
		err := store.BeginTask(ctx, "vm-1", VMStateActive, TaskSuspending, "suspend")
		var stateErr *InvalidStateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, "vm_state", stateErr.Attr)
		assert.Equal(t, string(VMStatePaused), stateErr.State)
	})

	t.Run("missing instance", func(t *testing.T) {
		err := store.BeginTask(ctx, "missing", VMStateActive, TaskPausing, "pause")
		assert.ErrorIs(t, err, ErrInstanceNotFound)
	})
}

func TestInstanceStore_Get_DatabaseError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	mock.ExpectQuery(".*").WillReturnError(errors.New("connection reset"))

	_, err = NewInstanceStore(db).Get(context.Background(), "vm-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInstanceNotFound)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestHostStore(t *testing.T) {
	ctx := context.Background()
	store := NewHostStore(newTestDB(t))

	require.NoError(t, store.Upsert(ctx, Host{Name: "node-a", Enabled: true, HypervisorType: "kvm", HypervisorVersion: 6}))
	require.NoError(t, store.Upsert(ctx, Host{Name: "net-1", Service: "network", Enabled: true}))

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	computeHosts, err := store.List(ctx, "compute")
	require.NoError(t, err)
	require.Len(t, computeHosts, 1)
	assert.Equal(t, "node-a", computeHosts[0].Name)

	require.NoError(t, store.SetEnabled(ctx, "node-a", false))
	h, err := store.Get(ctx, "node-a")
	require.NoError(t, err)
	assert.False(t, h.Enabled)

	assert.ErrorIs(t, store.SetEnabled(ctx, "missing", true), ErrHostNotFound)
	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrHostNotFound)
}

func TestImageStore_Rotate(t *testing.T) {
	ctx := context.Background()
	store := NewImageStore(newTestDB(t))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"img-1", "img-2", "img-3", "img-4"} {
		require.NoError(t, store.Create(ctx, &Image{
			ID:         id,
			InstanceID: "vm-1",
			Name:       id,
			ImageType:  "backup",
			BackupType: "daily",
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, store.Create(ctx, &Image{
		ID: "weekly-1", InstanceID: "vm-1", Name: "w", ImageType: "backup", BackupType: "weekly", CreatedAt: base,
	}))

	removed, err := store.Rotate(ctx, "vm-1", "daily", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	remaining, err := store.ListBackups(ctx, "vm-1", "daily")
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "img-4", remaining[0].ID)
	assert.Equal(t, "img-3", remaining[1].ID)

	weekly, err := store.ListBackups(ctx, "vm-1", "weekly")
	require.NoError(t, err)
	assert.Len(t, weekly, 1, "rotation is scoped to one backup type")

	removed, err = store.Rotate(ctx, "vm-1", "daily", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

// newMySQLMock returns a gorm MySQL handle over sqlmock. Default transactions
// are skipped so each statement maps to one expectation.
func newMySQLMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), SkipDefaultTransaction: true})
	require.NoError(t, err)
	return db, mock
}

// MySQL reports zero affected rows when an UPDATE matches a row whose values
// are already the requested ones.
func TestStores_UnchangedRowIsNotMissing(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		table   string
		run     func(db *gorm.DB) error
		missing error
	}{
		{
			name:    "reset state to current state",
			table:   "instances",
			run:     func(db *gorm.DB) error { return NewInstanceStore(db).ResetState(ctx, "vm-1", VMStateActive) },
			missing: ErrInstanceNotFound,
		},
		{
			name:    "finish task with unchanged values",
			table:   "instances",
			run:     func(db *gorm.DB) error { return NewInstanceStore(db).FinishTask(ctx, "vm-1", VMStateActive, "") },
			missing: ErrInstanceNotFound,
		},
		{
			name:    "lock a locked instance",
			table:   "instances",
			run:     func(db *gorm.DB) error { return NewInstanceStore(db).SetLocked(ctx, "vm-1", true) },
			missing: ErrInstanceNotFound,
		},
		{
			name:    "enable an enabled host",
			table:   "hosts",
			run:     func(db *gorm.DB) error { return NewHostStore(db).SetEnabled(ctx, "node-a", true) },
			missing: ErrHostNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMySQLMock(t)
			mock.ExpectExec("UPDATE `" + tt.table + "`").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT count").WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(1))

			require.NoError(t, tt.run(db))
			assert.NoError(t, mock.ExpectationsWereMet())
		})

		t.Run(tt.name+" when the row is gone", func(t *testing.T) {
			db, mock := newMySQLMock(t)
			mock.ExpectExec("UPDATE `" + tt.table + "`").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT count").WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(0))

			assert.ErrorIs(t, tt.run(db), tt.missing)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
