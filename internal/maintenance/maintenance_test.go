package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/goran-ethernal/watch-tower/internal/logger"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "maintenance.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewReturnsNoOpWhenDisabled(t *testing.T) {
	db := openTestDB(t)
	c := New(db, Config{Enabled: false}, logger.NewNop())

	_, ok := c.(NoOp)
	require.True(t, ok)
	require.NoError(t, c.RunMaintenance(context.Background()))
}

func TestRunMaintenanceRecordsMetrics(t *testing.T) {
	db := openTestDB(t)
	c := New(db, Config{Enabled: true, CheckInterval: time.Hour}, logger.NewNop())

	require.NoError(t, c.RunMaintenance(context.Background()))

	m := c.Metrics()
	require.Equal(t, uint64(1), m.Runs)
	require.NoError(t, m.LastErr)
	require.False(t, m.LastRun.IsZero())
}

func TestAcquireOperationLockBlocksMaintenance(t *testing.T) {
	db := openTestDB(t)
	coordinator := New(db, Config{Enabled: true, CheckInterval: time.Hour}, logger.NewNop())
	bc := coordinator.(*BBoltCoordinator)

	release := bc.AcquireOperationLock()

	done := make(chan struct{})
	go func() {
		require.NoError(t, bc.RunMaintenance(context.Background()))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("maintenance ran while an operation lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	<-done
}

func TestStartRunsOnStartupThenStops(t *testing.T) {
	db := openTestDB(t)
	c := New(db, Config{Enabled: true, CheckInterval: time.Hour, RunOnStartup: true}, logger.NewNop())

	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, uint64(1), c.Metrics().Runs)
	require.NoError(t, c.Stop())
}
