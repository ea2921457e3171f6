package backup

import (
	"testing"
	"time"

	"github.com/cuemby/kvdoc/pkg/storage"
	"github.com/cuemby/kvdoc/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, storage.Engine) {
	t.Helper()
	engine, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	pool := NewPool(2)
	t.Cleanup(pool.Stop)

	o := NewOrchestrator(engine, pool, t.TempDir())
	require.NoError(t, o.EnsureCFs())
	return o, engine
}

func waitForStatus(t *testing.T, get func() (types.BackupStatus, error), want types.BackupStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := get()
		require.NoError(t, err)
		if status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %q", want)
}

func TestStartBackupMissingCollection(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.StartBackup("widgets", "n-widgets")
	require.Error(t, err)
}

func TestBackupRoundTrip(t *testing.T) {
	o, engine := newTestOrchestrator(t)
	require.NoError(t, engine.CreateCF("n-widgets"))
	require.NoError(t, engine.InsertCF("n-widgets", "k1", map[string]any{"v": 1}))

	record, err := o.StartBackup("widgets", "n-widgets")
	require.NoError(t, err)
	require.Equal(t, types.StatusInProgress, record.Status)
	require.Len(t, record.ID, idLength)

	waitForStatus(t, func() (types.BackupStatus, error) {
		r, err := o.BackupStatus(record.ID)
		if err != nil {
			return "", err
		}
		return r.Status, nil
	}, types.StatusCompleted)

	finished, err := o.BackupStatus(record.ID)
	require.NoError(t, err)
	require.NotEmpty(t, finished.URL)

	var sideRecord types.BackupRecord
	require.NoError(t, engine.GetCF("n-widgets-backups", record.ID, &sideRecord))
	require.Equal(t, types.StatusCompleted, sideRecord.Status)
}

func TestBackupStatusNotFound(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.BackupStatus("does-not-exist")
	require.Error(t, err)
}

func TestUploadBackupCompletesSynchronously(t *testing.T) {
	o, engine := newTestOrchestrator(t)
	require.NoError(t, engine.CreateCF("n-widgets"))

	record, err := o.UploadBackup("widgets", "n-widgets", []byte("fake-sst-bytes"))
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, record.Status)
	require.NotEmpty(t, record.URL)
}

func TestUploadBackupMissingCollection(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.UploadBackup("widgets", "n-widgets", []byte("x"))
	require.Error(t, err)
}

func TestStartRestoreRequiresCompletedBackup(t *testing.T) {
	o, engine := newTestOrchestrator(t)
	require.NoError(t, engine.CreateCF("n-widgets"))
	require.NoError(t, engine.InsertCF(BackupsCF, "b1", types.BackupRecord{
		ID: "b1", Collection: "widgets", Status: types.StatusInProgress,
	}))

	_, err := o.StartRestore("widgets", "n-widgets", "b1")
	require.Error(t, err)
	var se *storage.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, storage.BadInput, se.Kind)
}

func TestStartRestoreUnknownBackup(t *testing.T) {
	o, engine := newTestOrchestrator(t)
	require.NoError(t, engine.CreateCF("n-widgets"))
	_, err := o.StartRestore("widgets", "n-widgets", "missing")
	require.Error(t, err)
	var se *storage.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, storage.KeyNotFound, se.Kind)
}

func TestBackupThenRestoreRoundTrip(t *testing.T) {
	o, engine := newTestOrchestrator(t)
	require.NoError(t, engine.CreateCF("n-widgets"))
	require.NoError(t, engine.InsertCF("n-widgets", "k1", map[string]any{"v": 1}))

	backupRecord, err := o.StartBackup("widgets", "n-widgets")
	require.NoError(t, err)
	waitForStatus(t, func() (types.BackupStatus, error) {
		r, err := o.BackupStatus(backupRecord.ID)
		if err != nil {
			return "", err
		}
		return r.Status, nil
	}, types.StatusCompleted)

	require.NoError(t, engine.DropCF("n-widgets"))
	require.NoError(t, engine.CreateCF("n-widgets"))

	restoreRecord, err := o.StartRestore("widgets", "n-widgets", backupRecord.ID)
	require.NoError(t, err)
	waitForStatus(t, func() (types.BackupStatus, error) {
		r, err := o.RestoreStatus(restoreRecord.ID)
		if err != nil {
			return "", err
		}
		return r.Status, nil
	}, types.StatusCompleted)

	var got map[string]any
	require.NoError(t, engine.GetCF("n-widgets", "k1", &got))
	require.Equal(t, float64(1), got["v"])
}

func TestListBackupsFiltersByUserName(t *testing.T) {
	o, engine := newTestOrchestrator(t)
	require.NoError(t, engine.InsertCF(BackupsCF, "b1", types.BackupRecord{ID: "b1", Collection: "widgets"}))
	require.NoError(t, engine.InsertCF(BackupsCF, "b2", types.BackupRecord{ID: "b2", Collection: "gadgets"}))

	list, err := o.ListBackups("widgets")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "b1", list[0].ID)
}

func TestListRestoresFiltersByUserName(t *testing.T) {
	o, engine := newTestOrchestrator(t)
	require.NoError(t, engine.InsertCF(RestoresCF, "r1", types.RestoreRecord{ID: "r1", Collection: "widgets"}))
	require.NoError(t, engine.InsertCF(RestoresCF, "r2", types.RestoreRecord{ID: "r2", Collection: "gadgets"}))

	list, err := o.ListRestores("widgets")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "r1", list[0].ID)
}
