// Package backup implements the backup/restore state machine: starting an
// async SST snapshot or ingest, tracking it through in_progress/completed/
// failed, and answering status and listing queries against the persisted
// records.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/kvdoc/pkg/log"
	"github.com/cuemby/kvdoc/pkg/metrics"
	"github.com/cuemby/kvdoc/pkg/storage"
	"github.com/cuemby/kvdoc/pkg/types"
	"github.com/google/uuid"
)

const (
	BackupsCF  = "backups"
	RestoresCF = "restores"
	idLength   = 21
)

// Orchestrator drives backup and restore operations against engine,
// persisting their state machine in BackupsCF/RestoresCF (and, for backups,
// the collection's own sibling "{internal}-backups" CF) and dispatching the
// blocking SST work onto pool.
type Orchestrator struct {
	engine    storage.Engine
	pool      *Pool
	backupDir string
}

// NewOrchestrator builds an Orchestrator writing SST files under backupDir.
func NewOrchestrator(engine storage.Engine, pool *Pool, backupDir string) *Orchestrator {
	return &Orchestrator{engine: engine, pool: pool, backupDir: backupDir}
}

// EnsureCFs creates BackupsCF and RestoresCF if they don't already exist.
// Safe to call on every startup.
func (o *Orchestrator) EnsureCFs() error {
	if exists, err := o.engine.CFExists(BackupsCF); err != nil {
		return err
	} else if !exists {
		if err := o.engine.CreateCF(BackupsCF); err != nil {
			return err
		}
	}
	if exists, err := o.engine.CFExists(RestoresCF); err != nil {
		return err
	} else if !exists {
		if err := o.engine.CreateCF(RestoresCF); err != nil {
			return err
		}
	}
	return nil
}

func newID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return raw[:idLength]
}

func (o *Orchestrator) backupsCFFor(internalName string) string {
	return internalName + "-backups"
}

func (o *Orchestrator) sstPath(userName, id string) string {
	return filepath.Join(o.backupDir, fmt.Sprintf("%s-%s.sst", userName, id))
}

func (o *Orchestrator) sstURL(userName, id string) string {
	return fmt.Sprintf("/backups/%s-%s.sst", userName, id)
}

// StartBackup validates that internalName exists, persists an in_progress
// record under a fresh id, and dispatches the actual snapshot asynchronously.
// It returns the initial record immediately.
func (o *Orchestrator) StartBackup(userName, internalName string) (*types.BackupRecord, error) {
	if exists, err := o.engine.CFExists(internalName); err != nil {
		return nil, err
	} else if !exists {
		return nil, &storage.Error{Kind: storage.InvalidColumnFamily, Op: "start_backup", CF: internalName}
	}

	id := newID()
	record := types.BackupRecord{
		ID:         id,
		Collection: userName,
		StartedAt:  time.Now().UTC(),
		Status:     types.StatusInProgress,
	}
	backupCF := o.backupsCFFor(internalName)
	if exists, err := o.engine.CFExists(backupCF); err != nil {
		return nil, err
	} else if !exists {
		if err := o.engine.CreateCF(backupCF); err != nil {
			return nil, err
		}
	}
	if err := o.persistBackup(internalName, record); err != nil {
		return nil, err
	}

	path := o.sstPath(userName, id)
	o.pool.Submit(func() { o.runBackup(userName, internalName, id, path) })

	return &record, nil
}

func (o *Orchestrator) runBackup(userName, internalName, id, path string) {
	logger := log.WithBackupID(id)
	timer := metrics.NewTimer()
	err := o.engine.CreateBackup(internalName, path)
	timer.ObserveDuration(metrics.BackupDuration)

	var record types.BackupRecord
	if getErr := o.engine.GetCF(BackupsCF, id, &record); getErr != nil {
		logger.Error().Err(getErr).Msg("failed to re-read backup record")
		record = types.BackupRecord{ID: id, Collection: userName, StartedAt: time.Now().UTC()}
	}

	now := time.Now().UTC()
	record.FinishedAt = &now
	if err != nil {
		record.Status = types.StatusFailed
		record.Error = err.Error()
		_ = os.Remove(path)
		logger.Error().Err(err).Msg("backup failed")
	} else {
		record.Status = types.StatusCompleted
		record.URL = o.sstURL(userName, id)
		logger.Info().Msg("backup completed")
	}
	metrics.BackupsTotal.WithLabelValues(string(record.Status)).Inc()

	if err := o.persistBackup(internalName, record); err != nil {
		logger.Error().Err(err).Msg("failed to persist backup record")
	}
}

func (o *Orchestrator) persistBackup(internalName string, record types.BackupRecord) error {
	if err := o.engine.InsertCF(BackupsCF, record.ID, record); err != nil {
		return err
	}
	return o.engine.InsertCF(o.backupsCFFor(internalName), record.ID, record)
}

// UploadBackup writes data straight to the SST path and records a completed
// backup synchronously; there is no async dispatch because the bytes are
// already fully available.
func (o *Orchestrator) UploadBackup(userName, internalName string, data []byte) (*types.BackupRecord, error) {
	if exists, err := o.engine.CFExists(internalName); err != nil {
		return nil, err
	} else if !exists {
		return nil, &storage.Error{Kind: storage.InvalidColumnFamily, Op: "upload_backup", CF: internalName}
	}

	id := newID()
	now := time.Now().UTC()
	record := types.BackupRecord{
		ID:         id,
		Collection: userName,
		StartedAt:  now,
		FinishedAt: &now,
		Status:     types.StatusCompleted,
		URL:        o.sstURL(userName, id),
	}

	backupCF := o.backupsCFFor(internalName)
	if exists, err := o.engine.CFExists(backupCF); err != nil {
		return nil, err
	} else if !exists {
		if err := o.engine.CreateCF(backupCF); err != nil {
			return nil, err
		}
	}

	path := o.sstPath(userName, id)
	if err := os.MkdirAll(o.backupDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}

	if err := o.persistBackup(internalName, record); err != nil {
		return nil, err
	}
	metrics.BackupsTotal.WithLabelValues(string(record.Status)).Inc()
	return &record, nil
}

// StartRestore validates backupID refers to a completed backup whose SST
// file is present on disk, persists an in_progress restore record, and
// dispatches the ingest asynchronously.
func (o *Orchestrator) StartRestore(userName, internalName, backupID string) (*types.RestoreRecord, error) {
	if exists, err := o.engine.CFExists(internalName); err != nil {
		return nil, err
	} else if !exists {
		return nil, &storage.Error{Kind: storage.InvalidColumnFamily, Op: "start_restore", CF: internalName}
	}

	id := newID()
	record := types.RestoreRecord{
		ID:         id,
		Collection: userName,
		StartedAt:  time.Now().UTC(),
		Status:     types.StatusInProgress,
	}

	var backupRecord types.BackupRecord
	if err := o.engine.GetCF(BackupsCF, backupID, &backupRecord); err != nil {
		o.failRestore(record, fmt.Sprintf("backup %s not found", backupID))
		return nil, &storage.Error{Kind: storage.KeyNotFound, Op: "start_restore", CF: BackupsCF, Err: err}
	}
	if backupRecord.Status != types.StatusCompleted {
		o.failRestore(record, fmt.Sprintf("backup %s is not completed", backupID))
		return nil, &storage.Error{Kind: storage.BadInput, Op: "start_restore", CF: BackupsCF}
	}
	if backupRecord.URL == "" {
		o.failRestore(record, fmt.Sprintf("backup %s has no file", backupID))
		return nil, &storage.Error{Kind: storage.BadInput, Op: "start_restore", CF: BackupsCF}
	}
	path := filepath.Join(o.backupDir, filepath.Base(backupRecord.URL))
	if _, err := os.Stat(path); err != nil {
		o.failRestore(record, fmt.Sprintf("backup file not found for backup %s", backupID))
		return nil, &storage.Error{Kind: storage.BadInput, Op: "start_restore", CF: BackupsCF, Err: err}
	}

	if err := o.engine.InsertCF(RestoresCF, id, record); err != nil {
		return nil, err
	}

	o.pool.Submit(func() { o.runRestore(internalName, id, path) })
	return &record, nil
}

func (o *Orchestrator) failRestore(record types.RestoreRecord, message string) {
	now := time.Now().UTC()
	record.FinishedAt = &now
	record.Status = types.StatusFailed
	record.Error = message
	_ = o.engine.InsertCF(RestoresCF, record.ID, record)
}

func (o *Orchestrator) runRestore(internalName, id, path string) {
	logger := log.WithBackupID(id)
	timer := metrics.NewTimer()
	err := o.engine.RestoreBackup(internalName, path)
	timer.ObserveDuration(metrics.RestoreDuration)

	var record types.RestoreRecord
	if getErr := o.engine.GetCF(RestoresCF, id, &record); getErr != nil {
		logger.Error().Err(getErr).Msg("failed to re-read restore record")
		return
	}

	now := time.Now().UTC()
	record.FinishedAt = &now
	if err != nil {
		record.Status = types.StatusFailed
		record.Error = err.Error()
		logger.Error().Err(err).Msg("restore failed")
	} else {
		record.Status = types.StatusCompleted
		logger.Info().Msg("restore completed")
	}
	metrics.RestoresTotal.WithLabelValues(string(record.Status)).Inc()

	if err := o.engine.InsertCF(RestoresCF, id, record); err != nil {
		logger.Error().Err(err).Msg("failed to persist restore record")
	}
}

// BackupStatus returns the backup record for id.
func (o *Orchestrator) BackupStatus(id string) (*types.BackupRecord, error) {
	var record types.BackupRecord
	if err := o.engine.GetCF(BackupsCF, id, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// RestoreStatus returns the restore record for id.
func (o *Orchestrator) RestoreStatus(id string) (*types.RestoreRecord, error) {
	var record types.RestoreRecord
	if err := o.engine.GetCF(RestoresCF, id, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListBackups returns every backup record belonging to userName, scanning
// the global BackupsCF.
func (o *Orchestrator) ListBackups(userName string) ([]types.BackupRecord, error) {
	var all []types.BackupRecord
	if err := o.engine.GetRangeCF(BackupsCF, storage.RangeOptions{}, &all); err != nil {
		return nil, err
	}
	out := make([]types.BackupRecord, 0, len(all))
	for _, r := range all {
		if r.Collection == userName {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListRestores returns every restore record belonging to userName, scanning
// the global RestoresCF. Both list endpoints filter on the user-visible
// collection name for consistency.
func (o *Orchestrator) ListRestores(userName string) ([]types.RestoreRecord, error) {
	var all []types.RestoreRecord
	if err := o.engine.GetRangeCF(RestoresCF, storage.RangeOptions{}, &all); err != nil {
		return nil, err
	}
	out := make([]types.RestoreRecord, 0, len(all))
	for _, r := range all {
		if r.Collection == userName {
			out = append(out, r)
		}
	}
	return out, nil
}
