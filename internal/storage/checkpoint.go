package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/spendtag/internal/common"
)

// Checkpoint errors.
var (
	ErrCheckpointNotFound  = errors.New("checkpoint not found")
	ErrCheckpointCorrupted = errors.New("checkpoint integrity check failed")
	ErrCheckpointExists    = errors.New("checkpoint already exists")
)

// checkpointTables are counted into each checkpoint's metadata.
var checkpointTables = []string{"transactions", "tags", "analytics_views", "rule_patterns"}

// CheckpointInfo describes a stored database snapshot.
type CheckpointInfo struct {
	CreatedAt     time.Time      `json:"created_at"`
	RowCounts     map[string]int `json:"row_counts"`
	ID            string         `json:"id"`
	Description   string         `json:"description"`
	FileSize      int64          `json:"file_size"`
	SchemaVersion int            `json:"schema_version"`
	RuleVersion   int            `json:"rule_version"`
	IsAuto        bool           `json:"is_auto"`
}

// CheckpointManager snapshots the database into a checkpoints directory next
// to it. Each checkpoint is a standalone SQLite file plus a JSON sidecar.
type CheckpointManager struct {
	storage *SQLiteStorage
	dir     string
	now     func() time.Time
	keep    int
}

// Checkpoints returns the checkpoint manager for this database.
func (s *SQLiteStorage) Checkpoints() (*CheckpointManager, error) {
	dir, err := checkpointsDir(s.dbPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	return &CheckpointManager{storage: s, dir: dir, now: time.Now, keep: 5}, nil
}

func checkpointsDir(dbPath string) (string, error) {
	if dbPath == ":memory:" {
		return "", common.InvalidInputf("in-memory databases cannot be checkpointed")
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path: %w", err)
	}
	return filepath.Join(filepath.Dir(abs), "checkpoints"), nil
}

func validateCheckpointID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\'";`) || strings.Contains(id, "..") {
		return common.InvalidInputf("invalid checkpoint id %q", id)
	}
	return nil
}

// Create snapshots the database under id. An empty id is derived from the clock.
func (cm *CheckpointManager) Create(ctx context.Context, id, description string) (*CheckpointInfo, error) {
	return cm.create(ctx, id, description, false)
}

// AutoCheckpoint snapshots the database before a risky operation and prunes
// older automatic checkpoints with the same prefix.
func (cm *CheckpointManager) AutoCheckpoint(ctx context.Context, prefix string) (*CheckpointInfo, error) {
	id := fmt.Sprintf("%s-%s", prefix, cm.now().UTC().Format("20060102-150405.000"))
	info, err := cm.create(ctx, id, "automatic checkpoint before "+prefix, true)
	if err != nil {
		return nil, err
	}
	if err := cm.pruneAuto(ctx, prefix); err != nil {
		slog.WarnContext(ctx, "Failed to prune automatic checkpoints", "error", err)
	}
	return info, nil
}

func (cm *CheckpointManager) create(ctx context.Context, id, description string, auto bool) (*CheckpointInfo, error) {
	if id == "" {
		id = "checkpoint-" + cm.now().UTC().Format("2006-01-02-150405")
	}
	if err := validateCheckpointID(id); err != nil {
		return nil, err
	}

	dbFile := filepath.Join(cm.dir, id+".db")
	if _, err := os.Stat(dbFile); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointExists, id)
	}

	info := &CheckpointInfo{
		ID:          id,
		CreatedAt:   cm.now().UTC(),
		Description: description,
		RowCounts:   make(map[string]int, len(checkpointTables)),
		IsAuto:      auto,
	}

	db := cm.storage.db
	for _, table := range checkpointTables {
		var n int
		// #nosec G201 - table names come from a fixed list
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		info.RowCounts[table] = n
	}
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM rule_table_version").Scan(&info.RuleVersion); err != nil {
		return nil, fmt.Errorf("failed to read rule table version: %w", err)
	}
	schema, err := cm.storage.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	info.SchemaVersion = schema

	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	// #nosec G201 - id is validated and quotes in the directory are escaped
	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(dbFile, "'", "''"))); err != nil {
		return nil, fmt.Errorf("failed to snapshot database: %w", err)
	}

	stat, err := os.Stat(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to stat checkpoint: %w", err)
	}
	info.FileSize = stat.Size()

	if err := writeMetadata(filepath.Join(cm.dir, id+".meta.json"), info); err != nil {
		if rmErr := os.Remove(dbFile); rmErr != nil {
			slog.ErrorContext(ctx, "Failed to remove checkpoint after metadata failure", "error", rmErr)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "Created checkpoint", "id", id, "size", info.FileSize, "auto", auto)
	return info, nil
}

// List returns every checkpoint, newest first. Unreadable sidecars are skipped.
func (cm *CheckpointManager) List(_ context.Context) ([]CheckpointInfo, error) {
	entries, err := os.ReadDir(cm.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints directory: %w", err)
	}

	var checkpoints []CheckpointInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		info, err := readMetadata(filepath.Join(cm.dir, entry.Name()))
		if err != nil {
			continue
		}
		checkpoints = append(checkpoints, *info)
	}

	sort.SliceStable(checkpoints, func(i, j int) bool {
		return checkpoints[i].CreatedAt.After(checkpoints[j].CreatedAt)
	})
	return checkpoints, nil
}

// Delete removes a checkpoint and its metadata.
func (cm *CheckpointManager) Delete(_ context.Context, id string) error {
	if err := validateCheckpointID(id); err != nil {
		return err
	}
	dbFile := filepath.Join(cm.dir, id+".db")
	if _, err := os.Stat(dbFile); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}
	if err := os.Remove(dbFile); err != nil {
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}
	if err := os.Remove(filepath.Join(cm.dir, id+".meta.json")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove checkpoint metadata: %w", err)
	}
	return nil
}

func (cm *CheckpointManager) pruneAuto(ctx context.Context, prefix string) error {
	all, err := cm.List(ctx)
	if err != nil {
		return err
	}
	kept := 0
	for _, info := range all {
		if !info.IsAuto || !strings.HasPrefix(info.ID, prefix+"-") {
			continue
		}
		kept++
		if kept > cm.keep {
			if err := cm.Delete(ctx, info.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// RestoreCheckpoint replaces the database at dbPath with checkpoint id.
// The database must not be open. The replaced file is kept until the copy
// succeeds.
func RestoreCheckpoint(ctx context.Context, dbPath, id string) error {
	if err := validateCheckpointID(id); err != nil {
		return err
	}
	dir, err := checkpointsDir(dbPath)
	if err != nil {
		return err
	}

	src := filepath.Join(dir, id+".db")
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
		}
		return fmt.Errorf("failed to access checkpoint: %w", err)
	}
	if err := verifyIntegrity(ctx, src); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointCorrupted, err)
	}

	backup := dbPath + ".restore-backup"
	if err := copyFile(dbPath, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to back up current database: %w", err)
	}
	if err := copyFile(src, dbPath); err != nil {
		if restoreErr := copyFile(backup, dbPath); restoreErr != nil {
			slog.ErrorContext(ctx, "Failed to put the previous database back", "error", restoreErr)
		}
		return fmt.Errorf("failed to restore checkpoint: %w", err)
	}
	// Stale WAL frames would be replayed over the restored file.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s file: %w", suffix, err)
		}
	}
	if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
		slog.WarnContext(ctx, "Failed to remove restore backup", "path", backup, "error", err)
	}

	slog.InfoContext(ctx, "Restored checkpoint", "id", id, "database", dbPath)
	return nil
}

func verifyIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return errors.New(result)
	}
	return nil
}

// copyFile copies src to dst through a temporary file renamed into place.
func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(filepath.Clean(tmp), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func writeMetadata(path string, info *CheckpointInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write checkpoint metadata: %w", err)
	}
	return nil
}

func readMetadata(path string) (*CheckpointInfo, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var info CheckpointInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
