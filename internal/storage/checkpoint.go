package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Checkpoint file suffixes.
const (
	checkpointExt = ".db"
	metadataExt   = ".meta.json"
)

// maxAutoCheckpoints is how many automatic checkpoints are retained.
const maxAutoCheckpoints = 5

// Checkpoint errors.
var (
	ErrCheckpointNotFound     = errors.New("checkpoint not found")
	ErrCheckpointCorrupted    = errors.New("checkpoint integrity check failed")
	ErrCheckpointIncompatible = errors.New("checkpoint schema is newer than this version supports")
	ErrDiskSpaceLow           = errors.New("insufficient disk space for checkpoint")
	ErrCheckpointExists       = errors.New("checkpoint already exists")
	ErrInvalidCheckpointID    = errors.New("invalid checkpoint ID: cannot contain path separators")
)

// countedTables are summarized in checkpoint metadata.
var countedTables = []string{
	"owned_addresses",
	"raw_transactions",
	"classified_transactions",
	"tax_lots",
	"capital_gains",
}

// CheckpointManager snapshots and restores the database file. Snapshots live
// in a "checkpoints" directory next to the database.
type CheckpointManager struct {
	db     *sql.DB
	dbPath string
	dir    string
}

// CheckpointMetadata is written next to each snapshot.
type CheckpointMetadata struct {
	CreatedAt        time.Time      `json:"created_at"`
	RowCounts        map[string]int `json:"row_counts"`
	ParentCheckpoint *string        `json:"parent_checkpoint,omitempty"`
	ID               string         `json:"id"`
	Description      string         `json:"description"`
	FileSize         int64          `json:"file_size"`
	SchemaVersion    int            `json:"schema_version"`
	IsAuto           bool           `json:"is_auto"`
}

// CheckpointInfo summarizes a checkpoint for listing.
type CheckpointInfo struct {
	CreatedAt     time.Time
	ID            string
	Description   string
	FileSize      int64
	Transactions  int
	Classified    int
	Lots          int
	Gains         int
	SchemaVersion int
	IsAuto        bool
}

// NewCheckpointManager manages snapshots of the database at dbPath, which
// must be absolute.
func NewCheckpointManager(db *sql.DB, dbPath string) (*CheckpointManager, error) {
	dir := filepath.Join(filepath.Dir(dbPath), "checkpoints")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	return &CheckpointManager{db: db, dbPath: dbPath, dir: dir}, nil
}

// Create snapshots the database under tag. An empty tag is generated from the time.
func (cm *CheckpointManager) Create(ctx context.Context, tag, description string) (*CheckpointInfo, error) {
	return cm.create(ctx, tag, description, false)
}

// AutoCheckpoint snapshots the database before operation and prunes the
// oldest automatic checkpoints.
func (cm *CheckpointManager) AutoCheckpoint(ctx context.Context, operation string) (*CheckpointInfo, error) {
	tag := fmt.Sprintf("auto-%s-%s", operation, time.Now().Format("2006-01-02-150405.000"))
	info, err := cm.create(ctx, tag, "Automatic checkpoint before "+operation, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create auto-checkpoint: %w", err)
	}

	if err := cm.pruneAuto(ctx); err != nil {
		slog.Warn("Failed to prune automatic checkpoints", "error", err)
	}
	return info, nil
}

func (cm *CheckpointManager) create(ctx context.Context, tag, description string, isAuto bool) (*CheckpointInfo, error) {
	if tag == "" {
		tag = "checkpoint-" + time.Now().Format("2006-01-02-1504")
	}
	if err := validateCheckpointID(tag); err != nil {
		return nil, err
	}

	snapshotPath := cm.path(tag, checkpointExt)
	if _, err := os.Stat(snapshotPath); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointExists, tag)
	}

	current, err := os.Stat(cm.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat database: %w", err)
	}
	if err := cm.reserveSpace(current.Size() + current.Size()/10); err != nil {
		return nil, err
	}

	metadata := CheckpointMetadata{
		ID:          tag,
		CreatedAt:   time.Now(),
		Description: description,
		RowCounts:   cm.collectRowCounts(ctx),
		IsAuto:      isAuto,
	}
	if err := cm.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&metadata.SchemaVersion); err != nil {
		return nil, fmt.Errorf("failed to get schema version: %w", err)
	}

	if err := cm.snapshot(ctx, snapshotPath); err != nil {
		return nil, fmt.Errorf("failed to backup database: %w", err)
	}
	written, err := os.Stat(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat checkpoint: %w", err)
	}
	metadata.FileSize = written.Size()

	if err := writeMetadata(cm.path(tag, metadataExt), metadata); err != nil {
		_ = os.Remove(snapshotPath)
		return nil, fmt.Errorf("failed to save metadata: %w", err)
	}
	// The metadata file is authoritative; the table only mirrors it.
	if err := cm.recordMetadata(ctx, metadata); err != nil {
		slog.Warn("Failed to record checkpoint metadata", "error", err)
	}

	slog.Info("Created checkpoint", "id", tag, "size", metadata.FileSize, "auto", isAuto)
	return metadata.info(), nil
}

// List returns all checkpoints, newest first.
func (cm *CheckpointManager) List(_ context.Context) ([]CheckpointInfo, error) {
	files, err := filepath.Glob(filepath.Join(cm.dir, "*"+metadataExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	checkpoints := make([]CheckpointInfo, 0, len(files))
	for _, file := range files {
		metadata, err := readMetadata(file)
		if err != nil {
			slog.Debug("Skipping unreadable checkpoint metadata", "file", file, "error", err)
			continue
		}
		checkpoints = append(checkpoints, *metadata.info())
	}

	slices.SortFunc(checkpoints, func(a, b CheckpointInfo) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return checkpoints, nil
}

// GetCheckpointInfo returns a single checkpoint's metadata.
func (cm *CheckpointManager) GetCheckpointInfo(_ context.Context, checkpointID string) (*CheckpointInfo, error) {
	if err := validateCheckpointID(checkpointID); err != nil {
		return nil, err
	}
	metadata, err := readMetadata(cm.path(checkpointID, metadataExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, checkpointID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint metadata: %w", err)
	}
	return metadata.info(), nil
}

// Restore replaces the database file with a checkpoint. The manager's
// connection is closed; callers must reopen storage afterwards.
func (cm *CheckpointManager) Restore(_ context.Context, checkpointID string) error {
	snapshotPath, err := cm.locate(checkpointID)
	if err != nil {
		return err
	}
	metadata, err := readMetadata(cm.path(checkpointID, metadataExt))
	if err != nil {
		return fmt.Errorf("failed to load checkpoint metadata: %w", err)
	}
	if metadata.SchemaVersion > ExpectedSchemaVersion {
		return fmt.Errorf("%w: version %d, supported %d", ErrCheckpointIncompatible, metadata.SchemaVersion, ExpectedSchemaVersion)
	}
	if err := verifyIntegrity(snapshotPath); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointCorrupted, err)
	}

	if _, err := cm.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		slog.Debug("Failed to flush WAL before restore", "error", err)
	}
	if err := cm.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	previous := cm.dbPath + ".restore-backup"
	if err := copyFile(cm.dbPath, previous); err != nil {
		return fmt.Errorf("failed to backup current database: %w", err)
	}
	if err := copyFile(snapshotPath, cm.dbPath); err != nil {
		if rollbackErr := copyFile(previous, cm.dbPath); rollbackErr != nil {
			slog.Error("Failed to roll back after restore failure", "error", rollbackErr)
		}
		return fmt.Errorf("failed to restore checkpoint: %w", err)
	}

	// A leftover WAL would be replayed over the restored snapshot.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(cm.dbPath + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to remove stale database file", "file", cm.dbPath+suffix, "error", err)
		}
	}
	if err := os.Remove(previous); err != nil {
		slog.Warn("Failed to remove restore backup", "file", previous, "error", err)
	}

	slog.Info("Restored checkpoint", "id", checkpointID, "schema_version", metadata.SchemaVersion)
	return nil
}

// Delete removes a checkpoint and its metadata.
func (cm *CheckpointManager) Delete(ctx context.Context, checkpointID string) error {
	snapshotPath, err := cm.locate(checkpointID)
	if err != nil {
		return err
	}
	if err := os.Remove(snapshotPath); err != nil {
		return fmt.Errorf("failed to remove checkpoint file: %w", err)
	}
	if err := os.Remove(cm.path(checkpointID, metadataExt)); err != nil {
		slog.Debug("Failed to remove checkpoint metadata file", "id", checkpointID, "error", err)
	}
	if _, err := cm.db.ExecContext(ctx, "DELETE FROM checkpoint_metadata WHERE id = ?", checkpointID); err != nil {
		slog.Debug("Failed to remove checkpoint metadata row", "id", checkpointID, "error", err)
	}
	return nil
}

// locate returns the snapshot path of an existing checkpoint.
func (cm *CheckpointManager) locate(checkpointID string) (string, error) {
	if err := validateCheckpointID(checkpointID); err != nil {
		return "", err
	}
	p := cm.path(checkpointID, checkpointExt)
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrCheckpointNotFound, checkpointID)
		}
		return "", fmt.Errorf("failed to access checkpoint: %w", err)
	}
	return p, nil
}

func (cm *CheckpointManager) path(id, ext string) string {
	return filepath.Join(cm.dir, id+ext)
}

func validateCheckpointID(id string) error {
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return ErrInvalidCheckpointID
	}
	return nil
}

func (m *CheckpointMetadata) info() *CheckpointInfo {
	return &CheckpointInfo{
		ID:            m.ID,
		CreatedAt:     m.CreatedAt,
		Description:   m.Description,
		FileSize:      m.FileSize,
		Transactions:  m.RowCounts["raw_transactions"],
		Classified:    m.RowCounts["classified_transactions"],
		Lots:          m.RowCounts["tax_lots"],
		Gains:         m.RowCounts["capital_gains"],
		SchemaVersion: m.SchemaVersion,
		IsAuto:        m.IsAuto,
	}
}

// collectRowCounts records zero for tables an older schema lacks.
func (cm *CheckpointManager) collectRowCounts(ctx context.Context) map[string]int {
	counts := make(map[string]int, len(countedTables))
	for _, table := range countedTables {
		var n int
		if err := cm.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			n = 0
		}
		counts[table] = n
	}
	return counts
}

// reserveSpace fails when a file of size bytes cannot be allocated.
func (cm *CheckpointManager) reserveSpace(size int64) error {
	probe, err := os.CreateTemp(cm.dir, ".space-*")
	if err != nil {
		return fmt.Errorf("failed to probe disk space: %w", err)
	}
	defer func() {
		_ = probe.Close()
		_ = os.Remove(probe.Name())
	}()

	if err := probe.Truncate(size); err != nil {
		return fmt.Errorf("%w: need %d bytes", ErrDiskSpaceLow, size)
	}
	return nil
}

// snapshot writes a consistent copy of the database to dest.
func (cm *CheckpointManager) snapshot(ctx context.Context, dest string) error {
	if _, err := cm.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	if !filepath.IsAbs(dest) || strings.ContainsAny(dest, `'";`) {
		return fmt.Errorf("invalid destination path %q", dest)
	}

	// #nosec G201 - dest is an absolute path without quote characters
	if _, err := cm.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", dest)); err != nil {
		slog.Debug("VACUUM INTO failed, copying database file", "error", err)
		return copyFile(cm.dbPath, dest)
	}
	return nil
}

func (cm *CheckpointManager) recordMetadata(ctx context.Context, m CheckpointMetadata) error {
	counts, err := json.Marshal(m.RowCounts)
	if err != nil {
		return err
	}
	_, err = cm.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO checkpoint_metadata
			(id, created_at, description, file_size, row_counts, schema_version, is_auto, parent_checkpoint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.CreatedAt, m.Description, m.FileSize, string(counts), m.SchemaVersion, m.IsAuto, m.ParentCheckpoint)
	return err
}

// pruneAuto keeps the newest maxAutoCheckpoints automatic checkpoints.
func (cm *CheckpointManager) pruneAuto(ctx context.Context) error {
	checkpoints, err := cm.List(ctx)
	if err != nil {
		return err
	}

	auto := lo.Filter(checkpoints, func(cp CheckpointInfo, _ int) bool { return cp.IsAuto })
	var errs []error
	for _, cp := range lo.Drop(auto, maxAutoCheckpoints) {
		if err := cm.Delete(ctx, cp.ID); err != nil {
			errs = append(errs, fmt.Errorf("checkpoint %s: %w", cp.ID, err))
		}
	}
	return errors.Join(errs...)
}

// copyFile replaces dst with a copy of src via a temporary file in dst's directory.
func copyFile(src, dst string) error {
	// #nosec G304 - src is the database or a checkpoint owned by the manager
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func writeMetadata(path string, m CheckpointMetadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readMetadata(path string) (*CheckpointMetadata, error) {
	// #nosec G304 - path is built from a validated checkpoint ID
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m CheckpointMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return &m, nil
}

// verifyIntegrity runs SQLite's integrity check against a snapshot file.
func verifyIntegrity(path string) error {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
