package adapters

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"depmend/internal/ports"
	"depmend/internal/types"
)

const (
	snapshotManifestFile = "manifest.txt"
	snapshotMetaFile     = "metadata.json"
	snapshotConfigDir    = "config"
)

type snapshotMetadata struct {
	BackupID     string    `json:"backup_id"`
	AttemptID    string    `json:"attempt_id"`
	PackageCount int       `json:"package_count"`
	ConfigFiles  []string  `json:"config_files"`
	CreatedAt    time.Time `json:"created_at"`
}

// FileBackupStore persists environment snapshots as one directory per
// backup id. Snapshots are immutable after Save; only Delete (driven by
// the retention pruner) removes them.
type FileBackupStore struct {
	Dir string
}

func NewFileBackupStore(dir string) FileBackupStore {
	return FileBackupStore{Dir: dir}
}

// ComputeBackupID derives the snapshot identity from its contents plus
// the creation timestamp: identical environments captured at different
// times differ only by the timestamp component.
func ComputeBackupID(manifest types.Manifest, configs []types.ConfigBlob, createdAt time.Time) string {
	hash := sha256.New()
	hash.Write(manifest.Render())
	for _, blob := range configs {
		hash.Write([]byte(blob.Name))
		hash.Write(blob.Content)
	}
	hash.Write([]byte(createdAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(hash.Sum(nil))[:16]
}

func (s FileBackupStore) Save(snapshot types.EnvironmentSnapshot, attemptID string) error {
	dir := filepath.Join(s.Dir, snapshot.BackupID)
	if _, err := os.Stat(dir); err == nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg(fmt.Sprintf("backup %s already exists", snapshot.BackupID))
	}
	if err := os.MkdirAll(filepath.Join(dir, snapshotConfigDir), 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot create backup directory").
			WithCause(err)
	}

	if err := os.WriteFile(filepath.Join(dir, snapshotManifestFile), snapshot.Manifest.Render(), 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot write backup manifest").
			WithCause(err)
	}
	configNames := make([]string, 0, len(snapshot.ConfigFiles))
	for _, blob := range snapshot.ConfigFiles {
		name := filepath.Base(blob.Name)
		configNames = append(configNames, name)
		if err := os.WriteFile(filepath.Join(dir, snapshotConfigDir, name), blob.Content, 0o644); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("cannot write backup config %s", name)).
				WithCause(err)
		}
	}

	meta := snapshotMetadata{
		BackupID:     snapshot.BackupID,
		AttemptID:    attemptID,
		PackageCount: len(snapshot.Manifest),
		ConfigFiles:  configNames,
		CreatedAt:    snapshot.CreatedAt,
	}
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot encode backup metadata").
			WithCause(err)
	}
	if err := os.WriteFile(filepath.Join(dir, snapshotMetaFile), encoded, 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot write backup metadata").
			WithCause(err)
	}
	return nil
}

func (s FileBackupStore) Load(backupID string) (types.EnvironmentSnapshot, error) {
	dir := filepath.Join(s.Dir, backupID)
	meta, err := s.readMetadata(dir)
	if err != nil {
		return types.EnvironmentSnapshot{}, err
	}

	manifestData, err := os.ReadFile(filepath.Join(dir, snapshotManifestFile))
	if err != nil {
		return types.EnvironmentSnapshot{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("cannot read manifest of backup %s", backupID)).
			WithCause(err)
	}
	manifest, err := types.ParseManifest(manifestData)
	if err != nil {
		return types.EnvironmentSnapshot{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("backup %s manifest is corrupt", backupID)).
			WithCause(err)
	}

	var configs []types.ConfigBlob
	for _, name := range meta.ConfigFiles {
		content, err := os.ReadFile(filepath.Join(dir, snapshotConfigDir, name))
		if err != nil {
			return types.EnvironmentSnapshot{}, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("cannot read config %s of backup %s", name, backupID)).
				WithCause(err)
		}
		configs = append(configs, types.ConfigBlob{Name: name, Content: content})
	}

	return types.EnvironmentSnapshot{
		BackupID:    meta.BackupID,
		Manifest:    manifest,
		ConfigFiles: configs,
		CreatedAt:   meta.CreatedAt,
	}, nil
}

func (s FileBackupStore) List() ([]types.SnapshotInfo, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot list backups").
			WithCause(err)
	}
	var infos []types.SnapshotInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.readMetadata(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			continue
		}
		infos = append(infos, types.SnapshotInfo{
			BackupID:     meta.BackupID,
			AttemptID:    meta.AttemptID,
			PackageCount: meta.PackageCount,
			CreatedAt:    meta.CreatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.Before(infos[j].CreatedAt)
		}
		return infos[i].BackupID < infos[j].BackupID
	})
	return infos, nil
}

func (s FileBackupStore) Delete(backupID string) error {
	dir := filepath.Join(s.Dir, backupID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("backup %s not found", backupID))
	}
	return os.RemoveAll(dir)
}

func (s FileBackupStore) readMetadata(dir string) (snapshotMetadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, snapshotMetaFile))
	if err != nil {
		return snapshotMetadata{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("backup metadata missing in %s", dir)).
			WithCause(err)
	}
	var meta snapshotMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return snapshotMetadata{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("backup metadata corrupt in %s", dir)).
			WithCause(err)
	}
	return meta, nil
}

var _ ports.BackupStorePort = FileBackupStore{}
