package types

import "time"

// ConfigBlob is a named configuration file captured alongside the
// manifest (e.g. pyproject.toml).
type ConfigBlob struct {
	Name    string
	Content []byte
}

// EnvironmentSnapshot is an immutable capture of the dependency
// manifest and config files, sufficient to fully restore prior state.
// BackupID is content-derived: identical inputs at different times
// differ only by the timestamp component of the hash.
type EnvironmentSnapshot struct {
	BackupID    string
	Manifest    Manifest
	ConfigFiles []ConfigBlob
	CreatedAt   time.Time
}

// SnapshotInfo is the listing view of a stored snapshot, used by the
// retention pruner without loading snapshot contents.
type SnapshotInfo struct {
	BackupID     string
	AttemptID    string
	PackageCount int
	CreatedAt    time.Time
}

type BackupRetentionPolicy struct {
	KeepLast        int
	KeepDays        int
	ProtectAttempts []string
	DryRun          bool
}

type BackupPrunePlan struct {
	Keep   []SnapshotInfo
	Delete []SnapshotInfo
}
