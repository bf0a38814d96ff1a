package ports

import (
	"context"

	"depmend/internal/types"
)

// ScanProviderPort runs the external audit tool and returns its raw
// structured output. Scope is a package name or "" for all installed.
type ScanProviderPort interface {
	RawReport(ctx context.Context, scope string, correlationID string) ([]byte, error)
}

// ManifestStorePort reads and writes the live dependency manifest.
// Write must be atomic: a crash mid-write never leaves a half-written
// manifest on disk.
type ManifestStorePort interface {
	Read() (types.Manifest, error)
	WriteAtomic(manifest types.Manifest) error
}

// BackupStorePort persists immutable environment snapshots.
type BackupStorePort interface {
	Save(snapshot types.EnvironmentSnapshot, attemptID string) error
	Load(backupID string) (types.EnvironmentSnapshot, error)
	List() ([]types.SnapshotInfo, error)
	Delete(backupID string) error
}
