package core

import (
	"sort"
	"time"

	"depmend/internal/types"
)

// BuildBackupPrunePlan splits stored snapshots into keep and delete
// sets per the retention policy. Snapshots belonging to protected
// attempts (typically attempts still in a non-terminal state) are
// always kept, as are snapshots younger than KeepDays and the KeepLast
// most recent ones.
func BuildBackupPrunePlan(snapshots []types.SnapshotInfo, policy types.BackupRetentionPolicy, now time.Time) types.BackupPrunePlan {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	normalized := normalizeRetention(policy)
	protected := map[string]struct{}{}
	for _, attemptID := range normalized.ProtectAttempts {
		if attemptID != "" {
			protected[attemptID] = struct{}{}
		}
	}

	keepIDs := map[string]struct{}{}
	for _, snapshot := range snapshots {
		if _, ok := protected[snapshot.AttemptID]; ok {
			keepIDs[snapshot.BackupID] = struct{}{}
		}
		if normalized.KeepDays > 0 && !snapshot.CreatedAt.IsZero() {
			cutoff := now.AddDate(0, 0, -normalized.KeepDays)
			if !snapshot.CreatedAt.Before(cutoff) {
				keepIDs[snapshot.BackupID] = struct{}{}
			}
		}
	}

	if normalized.KeepLast > 0 {
		sorted := append([]types.SnapshotInfo(nil), snapshots...)
		sort.Slice(sorted, func(i, j int) bool {
			if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
				return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
			}
			return sorted[i].BackupID < sorted[j].BackupID
		})
		limit := normalized.KeepLast
		if limit > len(sorted) {
			limit = len(sorted)
		}
		for i := 0; i < limit; i++ {
			keepIDs[sorted[i].BackupID] = struct{}{}
		}
	}

	var keep []types.SnapshotInfo
	var del []types.SnapshotInfo
	for _, snapshot := range snapshots {
		if _, ok := keepIDs[snapshot.BackupID]; ok {
			keep = append(keep, snapshot)
		} else {
			del = append(del, snapshot)
		}
	}
	return types.BackupPrunePlan{Keep: keep, Delete: del}
}

func normalizeRetention(policy types.BackupRetentionPolicy) types.BackupRetentionPolicy {
	normalized := policy
	if normalized.KeepLast < 0 {
		normalized.KeepLast = 0
	}
	if normalized.KeepDays < 0 {
		normalized.KeepDays = 0
	}
	return normalized
}
