package app

import (
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"depmend/internal/core"
	"depmend/internal/ports"
	"depmend/internal/types"
)

// Pruner applies the backup retention policy. Snapshots of attempts
// that never reached a terminal state are always protected; they are
// the only way back for an interrupted upgrade.
type Pruner struct {
	Backups ports.BackupStorePort
	Audit   ports.AuditTrailPort
	Clock   func() time.Time
}

func NewPruner(backups ports.BackupStorePort, audit ports.AuditTrailPort) Pruner {
	return Pruner{Backups: backups, Audit: audit, Clock: time.Now}
}

// Prune builds and, unless the policy says dry-run, executes a prune
// plan. The returned plan reflects what was (or would be) deleted.
func (p Pruner) Prune(policy types.BackupRetentionPolicy) (types.BackupPrunePlan, error) {
	snapshots, err := p.Backups.List()
	if err != nil {
		return types.BackupPrunePlan{}, err
	}

	events, err := p.Audit.All()
	if err != nil {
		return types.BackupPrunePlan{}, err
	}
	for _, stale := range FindInterruptedAttempts(events) {
		policy.ProtectAttempts = append(policy.ProtectAttempts, stale.AttemptID)
	}

	plan := core.BuildBackupPrunePlan(snapshots, policy, p.Clock())
	if policy.DryRun {
		return plan, nil
	}

	for _, snapshot := range plan.Delete {
		if err := p.Backups.Delete(snapshot.BackupID); err != nil {
			log.Error().Str("backup_id", snapshot.BackupID).Err(err).Msg("failed to delete snapshot")
			return plan, err
		}
	}
	if len(plan.Delete) > 0 {
		if _, err := p.Audit.Append(types.EventBackupPruned, "", "pruner", map[string]string{
			"deleted": strconv.Itoa(len(plan.Delete)),
			"kept":    strconv.Itoa(len(plan.Keep)),
		}); err != nil {
			log.Error().Err(err).Msg("failed to audit prune")
		}
	}
	return plan, nil
}
