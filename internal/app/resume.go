package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"depmend/internal/types"
)

// InterruptedAttempt is an attempt whose trail shows mutation without a
// terminal state, i.e. a crash between BACKUP and DONE.
type InterruptedAttempt struct {
	AttemptID string
	Target    types.PackageTarget
	BackupID  string
	LastState types.AttemptState
}

// FindInterruptedAttempts replays the audit trail and returns every
// attempt that reached BACKUP but never reached a terminal state.
func FindInterruptedAttempts(events []types.AuditEvent) []InterruptedAttempt {
	traces := map[string]*InterruptedAttempt{}
	var order []string

	for _, event := range events {
		switch event.Type {
		case types.EventStateTransition:
			trace, ok := traces[event.CorrelationID]
			if !ok {
				trace = &InterruptedAttempt{AttemptID: event.CorrelationID}
				traces[event.CorrelationID] = trace
				order = append(order, event.CorrelationID)
			}
			trace.LastState = types.AttemptState(event.Payload["to"])
			if pkg := event.Payload["package"]; pkg != "" {
				trace.Target.Package = pkg
			}
			if version := event.Payload["target_version"]; version != "" {
				trace.Target.TargetVersion = version
			}
			if id := event.Payload["vulnerability_id"]; id != "" {
				trace.Target.VulnerabilityID = id
			}
		case types.EventBackupCreated:
			if trace, ok := traces[event.CorrelationID]; ok {
				trace.BackupID = event.Payload["backup_id"]
			}
		}
	}

	var interrupted []InterruptedAttempt
	for _, attemptID := range order {
		trace := traces[attemptID]
		if trace.LastState.Terminal() {
			continue
		}
		if trace.BackupID == "" {
			// Died before the snapshot landed; nothing was mutated.
			continue
		}
		interrupted = append(interrupted, *trace)
	}
	return interrupted
}

// Resume rolls every interrupted attempt back to its snapshot. An
// attempt interrupted mid-pipeline is never continued forward: the
// environment state between phases is unknown, so restore is the only
// safe move.
func (o *Orchestrator) Resume(ctx context.Context) ([]types.UpgradeOutcome, error) {
	events, err := o.Audit.All()
	if err != nil {
		return nil, err
	}
	interrupted := FindInterruptedAttempts(events)
	if len(interrupted) == 0 {
		return nil, nil
	}

	o.envMu.Lock()
	defer o.envMu.Unlock()

	var outcomes []types.UpgradeOutcome
	for _, stale := range interrupted {
		log.Info().Str("attempt", stale.AttemptID).
			Str("last_state", string(stale.LastState)).
			Msg("resuming interrupted attempt with a rollback")
		o.audit(types.EventAttemptResumed, stale.AttemptID, map[string]string{
			"last_state": string(stale.LastState),
			"backup_id":  stale.BackupID,
		})

		attempt := types.UpgradeAttempt{
			AttemptID: stale.AttemptID,
			Target:    stale.Target,
			BackupID:  stale.BackupID,
			State:     stale.LastState,
			StartedAt: o.Clock(),
		}
		snapshot, err := o.Backups.Load(stale.BackupID)
		if err != nil {
			o.transition(ctx, &attempt, types.StateRollbackFailed, map[string]string{
				"backup_id": stale.BackupID,
				"error":     err.Error(),
			})
			o.audit(types.EventRollbackFailed, stale.AttemptID, map[string]string{
				"backup_id": stale.BackupID,
				"error":     err.Error(),
			})
			attempt.Outcome = types.OutcomeFatal
			outcomes = append(outcomes, o.outcome(attempt))
			return outcomes, err
		}
		outcome, err := o.rollback(ctx, &attempt, snapshot, &stageFailure{
			event:  types.EventAttemptResumed,
			reason: "attempt interrupted before reaching a terminal state",
		})
		outcomes = append(outcomes, outcome)
		if err != nil {
			return outcomes, err
		}
	}
	log.Info().Int("count", len(outcomes)).Msg("interrupted attempts restored")
	return outcomes, nil
}
