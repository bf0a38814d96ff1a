package types

import "time"

// AttemptState is one state of the upgrade-validation pipeline.
type AttemptState string

const (
	StateInit           AttemptState = "INIT"
	StateBackup         AttemptState = "BACKUP"
	StateUpgrading      AttemptState = "UPGRADING"
	StateConflictCheck  AttemptState = "CONFLICT_CHECK"
	StateTesting        AttemptState = "TESTING"
	StateSecurityVerify AttemptState = "SECURITY_VERIFY"
	StateCommit         AttemptState = "COMMIT"
	StateRollback       AttemptState = "ROLLBACK"
	StateDone           AttemptState = "DONE"
	StateRollbackFailed AttemptState = "ROLLBACK_FAILED"
)

// Terminal reports whether no further transition can leave the state.
func (s AttemptState) Terminal() bool {
	return s == StateDone || s == StateRollbackFailed
}

// AttemptOutcome is the final disposition of an upgrade attempt.
type AttemptOutcome string

const (
	OutcomeCommitted  AttemptOutcome = "committed"
	OutcomeRolledBack AttemptOutcome = "rolled-back"
	OutcomeFatal      AttemptOutcome = "fatal"
	OutcomeNone       AttemptOutcome = ""
)

// WholeEnvironment is the target name for an environment-wide attempt.
const WholeEnvironment = "whole-environment"

// PackageTarget names the package and version an attempt upgrades to.
// A zero Package means the whole environment.
type PackageTarget struct {
	Package         string
	TargetVersion   string
	VulnerabilityID string
}

func (t PackageTarget) String() string {
	if t.Package == "" {
		return WholeEnvironment
	}
	return t.Package + "==" + t.TargetVersion
}

// UpgradeAttempt tracks one pass through the pipeline. BackupID must be
// set before the state leaves INIT-adjacent phases: no mutation happens
// without a snapshot.
type UpgradeAttempt struct {
	AttemptID string
	Target    PackageTarget
	BackupID  string
	State     AttemptState
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   AttemptOutcome
}

// UpgradeOutcome is what a caller of the orchestrator receives.
type UpgradeOutcome struct {
	AttemptID string
	Target    PackageTarget
	State     AttemptState
	Outcome   AttemptOutcome
	BackupID  string
	Events    []AuditEvent
}
