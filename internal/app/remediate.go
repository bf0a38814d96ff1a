package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"depmend/internal/adapters"
	"depmend/internal/core"
	"depmend/internal/policies"
	"depmend/internal/ports"
	"depmend/internal/types"
)

// RunOptions tunes one orchestrator run.
type RunOptions struct {
	DryRun         bool
	MaxRetries     int
	Timeout        time.Duration
	ManualOverride bool
	// Severity of the vulnerability driving this attempt; it weights the
	// rollback decision when tests break.
	Severity types.Severity
	// BaselineTestDuration is the recorded wall-clock time of a healthy
	// test run. When set, the TESTING phase compares the suite's duration
	// against it and feeds the regression into the rollback decision.
	BaselineTestDuration time.Duration
	// BaselineIDs are advisory ids already known before the upgrade;
	// anything else surfacing at SECURITY_VERIFY counts as introduced.
	BaselineIDs map[string]struct{}
}

// Orchestrator drives the upgrade-validation state machine:
//
//	INIT → BACKUP → UPGRADING → CONFLICT_CHECK → TESTING →
//	SECURITY_VERIFY → {COMMIT | ROLLBACK} → DONE, plus ROLLBACK_FAILED.
//
// Every transition writes its audit event before performing the side
// effect, so a crash mid-transition is recoverable by replaying the
// trail. Mutating phases are serialized behind envMu: two attempts
// never interleave their mutations of the shared manifest.
type Orchestrator struct {
	Executor    ports.ExecutorPort
	Scanner     Scanner
	Manifest    ports.ManifestStorePort
	Backups     ports.BackupStorePort
	Audit       ports.AuditTrailPort
	Thresholds  types.RollbackThresholds
	Policy      policies.RemediationPolicy
	PythonBin   string
	TestRunner  string
	PipTimeout  time.Duration
	TestTimeout time.Duration
	ConfigPaths []string
	MaxRetries  int
	Clock       func() time.Time

	envMu sync.Mutex
}

func NewOrchestrator(service Service) *Orchestrator {
	return &Orchestrator{
		Executor:    service.Executor,
		Scanner:     NewScanner(service.Provider, service.Parser, service.Audit),
		Manifest:    service.Manifest,
		Backups:     service.Backups,
		Audit:       service.Audit,
		Thresholds:  service.Config.Thresholds,
		Policy:      policies.NewRemediationPolicy(nil),
		PythonBin:   service.Config.PythonBin,
		TestRunner:  service.Config.TestRunner,
		PipTimeout:  service.Config.PipTimeout,
		TestTimeout: service.Config.TestTimeout,
		MaxRetries:  service.Config.MaxRetries,
		Clock:       time.Now,
	}
}

// Run validates and applies one package upgrade. The returned error is
// non-nil only when input validation rejected the target or when the
// rollback itself failed; every other failure surfaces as a rolled-back
// outcome with the cause on the audit trail.
func (o *Orchestrator) Run(ctx context.Context, target types.PackageTarget, opts RunOptions) (types.UpgradeOutcome, error) {
	attempt := types.UpgradeAttempt{
		AttemptID: uuid.NewString(),
		Target:    target,
		State:     types.StateInit,
		StartedAt: o.Clock(),
	}

	if err := o.validateTarget(target); err != nil {
		o.audit(types.EventCommandRejected, attempt.AttemptID, map[string]string{
			"target": target.String(),
			"reason": err.Error(),
		})
		return o.outcome(attempt), err
	}

	// The environment lock spans BACKUP through DONE/ROLLBACK_FAILED.
	o.envMu.Lock()
	defer o.envMu.Unlock()

	retry := NewRetryPolicy(o.retries(opts), o.Audit)

	o.transition(ctx, &attempt, types.StateBackup, nil)
	snapshot, err := o.createBackup(&attempt)
	if err != nil {
		// Nothing was mutated yet; failing to snapshot aborts cleanly
		// with no outcome, since there was nothing to roll back.
		attempt.Outcome = types.OutcomeNone
		o.transition(ctx, &attempt, types.StateDone, map[string]string{
			"aborted": "backup creation failed",
			"error":   err.Error(),
		})
		attempt.EndedAt = o.Clock()
		return o.outcome(attempt), err
	}
	assert.NotEmpty(ctx, attempt.BackupID, "attempt must hold a backup id before any mutation")

	o.transition(ctx, &attempt, types.StateUpgrading, map[string]string{
		"package":          target.Package,
		"target_version":   target.TargetVersion,
		"vulnerability_id": target.VulnerabilityID,
	})
	if failure := o.applyUpgrade(ctx, &attempt, target, opts, retry); failure != nil {
		return o.rollback(ctx, &attempt, snapshot, failure)
	}

	o.transition(ctx, &attempt, types.StateConflictCheck, nil)
	if failure := o.checkConflicts(ctx, &attempt); failure != nil {
		if opts.DryRun {
			o.finishDryRun(ctx, &attempt, failure)
			return o.outcome(attempt), nil
		}
		return o.rollback(ctx, &attempt, snapshot, failure)
	}

	if opts.DryRun {
		o.finishDryRun(ctx, &attempt, nil)
		return o.outcome(attempt), nil
	}

	o.transition(ctx, &attempt, types.StateTesting, nil)
	if failure := o.runTests(ctx, &attempt, opts, retry); failure != nil {
		return o.rollback(ctx, &attempt, snapshot, failure)
	}

	o.transition(ctx, &attempt, types.StateSecurityVerify, nil)
	if failure := o.verifyFix(ctx, &attempt, target, opts); failure != nil {
		return o.rollback(ctx, &attempt, snapshot, failure)
	}

	o.transition(ctx, &attempt, types.StateCommit, map[string]string{
		"backup_id": attempt.BackupID,
		"package":   target.Package,
	})
	o.finish(ctx, &attempt, types.OutcomeCommitted)
	return o.outcome(attempt), nil
}

// stageFailure is an expected business outcome of a pipeline stage,
// not a Go error: the orchestrator inspects it and transitions to
// ROLLBACK. Truly unexpected faults still travel as errors.
type stageFailure struct {
	event  types.AuditEventType
	reason string
}

func (o *Orchestrator) validateTarget(target types.PackageTarget) error {
	if target.Package == "" {
		return nil
	}
	if err := core.ValidatePackageName(target.Package); err != nil {
		return err
	}
	return core.ValidateVersion(target.TargetVersion)
}

func (o *Orchestrator) createBackup(attempt *types.UpgradeAttempt) (types.EnvironmentSnapshot, error) {
	manifest, err := o.Manifest.Read()
	if err != nil {
		return types.EnvironmentSnapshot{}, err
	}
	var configs []types.ConfigBlob
	for _, path := range o.ConfigPaths {
		content, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Str("path", path).Err(err).Msg("skipping unreadable config file in backup")
			continue
		}
		configs = append(configs, types.ConfigBlob{Name: filepath.Base(path), Content: content})
	}
	createdAt := o.Clock()
	snapshot := types.EnvironmentSnapshot{
		BackupID:    adapters.ComputeBackupID(manifest, configs, createdAt),
		Manifest:    manifest,
		ConfigFiles: configs,
		CreatedAt:   createdAt,
	}
	if err := o.Backups.Save(snapshot, attempt.AttemptID); err != nil {
		return types.EnvironmentSnapshot{}, err
	}
	attempt.BackupID = snapshot.BackupID
	o.audit(types.EventBackupCreated, attempt.AttemptID, map[string]string{
		"backup_id": snapshot.BackupID,
		"packages":  strconv.Itoa(len(manifest)),
	})
	return snapshot, nil
}

func (o *Orchestrator) applyUpgrade(ctx context.Context, attempt *types.UpgradeAttempt, target types.PackageTarget, opts RunOptions, retry RetryPolicy) *stageFailure {
	args := []ports.Arg{
		{Value: "-m", Class: ports.ArgLiteral},
		{Value: "pip", Class: ports.ArgLiteral},
		{Value: "install", Class: ports.ArgLiteral},
	}
	if opts.DryRun {
		args = append(args, ports.Arg{Value: "--dry-run", Class: ports.ArgLiteral})
	}
	args = append(args, ports.Arg{Value: target.String(), Class: ports.ArgPinSpec})

	result, err := retry.Execute(ctx, attempt.AttemptID, "upgrading", func() (ports.CommandResult, error) {
		return o.Executor.Run(ctx, ports.CommandSpec{
			Command:       o.PythonBin,
			Args:          args,
			Timeout:       o.PipTimeout,
			CorrelationID: attempt.AttemptID,
		})
	})
	if err != nil {
		return &stageFailure{event: types.EventStateTransition, reason: fmt.Sprintf("install failed: %v", err)}
	}
	if result.ExitCode != 0 {
		return &stageFailure{event: types.EventStateTransition, reason: fmt.Sprintf("install exited %d: %s", result.ExitCode, truncate(result.Stderr))}
	}
	if opts.DryRun {
		return nil
	}
	manifest, err := o.Manifest.Read()
	if err != nil {
		return &stageFailure{event: types.EventStateTransition, reason: fmt.Sprintf("manifest read failed: %v", err)}
	}
	if err := o.Manifest.WriteAtomic(manifest.WithPin(target.Package, target.TargetVersion)); err != nil {
		return &stageFailure{event: types.EventStateTransition, reason: fmt.Sprintf("manifest update failed: %v", err)}
	}
	return nil
}

func (o *Orchestrator) checkConflicts(ctx context.Context, attempt *types.UpgradeAttempt) *stageFailure {
	result, err := o.Executor.Run(ctx, ports.CommandSpec{
		Command: o.PythonBin,
		Args: []ports.Arg{
			{Value: "-m", Class: ports.ArgLiteral},
			{Value: "pip", Class: ports.ArgLiteral},
			{Value: "check", Class: ports.ArgLiteral},
		},
		Timeout:       o.PipTimeout,
		CorrelationID: attempt.AttemptID,
	})
	if err != nil {
		return &stageFailure{event: types.EventConflictDetected, reason: fmt.Sprintf("conflict check failed to run: %v", err)}
	}
	if result.ExitCode != 0 {
		o.audit(types.EventConflictDetected, attempt.AttemptID, map[string]string{
			"detail": truncate(firstNonEmpty(result.Stdout, result.Stderr)),
		})
		return &stageFailure{event: types.EventConflictDetected, reason: "dependency conflict detected"}
	}
	return nil
}

func (o *Orchestrator) runTests(ctx context.Context, attempt *types.UpgradeAttempt, opts RunOptions, retry RetryPolicy) *stageFailure {
	result, err := retry.Execute(ctx, attempt.AttemptID, "testing", func() (ports.CommandResult, error) {
		return o.Executor.Run(ctx, ports.CommandSpec{
			Command: o.TestRunner,
			Args: []ports.Arg{
				{Value: "--tb=short", Class: ports.ArgLiteral},
				{Value: "-q", Class: ports.ArgLiteral},
			},
			Timeout:       o.TestTimeout,
			CorrelationID: attempt.AttemptID,
		})
	})
	if err != nil {
		return &stageFailure{event: types.EventTestFailure, reason: fmt.Sprintf("test run failed: %v", err)}
	}

	// Test runners exit 1 on ordinary test failures; those are judged by
	// the failure-rate thresholds. Anything beyond 1, or a nonzero exit
	// with no parseable counts, means the run itself broke.
	summary := parseTestSummary(result.Stdout)
	broken := result.ExitCode > 1 || (result.ExitCode != 0 && summary.total() == 0)
	signals := types.RollbackSignals{
		TestFailureRate:      summary.failureRate(),
		FunctionalityBroken:  broken,
		HighestSeverity:      opts.Severity,
		ManualOverrideActive: opts.ManualOverride,
	}
	decisionPayload := map[string]string{
		"test_failure_rate": fmt.Sprintf("%.4f", signals.TestFailureRate),
	}
	if opts.BaselineTestDuration > 0 && result.Duration > 0 {
		signals.PerformanceDelta = float64(result.Duration-opts.BaselineTestDuration) / float64(opts.BaselineTestDuration)
		decisionPayload["performance_delta"] = fmt.Sprintf("%.4f", signals.PerformanceDelta)
	}
	verdict := core.EvaluateRollback(signals, o.Thresholds)
	decisionPayload["decision"] = string(verdict.Decision)
	decisionPayload["flagged_review"] = strconv.FormatBool(verdict.FlaggedForReview)
	o.audit(types.EventRollbackDecision, attempt.AttemptID, decisionPayload)
	if verdict.Decision == types.DecisionProceed {
		return nil
	}
	o.audit(types.EventTestFailure, attempt.AttemptID, map[string]string{
		"exit_code": strconv.Itoa(result.ExitCode),
		"failed":    strconv.Itoa(summary.failed),
		"passed":    strconv.Itoa(summary.passed),
		"detail":    truncate(firstNonEmpty(result.Stdout, result.Stderr)),
	})
	reason := "tests failed after upgrade"
	if len(verdict.Reasons) > 0 {
		reason = verdict.Reasons[0]
	}
	return &stageFailure{event: types.EventTestFailure, reason: reason}
}

func (o *Orchestrator) verifyFix(ctx context.Context, attempt *types.UpgradeAttempt, target types.PackageTarget, opts RunOptions) *stageFailure {
	if target.Package == "" || target.VulnerabilityID == "" {
		return nil
	}
	report, err := o.Scanner.ScanForAttempt(ctx, target.Package, attempt.AttemptID)
	if err != nil {
		return &stageFailure{event: types.EventVulnerabilityStill, reason: fmt.Sprintf("verification scan failed: %v", err)}
	}
	introduced := 0
	for _, record := range report.Records {
		if record.ID == target.VulnerabilityID {
			o.audit(types.EventVulnerabilityStill, attempt.AttemptID, map[string]string{
				"vulnerability_id": record.ID,
				"package":          record.Package,
			})
			return &stageFailure{event: types.EventVulnerabilityStill, reason: "originating vulnerability still present after upgrade"}
		}
		if opts.BaselineIDs != nil {
			if _, known := opts.BaselineIDs[record.ID]; !known {
				introduced++
			}
		}
	}
	if introduced > 0 {
		verdict := core.EvaluateRollback(types.RollbackSignals{
			NewVulnerabilities:   introduced,
			ManualOverrideActive: opts.ManualOverride,
		}, o.Thresholds)
		if verdict.Decision != types.DecisionProceed {
			return &stageFailure{event: types.EventVulnerabilityStill, reason: fmt.Sprintf("%d new vulnerabilities introduced by upgrade", introduced)}
		}
	}
	return nil
}

// rollback restores the snapshot taken at BACKUP. Restore failure is
// the single fatal path: the attempt freezes in ROLLBACK_FAILED for
// manual recovery and is never retried automatically.
func (o *Orchestrator) rollback(ctx context.Context, attempt *types.UpgradeAttempt, snapshot types.EnvironmentSnapshot, failure *stageFailure) (types.UpgradeOutcome, error) {
	o.transition(ctx, attempt, types.StateRollback, map[string]string{
		"backup_id": attempt.BackupID,
		"reason":    failure.reason,
	})

	if err := o.restoreSnapshot(ctx, attempt, snapshot); err != nil {
		o.transition(ctx, attempt, types.StateRollbackFailed, map[string]string{
			"backup_id": attempt.BackupID,
			"error":     err.Error(),
		})
		o.audit(types.EventRollbackFailed, attempt.AttemptID, map[string]string{
			"backup_id": attempt.BackupID,
			"error":     err.Error(),
		})
		attempt.Outcome = types.OutcomeFatal
		attempt.EndedAt = o.Clock()
		return o.outcome(*attempt), errbuilder.New().
			WithCode(errbuilder.CodeDataLoss).
			WithMsg(fmt.Sprintf("rollback of attempt %s failed; manual intervention required", attempt.AttemptID)).
			WithCause(err)
	}

	o.audit(types.EventBackupRestored, attempt.AttemptID, map[string]string{
		"backup_id": attempt.BackupID,
	})
	o.finish(ctx, attempt, types.OutcomeRolledBack)
	return o.outcome(*attempt), nil
}

func (o *Orchestrator) restoreSnapshot(ctx context.Context, attempt *types.UpgradeAttempt, snapshot types.EnvironmentSnapshot) error {
	stored, err := o.Backups.Load(snapshot.BackupID)
	if err != nil {
		return err
	}
	current, err := o.Manifest.Read()
	if err != nil {
		return err
	}
	if err := o.Manifest.WriteAtomic(stored.Manifest); err != nil {
		return err
	}

	// Reinstall only the pins that drifted from the snapshot.
	for _, pin := range stored.Manifest {
		if current.VersionOf(pin.Name) == pin.Version {
			continue
		}
		result, err := o.Executor.Run(ctx, ports.CommandSpec{
			Command: o.PythonBin,
			Args: []ports.Arg{
				{Value: "-m", Class: ports.ArgLiteral},
				{Value: "pip", Class: ports.ArgLiteral},
				{Value: "install", Class: ports.ArgLiteral},
				{Value: "--force-reinstall", Class: ports.ArgLiteral},
				{Value: pin.String(), Class: ports.ArgPinSpec},
			},
			Timeout:       o.PipTimeout,
			CorrelationID: attempt.AttemptID,
		})
		if err != nil {
			return err
		}
		if result.ExitCode != 0 {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("restore reinstall of %s exited %d: %s", pin, result.ExitCode, truncate(result.Stderr)))
		}
	}

	// Post-restore health check; a failure here is reported but the
	// manifest itself is already back in its captured state.
	health, err := o.Executor.Run(ctx, ports.CommandSpec{
		Command: o.PythonBin,
		Args: []ports.Arg{
			{Value: "-m", Class: ports.ArgLiteral},
			{Value: "pip", Class: ports.ArgLiteral},
			{Value: "check", Class: ports.ArgLiteral},
		},
		Timeout:       o.PipTimeout,
		CorrelationID: attempt.AttemptID,
	})
	if err != nil {
		log.Warn().Err(err).Msg("post-restore health check did not run")
	} else if health.ExitCode != 0 {
		log.Warn().Str("detail", truncate(health.Stdout)).Msg("post-restore health check reported issues")
	}
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, attempt *types.UpgradeAttempt, outcome types.AttemptOutcome) {
	attempt.Outcome = outcome
	o.transition(ctx, attempt, types.StateDone, map[string]string{"outcome": string(outcome)})
	attempt.EndedAt = o.Clock()
}

func (o *Orchestrator) finishDryRun(ctx context.Context, attempt *types.UpgradeAttempt, failure *stageFailure) {
	payload := map[string]string{"dry_run": "true"}
	if failure != nil {
		payload["blocked_by"] = failure.reason
	}
	attempt.Outcome = types.OutcomeNone
	o.transition(ctx, attempt, types.StateDone, payload)
	attempt.EndedAt = o.Clock()
}

// transition appends the state-transition event before the caller
// performs the transition's side effect (write-ahead).
func (o *Orchestrator) transition(ctx context.Context, attempt *types.UpgradeAttempt, to types.AttemptState, payload map[string]string) {
	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Msg("context cancelled during transition")
	}
	merged := map[string]string{
		"from": string(attempt.State),
		"to":   string(to),
	}
	if attempt.Target.Package != "" {
		merged["package"] = attempt.Target.Package
	}
	if attempt.Target.VulnerabilityID != "" {
		merged["vulnerability_id"] = attempt.Target.VulnerabilityID
	}
	for key, value := range payload {
		merged[key] = value
	}
	o.audit(types.EventStateTransition, attempt.AttemptID, merged)
	attempt.State = to
}

func (o *Orchestrator) audit(eventType types.AuditEventType, correlationID string, payload map[string]string) {
	if o.Audit == nil {
		return
	}
	if _, err := o.Audit.Append(eventType, correlationID, "orchestrator", payload); err != nil {
		log.Error().Err(err).Msg("failed to append audit event")
	}
}

func (o *Orchestrator) outcome(attempt types.UpgradeAttempt) types.UpgradeOutcome {
	var events []types.AuditEvent
	if o.Audit != nil {
		if queried, err := o.Audit.Query(attempt.AttemptID); err == nil {
			events = queried
		}
	}
	return types.UpgradeOutcome{
		AttemptID: attempt.AttemptID,
		Target:    attempt.Target,
		State:     attempt.State,
		Outcome:   attempt.Outcome,
		BackupID:  attempt.BackupID,
		Events:    events,
	}
}

func (o *Orchestrator) retries(opts RunOptions) int {
	if opts.MaxRetries > 0 {
		return opts.MaxRetries
	}
	return o.MaxRetries
}

func truncate(value string) string {
	const limit = 300
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
