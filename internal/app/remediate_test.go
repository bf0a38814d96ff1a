package app

import (
	"context"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depmend/internal/core"
	"depmend/internal/ports"
	"depmend/internal/types"
)

type orchestratorFixture struct {
	orchestrator *Orchestrator
	executor     *fakeExecutor
	provider     *fakeProvider
	trail        *memTrail
	manifest     *memManifest
	backups      *memBackups
}

func newFixture(manifest types.Manifest) *orchestratorFixture {
	trail := &memTrail{}
	executor := newFakeExecutor()
	provider := newFakeProvider()
	store := newMemManifest(manifest)
	backups := newMemBackups()
	parser := core.NewReportParser()
	parser.Clock = testClock

	return &orchestratorFixture{
		orchestrator: &Orchestrator{
			Executor:    executor,
			Scanner:     NewScanner(provider, parser, trail),
			Manifest:    store,
			Backups:     backups,
			Audit:       trail,
			Thresholds:  types.DefaultRollbackThresholds(),
			PythonBin:   "python3",
			TestRunner:  "pytest",
			PipTimeout:  time.Minute,
			TestTimeout: time.Minute,
			MaxRetries:  1,
			Clock:       testClock,
		},
		executor: executor,
		provider: provider,
		trail:    trail,
		manifest: store,
		backups:  backups,
	}
}

func baseManifest() types.Manifest {
	return types.Manifest{
		{Name: "requests", Version: "2.25.0"},
		{Name: "flask", Version: "3.0.0"},
	}
}

func requestsTarget() types.PackageTarget {
	return types.PackageTarget{
		Package:         "requests",
		TargetVersion:   "2.31.0",
		VulnerabilityID: "CVE-2026-0001",
	}
}

func transitionsTo(events []types.AuditEvent) []string {
	var states []string
	for _, event := range events {
		if event.Type == types.EventStateTransition {
			states = append(states, event.Payload["to"])
		}
	}
	return states
}

func TestRunCommitPath(t *testing.T) {
	fixture := newFixture(baseManifest())

	outcome, err := fixture.orchestrator.Run(context.Background(), requestsTarget(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeCommitted, outcome.Outcome)
	assert.Equal(t, types.StateDone, outcome.State)
	assert.NotEmpty(t, outcome.BackupID)

	manifest, err := fixture.manifest.Read()
	require.NoError(t, err)
	assert.Equal(t, "2.31.0", manifest.VersionOf("requests"))

	assert.Equal(t, []string{
		"BACKUP", "UPGRADING", "CONFLICT_CHECK", "TESTING",
		"SECURITY_VERIFY", "COMMIT", "DONE",
	}, transitionsTo(outcome.Events))

	installs := fixture.executor.callsMatching("requests==2.31.0")
	require.Len(t, installs, 1)
}

func TestRunWritesBackupEventBeforeAnyMutation(t *testing.T) {
	fixture := newFixture(baseManifest())

	_, err := fixture.orchestrator.Run(context.Background(), requestsTarget(), RunOptions{})
	require.NoError(t, err)

	created := fixture.trail.ofType(types.EventBackupCreated)
	require.Len(t, created, 1)

	var upgrading types.AuditEvent
	for _, event := range fixture.trail.ofType(types.EventStateTransition) {
		if event.Payload["to"] == string(types.StateUpgrading) {
			upgrading = event
		}
	}
	require.NotZero(t, upgrading.Sequence)
	assert.Less(t, created[0].Sequence, upgrading.Sequence,
		"snapshot must land on the trail before the mutating phase begins")
}

func TestRunRollsBackOnTestFailures(t *testing.T) {
	fixture := newFixture(baseManifest())
	before := fixture.manifest.bytes()
	fixture.executor.testResult = ports.CommandResult{
		Stdout:   "6 failed, 14 passed in 3.10s",
		ExitCode: 1,
	}

	outcome, err := fixture.orchestrator.Run(context.Background(), requestsTarget(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeRolledBack, outcome.Outcome)
	assert.Equal(t, types.StateDone, outcome.State)

	// The manifest is byte-identical to the snapshot taken at BACKUP.
	assert.Equal(t, before, fixture.manifest.bytes())

	restores := fixture.executor.callsMatching("--force-reinstall")
	require.Len(t, restores, 1)
	assert.Contains(t, joinArgs(restores[0]), "requests==2.25.0")

	assert.NotEmpty(t, fixture.trail.ofType(types.EventBackupRestored))
	assert.NotEmpty(t, fixture.trail.ofType(types.EventTestFailure))
}

func TestRunToleratesFailureRateUnderThreshold(t *testing.T) {
	fixture := newFixture(baseManifest())
	fixture.executor.testResult = ports.CommandResult{
		Stdout:   "1 failed, 99 passed in 8.00s",
		ExitCode: 1,
	}

	outcome, err := fixture.orchestrator.Run(context.Background(), requestsTarget(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeCommitted, outcome.Outcome)
}

func TestRunRollsBackOnPerformanceRegression(t *testing.T) {
	fixture := newFixture(baseManifest())
	// Every test passes, but the suite takes half again as long as the
	// recorded baseline.
	fixture.executor.testResult = ports.CommandResult{
		Stdout:   "45 passed in 90.00s",
		ExitCode: 0,
		Duration: 90 * time.Second,
	}

	outcome, err := fixture.orchestrator.Run(context.Background(), requestsTarget(), RunOptions{
		Severity:             types.SeverityHigh,
		BaselineTestDuration: 60 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRolledBack, outcome.Outcome)

	decisions := fixture.trail.ofType(types.EventRollbackDecision)
	require.Len(t, decisions, 1)
	assert.Equal(t, "0.5000", decisions[0].Payload["performance_delta"])
	assert.Equal(t, "true", decisions[0].Payload["flagged_review"])
}

func TestRunToleratesSmallPerformanceDelta(t *testing.T) {
	fixture := newFixture(baseManifest())
	fixture.executor.testResult = ports.CommandResult{
		Stdout:   "45 passed in 66.00s",
		ExitCode: 0,
		Duration: 66 * time.Second,
	}

	outcome, err := fixture.orchestrator.Run(context.Background(), requestsTarget(), RunOptions{
		Severity:             types.SeverityHigh,
		BaselineTestDuration: 60 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeCommitted, outcome.Outcome)
}

func TestRunBackupFailureAbortsWithoutOutcome(t *testing.T) {
	fixture := newFixture(baseManifest())
	before := fixture.manifest.bytes()
	fixture.backups.saveErr = errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("disk full")

	outcome, err := fixture.orchestrator.Run(context.Background(), requestsTarget(), RunOptions{})
	require.Error(t, err)

	// Nothing was mutated and nothing was restored, so the attempt has
	// no rollback outcome to report.
	assert.Equal(t, types.OutcomeNone, outcome.Outcome)
	assert.Equal(t, types.StateDone, outcome.State)
	assert.Equal(t, before, fixture.manifest.bytes())
	assert.Zero(t, fixture.executor.callCount())
	assert.Empty(t, fixture.trail.ofType(types.EventBackupRestored))
}

func TestRunRejectsMaliciousTargetBeforeAnySubprocess(t *testing.T) {
	fixture := newFixture(baseManifest())

	_, err := fixture.orchestrator.Run(context.Background(), types.PackageTarget{
		Package:       "foo; rm -rf /",
		TargetVersion: "1.0.0",
	}, RunOptions{})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))

	assert.Zero(t, fixture.executor.callCount(), "nothing may be spawned for a rejected target")
	assert.NotEmpty(t, fixture.trail.ofType(types.EventCommandRejected))
	assert.Empty(t, fixture.trail.ofType(types.EventBackupCreated))
}

func TestRunRollsBackWhenVulnerabilityStillPresent(t *testing.T) {
	fixture := newFixture(baseManifest())
	fixture.provider.reports["requests"] = []byte(`{
		"dependencies": [
			{
				"name": "requests",
				"version": "2.31.0",
				"vulns": [
					{"id": "CVE-2026-0001", "fix_versions": ["2.32.0"], "severity": 7.5}
				]
			}
		]
	}`)

	outcome, err := fixture.orchestrator.Run(context.Background(), requestsTarget(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRolledBack, outcome.Outcome)
	assert.NotEmpty(t, fixture.trail.ofType(types.EventVulnerabilityStill))
}

func TestRunRollbackFailureIsFatal(t *testing.T) {
	fixture := newFixture(baseManifest())
	fixture.executor.testResult = ports.CommandResult{Stdout: "", ExitCode: 2}
	fixture.executor.restoreErr = errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("pip is gone")

	outcome, err := fixture.orchestrator.Run(context.Background(), requestsTarget(), RunOptions{})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeDataLoss, errbuilder.CodeOf(err))
	assert.Equal(t, types.StateRollbackFailed, outcome.State)
	assert.Equal(t, types.OutcomeFatal, outcome.Outcome)
	assert.NotEmpty(t, fixture.trail.ofType(types.EventRollbackFailed))
}

func TestRunRollsBackOnConflict(t *testing.T) {
	fixture := newFixture(baseManifest())
	fixture.executor.checkResult = ports.CommandResult{
		Stdout:   "requests 2.31.0 has requirement urllib3<3, but you have urllib3 3.0.0",
		ExitCode: 1,
	}

	outcome, err := fixture.orchestrator.Run(context.Background(), requestsTarget(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRolledBack, outcome.Outcome)
	assert.NotEmpty(t, fixture.trail.ofType(types.EventConflictDetected))
}

func TestRunDryRunNeverMutates(t *testing.T) {
	fixture := newFixture(baseManifest())

	outcome, err := fixture.orchestrator.Run(context.Background(), requestsTarget(), RunOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeNone, outcome.Outcome)
	assert.Equal(t, types.StateDone, outcome.State)
	assert.Zero(t, fixture.manifest.writes)

	installs := fixture.executor.callsMatching("--dry-run")
	require.Len(t, installs, 1)
	// Neither tests nor the verification scan run for a dry run.
	assert.Empty(t, fixture.executor.callsMatching("pytest"))
}

func TestRunInstallFailureRollsBack(t *testing.T) {
	fixture := newFixture(baseManifest())
	before := fixture.manifest.bytes()
	fixture.executor.installResult = ports.CommandResult{
		Stderr:   "ERROR: No matching distribution found for requests==2.31.0",
		ExitCode: 1,
	}

	outcome, err := fixture.orchestrator.Run(context.Background(), requestsTarget(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRolledBack, outcome.Outcome)
	assert.Equal(t, before, fixture.manifest.bytes())
}
