package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depmend/internal/core"
	"depmend/internal/policies"
	"depmend/internal/ports"
	"depmend/internal/types"
)

func newTestAssessor() core.Assessor {
	assessor := core.NewAssessor(nil, nil)
	assessor.Clock = testClock
	return assessor
}

func TestRunAllRemediatesEverything(t *testing.T) {
	fixture := newFixture(baseManifest())
	fixture.provider.fallback = []byte(`{
		"dependencies": [
			{
				"name": "requests",
				"version": "2.25.0",
				"vulns": [
					{"id": "CVE-2026-0001", "fix_versions": ["2.31.0"], "severity": 8.1}
				]
			}
		]
	}`)
	// The per-package verification scan must come back clean.
	fixture.provider.reports["requests"] = []byte(`{"dependencies": []}`)

	result, err := fixture.orchestrator.RunAll(context.Background(), newTestAssessor(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Committed())
	assert.Zero(t, result.Remaining)
	assert.Empty(t, result.Skipped)

	manifest, err := fixture.manifest.Read()
	require.NoError(t, err)
	assert.Equal(t, "2.31.0", manifest.VersionOf("requests"))

	// Each prioritized finding lands one assessment event on the batch's
	// timeline before any attempt starts.
	assessed := fixture.trail.ofType(types.EventRiskAssessed)
	require.Len(t, assessed, 1)
	assert.Equal(t, "CVE-2026-0001", assessed[0].Payload["vulnerability_id"])
	assert.Equal(t, "high", assessed[0].Payload["bucket"])
}

func TestRunAllSkipsSecondFindingOnSamePackage(t *testing.T) {
	fixture := newFixture(baseManifest())
	fixture.provider.fallback = []byte(`{
		"dependencies": [
			{
				"name": "requests",
				"version": "2.25.0",
				"vulns": [
					{"id": "CVE-2026-0001", "fix_versions": ["2.31.0"], "severity": 9.8},
					{"id": "CVE-2026-0002", "fix_versions": ["2.26.0"], "severity": 5.0}
				]
			}
		]
	}`)
	fixture.provider.reports["requests"] = []byte(`{"dependencies": []}`)

	result, err := fixture.orchestrator.RunAll(context.Background(), newTestAssessor(), RunOptions{})
	require.NoError(t, err)

	// The critical finding drives the upgrade; the second finding on the
	// same package waits for a fresh scan instead of piling on.
	assert.Equal(t, 1, result.Committed())
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "CVE-2026-0002", result.Skipped[0].Record.ID)
	assert.Zero(t, result.Remaining)
	require.Len(t, result.Outcomes, 1)
}

func TestRunAllHonorsFrozenPolicy(t *testing.T) {
	fixture := newFixture(baseManifest())
	fixture.provider.fallback = []byte(`{
		"dependencies": [
			{
				"name": "requests",
				"version": "2.25.0",
				"vulns": [
					{"id": "CVE-2026-0001", "fix_versions": ["2.31.0"], "severity": 8.1}
				]
			}
		]
	}`)
	fixture.orchestrator.Policy = policies.NewRemediationPolicy([]policies.RemediationGroup{
		{Mode: policies.ModeFrozen, Matches: []string{"requests"}},
	})

	result, err := fixture.orchestrator.RunAll(context.Background(), newTestAssessor(), RunOptions{})
	require.NoError(t, err)

	assert.Zero(t, result.Committed())
	assert.Equal(t, 1, result.Remaining)
	require.Len(t, result.Skipped, 1)
	assert.Zero(t, fixture.executor.callCount())
}

func TestRunAllReviewModeNeedsOverride(t *testing.T) {
	report := []byte(`{
		"dependencies": [
			{
				"name": "requests",
				"version": "2.25.0",
				"vulns": [
					{"id": "CVE-2026-0001", "fix_versions": ["2.31.0"], "severity": 8.1}
				]
			}
		]
	}`)
	policy := policies.NewRemediationPolicy([]policies.RemediationGroup{
		{Mode: policies.ModeReview, Matches: []string{"*"}},
	})

	fixture := newFixture(baseManifest())
	fixture.provider.fallback = report
	fixture.orchestrator.Policy = policy

	result, err := fixture.orchestrator.RunAll(context.Background(), newTestAssessor(), RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Committed())
	assert.Equal(t, 1, result.Remaining)

	fixture = newFixture(baseManifest())
	fixture.provider.fallback = report
	fixture.provider.reports["requests"] = []byte(`{"dependencies": []}`)
	fixture.orchestrator.Policy = policy

	result, err = fixture.orchestrator.RunAll(context.Background(), newTestAssessor(), RunOptions{ManualOverride: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Committed())
}

func TestRunAllSkipsUnfixableFinding(t *testing.T) {
	fixture := newFixture(baseManifest())
	// The only published fix is older than what is installed.
	fixture.provider.fallback = []byte(`{
		"dependencies": [
			{
				"name": "requests",
				"version": "2.25.0",
				"vulns": [
					{"id": "CVE-2026-0001", "fix_versions": ["2.20.0"], "severity": 8.1}
				]
			}
		]
	}`)

	result, err := fixture.orchestrator.RunAll(context.Background(), newTestAssessor(), RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Committed())
	assert.Equal(t, 1, result.Remaining)
	require.Len(t, result.Skipped, 1)
	assert.Zero(t, fixture.executor.callCount())
}

func TestRunAllContinuesPastRolledBackAttempt(t *testing.T) {
	fixture := newFixture(baseManifest())
	fixture.provider.fallback = []byte(`{
		"dependencies": [
			{
				"name": "requests",
				"version": "2.25.0",
				"vulns": [
					{"id": "CVE-2026-0001", "fix_versions": ["2.31.0"], "severity": 8.1}
				]
			},
			{
				"name": "flask",
				"version": "3.0.0",
				"vulns": [
					{"id": "CVE-2026-0002", "fix_versions": ["3.1.0"], "severity": 6.0}
				]
			}
		]
	}`)
	fixture.provider.reports["requests"] = []byte(`{"dependencies": []}`)
	fixture.provider.reports["flask"] = []byte(`{"dependencies": []}`)
	// Every TESTING phase fails hard, so each attempt rolls back.
	fixture.executor.testResult = ports.CommandResult{
		Stdout:   "6 failed, 14 passed in 3.10s",
		ExitCode: 1,
	}

	result, err := fixture.orchestrator.RunAll(context.Background(), newTestAssessor(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RolledBack())
	assert.Equal(t, 2, result.Remaining)
	require.Len(t, result.Outcomes, 2)
	for _, outcome := range result.Outcomes {
		assert.Equal(t, types.OutcomeRolledBack, outcome.Outcome)
	}
}
