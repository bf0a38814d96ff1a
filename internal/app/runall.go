package app

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"depmend/internal/core"
	"depmend/internal/policies"
	"depmend/internal/types"
)

// BatchResult summarizes an environment-wide remediation run.
type BatchResult struct {
	Report    types.ScanReport
	Outcomes  []types.UpgradeOutcome
	Skipped   []SkippedVulnerability
	Remaining int
}

// SkippedVulnerability records why a finding produced no attempt.
type SkippedVulnerability struct {
	Record types.VulnerabilityRecord
	Reason string
}

// Committed counts attempts that ended in COMMIT.
func (r BatchResult) Committed() int {
	count := 0
	for _, outcome := range r.Outcomes {
		if outcome.Outcome == types.OutcomeCommitted {
			count++
		}
	}
	return count
}

// RolledBack counts attempts that ended in a completed rollback.
func (r BatchResult) RolledBack() int {
	count := 0
	for _, outcome := range r.Outcomes {
		if outcome.Outcome == types.OutcomeRolledBack {
			count++
		}
	}
	return count
}

// RunAll scans the environment, prioritizes the findings, and drives
// one upgrade attempt per fixable vulnerability in priority order.
// Attempts run strictly sequentially; a rolled-back attempt does not
// stop the batch, but a failed rollback does.
func (o *Orchestrator) RunAll(ctx context.Context, assessor core.Assessor, opts RunOptions) (BatchResult, error) {
	batchID := uuid.NewString()
	report, err := o.Scanner.ScanForAttempt(ctx, "", batchID)
	if err != nil {
		return BatchResult{}, err
	}

	baseline := make(map[string]struct{}, len(report.Records))
	for _, record := range report.Records {
		baseline[record.ID] = struct{}{}
	}

	prioritized := assessor.Prioritize(report.Records)
	for _, item := range prioritized {
		o.audit(types.EventRiskAssessed, batchID, map[string]string{
			"vulnerability_id": item.Record.ID,
			"package":          item.Record.Package,
			"bucket":           string(item.Assessment.Bucket),
			"exploit_known":    strconv.FormatBool(item.Assessment.ExploitKnown),
		})
	}

	result := BatchResult{Report: report}
	remediated := map[string]struct{}{}
	for _, item := range prioritized {
		record := item.Record
		if _, done := remediated[record.Package]; done {
			// An earlier, higher-priority fix already moved this
			// package; a fresh scan is needed before touching it again.
			result.Skipped = append(result.Skipped, SkippedVulnerability{
				Record: record,
				Reason: "package already upgraded in this batch",
			})
			continue
		}
		mode := o.Policy.ResolveMode(item.Assessment.Bucket, record.Package)
		if mode == policies.ModeFrozen {
			result.Skipped = append(result.Skipped, SkippedVulnerability{
				Record: record,
				Reason: "package is frozen by remediation policy",
			})
			result.Remaining++
			continue
		}
		if mode == policies.ModeReview && !opts.ManualOverride {
			result.Skipped = append(result.Skipped, SkippedVulnerability{
				Record: record,
				Reason: "remediation policy requires manual review",
			})
			result.Remaining++
			continue
		}
		fixVersion, err := core.RecommendedFixVersion(record)
		if err != nil {
			log.Info().Str("vulnerability", record.ID).Str("package", record.Package).
				Err(err).Msg("no actionable fix, skipping")
			result.Skipped = append(result.Skipped, SkippedVulnerability{
				Record: record,
				Reason: err.Error(),
			})
			result.Remaining++
			continue
		}

		attemptOpts := opts
		attemptOpts.Severity = item.Assessment.Bucket
		attemptOpts.BaselineIDs = baseline

		outcome, err := o.Run(ctx, types.PackageTarget{
			Package:         record.Package,
			TargetVersion:   fixVersion,
			VulnerabilityID: record.ID,
		}, attemptOpts)
		result.Outcomes = append(result.Outcomes, outcome)

		switch {
		case err != nil && outcome.State == types.StateRollbackFailed:
			// The environment is in an unknown state; nothing else may
			// run until a human restores it.
			return result, err
		case err != nil:
			result.Skipped = append(result.Skipped, SkippedVulnerability{
				Record: record,
				Reason: err.Error(),
			})
			result.Remaining++
		case outcome.Outcome == types.OutcomeCommitted:
			remediated[record.Package] = struct{}{}
		default:
			result.Remaining++
		}

		if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, ctx.Err()
		}
	}
	return result, nil
}
