package core

import (
	"sort"
	"time"

	"depmend/internal/types"
)

// BuildComplianceReport aggregates audit events and assessments into a
// compliance report for the [start, end) window. Pure over its inputs:
// feeding the same trail twice yields the same report.
//
// Time-to-remediation for a committed attempt is the delta between the
// originating record's DiscoveredAt and the attempt's terminal
// transition timestamp.
func BuildComplianceReport(
	events []types.AuditEvent,
	assessments []types.RiskAssessment,
	records []types.VulnerabilityRecord,
	start time.Time,
	end time.Time,
	severityFilter types.Severity,
) types.ComplianceReport {
	report := types.ComplianceReport{
		Start:          start,
		End:            end,
		SeverityCounts: map[types.Severity]int{},
	}

	bucketByVuln := map[string]types.Severity{}
	for _, assessment := range assessments {
		bucketByVuln[assessment.VulnerabilityID] = assessment.Bucket
		if inWindow(assessment.AssessedAt, start, end) && severityMatches(assessment.Bucket, severityFilter) {
			report.SeverityCounts[assessment.Bucket]++
		}
	}

	discoveredByVuln := map[string]time.Time{}
	for _, record := range records {
		discoveredByVuln[record.ID] = record.DiscoveredAt
	}

	type attemptTrace struct {
		vulnID   string
		pkg      string
		outcome  types.AttemptOutcome
		endedAt  time.Time
		terminal bool
	}
	traces := map[string]*attemptTrace{}
	var order []string

	for _, event := range events {
		if !inWindow(event.Timestamp, start, end) {
			continue
		}
		trace, ok := traces[event.CorrelationID]
		if !ok {
			trace = &attemptTrace{}
			traces[event.CorrelationID] = trace
			order = append(order, event.CorrelationID)
		}
		if id := event.Payload["vulnerability_id"]; id != "" {
			trace.vulnID = id
		}
		if pkg := event.Payload["package"]; pkg != "" {
			trace.pkg = pkg
		}
		if event.Type != types.EventStateTransition {
			continue
		}
		switch types.AttemptState(event.Payload["to"]) {
		case types.StateCommit:
			trace.outcome = types.OutcomeCommitted
			trace.endedAt = event.Timestamp
		case types.StateRollback:
			if trace.outcome != types.OutcomeCommitted {
				trace.outcome = types.OutcomeRolledBack
				trace.endedAt = event.Timestamp
			}
		case types.StateRollbackFailed:
			trace.outcome = types.OutcomeFatal
			trace.endedAt = event.Timestamp
		case types.StateDone:
			trace.terminal = true
			if trace.endedAt.IsZero() {
				trace.endedAt = event.Timestamp
			}
		}
	}

	var totalRemediation time.Duration
	remediated := 0
	for _, correlationID := range order {
		trace := traces[correlationID]
		if trace.outcome == types.OutcomeNone {
			continue
		}
		if !severityMatches(bucketByVuln[trace.vulnID], severityFilter) {
			continue
		}
		report.Attempts++
		summary := types.PackageOutcomeSummary{
			Package:         trace.pkg,
			VulnerabilityID: trace.vulnID,
			Outcome:         trace.outcome,
		}
		switch trace.outcome {
		case types.OutcomeCommitted:
			report.Committed++
			if discovered, ok := discoveredByVuln[trace.vulnID]; ok && !trace.endedAt.IsZero() {
				summary.RemediationTime = trace.endedAt.Sub(discovered)
				totalRemediation += summary.RemediationTime
				remediated++
			}
		case types.OutcomeRolledBack:
			report.RolledBack++
		case types.OutcomeFatal:
			report.Fatal++
		}
		report.Packages = append(report.Packages, summary)
	}
	if remediated > 0 {
		report.MeanTimeToRemediation = totalRemediation / time.Duration(remediated)
	}
	sort.Slice(report.Packages, func(i, j int) bool {
		return report.Packages[i].Package < report.Packages[j].Package
	})
	return report
}

func inWindow(ts time.Time, start time.Time, end time.Time) bool {
	if ts.IsZero() {
		return false
	}
	if !start.IsZero() && ts.Before(start) {
		return false
	}
	if !end.IsZero() && !ts.Before(end) {
		return false
	}
	return true
}

func severityMatches(bucket types.Severity, filter types.Severity) bool {
	return filter == "" || bucket == filter
}
