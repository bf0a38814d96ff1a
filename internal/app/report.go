package app

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"depmend/internal/core"
	"depmend/internal/types"
)

// ReportOptions selects the window, severity filter, and rendering of a
// compliance report.
type ReportOptions struct {
	Start    time.Time
	End      time.Time
	Severity types.Severity
	Format   types.ReportFormat
}

// Reporter builds compliance reports from the audit trail plus a fresh
// assessment pass over the given records. Report generation never
// mutates anything.
type Reporter struct {
	Assessor core.Assessor
}

func (r Reporter) Build(events []types.AuditEvent, records []types.VulnerabilityRecord, opts ReportOptions) types.ComplianceReport {
	assessments := make([]types.RiskAssessment, 0, len(records))
	for _, record := range records {
		assessments = append(assessments, r.Assessor.Assess(record))
	}
	return core.BuildComplianceReport(events, assessments, records, opts.Start, opts.End, opts.Severity)
}

// Render serializes a report in the requested format.
func Render(report types.ComplianceReport, format types.ReportFormat) (string, error) {
	switch format {
	case types.ReportFormatJSON, "":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	case types.ReportFormatMarkdown:
		return renderMarkdown(report), nil
	case types.ReportFormatCSV:
		return renderCSV(report)
	default:
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("unknown report format %q", format))
	}
}

func renderMarkdown(report types.ComplianceReport) string {
	var b strings.Builder
	b.WriteString("# Remediation compliance report\n\n")
	fmt.Fprintf(&b, "Window: %s to %s\n\n", formatTime(report.Start), formatTime(report.End))

	b.WriteString("## Findings by severity\n\n")
	b.WriteString("| Severity | Count |\n|---|---|\n")
	for _, bucket := range []types.Severity{
		types.SeverityCritical, types.SeverityHigh,
		types.SeverityMedium, types.SeverityLow, types.SeverityUnknown,
	} {
		if count, ok := report.SeverityCounts[bucket]; ok {
			fmt.Fprintf(&b, "| %s | %d |\n", bucket, count)
		}
	}

	b.WriteString("\n## Attempts\n\n")
	fmt.Fprintf(&b, "- Total: %d\n", report.Attempts)
	fmt.Fprintf(&b, "- Committed: %d\n", report.Committed)
	fmt.Fprintf(&b, "- Rolled back: %d\n", report.RolledBack)
	fmt.Fprintf(&b, "- Fatal: %d\n", report.Fatal)
	if report.MeanTimeToRemediation > 0 {
		fmt.Fprintf(&b, "- Mean time to remediation: %s\n", report.MeanTimeToRemediation.Round(time.Minute))
	}

	if len(report.Packages) > 0 {
		b.WriteString("\n## Packages\n\n")
		b.WriteString("| Package | Vulnerability | Outcome | Remediation time |\n|---|---|---|---|\n")
		for _, pkg := range report.Packages {
			remediation := ""
			if pkg.RemediationTime > 0 {
				remediation = pkg.RemediationTime.Round(time.Minute).String()
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", pkg.Package, pkg.VulnerabilityID, pkg.Outcome, remediation)
		}
	}
	return b.String()
}

func renderCSV(report types.ComplianceReport) (string, error) {
	var b strings.Builder
	writer := csv.NewWriter(&b)
	if err := writer.Write([]string{"package", "vulnerability_id", "outcome", "remediation_seconds"}); err != nil {
		return "", err
	}
	for _, pkg := range report.Packages {
		seconds := ""
		if pkg.RemediationTime > 0 {
			seconds = strconv.FormatInt(int64(pkg.RemediationTime.Seconds()), 10)
		}
		if err := writer.Write([]string{pkg.Package, pkg.VulnerabilityID, string(pkg.Outcome), seconds}); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return b.String(), writer.Error()
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "beginning"
	}
	return ts.UTC().Format(time.RFC3339)
}
