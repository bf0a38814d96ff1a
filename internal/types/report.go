package types

import "time"

// PackageOutcomeSummary is the per-package view in a compliance report.
type PackageOutcomeSummary struct {
	Package         string         `json:"package"`
	VulnerabilityID string         `json:"vulnerability_id"`
	Outcome         AttemptOutcome `json:"outcome"`
	RemediationTime time.Duration  `json:"remediation_time,omitempty"`
}

// ComplianceReport aggregates audit-trail and assessment data for a
// reporting window. Generation is a pure function; nothing here touches
// the environment.
type ComplianceReport struct {
	Start                 time.Time               `json:"start"`
	End                   time.Time               `json:"end"`
	SeverityCounts        map[Severity]int        `json:"severity_counts"`
	Attempts              int                     `json:"attempts"`
	Committed             int                     `json:"committed"`
	RolledBack            int                     `json:"rolled_back"`
	Fatal                 int                     `json:"fatal"`
	MeanTimeToRemediation time.Duration           `json:"mean_time_to_remediation"`
	Packages              []PackageOutcomeSummary `json:"packages"`
}

// ReportFormat selects the rendering of a compliance report.
type ReportFormat string

const (
	ReportFormatJSON     ReportFormat = "json"
	ReportFormatMarkdown ReportFormat = "markdown"
	ReportFormatCSV      ReportFormat = "csv"
)
