package types

import "time"

// RiskAssessment attaches prioritization data to one vulnerability
// record. Assessments are never mutated; re-assessment creates a new
// value with a fresh AssessedAt.
type RiskAssessment struct {
	VulnerabilityID  string             `json:"vulnerability_id"`
	Bucket           Severity           `json:"bucket"`
	Criticality      PackageCriticality `json:"criticality"`
	ExploitKnown     bool               `json:"exploit_known"`
	ResponseDeadline time.Duration      `json:"response_deadline"`
	AssessedAt       time.Time          `json:"assessed_at"`
}

// CriticalityMap is the caller-supplied classification of packages.
// Packages absent from the map default to dev-only.
type CriticalityMap map[string]PackageCriticality

func (m CriticalityMap) Lookup(pkg string) PackageCriticality {
	if c, ok := m[pkg]; ok {
		return c
	}
	return CriticalityDevOnly
}

// PrioritizedVulnerability pairs a record with its assessment for
// ordered processing by the orchestrator.
type PrioritizedVulnerability struct {
	Record     VulnerabilityRecord
	Assessment RiskAssessment
}
