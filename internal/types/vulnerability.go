package types

import "time"

// Severity is the discrete classification derived from a numeric
// CVSS-like score.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityUnknown  Severity = "unknown"
)

// rank orders buckets for prioritization; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// SeverityFromScore maps a CVSS-like score to a severity bucket.
// Total over the whole numeric range: scores outside (0, 10] map to
// unknown rather than failing.
func SeverityFromScore(score float64) Severity {
	switch {
	case score > 10.0 || score <= 0.0:
		return SeverityUnknown
	case score >= 9.0:
		return SeverityCritical
	case score >= 7.0:
		return SeverityHigh
	case score >= 4.0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// PackageCriticality classifies how important a package is to the
// deployed system. The classification is supplied by the caller, never
// inferred.
type PackageCriticality string

const (
	CriticalityCoreRuntime PackageCriticality = "core-runtime"
	CriticalityDevOnly     PackageCriticality = "dev-only"
)

func (c PackageCriticality) Rank() int {
	if c == CriticalityCoreRuntime {
		return 1
	}
	return 0
}

// VulnerabilityRecord is the canonical, schema-validated representation
// of one advisory affecting one installed package. Records are immutable
// once created and are produced only by the scanner.
type VulnerabilityRecord struct {
	ID               string    `json:"id"`
	Package          string    `json:"package"`
	InstalledVersion string    `json:"installed_version"`
	FixVersions      []string  `json:"fix_versions"`
	SeverityScore    float64   `json:"severity_score"`
	Description      string    `json:"description,omitempty"`
	DiscoveredAt     time.Time `json:"discovered_at"`
}

// Fixable reports whether the advisory ships at least one fix version.
func (v VulnerabilityRecord) Fixable() bool {
	return len(v.FixVersions) > 0
}

// ScanReport is the result of one scanner run.
type ScanReport struct {
	ScannedAt       time.Time             `json:"scanned_at"`
	Scope           string                `json:"scope"`
	Records         []VulnerabilityRecord `json:"records"`
	PackagesScanned int                   `json:"packages_scanned"`
	ParseFailures   int                   `json:"parse_failures"`
	Duration        time.Duration         `json:"duration"`
}

// CountBySeverity tallies records per severity bucket.
func (r ScanReport) CountBySeverity() map[Severity]int {
	counts := map[Severity]int{}
	for _, record := range r.Records {
		counts[SeverityFromScore(record.SeverityScore)]++
	}
	return counts
}
