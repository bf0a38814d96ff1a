package core

import (
	"sort"
	"time"

	"depmend/internal/shared"
	"depmend/internal/types"
)

// Response deadlines per severity bucket. Unknown severities get the
// low-severity deadline; they still deserve a bounded response.
const (
	deadlineCritical = 24 * time.Hour
	deadlineHigh     = 72 * time.Hour
	deadlineMedium   = 7 * 24 * time.Hour
	deadlineLow      = 30 * 24 * time.Hour
)

// ResponseDeadline is a pure, total function of the severity bucket.
func ResponseDeadline(bucket types.Severity) time.Duration {
	switch bucket {
	case types.SeverityCritical:
		return deadlineCritical
	case types.SeverityHigh:
		return deadlineHigh
	case types.SeverityMedium:
		return deadlineMedium
	default:
		return deadlineLow
	}
}

// Assessor classifies vulnerability records. The criticality map and
// exploit list are external inputs supplied at construction, never
// inferred.
type Assessor struct {
	Criticality    types.CriticalityMap
	KnownExploited map[string]struct{}
	Clock          func() time.Time
}

func NewAssessor(criticality types.CriticalityMap, knownExploited []string) Assessor {
	exploited := map[string]struct{}{}
	for _, id := range knownExploited {
		exploited[id] = struct{}{}
	}
	return Assessor{
		Criticality:    criticality,
		KnownExploited: exploited,
		Clock:          time.Now,
	}
}

// Assess produces a new assessment for one record. Re-assessing the
// same record yields a new value with a fresh timestamp.
func (a Assessor) Assess(record types.VulnerabilityRecord) types.RiskAssessment {
	bucket := types.SeverityFromScore(record.SeverityScore)
	_, exploitKnown := a.KnownExploited[record.ID]
	return types.RiskAssessment{
		VulnerabilityID:  record.ID,
		Bucket:           bucket,
		Criticality:      a.Criticality.Lookup(shared.NormalizePipName(record.Package)),
		ExploitKnown:     exploitKnown,
		ResponseDeadline: ResponseDeadline(bucket),
		AssessedAt:       a.Clock(),
	}
}

// Prioritize assesses a batch and orders it for the remediation queue:
// severity bucket descending, package criticality descending, known
// exploits first, ties broken by earliest discovery.
func (a Assessor) Prioritize(records []types.VulnerabilityRecord) []types.PrioritizedVulnerability {
	prioritized := make([]types.PrioritizedVulnerability, 0, len(records))
	for _, record := range records {
		prioritized = append(prioritized, types.PrioritizedVulnerability{
			Record:     record,
			Assessment: a.Assess(record),
		})
	}
	sort.SliceStable(prioritized, func(i, j int) bool {
		left, right := prioritized[i], prioritized[j]
		if left.Assessment.Bucket.Rank() != right.Assessment.Bucket.Rank() {
			return left.Assessment.Bucket.Rank() > right.Assessment.Bucket.Rank()
		}
		if left.Assessment.Criticality.Rank() != right.Assessment.Criticality.Rank() {
			return left.Assessment.Criticality.Rank() > right.Assessment.Criticality.Rank()
		}
		if left.Assessment.ExploitKnown != right.Assessment.ExploitKnown {
			return left.Assessment.ExploitKnown
		}
		return left.Record.DiscoveredAt.Before(right.Record.DiscoveredAt)
	})
	return prioritized
}
