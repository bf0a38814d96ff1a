package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depmend/internal/types"
)

func fixedClock() time.Time {
	return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
}

func TestResponseDeadline(t *testing.T) {
	tests := []struct {
		bucket types.Severity
		want   time.Duration
	}{
		{types.SeverityCritical, 24 * time.Hour},
		{types.SeverityHigh, 72 * time.Hour},
		{types.SeverityMedium, 7 * 24 * time.Hour},
		{types.SeverityLow, 30 * 24 * time.Hour},
		{types.SeverityUnknown, 30 * 24 * time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResponseDeadline(tt.bucket), string(tt.bucket))
	}
}

func TestAssess(t *testing.T) {
	assessor := NewAssessor(
		types.CriticalityMap{"django": types.CriticalityCoreRuntime},
		[]string{"CVE-2026-0001"},
	)
	assessor.Clock = fixedClock

	assessment := assessor.Assess(types.VulnerabilityRecord{
		ID:            "CVE-2026-0001",
		Package:       "Django",
		SeverityScore: 9.1,
	})
	assert.Equal(t, types.SeverityCritical, assessment.Bucket)
	assert.Equal(t, types.CriticalityCoreRuntime, assessment.Criticality)
	assert.True(t, assessment.ExploitKnown)
	assert.Equal(t, 24*time.Hour, assessment.ResponseDeadline)
	assert.Equal(t, fixedClock(), assessment.AssessedAt)
}

func TestAssessDefaultsToDevOnly(t *testing.T) {
	assessor := NewAssessor(types.CriticalityMap{}, nil)
	assessment := assessor.Assess(types.VulnerabilityRecord{ID: "X", Package: "leftpad", SeverityScore: 5})
	assert.Equal(t, types.CriticalityDevOnly, assessment.Criticality)
	assert.False(t, assessment.ExploitKnown)
}

func TestPrioritizeOrdering(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	assessor := NewAssessor(
		types.CriticalityMap{"core-pkg": types.CriticalityCoreRuntime},
		[]string{"EXPLOITED"},
	)
	assessor.Clock = fixedClock

	records := []types.VulnerabilityRecord{
		{ID: "LOW", Package: "dev-pkg", SeverityScore: 2.0, DiscoveredAt: base},
		{ID: "CRIT-DEV", Package: "dev-pkg", SeverityScore: 9.5, DiscoveredAt: base},
		{ID: "CRIT-CORE", Package: "core-pkg", SeverityScore: 9.5, DiscoveredAt: base},
		{ID: "EXPLOITED", Package: "other-dev", SeverityScore: 9.5, DiscoveredAt: base},
		{ID: "CRIT-DEV-OLD", Package: "dev-pkg", SeverityScore: 9.5, DiscoveredAt: base.Add(-time.Hour)},
	}

	prioritized := assessor.Prioritize(records)
	require.Len(t, prioritized, 5)

	ids := make([]string, 0, len(prioritized))
	for _, item := range prioritized {
		ids = append(ids, item.Record.ID)
	}
	// core-runtime first, then known-exploited, then earliest discovery.
	assert.Equal(t, []string{"CRIT-CORE", "EXPLOITED", "CRIT-DEV-OLD", "CRIT-DEV", "LOW"}, ids)
}
