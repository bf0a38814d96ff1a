package app

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"depmend/internal/core"
	"depmend/internal/ports"
	"depmend/internal/types"
)

// Scanner turns raw audit-tool output into canonical vulnerability
// records. Scans are read-only and may run concurrently; two scans of
// the same environment state yield the same records modulo
// DiscoveredAt.
type Scanner struct {
	Provider ports.ScanProviderPort
	Parser   *core.ReportParser
	Audit    ports.AuditTrailPort
	Clock    func() time.Time
}

func NewScanner(provider ports.ScanProviderPort, parser *core.ReportParser, audit ports.AuditTrailPort) Scanner {
	return Scanner{
		Provider: provider,
		Parser:   parser,
		Audit:    audit,
		Clock:    time.Now,
	}
}

// Scan audits one scope: a single package name or "" for everything
// installed.
func (s Scanner) Scan(ctx context.Context, scope string) (types.ScanReport, error) {
	correlationID := uuid.NewString()
	return s.scanWithCorrelation(ctx, scope, correlationID)
}

// ScanForAttempt scans under an existing attempt's correlation id so
// the events land on that attempt's timeline.
func (s Scanner) ScanForAttempt(ctx context.Context, scope string, correlationID string) (types.ScanReport, error) {
	return s.scanWithCorrelation(ctx, scope, correlationID)
}

func (s Scanner) scanWithCorrelation(ctx context.Context, scope string, correlationID string) (types.ScanReport, error) {
	if scope != "" {
		if err := core.ValidatePackageName(scope); err != nil {
			return types.ScanReport{}, err
		}
	}
	started := s.Clock()
	s.audit(types.EventScanStarted, correlationID, map[string]string{"scope": scopeLabel(scope)})

	raw, err := s.Provider.RawReport(ctx, scope, correlationID)
	if err != nil {
		return types.ScanReport{}, err
	}
	records, dropped, err := s.Parser.Parse(raw)
	if err != nil {
		return types.ScanReport{}, err
	}

	report := types.ScanReport{
		ScannedAt:       started,
		Scope:           scopeLabel(scope),
		Records:         records,
		PackagesScanned: countPackages(records),
		ParseFailures:   dropped,
		Duration:        s.Clock().Sub(started),
	}
	s.audit(types.EventScanCompleted, correlationID, map[string]string{
		"scope":          report.Scope,
		"records":        strconv.Itoa(len(records)),
		"parse_failures": strconv.Itoa(dropped),
	})
	return report, nil
}

// ScanPackages runs one independent scan per package concurrently and
// merges the results, deduplicating advisories by id.
func (s Scanner) ScanPackages(ctx context.Context, packages []string) (types.ScanReport, error) {
	started := s.Clock()
	type result struct {
		report types.ScanReport
		err    error
	}

	results := make([]result, len(packages))
	var wg sync.WaitGroup
	for i, pkg := range packages {
		wg.Add(1)
		go func(i int, pkg string) {
			defer wg.Done()
			report, err := s.Scan(ctx, pkg)
			results[i] = result{report: report, err: err}
		}(i, pkg)
	}
	wg.Wait()

	merged := types.ScanReport{ScannedAt: started, Scope: "batch"}
	seen := map[string]struct{}{}
	for i, res := range results {
		if res.err != nil {
			log.Warn().Str("package", packages[i]).Err(res.err).Msg("package scan failed")
			merged.ParseFailures++
			continue
		}
		merged.ParseFailures += res.report.ParseFailures
		merged.PackagesScanned += res.report.PackagesScanned
		for _, record := range res.report.Records {
			if _, ok := seen[record.ID+"/"+record.Package]; ok {
				continue
			}
			seen[record.ID+"/"+record.Package] = struct{}{}
			merged.Records = append(merged.Records, record)
		}
	}
	sort.Slice(merged.Records, func(i, j int) bool {
		if merged.Records[i].Package != merged.Records[j].Package {
			return merged.Records[i].Package < merged.Records[j].Package
		}
		return merged.Records[i].ID < merged.Records[j].ID
	})
	merged.Duration = s.Clock().Sub(started)
	return merged, nil
}

func (s Scanner) audit(eventType types.AuditEventType, correlationID string, payload map[string]string) {
	if s.Audit == nil {
		return
	}
	if _, err := s.Audit.Append(eventType, correlationID, "scanner", payload); err != nil {
		log.Error().Err(err).Msg("failed to audit scan event")
	}
}

func scopeLabel(scope string) string {
	if scope == "" {
		return "all"
	}
	return scope
}

func countPackages(records []types.VulnerabilityRecord) int {
	packages := map[string]struct{}{}
	for _, record := range records {
		packages[record.Package] = struct{}{}
	}
	return len(packages)
}
