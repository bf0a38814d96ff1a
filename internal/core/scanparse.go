package core

import (
	"encoding/json"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"depmend/internal/types"
)

// Raw shapes of the audit tool's JSON output. Both the current
// dependency-grouped format and the flat legacy format are accepted.
// Nothing here is trusted until it passes struct validation.

type rawAuditReport struct {
	Dependencies []rawDependency `json:"dependencies"`
}

type rawDependency struct {
	Name    string             `json:"name" validate:"required"`
	Version string             `json:"version" validate:"required"`
	Vulns   []rawVulnerability `json:"vulns"`
}

type rawVulnerability struct {
	ID          string   `json:"id" validate:"required"`
	FixVersions []string `json:"fix_versions" validate:"required"`
	Description string   `json:"description"`
	Severity    float64  `json:"severity" validate:"gte=0,lte=10"`
}

type rawFlatVulnerability struct {
	ID               string   `json:"id" validate:"required"`
	Package          string   `json:"package" validate:"required"`
	InstalledVersion string   `json:"installed_version" validate:"required"`
	FixVersions      []string `json:"fix_versions" validate:"required"`
	Description      string   `json:"description"`
	Severity         float64  `json:"severity" validate:"gte=0,lte=10"`
}

type rawFlatReport struct {
	Vulnerabilities []rawFlatVulnerability `json:"vulnerabilities"`
}

// ReportParser turns raw audit-tool output into canonical records.
type ReportParser struct {
	validate *validator.Validate
	Clock    func() time.Time
}

func NewReportParser() *ReportParser {
	return &ReportParser{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		Clock:    time.Now,
	}
}

// Parse decodes the JSON document and returns the canonical records
// plus the number of records dropped for failing schema validation.
// A record missing a required field, carrying a severity outside
// [0, 10], or naming an invalid package/version is dropped and logged,
// never fatal: partial results beat total failure. A document that is
// not JSON at all is an error.
func (p *ReportParser) Parse(data []byte) ([]types.VulnerabilityRecord, int, error) {
	if len(data) == 0 {
		return nil, 0, nil
	}

	var grouped rawAuditReport
	if err := json.Unmarshal(data, &grouped); err != nil {
		return nil, 0, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("audit tool output is not valid JSON").
			WithCause(err)
	}
	if len(grouped.Dependencies) > 0 {
		return p.parseGrouped(grouped.Dependencies)
	}

	var flat rawFlatReport
	if err := json.Unmarshal(data, &flat); err == nil && len(flat.Vulnerabilities) > 0 {
		return p.parseFlat(flat.Vulnerabilities)
	}
	return nil, 0, nil
}

func (p *ReportParser) parseGrouped(dependencies []rawDependency) ([]types.VulnerabilityRecord, int, error) {
	var records []types.VulnerabilityRecord
	dropped := 0
	now := p.Clock()

	for _, dep := range dependencies {
		if err := p.validate.Struct(dep); err != nil {
			dropped += len(dep.Vulns)
			log.Warn().Str("package", dep.Name).Err(err).Msg("dropping dependency entry failing schema validation")
			continue
		}
		for _, vuln := range dep.Vulns {
			record, ok := p.buildRecord(dep.Name, dep.Version, vuln, now)
			if !ok {
				dropped++
				continue
			}
			records = append(records, record)
		}
	}
	return records, dropped, nil
}

func (p *ReportParser) parseFlat(vulns []rawFlatVulnerability) ([]types.VulnerabilityRecord, int, error) {
	var records []types.VulnerabilityRecord
	dropped := 0
	now := p.Clock()

	for _, vuln := range vulns {
		grouped := rawVulnerability{
			ID:          vuln.ID,
			FixVersions: vuln.FixVersions,
			Description: vuln.Description,
			Severity:    vuln.Severity,
		}
		if err := p.validate.Struct(vuln); err != nil {
			dropped++
			log.Warn().Str("advisory", vuln.ID).Err(err).Msg("dropping record failing schema validation")
			continue
		}
		record, ok := p.buildRecord(vuln.Package, vuln.InstalledVersion, grouped, now)
		if !ok {
			dropped++
			continue
		}
		records = append(records, record)
	}
	return records, dropped, nil
}

func (p *ReportParser) buildRecord(pkg string, installed string, vuln rawVulnerability, now time.Time) (types.VulnerabilityRecord, bool) {
	if err := p.validate.Struct(vuln); err != nil {
		log.Warn().Str("advisory", vuln.ID).Err(err).Msg("dropping record failing schema validation")
		return types.VulnerabilityRecord{}, false
	}
	// Names and versions feed command lines later; reject here so bad
	// data never reaches the executor.
	if err := ValidatePackageName(pkg); err != nil {
		log.Warn().Str("advisory", vuln.ID).Str("package", pkg).Msg("dropping record with invalid package name")
		return types.VulnerabilityRecord{}, false
	}
	if err := ValidateVersion(installed); err != nil {
		log.Warn().Str("advisory", vuln.ID).Str("version", installed).Msg("dropping record with invalid installed version")
		return types.VulnerabilityRecord{}, false
	}
	fixes := make([]string, 0, len(vuln.FixVersions))
	for _, fix := range vuln.FixVersions {
		if err := ValidateVersion(fix); err != nil {
			log.Warn().Str("advisory", vuln.ID).Str("fix_version", fix).Msg("skipping invalid fix version")
			continue
		}
		fixes = append(fixes, fix)
	}
	return types.VulnerabilityRecord{
		ID:               vuln.ID,
		Package:          pkg,
		InstalledVersion: installed,
		FixVersions:      fixes,
		SeverityScore:    vuln.Severity,
		Description:      vuln.Description,
		DiscoveredAt:     now,
	}, true
}
