package core

import (
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	pep440 "github.com/aquasecurity/go-pep440-version"

	"depmend/internal/types"
)

// RecommendedFixVersion picks the upgrade target for a vulnerability:
// the highest PEP 440 version among the advisory's fix candidates that
// is strictly greater than the installed version. Candidates that fail
// to parse are skipped rather than failing the whole selection.
func RecommendedFixVersion(record types.VulnerabilityRecord) (string, error) {
	if len(record.FixVersions) == 0 {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("advisory %s has no fix versions", record.ID))
	}

	installed, installedErr := pep440.Parse(record.InstalledVersion)

	var best string
	var bestParsed pep440.Version
	for _, candidate := range record.FixVersions {
		parsed, err := pep440.Parse(candidate)
		if err != nil {
			continue
		}
		if installedErr == nil && !parsed.GreaterThan(installed) {
			continue
		}
		if best == "" || parsed.GreaterThan(bestParsed) {
			best = candidate
			bestParsed = parsed
		}
	}
	if best == "" {
		if installedErr == nil {
			for _, candidate := range record.FixVersions {
				if covered, err := FixCoversInstalled(record.InstalledVersion, candidate); err == nil && covered {
					return "", errbuilder.New().
						WithCode(errbuilder.CodeFailedPrecondition).
						WithMsg(fmt.Sprintf("installed %s %s already covers published fix %s", record.Package, record.InstalledVersion, candidate))
				}
			}
		}
		return "", errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("no compatible fix version for %s (installed %s)", record.Package, record.InstalledVersion))
	}
	return best, nil
}

// FixCoversInstalled reports whether a candidate fix version is at
// least the given minimal safe version.
func FixCoversInstalled(candidate string, minimalSafe string) (bool, error) {
	parsedCandidate, err := pep440.Parse(candidate)
	if err != nil {
		return false, err
	}
	parsedMinimal, err := pep440.Parse(minimalSafe)
	if err != nil {
		return false, err
	}
	return parsedCandidate.GreaterThanOrEqual(parsedMinimal), nil
}
