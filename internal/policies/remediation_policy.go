package policies

import (
	"fmt"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"gopkg.in/yaml.v3"

	"depmend/internal/shared"
	"depmend/internal/types"
)

// RemediationMode tells the orchestrator how to treat a vulnerable
// package.
type RemediationMode string

const (
	// ModeAuto lets the pipeline upgrade the package unattended.
	ModeAuto RemediationMode = "auto"
	// ModeReview requires an operator override before upgrading.
	ModeReview RemediationMode = "review"
	// ModeFrozen excludes the package from automated upgrades entirely.
	ModeFrozen RemediationMode = "frozen"
)

// RemediationGroup binds a mode to a set of match patterns. A pattern
// is "name", "prefix*", "*", or any of those scoped to a severity
// bucket as "severity:pattern". Earlier groups win on overlap.
type RemediationGroup struct {
	Mode    RemediationMode `yaml:"mode"`
	Matches []string        `yaml:"matches"`
}

// RemediationPolicy resolves the mode for one vulnerable package.
// Patterns are compiled once; lookup is map-backed for exact matches
// and linear only over the declared prefixes.
type RemediationPolicy struct {
	Groups []RemediationGroup

	exactByBucket    map[types.Severity]map[string]int
	exactAny         map[string]int
	prefixByBucket   map[types.Severity][]prefixPattern
	prefixAny        []prefixPattern
	wildcardByBucket map[types.Severity]int
	wildcardAny      int
}

func NewRemediationPolicy(groups []RemediationGroup) RemediationPolicy {
	policy := RemediationPolicy{
		Groups:      groups,
		wildcardAny: -1,
	}
	policy.compile()
	return policy
}

// LoadRemediationPolicy reads a YAML policy file; an empty path yields
// a policy where every package resolves to auto.
func LoadRemediationPolicy(path string) (RemediationPolicy, error) {
	if path == "" {
		return NewRemediationPolicy(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RemediationPolicy{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("cannot read remediation policy %s", path)).
			WithCause(err)
	}
	var profile struct {
		Groups []RemediationGroup `yaml:"groups"`
	}
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return RemediationPolicy{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("remediation policy %s is not valid YAML", path)).
			WithCause(err)
	}
	for _, group := range profile.Groups {
		switch group.Mode {
		case ModeAuto, ModeReview, ModeFrozen:
		default:
			return RemediationPolicy{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("unknown remediation mode %q", group.Mode))
		}
	}
	return NewRemediationPolicy(profile.Groups), nil
}

// ResolveMode returns the mode of the first matching group. Packages
// matching nothing default to auto.
func (p RemediationPolicy) ResolveMode(bucket types.Severity, name string) RemediationMode {
	normalized := shared.NormalizePipName(name)
	best := -1
	if matches, ok := p.exactByBucket[bucket]; ok {
		if idx, found := matches[normalized]; found {
			best = minIndex(best, idx)
		}
	}
	if idx, found := p.exactAny[normalized]; found {
		best = minIndex(best, idx)
	}
	for _, entry := range p.prefixByBucket[bucket] {
		if strings.HasPrefix(normalized, entry.prefix) {
			best = minIndex(best, entry.groupIndex)
		}
	}
	for _, entry := range p.prefixAny {
		if strings.HasPrefix(normalized, entry.prefix) {
			best = minIndex(best, entry.groupIndex)
		}
	}
	if idx, found := p.wildcardByBucket[bucket]; found {
		best = minIndex(best, idx)
	}
	if p.wildcardAny >= 0 {
		best = minIndex(best, p.wildcardAny)
	}
	if best >= 0 && best < len(p.Groups) {
		return p.Groups[best].Mode
	}
	return ModeAuto
}

type prefixPattern struct {
	prefix     string
	groupIndex int
}

type parsedPattern struct {
	bucket *types.Severity
	kind   patternKind
	name   string
}

type patternKind int

const (
	patternExact patternKind = iota
	patternPrefix
	patternWildcard
	patternInvalid
)

func (p *RemediationPolicy) compile() {
	p.exactByBucket = map[types.Severity]map[string]int{}
	p.exactAny = map[string]int{}
	p.prefixByBucket = map[types.Severity][]prefixPattern{}
	p.prefixAny = nil
	p.wildcardByBucket = map[types.Severity]int{}
	p.wildcardAny = -1
	for idx, group := range p.Groups {
		for _, pattern := range group.Matches {
			parsed, ok := parsePattern(pattern)
			if !ok {
				continue
			}
			switch parsed.kind {
			case patternWildcard:
				p.storeWildcard(parsed.bucket, idx)
			case patternExact:
				p.storeExact(parsed.bucket, parsed.name, idx)
			case patternPrefix:
				p.storePrefix(parsed.bucket, parsed.name, idx)
			}
		}
	}
}

func (p *RemediationPolicy) storeExact(bucket *types.Severity, name string, index int) {
	if bucket == nil {
		if _, ok := p.exactAny[name]; !ok {
			p.exactAny[name] = index
		}
		return
	}
	if p.exactByBucket[*bucket] == nil {
		p.exactByBucket[*bucket] = map[string]int{}
	}
	if _, ok := p.exactByBucket[*bucket][name]; !ok {
		p.exactByBucket[*bucket][name] = index
	}
}

func (p *RemediationPolicy) storePrefix(bucket *types.Severity, prefix string, index int) {
	entry := prefixPattern{prefix: prefix, groupIndex: index}
	if bucket == nil {
		p.prefixAny = append(p.prefixAny, entry)
		return
	}
	p.prefixByBucket[*bucket] = append(p.prefixByBucket[*bucket], entry)
}

func (p *RemediationPolicy) storeWildcard(bucket *types.Severity, index int) {
	if bucket == nil {
		if p.wildcardAny < 0 {
			p.wildcardAny = index
		}
		return
	}
	if _, ok := p.wildcardByBucket[*bucket]; !ok {
		p.wildcardByBucket[*bucket] = index
	}
}

func parsePattern(pattern string) (parsedPattern, bool) {
	trimmed := strings.TrimSpace(pattern)
	if trimmed == "" {
		return parsedPattern{kind: patternInvalid}, false
	}
	if trimmed == "*" {
		return parsedPattern{kind: patternWildcard}, true
	}
	parts := strings.Split(trimmed, ":")
	if len(parts) == 2 {
		bucket, ok := parseBucket(parts[0])
		if !ok {
			return parsedPattern{kind: patternInvalid}, false
		}
		name, kind := parseNamePattern(parts[1])
		if kind == patternInvalid {
			return parsedPattern{kind: patternInvalid}, false
		}
		return parsedPattern{bucket: &bucket, kind: kind, name: name}, true
	}
	name, kind := parseNamePattern(trimmed)
	if kind == patternInvalid {
		return parsedPattern{kind: patternInvalid}, false
	}
	return parsedPattern{kind: kind, name: name}, true
}

func parseBucket(token string) (types.Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "critical":
		return types.SeverityCritical, true
	case "high":
		return types.SeverityHigh, true
	case "medium":
		return types.SeverityMedium, true
	case "low":
		return types.SeverityLow, true
	default:
		return "", false
	}
}

func parseNamePattern(value string) (string, patternKind) {
	pattern := shared.NormalizePipName(value)
	if pattern == "" {
		return "", patternInvalid
	}
	if pattern == "*" {
		return "", patternWildcard
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.TrimSuffix(pattern, "*"), patternPrefix
	}
	return pattern, patternExact
}

func minIndex(current int, candidate int) int {
	if candidate < 0 {
		return current
	}
	if current < 0 || candidate < current {
		return candidate
	}
	return current
}
