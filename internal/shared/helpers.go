// Package shared provides common utility functions used across multiple
// packages in the depmend codebase.
package shared

import (
	"strings"
)

// NormalizePipName lowercases a Python package name and replaces
// underscores and dots with hyphens, following PEP 503 normalization.
// Advisory feeds and manifests disagree on spelling; everything that
// compares package names goes through here first.
func NormalizePipName(value string) string {
	lower := strings.ToLower(strings.TrimSpace(value))
	replacer := strings.NewReplacer("_", "-", ".", "-")
	return replacer.Replace(lower)
}
