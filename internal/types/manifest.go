package types

import (
	"fmt"
	"strings"
)

// PackagePin is one package==version pair from the dependency manifest.
type PackagePin struct {
	Name    string
	Version string
}

func (p PackagePin) String() string {
	return fmt.Sprintf("%s==%s", p.Name, p.Version)
}

// Manifest is the ordered list of pinned packages making up the live
// environment. Order is preserved but carries no semantic meaning.
type Manifest []PackagePin

// ParseManifest reads newline-delimited package==version pairs.
// Blank lines and comment lines are skipped; any other malformed line
// is an error because a half-parsed manifest must never feed a restore.
func ParseManifest(data []byte) (Manifest, error) {
	var manifest Manifest
	for i, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		name, version, ok := strings.Cut(trimmed, "==")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(version) == "" {
			return nil, fmt.Errorf("manifest line %d: malformed pin %q", i+1, trimmed)
		}
		manifest = append(manifest, PackagePin{
			Name:    strings.TrimSpace(name),
			Version: strings.TrimSpace(version),
		})
	}
	return manifest, nil
}

// Render serializes the manifest back to its wire form, one pin per
// line with a trailing newline.
func (m Manifest) Render() []byte {
	if len(m) == 0 {
		return []byte{}
	}
	var builder strings.Builder
	for _, pin := range m {
		builder.WriteString(pin.String())
		builder.WriteString("\n")
	}
	return []byte(builder.String())
}

// VersionOf returns the pinned version for a package, or "" if the
// package is not present.
func (m Manifest) VersionOf(name string) string {
	for _, pin := range m {
		if pin.Name == name {
			return pin.Version
		}
	}
	return ""
}

// WithPin returns a copy of the manifest with the named package set to
// the given version, appending when the package was absent.
func (m Manifest) WithPin(name string, version string) Manifest {
	updated := append(Manifest(nil), m...)
	for i, pin := range updated {
		if pin.Name == name {
			updated[i].Version = version
			return updated
		}
	}
	return append(updated, PackagePin{Name: name, Version: version})
}
