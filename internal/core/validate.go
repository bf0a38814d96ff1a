package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	pep440 "github.com/aquasecurity/go-pep440-version"
)

// Validation rules for arguments that end up on a subprocess command
// line. Package names and versions come from semi-trusted scanner
// output and from operator input; both are rejected before any
// execution when they fail the allow-list pattern.

var (
	packageNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	versionPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)
)

// shell metacharacters and quoting characters that must never reach a
// command line, even though execution never goes through a shell
var dangerousRunes = ";&|`$()<>\"'\\"

// ValidatePackageName checks an untrusted package name against the
// strict allow-list pattern. Path traversal and absolute paths are
// rejected explicitly even though the pattern already excludes them.
func ValidatePackageName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed != name {
		return validationError(fmt.Sprintf("package name %q is empty or has surrounding whitespace", name))
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		return validationError(fmt.Sprintf("package name %q contains path traversal", name))
	}
	if !packageNamePattern.MatchString(name) {
		return validationError(fmt.Sprintf("package name %q contains characters outside [A-Za-z0-9._-]", name))
	}
	return nil
}

// ValidateVersion checks an untrusted version string. The character
// allow-list accepts PEP 440 forms like 1.2.3, 1.2.3a1, 1.2.3.dev0 and
// local versions with +; on top of that the string must actually parse
// as PEP 440.
func ValidateVersion(version string) error {
	trimmed := strings.TrimSpace(version)
	if trimmed == "" || trimmed != version {
		return validationError(fmt.Sprintf("version %q is empty or has surrounding whitespace", version))
	}
	if strings.ContainsAny(version, dangerousRunes) {
		return validationError(fmt.Sprintf("version %q contains dangerous characters", version))
	}
	if !versionPattern.MatchString(version) {
		return validationError(fmt.Sprintf("version %q contains characters outside [A-Za-z0-9._+-]", version))
	}
	if _, err := pep440.Parse(version); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("version %q is not a valid PEP 440 version", version)).
			WithCause(err)
	}
	return nil
}

// ValidateArgument checks a generic command-line argument (flags, file
// names below the working directory, subcommands). Less strict than the
// package/version rules but still rejects shell metacharacters,
// whitespace and traversal.
func ValidateArgument(arg string) error {
	if arg == "" {
		return validationError("empty command argument")
	}
	if strings.ContainsAny(arg, dangerousRunes) {
		return validationError(fmt.Sprintf("argument %q contains shell metacharacters", arg))
	}
	if strings.ContainsAny(arg, " \t\r\n") {
		return validationError(fmt.Sprintf("argument %q contains whitespace", arg))
	}
	if strings.Contains(arg, "../") || strings.Contains(arg, "..\\") {
		return validationError(fmt.Sprintf("argument %q contains path traversal", arg))
	}
	return nil
}

// ValidatePinSpec validates a combined name==version installation spec.
func ValidatePinSpec(name string, version string) error {
	if err := ValidatePackageName(name); err != nil {
		return err
	}
	return ValidateVersion(version)
}

func validationError(msg string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(msg)
}
