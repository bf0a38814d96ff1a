package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"depmend/internal/core"
	"depmend/internal/ports"
	"depmend/internal/types"
)

const defaultCommandTimeout = 5 * time.Minute

// SecureExecutor validates and executes external commands without shell
// interpretation. Commands must appear on the allow-list, every
// argument is validated per its class before anything is spawned, and
// the executable is resolved to an absolute path. One audit event is
// emitted per invocation, carrying only validated (sanitized) input.
type SecureExecutor struct {
	Allowed map[string]struct{}
	Audit   ports.AuditTrailPort
	WorkDir string
	// LookPath is swappable for tests; defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

func NewSecureExecutor(allowed []string, audit ports.AuditTrailPort, workDir string) *SecureExecutor {
	set := map[string]struct{}{}
	for _, name := range allowed {
		set[name] = struct{}{}
	}
	return &SecureExecutor{
		Allowed:  set,
		Audit:    audit,
		WorkDir:  workDir,
		LookPath: exec.LookPath,
	}
}

func (e *SecureExecutor) Run(ctx context.Context, spec ports.CommandSpec) (ports.CommandResult, error) {
	argv, err := e.validateSpec(spec)
	if err != nil {
		e.auditRejection(spec, err)
		return ports.CommandResult{}, err
	}

	absolute, err := e.LookPath(spec.Command)
	if err != nil {
		return ports.CommandResult{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("executable %q not found on PATH", spec.Command)).
			WithCause(err)
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, absolute, argv...)
	cmd.Dir = e.WorkDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	duration := time.Since(started)

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	result := ports.CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Duration: duration,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		err := errbuilder.New().
			WithCode(errbuilder.CodeDeadlineExceeded).
			WithMsg(fmt.Sprintf("command %s timed out after %s", spec.Command, timeout)).
			WithCause(runErr)
		e.auditExecution(spec, argv, result, err)
		return result, err
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			err := errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to run %s", spec.Command)).
				WithCause(runErr)
			e.auditExecution(spec, argv, result, err)
			return result, err
		}
		if exitErr.ExitCode() < 0 {
			err := errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("command %s terminated by signal", spec.Command)).
				WithCause(runErr)
			e.auditExecution(spec, argv, result, err)
			return result, err
		}
		// Nonzero exit is data for the caller, not an error here.
	}

	e.auditExecution(spec, argv, result, nil)
	return result, nil
}

func (e *SecureExecutor) validateSpec(spec ports.CommandSpec) ([]string, error) {
	if _, ok := e.Allowed[spec.Command]; !ok {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("command %q is not on the allow-list", spec.Command))
	}
	argv := make([]string, 0, len(spec.Args))
	for i, arg := range spec.Args {
		if err := validateArg(arg); err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("argument %d rejected", i)).
				WithCause(err)
		}
		argv = append(argv, arg.Value)
	}
	return argv, nil
}

func validateArg(arg ports.Arg) error {
	switch arg.Class {
	case ports.ArgPackage:
		return core.ValidatePackageName(arg.Value)
	case ports.ArgVersion:
		return core.ValidateVersion(arg.Value)
	case ports.ArgPinSpec:
		name, version, ok := strings.Cut(arg.Value, "==")
		if !ok {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("pin spec %q is not name==version", arg.Value))
		}
		return core.ValidatePinSpec(name, version)
	default:
		return core.ValidateArgument(arg.Value)
	}
}

func (e *SecureExecutor) auditExecution(spec ports.CommandSpec, argv []string, result ports.CommandResult, runErr error) {
	payload := map[string]string{
		"command":   spec.Command,
		"args":      strings.Join(sanitizeArgs(argv), " "),
		"exit_code": strconv.Itoa(result.ExitCode),
		"duration":  result.Duration.String(),
	}
	if runErr != nil {
		payload["error"] = runErr.Error()
	}
	if e.Audit == nil {
		return
	}
	if _, err := e.Audit.Append(types.EventCommandExecuted, spec.CorrelationID, "executor", payload); err != nil {
		log.Error().Err(err).Msg("failed to audit command execution")
	}
}

func (e *SecureExecutor) auditRejection(spec ports.CommandSpec, cause error) {
	log.Warn().Str("command", spec.Command).Err(cause).Msg("command rejected before execution")
	if e.Audit == nil {
		return
	}
	payload := map[string]string{
		"command": spec.Command,
		"reason":  cause.Error(),
	}
	if _, err := e.Audit.Append(types.EventCommandRejected, spec.CorrelationID, "executor", payload); err != nil {
		log.Error().Err(err).Msg("failed to audit command rejection")
	}
}

// sanitizeArgs prepares validated arguments for the audit payload:
// secret-looking values are redacted and very long values truncated.
func sanitizeArgs(argv []string) []string {
	sanitized := make([]string, 0, len(argv))
	for _, arg := range argv {
		lower := strings.ToLower(arg)
		switch {
		case strings.Contains(lower, "password"), strings.Contains(lower, "token"),
			strings.Contains(lower, "secret"), strings.Contains(lower, "api-key"):
			sanitized = append(sanitized, "[REDACTED]")
		case len(arg) > 100:
			sanitized = append(sanitized, arg[:97]+"...")
		default:
			sanitized = append(sanitized, arg)
		}
	}
	return sanitized
}

var _ ports.ExecutorPort = (*SecureExecutor)(nil)
