package ports

import (
	"context"
	"time"

	"depmend/internal/types"
)

// ArgClass tells the executor how strictly to validate an argument.
type ArgClass int

const (
	ArgLiteral ArgClass = iota // fixed flags and subcommands from our own code
	ArgPackage                 // untrusted package name
	ArgVersion                 // untrusted version string
	ArgPinSpec                 // untrusted name==version install spec
	ArgPath                    // file path below the working directory
)

// Arg is one positional command argument with its validation class.
type Arg struct {
	Value string
	Class ArgClass
}

// CommandSpec describes one subprocess invocation. Command must name an
// entry on the executor's allow-list; the executor resolves it to an
// absolute path itself.
type CommandSpec struct {
	Command       string
	Args          []Arg
	Timeout       time.Duration
	CorrelationID string
}

// CommandResult carries everything the child produced. A nonzero exit
// code is data, not an error; the caller decides what it means.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ExecutorPort is the trust boundary for all side effects. Arguments
// failing validation mean the command is never spawned.
type ExecutorPort interface {
	Run(ctx context.Context, spec CommandSpec) (CommandResult, error)
}

// AuditTrailPort is the append-only event log.
type AuditTrailPort interface {
	Append(eventType types.AuditEventType, correlationID string, actor string, payload map[string]string) (types.AuditEvent, error)
	Query(correlationID string) ([]types.AuditEvent, error)
	All() ([]types.AuditEvent, error)
}
