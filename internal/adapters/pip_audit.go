package adapters

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"depmend/internal/ports"
)

// PipAuditAdapter invokes the external audit tool through the secure
// executor and hands back its raw JSON report. Scanning is read-only;
// any number of scans may run concurrently.
type PipAuditAdapter struct {
	Executor ports.ExecutorPort
	// Tool must match the entry on the executor's allow-list.
	Tool               string
	Timeout            time.Duration
	IncludeDescription bool
}

func NewPipAuditAdapter(executor ports.ExecutorPort, tool string, timeout time.Duration) PipAuditAdapter {
	return PipAuditAdapter{
		Executor:           executor,
		Tool:               tool,
		Timeout:            timeout,
		IncludeDescription: true,
	}
}

func (a PipAuditAdapter) RawReport(ctx context.Context, scope string, correlationID string) ([]byte, error) {
	args := []ports.Arg{
		{Value: "--format=json", Class: ports.ArgLiteral},
	}
	if a.IncludeDescription {
		args = append(args, ports.Arg{Value: "--desc", Class: ports.ArgLiteral})
	}
	if scope != "" {
		args = append(args, ports.Arg{Value: scope, Class: ports.ArgPackage})
	}

	result, err := a.Executor.Run(ctx, ports.CommandSpec{
		Command:       a.Tool,
		Args:          args,
		Timeout:       a.Timeout,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}

	// The audit tool exits nonzero when vulnerabilities are found; that
	// is a finding, not a failure. A nonzero exit with no JSON output
	// is a real failure.
	if result.ExitCode != 0 && result.Stdout == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("audit tool failed with exit code %d: %s", result.ExitCode, result.Stderr))
	}
	if result.Stderr != "" {
		log.Debug().Str("stderr", result.Stderr).Msg("audit tool diagnostics")
	}
	return []byte(result.Stdout), nil
}

// FileReportProvider serves a previously captured audit report from
// disk, for offline parsing.
type FileReportProvider struct {
	Path string
}

func (p FileReportProvider) RawReport(_ context.Context, _ string, _ string) ([]byte, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("cannot read audit report %s", p.Path)).
			WithCause(err)
	}
	return data, nil
}

var (
	_ ports.ScanProviderPort = PipAuditAdapter{}
	_ ports.ScanProviderPort = FileReportProvider{}
)
