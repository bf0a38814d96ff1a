package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"depmend/internal/app"
	"depmend/internal/types"
)

type reportOptions struct {
	Since    string
	Until    string
	Severity string
	Format   string
	Output   string
	Scan     bool
}

func newReportCommand() *cobra.Command {
	opts := reportOptions{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a compliance report from the audit trail",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Since, "since", "", "Window start (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Until, "until", "", "Window end, exclusive (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Severity, "severity", "", "Only include findings in this severity bucket")
	cmd.Flags().StringVar(&opts.Format, "format", "json", "Output format (json, markdown, or csv)")
	cmd.Flags().StringVar(&opts.Output, "output", "", "Write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&opts.Scan, "scan", false, "Run a fresh scan to include current findings")
	_ = viper.BindPFlag("report_format", cmd.Flags().Lookup("format"))
	return cmd
}

func runReport(ctx context.Context, cmd *cobra.Command, opts reportOptions) error {
	service, trail, err := newAppService()
	if err != nil {
		return err
	}
	defer trail.Close()

	start, err := parseTimeFlag(opts.Since)
	if err != nil {
		return fmt.Errorf("invalid --since value %q: %w", opts.Since, err)
	}
	end, err := parseTimeFlag(opts.Until)
	if err != nil {
		return fmt.Errorf("invalid --until value %q: %w", opts.Until, err)
	}

	events, err := service.Audit.All()
	if err != nil {
		return err
	}

	var records []types.VulnerabilityRecord
	if opts.Scan {
		scanReport, err := app.NewScanner(service.Provider, service.Parser, service.Audit).Scan(ctx, "")
		if err != nil {
			return err
		}
		records = scanReport.Records
	}

	reporter := app.Reporter{Assessor: service.Assessor}
	compliance := reporter.Build(events, records, app.ReportOptions{
		Start:    start,
		End:      end,
		Severity: severityFlag(opts.Severity),
	})

	rendered, err := app.Render(compliance, types.ReportFormat(resolveString(cmd, opts.Format, "report_format", "format")))
	if err != nil {
		return err
	}
	if opts.Output != "" {
		return os.WriteFile(opts.Output, []byte(rendered), 0o644)
	}
	fmt.Print(rendered)
	return nil
}
