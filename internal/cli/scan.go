package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"depmend/internal/adapters"
	"depmend/internal/app"
	"depmend/internal/core"
	"depmend/internal/types"
)

type scanOptions struct {
	Format     string
	Output     string
	ReportFile string
}

func newScanCommand() *cobra.Command {
	opts := scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan [package...]",
		Short: "Scan installed dependencies for known vulnerabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), cmd, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.Format, "format", "table", "Output format (table or json)")
	cmd.Flags().StringVar(&opts.Output, "output", "", "Write the report to a file instead of stdout")
	cmd.Flags().StringVar(&opts.ReportFile, "from-report", "", "Parse an existing pip-audit JSON report instead of running the tool")
	_ = viper.BindPFlag("scan_format", cmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("scan_output", cmd.Flags().Lookup("output"))
	return cmd
}

func runScan(ctx context.Context, cmd *cobra.Command, opts scanOptions, packages []string) error {
	service, trail, err := newAppService()
	if err != nil {
		return err
	}
	defer trail.Close()

	scanner := app.NewScanner(service.Provider, service.Parser, service.Audit)
	if opts.ReportFile != "" {
		scanner = app.NewScanner(adapters.FileReportProvider{Path: opts.ReportFile}, service.Parser, service.Audit)
	}

	var report types.ScanReport
	if len(packages) > 0 {
		report, err = scanner.ScanPackages(ctx, packages)
	} else {
		report, err = scanner.Scan(ctx, "")
	}
	if err != nil {
		return err
	}

	rendered, err := renderScanReport(report, service.Assessor, resolveString(cmd, opts.Format, "scan_format", "format"))
	if err != nil {
		return err
	}
	output := resolveString(cmd, opts.Output, "scan_output", "output")
	if output != "" {
		if err := os.WriteFile(output, []byte(rendered), 0o644); err != nil {
			return err
		}
	} else {
		fmt.Print(rendered)
	}

	if len(report.Records) > 0 {
		return exitStatus{
			code:    exitVulnerabilitiesRemain,
			message: fmt.Sprintf("%d vulnerabilities found across %d packages", len(report.Records), report.PackagesScanned),
		}
	}
	return nil
}

func renderScanReport(report types.ScanReport, assessor core.Assessor, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	case "table", "":
		return renderScanTable(report, assessor), nil
	default:
		return "", fmt.Errorf("unknown scan format %q", format)
	}
}

func renderScanTable(report types.ScanReport, assessor core.Assessor) string {
	if len(report.Records) == 0 {
		return fmt.Sprintf("no known vulnerabilities in %d scanned packages\n", report.PackagesScanned)
	}
	prioritized := assessor.Prioritize(report.Records)
	out := fmt.Sprintf("%-30s %-20s %-10s %-10s %s\n", "PACKAGE", "VULNERABILITY", "SEVERITY", "DEADLINE", "FIX")
	for _, item := range prioritized {
		fix := "none"
		if candidate, err := core.RecommendedFixVersion(item.Record); err == nil {
			fix = candidate
		}
		out += fmt.Sprintf("%-30s %-20s %-10s %-10s %s\n",
			item.Record.Package,
			item.Record.ID,
			item.Assessment.Bucket,
			formatDeadline(item.Assessment.ResponseDeadline),
			fix,
		)
	}
	counts := report.CountBySeverity()
	var buckets []string
	for bucket := range counts {
		buckets = append(buckets, string(bucket))
	}
	sort.Strings(buckets)
	summary := ""
	for _, bucket := range buckets {
		if summary != "" {
			summary += ", "
		}
		summary += fmt.Sprintf("%s=%d", bucket, counts[types.Severity(bucket)])
	}
	out += fmt.Sprintf("\n%d findings (%s), %d parse failures\n", len(report.Records), summary, report.ParseFailures)
	return out
}

func formatDeadline(deadline time.Duration) string {
	if deadline >= 24*time.Hour {
		return fmt.Sprintf("%dd", int(deadline.Hours())/24)
	}
	return fmt.Sprintf("%dh", int(deadline.Hours()))
}
