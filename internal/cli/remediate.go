package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"depmend/internal/adapters"
	"depmend/internal/app"
	"depmend/internal/policies"
	"depmend/internal/types"
)

type remediateOptions struct {
	All          bool
	VulnID       string
	DryRun       bool
	Override     bool
	MaxRetries   int
	TestBaseline time.Duration
}

func newRemediateCommand() *cobra.Command {
	opts := remediateOptions{}
	cmd := &cobra.Command{
		Use:   "remediate [package==version]",
		Short: "Upgrade vulnerable packages with validation and automatic rollback",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemediate(cmd.Context(), cmd, opts, args)
		},
	}
	cmd.Flags().BoolVar(&opts.All, "all", false, "Scan and remediate every fixable vulnerability in priority order")
	cmd.Flags().StringVar(&opts.VulnID, "vuln", "", "Advisory id driving a single-package upgrade")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Validate the upgrade without mutating the environment")
	cmd.Flags().BoolVar(&opts.Override, "override", false, "Proceed past the standard failure-rate threshold (hard ceiling still applies)")
	cmd.Flags().IntVar(&opts.MaxRetries, "max-retries", 0, "Retries for timed-out subprocess phases (0 = configured default)")
	cmd.Flags().DurationVar(&opts.TestBaseline, "test-baseline", 0, "Healthy test-suite duration; regressions against it feed the rollback decision")
	_ = viper.BindPFlag("remediate_override", cmd.Flags().Lookup("override"))
	_ = viper.BindPFlag("remediate_max_retries", cmd.Flags().Lookup("max-retries"))
	_ = viper.BindPFlag("test_baseline", cmd.Flags().Lookup("test-baseline"))
	return cmd
}

func runRemediate(ctx context.Context, cmd *cobra.Command, opts remediateOptions, args []string) error {
	service, trail, err := newAppService()
	if err != nil {
		return err
	}
	defer trail.Close()

	orchestrator := app.NewOrchestrator(service)
	policy, err := policies.LoadRemediationPolicy(viper.GetString("remediation_policy"))
	if err != nil {
		return err
	}
	orchestrator.Policy = policy
	if root := viper.GetString("project_root"); root != "" {
		paths, err := adapters.NewWorkspaceAdapter().FindConfigFiles(root)
		if err != nil {
			return err
		}
		orchestrator.ConfigPaths = paths
	}
	baseline := opts.TestBaseline
	if !flagChanged(cmd, "test-baseline") {
		if configured := viper.GetDuration("test_baseline"); configured > 0 {
			baseline = configured
		}
	}
	runOpts := app.RunOptions{
		DryRun:               opts.DryRun,
		ManualOverride:       resolveBool(cmd, opts.Override, "remediate_override", "override"),
		MaxRetries:           resolveInt(cmd, opts.MaxRetries, "remediate_max_retries", "max-retries"),
		BaselineTestDuration: baseline,
	}

	if opts.All {
		if len(args) > 0 {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("--all does not take a package argument")
		}
		return runRemediateAll(ctx, orchestrator, service, runOpts)
	}

	if len(args) != 1 {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("expected exactly one package==version argument (or --all)")
	}
	name, version, ok := strings.Cut(args[0], "==")
	if !ok {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("target %q is not in package==version form", args[0]))
	}

	outcome, err := orchestrator.Run(ctx, types.PackageTarget{
		Package:         name,
		TargetVersion:   version,
		VulnerabilityID: opts.VulnID,
	}, runOpts)
	if err != nil {
		printStderr("remediation failed: %s", errorMessage(err))
		return err
	}
	return reportOutcome(outcome, opts.DryRun)
}

func reportOutcome(outcome types.UpgradeOutcome, dryRun bool) error {
	switch outcome.Outcome {
	case types.OutcomeCommitted:
		fmt.Printf("committed: %s (attempt %s, backup %s)\n", outcome.Target, outcome.AttemptID, outcome.BackupID)
		return nil
	case types.OutcomeRolledBack:
		return exitStatus{
			code:    exitRolledBack,
			message: fmt.Sprintf("rolled back: %s (attempt %s)", outcome.Target, outcome.AttemptID),
		}
	case types.OutcomeNone:
		if dryRun {
			fmt.Printf("dry-run complete: %s (attempt %s)\n", outcome.Target, outcome.AttemptID)
			return nil
		}
		fallthrough
	default:
		return exitStatus{
			code:    exitFatal,
			message: fmt.Sprintf("attempt %s ended in state %s", outcome.AttemptID, outcome.State),
		}
	}
}

func runRemediateAll(ctx context.Context, orchestrator *app.Orchestrator, service app.Service, runOpts app.RunOptions) error {
	result, err := orchestrator.RunAll(ctx, service.Assessor, runOpts)
	if err != nil {
		printStderr("batch remediation aborted: %s", errorMessage(err))
		return err
	}

	fmt.Printf("findings: %d, committed: %d, rolled back: %d, skipped: %d\n",
		len(result.Report.Records), result.Committed(), result.RolledBack(), len(result.Skipped))
	for _, skipped := range result.Skipped {
		fmt.Printf("  skipped %s (%s): %s\n", skipped.Record.Package, skipped.Record.ID, skipped.Reason)
	}

	switch {
	case result.RolledBack() > 0:
		return exitStatus{
			code:    exitRolledBack,
			message: fmt.Sprintf("%d attempts rolled back", result.RolledBack()),
		}
	case result.Remaining > 0:
		return exitStatus{
			code:    exitVulnerabilitiesRemain,
			message: fmt.Sprintf("%d vulnerabilities remain unremediated", result.Remaining),
		}
	default:
		return nil
	}
}

func newResumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Roll back attempts interrupted before reaching a terminal state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runResume(cmd.Context())
		},
	}
	return cmd
}

func runResume(ctx context.Context) error {
	service, trail, err := newAppService()
	if err != nil {
		return err
	}
	defer trail.Close()

	outcomes, err := app.NewOrchestrator(service).Resume(ctx)
	if err != nil {
		printStderr("resume failed: %s", errorMessage(err))
		return err
	}
	if len(outcomes) == 0 {
		fmt.Println("no interrupted attempts found")
		return nil
	}
	for _, outcome := range outcomes {
		fmt.Printf("restored attempt %s (%s) from backup %s\n", outcome.AttemptID, outcome.Target, outcome.BackupID)
	}
	return nil
}
