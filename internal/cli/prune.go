package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"depmend/internal/app"
	"depmend/internal/types"
)

type pruneOptions struct {
	KeepLast int
	KeepDays int
	DryRun   bool
}

func newPruneCommand() *cobra.Command {
	opts := pruneOptions{}
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Prune stored environment snapshots based on retention policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrune(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.KeepLast, "keep-last", 0, "Keep the last N snapshots")
	cmd.Flags().IntVar(&opts.KeepDays, "keep-days", 14, "Keep snapshots newer than N days")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", true, "Only report prune actions without deleting")
	_ = viper.BindPFlag("keep_last", cmd.Flags().Lookup("keep-last"))
	_ = viper.BindPFlag("keep_days", cmd.Flags().Lookup("keep-days"))
	_ = viper.BindPFlag("prune_dry_run", cmd.Flags().Lookup("dry-run"))
	return cmd
}

func runPrune(cmd *cobra.Command, opts pruneOptions) error {
	service, trail, err := newAppService()
	if err != nil {
		return err
	}
	defer trail.Close()

	policy := types.BackupRetentionPolicy{
		KeepLast: resolveInt(cmd, opts.KeepLast, "keep_last", "keep-last"),
		KeepDays: resolveInt(cmd, opts.KeepDays, "keep_days", "keep-days"),
		DryRun:   resolveBool(cmd, opts.DryRun, "prune_dry_run", "dry-run"),
	}
	plan, err := app.NewPruner(service.Backups, service.Audit).Prune(policy)
	if err != nil {
		return err
	}
	if policy.DryRun {
		fmt.Printf("dry-run: keep=%d delete=%d\n", len(plan.Keep), len(plan.Delete))
		for _, snapshot := range plan.Delete {
			fmt.Printf("  would delete %s (attempt %s, %s)\n",
				snapshot.BackupID, snapshot.AttemptID, snapshot.CreatedAt.Format("2006-01-02"))
		}
		return nil
	}
	fmt.Printf("pruned snapshots: %d\n", len(plan.Delete))
	return nil
}
