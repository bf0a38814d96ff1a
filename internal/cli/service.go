package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"depmend/internal/adapters"
	"depmend/internal/app"
	"depmend/internal/policies"
	"depmend/internal/types"
)

// newAppService builds the wired service from viper configuration. The
// returned trail must be closed by the caller.
func newAppService() (app.Service, *adapters.FileAuditTrail, error) {
	cfg := app.DefaultConfig()
	if path := viper.GetString("manifest"); path != "" {
		cfg.ManifestPath = path
	}
	if dir := viper.GetString("backup_dir"); dir != "" {
		cfg.BackupDir = dir
	}
	if path := viper.GetString("audit_trail"); path != "" {
		cfg.AuditTrailPath = path
	}
	if dir := viper.GetString("work_dir"); dir != "" {
		cfg.WorkDir = dir
	}
	if bin := viper.GetString("python_bin"); bin != "" {
		cfg.PythonBin = bin
	}
	if tool := viper.GetString("audit_tool"); tool != "" {
		cfg.AuditTool = tool
	}
	if runner := viper.GetString("test_runner"); runner != "" {
		cfg.TestRunner = runner
	}
	if timeout := viper.GetDuration("scan_timeout"); timeout > 0 {
		cfg.ScanTimeout = timeout
	}
	if timeout := viper.GetDuration("pip_timeout"); timeout > 0 {
		cfg.PipTimeout = timeout
	}
	if timeout := viper.GetDuration("test_timeout"); timeout > 0 {
		cfg.TestTimeout = timeout
	}
	if retries := viper.GetInt("max_retries"); retries > 0 {
		cfg.MaxRetries = retries
	}

	thresholds, err := policies.LoadRollbackThresholds(viper.GetString("rollback_profile"))
	if err != nil {
		return app.Service{}, nil, err
	}
	cfg.Thresholds = thresholds

	criticality, err := policies.LoadCriticalityMap(viper.GetString("criticality_profile"))
	if err != nil {
		return app.Service{}, nil, err
	}
	cfg.Criticality = criticality
	cfg.KnownExploited = viper.GetStringSlice("known_exploited")

	return app.NewService(cfg)
}

func resolveString(cmd *cobra.Command, value string, key string, flagName string) string {
	if cmd == nil {
		if value != "" {
			return value
		}
		return viper.GetString(key)
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	if configured := viper.GetString(key); configured != "" {
		return configured
	}
	return value
}

func resolveInt(cmd *cobra.Command, value int, key string, flagName string) int {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	if configured := viper.GetInt(key); configured != 0 {
		return configured
	}
	return value
}

func resolveBool(cmd *cobra.Command, value bool, key string, flagName string) bool {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetBool(key) || value
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil || strings.TrimSpace(name) == "" {
		return false
	}
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return flag.Changed
	}
	if flag := cmd.PersistentFlags().Lookup(name); flag != nil {
		return flag.Changed
	}
	return false
}

func parseTimeFlag(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	parsed := adapters.ParseTimeFlexible(value)
	if parsed.IsZero() {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
	}
	return parsed, nil
}

func severityFlag(value string) types.Severity {
	return types.Severity(strings.ToLower(strings.TrimSpace(value)))
}
