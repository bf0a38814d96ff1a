package policies

import (
	"fmt"
	"os"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"gopkg.in/yaml.v3"

	"depmend/internal/shared"
	"depmend/internal/types"
)

// RollbackProfile is the YAML shape of a caller-supplied threshold
// profile. Zero fields fall back to the documented defaults; the
// thresholds are policy, not constants baked into the pipeline.
type RollbackProfile struct {
	MaxTestFailureRate       *float64 `yaml:"max_test_failure_rate"`
	HardTestFailureRate      *float64 `yaml:"hard_test_failure_rate"`
	MaxPerformanceRegression *float64 `yaml:"max_performance_regression"`
}

// LoadRollbackThresholds reads a profile file and merges it over the
// defaults. An empty path returns the defaults unchanged.
func LoadRollbackThresholds(path string) (types.RollbackThresholds, error) {
	thresholds := types.DefaultRollbackThresholds()
	if path == "" {
		return thresholds, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return types.RollbackThresholds{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("cannot read rollback profile %s", path)).
			WithCause(err)
	}
	var profile RollbackProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return types.RollbackThresholds{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("rollback profile %s is not valid YAML", path)).
			WithCause(err)
	}

	if profile.MaxTestFailureRate != nil {
		thresholds.MaxTestFailureRate = *profile.MaxTestFailureRate
	}
	if profile.HardTestFailureRate != nil {
		thresholds.HardTestFailureRate = *profile.HardTestFailureRate
	}
	if profile.MaxPerformanceRegression != nil {
		thresholds.MaxPerformanceRegression = *profile.MaxPerformanceRegression
	}
	return thresholds, ValidateThresholds(thresholds)
}

// ValidateThresholds rejects profiles that would disable safety checks.
// The hard ceiling may never sit below the standard threshold and no
// rate may leave [0, 1].
func ValidateThresholds(thresholds types.RollbackThresholds) error {
	if thresholds.MaxTestFailureRate < 0 || thresholds.MaxTestFailureRate > 1 {
		return invalidThreshold("max_test_failure_rate", thresholds.MaxTestFailureRate)
	}
	if thresholds.HardTestFailureRate < 0 || thresholds.HardTestFailureRate > 1 {
		return invalidThreshold("hard_test_failure_rate", thresholds.HardTestFailureRate)
	}
	if thresholds.MaxPerformanceRegression < 0 {
		return invalidThreshold("max_performance_regression", thresholds.MaxPerformanceRegression)
	}
	if thresholds.HardTestFailureRate < thresholds.MaxTestFailureRate {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("hard_test_failure_rate must not be below max_test_failure_rate")
	}
	return nil
}

func invalidThreshold(name string, value float64) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("threshold %s=%v is out of range", name, value))
}

// CriticalityProfile maps package names to their caller-supplied
// criticality classification.
type CriticalityProfile struct {
	CoreRuntime []string `yaml:"core_runtime"`
	DevOnly     []string `yaml:"dev_only"`
}

// LoadCriticalityMap reads a criticality profile; an empty path yields
// an empty map (every package defaults to dev-only).
func LoadCriticalityMap(path string) (types.CriticalityMap, error) {
	if path == "" {
		return types.CriticalityMap{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("cannot read criticality profile %s", path)).
			WithCause(err)
	}
	var profile CriticalityProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("criticality profile %s is not valid YAML", path)).
			WithCause(err)
	}
	classified := types.CriticalityMap{}
	for _, pkg := range profile.CoreRuntime {
		classified[shared.NormalizePipName(pkg)] = types.CriticalityCoreRuntime
	}
	for _, pkg := range profile.DevOnly {
		classified[shared.NormalizePipName(pkg)] = types.CriticalityDevOnly
	}
	return classified, nil
}
