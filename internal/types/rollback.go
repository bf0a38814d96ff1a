package types

// RollbackThresholds are the caller-supplied limits evaluated after the
// TESTING phase. Values are ratios in [0, 1] except the performance
// field, which is a relative regression (0.20 = 20% slower).
type RollbackThresholds struct {
	MaxTestFailureRate       float64 `yaml:"max_test_failure_rate"`
	HardTestFailureRate      float64 `yaml:"hard_test_failure_rate"`
	MaxPerformanceRegression float64 `yaml:"max_performance_regression"`
}

// DefaultRollbackThresholds returns the documented defaults: 5%
// standard failure rate, 10% hard ceiling, 20% performance regression.
func DefaultRollbackThresholds() RollbackThresholds {
	return RollbackThresholds{
		MaxTestFailureRate:       0.05,
		HardTestFailureRate:      0.10,
		MaxPerformanceRegression: 0.20,
	}
}

// RollbackSignals are the measured health signals for one attempt.
type RollbackSignals struct {
	TestFailureRate      float64
	PerformanceDelta     float64
	NewVulnerabilities   int
	FunctionalityBroken  bool
	HighestSeverity      Severity
	ManualOverrideActive bool
}

// RollbackDecision is the controller's verdict.
type RollbackDecision string

const (
	DecisionRollbackRequired RollbackDecision = "rollback_required"
	DecisionProceed          RollbackDecision = "proceed"
	DecisionEscalate         RollbackDecision = "escalate"
)

// RollbackVerdict carries the decision plus whether a human should look
// at the attempt afterwards.
type RollbackVerdict struct {
	Decision         RollbackDecision
	FlaggedForReview bool
	Reasons          []string
}
