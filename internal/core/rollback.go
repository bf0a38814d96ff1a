package core

import (
	"fmt"

	"depmend/internal/types"
)

// EvaluateRollback applies the decision matrix to the measured signals.
//
// The hard failure-rate ceiling and functionality breakage veto commit
// even on manually overridden attempts: an override skips review, never
// safety checks. A high-severity attempt failing only on performance is
// rolled back automatically but flagged for manual review. Signals that
// sit between the standard and hard thresholds escalate to an operator
// instead of deciding either way.
func EvaluateRollback(signals types.RollbackSignals, thresholds types.RollbackThresholds) types.RollbackVerdict {
	var reasons []string

	if signals.TestFailureRate > thresholds.HardTestFailureRate {
		reasons = append(reasons, fmt.Sprintf("test failure rate %.1f%% exceeds hard ceiling %.1f%%",
			signals.TestFailureRate*100, thresholds.HardTestFailureRate*100))
		return types.RollbackVerdict{Decision: types.DecisionRollbackRequired, Reasons: reasons}
	}

	if signals.FunctionalityBroken {
		reasons = append(reasons, "functionality signal raised")
		if signals.HighestSeverity == types.SeverityCritical {
			return types.RollbackVerdict{Decision: types.DecisionRollbackRequired, Reasons: reasons}
		}
		return types.RollbackVerdict{Decision: types.DecisionRollbackRequired, FlaggedForReview: true, Reasons: reasons}
	}

	if signals.NewVulnerabilities > 0 {
		reasons = append(reasons, fmt.Sprintf("%d new vulnerabilities introduced", signals.NewVulnerabilities))
		return types.RollbackVerdict{Decision: types.DecisionRollbackRequired, Reasons: reasons}
	}

	if signals.TestFailureRate > thresholds.MaxTestFailureRate {
		reasons = append(reasons, fmt.Sprintf("test failure rate %.1f%% exceeds threshold %.1f%%",
			signals.TestFailureRate*100, thresholds.MaxTestFailureRate*100))
		if signals.ManualOverrideActive {
			// Overrides may not skip the safety decision, but between
			// the standard and hard thresholds the call goes to a human.
			return types.RollbackVerdict{Decision: types.DecisionEscalate, FlaggedForReview: true, Reasons: reasons}
		}
		return types.RollbackVerdict{Decision: types.DecisionRollbackRequired, Reasons: reasons}
	}

	if signals.PerformanceDelta > thresholds.MaxPerformanceRegression {
		reasons = append(reasons, fmt.Sprintf("performance regression %.1f%% exceeds threshold %.1f%%",
			signals.PerformanceDelta*100, thresholds.MaxPerformanceRegression*100))
		if signals.HighestSeverity == types.SeverityHigh || signals.HighestSeverity == types.SeverityCritical {
			return types.RollbackVerdict{Decision: types.DecisionRollbackRequired, FlaggedForReview: true, Reasons: reasons}
		}
		return types.RollbackVerdict{Decision: types.DecisionEscalate, FlaggedForReview: true, Reasons: reasons}
	}

	return types.RollbackVerdict{Decision: types.DecisionProceed}
}
