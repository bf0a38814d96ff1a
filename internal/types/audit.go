package types

import "time"

// AuditEventType names the kinds of events recorded on the trail.
type AuditEventType string

const (
	EventCommandExecuted    AuditEventType = "command_executed"
	EventCommandRejected    AuditEventType = "command_rejected"
	EventScanStarted        AuditEventType = "scan_started"
	EventScanCompleted      AuditEventType = "scan_completed"
	EventRiskAssessed       AuditEventType = "risk_assessed"
	EventStateTransition    AuditEventType = "state_transition"
	EventBackupCreated      AuditEventType = "backup_created"
	EventBackupRestored     AuditEventType = "backup_restored"
	EventBackupPruned       AuditEventType = "backup_pruned"
	EventConflictDetected   AuditEventType = "conflict_detected"
	EventTestFailure        AuditEventType = "test_failure"
	EventVulnerabilityStill AuditEventType = "vulnerability_still_present"
	EventRetryScheduled     AuditEventType = "retry_scheduled"
	EventRollbackDecision   AuditEventType = "rollback_decision"
	EventRollbackFailed     AuditEventType = "rollback_failed"
	EventAttemptResumed     AuditEventType = "attempt_resumed"
)

// AuditEvent is one append-only record. Sequence numbers are assigned
// by the trail, strictly increase, and are never reused; prior records
// are never altered.
type AuditEvent struct {
	Sequence      uint64            `json:"sequence"`
	CorrelationID string            `json:"correlation_id"`
	Type          AuditEventType    `json:"type"`
	Timestamp     time.Time         `json:"timestamp"`
	Actor         string            `json:"actor"`
	Payload       map[string]string `json:"payload,omitempty"`
}
