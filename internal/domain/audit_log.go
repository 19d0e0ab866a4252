package domain

import "time"

// AuditAction captures which pipeline step or staff action produced an entry.
type AuditAction string

const (
	AuditRequestCreated     AuditAction = "request_created"
	AuditAIAnalysis         AuditAction = "ai_analysis"
	AuditAutomationExecuted AuditAction = "automation_executed"
	AuditEscalated          AuditAction = "escalated"
	AuditAdminAction        AuditAction = "admin_action"
	AuditCompleted          AuditAction = "completed"
)

// AuditLogEntry is an immutable audit trail entry.
type AuditLogEntry struct {
	ID            string
	TicketID      string
	UserID        *string
	ActionType    AuditAction
	ActionDetails map[string]any
	Success       bool
	ErrorMessage  *string
	CreatedAt     time.Time
}
