package dto

import (
	"time"

	"github.com/spec-kit/triage-portal/internal/domain"
)

// SubmitTicketRequest payload.
type SubmitTicketRequest struct {
	RequestText string `json:"request_text"`
}

// TicketListQuery captures query filters for ticket listings.
type TicketListQuery struct {
	Statuses []domain.TicketStatus
	Page     int
	PageSize int
}

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID               string                `json:"id"`
	UserID           string                `json:"user_id"`
	RequestText      string                `json:"request_text"`
	Category         domain.TicketCategory `json:"category"`
	Status           domain.TicketStatus   `json:"status"`
	Priority         domain.TicketPriority `json:"priority"`
	ComplexityScore  int                   `json:"complexity_score"`
	AutoResolved     bool                  `json:"auto_resolved"`
	AssignedTo       *string               `json:"assigned_to"`
	ResolutionNotes  *string               `json:"resolution_notes"`
	EscalationToken  *string               `json:"escalation_token"`
	TokenGeneratedAt *time.Time            `json:"token_generated_at"`
	TokenExpiresAt   *time.Time            `json:"token_expires_at"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
	CompletedAt      *time.Time            `json:"completed_at"`
}

// AuditLogResponse is one audit trail entry.
type AuditLogResponse struct {
	ID            string             `json:"id"`
	TicketID      string             `json:"ticket_id"`
	UserID        *string            `json:"user_id"`
	ActionType    domain.AuditAction `json:"action_type"`
	ActionDetails map[string]any     `json:"action_details"`
	Success       bool               `json:"success"`
	ErrorMessage  *string            `json:"error_message"`
	CreatedAt     time.Time          `json:"created_at"`
}

// SubmissionResponse is returned after a request has run through the pipeline.
type SubmissionResponse struct {
	Ticket   TicketResponse     `json:"ticket"`
	AuditLog []AuditLogResponse `json:"audit_log"`
}

// UpdateTicketRequest is a staff edit. Omitted fields are left untouched.
type UpdateTicketRequest struct {
	Status          *domain.TicketStatus   `json:"status"`
	Priority        *domain.TicketPriority `json:"priority"`
	ResolutionNotes *string                `json:"resolution_notes"`
	AssignedTo      *string                `json:"assigned_to"`
}

// ClaimEscalationRequest payload.
type ClaimEscalationRequest struct {
	Token string `json:"token"`
}
