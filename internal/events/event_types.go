package events

import (
	"time"

	"github.com/spec-kit/triage-portal/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketClassified      EventType = "ticket_classified"
	EventTicketQueuedForTriage EventType = "ticket_queued_for_triage"
	EventTicketAutomated       EventType = "ticket_automated"
	EventTicketEscalated       EventType = "ticket_escalated"
	EventTicketUpdated         EventType = "ticket_updated"
	EventTokenHolderChanged    EventType = "token_holder_changed"
)

// AllEventTypes lists every event the services publish.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketClassified,
	EventTicketQueuedForTriage,
	EventTicketAutomated,
	EventTicketEscalated,
	EventTicketUpdated,
	EventTokenHolderChanged,
}

// ActorType identifies who caused an event.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorStaff  ActorType = "staff"
	ActorSystem ActorType = "system"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type   ActorType `json:"type"`
	UserID *string   `json:"user_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	UserID         string `json:"user_id"`
	RequestPreview string `json:"request_preview"`
}

// TicketClassifiedPayload payload.
type TicketClassifiedPayload struct {
	Category        domain.TicketCategory `json:"category"`
	Priority        domain.TicketPriority `json:"priority"`
	ComplexityScore int                   `json:"complexity_score"`
	CanAutomate     bool                  `json:"can_automate"`
	Anomalies       []string              `json:"anomalies,omitempty"`
}

// TicketQueuedPayload payload.
type TicketQueuedPayload struct {
	Failure domain.ClassificationFailure `json:"failure"`
	Notes   string                       `json:"notes"`
}

// TicketAutomatedPayload payload.
type TicketAutomatedPayload struct {
	Category     domain.TicketCategory `json:"category"`
	Message      string                `json:"message"`
	ActionsTaken []string              `json:"actions_taken"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	Reason         string    `json:"reason"`
	Rule           string    `json:"rule"`
	AssignedTo     string    `json:"assigned_to,omitempty"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Changes   map[string]any      `json:"changes,omitempty"`
}

// TokenHolderChangedPayload payload.
type TokenHolderChangedPayload struct {
	HolderID   *string `json:"holder_id,omitempty"`
	HolderName string  `json:"holder_name,omitempty"`
	PoolSize   int     `json:"pool_size"`
}
