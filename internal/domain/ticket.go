package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "pending"
	TicketStatusProcessing TicketStatus = "processing"
	TicketStatusAutomated  TicketStatus = "automated"
	TicketStatusEscalated  TicketStatus = "escalated"
	TicketStatusCompleted  TicketStatus = "completed"
	TicketStatusFailed     TicketStatus = "failed"
)

// TicketCategory enumerates the request categories a classifier may assign.
type TicketCategory string

const (
	CategoryPasswordReset TicketCategory = "password_reset"
	CategoryAccessRequest TicketCategory = "access_request"
	CategoryHardware      TicketCategory = "hardware"
	CategorySoftware      TicketCategory = "software"
	CategoryNetwork       TicketCategory = "network"
	CategoryOther         TicketCategory = "other"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Defaults applied to a freshly created ticket before classification.
const (
	DefaultCategory        = CategoryOther
	DefaultPriority        = TicketPriorityMedium
	DefaultComplexityScore = 5
	MinComplexityScore     = 1
	MaxComplexityScore     = 10
)

// Ticket is the aggregate for a submitted IT request.
type Ticket struct {
	ID               string
	UserID           string
	RequestText      string
	Category         TicketCategory
	Status           TicketStatus
	Priority         TicketPriority
	ComplexityScore  int
	AutoResolved     bool
	AssignedTo       string
	ResolutionNotes  string
	EscalationToken  string
	TokenGeneratedAt *time.Time
	TokenExpiresAt   *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// Valid reports whether c is one of the known categories.
func (c TicketCategory) Valid() bool {
	switch c {
	case CategoryPasswordReset, CategoryAccessRequest, CategoryHardware,
		CategorySoftware, CategoryNetwork, CategoryOther:
		return true
	}
	return false
}

// Valid reports whether p is one of the known priorities.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no further transition is allowed out of s.
func (s TicketStatus) Terminal() bool {
	switch s {
	case TicketStatusAutomated, TicketStatusCompleted, TicketStatusFailed:
		return true
	}
	return false
}

// statusRank orders statuses along the forward path; failed sits outside it.
var statusRank = map[TicketStatus]int{
	TicketStatusPending:    0,
	TicketStatusProcessing: 1,
	TicketStatusAutomated:  2,
	TicketStatusEscalated:  2,
	TicketStatusCompleted:  3,
	TicketStatusFailed:     -1,
}

// CanTransition reports whether a ticket may move from one status to another.
// Moves only go forward, automated is entered only from processing, and failed
// is reachable from every non-terminal status.
func CanTransition(from, to TicketStatus) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == TicketStatusFailed {
		return true
	}
	if to == TicketStatusAutomated {
		return from == TicketStatusProcessing
	}
	return statusRank[to] > statusRank[from]
}

// Resolved reports whether the ticket carries a completion timestamp by rule.
func (t *Ticket) Resolved() bool {
	return t.Status == TicketStatusCompleted || (t.Status == TicketStatusAutomated && t.AutoResolved)
}
