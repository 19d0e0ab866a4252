package domain

import "time"

// LLMInteraction records one outbound language model call made for a ticket.
type LLMInteraction struct {
	ID         string
	TicketID   string
	Model      string
	Prompt     string
	Response   string
	TokensUsed int
	LatencyMS  int64
	CreatedAt  time.Time
}
