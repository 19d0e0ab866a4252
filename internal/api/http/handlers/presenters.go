package handlers

import (
	"github.com/spec-kit/triage-portal/internal/api/dto"
	"github.com/spec-kit/triage-portal/internal/domain"
	"github.com/spec-kit/triage-portal/internal/service"
)

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:               ticket.ID,
		UserID:           ticket.UserID,
		RequestText:      ticket.RequestText,
		Category:         ticket.Category,
		Status:           ticket.Status,
		Priority:         ticket.Priority,
		ComplexityScore:  ticket.ComplexityScore,
		AutoResolved:     ticket.AutoResolved,
		AssignedTo:       optional(ticket.AssignedTo),
		ResolutionNotes:  optional(ticket.ResolutionNotes),
		EscalationToken:  optional(ticket.EscalationToken),
		TokenGeneratedAt: ticket.TokenGeneratedAt,
		TokenExpiresAt:   ticket.TokenExpiresAt,
		CreatedAt:        ticket.CreatedAt,
		UpdatedAt:        ticket.UpdatedAt,
		CompletedAt:      ticket.CompletedAt,
	}
}

func auditLogResponses(entries []domain.AuditLogEntry) []dto.AuditLogResponse {
	resp := make([]dto.AuditLogResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.AuditLogResponse{
			ID:            entry.ID,
			TicketID:      entry.TicketID,
			UserID:        entry.UserID,
			ActionType:    entry.ActionType,
			ActionDetails: entry.ActionDetails,
			Success:       entry.Success,
			ErrorMessage:  entry.ErrorMessage,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return resp
}

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Role:        user.Role,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}
}

func rosterResponse(entries []service.RosterEntry) []dto.RosterEntryResponse {
	resp := make([]dto.RosterEntryResponse, 0, len(entries))
	for i := range entries {
		resp = append(resp, dto.RosterEntryResponse{
			User:   userResponse(&entries[i].User),
			Online: entries[i].Online,
			Holder: entries[i].Holder,
		})
	}
	return resp
}

// optional renders empty strings as JSON null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
