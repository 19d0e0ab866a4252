package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-portal/internal/api/dto"
	"github.com/spec-kit/triage-portal/internal/domain"
	"github.com/spec-kit/triage-portal/internal/observability"
	"github.com/spec-kit/triage-portal/internal/service"
	apperrors "github.com/spec-kit/triage-portal/pkg/util/errorutil"
)

// AdminHandler serves the staff console: ticket edits, escalation claims,
// the token roster and user roles.
type AdminHandler struct {
	tickets *service.TicketService
	tokens  *service.TokenAssignmentService
	auth    *service.AuthService
	metrics *observability.Metrics
}

// NewAdminHandler constructs handler.
func NewAdminHandler(tickets *service.TicketService, tokens *service.TokenAssignmentService, authService *service.AuthService, metrics *observability.Metrics) *AdminHandler {
	return &AdminHandler{tickets: tickets, tokens: tokens, auth: authService, metrics: metrics}
}

// UpdateTicket handles PATCH /admin/tickets/:id.
func (h *AdminHandler) UpdateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.UpdateTicket(c.UserContext(), principal.User, c.Params("id"), service.TicketUpdateInput{
		Status:          req.Status,
		Priority:        req.Priority,
		ResolutionNotes: req.ResolutionNotes,
		AssignedTo:      req.AssignedTo,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// AssignTokenHolder handles POST /admin/tickets/:id/assign-token-holder.
func (h *AdminHandler) AssignTokenHolder(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.AssignToTokenHolder(c.UserContext(), principal.User, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ClaimEscalation handles POST /admin/escalations/claim.
func (h *AdminHandler) ClaimEscalation(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ClaimEscalationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.ClaimEscalation(c.UserContext(), principal.User, req.Token)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Roster handles GET /admin/roster.
func (h *AdminHandler) Roster(c *fiber.Ctx) error {
	entries, err := h.tokens.Roster(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": rosterResponse(entries)})
}

// ReassignHolder handles POST /admin/roster/reassign.
func (h *AdminHandler) ReassignHolder(c *fiber.Ctx) error {
	holder, err := h.tokens.Reassign(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	if holder == nil {
		return apperrors.NewConflict("no eligible staff to hold the token", nil)
	}
	return c.JSON(fiber.Map{"data": userResponse(holder)})
}

// ListUsers handles GET /admin/users.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	var roles []domain.UserRole
	if roleStr := c.Query("role"); roleStr != "" {
		for _, part := range strings.Split(roleStr, ",") {
			roles = append(roles, domain.UserRole(strings.TrimSpace(part)))
		}
	}
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 50)
	users, err := h.auth.ListUsers(c.UserContext(), roles, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	resp := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		resp = append(resp, userResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// UpdateRole handles PATCH /admin/users/:id/role.
func (h *AdminHandler) UpdateRole(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, err := h.auth.UpdateRole(c.UserContext(), principal.User, c.Params("id"), req.Role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

// Metrics handles GET /admin/metrics.
func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
