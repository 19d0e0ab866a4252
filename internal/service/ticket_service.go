package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-portal/internal/classifier"
	"github.com/spec-kit/triage-portal/internal/domain"
	"github.com/spec-kit/triage-portal/internal/events"
	"github.com/spec-kit/triage-portal/internal/repository"
	apperrors "github.com/spec-kit/triage-portal/pkg/util/errorutil"
)

// Escalation rules recorded on every escalated audit entry.
const (
	RulePolicyViolation            = "policy_violation"
	RuleEscalationPolicy           = "escalation_policy"
	RuleAutomationFailed           = "automation_failed"
	RuleInconsistentClassification = "inconsistent_classification"
	RuleStaffEscalation            = "staff_escalation"
)

// RuleAutomation is recorded on automation_executed entries.
const RuleAutomation = "automation"

// ManualTriageNotes is written on tickets whose classification failed.
const ManualTriageNotes = "classification unavailable, queued for manual triage"

const automationFailedReason = "automation failed"

// HolderSource supplies the staff member who receives the next escalation.
type HolderSource interface {
	Holder(ctx context.Context) (*domain.User, error)
}

// OutcomeRecorder counts how pipeline runs end.
type OutcomeRecorder interface {
	RecordOutcome(outcome string)
}

// Submission is the result of running a request through the pipeline.
type Submission struct {
	Ticket   *domain.Ticket
	AuditLog []domain.AuditLogEntry
}

// TicketService runs the triage pipeline and the staff ticket workflows.
type TicketService struct {
	store      repository.Store
	classifier classifier.Classifier
	automation Automator
	tokens     HolderSource
	dispatcher events.Dispatcher
	outcomes   OutcomeRecorder
	logger     *zap.Logger
	now        func() time.Time
	tokenTTL   time.Duration
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store              repository.Store
	Classifier         classifier.Classifier
	Automation         Automator
	Tokens             HolderSource
	Dispatcher         events.Dispatcher
	Outcomes           OutcomeRecorder
	Logger             *zap.Logger
	Now                func() time.Time
	EscalationTokenTTL time.Duration
}

// TicketListFilter describes listing parameters.
type TicketListFilter struct {
	Statuses []domain.TicketStatus
	Limit    int
	Offset   int
}

// TicketUpdateInput carries a staff edit. Nil fields are left untouched.
type TicketUpdateInput struct {
	Status          *domain.TicketStatus
	Priority        *domain.TicketPriority
	ResolutionNotes *string
	AssignedTo      *string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		store:      deps.Store,
		classifier: deps.Classifier,
		automation: deps.Automation,
		tokens:     deps.Tokens,
		dispatcher: deps.Dispatcher,
		outcomes:   deps.Outcomes,
		logger:     deps.Logger,
		now:        deps.Now,
		tokenTTL:   deps.EscalationTokenTTL,
	}
	if s.classifier == nil {
		s.classifier = classifier.Unavailable{}
	}
	if s.automation == nil {
		s.automation = NewAutomationService()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = 24 * time.Hour
	}
	return s
}

// stepError tags a pipeline failure with the step that produced it.
type stepError struct {
	action domain.AuditAction
	err    error
}

func (e *stepError) Error() string { return fmt.Sprintf("%s: %v", e.action, e.err) }
func (e *stepError) Unwrap() error { return e.err }

// SubmitTicket creates a ticket and runs it through classification, policy and
// automation or escalation. Classifier and automation failures are not errors;
// only persistence failures are returned, after the ticket is marked failed.
func (s *TicketService) SubmitTicket(ctx context.Context, userID, requestText string) (*Submission, error) {
	text := strings.TrimSpace(requestText)
	if text == "" {
		return nil, apperrors.NewValidationError("request_text is required", map[string]any{"field": "request_text"})
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewUnauthorized("user required")
	}

	now := s.now()
	ticket := &domain.Ticket{
		UserID:          userID,
		RequestText:     text,
		Category:        domain.DefaultCategory,
		Status:          domain.TicketStatusPending,
		Priority:        domain.DefaultPriority,
		ComplexityScore: domain.DefaultComplexityScore,
		CreatedAt:       now,
	}
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Tickets().Create(ctx, ticket); err != nil {
			return err
		}
		return tx.AuditLogs().Append(ctx, s.auditEntry(ticket.ID, &userID, domain.AuditRequestCreated,
			map[string]any{"request_text": text}))
	})
	if err != nil {
		s.logger.Error("create ticket failed", zap.Error(err))
		return nil, apperrors.NewInternalError(fmt.Errorf("create ticket: %w", err))
	}
	s.logger.Info("ticket created", zap.String("ticket_id", ticket.ID), zap.String("user_id", userID))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    userActor(userID),
		Payload: events.TicketCreatedPayload{
			UserID:         userID,
			RequestPreview: stringPreview(text, 120),
		},
	})

	// The ticket exists; a client disconnect must not leave a step half written.
	ctx = context.WithoutCancel(ctx)

	if err := s.triage(ctx, ticket); err != nil {
		s.logger.Error("ticket pipeline failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		s.markFailed(ctx, ticket.ID, err)
		s.recordOutcome(domain.TicketStatusFailed)
		return nil, apperrors.NewInternalError(err)
	}
	s.recordOutcome(ticket.Status)

	logs, err := s.store.AuditLogs().ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(fmt.Errorf("list audit log: %w", err))
	}
	return &Submission{Ticket: ticket, AuditLog: logs}, nil
}

func (s *TicketService) triage(ctx context.Context, ticket *domain.Ticket) error {
	verdict, trace := s.classifier.Classify(ctx, ticket.RequestText)
	s.recordInteraction(ctx, ticket.ID, trace)

	if verdict.Degraded() {
		return s.queueForTriage(ctx, ticket, verdict)
	}
	if err := s.applyClassification(ctx, ticket, verdict); err != nil {
		return err
	}

	switch {
	case len(verdict.Anomalies) > 0:
		reason := "classifier output outside allowed values: " + strings.Join(verdict.Anomalies, "; ")
		return s.escalate(ctx, ticket, reason, RulePolicyViolation, nil)
	case ShouldEscalate(verdict.ComplexityScore, verdict.Category, verdict.CanAutomate):
		return s.escalate(ctx, ticket, reasonOrDefault(verdict.Reasoning), RuleEscalationPolicy, nil)
	case verdict.CanAutomate:
		return s.automate(ctx, ticket, verdict)
	default:
		return s.escalate(ctx, ticket, reasonOrDefault(verdict.Reasoning), RuleInconsistentClassification, nil)
	}
}

func (s *TicketService) queueForTriage(ctx context.Context, ticket *domain.Ticket, verdict domain.Classification) error {
	s.logger.Warn("classification unavailable; queued for manual triage",
		zap.String("ticket_id", ticket.ID),
		zap.String("failure", string(verdict.Failure)))

	ticket.ResolutionNotes = ManualTriageNotes
	ticket.UpdatedAt = s.now()
	if err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		return tx.Tickets().Update(ctx, ticket)
	}); err != nil {
		return &stepError{action: domain.AuditAIAnalysis, err: err}
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketQueuedForTriage,
		TicketID: ticket.ID,
		Actor:    systemActor(),
		Payload:  events.TicketQueuedPayload{Failure: verdict.Failure, Notes: ManualTriageNotes},
	})
	return nil
}

func (s *TicketService) applyClassification(ctx context.Context, ticket *domain.Ticket, verdict domain.Classification) error {
	ticket.Status = domain.TicketStatusProcessing
	ticket.Category = verdict.Category
	ticket.Priority = verdict.Priority
	ticket.ComplexityScore = verdict.ComplexityScore
	ticket.UpdatedAt = s.now()

	if err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		return tx.AuditLogs().Append(ctx, s.auditEntry(ticket.ID, nil, domain.AuditAIAnalysis, verdict.Payload()))
	}); err != nil {
		return &stepError{action: domain.AuditAIAnalysis, err: err}
	}

	s.logger.Info("ticket classified",
		zap.String("ticket_id", ticket.ID),
		zap.String("category", string(verdict.Category)),
		zap.String("priority", string(verdict.Priority)),
		zap.Int("complexity_score", verdict.ComplexityScore),
		zap.Bool("can_automate", verdict.CanAutomate))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClassified,
		TicketID: ticket.ID,
		Actor:    systemActor(),
		Payload: events.TicketClassifiedPayload{
			Category:        verdict.Category,
			Priority:        verdict.Priority,
			ComplexityScore: verdict.ComplexityScore,
			CanAutomate:     verdict.CanAutomate,
			Anomalies:       verdict.Anomalies,
		},
	})
	return nil
}

func (s *TicketService) automate(ctx context.Context, ticket *domain.Ticket, verdict domain.Classification) error {
	result := s.automation.Execute(ctx, verdict.Category, verdict.SuggestedAction)
	details := map[string]any{
		"rule":             RuleAutomation,
		"category":         verdict.Category,
		"suggested_action": verdict.SuggestedAction,
		"actions_taken":    result.ActionsTaken,
		"message":          result.Message,
	}

	if !result.Success {
		entry := s.auditEntry(ticket.ID, nil, domain.AuditAutomationExecuted, details)
		entry.Success = false
		entry.ErrorMessage = &result.Error
		if err := s.store.WithinTx(ctx, func(tx repository.Store) error {
			return tx.AuditLogs().Append(ctx, entry)
		}); err != nil {
			return &stepError{action: domain.AuditAutomationExecuted, err: err}
		}
		s.logger.Info("automation failed; escalating", zap.String("ticket_id", ticket.ID), zap.String("error", result.Error))
		return s.escalate(ctx, ticket, automationFailedReason, RuleAutomationFailed, nil)
	}

	now := s.now()
	ticket.Status = domain.TicketStatusAutomated
	ticket.AutoResolved = true
	ticket.ResolutionNotes = result.Message
	ticket.CompletedAt = &now
	ticket.UpdatedAt = now
	if err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		return tx.AuditLogs().Append(ctx, s.auditEntry(ticket.ID, nil, domain.AuditAutomationExecuted, details))
	}); err != nil {
		return &stepError{action: domain.AuditAutomationExecuted, err: err}
	}

	s.logger.Info("ticket auto-resolved", zap.String("ticket_id", ticket.ID), zap.String("category", string(verdict.Category)))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAutomated,
		TicketID: ticket.ID,
		Actor:    systemActor(),
		Payload: events.TicketAutomatedPayload{
			Category:     verdict.Category,
			Message:      result.Message,
			ActionsTaken: result.ActionsTaken,
		},
	})
	return nil
}

// escalation is a staged hand-off to a human, written by the caller's transaction.
type escalation struct {
	reason  string
	rule    string
	actorID *string
	expires time.Time
	entry   *domain.AuditLogEntry
}

// escalate hands the ticket to a human: it mints an escalation token and assigns
// the current token holder when there is one.
func (s *TicketService) escalate(ctx context.Context, ticket *domain.Ticket, reason, rule string, actorID *string) error {
	esc := s.stageEscalation(ctx, ticket, reason, rule, actorID)
	if err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		return tx.AuditLogs().Append(ctx, esc.entry)
	}); err != nil {
		return &stepError{action: domain.AuditEscalated, err: err}
	}
	s.announceEscalation(ctx, ticket, esc)
	return nil
}

// stageEscalation moves the ticket to escalated in memory and builds its audit entry.
func (s *TicketService) stageEscalation(ctx context.Context, ticket *domain.Ticket, reason, rule string, actorID *string) *escalation {
	assignee := ""
	if s.tokens != nil {
		holder, err := s.tokens.Holder(ctx)
		if err != nil {
			s.logger.Warn("token holder unavailable", zap.String("ticket_id", ticket.ID), zap.Error(err))
		} else if holder != nil {
			assignee = holder.Name
		}
	}

	now := s.now()
	expires := now.Add(s.tokenTTL)
	ticket.Status = domain.TicketStatusEscalated
	ticket.ResolutionNotes = "Escalated: " + reason
	ticket.EscalationToken = newEscalationToken(ticket.ID)
	ticket.TokenGeneratedAt = &now
	ticket.TokenExpiresAt = &expires
	if assignee != "" {
		ticket.AssignedTo = assignee
	}
	ticket.UpdatedAt = now

	details := map[string]any{
		"reason":           reason,
		"rule":             rule,
		"escalation_token": ticket.EscalationToken,
		"token_expires_at": expires.UTC().Format(time.RFC3339),
		"assigned_to":      ticket.AssignedTo,
	}
	return &escalation{
		reason:  reason,
		rule:    rule,
		actorID: actorID,
		expires: expires,
		entry:   s.auditEntry(ticket.ID, actorID, domain.AuditEscalated, details),
	}
}

func (s *TicketService) announceEscalation(ctx context.Context, ticket *domain.Ticket, esc *escalation) {
	s.logger.Info("ticket escalated",
		zap.String("ticket_id", ticket.ID),
		zap.String("rule", esc.rule),
		zap.String("assigned_to", ticket.AssignedTo))
	actor := systemActor()
	if esc.actorID != nil {
		actor = staffActor(*esc.actorID)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketEscalated,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketEscalatedPayload{
			Reason:         esc.reason,
			Rule:           esc.rule,
			AssignedTo:     ticket.AssignedTo,
			TokenExpiresAt: esc.expires,
		},
	})
}

// markFailed is best effort: callers return the step error regardless.
func (s *TicketService) markFailed(ctx context.Context, ticketID string, cause error) {
	action := domain.AuditAdminAction
	var step *stepError
	if errors.As(cause, &step) {
		action = step.action
	}
	message := cause.Error()

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		current, err := tx.Tickets().GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if domain.CanTransition(current.Status, domain.TicketStatusFailed) {
			current.Status = domain.TicketStatusFailed
			current.UpdatedAt = s.now()
			if err := tx.Tickets().Update(ctx, current); err != nil {
				return err
			}
		}
		entry := s.auditEntry(ticketID, nil, action, map[string]any{"status": domain.TicketStatusFailed})
		entry.Success = false
		entry.ErrorMessage = &message
		return tx.AuditLogs().Append(ctx, entry)
	})
	if err != nil {
		s.logger.Error("could not mark ticket failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *TicketService) recordOutcome(status domain.TicketStatus) {
	if s.outcomes != nil {
		s.outcomes.RecordOutcome(string(status))
	}
}

func (s *TicketService) recordInteraction(ctx context.Context, ticketID string, trace *classifier.Trace) {
	if trace == nil {
		return
	}
	interaction := &domain.LLMInteraction{
		TicketID:   ticketID,
		Model:      trace.Model,
		Prompt:     trace.Prompt,
		Response:   trace.Response,
		TokensUsed: trace.TokensUsed,
		LatencyMS:  trace.Latency.Milliseconds(),
		CreatedAt:  s.now(),
	}
	if err := s.store.LLMInteractions().Create(ctx, interaction); err != nil {
		s.logger.Warn("record llm interaction failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

// ListTickets returns the viewer's own tickets newest first; staff see every ticket.
func (s *TicketService) ListTickets(ctx context.Context, viewer *domain.User, filter TicketListFilter) ([]domain.Ticket, error) {
	if viewer == nil {
		return nil, apperrors.NewUnauthorized("user required")
	}
	repoFilter := repository.TicketFilter{
		Statuses: filter.Statuses,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}
	if !viewer.Role.IsStaff() {
		repoFilter.UserID = &viewer.ID
	}
	tickets, err := s.store.Tickets().List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// GetTicket fetches a ticket visible to its owner and to staff.
func (s *TicketService) GetTicket(ctx context.Context, viewer *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, s.store, ticketID)
	if err != nil {
		return nil, err
	}
	if !canView(viewer, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// ListAuditLog returns the audit trail of a ticket visible to the viewer, newest first.
func (s *TicketService) ListAuditLog(ctx context.Context, viewer *domain.User, ticketID string) ([]domain.AuditLogEntry, error) {
	if _, err := s.GetTicket(ctx, viewer, ticketID); err != nil {
		return nil, err
	}
	return s.AuditTrail(ctx, ticketID)
}

// AuditTrail returns the audit trail of a ticket without access checks.
func (s *TicketService) AuditTrail(ctx context.Context, ticketID string) ([]domain.AuditLogEntry, error) {
	if !validTicketID(ticketID) {
		return []domain.AuditLogEntry{}, nil
	}
	logs, err := s.store.AuditLogs().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if logs == nil {
		logs = []domain.AuditLogEntry{}
	}
	return logs, nil
}

// UpdateTicket applies a staff edit. Status changes follow the lifecycle transition rules.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.User, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	if actor == nil || !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	if input.Status != nil && !input.Status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": *input.Status})
	}
	if input.Priority != nil && !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": *input.Priority})
	}

	ticket, err := s.loadTicket(ctx, s.store, ticketID)
	if err != nil {
		return nil, err
	}
	oldStatus := ticket.Status

	changes := map[string]any{}
	var target domain.TicketStatus
	if input.Status != nil && *input.Status != ticket.Status {
		if !domain.CanTransition(ticket.Status, *input.Status) {
			return nil, apperrors.NewConflict("invalid status transition", map[string]any{
				"from": ticket.Status,
				"to":   *input.Status,
			})
		}
		target = *input.Status
		changes["status"] = target
	}
	if input.Priority != nil && *input.Priority != ticket.Priority {
		ticket.Priority = *input.Priority
		changes["priority"] = ticket.Priority
	}
	if input.ResolutionNotes != nil && *input.ResolutionNotes != ticket.ResolutionNotes {
		ticket.ResolutionNotes = strings.TrimSpace(*input.ResolutionNotes)
		changes["resolution_notes"] = ticket.ResolutionNotes
	}
	if input.AssignedTo != nil && *input.AssignedTo != ticket.AssignedTo {
		ticket.AssignedTo = strings.TrimSpace(*input.AssignedTo)
		changes["assigned_to"] = ticket.AssignedTo
	}
	if len(changes) == 0 {
		return nil, apperrors.NewValidationError("no changes requested", nil)
	}

	now := s.now()
	action := domain.AuditAdminAction
	switch target {
	case domain.TicketStatusCompleted:
		ticket.Status = target
		ticket.CompletedAt = &now
		action = domain.AuditCompleted
	case domain.TicketStatusEscalated, "":
	default:
		ticket.Status = target
	}
	ticket.UpdatedAt = now

	details := map[string]any{"action": "update_ticket", "changes": changes, "previous_status": oldStatus}
	var esc *escalation
	if target == domain.TicketStatusEscalated {
		reason := ticket.ResolutionNotes
		if reason == "" {
			reason = "escalated by " + actor.Name
		}
		esc = s.stageEscalation(ctx, ticket, reason, RuleStaffEscalation, &actor.ID)
	}
	if err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		if err := tx.AuditLogs().Append(ctx, s.auditEntry(ticket.ID, &actor.ID, action, details)); err != nil {
			return err
		}
		if esc != nil {
			return tx.AuditLogs().Append(ctx, esc.entry)
		}
		return nil
	}); err != nil {
		return nil, apperrors.MapError(err)
	}
	if esc != nil {
		s.announceEscalation(ctx, ticket, esc)
	}

	s.logger.Info("ticket updated by staff", zap.String("ticket_id", ticket.ID), zap.String("actor_id", actor.ID))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: ticket.ID,
		Actor:    staffActor(actor.ID),
		Payload: events.TicketUpdatedPayload{
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
			Changes:   changes,
		},
	})
	return ticket, nil
}

// AssignToTokenHolder assigns an open ticket to the current escalation token holder.
func (s *TicketService) AssignToTokenHolder(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if actor == nil || !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	if s.tokens == nil {
		return nil, apperrors.NewConflict("no token holder available", nil)
	}
	ticket, err := s.loadTicket(ctx, s.store, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.Terminal() {
		return nil, apperrors.NewConflict("ticket already closed", map[string]any{"status": ticket.Status})
	}
	holder, err := s.tokens.Holder(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if holder == nil {
		return nil, apperrors.NewConflict("no eligible staff to hold the token", nil)
	}

	ticket.AssignedTo = holder.Name
	ticket.UpdatedAt = s.now()
	details := map[string]any{"action": "assign_token_holder", "assigned_to": holder.Name, "holder_id": holder.ID}
	if err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		return tx.AuditLogs().Append(ctx, s.auditEntry(ticket.ID, &actor.ID, domain.AuditAdminAction, details))
	}); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: ticket.ID,
		Actor:    staffActor(actor.ID),
		Payload: events.TicketUpdatedPayload{
			OldStatus: ticket.Status,
			NewStatus: ticket.Status,
			Changes:   map[string]any{"assigned_to": holder.Name},
		},
	})
	return ticket, nil
}

// ClaimEscalation resolves an escalation token and assigns its ticket to the claiming staff member.
// Expired tokens are refused and the refusal is written to the audit trail.
func (s *TicketService) ClaimEscalation(ctx context.Context, actor *domain.User, token string) (*domain.Ticket, error) {
	if actor == nil || !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.NewValidationError("token is required", map[string]any{"field": "token"})
	}

	ticket, err := s.store.Tickets().GetByEscalationToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("escalation token", nil)
		}
		return nil, apperrors.MapError(err)
	}

	now := s.now()
	if ticket.TokenExpiresAt != nil && now.After(*ticket.TokenExpiresAt) {
		message := "escalation token expired"
		entry := s.auditEntry(ticket.ID, &actor.ID, domain.AuditAdminAction, map[string]any{
			"action":           "claim_escalation",
			"escalation_token": token,
			"token_expires_at": ticket.TokenExpiresAt.UTC().Format(time.RFC3339),
		})
		entry.Success = false
		entry.ErrorMessage = &message
		if err := s.store.AuditLogs().Append(ctx, entry); err != nil {
			s.logger.Warn("record expired claim failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
		return nil, apperrors.NewGone("TOKEN_EXPIRED", message, map[string]any{"ticket_id": ticket.ID})
	}
	if ticket.Status != domain.TicketStatusEscalated {
		return nil, apperrors.NewConflict("ticket is no longer escalated", map[string]any{"status": ticket.Status})
	}

	ticket.AssignedTo = actor.Name
	ticket.UpdatedAt = now
	details := map[string]any{"action": "claim_escalation", "escalation_token": token, "assigned_to": actor.Name}
	if err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		return tx.AuditLogs().Append(ctx, s.auditEntry(ticket.ID, &actor.ID, domain.AuditAdminAction, details))
	}); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("escalation claimed", zap.String("ticket_id", ticket.ID), zap.String("actor_id", actor.ID))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: ticket.ID,
		Actor:    staffActor(actor.ID),
		Payload: events.TicketUpdatedPayload{
			OldStatus: ticket.Status,
			NewStatus: ticket.Status,
			Changes:   map[string]any{"assigned_to": actor.Name},
		},
	})
	return ticket, nil
}

func (s *TicketService) loadTicket(ctx context.Context, store repository.Store, ticketID string) (*domain.Ticket, error) {
	if !validTicketID(ticketID) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	ticket, err := store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) auditEntry(ticketID string, actorID *string, action domain.AuditAction, details map[string]any) *domain.AuditLogEntry {
	return &domain.AuditLogEntry{
		TicketID:      ticketID,
		UserID:        actorID,
		ActionType:    action,
		ActionDetails: details,
		Success:       true,
		CreatedAt:     s.now(),
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func canView(viewer *domain.User, ticket *domain.Ticket) bool {
	if viewer == nil {
		return false
	}
	return viewer.Role.IsStaff() || viewer.ID == ticket.UserID
}

// newEscalationToken returns "<ticketID>-<8 hex chars>".
func newEscalationToken(ticketID string) string {
	return ticketID + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func reasonOrDefault(reasoning string) string {
	if strings.TrimSpace(reasoning) == "" {
		return "requires human review"
	}
	return reasoning
}

func userActor(userID string) events.Actor {
	return events.Actor{Type: events.ActorUser, UserID: &userID}
}

func staffActor(userID string) events.Actor {
	return events.Actor{Type: events.ActorStaff, UserID: &userID}
}

func systemActor() events.Actor {
	return events.Actor{Type: events.ActorSystem}
}

// validTicketID rejects ids the uuid column would refuse to compare against.
func validTicketID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// stringPreview trims body to at most max runes, marking the cut with "...".
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
