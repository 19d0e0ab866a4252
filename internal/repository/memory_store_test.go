package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/triage-portal/internal/domain"
)

func seedTicket(t *testing.T, store Store, at time.Time) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		UserID:          "user-1",
		RequestText:     "need a password reset",
		Category:        domain.DefaultCategory,
		Status:          domain.TicketStatusPending,
		Priority:        domain.DefaultPriority,
		ComplexityScore: domain.DefaultComplexityScore,
		CreatedAt:       at,
	}
	if err := store.Tickets().Create(context.Background(), ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func TestMemoryAuditLogsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ticket := seedTicket(t, store, now)

	actions := []domain.AuditAction{domain.AuditRequestCreated, domain.AuditAIAnalysis, domain.AuditAutomationExecuted}
	for _, action := range actions {
		entry := &domain.AuditLogEntry{TicketID: ticket.ID, ActionType: action, Success: true, CreatedAt: now}
		if err := store.AuditLogs().Append(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	older := &domain.AuditLogEntry{TicketID: ticket.ID, ActionType: domain.AuditAdminAction, Success: true, CreatedAt: now.Add(-time.Minute)}
	if err := store.AuditLogs().Append(ctx, older); err != nil {
		t.Fatalf("append: %v", err)
	}

	logs, err := store.AuditLogs().ListByTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []domain.AuditAction{domain.AuditAutomationExecuted, domain.AuditAIAnalysis, domain.AuditRequestCreated, domain.AuditAdminAction}
	if len(logs) != len(want) {
		t.Fatalf("got %d entries, want %d", len(logs), len(want))
	}
	for i, action := range want {
		if logs[i].ActionType != action {
			t.Errorf("entry %d = %s, want %s", i, logs[i].ActionType, action)
		}
	}
	if logs[0].ActionDetails == nil {
		t.Fatal("details should default to an empty map")
	}
}

func TestMemoryWithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ticket := seedTicket(t, store, time.Now())
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(tx Store) error {
		updated := *ticket
		updated.Status = domain.TicketStatusProcessing
		if err := tx.Tickets().Update(ctx, &updated); err != nil {
			return err
		}
		if err := tx.AuditLogs().Append(ctx, &domain.AuditLogEntry{TicketID: ticket.ID, ActionType: domain.AuditAdminAction}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, err := store.Tickets().GetByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.TicketStatusPending {
		t.Fatalf("status = %s, want pending after rollback", got.Status)
	}
	logs, _ := store.AuditLogs().ListByTicket(ctx, ticket.ID)
	if len(logs) != 0 {
		t.Fatalf("expected no audit entries after rollback, got %d", len(logs))
	}
}

func TestMemoryWithinTxCommits(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ticket := seedTicket(t, store, time.Now())

	err := store.WithinTx(ctx, func(tx Store) error {
		updated := *ticket
		updated.Status = domain.TicketStatusEscalated
		updated.EscalationToken = ticket.ID + "-abcd1234"
		return tx.Tickets().Update(ctx, &updated)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	got, err := store.Tickets().GetByEscalationToken(ctx, ticket.ID+"-abcd1234")
	if err != nil {
		t.Fatalf("lookup by token: %v", err)
	}
	if got.Status != domain.TicketStatusEscalated {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestMemoryUsersRejectDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	first := &domain.User{Name: "Ada", Email: "ada@example.com", Role: domain.RoleAdmin}
	if err := store.Users().Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &domain.User{Name: "Ada 2", Email: "ada@example.com", Role: domain.RoleUser}
	if err := store.Users().Create(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := store.Users().GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryTicketListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	first := seedTicket(t, store, base)
	second := seedTicket(t, store, base.Add(time.Minute))

	other := "user-2"
	foreign := &domain.Ticket{UserID: other, RequestText: "vpn", Status: domain.TicketStatusEscalated, CreatedAt: base}
	if err := store.Tickets().Create(ctx, foreign); err != nil {
		t.Fatalf("create: %v", err)
	}

	owner := "user-1"
	list, err := store.Tickets().List(ctx, TicketFilter{UserID: &owner})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("unexpected order: %+v", list)
	}

	escalated, _ := store.Tickets().List(ctx, TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusEscalated}})
	if len(escalated) != 1 || escalated[0].ID != foreign.ID {
		t.Fatalf("status filter returned %+v", escalated)
	}
}
