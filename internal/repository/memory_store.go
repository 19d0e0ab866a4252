package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/triage-portal/internal/domain"
)

// ErrDuplicate is returned when a unique field such as an email is already taken.
var ErrDuplicate = errors.New("duplicate record")

// memoryState holds every table of the in-memory store. Slices keep insertion order.
type memoryState struct {
	tickets      []domain.Ticket
	auditLogs    []domain.AuditLogEntry
	users        []domain.User
	interactions []domain.LLMInteraction
}

func (s memoryState) clone() memoryState {
	return memoryState{
		tickets:      append([]domain.Ticket(nil), s.tickets...),
		auditLogs:    append([]domain.AuditLogEntry(nil), s.auditLogs...),
		users:        append([]domain.User(nil), s.users...),
		interactions: append([]domain.LLMInteraction(nil), s.interactions...),
	}
}

type memoryBackend struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state memoryState
}

// memoryStore is a Store kept entirely in process memory. It backs tests and
// development runs without POSTGRES_DSN. Transactions are serialized and roll
// back by restoring a snapshot.
type memoryStore struct {
	backend *memoryBackend
	inTx    bool
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{backend: &memoryBackend{}}
}

func (s *memoryStore) Tickets() TicketRepository {
	return &memoryTickets{s}
}

func (s *memoryStore) AuditLogs() AuditLogRepository {
	return &memoryAuditLogs{s}
}

func (s *memoryStore) Users() UserRepository {
	return &memoryUsers{s}
}

func (s *memoryStore) LLMInteractions() LLMInteractionRepository {
	return &memoryInteractions{s}
}

func (s *memoryStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	b := s.backend
	b.txMu.Lock()
	defer b.txMu.Unlock()

	b.mu.RLock()
	snapshot := b.state.clone()
	b.mu.RUnlock()

	if err := fn(&memoryStore{backend: b, inTx: true}); err != nil {
		b.mu.Lock()
		b.state = snapshot
		b.mu.Unlock()
		return err
	}
	return ctx.Err()
}

func (s *memoryStore) Ping(context.Context) error {
	return nil
}

func (s *memoryStore) write(fn func(state *memoryState) error) error {
	if !s.inTx {
		s.backend.txMu.Lock()
		defer s.backend.txMu.Unlock()
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	return fn(&s.backend.state)
}

func (s *memoryStore) read(fn func(state *memoryState)) {
	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()
	fn(&s.backend.state)
}

type memoryTickets struct{ s *memoryStore }

func (r *memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	return r.s.write(func(state *memoryState) error {
		ticket.ID = uuid.NewString()
		ticket.UpdatedAt = ticket.CreatedAt
		state.tickets = append(state.tickets, *ticket)
		return nil
	})
}

func (r *memoryTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	return r.s.write(func(state *memoryState) error {
		for i := range state.tickets {
			if state.tickets[i].ID != ticket.ID {
				continue
			}
			if ticket.EscalationToken != "" {
				for j := range state.tickets {
					if j != i && state.tickets[j].EscalationToken == ticket.EscalationToken {
						return ErrDuplicate
					}
				}
			}
			updated := *ticket
			updated.UserID = state.tickets[i].UserID
			updated.RequestText = state.tickets[i].RequestText
			updated.CreatedAt = state.tickets[i].CreatedAt
			state.tickets[i] = updated
			return nil
		}
		return ErrNotFound
	})
}

func (r *memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	return r.find(func(t *domain.Ticket) bool { return t.ID == id })
}

func (r *memoryTickets) GetByEscalationToken(_ context.Context, token string) (*domain.Ticket, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return r.find(func(t *domain.Ticket) bool { return t.EscalationToken == token })
}

func (r *memoryTickets) find(match func(*domain.Ticket) bool) (*domain.Ticket, error) {
	var found *domain.Ticket
	r.s.read(func(state *memoryState) {
		for i := range state.tickets {
			if match(&state.tickets[i]) {
				ticket := state.tickets[i]
				found = &ticket
				return
			}
		}
	})
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r *memoryTickets) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	statuses := make(map[domain.TicketStatus]bool, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses[status] = true
	}
	var result []domain.Ticket
	r.s.read(func(state *memoryState) {
		for i := len(state.tickets) - 1; i >= 0; i-- {
			ticket := state.tickets[i]
			if filter.UserID != nil && ticket.UserID != *filter.UserID {
				continue
			}
			if len(statuses) > 0 && !statuses[ticket.Status] {
				continue
			}
			result = append(result, ticket)
		}
	})
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	limit, offset := pageBounds(filter.Limit, filter.Offset, 50)
	return page(result, limit, offset), nil
}

type memoryAuditLogs struct{ s *memoryStore }

func (r *memoryAuditLogs) Append(_ context.Context, entry *domain.AuditLogEntry) error {
	return r.s.write(func(state *memoryState) error {
		entry.ID = uuid.NewString()
		if entry.ActionDetails == nil {
			entry.ActionDetails = map[string]any{}
		}
		state.auditLogs = append(state.auditLogs, *entry)
		return nil
	})
}

func (r *memoryAuditLogs) ListByTicket(_ context.Context, ticketID string) ([]domain.AuditLogEntry, error) {
	var result []domain.AuditLogEntry
	r.s.read(func(state *memoryState) {
		for i := len(state.auditLogs) - 1; i >= 0; i-- {
			if state.auditLogs[i].TicketID == ticketID {
				result = append(result, state.auditLogs[i])
			}
		}
	})
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

type memoryUsers struct{ s *memoryStore }

func (r *memoryUsers) Create(_ context.Context, user *domain.User) error {
	return r.s.write(func(state *memoryState) error {
		for _, existing := range state.users {
			if existing.Email == user.Email {
				return ErrDuplicate
			}
		}
		user.ID = uuid.NewString()
		user.UpdatedAt = user.CreatedAt
		state.users = append(state.users, *user)
		return nil
	})
}

func (r *memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.ID == id })
}

func (r *memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Email == email })
}

func (r *memoryUsers) find(match func(*domain.User) bool) (*domain.User, error) {
	var found *domain.User
	r.s.read(func(state *memoryState) {
		for i := range state.users {
			if match(&state.users[i]) {
				user := state.users[i]
				found = &user
				return
			}
		}
	})
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r *memoryUsers) List(_ context.Context, filter UserFilter) ([]domain.User, error) {
	roles := make(map[domain.UserRole]bool, len(filter.Roles))
	for _, role := range filter.Roles {
		roles[role] = true
	}
	var result []domain.User
	r.s.read(func(state *memoryState) {
		for i := len(state.users) - 1; i >= 0; i-- {
			if len(roles) > 0 && !roles[state.users[i].Role] {
				continue
			}
			result = append(result, state.users[i])
		}
	})
	limit, offset := pageBounds(filter.Limit, filter.Offset, 500)
	return page(result, limit, offset), nil
}

func (r *memoryUsers) UpdateRole(_ context.Context, id string, role domain.UserRole, at time.Time) error {
	return r.update(id, func(u *domain.User) {
		u.Role = role
		u.UpdatedAt = at
	})
}

func (r *memoryUsers) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *domain.User) {
		u.LastLoginAt = &at
	})
}

func (r *memoryUsers) update(id string, mutate func(*domain.User)) error {
	return r.s.write(func(state *memoryState) error {
		for i := range state.users {
			if state.users[i].ID == id {
				mutate(&state.users[i])
				return nil
			}
		}
		return ErrNotFound
	})
}

type memoryInteractions struct{ s *memoryStore }

func (r *memoryInteractions) Create(_ context.Context, interaction *domain.LLMInteraction) error {
	return r.s.write(func(state *memoryState) error {
		interaction.ID = uuid.NewString()
		state.interactions = append(state.interactions, *interaction)
		return nil
	})
}

func (r *memoryInteractions) ListByTicket(_ context.Context, ticketID string) ([]domain.LLMInteraction, error) {
	var result []domain.LLMInteraction
	r.s.read(func(state *memoryState) {
		for i := len(state.interactions) - 1; i >= 0; i-- {
			if state.interactions[i].TicketID == ticketID {
				result = append(result, state.interactions[i])
			}
		}
	})
	return result, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
