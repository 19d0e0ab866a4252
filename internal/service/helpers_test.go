package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/triage-portal/internal/classifier"
	"github.com/spec-kit/triage-portal/internal/domain"
	"github.com/spec-kit/triage-portal/internal/repository"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedRand replays fixed picks, modulo n.
type scriptedRand struct {
	picks []int
	next  int
}

func (r *scriptedRand) Intn(n int) int {
	if len(r.picks) == 0 {
		return 0
	}
	v := r.picks[r.next%len(r.picks)]
	r.next++
	return v % n
}

type fakeClassifier struct {
	verdict domain.Classification
	trace   *classifier.Trace
	calls   int
}

func (f *fakeClassifier) Classify(context.Context, string) (domain.Classification, *classifier.Trace) {
	f.calls++
	return f.verdict, f.trace
}

type staticHolder struct {
	user *domain.User
	err  error
}

func (h staticHolder) Holder(context.Context) (*domain.User, error) {
	return h.user, h.err
}

func verdict(category domain.TicketCategory, score int, canAutomate bool, action string) domain.Classification {
	return domain.Classification{
		Category:        category,
		Priority:        domain.TicketPriorityMedium,
		ComplexityScore: score,
		CanAutomate:     canAutomate,
		SuggestedAction: action,
		Reasoning:       "model reasoning",
		Raw:             "{}",
	}
}

func seedUser(t *testing.T, users repository.UserRepository, name string, role domain.UserRole, lastLogin *time.Time) domain.User {
	t.Helper()
	user := &domain.User{Name: name, Email: name + "@example.com", Role: role, LastLoginAt: lastLogin}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return *user
}

var errInjected = errors.New("injected write failure")

// failingStore fails ticket updates that move a ticket into failOn.
type failingStore struct {
	repository.Store
	failOn domain.TicketStatus
}

func (f *failingStore) Tickets() repository.TicketRepository {
	return &failingTickets{TicketRepository: f.Store.Tickets(), failOn: f.failOn}
}

func (f *failingStore) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return f.Store.WithinTx(ctx, func(tx repository.Store) error {
		return fn(&failingStore{Store: tx, failOn: f.failOn})
	})
}

type failingTickets struct {
	repository.TicketRepository
	failOn domain.TicketStatus
}

func (f *failingTickets) Update(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.Status == f.failOn {
		return errInjected
	}
	return f.TicketRepository.Update(ctx, ticket)
}
