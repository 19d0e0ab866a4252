package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/triage-portal/internal/domain"
	"github.com/spec-kit/triage-portal/internal/events"
	"github.com/spec-kit/triage-portal/internal/repository"
)

type countingUsers struct {
	repository.UserRepository
	mu    sync.Mutex
	lists int
}

func (c *countingUsers) List(ctx context.Context, filter repository.UserFilter) ([]domain.User, error) {
	c.mu.Lock()
	c.lists++
	c.mu.Unlock()
	return c.UserRepository.List(ctx, filter)
}

func newTokenFixture(t *testing.T, rng Rand) (*TokenAssignmentService, *countingUsers, *testClock) {
	t.Helper()
	store := repository.NewMemoryStore()
	users := &countingUsers{UserRepository: store.Users()}
	clock := newTestClock()
	svc := NewTokenAssignmentService(TokenAssignmentDependencies{
		UserRepo:       users,
		Rand:           rng,
		Now:            clock.Now,
		CacheTTL:       5 * time.Minute,
		PresenceWindow: 15 * time.Minute,
	})
	return svc, users, clock
}

func TestPickRandom(t *testing.T) {
	if PickRandom(nil, &scriptedRand{}) != nil {
		t.Fatal("empty pool must yield nil")
	}
	pool := []domain.User{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	if got := PickRandom(pool, &scriptedRand{picks: []int{2}}); got.ID != "c" {
		t.Fatalf("picked %s, want c", got.ID)
	}
}

func TestPickRandomIsRoughlyUniform(t *testing.T) {
	pool := []domain.User{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	rng := rand.New(rand.NewSource(42))
	counts := map[string]int{}
	for i := 0; i < 3000; i++ {
		counts[PickRandom(pool, rng).ID]++
	}
	for id, n := range counts {
		if n < 850 || n > 1150 {
			t.Fatalf("holder %s picked %d times out of 3000", id, n)
		}
	}
}

func TestIsOnline(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * time.Minute)
	stale := now.Add(-20 * time.Minute)
	if !IsOnline(domain.User{LastLoginAt: &recent}, now, 15*time.Minute) {
		t.Fatal("login 10 minutes ago should be online")
	}
	if IsOnline(domain.User{LastLoginAt: &stale}, now, 15*time.Minute) {
		t.Fatal("login 20 minutes ago should be offline")
	}
	if IsOnline(domain.User{}, now, 15*time.Minute) {
		t.Fatal("never logged in should be offline")
	}
}

func TestRefreshWithinWindowKeepsHolder(t *testing.T) {
	svc, users, clock := newTokenFixture(t, rand.New(rand.NewSource(7)))
	seedUser(t, users, "ada", domain.RoleAdmin, nil)
	seedUser(t, users, "grace", domain.RoleSuperAdmin, nil)
	seedUser(t, users, "linus", domain.RoleAdmin, nil)
	seedUser(t, users, "requester", domain.RoleUser, nil)

	ctx := context.Background()
	first, err := svc.Refresh(ctx)
	if err != nil || first == nil {
		t.Fatalf("refresh: %v %v", first, err)
	}
	clock.Advance(4 * time.Minute)
	second, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("holder changed within window: %s -> %s", first.ID, second.ID)
	}
	if users.lists != 1 {
		t.Fatalf("roster fetched %d times, want 1", users.lists)
	}
	if first.Role == domain.RoleUser {
		t.Fatal("requesters are never eligible")
	}
}

func TestRefreshAfterWindowReturnsEligibleStaff(t *testing.T) {
	svc, users, clock := newTokenFixture(t, rand.New(rand.NewSource(99)))
	eligible := map[string]bool{}
	for _, name := range []string{"ada", "grace", "linus"} {
		eligible[seedUser(t, users, name, domain.RoleAdmin, nil).ID] = true
	}
	seedUser(t, users, "requester", domain.RoleUser, nil)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		holder, err := svc.Refresh(ctx)
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if holder == nil || !eligible[holder.ID] {
			t.Fatalf("holder %v is not eligible staff", holder)
		}
		clock.Advance(6 * time.Minute)
	}
	if users.lists != 10 {
		t.Fatalf("roster fetched %d times, want 10", users.lists)
	}
}

func TestRefreshFindsStaffBeyondFirstUserPage(t *testing.T) {
	svc, users, _ := newTokenFixture(t, &scriptedRand{})
	admin := seedUser(t, users, "ada", domain.RoleAdmin, nil)
	for i := 0; i < 501; i++ {
		seedUser(t, users, fmt.Sprintf("requester%03d", i), domain.RoleUser, nil)
	}

	holder, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if holder == nil || holder.ID != admin.ID {
		t.Fatalf("holder = %v, want the only admin %s", holder, admin.ID)
	}
	if users.lists < 2 {
		t.Fatalf("roster fetched in %d pages, expected paging", users.lists)
	}
	roster, err := svc.Roster(context.Background())
	if err != nil || len(roster) != 1 {
		t.Fatalf("roster = %v %v", roster, err)
	}
}

type failingDispatcher struct{}

func (failingDispatcher) Publish(context.Context, events.Event) error {
	return errors.New("broker down")
}

func (failingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func TestHolderChangePublishFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := repository.NewMemoryStore()
	seedUser(t, store.Users(), "ada", domain.RoleAdmin, nil)
	svc := NewTokenAssignmentService(TokenAssignmentDependencies{
		UserRepo:   store.Users(),
		Dispatcher: failingDispatcher{},
		Logger:     zap.New(core),
		Rand:       &scriptedRand{},
		Now:        newTestClock().Now,
	})

	holder, err := svc.Refresh(context.Background())
	if err != nil || holder == nil {
		t.Fatalf("refresh: %v %v", holder, err)
	}
	if n := logs.FilterMessage("event handler failed").Len(); n != 1 {
		t.Fatalf("logged %d publish failures, want 1", n)
	}
}

func TestHolderDroppedWhenLeavingPool(t *testing.T) {
	svc, users, clock := newTokenFixture(t, &scriptedRand{picks: []int{0}})
	ada := seedUser(t, users, "ada", domain.RoleAdmin, nil)
	grace := seedUser(t, users, "grace", domain.RoleAdmin, nil)
	ctx := context.Background()

	holder, _ := svc.Refresh(ctx)
	if holder == nil {
		t.Fatal("expected a holder")
	}
	leaving := holder.ID
	if err := users.UpdateRole(ctx, leaving, domain.RoleUser, clock.Now()); err != nil {
		t.Fatalf("demote: %v", err)
	}
	svc.Invalidate()

	next, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next == nil || next.ID == leaving {
		t.Fatalf("demoted holder kept the token: %v", next)
	}
	if next.ID != ada.ID && next.ID != grace.ID {
		t.Fatalf("unexpected holder %s", next.ID)
	}
}

func TestEmptyPoolHasNoHolder(t *testing.T) {
	svc, users, _ := newTokenFixture(t, &scriptedRand{})
	seedUser(t, users, "requester", domain.RoleUser, nil)
	holder, err := svc.Holder(context.Background())
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	if holder != nil {
		t.Fatalf("expected no holder, got %v", holder)
	}
}

func TestReassignPicksFromPool(t *testing.T) {
	svc, users, _ := newTokenFixture(t, &scriptedRand{picks: []int{0, 1}})
	seedUser(t, users, "ada", domain.RoleAdmin, nil)
	seedUser(t, users, "grace", domain.RoleAdmin, nil)
	ctx := context.Background()

	first, _ := svc.Refresh(ctx)
	second, err := svc.Reassign(ctx)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("scripted reassign should move the token")
	}
	current, _ := svc.Holder(ctx)
	if current.ID != second.ID {
		t.Fatalf("holder after reassign = %s, want %s", current.ID, second.ID)
	}
}

func TestRosterMarksPresenceAndHolder(t *testing.T) {
	svc, users, clock := newTokenFixture(t, &scriptedRand{picks: []int{0}})
	recent := clock.Now().Add(-5 * time.Minute)
	stale := clock.Now().Add(-time.Hour)
	seedUser(t, users, "ada", domain.RoleAdmin, &recent)
	seedUser(t, users, "grace", domain.RoleSuperAdmin, &stale)
	seedUser(t, users, "requester", domain.RoleUser, &recent)

	roster, err := svc.Roster(context.Background())
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("roster has %d entries, want 2", len(roster))
	}
	holders, online := 0, map[string]bool{}
	for _, entry := range roster {
		if entry.Holder {
			holders++
		}
		online[entry.User.Name] = entry.Online
	}
	if holders != 1 {
		t.Fatalf("expected exactly one holder, got %d", holders)
	}
	if !online["ada"] || online["grace"] {
		t.Fatalf("unexpected presence: %v", online)
	}
}

func TestConcurrentRefreshSeesOneHolder(t *testing.T) {
	svc, users, _ := newTokenFixture(t, rand.New(rand.NewSource(3)))
	for _, name := range []string{"ada", "grace", "linus", "ken"} {
		seedUser(t, users, name, domain.RoleAdmin, nil)
	}

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			holder, err := svc.Refresh(context.Background())
			if err == nil && holder != nil {
				results[i] = holder.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range results {
		if id == "" || id != results[0] {
			t.Fatalf("concurrent refreshes disagree: %v", results)
		}
	}
	if users.lists != 1 {
		t.Fatalf("roster fetched %d times, want 1", users.lists)
	}
}
