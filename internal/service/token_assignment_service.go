package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-portal/internal/domain"
	"github.com/spec-kit/triage-portal/internal/events"
	"github.com/spec-kit/triage-portal/internal/repository"
)

const rosterPageSize = 200

// Rand is the randomness source used to pick a token holder.
type Rand interface {
	Intn(n int) int
}

// PickRandom returns a uniformly chosen member of pool, or nil when pool is empty.
func PickRandom(pool []domain.User, rng Rand) *domain.User {
	if len(pool) == 0 {
		return nil
	}
	picked := pool[rng.Intn(len(pool))]
	return &picked
}

// IsOnline reports whether a staff member logged in within window of now.
func IsOnline(user domain.User, now time.Time, window time.Duration) bool {
	if user.LastLoginAt == nil {
		return false
	}
	return now.Sub(*user.LastLoginAt) <= window
}

// RosterEntry is one eligible staff member as shown on the roster.
type RosterEntry struct {
	User   domain.User
	Online bool
	Holder bool
}

// TokenAssignmentService keeps the escalation token holder: the staff member who
// receives the next escalated ticket by default.
type TokenAssignmentService struct {
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	rng        Rand
	now        func() time.Time
	ttl        time.Duration
	presence   time.Duration

	mu        sync.Mutex
	pool      []domain.User
	holder    *domain.User
	lastFetch time.Time
}

// TokenAssignmentDependencies bundles collaborators for the token service.
type TokenAssignmentDependencies struct {
	UserRepo       repository.UserRepository
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Rand           Rand
	Now            func() time.Time
	CacheTTL       time.Duration
	PresenceWindow time.Duration
}

// NewTokenAssignmentService creates the service.
func NewTokenAssignmentService(deps TokenAssignmentDependencies) *TokenAssignmentService {
	s := &TokenAssignmentService{
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		rng:        deps.Rand,
		now:        deps.Now,
		ttl:        deps.CacheTTL,
		presence:   deps.PresenceWindow,
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.ttl <= 0 {
		s.ttl = 5 * time.Minute
	}
	if s.presence <= 0 {
		s.presence = 15 * time.Minute
	}
	return s
}

// Refresh returns the current holder, refetching the roster when the cache window has passed.
func (s *TokenAssignmentService) Refresh(ctx context.Context) (*domain.User, error) {
	s.mu.Lock()
	changed, err := s.refreshLocked(ctx)
	holder, poolSize := copyUser(s.holder), len(s.pool)
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if changed {
		s.publishHolderChange(ctx, holder, poolSize)
	}
	return holder, nil
}

// Holder is Refresh under the name callers use when they only need the holder.
func (s *TokenAssignmentService) Holder(ctx context.Context) (*domain.User, error) {
	return s.Refresh(ctx)
}

// Reassign picks a new holder uniformly at random. The previous holder may be picked again.
func (s *TokenAssignmentService) Reassign(ctx context.Context) (*domain.User, error) {
	s.mu.Lock()
	if _, err := s.refreshLocked(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.holder = PickRandom(s.pool, s.rng)
	holder, poolSize := copyUser(s.holder), len(s.pool)
	s.mu.Unlock()

	s.publishHolderChange(ctx, holder, poolSize)
	return holder, nil
}

// Roster lists eligible staff with presence and holder markers.
func (s *TokenAssignmentService) Roster(ctx context.Context) ([]RosterEntry, error) {
	s.mu.Lock()
	changed, err := s.refreshLocked(ctx)
	now := s.now()
	entries := make([]RosterEntry, 0, len(s.pool))
	for _, user := range s.pool {
		entries = append(entries, RosterEntry{
			User:   user,
			Online: IsOnline(user, now, s.presence),
			Holder: s.holder != nil && s.holder.ID == user.ID,
		})
	}
	holder, poolSize := copyUser(s.holder), len(s.pool)
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if changed {
		s.publishHolderChange(ctx, holder, poolSize)
	}
	return entries, nil
}

// Invalidate forces the next call to refetch the roster.
func (s *TokenAssignmentService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFetch = time.Time{}
}

// refreshLocked refetches when stale and keeps the holder unless it left the pool.
// It reports whether the holder changed. Callers hold s.mu.
func (s *TokenAssignmentService) refreshLocked(ctx context.Context) (bool, error) {
	now := s.now()
	if !s.lastFetch.IsZero() && now.Sub(s.lastFetch) < s.ttl {
		return false, nil
	}

	pool, err := s.fetchStaff(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch roster: %w", err)
	}
	s.pool = pool
	s.lastFetch = now

	if s.holder != nil {
		for i := range pool {
			if pool[i].ID == s.holder.ID {
				s.holder = &pool[i]
				return false, nil
			}
		}
		s.logger.Info("token holder left the staff pool", zap.String("holder_id", s.holder.ID))
	}
	previous := s.holder
	s.holder = PickRandom(pool, s.rng)
	return previous != nil || s.holder != nil, nil
}

// fetchStaff pages through every user until a short page comes back.
func (s *TokenAssignmentService) fetchStaff(ctx context.Context) ([]domain.User, error) {
	var pool []domain.User
	for offset := 0; ; offset += rosterPageSize {
		users, err := s.users.List(ctx, repository.UserFilter{Limit: rosterPageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, user := range users {
			if user.Role.IsStaff() {
				pool = append(pool, user)
			}
		}
		if len(users) < rosterPageSize {
			return pool, nil
		}
	}
}

func (s *TokenAssignmentService) publishHolderChange(ctx context.Context, holder *domain.User, poolSize int) {
	payload := events.TokenHolderChangedPayload{PoolSize: poolSize}
	if holder != nil {
		payload.HolderID = &holder.ID
		payload.HolderName = holder.Name
	}
	s.logger.Info("token holder assigned", zap.Any("holder_id", payload.HolderID), zap.Int("pool_size", poolSize))
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTokenHolderChanged,
		Actor:     events.Actor{Type: events.ActorSystem},
		Timestamp: s.now(),
		Payload:   payload,
	}); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(events.EventTokenHolderChanged)), zap.Error(err))
	}
}

func copyUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
