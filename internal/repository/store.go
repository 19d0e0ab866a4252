package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/spec-kit/triage-portal/pkg/util/errorutil"
)

// ErrNotFound is returned by every repository when the requested record does not exist.
var ErrNotFound = apperrors.ErrNotFound

// DBTX is the subset of pgx shared by pools and transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store groups the repositories so that a unit of work can span several of them.
type Store interface {
	Tickets() TicketRepository
	AuditLogs() AuditLogRepository
	Users() UserRepository
	LLMInteractions() LLMInteractionRepository
	// WithinTx runs fn against a Store whose writes commit together or not at all.
	WithinTx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
}

type postgresStore struct {
	pool *pgxpool.Pool
	db   DBTX
}

// NewPostgresStore returns a Store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool, db: pool}
}

func (s *postgresStore) Tickets() TicketRepository {
	return &ticketRepository{db: s.db}
}

func (s *postgresStore) AuditLogs() AuditLogRepository {
	return &auditLogRepository{db: s.db}
}

func (s *postgresStore) Users() UserRepository {
	return &userRepository{db: s.db}
}

func (s *postgresStore) LLMInteractions() LLMInteractionRepository {
	return &llmInteractionRepository{db: s.db}
}

func (s *postgresStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	if _, inTx := s.db.(pgx.Tx); inTx {
		return fn(s)
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&postgresStore{pool: s.pool, db: tx})
	})
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
