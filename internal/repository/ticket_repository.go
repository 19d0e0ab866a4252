package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/triage-portal/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	UserID   *string
	Statuses []domain.TicketStatus
	Limit    int
	Offset   int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByEscalationToken(ctx context.Context, token string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	db DBTX
}

const ticketColumns = `id, user_id, request_text, category, status, priority, complexity_score, auto_resolved,
               assigned_to, resolution_notes, escalation_token, token_generated_at, token_expires_at,
               created_at, updated_at, completed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (user_id, request_text, category, status, priority, complexity_score, auto_resolved,
            assigned_to, resolution_notes, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
        RETURNING id`
	ticket.UpdatedAt = ticket.CreatedAt
	return r.db.QueryRow(ctx, query,
		ticket.UserID,
		ticket.RequestText,
		ticket.Category,
		ticket.Status,
		ticket.Priority,
		ticket.ComplexityScore,
		ticket.AutoResolved,
		ticket.AssignedTo,
		ticket.ResolutionNotes,
		ticket.CreatedAt,
	).Scan(&ticket.ID)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET category=$1, status=$2, priority=$3, complexity_score=$4, auto_resolved=$5,
            assigned_to=$6, resolution_notes=$7, escalation_token=$8, token_generated_at=$9, token_expires_at=$10,
            completed_at=$11, updated_at=$12
        WHERE id=$13`
	var token *string
	if ticket.EscalationToken != "" {
		token = &ticket.EscalationToken
	}
	cmd, err := r.db.Exec(ctx, query,
		ticket.Category,
		ticket.Status,
		ticket.Priority,
		ticket.ComplexityScore,
		ticket.AutoResolved,
		ticket.AssignedTo,
		ticket.ResolutionNotes,
		token,
		ticket.TokenGeneratedAt,
		ticket.TokenExpiresAt,
		ticket.CompletedAt,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByEscalationToken(ctx context.Context, token string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE escalation_token=$1`
	return r.fetchSingle(ctx, query, token)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, notFound(err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset, 50)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var token *string
	if err := row.Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.RequestText,
		&ticket.Category,
		&ticket.Status,
		&ticket.Priority,
		&ticket.ComplexityScore,
		&ticket.AutoResolved,
		&ticket.AssignedTo,
		&ticket.ResolutionNotes,
		&token,
		&ticket.TokenGeneratedAt,
		&ticket.TokenExpiresAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.CompletedAt,
	); err != nil {
		return nil, err
	}
	if token != nil {
		ticket.EscalationToken = *token
	}
	return &ticket, nil
}

func pageBounds(limit, offset, fallback int) (int, int) {
	if limit <= 0 {
		limit = fallback
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
