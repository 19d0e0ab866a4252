package repository

import (
	"context"

	"github.com/spec-kit/triage-portal/internal/domain"
)

// AuditLogRepository stores audit entries. Entries are only ever appended.
type AuditLogRepository interface {
	Append(ctx context.Context, entry *domain.AuditLogEntry) error
	// ListByTicket returns entries newest first.
	ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditLogEntry, error)
}

type auditLogRepository struct {
	db DBTX
}

func (r *auditLogRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	const query = `
        INSERT INTO audit_logs (ticket_id, user_id, action_type, action_details, success, error_message, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	if entry.ActionDetails == nil {
		entry.ActionDetails = map[string]any{}
	}
	return r.db.QueryRow(ctx, query,
		entry.TicketID,
		entry.UserID,
		entry.ActionType,
		entry.ActionDetails,
		entry.Success,
		entry.ErrorMessage,
		entry.CreatedAt,
	).Scan(&entry.ID)
}

func (r *auditLogRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditLogEntry, error) {
	const query = `
        SELECT id, ticket_id, user_id, action_type, action_details, success, error_message, created_at
        FROM audit_logs WHERE ticket_id=$1 ORDER BY created_at DESC, seq DESC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditLogEntry
	for rows.Next() {
		var entry domain.AuditLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.UserID,
			&entry.ActionType,
			&entry.ActionDetails,
			&entry.Success,
			&entry.ErrorMessage,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
