package repository

import (
	"context"

	"github.com/spec-kit/triage-portal/internal/domain"
)

// LLMInteractionRepository stores classifier call telemetry.
type LLMInteractionRepository interface {
	Create(ctx context.Context, interaction *domain.LLMInteraction) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.LLMInteraction, error)
}

type llmInteractionRepository struct {
	db DBTX
}

func (r *llmInteractionRepository) Create(ctx context.Context, interaction *domain.LLMInteraction) error {
	const query = `
        INSERT INTO llm_interactions (ticket_id, model, prompt, response, tokens_used, latency_ms, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		interaction.TicketID,
		interaction.Model,
		interaction.Prompt,
		interaction.Response,
		interaction.TokensUsed,
		interaction.LatencyMS,
		interaction.CreatedAt,
	).Scan(&interaction.ID)
}

func (r *llmInteractionRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.LLMInteraction, error) {
	const query = `
        SELECT id, ticket_id, model, prompt, response, tokens_used, latency_ms, created_at
        FROM llm_interactions WHERE ticket_id=$1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LLMInteraction
	for rows.Next() {
		var item domain.LLMInteraction
		if err := rows.Scan(
			&item.ID,
			&item.TicketID,
			&item.Model,
			&item.Prompt,
			&item.Response,
			&item.TokensUsed,
			&item.LatencyMS,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}
