package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-portal/internal/api/dto"
	"github.com/spec-kit/triage-portal/internal/classifier"
	apperrors "github.com/spec-kit/triage-portal/pkg/util/errorutil"
)

// LLMHandler exposes the classifier and the support assistant directly.
type LLMHandler struct {
	classifier classifier.Classifier
	responder  classifier.Responder
}

// NewLLMHandler constructs handler.
func NewLLMHandler(c classifier.Classifier, r classifier.Responder) *LLMHandler {
	return &LLMHandler{classifier: c, responder: r}
}

// Analyze handles POST /llm/analyze. Upstream failures come back as a fallback verdict.
func (h *LLMHandler) Analyze(c *fiber.Ctx) error {
	var req dto.AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.RequestText) == "" {
		return apperrors.NewValidationError("requestText is required", map[string]any{"field": "requestText"})
	}
	verdict, _ := h.classifier.Classify(c.UserContext(), req.RequestText)
	return c.JSON(fiber.Map{"data": verdict})
}

// Respond handles POST /llm/respond.
func (h *LLMHandler) Respond(c *fiber.Ctx) error {
	var req dto.RespondRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Question) == "" {
		return apperrors.NewValidationError("question is required", map[string]any{"field": "question"})
	}
	content := h.responder.Respond(c.UserContext(), req.Context, req.Question)
	return c.JSON(fiber.Map{"data": dto.RespondResponse{Content: content}})
}
