package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/triage-portal/internal/domain"
)

// Trace describes the outbound model call behind a verdict.
type Trace struct {
	Model      string
	Prompt     string
	Response   string
	TokensUsed int
	Latency    time.Duration
}

// Classifier turns free-text requests into verdicts. Implementations never fail:
// errors surface as a degraded verdict. The trace is nil when no call was made.
type Classifier interface {
	Classify(ctx context.Context, requestText string) (domain.Classification, *Trace)
}

// Responder answers free-form support questions.
type Responder interface {
	Respond(ctx context.Context, supportContext, question string) string
}

const systemPrompt = "You are an expert IT support analyst. Return ONLY valid JSON matching the requested shape."

// UpstreamReasoning is the reasoning attached to a verdict when the model could not be reached.
const UpstreamReasoning = "Failed to analyze request with LLM, using default values"

// ApologyMessage is returned by responders when the model cannot answer.
const ApologyMessage = "I apologize, but I encountered an error processing your request. Please try again or contact an administrator."

// BuildPrompt renders the classification prompt for a request.
func BuildPrompt(requestText string) string {
	return fmt.Sprintf(`You are an IT support analyst. Analyze the following IT support request and provide a structured JSON response only.

Request: %q

Respond with JSON exactly in this shape: {"category":"password_reset|access_request|hardware|software|network|other","priority":"low|medium|high|urgent","complexity_score":number,"can_automate":boolean,"suggested_action":"...","reasoning":"..."}`, requestText)
}

// Unavailable is used when no model is configured. Every request goes to manual triage.
type Unavailable struct{}

func (Unavailable) Classify(context.Context, string) (domain.Classification, *Trace) {
	return domain.FallbackClassification(domain.ClassificationUpstreamError, "classifier not configured", ""), nil
}

func (Unavailable) Respond(context.Context, string, string) string {
	return ApologyMessage
}
