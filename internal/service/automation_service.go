package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/triage-portal/internal/domain"
)

// AutomationResult is the outcome of running a category handler.
type AutomationResult struct {
	Success      bool
	Message      string
	ActionsTaken []string
	Error        string
}

// Automator runs the automated resolution for a classified request.
type Automator interface {
	Execute(ctx context.Context, category domain.TicketCategory, suggestedAction string) AutomationResult
}

// AutomationService resolves the categories that can be handled without a human.
// Handlers are simulated; they never reach an external system.
type AutomationService struct{}

// NewAutomationService creates the service.
func NewAutomationService() *AutomationService {
	return &AutomationService{}
}

const manualReviewMessage = "This request type cannot be automated and requires manual review"

// Execute dispatches on category.
func (s *AutomationService) Execute(_ context.Context, category domain.TicketCategory, suggestedAction string) AutomationResult {
	switch category {
	case domain.CategoryPasswordReset:
		return automatePasswordReset()
	case domain.CategoryAccessRequest:
		return automateAccessRequest(suggestedAction)
	case domain.CategorySoftware:
		return automateSoftware(suggestedAction)
	case domain.CategoryHardware, domain.CategoryNetwork, domain.CategoryOther:
		return failed(manualReviewMessage, nil)
	default:
		return failed(manualReviewMessage, nil)
	}
}

func automatePasswordReset() AutomationResult {
	return AutomationResult{
		Success: true,
		Message: "Password reset email has been sent. Please check your inbox.",
		ActionsTaken: []string{
			"Generated password reset link",
			"Sent email with reset instructions",
		},
	}
}

func automateAccessRequest(suggestedAction string) AutomationResult {
	if strings.TrimSpace(suggestedAction) == "" {
		return failed("Access request requires manual approval", nil)
	}
	return AutomationResult{
		Success: true,
		Message: "Access has been granted. Changes may take up to 5 minutes to propagate.",
		ActionsTaken: []string{
			"Verified user eligibility",
			fmt.Sprintf("Applied suggested action: %s", suggestedAction),
		},
	}
}

func automateSoftware(suggestedAction string) AutomationResult {
	actions := []string{"Checked software catalog"}
	if !strings.Contains(strings.ToLower(suggestedAction), "standard") {
		return failed("This software request requires manager approval", actions)
	}
	return AutomationResult{
		Success:      true,
		Message:      "Software deployment has been queued. You will receive an email when installation is complete.",
		ActionsTaken: append(actions, "Added software to deployment queue"),
	}
}

func failed(reason string, actions []string) AutomationResult {
	if actions == nil {
		actions = []string{}
	}
	return AutomationResult{Success: false, Message: reason, Error: reason, ActionsTaken: actions}
}
