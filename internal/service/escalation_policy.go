package service

import "github.com/spec-kit/triage-portal/internal/domain"

// EscalationComplexityThreshold is the highest complexity score still eligible for automation.
const EscalationComplexityThreshold = 7

// ShouldEscalate reports whether a classified request must go to a human.
func ShouldEscalate(complexityScore int, category domain.TicketCategory, canAutomate bool) bool {
	if complexityScore > EscalationComplexityThreshold {
		return true
	}
	if !canAutomate {
		return true
	}
	switch category {
	case domain.CategoryHardware, domain.CategoryNetwork:
		return true
	}
	return false
}
