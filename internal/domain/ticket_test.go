package domain

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to TicketStatus
		want     bool
	}{
		{TicketStatusPending, TicketStatusProcessing, true},
		{TicketStatusPending, TicketStatusEscalated, true},
		{TicketStatusPending, TicketStatusCompleted, true},
		{TicketStatusPending, TicketStatusAutomated, false},
		{TicketStatusProcessing, TicketStatusAutomated, true},
		{TicketStatusProcessing, TicketStatusEscalated, true},
		{TicketStatusProcessing, TicketStatusPending, false},
		{TicketStatusEscalated, TicketStatusCompleted, true},
		{TicketStatusEscalated, TicketStatusProcessing, false},
		{TicketStatusEscalated, TicketStatusAutomated, false},
		{TicketStatusEscalated, TicketStatusFailed, true},
		{TicketStatusAutomated, TicketStatusCompleted, false},
		{TicketStatusCompleted, TicketStatusFailed, false},
		{TicketStatusFailed, TicketStatusPending, false},
		{TicketStatus("bogus"), TicketStatusPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCategoryValid(t *testing.T) {
	for _, c := range []TicketCategory{CategoryPasswordReset, CategoryAccessRequest, CategoryHardware, CategorySoftware, CategoryNetwork, CategoryOther} {
		if !c.Valid() {
			t.Errorf("%s should be valid", c)
		}
	}
	if TicketCategory("printer").Valid() {
		t.Fatal("unknown category reported valid")
	}
}

func TestFallbackClassificationIsDegraded(t *testing.T) {
	c := FallbackClassification(ClassificationUnparsableResponse, "Could not parse LLM response", "I cannot comply.")
	if !c.Degraded() {
		t.Fatal("fallback must be degraded")
	}
	if c.Category != CategoryOther || c.Priority != TicketPriorityMedium || c.ComplexityScore != 5 || c.CanAutomate {
		t.Fatalf("unexpected fallback verdict: %+v", c)
	}
	if (Classification{Category: CategoryOther}).Degraded() {
		t.Fatal("zero failure tag must not be degraded")
	}
}
