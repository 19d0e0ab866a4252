package domain

// ClassificationFailure tags a verdict that was substituted for a failed classifier call.
type ClassificationFailure string

const (
	ClassificationOK                 ClassificationFailure = ""
	ClassificationUpstreamError      ClassificationFailure = "upstream_error"
	ClassificationUnparsableResponse ClassificationFailure = "unparsable_response"
)

// Classification is the normalized verdict of the classifier for one request.
type Classification struct {
	Category        TicketCategory        `json:"category"`
	Priority        TicketPriority        `json:"priority"`
	ComplexityScore int                   `json:"complexity_score"`
	CanAutomate     bool                  `json:"can_automate"`
	SuggestedAction string                `json:"suggested_action,omitempty"`
	Reasoning       string                `json:"reasoning"`
	Raw             string                `json:"raw,omitempty"`
	Failure         ClassificationFailure `json:"failure,omitempty"`
	// Anomalies lists fields that arrived outside their domain and were normalized.
	Anomalies       []string              `json:"anomalies,omitempty"`
}

// Degraded reports whether the verdict is a fallback rather than a real classification.
func (c Classification) Degraded() bool {
	return c.Failure != ClassificationOK
}

// FallbackClassification is the safe verdict used whenever the classifier cannot answer.
func FallbackClassification(failure ClassificationFailure, reasoning, raw string) Classification {
	return Classification{
		Category:        DefaultCategory,
		Priority:        DefaultPriority,
		ComplexityScore: DefaultComplexityScore,
		CanAutomate:     false,
		Reasoning:       reasoning,
		Raw:             raw,
		Failure:         failure,
	}
}

// Payload renders the verdict as an audit detail map.
func (c Classification) Payload() map[string]any {
	payload := map[string]any{
		"category":         c.Category,
		"priority":         c.Priority,
		"complexity_score": c.ComplexityScore,
		"can_automate":     c.CanAutomate,
		"suggested_action": c.SuggestedAction,
		"reasoning":        c.Reasoning,
		"raw":              c.Raw,
	}
	if len(c.Anomalies) > 0 {
		payload["anomalies"] = c.Anomalies
	}
	return payload
}
