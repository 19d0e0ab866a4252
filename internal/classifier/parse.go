package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/spec-kit/triage-portal/internal/domain"
)

// UnparsableReasoning is the reasoning attached to a verdict whose response could not be decoded.
const UnparsableReasoning = "Could not parse LLM response"

// ParseVerdict decodes a model response into a normalized classification. It never fails:
// undecodable content yields the fallback verdict tagged as unparsable.
func ParseVerdict(content string) domain.Classification {
	fields, ok := decodeObject(content)
	if !ok {
		return domain.FallbackClassification(domain.ClassificationUnparsableResponse, UnparsableReasoning, content)
	}
	verdict := normalize(fields)
	verdict.Raw = content
	return verdict
}

func decodeObject(content string) (map[string]any, bool) {
	body := stripFences(content)
	var fields map[string]any
	if err := json.Unmarshal([]byte(body), &fields); err == nil && fields != nil {
		return fields, true
	}
	candidate, found := firstObject(body)
	if !found {
		return nil, false
	}
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

// stripFences removes a surrounding Markdown code fence with an optional language hint.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		hint := strings.TrimSpace(s[:nl])
		if hint == "" || !strings.ContainsAny(hint, "{[") {
			s = s[nl+1:]
		}
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// firstObject returns the first balanced {...} block, skipping braces inside JSON strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		depth := 0
		inString, escaped := false, false
		for i := start; i < len(s); i++ {
			ch := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func normalize(fields map[string]any) domain.Classification {
	var anomalies []string
	flag := func(format string, args ...any) {
		anomalies = append(anomalies, fmt.Sprintf(format, args...))
	}

	verdict := domain.Classification{
		Category:        domain.DefaultCategory,
		Priority:        domain.DefaultPriority,
		ComplexityScore: domain.DefaultComplexityScore,
	}

	if raw, ok := fields["category"].(string); ok && domain.TicketCategory(strings.ToLower(strings.TrimSpace(raw))).Valid() {
		verdict.Category = domain.TicketCategory(strings.ToLower(strings.TrimSpace(raw)))
	} else {
		flag("category %v not recognized", fields["category"])
	}

	if raw, ok := fields["priority"].(string); ok && domain.TicketPriority(strings.ToLower(strings.TrimSpace(raw))).Valid() {
		verdict.Priority = domain.TicketPriority(strings.ToLower(strings.TrimSpace(raw)))
	} else {
		flag("priority %v not recognized", fields["priority"])
	}

	switch score := fields["complexity_score"].(type) {
	case float64:
		rounded := int(math.Round(score))
		switch {
		case rounded < domain.MinComplexityScore:
			flag("complexity_score %v clamped to %d", score, domain.MinComplexityScore)
			rounded = domain.MinComplexityScore
		case rounded > domain.MaxComplexityScore:
			flag("complexity_score %v clamped to %d", score, domain.MaxComplexityScore)
			rounded = domain.MaxComplexityScore
		}
		verdict.ComplexityScore = rounded
	default:
		flag("complexity_score %v is not a number", fields["complexity_score"])
	}

	if canAutomate, ok := fields["can_automate"].(bool); ok {
		verdict.CanAutomate = canAutomate
	} else {
		flag("can_automate %v is not a boolean", fields["can_automate"])
	}

	verdict.SuggestedAction, _ = fields["suggested_action"].(string)
	verdict.Reasoning, _ = fields["reasoning"].(string)
	verdict.Anomalies = anomalies
	return verdict
}
