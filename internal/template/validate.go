package template

import "strings"

// ValidationResult reports the outcome of the post-render safety pass.
// It is a value, not an error: an unsafe template is an expected input
// condition the caller surfaces to the operator, not a fault.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// forbiddenPatterns are injection vectors that must never survive into a
// rendered message, paired with the rule each one violates.
var forbiddenPatterns = []struct {
	pattern string
	rule    string
}{
	{"<script", "script tags are not allowed"},
	{"javascript:", "javascript: URIs are not allowed"},
	{"data:", "data: URIs are not allowed"},
	{"vbscript:", "vbscript: URIs are not allowed"},
	{"<form", "form elements are not allowed"},
	{"<input", "input elements are not allowed"},
	{"<textarea", "textarea elements are not allowed"},
	{"<link", "link elements are not allowed"},
	{"<style", "style elements are not allowed"},
	{"@import", "style imports are not allowed"},
	{"<iframe", "iframe elements are not allowed"},
	{"onerror=", "inline event handlers are not allowed"},
	{"onload=", "inline event handlers are not allowed"},
}

// requiredMarkers are structural guarantees every rendered HTML document
// must carry.
var requiredMarkers = []struct {
	marker string
	rule   string
}{
	{"<!doctype html>", "document must start with an HTML doctype"},
	{`name="viewport"`, "document must carry a viewport meta tag"},
	{`width="600"`, "document must use the fixed-width container"},
}

// Validate runs the post-render safety pass over a message. The orchestration
// layer re-runs this on every send even though Render output is expected to
// pass, so a template edit cannot silently open an injection hole.
func Validate(msg *Message) *ValidationResult {
	result := &ValidationResult{Valid: true, Issues: []string{}}
	if msg == nil {
		result.Valid = false
		result.Issues = append(result.Issues, "no rendered message")
		return result
	}

	lowerHTML := strings.ToLower(msg.HTML)
	lowerText := strings.ToLower(msg.Text)
	lowerSubject := strings.ToLower(msg.Subject)

	for _, fp := range forbiddenPatterns {
		if strings.Contains(lowerHTML, fp.pattern) ||
			strings.Contains(lowerText, fp.pattern) ||
			strings.Contains(lowerSubject, fp.pattern) {
			result.Valid = false
			result.Issues = append(result.Issues, fp.rule)
		}
	}

	for _, rm := range requiredMarkers {
		if !strings.Contains(lowerHTML, strings.ToLower(rm.marker)) {
			result.Valid = false
			result.Issues = append(result.Issues, rm.rule)
		}
	}

	if strings.TrimSpace(msg.Subject) == "" {
		result.Valid = false
		result.Issues = append(result.Issues, "subject must not be empty")
	}

	return result
}
