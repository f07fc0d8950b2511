package template

import (
	"strings"
	"testing"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(Config{PlatformName: "ClubMatch", PlatformURL: "https://clubmatch.example"})
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}
	return r
}

func TestRenderAllKinds(t *testing.T) {
	r := newTestRenderer(t)

	data := Data{
		ClubName:    "Test FC",
		ContactName: "Sam Keeper",
		Reason:      "Missing insurance documentation",
		Failures: []Failure{
			{ClubName: "Rovers", Email: "rovers@example.com", Error: "mailbox full"},
		},
	}

	kinds := []Kind{KindApproval, KindRejection, KindWelcome, KindAdminFailureSummary}

	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			msg, err := r.Render(kind, data)
			if err != nil {
				t.Fatalf("Render(%s) failed: %v", kind, err)
			}

			if msg.Subject == "" {
				t.Error("subject is empty")
			}
			if !strings.Contains(msg.HTML, "<!DOCTYPE html>") {
				t.Error("html missing doctype")
			}
			if !strings.Contains(msg.HTML, `name="viewport"`) {
				t.Error("html missing viewport meta")
			}
			if !strings.Contains(msg.HTML, `width="600"`) {
				t.Error("html missing max-width container")
			}
			if msg.Text == "" {
				t.Error("text part is empty")
			}

			if result := Validate(msg); !result.Valid {
				t.Errorf("clean render should validate, issues: %v", result.Issues)
			}
		})
	}
}

func TestRenderSubstitutesFields(t *testing.T) {
	r := newTestRenderer(t)

	msg, err := r.Render(KindApproval, Data{ClubName: "Test FC", ContactName: "Sam Keeper"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !strings.Contains(msg.HTML, "Test FC") {
		t.Error("html missing club name")
	}
	if !strings.Contains(msg.Text, "Sam Keeper") {
		t.Error("text missing contact name")
	}
	if !strings.Contains(msg.HTML, "ClubMatch") {
		t.Error("html missing platform name")
	}
}

func TestRenderContactNameDefault(t *testing.T) {
	r := newTestRenderer(t)

	msg, err := r.Render(KindApproval, Data{ClubName: "Test FC"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !strings.Contains(msg.Text, DefaultContactName) {
		t.Errorf("expected default contact name %q in text part", DefaultContactName)
	}
}

func TestRenderRejectionIncludesReason(t *testing.T) {
	r := newTestRenderer(t)

	msg, err := r.Render(KindRejection, Data{
		ClubName: "Test FC",
		Reason:   "Missing insurance documentation",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !strings.Contains(msg.HTML, "Missing insurance documentation") {
		t.Error("html missing rejection reason")
	}
	if !strings.Contains(msg.Text, "Missing insurance documentation") {
		t.Error("text missing rejection reason")
	}
}

func TestRenderRejectionKeepsMultiLineReason(t *testing.T) {
	r := newTestRenderer(t)

	msg, err := r.Render(KindRejection, Data{
		ClubName: "Test FC",
		Reason:   "Missing insurance documentation.\n\nPlease resubmit with a current certificate.",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	want := "Missing insurance documentation.\n\nPlease resubmit with a current certificate."
	if !strings.Contains(msg.Text, want) {
		t.Error("text body should keep the reason's paragraph break")
	}
	if !strings.Contains(msg.HTML, want) {
		t.Error("html body should keep the reason's paragraph break")
	}
}

func TestRenderFailureDigestListsEveryFailure(t *testing.T) {
	r := newTestRenderer(t)

	failures := []Failure{
		{ClubName: "Rovers", Email: "rovers@example.com", Error: "mailbox full"},
		{ClubName: "United", Email: "united@example.com", Error: "timeout"},
		{ClubName: "Wanderers", Email: "wanderers@example.com", Error: "bounced"},
	}

	msg, err := r.Render(KindAdminFailureSummary, Data{Failures: failures})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	for _, f := range failures {
		if !strings.Contains(msg.HTML, f.ClubName) {
			t.Errorf("html missing failure for %s", f.ClubName)
		}
		if !strings.Contains(msg.Text, f.Email) {
			t.Errorf("text missing email %s", f.Email)
		}
	}

	if !strings.Contains(msg.Text, "Total failures: 3") {
		t.Error("text missing failure count")
	}
}

func TestRenderUnknownKind(t *testing.T) {
	r := newTestRenderer(t)

	if _, err := r.Render(Kind("newsletter"), Data{}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestValidateRejectsInjectionVectors(t *testing.T) {
	r := newTestRenderer(t)

	tests := []struct {
		name  string
		input string
		rule  string
	}{
		{"script_tag", `<script>alert(1)</script>`, "script tags are not allowed"},
		{"javascript_uri", `<a href="javascript:alert(1)">x</a>`, "javascript: URIs are not allowed"},
		{"data_uri", `<img src="data:text/html;base64,x">`, "data: URIs are not allowed"},
		{"form_element", `<form action="/steal">`, "form elements are not allowed"},
		{"input_element", `<input type="password">`, "input elements are not allowed"},
		{"style_element", `<style>body{display:none}</style>`, "style elements are not allowed"},
		{"style_import", `@import url(evil.css)`, "style imports are not allowed"},
		{"event_handler", `<img src=x onerror=alert(1)>`, "inline event handlers are not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := r.Render(KindApproval, Data{ClubName: tt.input})
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}

			result := Validate(msg)
			if result.Valid {
				t.Fatalf("input %q should fail validation", tt.input)
			}

			found := false
			for _, issue := range result.Issues {
				if issue == tt.rule {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected issue %q, got %v", tt.rule, result.Issues)
			}
		})
	}
}

func TestValidateRequiresStructure(t *testing.T) {
	result := Validate(&Message{
		Subject: "Hello",
		HTML:    "<p>bare fragment</p>",
		Text:    "bare fragment",
	})

	if result.Valid {
		t.Fatal("fragment without doctype should fail validation")
	}
	if len(result.Issues) == 0 {
		t.Fatal("expected at least one issue")
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Test FC", "Test FC"},
		{"surrounding_space", "  Test FC  ", "Test FC"},
		{"collapsed_spaces", "Test \t  FC", "Test FC"},
		{"newline_preserved", "missing insurance\nmissing roster", "missing insurance\nmissing roster"},
		{"paragraph_break_kept", "first point\n\n\n\nsecond point", "first point\n\nsecond point"},
		{"crlf_normalized", "line one\r\nline two", "line one\nline two"},
		{"space_around_newline", "line one \n line two", "line one\nline two"},
		{"control_chars", "Test\x00\x07FC", "TestFC"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeCapsLength(t *testing.T) {
	long := strings.Repeat("a", 2000)
	if got := Sanitize(long); len(got) != maxFieldLength {
		t.Errorf("expected %d runes, got %d", maxFieldLength, len(got))
	}
}
