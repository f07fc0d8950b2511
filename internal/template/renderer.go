package template

import (
	"fmt"
	"strings"
	"text/template"
)

// Data is the field bag a template is parameterized with. Every free-text
// field is sanitized before substitution; callers do not need to pre-clean.
type Data struct {
	ClubName    string
	ContactName string
	Reason      string
	Failures    []Failure
}

// Failure is one line of an admin failure digest.
type Failure struct {
	ClubName string
	Email    string
	Error    string
}

// Message is a fully rendered email.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Config holds the platform constants substituted into every template.
type Config struct {
	PlatformName string
	PlatformURL  string
}

// Renderer produces (subject, html, text) triples from a notification kind
// and a data record. It is a pure function of its inputs plus the configured
// platform constants; substitution uses plain text templates, so the
// post-render Validate pass is the safety net against injected markup.
type Renderer struct {
	cfg      Config
	subjects map[Kind]*template.Template
	html     map[Kind]*template.Template
	text     map[Kind]*template.Template
}

// renderContext is what the template bodies actually see.
type renderContext struct {
	PlatformName string
	PlatformURL  string
	Subject      string
	ClubName     string
	ContactName  string
	Reason       string
	Failures     []Failure
}

// NewRenderer parses all template bodies up front so a malformed template
// fails at startup, not on the first send.
func NewRenderer(cfg Config) (*Renderer, error) {
	if cfg.PlatformName == "" {
		cfg.PlatformName = "ClubMatch"
	}

	r := &Renderer{
		cfg:      cfg,
		subjects: make(map[Kind]*template.Template),
		html:     make(map[Kind]*template.Template),
		text:     make(map[Kind]*template.Template),
	}

	for kind, subject := range subjects {
		tmpl, err := template.New(string(kind) + "_subject").Parse(subject)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", kind, err)
		}
		r.subjects[kind] = tmpl
	}

	for kind, body := range htmlBodies {
		tmpl, err := template.New(string(kind) + "_html").Parse(layoutHeader + body + layoutFooter)
		if err != nil {
			return nil, fmt.Errorf("parse %s html body: %w", kind, err)
		}
		r.html[kind] = tmpl
	}

	for kind, body := range textBodies {
		tmpl, err := template.New(string(kind) + "_text").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("parse %s text body: %w", kind, err)
		}
		r.text[kind] = tmpl
	}

	return r, nil
}

// Render produces the message for one notification kind. Unknown kinds and
// template execution failures are errors; content-safety problems are not
// reported here but by Validate, which callers run on the result.
func (r *Renderer) Render(kind Kind, data Data) (*Message, error) {
	subjectTmpl, ok := r.subjects[kind]
	if !ok {
		return nil, fmt.Errorf("unknown template kind: %q", kind)
	}

	ctx := renderContext{
		PlatformName: r.cfg.PlatformName,
		PlatformURL:  r.cfg.PlatformURL,
		ClubName:     Sanitize(data.ClubName),
		ContactName:  Sanitize(data.ContactName),
		Reason:       Sanitize(data.Reason),
	}
	if ctx.ContactName == "" {
		ctx.ContactName = DefaultContactName
	}
	for _, f := range data.Failures {
		ctx.Failures = append(ctx.Failures, Failure{
			ClubName: Sanitize(f.ClubName),
			Email:    Sanitize(f.Email),
			Error:    Sanitize(f.Error),
		})
	}

	var subject strings.Builder
	if err := subjectTmpl.Execute(&subject, ctx); err != nil {
		return nil, fmt.Errorf("render %s subject: %w", kind, err)
	}
	ctx.Subject = subject.String()

	var html strings.Builder
	if err := r.html[kind].Execute(&html, ctx); err != nil {
		return nil, fmt.Errorf("render %s html: %w", kind, err)
	}

	var text strings.Builder
	if err := r.text[kind].Execute(&text, ctx); err != nil {
		return nil, fmt.Errorf("render %s text: %w", kind, err)
	}

	return &Message{
		Subject: ctx.Subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
