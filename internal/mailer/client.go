// Package mailer wraps the outbound email transport. A Client performs
// exactly one transport call per Send invocation and reports any non-success
// outcome as a plain error; retry policy lives in the retry package.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/clubmatch/clubmatch/internal/template"
)

// ErrInvalidRecipient marks a recipient that failed syntax validation.
// It is reported before any transport call is made and is never retried.
var ErrInvalidRecipient = errors.New("invalid recipient address")

// Result is the uniform outcome of a successful transport call.
type Result struct {
	MessageID string
}

// Client is a single-attempt email transport.
type Client interface {
	Send(ctx context.Context, to string, msg *template.Message) (*Result, error)
}

// ValidateAddress checks that an address is a syntactically valid bare
// email address (no display name, no group syntax).
func ValidateAddress(to string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("%w: address is empty", ErrInvalidRecipient)
	}

	parsed, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, to)
	}
	if parsed.Address != to {
		return fmt.Errorf("%w: %q must be a bare address", ErrInvalidRecipient, to)
	}

	return nil
}
