package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/clubmatch/clubmatch/internal/template"
)

func testMessage() *template.Message {
	return &template.Message{
		Subject: "Your club application has been approved",
		HTML:    "<!DOCTYPE html><html><body>approved</body></html>",
		Text:    "approved",
	}
}

func TestProviderClientSend(t *testing.T) {
	var got providerRequest
	calls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("X-Message-Id", "msg-123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewProviderClient(ProviderConfig{
		BaseURL: server.URL,
		APIKey:  "sk-test",
		From:    "noreply@clubmatch.example",
		ReplyTo: "support@clubmatch.example",
	}, zap.NewNop())

	result, err := client.Send(context.Background(), "club@example.com", testMessage())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if result.MessageID != "msg-123" {
		t.Errorf("expected message id 'msg-123', got %q", result.MessageID)
	}
	if calls != 1 {
		t.Errorf("expected exactly one transport call, got %d", calls)
	}

	if len(got.Personalizations) != 1 || len(got.Personalizations[0].To) != 1 {
		t.Fatalf("unexpected personalizations shape: %+v", got.Personalizations)
	}
	if got.Personalizations[0].To[0].Email != "club@example.com" {
		t.Errorf("unexpected recipient: %s", got.Personalizations[0].To[0].Email)
	}
	if got.From.Email != "noreply@clubmatch.example" {
		t.Errorf("unexpected from: %s", got.From.Email)
	}
	if got.ReplyTo == nil || got.ReplyTo.Email != "support@clubmatch.example" {
		t.Errorf("unexpected reply_to: %+v", got.ReplyTo)
	}
	if len(got.Content) != 2 || got.Content[0].Type != "text/plain" || got.Content[1].Type != "text/html" {
		t.Errorf("unexpected content entries: %+v", got.Content)
	}
}

func TestProviderClientNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"errors":["upstream unavailable"]}`))
	}))
	defer server.Close()

	client := NewProviderClient(ProviderConfig{BaseURL: server.URL, From: "noreply@clubmatch.example"}, zap.NewNop())

	_, err := client.Send(context.Background(), "club@example.com", testMessage())
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestProviderClientNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // deliberately closed before the call

	client := NewProviderClient(ProviderConfig{BaseURL: server.URL, From: "noreply@clubmatch.example"}, zap.NewNop())

	_, err := client.Send(context.Background(), "club@example.com", testMessage())
	if err == nil {
		t.Fatal("expected error for unreachable provider")
	}
}

func TestProviderClientInvalidRecipientFailsFast(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	client := NewProviderClient(ProviderConfig{BaseURL: server.URL, From: "noreply@clubmatch.example"}, zap.NewNop())

	_, err := client.Send(context.Background(), "not-an-address", testMessage())
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected zero transport calls, got %d", calls)
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"valid", "club@example.com", false},
		{"valid_subdomain", "contact@mail.club.example.com", false},
		{"empty", "", true},
		{"whitespace_only", "   ", true},
		{"missing_domain", "club@", true},
		{"missing_at", "club.example.com", true},
		{"display_name", "Club <club@example.com>", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.address)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.address, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRecipient) {
				t.Errorf("error should wrap ErrInvalidRecipient, got %v", err)
			}
		})
	}
}
