package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/clubmatch/clubmatch/internal/template"
)

// ProviderClient sends mail through a SendGrid-compatible HTTP API.
type ProviderClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	from    string
	replyTo string
	logger  *zap.Logger
}

type ProviderConfig struct {
	BaseURL string
	APIKey  string
	From    string
	ReplyTo string
	Timeout time.Duration
}

// Wire format of the provider's send endpoint.
type providerAddress struct {
	Email string `json:"email"`
}

type providerPersonalization struct {
	To []providerAddress `json:"to"`
}

type providerContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type providerRequest struct {
	Personalizations []providerPersonalization `json:"personalizations"`
	From             providerAddress           `json:"from"`
	ReplyTo          *providerAddress          `json:"reply_to,omitempty"`
	Subject          string                    `json:"subject"`
	Content          []providerContent         `json:"content"`
}

// NewProviderClient creates an HTTP mail transport client
func NewProviderClient(cfg ProviderConfig, logger *zap.Logger) *ProviderClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &ProviderClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		from:    cfg.From,
		replyTo: cfg.ReplyTo,
		logger:  logger,
	}
}

// Send issues exactly one POST to the provider. Any non-2xx response,
// network failure, or malformed response is reported as a plain error.
func (c *ProviderClient) Send(ctx context.Context, to string, msg *template.Message) (*Result, error) {
	if err := ValidateAddress(to); err != nil {
		return nil, err
	}

	body := providerRequest{
		Personalizations: []providerPersonalization{
			{To: []providerAddress{{Email: to}}},
		},
		From:    providerAddress{Email: c.from},
		Subject: msg.Subject,
		Content: []providerContent{
			{Type: "text/plain", Value: msg.Text},
			{Type: "text/html", Value: msg.HTML},
		},
	}
	if c.replyTo != "" {
		body.ReplyTo = &providerAddress{Email: c.replyTo}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mail provider request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mail provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	messageID := resp.Header.Get("X-Message-Id")

	c.logger.Info("email accepted by provider",
		zap.String("to", to),
		zap.String("subject", msg.Subject),
		zap.String("message_id", messageID),
		zap.Int("status_code", resp.StatusCode),
	)

	return &Result{MessageID: messageID}, nil
}
