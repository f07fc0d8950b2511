// Package export requests application data exports from the external export
// service. The service owns the file layout; this client only asks for a
// format and hands back the download handle.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidFormat signals an export format the service does not produce.
var ErrInvalidFormat = errors.New("invalid export format")

var supportedFormats = map[string]bool{
	"csv":  true,
	"json": true,
	"xlsx": true,
}

// Options selects what to export and in which format.
type Options struct {
	Format string     `json:"format"`
	Since  *time.Time `json:"since,omitempty"`
	Until  *time.Time `json:"until,omitempty"`
}

// Handle is the service's pointer to a prepared export file.
type Handle struct {
	DownloadURL string `json:"download_url"`
	Filename    string `json:"filename"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		logger:     logger,
	}
}

// Export asks the service to prepare an export and returns its download
// handle.
func (c *Client) Export(ctx context.Context, opts Options) (*Handle, error) {
	if !supportedFormats[opts.Format] {
		return nil, fmt.Errorf("%w: %q (want csv, json, or xlsx)", ErrInvalidFormat, opts.Format)
	}

	body, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshal export request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/exports", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call export service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("export service rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("format", opts.Format),
		)
		return nil, fmt.Errorf("export service returned %d: %s", resp.StatusCode, string(preview))
	}

	var handle Handle
	if err := json.NewDecoder(resp.Body).Decode(&handle); err != nil {
		return nil, fmt.Errorf("decode export response: %w", err)
	}
	if handle.DownloadURL == "" || handle.Filename == "" {
		return nil, errors.New("export service returned incomplete handle")
	}

	return &handle, nil
}
