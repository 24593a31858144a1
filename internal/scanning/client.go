package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"
	DefaultTimeout = 30 * time.Second
)

// Transport sends a built request to the inference service and returns the raw response body.
type Transport interface {
	Send(ctx context.Context, req *Request) ([]byte, error)
}

// ClientConfig configures the REST client. APIKey is required.
type ClientConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the Gemini generateContent REST endpoint.
type Client struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

// NewClient creates a Client. It never falls back to unauthenticated requests.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigError{Field: "api key"}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		endpoint: fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(cfg.Model)),
		client:   cfg.HTTPClient,
		log:      cfg.Logger,
	}, nil
}

// Send performs exactly one POST. Non-2xx responses become *UpstreamError,
// anything that prevents a full body from being read becomes *TransportError.
func (c *Client) Send(ctx context.Context, req *Request) ([]byte, error) {
	reqID := uuid.NewString()
	start := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?key="+url.QueryEscape(c.apiKey), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	media, _ := req.Media()
	c.log.Debug("scanning.request",
		"req_id", reqID,
		"model", c.model,
		"bytes", len(body),
		"mime_type", media.MIMEType,
		"instruction_len", len(req.Instruction()),
	)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.log.Error("scanning.send_error", "req_id", reqID, "error", redact(err, c.apiKey), "elapsed_ms", time.Since(start).Milliseconds())
		return nil, &TransportError{Err: redact(err, c.apiKey)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Error("scanning.read_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, &TransportError{Err: fmt.Errorf("reading response: %w", err)}
	}

	c.log.Debug("scanning.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

// redact strips the API key from errors that echo the request URL.
func redact(err error, apiKey string) error {
	msg := err.Error()
	if apiKey == "" || !strings.Contains(msg, apiKey) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(msg, apiKey, "REDACTED"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
