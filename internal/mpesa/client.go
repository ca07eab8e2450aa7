package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultInitializeURL = "https://tinypesa.com/api/v1/express/initialize"
	DefaultStatusURL     = "https://tinypesa.com/api/v1/express/get_status/"
)

// Client talks to the TinyPesa express (STK push) API.
type Client struct {
	apiKey        string
	initializeURL string
	statusURL     string
	http          *http.Client
}

type ClientConfig struct {
	APIKey        string
	InitializeURL string
	StatusURL     string
	Timeout       time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.InitializeURL == "" {
		cfg.InitializeURL = DefaultInitializeURL
	}
	if cfg.StatusURL == "" {
		cfg.StatusURL = DefaultStatusURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		apiKey:        cfg.APIKey,
		initializeURL: cfg.InitializeURL,
		statusURL:     cfg.StatusURL,
		http:          &http.Client{Timeout: cfg.Timeout},
	}
}

type InitializeRequest struct {
	Amount    int64
	MSISDN    string
	AccountNo string
}

// HTTPError is returned when the aggregator answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// Initialize asks the aggregator to push a payment prompt to the payer.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) error {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("msisdn", req.MSISDN)
	form.Set("account_no", req.AccountNo)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.initializeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build initialize request: %w", err)
	}
	httpReq.Header.Set("Apikey", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	body, err := c.do(httpReq)
	if err != nil {
		return err
	}

	// Some deployments answer 200 with {"success": false}.
	var ack struct {
		Success *bool `json:"success"`
	}
	if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &ack) == nil && ack.Success != nil && !*ack.Success {
		return fmt.Errorf("initialization unsuccessful: %s", truncate(body))
	}
	return nil
}

// Status fetches the current state of the push identified by accountNo.
func (c *Client) Status(ctx context.Context, accountNo string) (*StatusResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL+url.PathEscape(accountNo), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	httpReq.Header.Set("Apikey", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	body, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var status StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &status, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}
	return body, nil
}

func truncate(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
