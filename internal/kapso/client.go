// Package kapso is a client for the Kapso workflow execution API.
package kapso

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	SourceInitial  = "sistema_pickit"
	SourceReminder = "sistema_pickit_recordatorio"
	SourceFollowUp = "sistema_pickit_llamada"

	DefaultBaseURL = "https://api.kapso.ai"
	DefaultTimeout = 5 * time.Second
)

// ErrMissingWorkflow is returned when no workflow id is configured
var ErrMissingWorkflow = errors.New("kapso: workflow id not configured")

// Options configures a Client
type Options struct {
	BaseURL           string
	APIKey            string
	PhoneNumberID     string // default channel endpoint
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables pacing
	Burst             int
	HTTPClient        *http.Client
}

// Client is a Kapso API client
type Client struct {
	baseURL       string
	apiKey        string
	phoneNumberID string
	timeout       time.Duration
	limiter       *rate.Limiter
	httpClient    *http.Client
}

// NewClient creates a new Kapso API client
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:       opts.BaseURL,
		apiKey:        opts.APIKey,
		phoneNumberID: opts.PhoneNumberID,
		timeout:       opts.Timeout,
		httpClient:    opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// ExecutionContext is echoed back by the workflow in its webhooks
type ExecutionContext struct {
	Source     string `json:"source"`
	CampaignID string `json:"campana_id"`
	PersonID   string `json:"persona_id"`
}

// ExecutionRequest starts one workflow run for one phone number
type ExecutionRequest struct {
	PhoneNumber   string            `json:"phone_number"`
	PhoneNumberID string            `json:"phone_number_id,omitempty"`
	Variables     map[string]string `json:"variables"`
	Context       ExecutionContext  `json:"context"`
}

// Execution is the accepted workflow run
type Execution struct {
	ID         string `json:"id"`
	TrackingID string `json:"tracking_id"`
	Status     string `json:"status,omitempty"`
}

// Tracking returns the id to store for later correlation
func (e *Execution) Tracking() string {
	if e == nil {
		return ""
	}
	if e.TrackingID != "" {
		return e.TrackingID
	}
	return e.ID
}

// ExecuteWorkflow starts workflowID for the request's phone number. The
// request's PhoneNumberID falls back to the client default.
func (c *Client) ExecuteWorkflow(ctx context.Context, workflowID string, req ExecutionRequest) (*Execution, error) {
	if workflowID == "" {
		return nil, ErrMissingWorkflow
	}
	if req.PhoneNumberID == "" {
		req.PhoneNumberID = c.phoneNumberID
	}

	body := struct {
		WorkflowExecution ExecutionRequest `json:"workflow_execution"`
	}{req}

	var resp struct {
		Data Execution `json:"data"`
	}
	path := "/platform/v1/workflows/" + url.PathEscape(workflowID) + "/executions"
	if err := c.request(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// request performs an HTTP request to the Kapso API under the per-call timeout
func (c *Client) request(ctx context.Context, method, path string, body any, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return newAPIError(resp.StatusCode, data)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
