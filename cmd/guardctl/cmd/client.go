package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client calls the admin API with the operator's token.
type Client struct {
	baseURL    string
	token      string
	actor      string
	httpClient *http.Client
	trace      io.Writer
}

func NewClient(baseURL, token, actor string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		actor:      actor,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Do sends body as JSON and decodes a 2xx response into out.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("X-Admin-Token", c.token)
	}
	if c.actor != "" {
		req.Header.Set("X-Admin-Actor", c.actor)
	}

	if c.trace != nil {
		fmt.Fprintf(c.trace, ">>> %s %s\n", method, url)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if c.trace != nil {
		fmt.Fprintf(c.trace, "<<< %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// parseAPIError understands both error shapes the gateway writes:
// {"error","error_description"} and {"error","message"}.
func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}

	var parsed struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Code = parsed.Error
		apiErr.Message = parsed.Description
		if apiErr.Message == "" {
			apiErr.Message = parsed.Message
		}
	}
	if apiErr.Message == "" {
		switch status {
		case http.StatusUnauthorized:
			apiErr.Message = "invalid or missing admin token"
		case http.StatusNotFound:
			apiErr.Message = "endpoint not found"
		default:
			apiErr.Message = fmt.Sprintf("API error: %d %s", status, http.StatusText(status))
		}
	}
	return apiErr
}
