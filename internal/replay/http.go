package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/tally/internal/domain/model"
)

// Submission results.
const (
	resultAccepted     = "accepted"
	resultConfirmation = "requires_confirmation"
	resultRejected     = "rejected"
)

// updateResponse mirrors the POST /api/update success body.
type updateResponse struct {
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
}

// errorResponse mirrors the API error body.
type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

// latestResponse mirrors GET /api/latest.
type latestResponse struct {
	Date   *model.Date    `json:"date"`
	Scores map[string]int `json:"scores"`
}

// client talks to the tally HTTP API.
type client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func newClient(baseURL, apiKey string, timeout time.Duration) *client {
	return &client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

func (c *client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func (c *client) health(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", status)
	}
	return nil
}

// submit posts one message and classifies the answer. Rejections carry the
// service's message as detail.
func (c *client) submit(ctx context.Context, message string, force bool) (string, string, error) {
	status, data, err := c.do(ctx, http.MethodPost, "/api/update", map[string]any{
		"message": message,
		"force":   force,
	})
	if err != nil {
		return "", "", err
	}

	switch status {
	case http.StatusOK:
		var res updateResponse
		if err := json.Unmarshal(data, &res); err != nil {
			return "", "", fmt.Errorf("decode update response: %w", err)
		}
		if res.RequiresConfirmation {
			return resultConfirmation, res.Message, nil
		}
		return resultAccepted, res.Message, nil
	case http.StatusBadRequest, http.StatusUnauthorized:
		var res errorResponse
		_ = json.Unmarshal(data, &res)
		return resultRejected, fmt.Sprintf("%s: %s", res.Code, res.Message), nil
	default:
		return "", "", fmt.Errorf("update failed with status %d", status)
	}
}

func (c *client) latest(ctx context.Context) (latestResponse, error) {
	var out latestResponse
	return out, c.getJSON(ctx, "/api/latest", &out)
}

func (c *client) scores(ctx context.Context) ([]model.ScoreEntry, error) {
	var out ledgerFile
	return out.Entries, c.getJSON(ctx, "/api/scores", &out)
}

func (c *client) getJSON(ctx context.Context, path string, v any) error {
	status, data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s failed with status %d", path, status)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
