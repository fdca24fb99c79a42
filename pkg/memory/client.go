package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Memory is one stored fact about a user.
type Memory struct {
	Id        string    `json:"id"`
	Text      string    `json:"memory"`
	CreatedAt time.Time `json:"created_at"`
}

// Client talks to a mem0-compatible memory service. All methods take the
// caller's user id; the service scopes memories per user.
type Client struct {
	apiKey    string
	baseURL   string
	orgID     string
	projectID string
	client    *http.Client
}

func NewClient(apiKey, baseURL, orgID, projectID string) *Client {
	if baseURL == "" {
		baseURL = "https://api.mem0.ai"
	}
	return &Client{
		apiKey:    apiKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		orgID:     orgID,
		projectID: projectID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether a key was configured. Without one, callers skip
// memory entirely rather than hitting the API with empty credentials.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Token %s", c.apiKey))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("memory api error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	if out != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

type searchRequest struct {
	Query     string                 `json:"query"`
	Filters   map[string]interface{} `json:"filters"`
	OrgID     string                 `json:"org_id,omitempty"`
	ProjectID string                 `json:"project_id,omitempty"`
	Limit     int                    `json:"limit,omitempty"`
}

// Search returns memories relevant to the query for one user.
func (c *Client) Search(ctx context.Context, userId, query string, limit int) ([]Memory, error) {
	reqBody := searchRequest{
		Query:     query,
		Filters:   map[string]interface{}{"user_id": userId},
		OrgID:     c.orgID,
		ProjectID: c.projectID,
		Limit:     limit,
	}

	var memories []Memory
	if err := c.do(ctx, http.MethodPost, "/v2/memories/search/", reqBody, &memories); err != nil {
		return nil, err
	}
	return memories, nil
}

type addRequest struct {
	Messages  []addMessage `json:"messages"`
	UserID    string       `json:"user_id"`
	OrgID     string       `json:"org_id,omitempty"`
	ProjectID string       `json:"project_id,omitempty"`
}

type addMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Add stores a new user/assistant exchange for fact extraction.
func (c *Client) Add(ctx context.Context, userId, userText, assistantText string) error {
	messages := []addMessage{{Role: "user", Content: userText}}
	if assistantText != "" {
		messages = append(messages, addMessage{Role: "assistant", Content: assistantText})
	}
	reqBody := addRequest{
		Messages:  messages,
		UserID:    userId,
		OrgID:     c.orgID,
		ProjectID: c.projectID,
	}
	return c.do(ctx, http.MethodPost, "/v1/memories/", reqBody, nil)
}

// List returns every memory stored for a user.
func (c *Client) List(ctx context.Context, userId string) ([]Memory, error) {
	q := url.Values{}
	q.Set("user_id", userId)
	if c.orgID != "" {
		q.Set("org_id", c.orgID)
	}
	if c.projectID != "" {
		q.Set("project_id", c.projectID)
	}

	var memories []Memory
	if err := c.do(ctx, http.MethodGet, "/v1/memories/?"+q.Encode(), nil, &memories); err != nil {
		return nil, err
	}
	return memories, nil
}

// Delete removes one memory by id.
func (c *Client) Delete(ctx context.Context, memoryId string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/memories/%s/", memoryId), nil, nil)
}
