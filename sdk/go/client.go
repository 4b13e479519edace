package taskdecksdk

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

// Client is a minimal Taskdeck HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// User represents the API user model.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Task represents the API task model (partial).
type Task struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	DueDate    *string `json:"due_date,omitempty"`
	Priority   string  `json:"priority"`
	Status     string  `json:"status"`
	CreatorID  string  `json:"creator_id"`
	AssigneeID string  `json:"assignee_id"`
	Overdue    bool    `json:"overdue"`
	DueSoon    bool    `json:"due_soon"`
}

// Notification represents an inbox entry.
type Notification struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Read      bool   `json:"read"`
	LinkTo    string `json:"link_to,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Stats is the dashboard counter set.
type Stats struct {
	Assigned  int `json:"assigned"`
	Created   int `json:"created"`
	Overdue   int `json:"overdue"`
	Completed int `json:"completed"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Register creates a user account.
func (c *Client) Register(ctx context.Context, name, email, password string) (User, error) {
	body := map[string]any{"name": name, "email": email, "password": password}
	var resp User
	err := c.do(ctx, http.MethodPost, "register", body, &resp)
	return resp, err
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]any{"email": email, "password": password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

// CreateTask creates a task. Assignee is optional and defaults to the caller.
func (c *Client) CreateTask(ctx context.Context, title, priority, assigneeID string) (Task, error) {
	body := map[string]any{"title": title, "priority": priority}
	if assigneeID != "" {
		body["assignee_id"] = assigneeID
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// TaskQuery narrows Tasks; zero-value fields are omitted.
type TaskQuery struct {
	Status   string
	Priority string
	Search   string
	Sort     string
}

// Tasks lists the tasks visible to the authenticated user.
func (c *Client) Tasks(ctx context.Context, q TaskQuery) ([]Task, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Priority != "" {
		params.Set("priority", q.Priority)
	}
	if q.Search != "" {
		params.Set("q", q.Search)
	}
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	endpoint := "tasks"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetTask fetches one task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SetStatus moves a task to the given status.
func (c *Client) SetStatus(ctx context.Context, id, status string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("tasks/%s/status", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// Complete marks a task COMPLETED.
func (c *Client) Complete(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/complete", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Reopen moves a task back to TODO.
func (c *Client) Reopen(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/reopen", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// DeleteTask removes a task the caller created.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

// Notifications lists the caller's notifications, newest first.
func (c *Client) Notifications(ctx context.Context, limit int) ([]Notification, error) {
	endpoint := "notifications"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Notification
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MarkNotificationRead flips one notification to read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("notifications/%s/read", url.PathEscape(id)), nil, nil)
}

// Stats returns the caller's dashboard counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "dashboard/stats", nil, &resp)
	return resp, err
}

// Events returns recent audit log entries.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
