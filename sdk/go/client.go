package setbacksdk

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

// Client is a minimal setback HTTP API client for game hosts.
type Client struct {
	BaseURL     string
	APIKey      string
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

// Profile is a worker's personality, every trait in 0..100.
type Profile struct {
	Openness          int `json:"openness"`
	Conscientiousness int `json:"conscientiousness"`
	Extraversion      int `json:"extraversion"`
	Agreeableness     int `json:"agreeableness"`
	Neuroticism       int `json:"neuroticism"`
	Formality         int `json:"formality"`
	Humor             int `json:"humor"`
	Encouragement     int `json:"encouragement"`
}

// Worker represents the API worker model.
type Worker struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Preset        string         `json:"preset,omitempty"`
	Profile       Profile        `json:"profile"`
	Archetype     string         `json:"archetype"`
	FailureCounts map[string]int `json:"failure_counts,omitempty"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

// SpawnRequest describes a new worker. Leave Preset empty to use Profile or the defaults.
type SpawnRequest struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Preset    string         `json:"preset,omitempty"`
	Profile   *Profile       `json:"profile,omitempty"`
	Overrides map[string]int `json:"overrides,omitempty"`
}

// Failure is one failure event to report.
type Failure struct {
	FailureType string  `json:"failure_type"`
	Score       float64 `json:"score"`
	Emotion     string  `json:"emotion,omitempty"`
}

// Response is what the worker says and plans after a failure.
type Response struct {
	WorkerID               string   `json:"worker_id"`
	FailureType            string   `json:"failure_type"`
	FailureID              int64    `json:"failure_id"`
	PreviousFailureCount   int      `json:"previous_failure_count"`
	Dialogue               string   `json:"dialogue"`
	LearningStatement      string   `json:"learning_statement,omitempty"`
	RecoveryPlan           []string `json:"recovery_plan"`
	NeedsPlayerReassurance bool     `json:"needs_player_reassurance"`
	Reassurance            string   `json:"reassurance,omitempty"`
	Severity               string   `json:"severity"`
	Archetype              string   `json:"archetype"`
	TemplateID             string   `json:"template_id,omitempty"`
	Fallback               bool     `json:"fallback"`
	Error                  string   `json:"error,omitempty"`
}

// Learning is a stored learning statement.
type Learning struct {
	ID          string `json:"id"`
	FailureType string `json:"failure_type"`
	Statement   string `json:"statement"`
	CreatedAt   string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// SpawnWorker creates a worker.
func (c *Client) SpawnWorker(ctx context.Context, req SpawnRequest) (Worker, error) {
	var resp Worker
	err := c.do(ctx, http.MethodPost, "v0/workers", req, &resp)
	return resp, err
}

// Worker fetches a worker with its per-type failure counts.
func (c *Client) Worker(ctx context.Context, id string) (Worker, error) {
	var resp Worker
	err := c.do(ctx, http.MethodGet, c.workerPath(id, ""), nil, &resp)
	return resp, err
}

// SetPersonality applies a preset, a full profile or trait overrides.
func (c *Client) SetPersonality(ctx context.Context, id, preset string, profile *Profile, overrides map[string]int) (Worker, error) {
	body := map[string]any{}
	if preset != "" {
		body["preset"] = preset
	}
	if profile != nil {
		body["profile"] = profile
	}
	if len(overrides) > 0 {
		body["overrides"] = overrides
	}
	var resp Worker
	err := c.do(ctx, http.MethodPatch, c.workerPath(id, "personality"), body, &resp)
	return resp, err
}

// DespawnWorker deletes a worker and its history.
func (c *Client) DespawnWorker(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.workerPath(id, ""), nil, nil)
}

// ReportFailure reports a failure and returns the worker's response. A
// response with Fallback set is still usable.
func (c *Client) ReportFailure(ctx context.Context, workerID string, f Failure) (Response, error) {
	var resp Response
	err := c.do(ctx, http.MethodPost, c.workerPath(workerID, "failures"), f, &resp)
	return resp, err
}

// HelpRequest returns a line asking the player for help.
func (c *Client) HelpRequest(ctx context.Context, workerID string, f Failure) (string, error) {
	return c.line(ctx, c.workerPath(workerID, "help"), f)
}

// Embarrassment returns the worker's reaction to a witnessed failure.
func (c *Client) Embarrassment(ctx context.Context, workerID string, f Failure) (string, error) {
	return c.line(ctx, c.workerPath(workerID, "embarrassment"), f)
}

func (c *Client) line(ctx context.Context, endpoint string, f Failure) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	err := c.do(ctx, http.MethodPost, endpoint, f, &resp)
	return resp.Text, err
}

// Learnings returns a worker's learning statements, newest first.
func (c *Client) Learnings(ctx context.Context, workerID string, limit int) ([]Learning, error) {
	endpoint := c.workerPath(workerID, "learnings")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Learning `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
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
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
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
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) workerPath(id, sub string) string {
	p := "v0/workers/" + url.PathEscape(id)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
