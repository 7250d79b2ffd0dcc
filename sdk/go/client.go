package sitebriefsdk

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

// Client is a minimal Sitebrief HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Briefing represents the API briefing model (partial).
type Briefing struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	Date          string `json:"date"`
	Status        string `json:"status"`
	Overview      string `json:"overview,omitempty"`
	Notes         string `json:"notes,omitempty"`
	SafetyMessage string `json:"safety_message,omitempty"`
}

// ContractorRef is a resolved contractor embedded in activities.
type ContractorRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Trade  string `json:"trade"`
	Status string `json:"status"`
}

// Activity represents the API activity model (partial).
type Activity struct {
	ID            string          `json:"id"`
	BriefingID    string          `json:"briefing_id"`
	Date          string          `json:"date"`
	Title         string          `json:"title"`
	Area          string          `json:"area,omitempty"`
	Priority      string          `json:"priority"`
	LaborCount    int             `json:"labor_count"`
	ContractorIDs []string        `json:"contractor_ids"`
	Contractors   []ContractorRef `json:"contractors"`
}

// Contractor represents a roster entry.
type Contractor struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Trade     string `json:"trade"`
	Status    string `json:"status"`
}

// DailyStats mirrors the daily totals response.
type DailyStats struct {
	Date                   string         `json:"date"`
	TotalLabor             int            `json:"total_labor"`
	TotalActivities        int            `json:"total_activities"`
	TotalUniqueContractors int            `json:"total_unique_contractors"`
	ByArea                 map[string]int `json:"by_area"`
	ByContractor           map[string]int `json:"by_contractor"`
}

// CopyResult reports a day copy.
type CopyResult struct {
	SourceDate  string `json:"source_date"`
	TargetDate  string `json:"target_date"`
	CopiedCount int    `json:"copied_count"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
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

// Briefing returns (creating if missing) the briefing for a date.
func (c *Client) Briefing(ctx context.Context, date string) (Briefing, error) {
	var resp Briefing
	endpoint := c.projectPath(fmt.Sprintf("briefings/%s", url.PathEscape(date)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ListActivities returns a day's activities in briefing order.
func (c *Client) ListActivities(ctx context.Context, date string) ([]Activity, error) {
	var resp []Activity
	endpoint := c.projectPath(fmt.Sprintf("briefings/%s/activities", url.PathEscape(date)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AddActivity files a work item under a date's briefing.
func (c *Client) AddActivity(ctx context.Context, date, title string, laborCount int, contractorIDs []string) (Activity, error) {
	body := map[string]any{
		"title":          title,
		"labor_count":    laborCount,
		"contractor_ids": contractorIDs,
	}
	var resp Activity
	endpoint := c.projectPath(fmt.Sprintf("briefings/%s/activities", url.PathEscape(date)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ListContractors returns the roster in display order.
func (c *Client) ListContractors(ctx context.Context) ([]Contractor, error) {
	var resp []Contractor
	err := c.do(ctx, http.MethodGet, c.projectPath("contractors"), nil, &resp)
	return resp, err
}

// AddContractor registers a crew on the roster.
func (c *Client) AddContractor(ctx context.Context, name, trade string) (Contractor, error) {
	body := map[string]any{
		"name":  name,
		"trade": trade,
	}
	var resp Contractor
	err := c.do(ctx, http.MethodPost, c.projectPath("contractors"), body, &resp)
	return resp, err
}

// DailyStats returns totals for a date.
func (c *Client) DailyStats(ctx context.Context, date string) (DailyStats, error) {
	var resp DailyStats
	endpoint := c.projectPath("stats/daily")
	if date != "" {
		endpoint = fmt.Sprintf("%s?date=%s", endpoint, url.QueryEscape(date))
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CopyDay duplicates a day's activities onto an empty target day.
func (c *Client) CopyDay(ctx context.Context, sourceDate, targetDate string) (CopyResult, error) {
	body := map[string]any{
		"source_date": sourceDate,
		"target_date": targetDate,
	}
	var resp CopyResult
	err := c.do(ctx, http.MethodPost, c.projectPath("briefings/copy"), body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.projectPath("events")
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
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v1/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
