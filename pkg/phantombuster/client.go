// Package phantombuster provides a client for the PhantomBuster agent API:
// agents are launched with JSON arguments, polled until they finish, and
// their output is fetched as JSON.
package phantombuster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signal-ingest/internal/resilience"
)

// Profile is the company profile an agent scrapes from a professional
// network page.
type Profile struct {
	CompanyName   string `json:"companyName"`
	Description   string `json:"description"`
	Industry      string `json:"industry"`
	EmployeeCount string `json:"employeeCount"`
	Headquarters  string `json:"headquarters"`
	Founded       string `json:"founded"`
	Website       string `json:"website"`
	ProfileURL    string `json:"profileUrl"`
}

// Post is one activity item scraped from a company page.
type Post struct {
	Author    string `json:"author"`
	Content   string `json:"postContent"`
	URL       string `json:"postUrl"`
	Timestamp string `json:"postTimestamp"`
}

// Client defines the agent operations the ingestion plugins need.
type Client interface {
	// FindCompanyURL resolves a company name (and optional location hint)
	// to its professional-network page URL. Empty means not found.
	FindCompanyURL(ctx context.Context, company, location string) (string, error)
	// CompanyProfile scrapes the profile behind the given page URL.
	CompanyProfile(ctx context.Context, pageURL string) (*Profile, error)
	// RecentPosts returns up to max recent activity items for the page.
	RecentPosts(ctx context.Context, pageURL string, max int) ([]Post, error)
}

// AgentIDs names the three agents the client drives.
type AgentIDs struct {
	Finder   string
	Scraper  string
	Activity string
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithPollInterval sets the delay between fetch-output polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *httpClient) {
		c.pollInterval = d
	}
}

// WithMaxPolls caps how many times one launch is polled before giving up.
func WithMaxPolls(n int) Option {
	return func(c *httpClient) {
		c.maxPolls = n
	}
}

type httpClient struct {
	apiKey       string
	baseURL      string
	agents       AgentIDs
	http         *http.Client
	pollInterval time.Duration
	maxPolls     int
	breakers     *resilience.ServiceBreakers
}

// NewClient creates a PhantomBuster client. Agent launches are guarded by a
// per-agent circuit breaker so a dead agent stops consuming quota quickly.
func NewClient(apiKey string, agents AgentIDs, opts ...Option) Client {
	c := &httpClient{
		apiKey:       apiKey,
		baseURL:      "https://api.phantombuster.com/api/v2",
		agents:       agents,
		http:         &http.Client{Timeout: 60 * time.Second},
		pollInterval: 5 * time.Second,
		maxPolls:     24,
		breakers:     resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type launchResponse struct {
	ContainerID string `json:"containerId"`
}

type outputResponse struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
}

// FindCompanyURL launches the finder agent and decodes its single-URL output.
func (c *httpClient) FindCompanyURL(ctx context.Context, company, location string) (string, error) {
	raw, err := c.runAgent(ctx, c.agents.Finder, map[string]any{
		"companyName": company,
		"location":    location,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &DecodeError{Stage: "finder output", Err: err}
	}
	return out.URL, nil
}

// CompanyProfile launches the scraper agent for the page.
func (c *httpClient) CompanyProfile(ctx context.Context, pageURL string) (*Profile, error) {
	raw, err := c.runAgent(ctx, c.agents.Scraper, map[string]any{
		"pageUrl": pageURL,
	})
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, &DecodeError{Stage: "profile output", Err: err}
	}
	return &profile, nil
}

// RecentPosts launches the activity agent for the page.
func (c *httpClient) RecentPosts(ctx context.Context, pageURL string, max int) ([]Post, error) {
	raw, err := c.runAgent(ctx, c.agents.Activity, map[string]any{
		"pageUrl":  pageURL,
		"maxPosts": max,
	})
	if err != nil {
		return nil, err
	}

	var posts []Post
	if err := json.Unmarshal(raw, &posts); err != nil {
		return nil, &DecodeError{Stage: "posts output", Err: err}
	}
	if max > 0 && len(posts) > max {
		posts = posts[:max]
	}
	return posts, nil
}

// runAgent launches an agent through its circuit breaker, then polls
// fetch-output until the container finishes.
func (c *httpClient) runAgent(ctx context.Context, agentID string, args map[string]any) (json.RawMessage, error) {
	breaker := c.breakers.Get(agentID)

	containerID, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (string, error) {
		return c.launch(ctx, agentID, args)
	})
	if err != nil {
		return nil, err
	}

	return c.pollOutput(ctx, agentID, containerID)
}

func (c *httpClient) launch(ctx context.Context, agentID string, args map[string]any) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"id":        agentID,
		"arguments": args,
	})
	if err != nil {
		return "", eris.Wrap(err, "phantombuster: marshal launch")
	}

	body, err := c.post(ctx, c.baseURL+"/agents/launch", payload)
	if err != nil {
		return "", err
	}

	var launched launchResponse
	if err := json.Unmarshal(body, &launched); err != nil {
		return "", &DecodeError{Stage: "launch response", Err: err}
	}
	if launched.ContainerID == "" {
		return "", eris.New("phantombuster: launch returned no container id")
	}

	zap.L().Debug("phantombuster: agent launched",
		zap.String("agent_id", agentID),
		zap.String("container_id", launched.ContainerID),
	)
	return launched.ContainerID, nil
}

func (c *httpClient) pollOutput(ctx context.Context, agentID, containerID string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/agents/fetch-output?id=%s&containerId=%s", c.baseURL, agentID, containerID)

	for poll := 0; poll < c.maxPolls; poll++ {
		body, err := c.get(ctx, url)
		if err != nil {
			return nil, err
		}

		var out outputResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, &DecodeError{Stage: "output response", Err: err}
		}

		switch out.Status {
		case "finished":
			return out.Output, nil
		case "running", "queued", "":
			timer := time.NewTimer(c.pollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, eris.Wrap(ctx.Err(), "phantombuster: poll output")
			case <-timer.C:
			}
		default:
			return nil, eris.Errorf("phantombuster: agent %s container %s status %q", agentID, containerID, out.Status)
		}
	}

	return nil, eris.Errorf("phantombuster: container %s did not finish after %d polls", containerID, c.maxPolls)
}

func (c *httpClient) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "phantombuster: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *httpClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "phantombuster: create request")
	}
	return c.do(req)
}

func (c *httpClient) do(req *http.Request) ([]byte, error) {
	req.Header.Set("X-Phantombuster-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "phantombuster: request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "phantombuster: read body"), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &QuotaError{StatusCode: resp.StatusCode, Body: string(body)}
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("phantombuster: status %d: %s", resp.StatusCode, body), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("phantombuster: status %d: %s", resp.StatusCode, body)
	}

	return body, nil
}

// QuotaError signals provider-side throttling (HTTP 429). Callers back off
// locally when they see it.
type QuotaError struct {
	StatusCode int
	Body       string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("phantombuster: quota exceeded (status %d)", e.StatusCode)
}

// Retryable marks quota responses as transient for retry policy; the
// provider wants a pause, not abandonment.
func (e *QuotaError) Retryable() bool { return true }

// DecodeError signals agent output that could not be parsed. It is never
// retried; the same payload would fail the same way.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("phantombuster: decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
