package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// Auth holds Jira credentials. With an Email set, requests use basic auth
// (email + API token); otherwise the token is sent as a bearer token.
type Auth struct {
	Email string
	Token string
}

// Client talks to the Jira Cloud REST API.
type Client struct {
	baseURL    string
	auth       Auth
	httpClient *http.Client
	backoff    time.Duration
}

// New creates a Client for the given site base URL (e.g. https://acme.atlassian.net).
func New(baseURL string, auth Auth) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		backoff: initialBackoff,
	}
}

// NewWithHTTPClient creates a Client using the given http.Client (for testing).
func NewWithHTTPClient(baseURL string, auth Auth, hc *http.Client) *Client {
	c := New(baseURL, auth)
	c.httpClient = hc
	return c
}

// BaseURL returns the site URL the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ParseJQL submits queries to the JQL parse endpoint and returns one result
// per query, in order.
func (c *Client) ParseJQL(ctx context.Context, queries ...string) ([]ParsedQuery, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	var result struct {
		Queries []ParsedQuery `json:"queries"`
	}
	err := c.do(ctx, http.MethodPost, "/rest/api/3/jql/parse?validation=strict", map[string]any{
		"queries": queries,
	}, &result)

	// Jira answers some malformed queries with 400 and an errorMessages body
	// instead of per-query errors.
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusBadRequest {
		if msgs := se.Messages(); len(msgs) > 0 {
			parsed := make([]ParsedQuery, len(queries))
			for i, q := range queries {
				parsed[i] = ParsedQuery{Query: q, Errors: msgs}
			}
			return parsed, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("parsing jql: %w", err)
	}

	if len(result.Queries) != len(queries) {
		return nil, fmt.Errorf("parsing jql: got %d results for %d queries", len(result.Queries), len(queries))
	}
	return result.Queries, nil
}

// Search runs a JQL search and returns the matching issues in ranked order.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Issue, error) {
	var result struct {
		Issues []Issue `json:"issues"`
	}
	if err := c.do(ctx, http.MethodPost, "/rest/api/3/search", req, &result); err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}
	if result.Issues == nil {
		return []Issue{}, nil
	}
	return result.Issues, nil
}

// GetIssue fetches one issue by id or key. Returns ErrNotFound if it does not exist.
func (c *Client) GetIssue(ctx context.Context, idOrKey string) (Issue, error) {
	if idOrKey == "" {
		return Issue{}, fmt.Errorf("getting issue: empty id")
	}
	path := "/rest/api/3/issue/" + url.PathEscape(idOrKey) + "?fields=summary,issuetype"

	var issue Issue
	if err := c.do(ctx, http.MethodGet, path, nil, &issue); err != nil {
		return Issue{}, fmt.Errorf("getting issue %s: %w", idOrKey, err)
	}
	return issue, nil
}

// GetFieldConfiguration returns the context configurations stored for a
// custom field. An empty slice means the field has none.
func (c *Client) GetFieldConfiguration(ctx context.Context, fieldID string) ([]FieldContextConfiguration, error) {
	path := "/rest/api/3/app/field/" + url.PathEscape(fieldID) + "/context/configuration"

	var result struct {
		Values []FieldContextConfiguration `json:"values"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("getting configuration for field %s: %w", fieldID, err)
	}
	if result.Values == nil {
		return []FieldContextConfiguration{}, nil
	}
	return result.Values, nil
}

// SetFieldConfiguration replaces the configuration of one field context.
func (c *Client) SetFieldConfiguration(ctx context.Context, fieldID, contextConfigID string, configuration any) error {
	path := "/rest/api/3/app/field/" + url.PathEscape(fieldID) + "/context/configuration"

	body := map[string]any{
		"configurations": []map[string]any{{
			"id":            contextConfigID,
			"configuration": configuration,
		}},
	}
	if err := c.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("setting configuration for field %s: %w", fieldID, err)
	}
	return nil
}

// SetFieldValue sets the value of an app custom field on one issue.
func (c *Client) SetFieldValue(ctx context.Context, fieldID, issueID string, value any) error {
	id, err := strconv.ParseInt(issueID, 10, 64)
	if err != nil {
		return fmt.Errorf("setting field %s: issue id %q is not numeric", fieldID, issueID)
	}
	path := "/rest/api/3/app/field/" + url.PathEscape(fieldID) + "/value"

	body := map[string]any{
		"updates": []map[string]any{{
			"issueIds": []int64{id},
			"value":    value,
		}},
	}
	if err := c.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("setting field %s on issue %s: %w", fieldID, issueID, err)
	}
	return nil
}

// do sends a JSON request, retrying on 429 with exponential backoff, and
// decodes the response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	var lastErr error
	for attempt := range maxRetries {
		err := c.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if !isRateLimit(err) {
			return err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(c.backoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, payload != nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &rateLimitError{status: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth.Token == "" {
		return
	}
	if c.auth.Email != "" {
		req.SetBasicAuth(c.auth.Email, c.auth.Token)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.auth.Token)
	}
}
