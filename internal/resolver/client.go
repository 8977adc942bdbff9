package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/relfield/internal/fieldconfig"
)

// Client invokes resolver functions on a running relfield server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client for the server at baseURL, authenticating with
// the given bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetFieldConfiguration invokes getFieldConfiguration remotely. The error is
// non-nil only when the call itself failed; backend failures arrive in the
// Result.
func (c *Client) GetFieldConfiguration(ctx context.Context, fieldID string) (fieldconfig.Result, error) {
	var res fieldconfig.Result
	if err := c.Invoke(ctx, FunctionGetFieldConfiguration, map[string]string{"fieldId": fieldID}, &res); err != nil {
		return fieldconfig.Result{}, err
	}
	return res, nil
}

// Invoke calls a resolver function with payload and decodes its answer into out.
func (c *Client) Invoke(ctx context.Context, function string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/resolver/"+function, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoking %s: server not reachable, is relfield running? (%w)", function, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("invoking %s: server returned %d: %s", function, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", function, err)
	}
	return nil
}
