package jira

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when the requested issue or resource does not exist.
var ErrNotFound = errors.New("not found")

// IssueType is the projection of an issue's type used for display.
type IssueType struct {
	Name    string `json:"name"`
	IconURL string `json:"iconUrl,omitempty"`
}

// IssueFields holds the subset of issue fields this client requests.
type IssueFields struct {
	Summary   string     `json:"summary"`
	IssueType *IssueType `json:"issuetype,omitempty"`
}

// Issue is a Jira issue as returned by search and get-by-key.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// TypeName returns the issue type name, or "" when the type was not returned.
func (i Issue) TypeName() string {
	if i.Fields.IssueType == nil {
		return ""
	}
	return i.Fields.IssueType.Name
}

// ParsedQuery is the per-query result of the JQL parse endpoint. An empty
// Errors slice means the query is structurally valid.
type ParsedQuery struct {
	Query  string   `json:"query"`
	Errors []string `json:"errors,omitempty"`
}

// SearchRequest is the JSON body for POST /rest/api/3/search.
type SearchRequest struct {
	JQL        string   `json:"jql"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields,omitempty"`
}

// FieldContextConfiguration is one entry of a custom field's context
// configuration list. Configuration is kept raw; its schema is owned by the
// app that stored it.
type FieldContextConfiguration struct {
	ID             string          `json:"id"`
	FieldContextID string          `json:"fieldContextId,omitempty"`
	Configuration  json.RawMessage `json:"configuration,omitempty"`
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if msgs := e.Messages(); len(msgs) > 0 {
		return fmt.Sprintf("jira returned %d: %s", e.Code, msgs[0])
	}
	return fmt.Sprintf("jira returned %d: %s", e.Code, e.Body)
}

// Messages extracts the human-readable messages from a Jira error body
// ({"errorMessages": [...], "errors": {...}}). Returns nil if the body is not
// in that shape.
func (e *StatusError) Messages() []string {
	var body struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err != nil {
		return nil
	}
	msgs := append([]string(nil), body.ErrorMessages...)
	for field, msg := range body.Errors {
		msgs = append(msgs, field+": "+msg)
	}
	return msgs
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}
