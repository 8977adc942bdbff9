package fieldconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultJQL         = "project = currentProject() AND status != Done"
	DefaultDisplayName = "Related Issues"
)

// ErrNotConfigured is returned when a field has no configuration or its query
// expression is blank.
var ErrNotConfigured = errors.New("field is not configured")

// Configuration is the persisted per-context configuration of the field.
type Configuration struct {
	JQL         string `json:"jql" yaml:"jql"`
	DisplayName string `json:"displayName" yaml:"displayName"`
}

// Default returns the configuration used when none has been saved yet.
func Default() Configuration {
	return Configuration{JQL: DefaultJQL, DisplayName: DefaultDisplayName}
}

// HasQuery reports whether the configuration carries a non-blank JQL expression.
func (c Configuration) HasQuery() bool {
	return strings.TrimSpace(c.JQL) != ""
}

// Decode parses a raw context configuration. An empty or null payload decodes
// to the zero Configuration.
func Decode(raw json.RawMessage) (Configuration, error) {
	var c Configuration
	if len(raw) == 0 || string(raw) == "null" {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return Configuration{}, fmt.Errorf("decoding field configuration: %w", err)
	}
	return c, nil
}

// Result is the resolver's answer to a getFieldConfiguration call. Failures are
// reported in-band rather than as transport errors.
type Result struct {
	Success       bool           `json:"success"`
	Configuration *Configuration `json:"configuration,omitempty"`
	Error         string         `json:"error,omitempty"`
}
