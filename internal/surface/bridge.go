// Package surface orchestrates the three contexts the field renders in:
// configuration, edit and view. Each surface talks to its host through a
// Bridge and keeps its visible state behind a mutex.
package surface

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/relfield/internal/fieldconfig"
)

// ErrInvalidQuery is returned when a configuration is submitted with a query
// expression the remote validator rejected.
var ErrInvalidQuery = errors.New("invalid JQL query")

// ExtensionContext is what the host tells a surface about where it runs.
type ExtensionContext struct {
	FieldID    string `json:"fieldId"`
	FieldValue string `json:"fieldValue,omitempty"`
	SiteURL    string `json:"siteUrl"`
	IssueKey   string `json:"issueKey,omitempty"`
	// Configuration is the stored field configuration, when the host has one.
	Configuration *fieldconfig.Configuration `json:"configuration,omitempty"`
}

// Bridge is the host a surface is mounted in.
type Bridge interface {
	Context(ctx context.Context) (ExtensionContext, error)
	// Submit hands a payload back to the host, which persists it.
	Submit(ctx context.Context, payload any) error
}

// ConfigurationSubmission is the payload submitted by the configuration surface.
type ConfigurationSubmission struct {
	Configuration fieldconfig.Configuration `json:"configuration"`
}

// TransportError reports a failed call to the host or a remote backend.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
