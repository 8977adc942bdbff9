// Package host is the local stand-in for the application host: it stores what
// the surfaces submit in SQLite and queues the writes that push it to Jira.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/relfield/internal/fieldconfig"
	"github.com/kalambet/relfield/internal/storage"
	"github.com/kalambet/relfield/internal/surface"
	"github.com/kalambet/relfield/internal/syncer"
)

// Target identifies where a surface is mounted.
type Target struct {
	FieldID   string
	ContextID string
	// IssueKey is required by the edit and view surfaces.
	IssueKey string
	SiteURL  string
}

// Bridge implements surface.Bridge over the local store.
type Bridge struct {
	store  *storage.Store
	target Target
	logger *slog.Logger
}

func NewBridge(store *storage.Store, target Target) *Bridge {
	return &Bridge{
		store:  store,
		target: target,
		logger: slog.Default(),
	}
}

// Context reports the target along with the stored configuration and value.
func (b *Bridge) Context(_ context.Context) (surface.ExtensionContext, error) {
	ext := surface.ExtensionContext{
		FieldID:  b.target.FieldID,
		SiteURL:  b.target.SiteURL,
		IssueKey: b.target.IssueKey,
	}

	fc, err := b.store.GetFieldConfiguration(b.target.FieldID, b.target.ContextID)
	switch {
	case err == nil:
		ext.Configuration = &fieldconfig.Configuration{JQL: fc.JQL, DisplayName: fc.DisplayName}
	case !errors.Is(err, storage.ErrNotFound):
		return surface.ExtensionContext{}, fmt.Errorf("reading configuration: %w", err)
	}

	if b.target.IssueKey != "" {
		v, err := b.store.GetFieldValue(b.target.FieldID, b.target.IssueKey)
		switch {
		case err == nil:
			ext.FieldValue = v.Value
		case !errors.Is(err, storage.ErrNotFound):
			return surface.ExtensionContext{}, fmt.Errorf("reading field value: %w", err)
		}
	}
	return ext, nil
}

// Submit persists a configuration (surface.ConfigurationSubmission) or a field
// value (string) and queues its sync to Jira.
func (b *Bridge) Submit(_ context.Context, payload any) error {
	switch p := payload.(type) {
	case surface.ConfigurationSubmission:
		return b.submitConfiguration(p.Configuration)
	case string:
		return b.submitValue(p)
	default:
		return fmt.Errorf("unsupported payload type %T", payload)
	}
}

func (b *Bridge) submitConfiguration(cfg fieldconfig.Configuration) error {
	err := b.store.SaveFieldConfiguration(storage.FieldConfiguration{
		FieldID:     b.target.FieldID,
		ContextID:   b.target.ContextID,
		JQL:         cfg.JQL,
		DisplayName: cfg.DisplayName,
	})
	if err != nil {
		return fmt.Errorf("saving configuration: %w", err)
	}

	job, err := syncer.NewConfigJob(syncer.ConfigPayload{
		FieldID:       b.target.FieldID,
		ContextID:     b.target.ContextID,
		Configuration: cfg,
	})
	if err != nil {
		return err
	}
	if err := b.store.EnqueueJob(job); err != nil {
		return fmt.Errorf("queueing configuration sync: %w", err)
	}
	b.logger.Debug("configuration sync queued", "field_id", b.target.FieldID, "job_id", job.ID)
	return nil
}

func (b *Bridge) submitValue(value string) error {
	if b.target.IssueKey == "" {
		return errors.New("saving value: no issue key")
	}
	err := b.store.SetFieldValue(storage.FieldValue{
		FieldID:  b.target.FieldID,
		IssueKey: b.target.IssueKey,
		Value:    value,
	})
	if err != nil {
		return fmt.Errorf("saving value: %w", err)
	}

	job, err := syncer.NewValueJob(syncer.ValuePayload{
		FieldID:  b.target.FieldID,
		IssueKey: b.target.IssueKey,
		Value:    value,
	})
	if err != nil {
		return err
	}
	if err := b.store.EnqueueJob(job); err != nil {
		return fmt.Errorf("queueing value sync: %w", err)
	}
	b.logger.Debug("value sync queued", "field_id", b.target.FieldID, "issue", b.target.IssueKey, "job_id", job.ID)
	return nil
}

// LocalResolver serves field configurations from the local store, for use
// when Jira is not reachable or the configuration has not synced yet.
type LocalResolver struct {
	store     *storage.Store
	contextID string
}

func NewLocalResolver(store *storage.Store, contextID string) *LocalResolver {
	return &LocalResolver{store: store, contextID: contextID}
}

func (r *LocalResolver) GetFieldConfiguration(_ context.Context, fieldID string) (fieldconfig.Result, error) {
	fc, err := r.store.GetFieldConfiguration(fieldID, r.contextID)
	if errors.Is(err, storage.ErrNotFound) {
		return fieldconfig.Result{Success: true, Configuration: &fieldconfig.Configuration{}}, nil
	}
	if err != nil {
		return fieldconfig.Result{Success: false, Error: err.Error()}, nil
	}
	return fieldconfig.Result{
		Success:       true,
		Configuration: &fieldconfig.Configuration{JQL: fc.JQL, DisplayName: fc.DisplayName},
	}, nil
}
