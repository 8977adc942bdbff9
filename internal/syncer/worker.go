// Package syncer pushes locally saved field configurations and values to Jira
// through the SQLite job queue.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/relfield/internal/fieldconfig"
	"github.com/kalambet/relfield/internal/jira"
	"github.com/kalambet/relfield/internal/storage"
)

// Job types handled by the Worker.
const (
	JobConfigSync = "field_config_sync"
	JobValueSync  = "field_value_sync"
)

var jobTypes = []string{JobConfigSync, JobValueSync}

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Jira is the subset of the Jira client the worker writes through.
type Jira interface {
	GetIssue(ctx context.Context, idOrKey string) (jira.Issue, error)
	SetFieldConfiguration(ctx context.Context, fieldID, contextConfigID string, configuration any) error
	SetFieldValue(ctx context.Context, fieldID, issueID string, value any) error
}

// Recorder receives job outcomes. Implemented by *metrics.Metrics.
type Recorder interface {
	ObserveSyncJob(jobType, result string)
}

// ConfigPayload is the payload of a JobConfigSync job.
type ConfigPayload struct {
	FieldID       string                    `json:"field_id"`
	ContextID     string                    `json:"context_id"`
	Configuration fieldconfig.Configuration `json:"configuration"`
}

// ValuePayload is the payload of a JobValueSync job.
type ValuePayload struct {
	FieldID  string `json:"field_id"`
	IssueKey string `json:"issue_key"`
	Value    string `json:"value"`
}

// NewConfigJob builds a queue entry that pushes a field configuration. It
// replaces any unsent configuration for the same field context.
func NewConfigJob(p ConfigPayload) (storage.Job, error) {
	return newJob(JobConfigSync, p.FieldID+"/"+p.ContextID, p)
}

// NewValueJob builds a queue entry that pushes a field value. It replaces any
// unsent value for the same field on the same issue.
func NewValueJob(p ValuePayload) (storage.Job, error) {
	return newJob(JobValueSync, p.FieldID+"/"+p.IssueKey, p)
}

func newJob(jobType, coalesceKey string, payload any) (storage.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return storage.Job{}, fmt.Errorf("marshalling %s payload: %w", jobType, err)
	}
	return storage.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		CoalesceKey: coalesceKey,
		PayloadJSON: string(data),
	}, nil
}

// Worker processes sync jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	jira    Jira
	metrics Recorder
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies. metrics may be nil.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, j Jira, metrics Recorder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		jira:    j,
		metrics: metrics,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("sync iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// Drain processes jobs until none is due, and returns how many were processed.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	n := 0
	for ctx.Err() == nil {
		done, err := w.RunOnce(ctx)
		if err != nil {
			return n, err
		}
		if !done {
			return n, nil
		}
		n++
	}
	return n, ctx.Err()
}

// RunOnce claims and processes a single sync job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(jobTypes)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("sync job failed", "job_id", job.ID, "type", job.Type, "error", err)
		w.observe(job.Type, storage.JobFailed)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.observe(job.Type, storage.JobCompleted)
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	switch job.Type {
	case JobConfigSync:
		var p ConfigPayload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		return w.syncConfiguration(ctx, p)
	case JobValueSync:
		var p ValuePayload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		return w.syncValue(ctx, p)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

func (w *Worker) syncConfiguration(ctx context.Context, p ConfigPayload) error {
	if p.ContextID == "" {
		return fmt.Errorf("field %s: no context configuration id to write to", p.FieldID)
	}
	if err := w.jira.SetFieldConfiguration(ctx, p.FieldID, p.ContextID, p.Configuration); err != nil {
		return err
	}
	w.logger.Info("field configuration synced", "field_id", p.FieldID, "context_id", p.ContextID)
	return nil
}

// syncValue resolves the issue key to its numeric id, which the field value
// endpoint requires, then writes the value.
func (w *Worker) syncValue(ctx context.Context, p ValuePayload) error {
	issue, err := w.jira.GetIssue(ctx, p.IssueKey)
	if err != nil {
		return fmt.Errorf("resolving issue %s: %w", p.IssueKey, err)
	}

	var value any = p.Value
	if p.Value == "" {
		value = nil
	}
	if err := w.jira.SetFieldValue(ctx, p.FieldID, issue.ID, value); err != nil {
		return err
	}
	w.logger.Info("field value synced", "field_id", p.FieldID, "issue", p.IssueKey)
	return nil
}

func (w *Worker) observe(jobType, result string) {
	if w.metrics != nil {
		w.metrics.ObserveSyncJob(jobType, result)
	}
}
