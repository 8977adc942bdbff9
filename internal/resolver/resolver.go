// Package resolver serves privileged backend functions to the field's
// surfaces. Failures are answered in-band as {success:false, error} so callers
// never see a transport error for a backend problem.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/relfield/internal/fieldconfig"
	"github.com/kalambet/relfield/internal/jira"
)

// FunctionGetFieldConfiguration is the name under which GetFieldConfiguration
// is invoked remotely.
const FunctionGetFieldConfiguration = "getFieldConfiguration"

// ConfigurationReader reads a field's context configurations with app
// credentials. Implemented by *jira.Client.
type ConfigurationReader interface {
	GetFieldConfiguration(ctx context.Context, fieldID string) ([]jira.FieldContextConfiguration, error)
}

// Recorder receives resolver call outcomes. Implemented by *metrics.Metrics.
type Recorder interface {
	ObserveResolverCall(function string, success bool)
}

// Resolver implements the privileged functions against Jira.
type Resolver struct {
	jira    ConfigurationReader
	metrics Recorder
	logger  *slog.Logger
}

// New creates a Resolver. metrics may be nil.
func New(reader ConfigurationReader, metrics Recorder) *Resolver {
	return &Resolver{
		jira:    reader,
		metrics: metrics,
		logger:  slog.Default(),
	}
}

// GetFieldConfiguration returns the configuration of the field's first context.
// A field with no stored configuration yields an empty configuration. The
// returned error is always nil; failures are reported in the Result.
func (r *Resolver) GetFieldConfiguration(ctx context.Context, fieldID string) (fieldconfig.Result, error) {
	res := r.getFieldConfiguration(ctx, fieldID)
	if r.metrics != nil {
		r.metrics.ObserveResolverCall(FunctionGetFieldConfiguration, res.Success)
	}
	return res, nil
}

func (r *Resolver) getFieldConfiguration(ctx context.Context, fieldID string) fieldconfig.Result {
	if fieldID == "" {
		return failure(fmt.Errorf("fieldId is required"))
	}

	r.logger.Debug("fetching field configuration", "field_id", fieldID)
	values, err := r.jira.GetFieldConfiguration(ctx, fieldID)
	if err != nil {
		r.logger.Error("fetching field configuration", "field_id", fieldID, "error", err)
		return failure(err)
	}

	var cfg fieldconfig.Configuration
	if len(values) > 0 {
		cfg, err = fieldconfig.Decode(values[0].Configuration)
		if err != nil {
			r.logger.Error("decoding field configuration", "field_id", fieldID, "error", err)
			return failure(err)
		}
	}
	return fieldconfig.Result{Success: true, Configuration: &cfg}
}

func failure(err error) fieldconfig.Result {
	msg := err.Error()
	if msg == "" {
		msg = "failed to fetch configuration"
	}
	return fieldconfig.Result{Success: false, Error: msg}
}
