package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kalambet/relfield/internal/fieldconfig"
	"github.com/kalambet/relfield/internal/validator"
)

var errSubmitInProgress = errors.New("a submission is already in progress")

// ConfigurationState is the visible state of the configuration form.
type ConfigurationState struct {
	JQL         string
	DisplayName string
	Validation  validator.State
	Loaded      bool
	Submitting  bool
	Err         string
}

// ConfigurationSurface edits the field's query expression and display label.
type ConfigurationSurface struct {
	bridge    Bridge
	validator *validator.Validator
	logger    *slog.Logger

	mu          sync.Mutex
	loaded      fieldconfig.Configuration
	jql         string
	displayName string
	ready       bool
	submitting  bool
	err         string
}

// NewConfigurationSurface creates a configuration surface validating through parser.
func NewConfigurationSurface(bridge Bridge, parser validator.Parser, opts validator.Options) *ConfigurationSurface {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigurationSurface{
		bridge:    bridge,
		validator: validator.New(parser, opts),
		logger:    logger,
	}
}

// Load seeds the form from the host's stored configuration, or the default
// configuration when none is stored, and starts one validation pass.
func (s *ConfigurationSurface) Load(ctx context.Context) error {
	ext, err := s.bridge.Context(ctx)
	if err != nil {
		return &TransportError{Op: "loading context", Err: err}
	}

	cfg := fieldconfig.Default()
	if ext.Configuration != nil {
		cfg = *ext.Configuration
	}

	s.mu.Lock()
	s.loaded = cfg
	s.jql = cfg.JQL
	s.displayName = cfg.DisplayName
	s.ready = true
	s.mu.Unlock()

	s.validator.Trigger(cfg.JQL)
	return nil
}

// SetJQL updates the query expression and schedules its validation.
func (s *ConfigurationSurface) SetJQL(expression string) {
	s.mu.Lock()
	s.jql = expression
	s.mu.Unlock()
	s.validator.Schedule(expression)
}

func (s *ConfigurationSurface) SetDisplayName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.displayName = name
}

// Validation returns the validator's committed state.
func (s *ConfigurationSurface) Validation() validator.State {
	return s.validator.State()
}

// State returns a snapshot of the form.
func (s *ConfigurationSurface) State() ConfigurationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ConfigurationState{
		JQL:         s.jql,
		DisplayName: s.displayName,
		Validation:  s.validator.State(),
		Loaded:      s.ready,
		Submitting:  s.submitting,
		Err:         s.err,
	}
}

// Submit persists the form through the host once its query expression is
// known to be valid. Blank fields fall back to the loaded configuration. When
// the committed validation does not cover the current expression, a pass is
// run synchronously first. Returns an error wrapping ErrInvalidQuery when the
// expression is rejected, or a *TransportError when the host fails; the form
// keeps its values in both cases.
func (s *ConfigurationSurface) Submit(ctx context.Context) (fieldconfig.Configuration, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return fieldconfig.Configuration{}, errSubmitInProgress
	}
	s.submitting = true
	s.err = ""
	cfg := fieldconfig.Configuration{JQL: s.jql, DisplayName: s.displayName}
	if strings.TrimSpace(cfg.JQL) == "" {
		cfg.JQL = s.loaded.JQL
	}
	if strings.TrimSpace(cfg.DisplayName) == "" {
		cfg.DisplayName = s.loaded.DisplayName
	}
	s.mu.Unlock()

	err := s.submit(ctx, cfg)

	s.mu.Lock()
	s.submitting = false
	if err != nil {
		s.err = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		return fieldconfig.Configuration{}, err
	}
	return cfg, nil
}

func (s *ConfigurationSurface) submit(ctx context.Context, cfg fieldconfig.Configuration) error {
	st := s.validator.State()
	if st.Expression != cfg.JQL || (st.Phase != validator.Valid && st.Phase != validator.Invalid) {
		s.validator.CancelPending()
		st = s.validator.Validate(ctx, cfg.JQL)
	}

	switch st.Phase {
	case validator.Valid:
	case validator.Invalid:
		return fmt.Errorf("%w: %s", ErrInvalidQuery, st.Reason)
	default:
		return fmt.Errorf("%w: query is required", ErrInvalidQuery)
	}

	if err := s.bridge.Submit(ctx, ConfigurationSubmission{Configuration: cfg}); err != nil {
		s.logger.Error("submitting configuration", "error", err)
		return &TransportError{Op: "saving configuration", Err: err}
	}
	s.logger.Info("configuration saved", "jql", cfg.JQL, "display_name", cfg.DisplayName)
	return nil
}

// Close cancels pending and in-flight validation.
func (s *ConfigurationSurface) Close() {
	s.validator.Close()
}
