package surface

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kalambet/relfield/internal/fieldconfig"
	"github.com/kalambet/relfield/internal/search"
)

// EditStatus is the lifecycle status of an edit surface.
type EditStatus int

const (
	EditLoading EditStatus = iota
	EditNotConfigured
	EditReady
	EditFailed
)

func (s EditStatus) String() string {
	switch s {
	case EditLoading:
		return "loading"
	case EditNotConfigured:
		return "not_configured"
	case EditReady:
		return "ready"
	case EditFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Selection is the picked issue. An empty ID means nothing is selected.
type Selection struct {
	ID    string
	Label string
}

// SelectionFromItem converts a search option into a selection.
func SelectionFromItem(item search.Item) Selection {
	return Selection{ID: item.ID, Label: item.Label}
}

// EditState is the visible state of the edit surface.
type EditState struct {
	Status        EditStatus
	Configuration fieldconfig.Configuration
	Selection     Selection
	Search        search.Snapshot
	Err           string
}

// EditSurface is the issue picker: a debounced typeahead over the configured
// query expression.
type EditSurface struct {
	bridge      Bridge
	configs     *fieldconfig.Store
	coordinator *search.Coordinator
	logger      *slog.Logger

	mu        sync.Mutex
	status    EditStatus
	cfg       fieldconfig.Configuration
	selection Selection
	err       string
}

// NewEditSurface creates an edit surface. Configurations are loaded through
// configs; searches go to searcher.
func NewEditSurface(bridge Bridge, configs *fieldconfig.Store, searcher search.Searcher, opts search.Options) *EditSurface {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EditSurface{
		bridge:      bridge,
		configs:     configs,
		coordinator: search.New(searcher, opts),
		logger:      logger,
	}
}

// Load reads the host context and the field configuration, then runs the
// initial empty-term search. A field without a query expression ends in
// EditNotConfigured and no search is issued; the returned error then wraps
// fieldconfig.ErrNotConfigured.
func (s *EditSurface) Load(ctx context.Context) error {
	ext, err := s.bridge.Context(ctx)
	if err != nil {
		s.fail(err.Error())
		return &TransportError{Op: "loading context", Err: err}
	}

	cfg, err := s.configs.Load(ctx, ext.FieldID)
	if err != nil {
		s.mu.Lock()
		s.status = EditNotConfigured
		s.err = err.Error()
		s.mu.Unlock()
		s.logger.Warn("field has no query configured", "field_id", ext.FieldID)
		return err
	}

	s.mu.Lock()
	s.status = EditReady
	s.cfg = cfg
	if ext.FieldValue != "" {
		s.selection = Selection{ID: ext.FieldValue, Label: ext.FieldValue}
	}
	s.mu.Unlock()

	if _, err := s.coordinator.Search(ctx, cfg.JQL, ""); err != nil && !errors.Is(err, search.ErrSuperseded) {
		s.logger.Warn("initial search failed", "field_id", ext.FieldID, "error", err)
	}
	return nil
}

// Input schedules a search for term. Ignored until the surface is ready.
func (s *EditSurface) Input(term string) {
	s.mu.Lock()
	if s.status != EditReady {
		s.mu.Unlock()
		return
	}
	base := s.cfg.JQL
	s.mu.Unlock()
	s.coordinator.Schedule(base, term)
}

// Search runs a search for term immediately and waits for it.
func (s *EditSurface) Search(ctx context.Context, term string) ([]search.Item, error) {
	s.mu.Lock()
	if s.status != EditReady {
		s.mu.Unlock()
		return nil, fieldconfig.ErrNotConfigured
	}
	base := s.cfg.JQL
	s.mu.Unlock()
	return s.coordinator.Search(ctx, base, term)
}

func (s *EditSurface) Select(sel Selection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = sel
}

func (s *EditSurface) Clear() {
	s.Select(Selection{})
}

// Submit hands the selected issue id, or "" when cleared, to the host.
func (s *EditSurface) Submit(ctx context.Context) (string, error) {
	s.mu.Lock()
	value := s.selection.ID
	s.mu.Unlock()

	if err := s.bridge.Submit(ctx, value); err != nil {
		s.logger.Error("submitting field value", "error", err)
		return "", &TransportError{Op: "saving value", Err: err}
	}
	return value, nil
}

// State returns a snapshot of the surface.
func (s *EditSurface) State() EditState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return EditState{
		Status:        s.status,
		Configuration: s.cfg,
		Selection:     s.selection,
		Search:        s.coordinator.Snapshot(),
		Err:           s.err,
	}
}

// Close cancels pending and in-flight searches.
func (s *EditSurface) Close() {
	s.coordinator.Close()
}

func (s *EditSurface) fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = EditFailed
	s.err = msg
}
