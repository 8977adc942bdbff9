// Package search turns partial typeahead input into issue options. Requests
// are debounced, and responses that arrive after a newer request was issued
// are never published.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/relfield/internal/debounce"
	"github.com/kalambet/relfield/internal/jira"
	"github.com/kalambet/relfield/internal/metrics"
)

const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultPageSize = 50

	// UnknownCategory labels issues whose type was not returned.
	UnknownCategory = "Unknown Type"
)

// Fields is the projection requested for every search.
var Fields = []string{"summary", "issuetype"}

var (
	// ErrSuperseded is returned by Search when a newer request was issued
	// before this one completed; its result was not published.
	ErrSuperseded = errors.New("search superseded by a newer request")
	ErrClosed     = errors.New("search coordinator closed")
)

// Searcher runs a JQL search. Implemented by *jira.Client.
type Searcher interface {
	Search(ctx context.Context, req jira.SearchRequest) ([]jira.Issue, error)
}

// Recorder receives search outcomes. Implemented by *metrics.Metrics.
type Recorder interface {
	ObserveSearch(outcome string, d time.Duration)
}

// Item is one selectable option.
type Item struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Label    string `json:"label"`
	Category string `json:"category"`
}

// NewItem projects an issue into an option.
func NewItem(issue jira.Issue) Item {
	category := issue.TypeName()
	if category == "" {
		category = UnknownCategory
	}
	return Item{
		ID:       issue.ID,
		Key:      issue.Key,
		Label:    fmt.Sprintf("%s - %s", issue.Key, issue.Fields.Summary),
		Category: category,
	}
}

// Snapshot is the published state of the coordinator.
type Snapshot struct {
	Options []Item
	Loading bool
	// Term is the input of the request Options or Loading refer to.
	Term  string
	Epoch uint64
	Err   string
}

type Options struct {
	Debounce time.Duration
	PageSize int
	Listener func(Snapshot)
	Metrics  Recorder
	Logger   *slog.Logger
}

// Coordinator is a debounced, epoch-checked search pipeline.
type Coordinator struct {
	searcher  Searcher
	debouncer *debounce.Debouncer
	epoch     debounce.Epoch
	pageSize  int
	listener  func(Snapshot)
	metrics   Recorder
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	snap     Snapshot
	inflight context.CancelFunc
	version  uint64
	closed   bool

	notifyMu     sync.Mutex
	lastNotified uint64
}

// New creates a Coordinator backed by searcher.
func New(searcher Searcher, opts Options) *Coordinator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		searcher:  searcher,
		debouncer: debounce.New(opts.Debounce),
		pageSize:  opts.PageSize,
		listener:  opts.Listener,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		snap:      Snapshot{Options: []Item{}},
	}
}

// Snapshot returns the currently published state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneSnapshot(c.snap)
}

// Schedule searches once the debounce period passes without another call.
func (c *Coordinator) Schedule(base, term string) {
	c.debouncer.Trigger(func() {
		c.background(base, term)
	})
}

// Trigger starts a search immediately, in the background.
func (c *Coordinator) Trigger(base, term string) {
	c.debouncer.Cancel()
	c.background(base, term)
}

// Pending reports whether a scheduled search has not been issued yet.
func (c *Coordinator) Pending() bool {
	return c.debouncer.Pending()
}

// Search issues one request for the composition of base and term and waits
// for it. The options are published only if no newer request was issued in
// the meantime; otherwise ErrSuperseded is returned. On a remote error an
// empty option list is published and the error returned.
func (c *Coordinator) Search(ctx context.Context, base, term string) ([]Item, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	epoch := c.epoch.Next()
	if c.inflight != nil {
		c.inflight()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.inflight = cancel

	c.snap.Loading = true
	c.snap.Term = term
	c.snap.Epoch = epoch
	c.snap.Err = ""
	loading := cloneSnapshot(c.snap)
	version := c.commitLocked()
	c.mu.Unlock()
	c.notify(loading, version)

	start := time.Now()
	issues, err := c.searcher.Search(reqCtx, jira.SearchRequest{
		JQL:        Compose(base, term),
		MaxResults: c.pageSize,
		Fields:     Fields,
	})
	elapsed := time.Since(start)

	items := make([]Item, 0, len(issues))
	if err == nil {
		for _, issue := range issues {
			items = append(items, NewItem(issue))
		}
	}

	c.mu.Lock()
	if c.closed || !c.epoch.IsCurrent(epoch) {
		c.mu.Unlock()
		c.logger.Debug("discarding stale search", "epoch", epoch, "term", term)
		c.observe(metrics.OutcomeStale, elapsed)
		return nil, ErrSuperseded
	}
	c.inflight = nil
	c.snap.Options = items
	c.snap.Loading = false
	if err != nil {
		c.snap.Err = err.Error()
	}
	published := cloneSnapshot(c.snap)
	version = c.commitLocked()
	c.mu.Unlock()
	c.notify(published, version)

	if err != nil {
		c.logger.Warn("issue search failed", "term", term, "error", err)
		c.observe(metrics.OutcomeError, elapsed)
		return items, fmt.Errorf("searching issues: %w", err)
	}
	c.observe(metrics.OutcomePublished, elapsed)
	return items, nil
}

// Close cancels any scheduled search and in-flight requests and waits for
// background passes to return. The published state is frozen with Loading
// cleared.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	if c.inflight != nil {
		c.inflight()
		c.inflight = nil
	}
	c.snap.Loading = false
	c.mu.Unlock()

	c.debouncer.Stop()
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) background(base, term string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		// Errors are published as an empty list; superseded passes are silent.
		_, _ = c.Search(c.ctx, base, term)
	}()
}

func (c *Coordinator) observe(outcome string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.ObserveSearch(outcome, d)
	}
}

func (c *Coordinator) commitLocked() uint64 {
	c.version++
	return c.version
}

func (c *Coordinator) notify(s Snapshot, version uint64) {
	if c.listener == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if version <= c.lastNotified {
		return
	}
	c.lastNotified = version
	c.listener(s)
}

func cloneSnapshot(s Snapshot) Snapshot {
	s.Options = append([]Item(nil), s.Options...)
	if s.Options == nil {
		s.Options = []Item{}
	}
	return s
}
