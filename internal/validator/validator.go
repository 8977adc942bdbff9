package validator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/relfield/internal/debounce"
	"github.com/kalambet/relfield/internal/jira"
	"github.com/kalambet/relfield/internal/metrics"
)

// DefaultDebounce is the keystroke quiet period before a validation is issued.
const DefaultDebounce = 500 * time.Millisecond

// Phase is the validation phase of a query expression.
type Phase int

const (
	Idle Phase = iota
	Validating
	Valid
	Invalid
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// State is a snapshot of the validator. Expression is the query the phase
// refers to; Epoch identifies the request that produced it.
type State struct {
	Phase      Phase
	Reason     string
	Expression string
	Epoch      uint64
}

// Parser validates JQL remotely. Implemented by *jira.Client.
type Parser interface {
	ParseJQL(ctx context.Context, queries ...string) ([]jira.ParsedQuery, error)
}

// Recorder receives committed validation outcomes. Implemented by *metrics.Metrics.
type Recorder interface {
	ObserveValidation(outcome string)
}

// Options configures a Validator. Zero values select defaults.
type Options struct {
	Debounce time.Duration
	// Timeout bounds each remote parse call; 0 means no extra timeout.
	Timeout  time.Duration
	Listener func(State)
	Metrics  Recorder
	Logger   *slog.Logger
}

// Validator is a debounced JQL validation state machine. Only the most
// recently issued request may change its state; responses to superseded
// requests are dropped.
type Validator struct {
	parser    Parser
	debouncer *debounce.Debouncer
	epoch     debounce.Epoch
	timeout   time.Duration
	listener  func(State)
	metrics   Recorder
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	state   State
	version uint64
	closed  bool

	notifyMu     sync.Mutex
	lastNotified uint64
}

// New creates a Validator backed by parser.
func New(parser Parser, opts Options) *Validator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Validator{
		parser:    parser,
		debouncer: debounce.New(opts.Debounce),
		timeout:   opts.Timeout,
		listener:  opts.Listener,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// State returns the current state.
func (v *Validator) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Schedule validates expression once the debounce period passes without
// another call. Each call replaces the previously scheduled expression.
func (v *Validator) Schedule(expression string) {
	v.debouncer.Trigger(func() {
		v.background(expression)
	})
}

// Trigger starts a validation pass immediately, in the background.
func (v *Validator) Trigger(expression string) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.wg.Add(1)
	v.mu.Unlock()

	go func() {
		defer v.wg.Done()
		v.Validate(v.ctx, expression)
	}()
}

// Pending reports whether a scheduled validation has not been issued yet.
func (v *Validator) Pending() bool {
	return v.debouncer.Pending()
}

// CancelPending drops a scheduled validation that has not been issued yet.
func (v *Validator) CancelPending() {
	v.debouncer.Cancel()
}

// Validate runs one validation pass for expression and waits for its outcome.
// The returned State is the outcome of this pass; it is committed only if no
// newer pass was issued in the meantime. A blank expression resets to Idle.
func (v *Validator) Validate(ctx context.Context, expression string) State {
	v.mu.Lock()
	if v.closed {
		st := v.state
		v.mu.Unlock()
		return st
	}
	epoch := v.epoch.Next()

	if strings.TrimSpace(expression) == "" {
		st := State{Phase: Idle, Epoch: epoch}
		version := v.commitLocked(st)
		v.mu.Unlock()
		v.notify(st, version)
		return st
	}

	pending := State{Phase: Validating, Expression: expression, Epoch: epoch}
	version := v.commitLocked(pending)
	v.mu.Unlock()
	v.notify(pending, version)

	result := v.parse(ctx, expression)
	result.Expression = expression
	result.Epoch = epoch

	v.mu.Lock()
	committed := !v.closed && v.epoch.IsCurrent(epoch)
	if committed {
		version = v.commitLocked(result)
	}
	v.mu.Unlock()

	if !committed {
		v.logger.Debug("discarding stale validation", "epoch", epoch, "current", v.epoch.Current())
		return result
	}

	v.notify(result, version)
	if v.metrics != nil {
		outcome := metrics.OutcomeValid
		if result.Phase == Invalid {
			outcome = metrics.OutcomeInvalid
		}
		v.metrics.ObserveValidation(outcome)
	}
	return result
}

// Close cancels any scheduled validation and in-flight background passes and
// waits for them to return. The state is frozen afterwards.
func (v *Validator) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()

	v.debouncer.Stop()
	v.cancel()
	v.wg.Wait()
}

func (v *Validator) background(expression string) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.wg.Add(1)
	v.mu.Unlock()

	defer v.wg.Done()
	v.Validate(v.ctx, expression)
}

func (v *Validator) parse(ctx context.Context, expression string) State {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	parsed, err := v.parser.ParseJQL(ctx, expression)
	if err != nil {
		v.logger.Warn("jql validation request failed", "error", err)
		return State{Phase: Invalid, Reason: err.Error()}
	}
	if len(parsed) == 0 {
		return State{Phase: Invalid, Reason: "failed to validate JQL"}
	}
	if errs := parsed[0].Errors; len(errs) > 0 {
		reason := errs[0]
		if reason == "" {
			reason = "invalid JQL query"
		}
		return State{Phase: Invalid, Reason: reason}
	}
	return State{Phase: Valid}
}

func (v *Validator) commitLocked(st State) uint64 {
	v.state = st
	v.version++
	return v.version
}

// notify delivers st to the listener unless a newer state was already delivered.
func (v *Validator) notify(st State, version uint64) {
	if v.listener == nil {
		return
	}
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()
	if version <= v.lastNotified {
		return
	}
	v.lastNotified = version
	v.listener(st)
}
