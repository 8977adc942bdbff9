package validator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/relfield/internal/jira"
)

type mockParser struct {
	mu      sync.Mutex
	queries []string
	parseFn func(ctx context.Context, query string) ([]jira.ParsedQuery, error)
}

func (m *mockParser) ParseJQL(ctx context.Context, queries ...string) ([]jira.ParsedQuery, error) {
	m.mu.Lock()
	m.queries = append(m.queries, queries...)
	m.mu.Unlock()
	return m.parseFn(ctx, queries[0])
}

func (m *mockParser) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

func validParser() *mockParser {
	return &mockParser{parseFn: func(_ context.Context, q string) ([]jira.ParsedQuery, error) {
		return []jira.ParsedQuery{{Query: q}}, nil
	}}
}

type mockRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *mockRecorder) ObserveValidation(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func TestValidate_Valid(t *testing.T) {
	rec := &mockRecorder{}
	v := New(validParser(), Options{Metrics: rec})
	defer v.Close()

	st := v.Validate(context.Background(), "project = X")
	if st.Phase != Valid {
		t.Fatalf("Phase = %v, want valid", st.Phase)
	}
	if got := v.State(); got.Phase != Valid || got.Expression != "project = X" {
		t.Errorf("State() = %+v", got)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != "valid" {
		t.Errorf("recorded outcomes = %v", rec.outcomes)
	}
}

func TestValidate_InvalidUsesFirstError(t *testing.T) {
	p := &mockParser{parseFn: func(_ context.Context, q string) ([]jira.ParsedQuery, error) {
		return []jira.ParsedQuery{{Query: q, Errors: []string{"first problem", "second problem"}}}, nil
	}}
	v := New(p, Options{})
	defer v.Close()

	st := v.Validate(context.Background(), "project = ")
	if st.Phase != Invalid || st.Reason != "first problem" {
		t.Errorf("state = %+v, want invalid(first problem)", st)
	}
}

func TestValidate_TransportErrorIsInvalid(t *testing.T) {
	p := &mockParser{parseFn: func(_ context.Context, _ string) ([]jira.ParsedQuery, error) {
		return nil, errors.New("connection reset")
	}}
	v := New(p, Options{})
	defer v.Close()

	st := v.Validate(context.Background(), "project = X")
	if st.Phase != Invalid {
		t.Fatalf("Phase = %v, want invalid", st.Phase)
	}
	if !strings.Contains(st.Reason, "connection reset") {
		t.Errorf("Reason = %q", st.Reason)
	}
}

func TestValidate_EmptyResetsToIdle(t *testing.T) {
	p := validParser()
	v := New(p, Options{})
	defer v.Close()

	v.Validate(context.Background(), "project = X")
	st := v.Validate(context.Background(), "   ")
	if st.Phase != Idle {
		t.Errorf("Phase = %v, want idle", st.Phase)
	}
	if v.State().Phase != Idle {
		t.Errorf("State().Phase = %v, want idle", v.State().Phase)
	}
	if got := p.calls(); len(got) != 1 {
		t.Errorf("parser called %d times, want 1 (blank must not be sent)", len(got))
	}
}

func TestSchedule_OnlyFinalExpressionIsValidated(t *testing.T) {
	p := validParser()
	v := New(p, Options{Debounce: 30 * time.Millisecond})
	defer v.Close()

	for _, expr := range []string{"p", "pr", "pro", "project", "project = X"} {
		v.Schedule(expr)
		time.Sleep(5 * time.Millisecond)
	}
	if !v.Pending() {
		t.Fatal("Pending() = false inside the debounce window")
	}

	deadline := time.Now().Add(time.Second)
	for v.State().Phase != Valid && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	got := p.calls()
	if len(got) != 1 || got[0] != "project = X" {
		t.Fatalf("parser calls = %q, want exactly [project = X]", got)
	}
	if v.State().Expression != "project = X" {
		t.Errorf("Expression = %q", v.State().Expression)
	}
}

func TestValidate_StaleResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	p := &mockParser{parseFn: func(_ context.Context, q string) ([]jira.ParsedQuery, error) {
		if q == "slow" {
			close(started)
			<-release
			return []jira.ParsedQuery{{Query: q, Errors: []string{"slow is invalid"}}}, nil
		}
		return []jira.ParsedQuery{{Query: q}}, nil
	}}
	v := New(p, Options{})
	defer v.Close()

	slowDone := make(chan State)
	go func() {
		slowDone <- v.Validate(context.Background(), "slow")
	}()
	<-started

	fast := v.Validate(context.Background(), "fast")
	if fast.Phase != Valid {
		t.Fatalf("fast Phase = %v, want valid", fast.Phase)
	}

	close(release)
	slow := <-slowDone
	if slow.Phase != Invalid {
		t.Errorf("slow pass outcome = %v, want invalid", slow.Phase)
	}

	st := v.State()
	if st.Phase != Valid || st.Expression != "fast" {
		t.Errorf("State() = %+v, stale response overwrote the latest", st)
	}
}

func TestListener_DeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []State
	v := New(validParser(), Options{Listener: func(st State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
	}})
	defer v.Close()

	v.Validate(context.Background(), "project = X")

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("listener called %d times, want 2", len(seen))
	}
	if seen[0].Phase != Validating || seen[1].Phase != Valid {
		t.Errorf("phases = %v, %v; want validating, valid", seen[0].Phase, seen[1].Phase)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].Epoch < seen[i-1].Epoch {
			t.Errorf("epoch went backwards: %d after %d", seen[i].Epoch, seen[i-1].Epoch)
		}
	}
}

func TestTrigger_RunsInBackground(t *testing.T) {
	v := New(validParser(), Options{})
	defer v.Close()

	v.Trigger("project = X")

	deadline := time.Now().Add(time.Second)
	for v.State().Phase != Valid && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if v.State().Phase != Valid {
		t.Errorf("Phase = %v, want valid", v.State().Phase)
	}
}

func TestClose_CancelsScheduledValidation(t *testing.T) {
	p := validParser()
	v := New(p, Options{Debounce: 20 * time.Millisecond})

	v.Schedule("project = X")
	v.Close()
	time.Sleep(60 * time.Millisecond)

	if got := p.calls(); len(got) != 0 {
		t.Errorf("parser called after Close: %q", got)
	}
	if st := v.Validate(context.Background(), "project = Y"); st.Phase != Idle {
		t.Errorf("Validate after Close = %+v, want frozen idle state", st)
	}
}

func TestClose_AbortsInFlightBackgroundPass(t *testing.T) {
	p := &mockParser{parseFn: func(ctx context.Context, _ string) ([]jira.ParsedQuery, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	v := New(p, Options{})

	v.Trigger("project = X")
	deadline := time.Now().Add(time.Second)
	for len(p.calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		v.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return while a pass was in flight")
	}
}

func TestPhaseString(t *testing.T) {
	for p, want := range map[Phase]string{Idle: "idle", Validating: "validating", Valid: "valid", Invalid: "invalid", Phase(9): "unknown"} {
		if p.String() != want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(p), p.String(), want)
		}
	}
}
