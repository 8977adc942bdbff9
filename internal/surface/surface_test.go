package surface

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/relfield/internal/fieldconfig"
	"github.com/kalambet/relfield/internal/jira"
	"github.com/kalambet/relfield/internal/search"
	"github.com/kalambet/relfield/internal/validator"
)

type mockBridge struct {
	mu        sync.Mutex
	ext       ExtensionContext
	ctxErr    error
	submitErr error
	submitted []any
}

func (m *mockBridge) Context(context.Context) (ExtensionContext, error) {
	return m.ext, m.ctxErr
}

func (m *mockBridge) Submit(_ context.Context, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return m.submitErr
	}
	m.submitted = append(m.submitted, payload)
	return nil
}

func (m *mockBridge) payloads() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.submitted...)
}

type mockParser struct {
	mu      sync.Mutex
	queries []string
	parseFn func(query string) ([]jira.ParsedQuery, error)
}

func (m *mockParser) ParseJQL(_ context.Context, queries ...string) ([]jira.ParsedQuery, error) {
	m.mu.Lock()
	m.queries = append(m.queries, queries...)
	m.mu.Unlock()
	return m.parseFn(queries[0])
}

func (m *mockParser) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// parserRejecting treats every query containing "bad" as invalid.
func parserRejecting() *mockParser {
	return &mockParser{parseFn: func(q string) ([]jira.ParsedQuery, error) {
		if q == "bad" || q == "project = bad" {
			return []jira.ParsedQuery{{Query: q, Errors: []string{"Field 'bad' does not exist."}}}, nil
		}
		return []jira.ParsedQuery{{Query: q}}, nil
	}}
}

type mockResolver struct {
	calls int
	res   fieldconfig.Result
	err   error
}

func (m *mockResolver) GetFieldConfiguration(context.Context, string) (fieldconfig.Result, error) {
	m.calls++
	return m.res, m.err
}

type mockSearcher struct {
	mu       sync.Mutex
	requests []jira.SearchRequest
	issues   []jira.Issue
}

func (m *mockSearcher) Search(_ context.Context, req jira.SearchRequest) ([]jira.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.issues, nil
}

func (m *mockSearcher) jqls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.requests {
		out = append(out, r.JQL)
	}
	return out
}

type mockFetcher struct {
	issue jira.Issue
	err   error
}

func (m *mockFetcher) GetIssue(context.Context, string) (jira.Issue, error) {
	return m.issue, m.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func configured(jql, name string) fieldconfig.Result {
	return fieldconfig.Result{Success: true, Configuration: &fieldconfig.Configuration{JQL: jql, DisplayName: name}}
}

// --- configuration surface ---

func TestConfigurationSurface_LoadDefaults(t *testing.T) {
	p := parserRejecting()
	s := NewConfigurationSurface(&mockBridge{}, p, validator.Options{})
	defer s.Close()

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	st := s.State()
	if st.JQL != fieldconfig.DefaultJQL || st.DisplayName != fieldconfig.DefaultDisplayName {
		t.Errorf("state = %+v, want defaults", st)
	}
	waitFor(t, func() bool { return s.Validation().Phase == validator.Valid })
	if got := p.calls(); len(got) != 1 || got[0] != fieldconfig.DefaultJQL {
		t.Errorf("initial validation calls = %q", got)
	}
}

func TestConfigurationSurface_SubmitInvalidNeverPersists(t *testing.T) {
	b := &mockBridge{ext: ExtensionContext{Configuration: &fieldconfig.Configuration{JQL: "bad", DisplayName: "X"}}}
	s := NewConfigurationSurface(b, parserRejecting(), validator.Options{})
	defer s.Close()

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	waitFor(t, func() bool { return s.Validation().Phase == validator.Invalid })

	_, err := s.Submit(context.Background())
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("Submit error = %v, want ErrInvalidQuery", err)
	}
	if len(b.payloads()) != 0 {
		t.Errorf("persisted %d payloads for an invalid query", len(b.payloads()))
	}
	if s.State().Err == "" {
		t.Error("error not surfaced in state")
	}
}

func TestConfigurationSurface_SubmitDuringDebounceValidatesFirst(t *testing.T) {
	b := &mockBridge{}
	p := parserRejecting()
	s := NewConfigurationSurface(b, p, validator.Options{Debounce: time.Hour})
	defer s.Close()

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	waitFor(t, func() bool { return s.Validation().Phase == validator.Valid })

	// The debounce never fires; committed state still refers to the default query.
	s.SetJQL("project = bad")
	_, err := s.Submit(context.Background())
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("Submit error = %v, want ErrInvalidQuery", err)
	}
	if len(b.payloads()) != 0 {
		t.Error("persisted before the new expression was validated")
	}

	s.SetJQL("project = good")
	cfg, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if cfg.JQL != "project = good" {
		t.Errorf("saved JQL = %q", cfg.JQL)
	}
	want := []any{ConfigurationSubmission{Configuration: fieldconfig.Configuration{JQL: "project = good", DisplayName: fieldconfig.DefaultDisplayName}}}
	if diff := cmp.Diff(want, b.payloads()); diff != "" {
		t.Errorf("payloads mismatch (-want +got):\n%s", diff)
	}
	if calls := p.calls(); calls[len(calls)-1] != "project = good" {
		t.Errorf("last validated = %q", calls[len(calls)-1])
	}
	if s.validator.Pending() {
		t.Error("debounced validation still pending after submit")
	}
}

func TestConfigurationSurface_SubmitIdleTriggersValidation(t *testing.T) {
	b := &mockBridge{ext: ExtensionContext{Configuration: &fieldconfig.Configuration{JQL: "project = X", DisplayName: "Related"}}}
	p := parserRejecting()
	s := NewConfigurationSurface(b, p, validator.Options{})
	defer s.Close()

	// Not loaded through Load: the validator is Idle.
	s.mu.Lock()
	s.loaded = *b.ext.Configuration
	s.jql = "project = X"
	s.mu.Unlock()

	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := p.calls(); len(got) != 1 || got[0] != "project = X" {
		t.Errorf("validation calls = %q, want one for project = X", got)
	}
	if len(b.payloads()) != 1 {
		t.Errorf("payloads = %d, want 1", len(b.payloads()))
	}
}

func TestConfigurationSurface_BlankFieldsFallBack(t *testing.T) {
	b := &mockBridge{ext: ExtensionContext{Configuration: &fieldconfig.Configuration{JQL: "project = X", DisplayName: "Related"}}}
	s := NewConfigurationSurface(b, parserRejecting(), validator.Options{Debounce: time.Hour})
	defer s.Close()

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.SetJQL("  ")
	s.SetDisplayName("")

	cfg, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if diff := cmp.Diff(fieldconfig.Configuration{JQL: "project = X", DisplayName: "Related"}, cfg); diff != "" {
		t.Errorf("saved configuration mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigurationSurface_TransportFailureBlocksSave(t *testing.T) {
	b := &mockBridge{}
	p := &mockParser{parseFn: func(string) ([]jira.ParsedQuery, error) {
		return nil, errors.New("network unreachable")
	}}
	s := NewConfigurationSurface(b, p, validator.Options{Debounce: time.Hour})
	defer s.Close()
	s.SetJQL("project = X")

	_, err := s.Submit(context.Background())
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("Submit error = %v, want ErrInvalidQuery", err)
	}
	if len(b.payloads()) != 0 {
		t.Error("persisted despite failed validation")
	}
}

func TestConfigurationSurface_PersistFailureKeepsForm(t *testing.T) {
	b := &mockBridge{submitErr: errors.New("disk full")}
	s := NewConfigurationSurface(b, parserRejecting(), validator.Options{Debounce: time.Hour})
	defer s.Close()
	s.SetJQL("project = X")
	s.SetDisplayName("Mine")

	_, err := s.Submit(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Submit error = %v, want *TransportError", err)
	}
	st := s.State()
	if st.JQL != "project = X" || st.DisplayName != "Mine" {
		t.Errorf("form not kept: %+v", st)
	}
	if st.Submitting {
		t.Error("Submitting left set")
	}
}

// --- edit surface ---

func TestEditSurface_NotConfiguredIssuesNoSearch(t *testing.T) {
	for name, res := range map[string]fieldconfig.Result{
		"no configuration": {Success: true, Configuration: &fieldconfig.Configuration{}},
		"blank jql":        configured("   ", "X"),
		"resolver failure": {Success: false, Error: "forbidden"},
	} {
		t.Run(name, func(t *testing.T) {
			searcher := &mockSearcher{}
			b := &mockBridge{ext: ExtensionContext{FieldID: "F"}}
			s := NewEditSurface(b, fieldconfig.NewStore(&mockResolver{res: res}), searcher, search.Options{Debounce: time.Millisecond})
			defer s.Close()

			err := s.Load(context.Background())
			if !errors.Is(err, fieldconfig.ErrNotConfigured) {
				t.Fatalf("Load error = %v, want ErrNotConfigured", err)
			}
			if st := s.State(); st.Status != EditNotConfigured {
				t.Errorf("Status = %v, want not_configured", st.Status)
			}

			s.Input("bug")
			time.Sleep(20 * time.Millisecond)
			if got := searcher.jqls(); len(got) != 0 {
				t.Errorf("issued %d searches, want 0", len(got))
			}
		})
	}
}

func TestEditSurface_LoadAndSearch(t *testing.T) {
	searcher := &mockSearcher{issues: []jira.Issue{{ID: "10001", Key: "X-1", Fields: jira.IssueFields{Summary: "bug", IssueType: &jira.IssueType{Name: "Bug"}}}}}
	b := &mockBridge{ext: ExtensionContext{FieldID: "F", FieldValue: "10000"}}
	s := NewEditSurface(b, fieldconfig.NewStore(&mockResolver{res: configured("project = X", "Related")}), searcher, search.Options{Debounce: 10 * time.Millisecond})
	defer s.Close()

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	st := s.State()
	if st.Status != EditReady || st.Selection.ID != "10000" {
		t.Errorf("state after load = %+v", st)
	}

	s.Input("bug")
	waitFor(t, func() bool { return len(searcher.jqls()) == 2 && !s.State().Search.Loading })

	want := []string{"project = X", `(project = X) AND (summary ~ "bug*" OR key ~ "bug*")`}
	if diff := cmp.Diff(want, searcher.jqls()); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}
	for _, r := range searcher.requests {
		if r.MaxResults != 50 {
			t.Errorf("MaxResults = %d, want 50", r.MaxResults)
		}
	}

	opts := s.State().Search.Options
	if len(opts) != 1 {
		t.Fatalf("options = %+v", opts)
	}
	s.Select(SelectionFromItem(opts[0]))
	value, err := s.Submit(context.Background())
	if err != nil || value != "10001" {
		t.Fatalf("Submit = %q, %v", value, err)
	}

	s.Clear()
	value, err = s.Submit(context.Background())
	if err != nil || value != "" {
		t.Fatalf("Submit after Clear = %q, %v", value, err)
	}
	if diff := cmp.Diff([]any{"10001", ""}, b.payloads()); diff != "" {
		t.Errorf("payloads mismatch (-want +got):\n%s", diff)
	}
}

func TestEditSurface_CloseStopsPendingSearch(t *testing.T) {
	searcher := &mockSearcher{}
	b := &mockBridge{ext: ExtensionContext{FieldID: "F"}}
	s := NewEditSurface(b, fieldconfig.NewStore(&mockResolver{res: configured("project = X", "")}), searcher, search.Options{Debounce: 20 * time.Millisecond})

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Input("late")
	s.Close()
	time.Sleep(50 * time.Millisecond)

	if got := searcher.jqls(); len(got) != 1 {
		t.Errorf("queries = %q, want only the initial search", got)
	}
}

// --- view surface ---

func TestViewSurface(t *testing.T) {
	okIssue := jira.Issue{ID: "10001", Key: "X-1", Fields: jira.IssueFields{
		Summary:   "Login fails",
		IssueType: &jira.IssueType{Name: "Bug", IconURL: "https://example.test/bug.png"},
	}}

	tests := []struct {
		name     string
		bridge   *mockBridge
		resolver *mockResolver
		fetcher  *mockFetcher
		want     ViewState
	}{
		{
			name:     "empty value",
			bridge:   &mockBridge{ext: ExtensionContext{FieldID: "F"}},
			resolver: &mockResolver{res: configured("project = X", "Blocks")},
			fetcher:  &mockFetcher{},
			want:     ViewState{Status: ViewEmpty, Heading: "Blocks"},
		},
		{
			name:     "success",
			bridge:   &mockBridge{ext: ExtensionContext{FieldID: "F", FieldValue: "10001", SiteURL: "https://acme.atlassian.net/"}},
			resolver: &mockResolver{res: configured("project = X", "")},
			fetcher:  &mockFetcher{issue: okIssue},
			want: ViewState{Status: ViewSuccess, Heading: fieldconfig.DefaultDisplayName, Value: "10001", Issue: &IssueView{
				Key: "X-1", Summary: "Login fails", TypeName: "Bug", IconURL: "https://example.test/bug.png",
				URL: "https://acme.atlassian.net/browse/X-1",
			}},
		},
		{
			name:     "not found",
			bridge:   &mockBridge{ext: ExtensionContext{FieldID: "F", FieldValue: "10001"}},
			resolver: &mockResolver{err: errors.New("resolver down")},
			fetcher:  &mockFetcher{err: jira.ErrNotFound},
			want:     ViewState{Status: ViewError, Heading: fieldconfig.DefaultDisplayName, Value: "10001", Err: "issue not found"},
		},
		{
			name:     "transport failure",
			bridge:   &mockBridge{ext: ExtensionContext{FieldID: "F", FieldValue: "10001"}},
			resolver: &mockResolver{res: fieldconfig.Result{Success: false, Error: "nope"}},
			fetcher:  &mockFetcher{err: errors.New("connection refused")},
			want:     ViewState{Status: ViewError, Heading: fieldconfig.DefaultDisplayName, Value: "10001", Err: "error loading issue details"},
		},
		{
			name:     "context failure",
			bridge:   &mockBridge{ctxErr: errors.New("host gone")},
			resolver: &mockResolver{},
			fetcher:  &mockFetcher{},
			want:     ViewState{Status: ViewError, Heading: fieldconfig.DefaultDisplayName, Err: "error loading issue details"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewViewSurface(tt.bridge, tt.resolver, tt.fetcher)
			got := v.Load(context.Background())
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("state mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
