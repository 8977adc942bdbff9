package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/relfield/internal/fieldconfig"
	"github.com/kalambet/relfield/internal/metrics"
)

const testToken = "test-token-12345"

type mockResolver struct {
	fieldIDs []string
	resultFn func(fieldID string) (fieldconfig.Result, error)
}

func (m *mockResolver) GetFieldConfiguration(_ context.Context, fieldID string) (fieldconfig.Result, error) {
	m.fieldIDs = append(m.fieldIDs, fieldID)
	if m.resultFn != nil {
		return m.resultFn(fieldID)
	}
	return fieldconfig.Result{Success: true, Configuration: &fieldconfig.Configuration{JQL: "project = X", DisplayName: "Related"}}, nil
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestHealth(t *testing.T) {
	h := NewHandler(Deps{Resolver: &mockResolver{}, Token: testToken})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Body.String(); got != `{"status":"ok"}` {
		t.Errorf("body = %q", got)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.ObserveResolverCall("getFieldConfiguration", true)
	h := NewHandler(Deps{Resolver: &mockResolver{}, Token: testToken, Metrics: m})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "relfield_resolver_calls_total") {
		t.Error("metrics output does not contain relfield_resolver_calls_total")
	}
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	h := NewHandler(Deps{Resolver: &mockResolver{}, Token: testToken})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestResolver_GetFieldConfiguration(t *testing.T) {
	res := &mockResolver{}
	h := NewHandler(Deps{Resolver: res, Token: testToken})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/resolver/getFieldConfiguration", `{"fieldId":"customfield_1"}`, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}
	var got fieldconfig.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if !got.Success || got.Configuration == nil || got.Configuration.JQL != "project = X" {
		t.Errorf("result = %+v", got)
	}
	if len(res.fieldIDs) != 1 || res.fieldIDs[0] != "customfield_1" {
		t.Errorf("resolver called with %v", res.fieldIDs)
	}
}

func TestResolver_InBandFailureIsOK(t *testing.T) {
	res := &mockResolver{resultFn: func(string) (fieldconfig.Result, error) {
		return fieldconfig.Result{Success: false, Error: "jira returned 403"}, nil
	}}
	h := NewHandler(Deps{Resolver: res, Token: testToken})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/resolver/getFieldConfiguration", `{"fieldId":"f"}`, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Body.String(); !strings.Contains(got, `"success":false`) || !strings.Contains(got, "jira returned 403") {
		t.Errorf("body = %s", got)
	}
}

func TestResolver_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		token    string
		wantCode int
	}{
		{"missing token", "/resolver/getFieldConfiguration", `{"fieldId":"f"}`, "", http.StatusUnauthorized},
		{"wrong token", "/resolver/getFieldConfiguration", `{"fieldId":"f"}`, "nope", http.StatusUnauthorized},
		{"unknown function", "/resolver/deleteEverything", `{}`, testToken, http.StatusNotFound},
		{"invalid body", "/resolver/getFieldConfiguration", `{`, testToken, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &mockResolver{}
			h := NewHandler(Deps{Resolver: res, Token: testToken})

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodPost, tt.path, tt.body, tt.token))

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body = %s", rr.Code, tt.wantCode, rr.Body.String())
			}
			var envelope struct {
				Error struct {
					Message string `json:"message"`
					Type    string `json:"type"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil || envelope.Error.Message == "" {
				t.Errorf("body is not an error envelope: %s", rr.Body.String())
			}
			if len(res.fieldIDs) != 0 {
				t.Error("resolver called for a rejected request")
			}
		})
	}
}

func TestBearerAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		token    string
		header   string
		wantCode int
	}{
		{"valid", "s3cret", "Bearer s3cret", http.StatusNoContent},
		{"lowercase scheme", "s3cret", "bearer s3cret", http.StatusNoContent},
		{"basic scheme", "s3cret", "Basic s3cret", http.StatusUnauthorized},
		{"no scheme", "s3cret", "s3cret", http.StatusUnauthorized},
		{"empty server token", "", "Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/resolver/getFieldConfiguration", nil)
			req.Header.Set("Authorization", tt.header)
			rr := httptest.NewRecorder()
			BearerAuth(tt.token)(ok).ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}
