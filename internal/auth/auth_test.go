package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// --- mock lookup ---

type mockSessionLookup struct {
	sessions map[string]*Principal
}

func (m *mockSessionLookup) LookupSession(ctx context.Context, token string) (*Principal, error) {
	p, ok := m.sessions[token]
	if !ok {
		return nil, errors.New("not found")
	}
	return p, nil
}

// --- Context helpers tests ---

func TestPrincipalContext_RoundTrip(t *testing.T) {
	p := &Principal{Handle: "alice", Token: "tok"}
	ctx := ContextWithPrincipal(context.Background(), p)
	got := PrincipalFromContext(ctx)
	if got == nil {
		t.Fatal("expected principal from context, got nil")
	}
	if got.Handle != "alice" {
		t.Errorf("expected handle alice, got %q", got.Handle)
	}
}

func TestPrincipalFromContext_Empty(t *testing.T) {
	if got := PrincipalFromContext(context.Background()); got != nil {
		t.Errorf("expected nil from empty context, got %+v", got)
	}
}

func TestPrincipalIs(t *testing.T) {
	var nilP *Principal
	if nilP.Is("alice") {
		t.Error("nil principal should not match any handle")
	}
	if !(&Principal{Handle: "alice"}).Is("alice") {
		t.Error("expected match")
	}
}

// --- SessionMiddleware tests ---

func TestSessionMiddleware(t *testing.T) {
	lookup := &mockSessionLookup{
		sessions: map[string]*Principal{
			"good-token": {Handle: "alice", Token: "good-token"},
		},
	}

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			t.Error("expected principal in context inside handler")
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "Bearer good-token", http.StatusOK},
		{"lowercase scheme", "bearer good-token", http.StatusOK},
		{"unknown token", "Bearer stale-token", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Token good-token", http.StatusUnauthorized},
		{"bearer only", "Bearer", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := 0
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()

			handler := SessionMiddleware(lookup, func() { failures++ })(okHandler)
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				assertJSONError(t, rr)
				if failures != 1 {
					t.Errorf("expected onFailure to run once, ran %d times", failures)
				}
			}
		})
	}
}

// assertJSONError checks that the response body contains the expected error JSON structure.
func assertJSONError(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()

	ct := rr.Header().Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if resp.Error.Code != "unauthorized" {
		t.Errorf("expected error code 'unauthorized', got %q", resp.Error.Code)
	}
	if resp.Error.Message == "" {
		t.Error("expected non-empty error message")
	}
}
