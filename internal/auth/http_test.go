// ABOUTME: Tests for bearer-token HTTP middleware
// ABOUTME: Covers header parsing, optional auth pass-through and required auth rejection

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		token   string
		wantErr bool
	}{
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
		{"Bearer abc.def.ghi", "abc.def.ghi", false},
	}

	for _, tt := range tests {
		token, errMsg := extractBearerToken(tt.header)
		if token != tt.token {
			t.Errorf("extractBearerToken(%q) token = %q, want %q", tt.header, token, tt.token)
		}
		if (errMsg != "") != tt.wantErr {
			t.Errorf("extractBearerToken(%q) errMsg = %q", tt.header, errMsg)
		}
	}
}

func subjectEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(SubjectFromContext(r.Context())))
	})
}

func TestOptionalMiddleware(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	valid, err := verifier.Generate("alice", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	handler := OptionalMiddleware(verifier, nil)(subjectEcho())

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"anonymous", "", ""},
		{"invalid token", "Bearer nope", ""},
		{"valid token", "Bearer " + valid, "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if got := rec.Body.String(); got != tt.want {
				t.Errorf("subject = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequireMiddleware(t *testing.T) {
	handler := RequireMiddleware()(subjectEcho())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithSubject(req.Context(), "bob"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "bob" {
		t.Errorf("authenticated response = %d %q", rec.Code, rec.Body.String())
	}
}
