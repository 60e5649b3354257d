package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/guildboard/internal/model"
)

func newCSRFHandler(t *testing.T) (http.Handler, *bool) {
	t.Helper()
	called := false
	mw := NewCSRFMiddleware(CSRFConfig{
		AllowedOrigin: "http://localhost:3000",
		Logger:        slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
	})
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})), &called
}

func TestCSRFMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantCalled bool
	}{
		{"GETはオリジン不問", http.MethodGet, "https://evil.example.com", http.StatusOK, true},
		{"Originなしは許可", http.MethodPost, "", http.StatusOK, true},
		{"許可オリジン", http.MethodPost, "http://localhost:3000", http.StatusOK, true},
		{"同一ホスト", http.MethodPost, "http://example.com", http.StatusOK, true},
		{"他オリジン", http.MethodPost, "https://evil.example.com", http.StatusForbidden, false},
		{"不正なOrigin", http.MethodPost, "null", http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, called := newCSRFHandler(t)

			// httptest.NewRequestのHostはexample.com
			req := httptest.NewRequest(tt.method, "/api/auth/signout", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if *called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", *called, tt.wantCalled)
			}
		})
	}
}

func TestCSRFMiddleware_ForbiddenBody(t *testing.T) {
	handler, _ := newCSRFHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/data/init", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeForbiddenOrigin {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeForbiddenOrigin)
	}
}
