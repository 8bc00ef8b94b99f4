package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/health/live", http.StatusOK, slog.LevelDebug},
		{"/health/ready", http.StatusOK, slog.LevelDebug},
		{"/metrics", http.StatusOK, slog.LevelDebug},
		{"/api/v1/templates", http.StatusOK, slog.LevelInfo},
		{"/api/v1/templates", http.StatusNotFound, slog.LevelWarn},
		{"/health/ready", http.StatusServiceUnavailable, slog.LevelError},
		{"/api/v1/checklists/x", http.StatusInternalServerError, slog.LevelError},
	}
	for _, tc := range tests {
		if got := requestLevel(tc.path, tc.status); got != tc.want {
			t.Errorf("requestLevel(%q, %d) = %v, ожидается %v", tc.path, tc.status, got, tc.want)
		}
	}
}

func TestRequestLogger_PassesThroughResponse(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := RequestLogger(logger)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("тело ответа"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("статус = %d, ожидается %d", rec.Code, http.StatusTeapot)
	}
	if rec.Body.String() != "тело ответа" {
		t.Errorf("тело = %q, обёртка исказила ответ", rec.Body.String())
	}
}
