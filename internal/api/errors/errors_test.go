package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteErrorHelpers(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantCode   string
	}{
		{"validation", func(w http.ResponseWriter) { ValidationError(w, "bad") }, http.StatusBadRequest, CodeValidationError},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "нет") }, http.StatusNotFound, CodeNotFound},
		{"rate limited", func(w http.ResponseWriter) { TooManyRequests(w, "slow") }, http.StatusTooManyRequests, CodeRateLimited},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "oops") }, http.StatusInternalServerError, CodeInternalError},
		{"custom", func(w http.ResponseWriter) {
			WriteError(w, http.StatusBadRequest, CodeFileTooLarge, "big")
		}, http.StatusBadRequest, CodeFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус: ожидалось %d, получено %d", tt.wantStatus, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var body errorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("ошибка декодирования: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("code: ожидалось %q, получено %q", tt.wantCode, body.Error.Code)
			}
			if body.Error.Message == "" {
				t.Error("message пустой")
			}
		})
	}
}
