package email

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_HandleSend(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.delay = func() time.Duration { return 0 }

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "sent", body: `{"to":"ana@example.com","subject":"Order received","body":"hi"}`, wantStatus: http.StatusOK},
		{name: "missing recipient", body: `{"subject":"Order received"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "missing subject", body: `{"to":"ana@example.com"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "invalid body", body: `nope`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleSend(rec, httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}
