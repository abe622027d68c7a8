package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/refmarket/internal/auth"
)

func TestAuthenticate(t *testing.T) {
	jwtSvc := auth.NewJWTService("middleware-test-secret-32-characters", "")
	token, err := jwtSvc.GenerateAccessToken("ref-1")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantViewer string
	}{
		{name: "valid token", header: "Bearer " + token, wantStatus: http.StatusOK, wantViewer: "ref-1"},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, wantStatus: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var viewer string
			handler := Authenticate(jwtSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				viewer = GetViewerID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/requirements/r/responses", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if viewer != tt.wantViewer {
				t.Errorf("viewer = %q, want %q", viewer, tt.wantViewer)
			}
			if tt.wantStatus == http.StatusUnauthorized && !strings.Contains(rr.Body.String(), `"code":"auth_failed"`) {
				t.Errorf("unexpected body: %s", rr.Body.String())
			}
		})
	}
}
