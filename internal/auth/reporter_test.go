package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReporterMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		tokens []string
		header map[string]string
		want   int
	}{
		{"open when unconfigured", nil, nil, http.StatusNoContent},
		{"blank tokens keep it open", []string{" ", ""}, nil, http.StatusNoContent},
		{"missing token", []string{"s3cret"}, nil, http.StatusUnauthorized},
		{"wrong token", []string{"s3cret"}, map[string]string{"Authorization": "Bearer nope"}, http.StatusForbidden},
		{"bearer token", []string{"a", "s3cret"}, map[string]string{"Authorization": "Bearer s3cret"}, http.StatusNoContent},
		{"header token", []string{"s3cret"}, map[string]string{"X-Reporter-Token": "s3cret"}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := ReporterMiddleware(NewReporterConfig(tc.tokens))(ok)
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
