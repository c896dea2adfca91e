package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestOriginPolicy tests origin matching against the configured list.
func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"exact match", []string{"http://localhost:8080"}, "http://localhost:8080", true},
		{"case insensitive", []string{"http://LocalHost:8080"}, "HTTP://localhost:8080", true},
		{"trailing path ignored", []string{"http://localhost:8080/"}, "http://localhost:8080", true},
		{"different port", []string{"http://localhost:8080"}, "http://localhost:9090", false},
		{"different scheme", []string{"http://localhost:8080"}, "https://localhost:8080", false},
		{"missing origin", []string{"http://localhost:8080"}, "", false},
		{"malformed origin", []string{"http://localhost:8080"}, "localhost", false},
		{"wildcard", []string{"*"}, "http://anything.example", true},
		{"wildcard still needs origin", []string{"*"}, "", false},
		{"invalid entries ignored", []string{"not a url", " "}, "http://localhost:8080", false},
		{"empty list", nil, "http://localhost:8080", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed)
			req := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			if got := policy.check(req); got != tt.want {
				t.Errorf("check(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
