package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateAPIKey(t *testing.T) {
	t.Parallel()

	if !ValidateAPIKey("provided", "provided") {
		t.Fatalf("expected true for matching keys")
	}
	if ValidateAPIKey("provided", "other") {
		t.Fatalf("expected false for mismatched keys")
	}
	if ValidateAPIKey("", "configured") {
		t.Fatalf("expected false for empty provided key")
	}
	if ValidateAPIKey("provided", "") {
		t.Fatalf("expected false for empty configured key")
	}
}

func TestExtractAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "Bearer test-key", want: "test-key"},
		{header: "Bearer  padded ", want: "padded"},
		{header: "", wantErr: true},
		{header: "Basic abc", wantErr: true},
		{header: "Bearer   ", wantErr: true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://example.test", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, err := ExtractAPIKey(req)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ExtractAPIKey(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ExtractAPIKey(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
