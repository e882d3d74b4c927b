package runner

import "testing"

func TestDetectConnectivity(t *testing.T) {
	tests := []struct {
		stderr string
		want   string
	}{
		{"", ""},
		{"Error: getaddrinfo ENOTFOUND api.openai.com", "DNS resolution failed"},
		{"connect ECONNREFUSED 127.0.0.1:11434", "connection refused"},
		{"AuthenticationError: 401 Unauthorized", "authentication failed"},
		{"Error: Incorrect API key provided", "authentication failed"},
		{"RateLimitError: 429 Too Many Requests", "rate limited"},
		{"TypeError: fetch failed", "request failed"},
		{"ReferenceError: foo is not defined", ""},
	}
	for _, tt := range tests {
		if got := DetectConnectivity(tt.stderr); got != tt.want {
			t.Errorf("DetectConnectivity(%q) = %q, want %q", tt.stderr, got, tt.want)
		}
	}
}
