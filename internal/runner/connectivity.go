package runner

import "strings"

// connectivityPattern maps a stderr fragment to a human-readable reason.
type connectivityPattern struct {
	pattern string
	reason  string
}

// Order matters: the first match wins.
var connectivityPatterns = []connectivityPattern{
	{"enotfound", "DNS resolution failed"},
	{"getaddrinfo", "DNS resolution failed"},
	{"econnrefused", "connection refused"},
	{"econnreset", "connection reset"},
	{"etimedout", "connection timed out"},
	{"certificate has expired", "TLS certificate expired"},
	{"self signed certificate", "TLS certificate untrusted"},
	{"unable to verify the first certificate", "TLS certificate untrusted"},
	{"invalid api key", "authentication failed"},
	{"incorrect api key", "authentication failed"},
	{"401 unauthorized", "authentication failed"},
	{"status code 401", "authentication failed"},
	{"429 too many requests", "rate limited"},
	{"rate limit", "rate limited"},
	{"fetch failed", "request failed"},
}

// DetectConnectivity classifies stderr text that points at the network or the
// model provider rather than the script itself. It returns "" when nothing
// matches.
func DetectConnectivity(stderr string) string {
	if stderr == "" {
		return ""
	}
	lower := strings.ToLower(stderr)
	for _, cp := range connectivityPatterns {
		if strings.Contains(lower, cp.pattern) {
			return cp.reason
		}
	}
	return ""
}
