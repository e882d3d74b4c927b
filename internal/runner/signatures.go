package runner

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultFailurePatterns flag a clean exit as failed when found on stderr:
// an "Error:" marker, stderr ending in "Error", an indented "at " stack
// frame, or "exception" in any case.
var DefaultFailurePatterns = []string{
	`Error:`,
	`Error\s*\z`,
	`(?m)^\s+at \S`,
	`(?i)exception`,
}

// DefaultIgnorePatterns drop runtime warning lines that would otherwise trip
// the failure patterns on a healthy script.
var DefaultIgnorePatterns = []string{
	`ExperimentalWarning`,
	`DeprecationWarning`,
	`--trace-warnings`,
	`--trace-deprecation`,
}

// Signatures detects failures a script printed but did not report through
// its exit status. It is a secondary signal; the exit code stays authoritative.
type Signatures struct {
	failure []*regexp.Regexp
	ignore  []*regexp.Regexp
}

// NewSignatures compiles failure and ignore patterns.
func NewSignatures(failure, ignore []string) (*Signatures, error) {
	s := &Signatures{}
	for _, p := range failure {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("failure pattern %q: %w", p, err)
		}
		s.failure = append(s.failure, re)
	}
	for _, p := range ignore {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %w", p, err)
		}
		s.ignore = append(s.ignore, re)
	}
	return s, nil
}

// DefaultSignatures returns the compiled default pattern sets.
func DefaultSignatures() *Signatures {
	s, err := NewSignatures(DefaultFailurePatterns, DefaultIgnorePatterns)
	if err != nil {
		panic(err)
	}
	return s
}

// Filter removes lines matching any ignore pattern.
func (s *Signatures) Filter(text string) string {
	if len(s.ignore) == 0 || text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !s.ignored(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func (s *Signatures) ignored(line string) bool {
	for _, re := range s.ignore {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// Match filters text and reports the first failure pattern it contains.
func (s *Signatures) Match(text string) (string, bool) {
	filtered := s.Filter(text)
	if strings.TrimSpace(filtered) == "" {
		return "", false
	}
	for _, re := range s.failure {
		if re.MatchString(filtered) {
			return re.String(), true
		}
	}
	return "", false
}
