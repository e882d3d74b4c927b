package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the settings file looked up in the working directory.
const DefaultFile = ".examplerun.yml"

// Settings holds harness defaults loaded from a config file.
type Settings struct {
	Workers     int           `yaml:"workers"`
	Timeout     time.Duration `yaml:"timeout"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// Explicit roots to scan; when empty, chapter roots are derived.
	Roots          []string `yaml:"roots,omitempty"`
	ChapterSubdirs []string `yaml:"chapter_subdirs,omitempty"`
	Extensions     []string `yaml:"extensions,omitempty"`
	Exclude        []string `yaml:"exclude,omitempty"`

	Command []string          `yaml:"command,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	EnvFile string            `yaml:"env_file,omitempty"`

	// Canned stdin, keyed by a substring of the script's file name.
	Inputs map[string]string `yaml:"inputs,omitempty"`

	FailurePatterns []string `yaml:"failure_patterns,omitempty"`
	IgnorePatterns  []string `yaml:"ignore_patterns,omitempty"`

	ExcerptLines int    `yaml:"excerpt_lines"`
	Redact       bool   `yaml:"redact"`
	ReportDir    string `yaml:"report_dir,omitempty"`
	History      bool   `yaml:"history"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

// Defaults returns the compiled-in settings.
func Defaults() *Settings {
	return &Settings{
		Workers:        10,
		Timeout:        90 * time.Second,
		ChapterSubdirs: []string{"code", "solution", "samples"},
		Extensions:     []string{".ts"},
		Exclude:        []string{"node_modules", "dist", "build", "future", "scripts", "*.d.ts"},
		Command:        []string{"npx", "tsx"},
		Env:            map[string]string{"CI": "true"},
		EnvFile:        ".env",
		Inputs:         map[string]string{},
		FailurePatterns: []string{
			`Error:`,
			`Error\s*\z`,
			`(?m)^\s+at \S`,
			`(?i)exception`,
		},
		IgnorePatterns: []string{
			`ExperimentalWarning`,
			`DeprecationWarning`,
			`--trace-warnings`,
			`--trace-deprecation`,
		},
		ExcerptLines: 3,
		Redact:       true,
		ReportDir:    ".examplerun",
		History:      true,
	}
}

// LoadSettings reads a YAML config file over the defaults. Keys absent from
// the file keep their default value. If the file does not exist, it returns
// Defaults() and nil error.
func LoadSettings(path string) (*Settings, error) {
	s := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := Validate(data); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := s.check(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return s, nil
}

// check enforces rules the schema cannot express on decoded values.
func (s *Settings) check() error {
	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", s.Timeout)
	}
	if s.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must not be negative, got %s", s.IdleTimeout)
	}
	if len(s.Command) == 0 {
		return errors.New("command must not be empty")
	}
	return nil
}
