package runner

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// BuildEnv assembles the child environment: base (normally os.Environ()),
// then keys from envFile that base does not already define, then vars, which
// override everything. A missing envFile is not an error.
func BuildEnv(base []string, envFile string, vars map[string]string) ([]string, error) {
	env := make(map[string]string, len(base)+len(vars))
	var order []string
	set := func(k, v string) {
		if _, ok := env[k]; !ok {
			order = append(order, k)
		}
		env[k] = v
	}

	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		set(k, v)
	}

	if envFile != "" {
		fileVars, err := godotenv.Read(envFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		default:
			keys := make([]string, 0, len(fileVars))
			for k := range fileVars {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if _, exists := env[k]; !exists {
					set(k, fileVars[k])
				}
			}
		}
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		set(k, vars[k])
	}

	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+env[k])
	}
	return out, nil
}
