// Package input resolves canned stdin for scripts that prompt interactively.
package input

import (
	"path/filepath"
	"strings"
)

// Table maps a filename substring to the stdin payload fed to matching scripts.
type Table map[string]string

// Lookup returns the payload for path. Keys are matched against the base
// name; when several keys match, the longest wins and ties go to the
// lexically smaller key so the answer never depends on map order.
func (t Table) Lookup(path string) (string, bool) {
	if len(t) == 0 {
		return "", false
	}
	name := filepath.Base(path)

	var bestKey string
	found := false
	for key := range t {
		if key == "" || !strings.Contains(name, key) {
			continue
		}
		if !found || len(key) > len(bestKey) || (len(key) == len(bestKey) && key < bestKey) {
			bestKey = key
			found = true
		}
	}
	if !found {
		return "", false
	}
	return t[bestKey], true
}
