package state

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var nameRe = regexp.MustCompile(`[^a-z0-9]+`)

// ModuleDir returns modules/module_NN_<slug>.
func ModuleDir(modulesRoot string, moduleID int, moduleName string) string {
	slug := strings.Trim(nameRe.ReplaceAllString(strings.ToLower(moduleName), "_"), "_")
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "_")
	}
	name := fmt.Sprintf("module_%02d", moduleID)
	if slug != "" {
		name += "_" + slug
	}
	return filepath.Join(modulesRoot, name)
}

// SessionDir returns <moduleDir>/session_NN for a global session number.
func SessionDir(moduleDir string, sessionNumber int) string {
	return filepath.Join(moduleDir, fmt.Sprintf("session_%02d", sessionNumber))
}

// EnsureDir creates dir and its parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}

// ExistingFiles returns which of names exist as non-empty files in dir.
func ExistingFiles(dir string, names []string) map[string]bool {
	found := make(map[string]bool, len(names))
	for _, n := range names {
		info, err := os.Stat(filepath.Join(dir, n))
		if err == nil && !info.IsDir() && info.Size() > 0 {
			found[n] = true
		}
	}
	return found
}

// MissingFiles returns the subset of names that are absent from dir.
func MissingFiles(dir string, names []string) []string {
	found := ExistingFiles(dir, names)
	var missing []string
	for _, n := range names {
		if !found[n] {
			missing = append(missing, n)
		}
	}
	return missing
}
