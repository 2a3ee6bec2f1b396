package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"

	"github.com/jorge-barreto/coursegen/internal/config"
	"github.com/jorge-barreto/coursegen/internal/outline"
)

var (
	outlineGlob = glob.MustCompile("course_outline_*.json")
	diagramGlob = glob.MustCompile("diagram_*.mmd")
)

// ErrNoOutline is returned when no outline JSON can be found.
var ErrNoOutline = errors.New("no course outline found; run 'coursegen outline' first or pass --outline")

// FindOutline resolves the outline to generate from: the explicit path when
// given, else the newest outline in the course-specific outlines directory,
// then <base>/outlines, then any <base>/*/outlines directory.
func FindOutline(s *config.Settings, explicit string) (string, error) {
	if explicit != "" {
		info, err := os.Stat(explicit)
		if err != nil {
			return "", fmt.Errorf("outline %s: %w", explicit, err)
		}
		if info.IsDir() {
			if p, ok := newestOutline(explicit); ok {
				return p, nil
			}
			return "", fmt.Errorf("outline directory %s: %w", explicit, ErrNoOutline)
		}
		return explicit, nil
	}

	paths := s.OutputPaths("")
	outlinesDir := filepath.Base(paths.Outlines)
	for _, dir := range []string{paths.Outlines, filepath.Join(paths.Base, outlinesDir)} {
		if p, ok := newestOutline(dir); ok {
			return p, nil
		}
	}

	dirs, _ := filepath.Glob(filepath.Join(paths.Base, "*", outlinesDir))
	var (
		best    string
		bestMod int64
	)
	for _, dir := range dirs {
		p, ok := newestOutline(dir)
		if !ok {
			continue
		}
		if mod := modTime(p); best == "" || mod > bestMod {
			best, bestMod = p, mod
		}
	}
	if best == "" {
		return "", ErrNoOutline
	}
	return best, nil
}

// newestOutline returns the most recently modified outline JSON in dir.
func newestOutline(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var (
		best    string
		bestMod int64
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !outlineGlob.Match(name) || !outline.IsOutlineFile(name) {
			continue
		}
		p := filepath.Join(dir, name)
		if mod := modTime(p); best == "" || mod > bestMod || (mod == bestMod && p > best) {
			best, bestMod = p, mod
		}
	}
	return best, best != ""
}

func modTime(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

// existingDiagrams returns the diagram file names already in a session dir.
func existingDiagrams(dir string) map[string]bool {
	found := map[string]bool{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return found
	}
	for _, e := range entries {
		if e.IsDir() || !diagramGlob.Match(e.Name()) {
			continue
		}
		if info, err := e.Info(); err == nil && info.Size() > 0 {
			found[e.Name()] = true
		}
	}
	return found
}

// courseLayout returns the course directory and modules root an outline
// belongs to. Outlines stored under <course>/outlines/ generate into the
// sibling modules directory; anything else falls back to the course slug
// from the outline metadata.
func courseLayout(s *config.Settings, outlinePath, courseName string) (courseDir, modulesRoot string) {
	paths := s.OutputPaths("")
	dir := filepath.Dir(outlinePath)
	if filepath.Clean(dir) == filepath.Clean(paths.Outlines) {
		return paths.Course, paths.Modules
	}
	if filepath.Base(dir) == filepath.Base(paths.Outlines) {
		parent := filepath.Dir(dir)
		if filepath.Clean(parent) != filepath.Clean(paths.Base) {
			return parent, filepath.Join(parent, filepath.Base(paths.Modules))
		}
	}
	named := s.OutputPaths(courseName)
	return named.Course, named.Modules
}
