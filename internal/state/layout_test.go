package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestModuleDir(t *testing.T) {
	got := ModuleDir("modules", 3, "Cell Structure & Function")
	want := filepath.Join("modules", "module_03_cell_structure_function")
	if got != want {
		t.Fatalf("ModuleDir = %q, want %q", got, want)
	}
	if got := ModuleDir("m", 1, "!!!"); got != filepath.Join("m", "module_01") {
		t.Fatalf("ModuleDir = %q", got)
	}
}

func TestSessionDir(t *testing.T) {
	if got := SessionDir("mod", 7); got != filepath.Join("mod", "session_07") {
		t.Fatalf("SessionDir = %q", got)
	}
}

func TestExistingAndMissingFiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "lecture.md"), []byte("# L"), 0644)
	os.WriteFile(filepath.Join(dir, "lab.md"), nil, 0644)

	names := []string{"lecture.md", "lab.md", "questions.md"}
	found := ExistingFiles(dir, names)
	if !found["lecture.md"] || found["lab.md"] || found["questions.md"] {
		t.Fatalf("found = %v", found)
	}
	missing := MissingFiles(dir, names)
	if len(missing) != 2 || missing[0] != "lab.md" {
		t.Fatalf("missing = %v", missing)
	}
}
