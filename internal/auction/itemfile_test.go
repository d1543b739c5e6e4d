package auction

import (
	"os"
	"path/filepath"
	"testing"
)

func writeItemFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "items.txt")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadItemFile(t *testing.T) {
	path := writeItemFile(t, "# queue\nsword\n\n  shield  \nhelmet\n")
	ids, err := LoadItemFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"sword", "shield", "helmet"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestLoadItemFile_RejectsDuplicates(t *testing.T) {
	path := writeItemFile(t, "sword\nshield\nsword\n")
	if _, err := LoadItemFile(path); err == nil {
		t.Fatalf("duplicate item accepted")
	}
}

func TestLoadItemFile_RejectsEmpty(t *testing.T) {
	path := writeItemFile(t, "# nothing here\n\n")
	if _, err := LoadItemFile(path); err == nil {
		t.Fatalf("empty item file accepted")
	}
}

func TestLoadItemFile_MissingFile(t *testing.T) {
	if _, err := LoadItemFile(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Fatalf("missing file accepted")
	}
}
