package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadFileScoped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	if err := os.WriteFile(path, []byte(`{"ok":true}`), 0o600); err != nil {
		t.Fatal(err)
	}

	data, err := ReadFileScoped(path)
	if err != nil {
		t.Fatalf("ReadFileScoped: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("content = %s", data)
	}
}

func TestReadFileScoped_Missing(t *testing.T) {
	if _, err := ReadFileScoped(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReadFileScoped_InvalidPath(t *testing.T) {
	if _, err := ReadFileScoped("/"); err == nil {
		t.Fatal("expected error for root path")
	}
}
