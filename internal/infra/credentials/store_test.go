package credentials

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proteus", "token")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	tok, err := store.Load()
	if err != nil {
		t.Fatalf("Load before save: %v", err)
	}
	if tok != "" {
		t.Fatalf("Load before save = %q, want empty", tok)
	}

	if err := store.Save("  secret-token\n"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	tok, err = store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok != "secret-token" {
		t.Fatalf("Load = %q, want secret-token", tok)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("token file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestFileStoreClearIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := store.Save("tok"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}

	tok, err := store.Load()
	if err != nil {
		t.Fatalf("Load after clear: %v", err)
	}
	if tok != "" {
		t.Fatalf("Load after clear = %q, want empty", tok)
	}
}

func TestFileStoreRejectsEmptyInput(t *testing.T) {
	if _, err := NewFileStore("   "); err == nil {
		t.Fatalf("expected error for empty path")
	}

	store, err := NewFileStore(filepath.Join(t.TempDir(), "token"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Save(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
}
