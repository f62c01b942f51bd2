package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStoreImplementations(t *testing.T) {
	fsStore, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	stores := map[string]Store{
		"fs":  fsStore,
		"mem": NewMemStore(),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			data := []byte("workbook bytes")

			path, err := store.Put("run-1.xlsx", data)
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if path == "" {
				t.Error("Put returned empty path")
			}
			if got := store.Path("run-1.xlsx"); got != path {
				t.Errorf("Path = %q, Put returned %q", got, path)
			}

			got, err := store.Get("run-1.xlsx")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("Get = %q, want %q", got, data)
			}

			if _, err := store.Get("missing.xlsx"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get missing = %v, want ErrNotFound", err)
			}

			if err := store.Delete("run-1.xlsx"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := store.Get("run-1.xlsx"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after delete = %v, want ErrNotFound", err)
			}
			if err := store.Delete("run-1.xlsx"); !errors.Is(err, ErrNotFound) {
				t.Errorf("double Delete = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestFSStorePathTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	path, err := store.Put("../../escape.xlsx", []byte("x"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("object escaped the store dir: %s", path)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.xlsx")); err != nil {
		t.Errorf("object not written under store dir: %v", err)
	}
}

func TestMemStoreIsolation(t *testing.T) {
	store := NewMemStore()
	original := []byte("original")
	if _, err := store.Put("a", original); err != nil {
		t.Fatal(err)
	}
	original[0] = 'X'

	got, err := store.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Errorf("stored bytes aliased caller buffer: %q", got)
	}

	got[0] = 'Y'
	again, _ := store.Get("a")
	if string(again) != "original" {
		t.Errorf("Get result aliased stored bytes: %q", again)
	}

	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}
