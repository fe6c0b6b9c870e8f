package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"reflect"
	"testing"
)

func TestOSFileSystem_WriteAndRead(t *testing.T) {
	osfs := OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "a", "b")

	if err := osfs.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	name := filepath.Join(dir, "out.txt")
	if err := osfs.WriteFile(name, []byte("1000 1032\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if !osfs.Exists(name) {
		t.Errorf("expected %s to exist", name)
	}
	data, err := osfs.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "1000 1032\n" {
		t.Errorf("unexpected content %q", data)
	}
	if osfs.Exists(filepath.Join(dir, "missing")) {
		t.Error("expected missing file to not exist")
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.MkdirAll("/plots/run", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for _, d := range []string{"/plots", "/plots/run"} {
		if !mfs.Exists(d) {
			t.Errorf("expected directory %s", d)
		}
	}

	data := []byte("hello")
	if err := mfs.WriteFile("/plots/run/b.png", data, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := mfs.WriteFile("/plots/run/a.png", nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data[0] = 'j'

	got, err := mfs.ReadFile("/plots/run/b.png")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("expected stored copy %q, got %q", "hello", got)
	}

	want := []string{"/plots/run/a.png", "/plots/run/b.png"}
	if files := mfs.Files("/plots"); !reflect.DeepEqual(files, want) {
		t.Errorf("Files = %v, want %v", files, want)
	}
	if files := mfs.Files("/other"); len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}

func TestMemoryFileSystem_Errors(t *testing.T) {
	mfs := NewMemoryFileSystem()

	err := mfs.WriteFile("/missing/x.png", nil, 0644)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist writing into a missing directory, got %v", err)
	}
	if _, err := mfs.ReadFile("/x.png"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}

	if err := mfs.MkdirAll("/d", 0755); err != nil {
		t.Fatal(err)
	}
	if err := mfs.WriteFile("/d", nil, 0644); err == nil {
		t.Error("expected error writing over a directory")
	}
	if err := mfs.WriteFile("/d/f", nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := mfs.MkdirAll("/d/f/g", 0755); !errors.Is(err, fs.ErrExist) {
		t.Errorf("expected ErrExist creating a directory over a file, got %v", err)
	}
	if err := mfs.MkdirAll("/d/f", 0755); !errors.Is(err, fs.ErrExist) {
		t.Errorf("expected ErrExist creating a directory at a file path, got %v", err)
	}
	if mfs.Exists("/d/f/g") {
		t.Error("failed MkdirAll must not leave directories behind")
	}
	if err := mfs.WriteFile("/d/f/g/x.png", nil, 0644); err == nil {
		t.Error("expected error writing below a file")
	}
}
