package archive

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "main.nf"), "workflow {}")
	writeFile(t, filepath.Join(src, "conf", "base.config"), "params.x = 1")
	if err := os.Symlink("conf", filepath.Join(src, "conf-link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "copy")
	if err := CopyTree(src, dest); err != nil {
		t.Fatalf("CopyTree() err=%v", err)
	}

	target, err := os.Readlink(filepath.Join(dest, "conf-link"))
	if err != nil {
		t.Fatalf("symlink not preserved: %v", err)
	}
	if target != "conf" {
		t.Fatalf("link target=%q", target)
	}
	if err := os.Remove(filepath.Join(dest, "conf-link")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.Remove(filepath.Join(src, "conf-link")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got, want := snapshotTree(t, dest), snapshotTree(t, src); !reflect.DeepEqual(got, want) {
		t.Fatalf("tree mismatch\n got: %v\nwant: %v", got, want)
	}
}

func TestCopyTreeRejectsFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "file")
	writeFile(t, src, "x")
	if err := CopyTree(src, t.TempDir()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), `{"ok":true}`)
	writeFile(t, filepath.Join(dir, "b.json"), "stale content that is longer")

	if err := CopyFile(filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")); err != nil {
		t.Fatalf("CopyFile() err=%v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "b.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != `{"ok":true}` {
		t.Fatalf("content=%q", b)
	}
}
