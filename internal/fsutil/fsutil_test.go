package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsImportable(t *testing.T) {
	cases := map[string]bool{
		"a.xml":    true,
		"a.YAML":   true,
		"a.yml":    true,
		"a.coords": false,
		"a.fits":   false,
		"xml":      false,
	}
	for path, want := range cases {
		if got := IsImportable(path); got != want {
			t.Errorf("IsImportable(%q) = %v, want %v", path, got, want)
		}
	}
	if !IsMaskDocument("m.XML") || IsMaskDocument("p.yaml") {
		t.Fatal("IsMaskDocument misclassified")
	}
	if !IsPointingFile("p.yml") || IsPointingFile("m.xml") {
		t.Fatal("IsPointingFile misclassified")
	}
}

func TestListDocuments(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"b.yaml", "a.xml", "notes.txt", "sub/c.yml", "sub/list.coords"} {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := ListDocuments(root)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(root, "a.xml"),
		filepath.Join(root, "b.yaml"),
		filepath.Join(root, "sub", "c.yml"),
	}
	if len(files) != len(want) {
		t.Fatalf("files = %v", files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}

	if _, err := ListDocuments(filepath.Join(root, "missing")); err == nil {
		t.Fatal("expected error for missing root")
	}
}
