package watcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeImporter struct {
	mu       sync.Mutex
	imported []string
	exported []string
	fail     bool
}

func (f *fakeImporter) Import(path string) (string, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", nil, errors.New("bad document")
	}
	f.imported = append(f.imported, filepath.Base(path))
	return "id-" + filepath.Base(path), []string{"note"}, nil
}

func (f *fakeImporter) ExportAll(id, dir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exported = append(f.exported, id)
	return []string{filepath.Join(dir, id+".fits")}, nil
}

func startWatcher(t *testing.T, imp Importer, outDir string) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := New(dir, outDir, 20*time.Millisecond, imp, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	return w, dir
}

func waitResult(t *testing.T, w *Watcher) Result {
	t.Helper()
	select {
	case res := <-w.Results:
		return res
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for import")
		return Result{}
	}
}

func TestImportsDroppedFiles(t *testing.T) {
	imp := &fakeImporter{}
	out := t.TempDir()
	w, dir := startWatcher(t, imp, out)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "field.yaml"), []byte("center: {}"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := waitResult(t, w)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.MaskID != "id-field.yaml" || len(res.Warnings) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Products) != 1 || filepath.Dir(res.Products[0]) != out {
		t.Fatalf("products = %v", res.Products)
	}

	imp.mu.Lock()
	defer imp.mu.Unlock()
	if len(imp.imported) != 1 || imp.imported[0] != "field.yaml" {
		t.Fatalf("imported = %v", imp.imported)
	}
}

func TestReportsImportErrors(t *testing.T) {
	imp := &fakeImporter{fail: true}
	w, dir := startWatcher(t, imp, "")

	if err := os.WriteFile(filepath.Join(dir, "broken.xml"), []byte("<x"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := waitResult(t, w)
	if res.Err == nil || res.Products != nil {
		t.Fatalf("result = %+v", res)
	}
}
